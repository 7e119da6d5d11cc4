package p2p

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
)

type MsgType string

const (
	MsgTypeGetChain       MsgType = "GET_CHAIN"
	MsgTypeChain          MsgType = "CHAIN"
	MsgTypeNewBlock       MsgType = "NEW_BLOCK"
	MsgTypeNewTransaction MsgType = "NEW_TRANSACTION"
	MsgTypeGetPeers       MsgType = "GET_PEERS"
	MsgTypePeers          MsgType = "PEERS"
)

const frameDelimiter = '\n'

var (
	ErrMalformedMessage = errors.New("malformed message")
)

func (t MsgType) Known() bool {
	switch t {
	case MsgTypeGetChain, MsgTypeChain, MsgTypeNewBlock,
		MsgTypeNewTransaction, MsgTypeGetPeers, MsgTypePeers:
		return true
	}
	return false
}

// Message is one protocol frame. On the wire it is a single JSON object
// terminated by a newline.
type Message struct {
	MsgType   MsgType         `json:"msg_type"`
	Data      json.RawMessage `json:"data"`
	SenderID  int64           `json:"sender_id"`
	Timestamp float64         `json:"timestamp"`
}

func NewMessage(t MsgType, data interface{}) (*Message, error) {
	if data == nil {
		data = struct{}{}
	}

	d, err := json.Marshal(data)
	if err != nil {
		return nil, errors.Wrapf(err, "encoding %s data", t)
	}

	return &Message{
		MsgType:   t,
		Data:      d,
		Timestamp: float64(time.Now().UnixMicro()) / 1e6,
	}, nil
}

// Encode returns the frame including its delimiter.
func (m *Message) Encode() ([]byte, error) {
	d, err := json.Marshal(m)
	if err != nil {
		return nil, errors.Wrap(err, "encoding message")
	}

	return append(d, frameDelimiter), nil
}

func (m *Message) Decode(v interface{}) error {
	if err := json.Unmarshal(m.Data, v); err != nil {
		return errors.Wrapf(ErrMalformedMessage, "decoding %s data: %s", m.MsgType, err)
	}

	return nil
}

func ParseMessage(frame []byte) (*Message, error) {
	m := &Message{}
	if err := json.Unmarshal(bytes.TrimSpace(frame), m); err != nil {
		return nil, errors.Wrap(ErrMalformedMessage, err.Error())
	}

	if m.MsgType == "" {
		return nil, errors.Wrap(ErrMalformedMessage, "missing msg_type")
	}

	return m, nil
}
