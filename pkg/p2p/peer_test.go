package p2p

import (
	"bufio"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tcfw/votem/internal/utils/logging"
)

func collectingPeer(conn net.Conn) (*Peer, *[]*Message) {
	got := []*Message{}
	p := newPeer(conn, nil, func(_ *Peer, m *Message) {
		got = append(got, m)
	}, nil, logging.Entry())

	return p, &got
}

func TestFeedSplitFrames(t *testing.T) {
	p, got := collectingPeer(nil)

	m, err := NewMessage(MsgTypeGetPeers, nil)
	if err != nil {
		t.Fatal(err)
	}
	frame, err := m.Encode()
	if err != nil {
		t.Fatal(err)
	}

	a, b, c := frame[:5], frame[5:len(frame)-1], frame[len(frame)-1:]

	require.NoError(t, p.feed(a))
	assert.Empty(t, *got)
	require.NoError(t, p.feed(b))
	assert.Empty(t, *got)
	require.NoError(t, p.feed(c))

	require.Len(t, *got, 1)
	assert.Equal(t, MsgTypeGetPeers, (*got)[0].MsgType)
	assert.Zero(t, p.Buffered())

	// two frames and the start of a third in one read
	both := append(append(append([]byte{}, frame...), frame...), frame[:3]...)
	require.NoError(t, p.feed(both))
	assert.Len(t, *got, 3)
	assert.Equal(t, 3, p.Buffered())
}

func TestFeedDiscardsMalformed(t *testing.T) {
	p, got := collectingPeer(nil)

	require.NoError(t, p.feed([]byte("not json\n{\"data\":{}}\n\n")))
	assert.Empty(t, *got)

	require.NoError(t, p.feed([]byte(`{"msg_type":"GET_CHAIN","data":{},"sender_id":1,"timestamp":1.5}`+"\n")))
	require.Len(t, *got, 1)
	assert.Equal(t, int64(1), (*got)[0].SenderID)
}

func TestPeerSendFrames(t *testing.T) {
	a, b := net.Pipe()
	defer b.Close()

	p, _ := collectingPeer(a)
	p.start()
	defer p.Close()

	m, err := NewMessage(MsgTypeChain, []int{1, 2})
	if err != nil {
		t.Fatal(err)
	}

	// queued without anyone reading the other end
	require.NoError(t, p.Send(m))

	b.SetReadDeadline(time.Now().Add(5 * time.Second))
	line, err := bufio.NewReader(b).ReadBytes('\n')
	if err != nil {
		t.Fatal(err)
	}

	got, err := ParseMessage(line)
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, MsgTypeChain, got.MsgType)
	assert.JSONEq(t, `[1,2]`, string(got.Data))

	p.Close()
	assert.ErrorIs(t, p.Send(m), ErrPeerClosed)

	select {
	case <-p.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("peer loops did not exit")
	}
}

func TestSendQueueFull(t *testing.T) {
	p, _ := collectingPeer(nil)

	m, err := NewMessage(MsgTypeGetPeers, nil)
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < sendQueueSize; i++ {
		require.NoError(t, p.Send(m))
	}

	assert.ErrorIs(t, p.Send(m), ErrSendQueueFull)
	assert.Equal(t, sendQueueSize, p.Queued())
}

func TestReadWhileWriteBlocked(t *testing.T) {
	a, b := net.Pipe()
	defer b.Close()

	received := make(chan *Message, 1)
	p := newPeer(a, nil, func(_ *Peer, m *Message) {
		received <- m
	}, nil, logging.Entry())
	p.start()
	defer p.Close()

	big, err := NewMessage(MsgTypeChain, make([]int, 1024))
	if err != nil {
		t.Fatal(err)
	}
	require.NoError(t, p.Send(big))

	// the writer is stuck until b reads, inbound frames must still arrive
	in, err := NewMessage(MsgTypeGetPeers, nil)
	if err != nil {
		t.Fatal(err)
	}
	frame, err := in.Encode()
	if err != nil {
		t.Fatal(err)
	}

	b.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if _, err := b.Write(frame); err != nil {
		t.Fatal(err)
	}

	select {
	case m := <-received:
		assert.Equal(t, MsgTypeGetPeers, m.MsgType)
	case <-time.After(5 * time.Second):
		t.Fatal("inbound frame not handled")
	}
}

func TestMessageFraming(t *testing.T) {
	m, err := NewMessage(MsgTypeGetChain, nil)
	if err != nil {
		t.Fatal(err)
	}

	d, err := m.Encode()
	if err != nil {
		t.Fatal(err)
	}
	assert.Equal(t, byte('\n'), d[len(d)-1])
	assert.JSONEq(t, `{}`, string(m.Data))

	_, err = ParseMessage([]byte(`{"data":{}}`))
	assert.ErrorIs(t, err, ErrMalformedMessage)

	bad := &Message{MsgType: MsgTypePeers, Data: json.RawMessage(`"x"`)}
	var addrs []PeerAddr
	assert.ErrorIs(t, bad.Decode(&addrs), ErrMalformedMessage)
}

func TestPeerAddrJSON(t *testing.T) {
	a, err := ParsePeerAddr("127.0.0.1:8333")
	if err != nil {
		t.Fatal(err)
	}

	d, err := json.Marshal([]PeerAddr{a})
	if err != nil {
		t.Fatal(err)
	}
	assert.JSONEq(t, `[["127.0.0.1",8333]]`, string(d))

	var back []PeerAddr
	require.NoError(t, json.Unmarshal(d, &back))
	assert.Equal(t, []PeerAddr{a}, back)

	var one PeerAddr
	assert.Error(t, json.Unmarshal([]byte(`["h"]`), &one))
	assert.Error(t, json.Unmarshal([]byte(`["h","80"]`), &one))

	_, err = ParsePeerAddr("nohost")
	assert.Error(t, err)
	_, err = ParsePeerAddr("h:0")
	assert.Error(t, err)
}
