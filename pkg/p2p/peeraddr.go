package p2p

import (
	"encoding/json"
	"net"
	"strconv"

	"github.com/pkg/errors"
)

// PeerAddr is a dialable peer endpoint. It encodes as a [host, port] pair.
type PeerAddr struct {
	Host string
	Port int
}

func ParsePeerAddr(s string) (PeerAddr, error) {
	host, port, err := net.SplitHostPort(s)
	if err != nil {
		return PeerAddr{}, errors.Wrap(err, "parsing peer address")
	}

	p, err := strconv.Atoi(port)
	if err != nil || p <= 0 || p > 65535 {
		return PeerAddr{}, errors.Errorf("invalid port in %q", s)
	}

	return PeerAddr{Host: host, Port: p}, nil
}

func (a PeerAddr) String() string {
	return net.JoinHostPort(a.Host, strconv.Itoa(a.Port))
}

func (a PeerAddr) MarshalJSON() ([]byte, error) {
	return json.Marshal([]interface{}{a.Host, a.Port})
}

func (a *PeerAddr) UnmarshalJSON(b []byte) error {
	var pair []json.RawMessage
	if err := json.Unmarshal(b, &pair); err != nil {
		return err
	}

	if len(pair) != 2 {
		return errors.Errorf("peer address has %d parts", len(pair))
	}

	if err := json.Unmarshal(pair[0], &a.Host); err != nil {
		return errors.Wrap(err, "decoding host")
	}

	if err := json.Unmarshal(pair[1], &a.Port); err != nil {
		return errors.Wrap(err, "decoding port")
	}

	return nil
}
