package p2p

import (
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

type Option func(*Node) error

func WithListenAddr(host string, port int) Option {
	return func(n *Node) error {
		if port < 0 || port > 65535 {
			return errors.Errorf("invalid port %d", port)
		}
		n.listen = PeerAddr{Host: host, Port: port}
		return nil
	}
}

func WithLogger(l *logrus.Entry) Option {
	return func(n *Node) error {
		n.logger = l
		return nil
	}
}

func WithSeenCacheSize(size int) Option {
	return func(n *Node) error {
		if size <= 0 {
			return errors.New("seen cache size must be positive")
		}
		n.seenSize = size
		return nil
	}
}

// WithDialProbability sets the chance of dialing each address learned from
// a PEERS message.
func WithDialProbability(p float64) Option {
	return func(n *Node) error {
		if p < 0 || p > 1 {
			return errors.New("dial probability must be within [0, 1]")
		}
		n.dialProb = p
		return nil
	}
}

func WithDialTimeout(d time.Duration) Option {
	return func(n *Node) error {
		n.dialTimeout = d
		return nil
	}
}

func WithID(id int64) Option {
	return func(n *Node) error {
		n.id = id
		return nil
	}
}
