package node

import (
	"github.com/sirupsen/logrus"
	"github.com/tcfw/votem/internal/config"
	"github.com/tcfw/votem/pkg/storage"
)

type NodeOption func(*Node) error

func WithStore(s storage.Store) NodeOption {
	return func(n *Node) error {
		n.store = s
		return nil
	}
}

func WithLogger(l *logrus.Entry) NodeOption {
	return func(n *Node) error {
		n.logger = l
		return nil
	}
}

// WithConfig skips reading the config file.
func WithConfig(c *config.Config) NodeOption {
	return func(n *Node) error {
		n.cfg = c
		return nil
	}
}
