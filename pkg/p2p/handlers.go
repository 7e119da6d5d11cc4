package p2p

import (
	"context"

	"github.com/pkg/errors"
	"github.com/tcfw/votem/internal/coinflip"
	"github.com/tcfw/votem/internal/metrics"
	"github.com/tcfw/votem/pkg/ledger"
)

func (n *Node) handle(p *Peer, m *Message) {
	label := string(m.MsgType)
	if !m.MsgType.Known() {
		label = "unknown"
	}
	metrics.MessagesReceived.WithLabelValues(label).Inc()

	switch m.MsgType {
	case MsgTypeGetChain:
		n.onGetChain(p)
	case MsgTypeChain:
		n.onChain(p, m)
	case MsgTypeNewBlock:
		n.onNewBlock(p, m)
	case MsgTypeNewTransaction:
		n.onNewTransaction(p, m)
	case MsgTypeGetPeers:
		n.onGetPeers(p)
	case MsgTypePeers:
		n.onPeers(p, m)
	default:
		p.logger.WithField("msg_type", m.MsgType).Warn("unknown message type")
	}
}

func (n *Node) onGetChain(p *Peer) {
	m, err := NewMessage(MsgTypeChain, n.ledger.ChainData())
	if err != nil {
		n.logger.WithError(err).Error("encoding chain")
		return
	}

	n.send(p, m)
}

func (n *Node) onChain(p *Peer, m *Message) {
	chain, err := ledger.DecodeChain(m.Data)
	if err != nil {
		p.logger.WithError(err).Warn("discarding chain")
		return
	}

	if len(chain) <= n.ledger.Len() {
		return
	}

	if err := n.ledger.ReplaceChain(chain); err != nil {
		p.logger.WithError(err).WithField("length", len(chain)).Warn("rejected chain")
		return
	}

	p.logger.WithField("length", len(chain)).Info("adopted longer chain")
}

func (n *Node) onNewBlock(p *Peer, m *Message) {
	b := &ledger.Block{}
	if err := m.Decode(b); err != nil {
		p.logger.WithError(err).Warn("discarding block")
		return
	}

	err := n.ledger.AddBlock(b)
	if err == nil {
		relay, err := NewMessage(MsgTypeNewBlock, b)
		if err != nil {
			n.logger.WithError(err).Error("encoding block")
			return
		}
		n.broadcastExcept(relay, p)
		return
	}

	l := p.logger.WithError(err).WithField("index", b.Index)

	// a block ahead of our tip means we are missing history
	if errors.Is(err, ledger.ErrBlockMismatch) && b.Index >= uint64(n.ledger.Len()) {
		l.Debug("block does not fit, requesting chain")
		n.requestChain(p)
		return
	}

	l.Debug("ignoring block")
}

func (n *Node) onNewTransaction(p *Peer, m *Message) {
	tx := &ledger.Transaction{}
	if err := m.Decode(tx); err != nil {
		p.logger.WithError(err).Warn("discarding transaction")
		return
	}

	h, err := tx.Hash()
	if err != nil {
		p.logger.WithError(err).Warn("discarding transaction")
		return
	}

	// The hash leaves out the signature, so only votes this node accepted
	// are remembered. A forged or early copy must not shadow the real one.
	if n.seen.Contains(h) {
		return
	}

	if err := n.ledger.VerifySignature(tx); err != nil {
		p.logger.WithError(err).WithField("hash", h).Warn("discarding transaction")
		return
	}

	stored, err := n.ledger.ReceiveTransaction(tx)
	if err != nil {
		p.logger.WithError(err).WithField("hash", h).Debug("transaction not accepted")
		return
	}

	n.seen.Add(h, struct{}{})
	if sh, err := stored.Hash(); err == nil && sh != h {
		n.seen.Add(sh, struct{}{})
	}

	relay, err := NewMessage(MsgTypeNewTransaction, stored)
	if err != nil {
		n.logger.WithError(err).Error("encoding transaction")
		return
	}

	n.broadcastExcept(relay, p)
}

func (n *Node) onGetPeers(p *Peer) {
	m, err := NewMessage(MsgTypePeers, n.KnownPeers())
	if err != nil {
		n.logger.WithError(err).Error("encoding peers")
		return
	}

	n.send(p, m)
}

func (n *Node) onPeers(p *Peer, m *Message) {
	addrs := []PeerAddr{}
	if err := m.Decode(&addrs); err != nil {
		p.logger.WithError(err).Warn("discarding peers")
		return
	}

	for _, a := range addrs {
		if n.isSelf(a) {
			continue
		}

		n.AddKnownPeer(a)

		if n.connectedTo(a) || !coinflip.Chance(n.dialProb) {
			continue
		}

		go func(a PeerAddr) {
			ctx, cancel := context.WithTimeout(n.ctx, n.dialTimeout)
			defer cancel()

			if err := n.Connect(ctx, a); err != nil {
				n.logger.WithError(err).WithField("peer", a.String()).Debug("dialing learned peer")
			}
		}(a)
	}
}
