package p2p

import (
	"context"
	"net"
	"sort"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/tcfw/votem/internal/coinflip"
	"github.com/tcfw/votem/internal/metrics"
	"github.com/tcfw/votem/internal/utils/logging"
	"github.com/tcfw/votem/pkg/ledger"
)

const (
	DefaultPort            = 8333
	DefaultSeenCacheSize   = 4096
	DefaultDialProbability = 0.3
	DefaultDialTimeout     = 5 * time.Second

	stopTimeout = 2 * time.Second

	minNodeID = 1000000
	maxNodeID = 9999999
)

var (
	ErrNodeStopped = errors.New("node stopped")
	ErrSelfDial    = errors.New("refusing to dial self")

	_ ledger.Broadcaster = (*Node)(nil)
)

// Ledger is the part of the ledger the protocol drives.
type Ledger interface {
	ChainData() []*ledger.Block
	Len() int
	ReplaceChain([]*ledger.Block) error
	AddBlock(*ledger.Block) error
	ReceiveTransaction(*ledger.Transaction) (*ledger.Transaction, error)
	VerifySignature(*ledger.Transaction) error
}

// Node replicates a ledger over plain TCP connections.
type Node struct {
	id     int64
	ledger Ledger
	logger *logrus.Entry

	listen PeerAddr
	self   PeerAddr
	server *Server

	seen        *lru.Cache
	seenSize    int
	dialProb    float64
	dialTimeout time.Duration

	mu       sync.Mutex
	peers    map[*Peer]struct{}
	outbound map[string]*Peer
	known    map[PeerAddr]struct{}
	stopped  bool

	ctx    context.Context
	cancel context.CancelFunc
}

func NewNode(l Ledger, opts ...Option) (*Node, error) {
	ctx, cancel := context.WithCancel(context.Background())

	n := &Node{
		id:          coinflip.Between(minNodeID, maxNodeID),
		ledger:      l,
		logger:      logging.Component("p2p"),
		listen:      PeerAddr{Host: "0.0.0.0", Port: DefaultPort},
		seenSize:    DefaultSeenCacheSize,
		dialProb:    DefaultDialProbability,
		dialTimeout: DefaultDialTimeout,
		peers:       make(map[*Peer]struct{}),
		outbound:    make(map[string]*Peer),
		known:       make(map[PeerAddr]struct{}),
		ctx:         ctx,
		cancel:      cancel,
	}

	for _, opt := range opts {
		if err := opt(n); err != nil {
			cancel()
			return nil, err
		}
	}

	seen, err := lru.New(n.seenSize)
	if err != nil {
		cancel()
		return nil, errors.Wrap(err, "creating seen cache")
	}
	n.seen = seen

	n.logger = n.logger.WithField("node", n.id)

	return n, nil
}

func (n *Node) ID() int64 {
	return n.id
}

// Addr is the address the node accepts connections on.
func (n *Node) Addr() PeerAddr {
	n.mu.Lock()
	defer n.mu.Unlock()

	return n.self
}

// Start begins accepting inbound connections.
func (n *Node) Start() error {
	s, err := Listen(n.listen.String(), n.accept, n.logger)
	if err != nil {
		return err
	}

	n.mu.Lock()
	n.server = s
	n.self = PeerAddr{Host: n.listen.Host, Port: s.Addr().Port}
	n.mu.Unlock()

	n.logger.WithField("addr", n.self.String()).Info("listening for peers")

	return nil
}

func (n *Node) accept(conn net.Conn) {
	if _, err := n.addPeer(conn, nil); err != nil {
		n.logger.WithError(err).Debug("rejecting inbound peer")
	}
}

// Connect dials addr unless it is this node or already connected.
func (n *Node) Connect(ctx context.Context, addr PeerAddr) error {
	if n.isSelf(addr) {
		return ErrSelfDial
	}

	if n.connectedTo(addr) {
		return nil
	}

	d := net.Dialer{Timeout: n.dialTimeout}
	conn, err := d.DialContext(ctx, "tcp", addr.String())
	if err != nil {
		return errors.Wrapf(err, "dialing %s", addr)
	}

	if _, err := n.addPeer(conn, &addr); err != nil {
		return err
	}

	n.logger.WithField("peer", addr.String()).Info("connected to peer")

	return nil
}

func (n *Node) addPeer(conn net.Conn, addr *PeerAddr) (*Peer, error) {
	p := newPeer(conn, addr, n.handle, n.removePeer, n.logger)

	n.mu.Lock()
	if n.stopped {
		n.mu.Unlock()
		conn.Close()
		return nil, ErrNodeStopped
	}

	if addr != nil {
		if _, ok := n.outbound[addr.String()]; ok {
			n.mu.Unlock()
			conn.Close()
			return nil, nil
		}
		n.outbound[addr.String()] = p
		n.known[*addr] = struct{}{}
	}

	n.peers[p] = struct{}{}
	metrics.Peers.Set(float64(len(n.peers)))
	n.mu.Unlock()

	p.start()

	n.requestChain(p)
	n.requestPeers(p)

	return p, nil
}

func (n *Node) removePeer(p *Peer) {
	n.mu.Lock()
	defer n.mu.Unlock()

	delete(n.peers, p)
	if a := p.Addr(); a != nil && n.outbound[a.String()] == p {
		delete(n.outbound, a.String())
	}

	metrics.Peers.Set(float64(len(n.peers)))

	p.logger.Debug("peer disconnected")
}

func (n *Node) Peers() []*Peer {
	n.mu.Lock()
	defer n.mu.Unlock()

	ps := make([]*Peer, 0, len(n.peers))
	for p := range n.peers {
		ps = append(ps, p)
	}

	return ps
}

func (n *Node) KnownPeers() []PeerAddr {
	n.mu.Lock()
	defer n.mu.Unlock()

	ks := make([]PeerAddr, 0, len(n.known))
	for k := range n.known {
		ks = append(ks, k)
	}

	sort.Slice(ks, func(i, j int) bool { return ks[i].String() < ks[j].String() })

	return ks
}

func (n *Node) AddKnownPeer(a PeerAddr) {
	if n.isSelf(a) {
		return
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	n.known[a] = struct{}{}
}

func (n *Node) connectedTo(a PeerAddr) bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	_, ok := n.outbound[a.String()]
	return ok
}

func (n *Node) isSelf(a PeerAddr) bool {
	n.mu.Lock()
	self := n.self
	n.mu.Unlock()

	if self.Port == 0 || a.Port != self.Port {
		return false
	}

	if a.Host == self.Host {
		return true
	}

	return isLocalHost(a.Host) && isLocalHost(self.Host)
}

func isLocalHost(h string) bool {
	switch h {
	case "", "localhost", "0.0.0.0", "::":
		return true
	}

	ip := net.ParseIP(h)
	return ip != nil && ip.IsLoopback()
}

func (n *Node) send(p *Peer, m *Message) {
	m.SenderID = n.id

	if err := p.Send(m); err != nil {
		p.logger.WithError(err).Debug("send failed, disconnecting")
		p.Close()
	}
}

// Broadcast sends m to every live peer. A peer that fails is disconnected.
func (n *Node) Broadcast(m *Message) {
	n.broadcastExcept(m, nil)
}

func (n *Node) broadcastExcept(m *Message, except *Peer) {
	m.SenderID = n.id

	for _, p := range n.Peers() {
		if p == except {
			continue
		}
		n.send(p, m)
	}
}

func (n *Node) BroadcastTransaction(tx *ledger.Transaction) {
	if h, err := tx.Hash(); err == nil {
		n.seen.Add(h, struct{}{})
	}

	m, err := NewMessage(MsgTypeNewTransaction, tx)
	if err != nil {
		n.logger.WithError(err).Error("encoding transaction")
		return
	}

	n.Broadcast(m)
}

func (n *Node) BroadcastBlock(b *ledger.Block) {
	m, err := NewMessage(MsgTypeNewBlock, b)
	if err != nil {
		n.logger.WithError(err).Error("encoding block")
		return
	}

	n.Broadcast(m)
}

func (n *Node) requestChain(p *Peer) {
	m, _ := NewMessage(MsgTypeGetChain, nil)
	n.send(p, m)
}

func (n *Node) requestPeers(p *Peer) {
	m, _ := NewMessage(MsgTypeGetPeers, nil)
	n.send(p, m)
}

// Stop closes the listener, disconnects every peer and waits a bounded time
// for their read loops to exit.
func (n *Node) Stop() error {
	n.mu.Lock()
	if n.stopped {
		n.mu.Unlock()
		return nil
	}
	n.stopped = true
	server := n.server
	n.mu.Unlock()

	n.cancel()

	var err error
	if server != nil {
		err = server.Close()
	}

	peers := n.Peers()
	for _, p := range peers {
		p.Close()
	}

	timeout := time.NewTimer(stopTimeout)
	defer timeout.Stop()

	for _, p := range peers {
		select {
		case <-p.Done():
		case <-timeout.C:
			n.logger.Warn("timed out waiting for peers to disconnect")
			return err
		}
	}

	n.logger.Info("stopped")

	return err
}
