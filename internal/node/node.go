package node

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/jpillora/backoff"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/tcfw/votem/internal/config"
	"github.com/tcfw/votem/internal/metrics"
	"github.com/tcfw/votem/internal/utils/logging"
	"github.com/tcfw/votem/pkg/ledger"
	"github.com/tcfw/votem/pkg/p2p"
	"github.com/tcfw/votem/pkg/storage"
	"github.com/tcfw/votem/pkg/tally"
	"golang.org/x/sync/errgroup"
)

const (
	bootstrapAttempts = 5
	shutdownTimeout   = 5 * time.Second
)

// Node assembles a ledger, its peer-to-peer replication and the chain
// store into one running process.
type Node struct {
	cfg    *config.Config
	ledger *ledger.Ledger
	p2p    *p2p.Node
	store  storage.Store

	logger *logrus.Entry

	stopOnce sync.Once
}

func (n *Node) Ledger() *ledger.Ledger {
	return n.ledger
}

func (n *Node) P2P() *p2p.Node {
	return n.p2p
}

func (n *Node) Store() storage.Store {
	return n.store
}

func NewNode(ctx context.Context, opts ...NodeOption) (*Node, error) {
	n := &Node{
		logger: logging.Component("daemon"),
	}

	for _, opt := range opts {
		if err := opt(n); err != nil {
			return nil, err
		}
	}

	if n.cfg == nil {
		cfg, err := config.GetConfig()
		if err != nil {
			return nil, err
		}
		n.cfg = cfg
	}

	chainCfg := n.cfg.Chain()

	scheme, err := tally.NewScheme(chainCfg.TallyBits)
	if err != nil {
		return nil, errors.Wrap(err, "creating tally scheme")
	}

	n.ledger, err = ledger.New(
		ledger.WithDifficulty(chainCfg.Difficulty),
		ledger.WithMiningReward(chainCfg.MiningReward),
		ledger.WithCandidates(chainCfg.Candidates...),
		ledger.WithScheme(scheme),
	)
	if err != nil {
		return nil, errors.Wrap(err, "creating ledger")
	}

	if n.store == nil {
		if chainCfg.DataDir == "" {
			n.logger.Warn("no data dir set, chain will not survive restarts")
			n.store = storage.NewMemStore()
		} else {
			n.store, err = storage.NewPebbleStore(chainCfg.DataDir)
			if err != nil {
				n.ledger.Close()
				return nil, errors.Wrap(err, "opening chain store")
			}
		}
	}

	n.restore(ctx)

	p2pCfg := n.cfg.P2P()

	n.p2p, err = p2p.NewNode(n.ledger,
		p2p.WithListenAddr(p2pCfg.Host, p2pCfg.Port),
		p2p.WithSeenCacheSize(p2pCfg.SeenCacheSize),
		p2p.WithDialTimeout(p2pCfg.DialTimeout),
		p2p.WithDialProbability(p2pCfg.DialProbability),
	)
	if err != nil {
		n.ledger.Close()
		n.store.Close()
		return nil, errors.Wrap(err, "creating p2p node")
	}

	n.ledger.SetBroadcaster(n.p2p)

	return n, nil
}

// restore adopts the stored chain. A missing or invalid chain leaves the
// ledger at genesis.
func (n *Node) restore(ctx context.Context) {
	chain, err := n.store.LoadChain(ctx)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			n.logger.WithError(err).Warn("loading stored chain")
		}
		return
	}

	if len(chain) <= n.ledger.Len() {
		return
	}

	if err := n.ledger.ReplaceChain(chain); err != nil {
		n.logger.WithError(err).Warn("stored chain rejected")
		return
	}

	n.logger.WithField("length", len(chain)).Info("restored chain")
}

// ListenAndServe runs the node until ctx is cancelled or a component fails.
func (n *Node) ListenAndServe(ctx context.Context) error {
	if err := n.p2p.Start(); err != nil {
		return errors.Wrap(err, "starting p2p")
	}

	g, ctx := errgroup.WithContext(ctx)

	for _, addr := range n.cfg.P2P().BootstrapPeers {
		addr := addr
		g.Go(func() error {
			n.bootstrap(ctx, addr)
			return nil
		})
	}

	g.Go(func() error {
		n.persistLoop(ctx)
		return nil
	})

	if n.cfg.Chain().MineInterval > 0 {
		g.Go(func() error {
			n.mineLoop(ctx)
			return nil
		})
	}

	if n.cfg.MetricsAddr != "" {
		srv := &http.Server{Addr: n.cfg.MetricsAddr, Handler: metricsMux()}

		g.Go(func() error {
			n.logger.WithField("addr", n.cfg.MetricsAddr).Info("serving metrics")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return errors.Wrap(err, "serving metrics")
			}
			return nil
		})

		g.Go(func() error {
			<-ctx.Done()
			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(sctx)
		})
	}

	return g.Wait()
}

func metricsMux() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	return mux
}

func (n *Node) bootstrap(ctx context.Context, addr string) {
	l := n.logger.WithField("peer", addr)

	pa, err := p2p.ParsePeerAddr(addr)
	if err != nil {
		l.WithError(err).Warn("invalid bootstrap peer")
		return
	}

	bo := &backoff.Backoff{
		Min:    500 * time.Millisecond,
		Max:    30 * time.Second,
		Jitter: true,
	}

	for {
		err := n.p2p.Connect(ctx, pa)
		if err == nil {
			return
		}

		if bo.Attempt()+1 >= bootstrapAttempts {
			l.WithError(err).Warn("giving up on bootstrap peer")
			return
		}

		d := bo.Duration()
		l.WithError(err).WithField("retry", d).Debug("failed to connect to bootstrap peer")

		select {
		case <-ctx.Done():
			return
		case <-time.After(d):
		}
	}
}

func (n *Node) mineLoop(ctx context.Context) {
	t := time.NewTicker(n.cfg.Chain().MineInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}

		if len(n.ledger.Pending()) == 0 {
			continue
		}

		b, err := n.ledger.MinePendingTransactions(ctx, n.cfg.Chain().MinerAddress)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			n.logger.WithError(err).Debug("mining pending votes")
			continue
		}

		n.logger.WithField("index", b.Index).WithField("hash", b.Hash).Info("mined block")
	}
}

func (n *Node) persistLoop(ctx context.Context) {
	interval := n.cfg.Chain().PersistInterval
	if interval <= 0 {
		return
	}

	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := n.persist(ctx); err != nil {
				n.logger.WithError(err).Error("persisting chain")
			}
		}
	}
}

func (n *Node) persist(ctx context.Context) error {
	return n.store.SaveChain(ctx, n.ledger.ChainData())
}

// Stop disconnects from peers, writes the chain out and closes the store.
func (n *Node) Stop() error {
	var err error

	n.stopOnce.Do(func() {
		n.logger.Warn("Shutting down")

		if perr := n.p2p.Stop(); perr != nil {
			n.logger.WithError(perr).Warn("stopping p2p")
		}

		n.ledger.Close()

		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err = n.persist(ctx); err != nil {
			err = errors.Wrap(err, "persisting chain")
		}

		if cerr := n.store.Close(); cerr != nil && err == nil {
			err = errors.Wrap(cerr, "closing store")
		}
	})

	return err
}
