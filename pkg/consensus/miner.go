package consensus

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/tcfw/votem/internal/utils/logging"
)

var (
	ErrMinerStopped = errors.New("miner stopped")
)

type Result struct {
	Err error
}

type job struct {
	ctx   context.Context
	block Sealable
	res   chan Result
}

// Miner runs mining jobs one at a time on a dedicated goroutine.
type Miner struct {
	pow    *ProofOfWork
	jobs   chan job
	logger *logrus.Entry

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewMiner(pow *ProofOfWork) *Miner {
	ctx, cancel := context.WithCancel(context.Background())

	m := &Miner{
		pow:    pow,
		jobs:   make(chan job),
		logger: logging.Component("miner"),
		ctx:    ctx,
		cancel: cancel,
	}

	m.wg.Add(1)
	go m.run()

	return m
}

func (m *Miner) run() {
	defer m.wg.Done()

	for {
		select {
		case <-m.ctx.Done():
			return
		case j := <-m.jobs:
			m.mine(j)
		}
	}
}

func (m *Miner) mine(j job) {
	ctx, cancel := context.WithCancel(j.ctx)
	stop := context.AfterFunc(m.ctx, cancel)
	defer func() {
		stop()
		cancel()
	}()

	err := m.pow.Mine(ctx, j.block)
	if err != nil {
		m.logger.WithError(err).Debug("mining aborted")
	} else {
		m.logger.WithField("hash", j.block.StoredHash()).Debug("sealed block")
	}

	j.res <- Result{Err: err}
}

// Submit queues a block for mining. The returned channel receives exactly
// one result.
func (m *Miner) Submit(ctx context.Context, b Sealable) <-chan Result {
	res := make(chan Result, 1)

	select {
	case m.jobs <- job{ctx: ctx, block: b, res: res}:
	case <-m.ctx.Done():
		res <- Result{Err: ErrMinerStopped}
	case <-ctx.Done():
		res <- Result{Err: ctx.Err()}
	}

	return res
}

// Stop cancels any in-flight job and waits for the worker to exit.
func (m *Miner) Stop() {
	m.cancel()
	m.wg.Wait()
}
