package ledger

import (
	"context"

	"github.com/pkg/errors"
	"github.com/tcfw/votem/internal/metrics"
)

// MinePendingTransactions seals the current mempool plus a reward for
// miner into a new block. Mining runs without the ledger lock held; if the
// chain moves on meanwhile the block is discarded with ErrStaleTip and the
// mempool is left untouched.
func (l *Ledger) MinePendingTransactions(ctx context.Context, miner string) (*Block, error) {
	l.mu.RLock()
	pending := l.mempool.Snapshot()
	tip := l.chain[len(l.chain)-1]
	l.mu.RUnlock()

	if len(pending) == 0 {
		return nil, ErrEmptyMempool
	}

	txs := make([]*Transaction, 0, len(pending)+1)
	for _, t := range pending {
		txs = append(txs, t.Clone())
	}
	txs = append(txs, NewReward(miner, l.reward))

	b := &Block{
		Index:        tip.Index + 1,
		Timestamp:    float64(l.now().UnixMicro()) / 1e6,
		PreviousHash: tip.Hash,
		Transactions: txs,
	}

	res := <-l.miner.Submit(ctx, b)
	if res.Err != nil {
		return nil, errors.Wrap(res.Err, "mining block")
	}

	l.mu.Lock()
	cur := l.chain[len(l.chain)-1]
	if cur.Hash != b.PreviousHash || uint64(len(l.chain)) != b.Index {
		l.mu.Unlock()
		return nil, ErrStaleTip
	}

	l.chain = append(l.chain, b)
	l.mempool.Remove(pending)
	for _, t := range b.Transactions {
		if !t.IsReward() {
			l.minedVoters[t.Sender] = struct{}{}
		}
	}
	height := len(l.chain)
	l.mu.Unlock()

	metrics.BlocksMined.Inc()
	metrics.ChainHeight.Set(float64(height))

	l.logger.WithField("index", b.Index).WithField("hash", b.Hash).WithField("txs", len(b.Transactions)).Info("mined block")

	if bc := l.getBroadcaster(); bc != nil {
		bc.BroadcastBlock(b.Clone())
	}

	return b.Clone(), nil
}

// IsChainValid checks hash integrity, linkage and proof of work for every
// block after genesis. It does not modify the ledger.
func (l *Ledger) IsChainValid() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()

	for i := 1; i < len(l.chain); i++ {
		cur, prev := l.chain[i], l.chain[i-1]

		if cur.PreviousHash != prev.Hash {
			return false
		}

		if err := l.checkSeal(cur); err != nil {
			return false
		}
	}

	return true
}

func (l *Ledger) checkSeal(b *Block) error {
	h, err := b.ComputeHash()
	if err != nil {
		return err
	}

	if h != b.Hash {
		return errors.Errorf("block %d hash does not match contents", b.Index)
	}

	if !l.pow.Validate(b) {
		return errors.Errorf("block %d does not meet difficulty", b.Index)
	}

	return nil
}

// checkBlockTxs validates every transaction in b and returns its voters.
func (l *Ledger) checkBlockTxs(b *Block) ([]string, error) {
	voters := make([]string, 0, len(b.Transactions))
	seen := make(map[string]struct{}, len(b.Transactions))
	rewards := 0

	for _, t := range b.Transactions {
		if t == nil {
			return nil, errors.Wrap(ErrMalformedTx, "nil transaction")
		}

		if t.IsReward() {
			if t.Data.Kind != PayloadReward {
				return nil, errors.Wrap(ErrMalformedTx, "reward sender without reward payload")
			}
			if t.Data.Amount != l.reward {
				return nil, errors.Wrapf(ErrMalformedTx, "reward of %d, expected %d", t.Data.Amount, l.reward)
			}
			rewards++
			continue
		}

		if t.Data.Kind != PayloadEncrypted {
			return nil, errors.Wrapf(ErrMalformedTx, "%s payload in block", t.Data.Kind)
		}

		if err := l.VerifySignature(t); err != nil {
			return nil, err
		}

		if _, ok := seen[t.Sender]; ok {
			return nil, errors.Wrapf(ErrAlreadyVoted, "duplicate vote from %s", t.Sender)
		}
		seen[t.Sender] = struct{}{}
		voters = append(voters, t.Sender)
	}

	if rewards > 1 {
		return nil, errors.Wrap(ErrMalformedTx, "multiple rewards in block")
	}

	return voters, nil
}

// AddBlock appends a block received from a peer. It must directly extend
// the current tip.
func (l *Ledger) AddBlock(b *Block) error {
	if b == nil {
		return ErrBlockMismatch
	}

	voters, err := l.checkBlockTxs(b)
	if err != nil {
		return errors.Wrap(ErrBlockMismatch, err.Error())
	}

	if err := l.checkSeal(b); err != nil {
		return errors.Wrap(ErrBlockMismatch, err.Error())
	}

	l.mu.Lock()

	tip := l.chain[len(l.chain)-1]
	if b.Index != uint64(len(l.chain)) || b.PreviousHash != tip.Hash {
		l.mu.Unlock()
		return ErrBlockMismatch
	}

	for _, v := range voters {
		if _, ok := l.minedVoters[v]; ok {
			l.mu.Unlock()
			return errors.Wrapf(ErrBlockMismatch, "%s already voted on chain", v)
		}
	}

	blk := b.Clone()
	l.chain = append(l.chain, blk)

	fresh := make(map[string]struct{}, len(voters))
	for _, v := range voters {
		fresh[v] = struct{}{}
		l.minedVoters[v] = struct{}{}
		l.votesCast[v] = struct{}{}
	}

	for _, t := range blk.Transactions {
		if !t.IsReward() {
			l.extendCandidatesLocked(t)
		}
	}

	dropped := l.mempool.Filter(func(t *Transaction) bool {
		_, ok := fresh[t.Sender]
		return !ok
	})

	height := len(l.chain)
	l.mu.Unlock()

	metrics.BlocksAccepted.Inc()
	metrics.ChainHeight.Set(float64(height))

	l.logger.WithField("index", b.Index).WithField("hash", b.Hash).WithField("dropped", dropped).Info("accepted block")

	return nil
}

// validateChain runs full integrity validation on a candidate chain and
// returns the set of voters it contains.
func (l *Ledger) validateChain(chain []*Block) (map[string]struct{}, error) {
	if len(chain) == 0 {
		return nil, errors.New("empty chain")
	}

	g := chain[0]
	if g == nil || g.Hash != GenesisHash() || len(g.Transactions) != 0 {
		return nil, errors.New("genesis mismatch")
	}

	if h, err := g.ComputeHash(); err != nil || h != g.Hash {
		return nil, errors.New("genesis hash does not match contents")
	}

	voters := map[string]struct{}{}

	for i := 1; i < len(chain); i++ {
		cur, prev := chain[i], chain[i-1]
		if cur == nil {
			return nil, errors.Errorf("nil block at %d", i)
		}

		if cur.Index != uint64(i) {
			return nil, errors.Errorf("block %d has index %d", i, cur.Index)
		}

		if cur.PreviousHash != prev.Hash {
			return nil, errors.Errorf("block %d does not link to its parent", i)
		}

		if err := l.checkSeal(cur); err != nil {
			return nil, err
		}

		vs, err := l.checkBlockTxs(cur)
		if err != nil {
			return nil, errors.Wrapf(err, "block %d", i)
		}

		for _, v := range vs {
			if _, ok := voters[v]; ok {
				return nil, errors.Errorf("%s voted twice", v)
			}
			voters[v] = struct{}{}
		}
	}

	return voters, nil
}

// ReplaceChain swaps in a strictly longer valid chain. The record of who has
// voted is rebuilt from the new chain and the surviving mempool.
func (l *Ledger) ReplaceChain(candidate []*Block) error {
	if len(candidate) <= l.Len() {
		return ErrChainTooShort
	}

	voters, err := l.validateChain(candidate)
	if err != nil {
		return errors.Wrap(ErrInvalidChain, err.Error())
	}

	chain := make([]*Block, len(candidate))
	for i, b := range candidate {
		chain[i] = b.Clone()
	}

	l.mu.Lock()

	if len(chain) <= len(l.chain) {
		l.mu.Unlock()
		return ErrChainTooShort
	}

	l.chain = chain
	l.minedVoters = voters

	dropped := l.mempool.Filter(func(t *Transaction) bool {
		_, ok := voters[t.Sender]
		return !ok
	})

	l.votesCast = make(map[string]struct{}, len(voters)+l.mempool.Len())
	for v := range voters {
		l.votesCast[v] = struct{}{}
	}
	for _, t := range l.mempool.Snapshot() {
		l.votesCast[t.Sender] = struct{}{}
	}

	l.candidates = make(map[string]struct{})
	for _, b := range chain {
		for _, t := range b.Transactions {
			if !t.IsReward() {
				l.extendCandidatesLocked(t)
			}
		}
	}
	for _, t := range l.mempool.Snapshot() {
		l.extendCandidatesLocked(t)
	}

	height := len(l.chain)
	l.mu.Unlock()

	metrics.ChainHeight.Set(float64(height))

	l.logger.WithField("length", height).WithField("dropped", dropped).Info("replaced chain")

	return nil
}
