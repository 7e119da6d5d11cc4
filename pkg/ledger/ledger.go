package ledger

import (
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/tcfw/votem/internal/metrics"
	"github.com/tcfw/votem/internal/utils/logging"
	"github.com/tcfw/votem/pkg/admission"
	"github.com/tcfw/votem/pkg/consensus"
	"github.com/tcfw/votem/pkg/cryptography"
	"github.com/tcfw/votem/pkg/tally"
)

const (
	DefaultMiningReward = 1
)

var (
	DefaultCandidates = []string{"Alice", "Bob"}
)

// Broadcaster is told about local changes so they can be sent to peers.
// Calls are made without holding the ledger lock.
type Broadcaster interface {
	BroadcastTransaction(*Transaction)
	BroadcastBlock(*Block)
}

// Ledger owns the chain, the mempool and the record of who has voted. All
// methods are safe for concurrent use.
type Ledger struct {
	mu sync.RWMutex

	chain       []*Block
	mempool     *TxMemPool
	votesCast   map[string]struct{}
	minedVoters map[string]struct{}
	candidates  map[string]struct{}
	defaults    []string

	difficulty int
	reward     int64
	pow        *consensus.ProofOfWork
	miner      *consensus.Miner
	registry   *admission.Registry
	scheme     *tally.Scheme
	logger     *logrus.Entry
	now        func() time.Time

	bMu         sync.RWMutex
	broadcaster Broadcaster
}

func New(opts ...Option) (*Ledger, error) {
	l := &Ledger{
		chain:       []*Block{Genesis()},
		mempool:     NewTxMemPool(),
		votesCast:   make(map[string]struct{}),
		minedVoters: make(map[string]struct{}),
		candidates:  make(map[string]struct{}),
		defaults:    append([]string(nil), DefaultCandidates...),
		difficulty:  consensus.DefaultDifficulty,
		reward:      DefaultMiningReward,
		logger:      logging.Component("ledger"),
		now:         time.Now,
	}

	for _, opt := range opts {
		if err := opt(l); err != nil {
			return nil, err
		}
	}

	if l.registry == nil {
		r, err := admission.NewRegistry()
		if err != nil {
			return nil, errors.Wrap(err, "creating voter registry")
		}
		l.registry = r
	}

	if l.scheme == nil {
		s, err := tally.NewScheme(tally.DefaultBits)
		if err != nil {
			return nil, errors.Wrap(err, "creating tally scheme")
		}
		l.scheme = s
	}

	l.pow = consensus.NewProofOfWork(l.difficulty)
	l.miner = consensus.NewMiner(l.pow)

	metrics.ChainHeight.Set(1)

	return l, nil
}

// Close stops the mining worker.
func (l *Ledger) Close() {
	l.miner.Stop()
}

func (l *Ledger) SetBroadcaster(b Broadcaster) {
	l.bMu.Lock()
	defer l.bMu.Unlock()

	l.broadcaster = b
}

func (l *Ledger) getBroadcaster() Broadcaster {
	l.bMu.RLock()
	defer l.bMu.RUnlock()

	return l.broadcaster
}

func (l *Ledger) Registry() *admission.Registry {
	return l.registry
}

func (l *Ledger) Scheme() *tally.Scheme {
	return l.scheme
}

func (l *Ledger) Difficulty() int {
	return l.difficulty
}

// AddTransaction admits a locally submitted vote and broadcasts the stored
// encrypted form.
func (l *Ledger) AddTransaction(tx *Transaction) (*Transaction, error) {
	stored, err := l.admit(tx)
	if err != nil {
		return nil, err
	}

	if b := l.getBroadcaster(); b != nil {
		b.BroadcastTransaction(stored.Clone())
	}

	return stored.Clone(), nil
}

// ReceiveTransaction admits a vote relayed by a peer. It applies the same
// checks as AddTransaction but does not broadcast.
func (l *Ledger) ReceiveTransaction(tx *Transaction) (*Transaction, error) {
	stored, err := l.admit(tx)
	if err != nil {
		return nil, err
	}

	return stored.Clone(), nil
}

func (l *Ledger) admit(tx *Transaction) (*Transaction, error) {
	if tx == nil {
		return nil, ErrMalformedTx
	}

	if tx.IsReward() || tx.Data.Kind == PayloadReward {
		return nil, l.reject(tx, ErrRewardSubmitted, "reward")
	}

	chosen, err := l.choiceOf(tx)
	if err != nil {
		return nil, l.reject(tx, err, "malformed")
	}

	if err := l.verifyChoice(tx, chosen); err != nil {
		return nil, l.reject(tx, err, "signature")
	}

	if !l.registry.IsRegistered(tx.Sender) {
		return nil, l.reject(tx, ErrNotRegistered, "not_registered")
	}

	if !l.registry.IsVerified(tx.Sender) {
		return nil, l.reject(tx, ErrNotVerified, "not_verified")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.votesCast[tx.Sender]; ok {
		return nil, l.reject(tx, ErrAlreadyVoted, "already_voted")
	}

	var stored *Transaction

	switch tx.Data.Kind {
	case PayloadPlain:
		l.candidates[chosen] = struct{}{}
		stored = &Transaction{
			Sender:    tx.Sender,
			Recipient: tx.Recipient,
			Data:      EncryptedVote(l.scheme.EncryptBallot(chosen, l.candidateListLocked())),
			Signature: tx.Signature,
		}
	default:
		stored = tx.Clone()
		l.extendCandidatesLocked(stored)
	}

	l.mempool.AddTx(stored)
	l.votesCast[tx.Sender] = struct{}{}

	metrics.TransactionsAccepted.Inc()
	l.logger.WithField("sender", tx.Sender).Debug("accepted vote")

	return stored, nil
}

func (l *Ledger) reject(tx *Transaction, err error, reason string) error {
	metrics.TransactionsRejected.WithLabelValues(reason).Inc()
	l.logger.WithError(err).WithField("sender", tx.Sender).Debug("rejected transaction")

	return err
}

// choiceOf returns the candidate a vote is for. Encrypted ballots must be
// well formed.
func (l *Ledger) choiceOf(tx *Transaction) (string, error) {
	switch tx.Data.Kind {
	case PayloadPlain:
		if tx.Data.Candidate == "" {
			return "", errors.Wrap(ErrMalformedTx, "empty candidate")
		}
		return tx.Data.Candidate, nil
	case PayloadEncrypted:
		return l.scheme.ValidateBallot(tx.Data.Ballot)
	default:
		return "", errors.Wrapf(ErrMalformedTx, "unexpected %s payload", tx.Data.Kind)
	}
}

// VerifySignature checks the sender signed the plain form of the vote.
// Reward transactions are exempt.
func (l *Ledger) VerifySignature(tx *Transaction) error {
	if tx.IsReward() {
		return nil
	}

	chosen, err := l.choiceOf(tx)
	if err != nil {
		return err
	}

	return l.verifyChoice(tx, chosen)
}

func (l *Ledger) verifyChoice(tx *Transaction, chosen string) error {
	plain := &Transaction{
		Sender:    tx.Sender,
		Recipient: tx.Recipient,
		Data:      PlainVote(chosen),
	}

	d, err := plain.digest()
	if err != nil {
		return errors.Wrap(ErrBadSignature, err.Error())
	}

	if err := cryptography.VerifyAddress(d, tx.Signature, tx.Sender); err != nil {
		return errors.Wrap(ErrBadSignature, err.Error())
	}

	return nil
}

func (l *Ledger) extendCandidatesLocked(tx *Transaction) {
	for c := range tx.Data.Ballot {
		l.candidates[c] = struct{}{}
	}
}

// candidateListLocked returns the observed candidates, or the defaults when
// no vote has named one yet.
func (l *Ledger) candidateListLocked() []string {
	if len(l.candidates) == 0 {
		c := append([]string(nil), l.defaults...)
		sort.Strings(c)
		return c
	}

	c := make([]string, 0, len(l.candidates))
	for k := range l.candidates {
		c = append(c, k)
	}
	sort.Strings(c)

	return c
}

// Candidates returns every candidate named by a pending or mined vote in
// sorted order, falling back to the defaults before any vote is seen.
func (l *Ledger) Candidates() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.candidateListLocked()
}

func (l *Ledger) RegisterVoter(addr string) (*admission.AuthFactors, error) {
	return l.registry.RegisterVoter(addr)
}

func (l *Ledger) VerifyOTP(addr string, code string) error {
	return l.registry.VerifyOTP(addr, code)
}

func (l *Ledger) IsRegistered(addr string) bool {
	return l.registry.IsRegistered(addr)
}

func (l *Ledger) IsVerified(addr string) bool {
	return l.registry.IsVerified(addr)
}

// HasVoted reports whether addr has a pending or mined vote.
func (l *Ledger) HasVoted(addr string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()

	_, ok := l.votesCast[addr]
	return ok
}

func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return len(l.chain)
}

func (l *Ledger) Tip() *Block {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return l.chain[len(l.chain)-1].Clone()
}

func (l *Ledger) Pending() []*Transaction {
	l.mu.RLock()
	defer l.mu.RUnlock()

	s := l.mempool.Snapshot()
	for i, t := range s {
		s[i] = t.Clone()
	}

	return s
}

// ChainData returns a deep copy of the chain.
func (l *Ledger) ChainData() []*Block {
	l.mu.RLock()
	defer l.mu.RUnlock()

	c := make([]*Block, len(l.chain))
	for i, b := range l.chain {
		c[i] = b.Clone()
	}

	return c
}
