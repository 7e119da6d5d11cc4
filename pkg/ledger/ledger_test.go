package ledger

import (
	"context"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestRegisterVoteMineTally(t *testing.T) {
	l := newTestLedger(t)
	v := newVoter(t, l)

	stored, err := l.AddTransaction(signedVote(t, v, "Alice"))
	if err != nil {
		t.Fatal(err)
	}

	assert.Equal(t, PayloadEncrypted, stored.Data.Kind)
	assert.Equal(t, []string{"Alice"}, stored.Data.Ballot.Candidates())
	assert.True(t, l.HasVoted(v.Address()))

	b, err := l.MinePendingTransactions(context.Background(), "miner")
	if err != nil {
		t.Fatal(err)
	}

	assert.Equal(t, uint64(1), b.Index)
	assert.Len(t, b.Transactions, 2)
	assert.True(t, b.Transactions[1].IsReward())
	assert.Equal(t, int64(DefaultMiningReward), b.Transactions[1].Data.Amount)

	assert.Equal(t, 2, l.Len())
	assert.Empty(t, l.Pending())
	assert.True(t, l.IsChainValid())

	res, err := l.TallyEncryptedVotes()
	if err != nil {
		t.Fatal(err)
	}

	assert.Equal(t, map[string]int{"Alice": 1}, res)
}

func TestRepeatVote(t *testing.T) {
	l := newTestLedger(t)
	v := newVoter(t, l)

	_, err := l.AddTransaction(signedVote(t, v, "Alice"))
	require.NoError(t, err)

	_, err = l.AddTransaction(signedVote(t, v, "Bob"))
	assert.ErrorIs(t, err, ErrAlreadyVoted)

	_, err = l.MinePendingTransactions(context.Background(), "miner")
	require.NoError(t, err)

	_, err = l.AddTransaction(signedVote(t, v, "Bob"))
	assert.ErrorIs(t, err, ErrAlreadyVoted)
}

func TestAdmissionChecks(t *testing.T) {
	l := newTestLedger(t)

	unregistered := newKey(t)
	_, err := l.AddTransaction(signedVote(t, unregistered, "Alice"))
	assert.ErrorIs(t, err, ErrNotRegistered)

	unverified := newKey(t)
	_, err = l.RegisterVoter(unverified.Address())
	require.NoError(t, err)
	_, err = l.AddTransaction(signedVote(t, unverified, "Alice"))
	assert.ErrorIs(t, err, ErrNotVerified)

	v := newVoter(t, l)

	tampered := signedVote(t, v, "Alice")
	tampered.Data = PlainVote("Bob")
	_, err = l.AddTransaction(tampered)
	assert.ErrorIs(t, err, ErrBadSignature)

	unsigned := NewVote(v.Address(), "Alice")
	_, err = l.AddTransaction(unsigned)
	assert.ErrorIs(t, err, ErrBadSignature)

	_, err = l.AddTransaction(NewReward(v.Address(), 100))
	assert.ErrorIs(t, err, ErrRewardSubmitted)

	stuffed := &Transaction{
		Sender:    v.Address(),
		Recipient: ElectionRecipient,
		Data: EncryptedVote(map[string]*big.Int{
			"Alice": big.NewInt(3),
			"Bob":   big.NewInt(3),
		}),
	}
	_, err = l.AddTransaction(stuffed)
	assert.ErrorIs(t, err, ErrMalformedBallot)

	assert.False(t, l.HasVoted(v.Address()))
	assert.Empty(t, l.Pending())
}

func TestTallyCountsEveryVote(t *testing.T) {
	l := newTestLedger(t)

	const k = 25
	for i := 0; i < k; i++ {
		v := newVoter(t, l)
		candidate := "Alice"
		if i%5 == 0 {
			candidate = "Bob"
		}

		_, err := l.AddTransaction(signedVote(t, v, candidate))
		require.NoError(t, err)
	}

	_, err := l.MinePendingTransactions(context.Background(), "miner")
	require.NoError(t, err)

	res, err := l.TallyEncryptedVotes()
	require.NoError(t, err)

	assert.Equal(t, 20, res["Alice"])
	assert.Equal(t, 5, res["Bob"])
	assert.Equal(t, k, res["Alice"]+res["Bob"])
}

func TestPendingVotesNotTallied(t *testing.T) {
	l := newTestLedger(t)
	v := newVoter(t, l)

	_, err := l.AddTransaction(signedVote(t, v, "Alice"))
	require.NoError(t, err)

	res, err := l.TallyEncryptedVotes()
	require.NoError(t, err)
	assert.Equal(t, 0, res["Alice"])
}

func TestCandidatesExtend(t *testing.T) {
	l := newTestLedger(t)
	assert.Equal(t, []string{"Alice", "Bob"}, l.Candidates())

	res, err := l.TallyEncryptedVotes()
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"Alice": 0, "Bob": 0}, res)

	v := newVoter(t, l)
	stored, err := l.AddTransaction(signedVote(t, v, "Carol"))
	require.NoError(t, err)

	assert.Equal(t, []string{"Carol"}, l.Candidates())
	assert.Len(t, stored.Data.Ballot, 1)

	res, err = l.TallyEncryptedVotes()
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"Carol": 0}, res)

	d := newVoter(t, l)
	stored, err = l.AddTransaction(signedVote(t, d, "Alice"))
	require.NoError(t, err)

	assert.Equal(t, []string{"Alice", "Carol"}, l.Candidates())
	assert.Equal(t, []string{"Alice", "Carol"}, stored.Data.Ballot.Candidates())

	c := newTestLedger(t, WithCandidates("X", "Y"))
	assert.Equal(t, []string{"X", "Y"}, c.Candidates())

	x := newVoter(t, c)
	_, err = c.AddTransaction(signedVote(t, x, "Y"))
	require.NoError(t, err)
	assert.Equal(t, []string{"Y"}, c.Candidates())
}

func TestCandidatesFollowReplacedChain(t *testing.T) {
	a := newTestLedger(t)
	mineVotes(t, a, 2)

	b := newTestLedger(t)
	v := newVoter(t, b)
	_, err := b.AddTransaction(signedVote(t, v, "Dave"))
	require.NoError(t, err)
	require.Equal(t, []string{"Dave"}, b.Candidates())

	require.NoError(t, b.ReplaceChain(a.ChainData()))
	assert.Equal(t, []string{"Alice", "Dave"}, b.Candidates())

	c := newTestLedger(t)
	require.NoError(t, c.ReplaceChain(a.ChainData()))
	assert.Equal(t, []string{"Alice"}, c.Candidates())
}

func TestConcurrentVotesSameVoter(t *testing.T) {
	l := newTestLedger(t)
	v := newVoter(t, l)

	const n = 16

	txs := make([]*Transaction, n)
	for i := range txs {
		txs[i] = signedVote(t, v, "Alice")
	}

	var wg sync.WaitGroup
	errs := make(chan error, n)

	for _, tx := range txs {
		tx := tx
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := l.AddTransaction(tx)
			errs <- err
		}()
	}

	wg.Wait()
	close(errs)

	accepted := 0
	for err := range errs {
		if err == nil {
			accepted++
			continue
		}
		assert.ErrorIs(t, err, ErrAlreadyVoted)
	}

	assert.Equal(t, 1, accepted)
	assert.Len(t, l.Pending(), 1)
}

// TestMineStaleTip moves the chain on while a block is being mined.
func TestMineStaleTip(t *testing.T) {
	tests := []struct {
		name    string
		advance func(l, other *Ledger) error
	}{
		{"add block", func(l, other *Ledger) error { return l.AddBlock(other.Tip()) }},
		{"replace chain", func(l, other *Ledger) error { return l.ReplaceChain(other.ChainData()) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := newTestLedger(t)
			other := newTestLedger(t, WithRegistry(l.Registry()))
			mineVotes(t, other, 1)

			v := newVoter(t, l)
			if _, err := l.AddTransaction(signedVote(t, v, "Bob")); err != nil {
				t.Fatal(err)
			}

			building := make(chan struct{})
			release := make(chan struct{})
			l.now = func() time.Time {
				close(building)
				<-release
				return time.Now()
			}

			errCh := make(chan error, 1)
			go func() {
				_, err := l.MinePendingTransactions(context.Background(), "miner")
				errCh <- err
			}()

			<-building
			err := tt.advance(l, other)
			close(release)
			require.NoError(t, err)

			select {
			case err := <-errCh:
				assert.ErrorIs(t, err, ErrStaleTip)
			case <-time.After(5 * time.Second):
				t.Fatal("mining did not finish")
			}

			assert.Equal(t, 2, l.Len())
			assert.Equal(t, other.Tip().Hash, l.Tip().Hash)
			assert.Len(t, l.Pending(), 1)
			assert.True(t, l.IsChainValid())
		})
	}
}

func TestEmptyMempool(t *testing.T) {
	l := newTestLedger(t)

	_, err := l.MinePendingTransactions(context.Background(), "miner")
	assert.ErrorIs(t, err, ErrEmptyMempool)
	assert.Equal(t, 1, l.Len())
}

func TestMineCancelled(t *testing.T) {
	l := newTestLedger(t, WithDifficulty(64))
	v := newVoter(t, l)

	_, err := l.AddTransaction(signedVote(t, v, "Alice"))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = l.MinePendingTransactions(ctx, "miner")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, l.Pending(), 1)
	assert.Equal(t, 1, l.Len())
}

func TestIsChainValidIsPure(t *testing.T) {
	l := newTestLedger(t)

	for i := 0; i < 3; i++ {
		v := newVoter(t, l)
		_, err := l.AddTransaction(signedVote(t, v, "Alice"))
		require.NoError(t, err)
		_, err = l.MinePendingTransactions(context.Background(), "miner")
		require.NoError(t, err)
	}

	before := l.ChainData()

	assert.True(t, l.IsChainValid())
	assert.True(t, l.IsChainValid())
	assert.Equal(t, before, l.ChainData())

	l.mu.Lock()
	l.chain[2].Transactions[1].Data.Amount = 1000
	l.mu.Unlock()

	assert.False(t, l.IsChainValid())
	assert.False(t, l.IsChainValid())
}

func TestBroadcastOnLocalChangesOnly(t *testing.T) {
	b := &mockBroadcaster{}
	b.On("BroadcastTransaction", mock.Anything).Once()
	b.On("BroadcastBlock", mock.Anything).Once()

	l := newTestLedger(t, WithBroadcaster(b))

	v := newVoter(t, l)
	_, err := l.AddTransaction(signedVote(t, v, "Alice"))
	require.NoError(t, err)

	relayed := newVoter(t, l)
	_, err = l.ReceiveTransaction(signedVote(t, relayed, "Bob"))
	require.NoError(t, err)

	_, err = l.MinePendingTransactions(context.Background(), "miner")
	require.NoError(t, err)

	b.AssertExpectations(t)
	b.AssertNumberOfCalls(t, "BroadcastTransaction", 1)

	sent := b.Calls[0].Arguments.Get(0).(*Transaction)
	assert.Equal(t, PayloadEncrypted, sent.Data.Kind)
}

func TestRelayedBallotAccepted(t *testing.T) {
	a := newTestLedger(t)
	b := newTestLedger(t, WithRegistry(a.Registry()))

	v := newVoter(t, a)

	stored, err := a.AddTransaction(signedVote(t, v, "Alice"))
	require.NoError(t, err)

	_, err = b.ReceiveTransaction(stored)
	require.NoError(t, err)
	assert.True(t, b.HasVoted(v.Address()))

	forged := stored.Clone()
	forged.Data = EncryptedVote(a.Scheme().EncryptBallot("Bob", []string{"Alice", "Bob"}))

	c := newTestLedger(t, WithRegistry(a.Registry()))
	_, err = c.ReceiveTransaction(forged)
	assert.ErrorIs(t, err, ErrBadSignature)
}

func TestInvalidOptions(t *testing.T) {
	_, err := New(WithDifficulty(-1), WithScheme(scheme(t)))
	assert.Error(t, err)

	_, err = New(WithMiningReward(-1), WithScheme(scheme(t)))
	assert.Error(t, err)

	_, err = New(WithCandidates(""), WithScheme(scheme(t)))
	assert.Error(t, err)
}
