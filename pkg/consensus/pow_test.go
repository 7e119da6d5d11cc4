package consensus

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testBlock struct {
	pre   []byte
	nonce uint64
	hash  string
}

func (b *testBlock) Preimage() ([]byte, error) { return b.pre, nil }

func (b *testBlock) Seal(nonce uint64, hash string) {
	b.nonce = nonce
	b.hash = hash
}

func (b *testBlock) StoredHash() string { return b.hash }

func TestMineDifficultyZero(t *testing.T) {
	p := NewProofOfWork(0)
	b := &testBlock{pre: []byte("1abc")}

	if err := p.Mine(context.Background(), b); err != nil {
		t.Fatal(err)
	}

	assert.Equal(t, uint64(0), b.nonce)
	assert.Equal(t, HashNonce(b.pre, 0), b.hash)
	assert.True(t, p.Validate(b))
}

func TestMineMeetsTarget(t *testing.T) {
	p := NewProofOfWork(2)
	assert.Equal(t, "00", p.Target())

	b := &testBlock{pre: []byte("1prev0[]")}

	if err := p.Mine(context.Background(), b); err != nil {
		t.Fatal(err)
	}

	assert.True(t, strings.HasPrefix(b.hash, "00"))
	assert.Equal(t, HashNonce(b.pre, b.nonce), b.hash)
	assert.True(t, p.Validate(b))
}

func TestValidateDoesNotRecompute(t *testing.T) {
	p := NewProofOfWork(3)

	b := &testBlock{pre: []byte("x"), hash: "000garbage"}
	assert.True(t, p.Validate(b))

	b.hash = "abc"
	assert.False(t, p.Validate(b))
}

func TestMineCancelled(t *testing.T) {
	p := NewProofOfWork(64)
	b := &testBlock{pre: []byte("never")}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := p.Mine(ctx, b)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Empty(t, b.hash)
}

func TestMinerSubmit(t *testing.T) {
	m := NewMiner(NewProofOfWork(1))
	defer m.Stop()

	b := &testBlock{pre: []byte("job")}

	res := <-m.Submit(context.Background(), b)
	require.NoError(t, res.Err)
	assert.True(t, strings.HasPrefix(b.hash, "0"))
}

func TestMinerStopCancelsJob(t *testing.T) {
	m := NewMiner(NewProofOfWork(64))

	ch := m.Submit(context.Background(), &testBlock{pre: []byte("never")})

	m.Stop()

	select {
	case res := <-ch:
		assert.Error(t, res.Err)
	case <-time.After(2 * time.Second):
		t.Fatal("miner did not stop")
	}

	res := <-m.Submit(context.Background(), &testBlock{})
	assert.ErrorIs(t, res.Err, ErrMinerStopped)
}
