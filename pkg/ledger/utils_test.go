package ledger

import (
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/tcfw/votem/pkg/cryptography"
	"github.com/tcfw/votem/pkg/tally"
)

var testScheme *tally.Scheme

func scheme(t *testing.T) *tally.Scheme {
	if testScheme == nil {
		s, err := tally.NewScheme(256)
		if err != nil {
			t.Fatal(err)
		}
		testScheme = s
	}

	return testScheme
}

func newTestLedger(t *testing.T, opts ...Option) *Ledger {
	base := []Option{WithDifficulty(1), WithScheme(scheme(t))}

	l, err := New(append(base, opts...)...)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(l.Close)

	return l
}

func newKey(t *testing.T) *cryptography.Secp256k1PrivateKey {
	k, err := cryptography.NewSecp256k1PrivateKey()
	if err != nil {
		t.Fatal(err)
	}

	return k
}

// newVoter registers and verifies a fresh key with l.
func newVoter(t *testing.T, l *Ledger) *cryptography.Secp256k1PrivateKey {
	k := newKey(t)

	f, err := l.RegisterVoter(k.Address())
	if err != nil {
		t.Fatal(err)
	}

	if err := l.VerifyOTP(k.Address(), f.OTP); err != nil {
		t.Fatal(err)
	}

	return k
}

func signedVote(t *testing.T, k *cryptography.Secp256k1PrivateKey, candidate string) *Transaction {
	tx := NewVote(k.Address(), candidate)
	if err := tx.Sign(k); err != nil {
		t.Fatal(err)
	}

	return tx
}

type mockBroadcaster struct {
	mock.Mock
}

func (m *mockBroadcaster) BroadcastTransaction(t *Transaction) {
	m.Called(t)
}

func (m *mockBroadcaster) BroadcastBlock(b *Block) {
	m.Called(b)
}
