package wallet

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tcfw/votem/pkg/cryptography"
)

func TestFileStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys", "wallet.yaml")

	f, err := NewFileStore(path)
	if err != nil {
		t.Fatal(err)
	}
	assert.Empty(t, f.List())

	k, err := cryptography.NewSecp256k1PrivateKey()
	if err != nil {
		t.Fatal(err)
	}

	require.NoError(t, f.Add(k))
	require.NoError(t, f.Add(k))
	assert.Equal(t, []string{k.Address()}, f.List())

	reopened, err := NewFileStore(path)
	if err != nil {
		t.Fatal(err)
	}

	got, err := reopened.Find(k.Address())
	require.NoError(t, err)
	assert.Equal(t, k.Hex(), got.Hex())

	_, err = reopened.Find("0x0000000000000000000000000000000000000000")
	assert.ErrorIs(t, err, ErrKeyNotFound)
}
