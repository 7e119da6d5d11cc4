package cryptography

import (
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignAndVerifyAddress(t *testing.T) {
	sk, err := NewSecp256k1PrivateKey()
	if err != nil {
		t.Fatal(err)
	}

	digest := sha256.Sum256([]byte("abc"))

	sig, err := sk.SignDigest(digest[:])
	if err != nil {
		t.Fatal(err)
	}

	assert.NoError(t, VerifyAddress(digest[:], sig, sk.Address()))

	other, err := NewSecp256k1PrivateKey()
	require.NoError(t, err)

	assert.ErrorIs(t, VerifyAddress(digest[:], sig, other.Address()), ErrInvalidSignature)

	tampered := sha256.Sum256([]byte("abd"))
	assert.Error(t, VerifyAddress(tampered[:], sig, sk.Address()))
}

func TestVerifyRejectsGarbage(t *testing.T) {
	sk, err := NewSecp256k1PrivateKey()
	require.NoError(t, err)

	digest := sha256.Sum256([]byte("abc"))

	assert.ErrorIs(t, VerifyAddress(digest[:], "zz", sk.Address()), ErrInvalidSignature)
	assert.ErrorIs(t, VerifyAddress(digest[:], "", "V1"), ErrInvalidAddress)

	_, err = sk.SignDigest([]byte("short"))
	assert.ErrorIs(t, err, ErrInvalidDigest)
}

func TestPrivateKeyHexRoundTrip(t *testing.T) {
	sk, err := NewSecp256k1PrivateKey()
	require.NoError(t, err)

	sk2, err := Secp256k1PrivateKeyFromHex(sk.Hex())
	require.NoError(t, err)

	assert.Equal(t, sk.Address(), sk2.Address())
}
