package cryptography

import (
	"crypto/ecdsa"
	"crypto/rand"
	"encoding/hex"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ethCrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
)

var (
	ErrInvalidSignature = errors.New("invalid signature")
	ErrInvalidAddress   = errors.New("invalid address")
	ErrInvalidDigest    = errors.New("digest must be 32 bytes")
)

// Secp256k1PrivateKey is a voter or miner signing key. The matching
// address is what appears as the sender of a transaction.
type Secp256k1PrivateKey struct {
	*ecdsa.PrivateKey
}

func NewSecp256k1PrivateKey() (*Secp256k1PrivateKey, error) {
	pk, err := ecdsa.GenerateKey(ethCrypto.S256(), rand.Reader)
	if err != nil {
		return nil, errors.Wrap(err, "generating ecdsa key")
	}

	return &Secp256k1PrivateKey{pk}, nil
}

func Secp256k1PrivateKeyFromHex(h string) (*Secp256k1PrivateKey, error) {
	pk, err := ethCrypto.HexToECDSA(strings.TrimPrefix(h, "0x"))
	if err != nil {
		return nil, errors.Wrap(err, "decoding private key")
	}

	return &Secp256k1PrivateKey{pk}, nil
}

func (p *Secp256k1PrivateKey) Hex() string {
	return hex.EncodeToString(ethCrypto.FromECDSA(p.PrivateKey))
}

func (p *Secp256k1PrivateKey) Address() string {
	return ethCrypto.PubkeyToAddress(p.PublicKey).Hex()
}

// SignDigest signs a 32 byte digest and returns the hex encoded
// recoverable signature.
func (p *Secp256k1PrivateKey) SignDigest(digest []byte) (string, error) {
	if len(digest) != common.HashLength {
		return "", ErrInvalidDigest
	}

	sig, err := ethCrypto.Sign(digest, p.PrivateKey)
	if err != nil {
		return "", errors.Wrap(err, "signing digest")
	}

	return hex.EncodeToString(sig), nil
}

// RecoverAddress returns the address of the key that produced sig over digest.
func RecoverAddress(digest []byte, sig string) (string, error) {
	if len(digest) != common.HashLength {
		return "", ErrInvalidDigest
	}

	raw, err := hex.DecodeString(strings.TrimPrefix(sig, "0x"))
	if err != nil {
		return "", errors.Wrap(ErrInvalidSignature, "decoding signature")
	}

	pub, err := ethCrypto.SigToPub(digest, raw)
	if err != nil {
		return "", errors.Wrap(ErrInvalidSignature, err.Error())
	}

	return ethCrypto.PubkeyToAddress(*pub).Hex(), nil
}

// VerifyAddress checks that sig over digest was produced by the key
// behind address.
func VerifyAddress(digest []byte, sig string, address string) error {
	if !common.IsHexAddress(address) {
		return ErrInvalidAddress
	}

	recovered, err := RecoverAddress(digest, sig)
	if err != nil {
		return err
	}

	if common.HexToAddress(recovered) != common.HexToAddress(address) {
		return ErrInvalidSignature
	}

	return nil
}
