package consensus

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

const (
	DefaultDifficulty = 4

	// nonces tried between context checks
	ctxCheckInterval = 1024
)

// Sealable is a block that can be mined. The preimage covers every hashed
// field except the nonce, which is always the last hash component.
type Sealable interface {
	Preimage() ([]byte, error)
	Seal(nonce uint64, hash string)
	StoredHash() string
}

type ProofOfWork struct {
	difficulty int
	target     string
}

func NewProofOfWork(difficulty int) *ProofOfWork {
	if difficulty < 0 {
		difficulty = 0
	}

	return &ProofOfWork{
		difficulty: difficulty,
		target:     strings.Repeat("0", difficulty),
	}
}

func (p *ProofOfWork) Difficulty() int {
	return p.difficulty
}

// Target is the required hex prefix of a valid hash.
func (p *ProofOfWork) Target() string {
	return p.target
}

// HashNonce returns the hex SHA-256 of preimage followed by the decimal nonce.
func HashNonce(preimage []byte, nonce uint64) string {
	buf := make([]byte, 0, len(preimage)+20)
	buf = append(buf, preimage...)
	buf = strconv.AppendUint(buf, nonce, 10)

	sum := sha256.Sum256(buf)
	return hex.EncodeToString(sum[:])
}

// Mine searches nonces from zero until the hash meets the target, then seals
// the block. Cancellation of ctx is the only failure mode.
func (p *ProofOfWork) Mine(ctx context.Context, b Sealable) error {
	pre, err := b.Preimage()
	if err != nil {
		return errors.Wrap(err, "building block preimage")
	}

	buf := make([]byte, len(pre), len(pre)+20)
	copy(buf, pre)

	for nonce := uint64(0); ; nonce++ {
		if nonce%ctxCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}

		sum := sha256.Sum256(strconv.AppendUint(buf, nonce, 10))
		hash := hex.EncodeToString(sum[:])

		if strings.HasPrefix(hash, p.target) {
			b.Seal(nonce, hash)
			return nil
		}
	}
}

// Validate checks the stored hash against the target. It does not recompute
// the hash; callers must check the hash matches the block contents.
func (p *ProofOfWork) Validate(b Sealable) bool {
	return strings.HasPrefix(b.StoredHash(), p.target)
}
