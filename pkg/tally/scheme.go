// Package tally implements the multiplicative indicator scheme used to keep
// individual vote choices out of the ledger while still allowing them to be
// counted.
//
// A ballot holds one ciphertext per candidate: g^1 mod n for the chosen
// candidate, g^0 mod n for the rest. Multiplying ciphertexts adds their
// exponents, so the product of every ballot entry for a candidate is
// g^count mod n, and the count is recovered by a bounded search. The scheme is
// deterministic and not semantically secure; it must not be relied on for
// real ballot secrecy and only supports sums below MaxDecryptable.
package tally

import (
	"crypto/rand"
	"math/big"
	"sort"

	"github.com/pkg/errors"
)

const (
	// DefaultBits is the default modulus size.
	DefaultBits = 2048

	// MaxDecryptable bounds the brute force search in DecryptSum.
	MaxDecryptable = 1000

	// NotFound is returned by DecryptSum when no exponent below
	// MaxDecryptable matches.
	NotFound = -1

	minBits = 64
)

var (
	ErrMalformedBallot = errors.New("malformed ballot")

	generator = big.NewInt(3)
	one       = big.NewInt(1)
)

// Ballot maps a candidate to its indicator ciphertext.
type Ballot map[string]*big.Int

// Candidates returns the ballot keys in sorted order.
func (b Ballot) Candidates() []string {
	c := make([]string, 0, len(b))
	for k := range b {
		c = append(c, k)
	}
	sort.Strings(c)

	return c
}

type Scheme struct {
	n *big.Int
	g *big.Int
}

// NewScheme generates a modulus of the given size from two random primes.
// Only the modulus is kept.
func NewScheme(bits int) (*Scheme, error) {
	if bits < minBits {
		return nil, errors.Errorf("modulus must be at least %d bits", minBits)
	}

	for {
		p, err := rand.Prime(rand.Reader, bits/2)
		if err != nil {
			return nil, errors.Wrap(err, "generating prime")
		}

		q, err := rand.Prime(rand.Reader, bits-bits/2)
		if err != nil {
			return nil, errors.Wrap(err, "generating prime")
		}

		if p.Cmp(q) == 0 {
			continue
		}

		return &Scheme{
			n: new(big.Int).Mul(p, q),
			g: new(big.Int).Set(generator),
		}, nil
	}
}

func (s *Scheme) Modulus() *big.Int {
	return new(big.Int).Set(s.n)
}

func (s *Scheme) Generator() *big.Int {
	return new(big.Int).Set(s.g)
}

// EncryptVote returns the indicator ciphertext for candidate given the
// voter chose chosen.
func (s *Scheme) EncryptVote(chosen, candidate string) *big.Int {
	m := big.NewInt(0)
	if chosen == candidate {
		m.SetInt64(1)
	}

	return new(big.Int).Exp(s.g, m, s.n)
}

// EncryptBallot encrypts a choice against every candidate.
func (s *Scheme) EncryptBallot(chosen string, candidates []string) Ballot {
	b := make(Ballot, len(candidates))
	for _, c := range candidates {
		b[c] = s.EncryptVote(chosen, c)
	}

	return b
}

// Aggregate multiplies the ciphertexts modulo n.
func (s *Scheme) Aggregate(ciphertexts []*big.Int) *big.Int {
	result := big.NewInt(1)

	for _, c := range ciphertexts {
		result.Mul(result, c)
		result.Mod(result, s.n)
	}

	return result
}

// DecryptSum recovers the exponent of an aggregate, or NotFound.
func (s *Scheme) DecryptSum(aggregate *big.Int) int {
	target := new(big.Int).Mod(aggregate, s.n)
	acc := big.NewInt(1)

	for i := 0; i < MaxDecryptable; i++ {
		if acc.Cmp(target) == 0 {
			return i
		}

		acc.Mul(acc, s.g)
		acc.Mod(acc, s.n)
	}

	return NotFound
}

// ValidateBallot checks every entry is a valid indicator and that exactly
// one candidate is marked. It returns the marked candidate.
func (s *Scheme) ValidateBallot(b Ballot) (string, error) {
	if len(b) == 0 {
		return "", errors.Wrap(ErrMalformedBallot, "empty ballot")
	}

	marked := new(big.Int).Mod(s.g, s.n)

	var chosen string
	var n int

	for _, c := range b.Candidates() {
		ct := b[c]
		switch {
		case ct == nil:
			return "", errors.Wrapf(ErrMalformedBallot, "missing ciphertext for %q", c)
		case ct.Cmp(one) == 0:
		case ct.Cmp(marked) == 0:
			chosen = c
			n++
		default:
			return "", errors.Wrapf(ErrMalformedBallot, "ciphertext for %q is not an indicator", c)
		}
	}

	if n != 1 {
		return "", errors.Wrapf(ErrMalformedBallot, "%d candidates marked", n)
	}

	return chosen, nil
}
