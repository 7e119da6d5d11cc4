package ledger

import (
	"math/big"

	"github.com/pkg/errors"
	"github.com/tcfw/votem/pkg/tally"
)

// TallyEncryptedVotes counts mined ballots per candidate without decrypting
// any individual ballot. Pending votes are not counted.
func (l *Ledger) TallyEncryptedVotes() (map[string]int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	cts := map[string][]*big.Int{}

	for _, b := range l.chain {
		for _, t := range b.Transactions {
			if t.IsReward() || t.Data.Kind != PayloadEncrypted {
				continue
			}

			for c, ct := range t.Data.Ballot {
				cts[c] = append(cts[c], ct)
			}
		}
	}

	candidates := l.candidateListLocked()
	results := make(map[string]int, len(candidates))

	for _, c := range candidates {
		n := l.scheme.DecryptSum(l.scheme.Aggregate(cts[c]))
		if n == tally.NotFound {
			return nil, errors.Wrapf(ErrTallyOverflow, "candidate %s", c)
		}
		results[c] = n
	}

	return results, nil
}
