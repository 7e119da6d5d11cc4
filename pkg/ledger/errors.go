package ledger

import (
	"github.com/pkg/errors"
	"github.com/tcfw/votem/pkg/tally"
)

var (
	ErrBadSignature    = errors.New("transaction signature invalid")
	ErrNotRegistered   = errors.New("sender not registered")
	ErrNotVerified     = errors.New("sender has not completed verification")
	ErrAlreadyVoted    = errors.New("sender already voted")
	ErrMalformedBallot = tally.ErrMalformedBallot
	ErrRewardSubmitted = errors.New("reward transactions cannot be submitted")
	ErrMalformedTx     = errors.New("malformed transaction")

	ErrEmptyMempool = errors.New("no pending transactions")
	ErrStaleTip     = errors.New("chain tip moved while mining")

	ErrBlockMismatch = errors.New("block does not extend the chain")
	ErrChainTooShort = errors.New("candidate chain is not longer")
	ErrInvalidChain  = errors.New("candidate chain is invalid")

	ErrTallyOverflow = errors.New("tally out of decryptable range")
)
