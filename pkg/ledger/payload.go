package ledger

import (
	"encoding/json"
	"math/big"

	"github.com/pkg/errors"
	"github.com/tcfw/votem/pkg/tally"
)

type PayloadKind uint8

const (
	PayloadPlain PayloadKind = iota + 1
	PayloadEncrypted
	PayloadReward
)

const rewardType = "REWARD"

func (k PayloadKind) String() string {
	switch k {
	case PayloadPlain:
		return "plain"
	case PayloadEncrypted:
		return "encrypted"
	case PayloadReward:
		return "reward"
	default:
		return "unknown"
	}
}

// Payload is the transaction data. Exactly one of Candidate, Ballot or
// Amount is meaningful, selected by Kind.
type Payload struct {
	Kind      PayloadKind
	Candidate string
	Ballot    tally.Ballot
	Amount    int64
}

func PlainVote(candidate string) Payload {
	return Payload{Kind: PayloadPlain, Candidate: candidate}
}

func EncryptedVote(b tally.Ballot) Payload {
	return Payload{Kind: PayloadEncrypted, Ballot: b}
}

func RewardPayload(amount int64) Payload {
	return Payload{Kind: PayloadReward, Amount: amount}
}

type plainJSON struct {
	VoteFor string `json:"vote_for"`
}

type encryptedJSON struct {
	EncryptedVotes tally.Ballot `json:"encrypted_votes"`
}

// keys in sorted order so the encoding is canonical
type rewardJSON struct {
	Amount int64  `json:"amount"`
	Type   string `json:"type"`
}

func (p Payload) MarshalJSON() ([]byte, error) {
	switch p.Kind {
	case PayloadPlain:
		return json.Marshal(plainJSON{VoteFor: p.Candidate})
	case PayloadEncrypted:
		return json.Marshal(encryptedJSON{EncryptedVotes: p.Ballot})
	case PayloadReward:
		return json.Marshal(rewardJSON{Amount: p.Amount, Type: rewardType})
	default:
		return nil, errors.Wrapf(ErrMalformedTx, "unknown payload kind %d", p.Kind)
	}
}

func (p *Payload) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return errors.Wrap(err, "decoding payload")
	}

	if t, ok := raw["type"]; ok {
		r := rewardJSON{}
		if err := json.Unmarshal(b, &r); err != nil {
			return errors.Wrap(err, "decoding reward payload")
		}
		if r.Type != rewardType {
			return errors.Wrapf(ErrMalformedTx, "unknown payload type %s", t)
		}
		*p = RewardPayload(r.Amount)
		return nil
	}

	if ev, ok := raw["encrypted_votes"]; ok {
		ballot := tally.Ballot{}
		if err := json.Unmarshal(ev, &ballot); err != nil {
			return errors.Wrap(err, "decoding encrypted ballot")
		}
		*p = EncryptedVote(ballot)
		return nil
	}

	if vf, ok := raw["vote_for"]; ok {
		var c string
		if err := json.Unmarshal(vf, &c); err != nil {
			return errors.Wrap(err, "decoding vote")
		}
		*p = PlainVote(c)
		return nil
	}

	return errors.Wrap(ErrMalformedTx, "unrecognised payload")
}

func (p Payload) clone() Payload {
	c := p
	if p.Ballot != nil {
		c.Ballot = make(tally.Ballot, len(p.Ballot))
		for k, v := range p.Ballot {
			if v != nil {
				c.Ballot[k] = new(big.Int).Set(v)
			} else {
				c.Ballot[k] = nil
			}
		}
	}

	return c
}
