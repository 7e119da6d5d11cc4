package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/tcfw/votem/pkg/cryptography"
)

const (
	// RewardSender marks mining reward transactions. They carry no signature.
	RewardSender = "BLOCKCHAIN_REWARD"

	ElectionRecipient = "ELECTION"
)

type Transaction struct {
	Sender    string  `json:"sender"`
	Recipient string  `json:"recipient"`
	Data      Payload `json:"data"`
	Signature string  `json:"signature"`
}

func NewVote(sender string, candidate string) *Transaction {
	return &Transaction{
		Sender:    sender,
		Recipient: ElectionRecipient,
		Data:      PlainVote(candidate),
	}
}

func NewReward(miner string, amount int64) *Transaction {
	return &Transaction{
		Sender:    RewardSender,
		Recipient: miner,
		Data:      RewardPayload(amount),
	}
}

func (t *Transaction) IsReward() bool {
	return t.Sender == RewardSender
}

// Hash is the hex SHA-256 of sender, recipient and the canonical payload.
func (t *Transaction) Hash() (string, error) {
	data, err := json.Marshal(t.Data)
	if err != nil {
		return "", errors.Wrap(err, "encoding payload")
	}

	h := sha256.New()
	h.Write([]byte(t.Sender))
	h.Write([]byte(t.Recipient))
	h.Write(data)

	return hex.EncodeToString(h.Sum(nil)), nil
}

func (t *Transaction) digest() ([]byte, error) {
	h, err := t.Hash()
	if err != nil {
		return nil, err
	}

	return hex.DecodeString(h)
}

// Sign signs a plain vote with the sender key. Encrypted ballots keep the
// signature made over their plain form.
func (t *Transaction) Sign(key *cryptography.Secp256k1PrivateKey) error {
	if t.Data.Kind != PayloadPlain {
		return errors.Wrap(ErrMalformedTx, "only plain votes can be signed")
	}

	if t.Sender != key.Address() {
		return errors.Wrap(ErrBadSignature, "key does not match sender")
	}

	d, err := t.digest()
	if err != nil {
		return err
	}

	sig, err := key.SignDigest(d)
	if err != nil {
		return errors.Wrap(err, "signing transaction")
	}

	t.Signature = sig

	return nil
}

func (t *Transaction) Clone() *Transaction {
	c := *t
	c.Data = t.Data.clone()

	return &c
}
