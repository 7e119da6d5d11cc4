package ledger

import (
	"bytes"
	"encoding/json"
	"strconv"

	"github.com/pkg/errors"
	"github.com/tcfw/votem/pkg/consensus"
)

const GenesisPreviousHash = "0"

var (
	_ consensus.Sealable = (*Block)(nil)
)

type Block struct {
	Index        uint64         `json:"index"`
	Timestamp    float64        `json:"timestamp"`
	PreviousHash string         `json:"previous_hash"`
	Transactions []*Transaction `json:"transactions"`
	Nonce        uint64         `json:"nonce"`
	Hash         string         `json:"hash"`
}

// Genesis returns the fixed first block shared by every node.
func Genesis() *Block {
	b := &Block{
		Index:        0,
		PreviousHash: GenesisPreviousHash,
		Transactions: []*Transaction{},
	}
	b.Hash, _ = b.ComputeHash()

	return b
}

// GenesisHash is the hash every valid chain starts with.
func GenesisHash() string {
	return Genesis().Hash
}

func (b *Block) txJSON() ([]byte, error) {
	txs := b.Transactions
	if txs == nil {
		txs = []*Transaction{}
	}

	return json.Marshal(txs)
}

// Preimage is every hashed field except the nonce.
func (b *Block) Preimage() ([]byte, error) {
	txs, err := b.txJSON()
	if err != nil {
		return nil, errors.Wrap(err, "encoding transactions")
	}

	var buf bytes.Buffer
	buf.WriteString(strconv.FormatUint(b.Index, 10))
	buf.WriteString(b.PreviousHash)
	buf.WriteString(strconv.FormatFloat(b.Timestamp, 'f', -1, 64))
	buf.Write(txs)

	return buf.Bytes(), nil
}

func (b *Block) ComputeHash() (string, error) {
	pre, err := b.Preimage()
	if err != nil {
		return "", err
	}

	return consensus.HashNonce(pre, b.Nonce), nil
}

func (b *Block) Seal(nonce uint64, hash string) {
	b.Nonce = nonce
	b.Hash = hash
}

func (b *Block) StoredHash() string {
	return b.Hash
}

func (b *Block) MarshalJSON() ([]byte, error) {
	type alias Block
	a := alias(*b)
	if a.Transactions == nil {
		a.Transactions = []*Transaction{}
	}

	return json.Marshal(a)
}

func (b *Block) Clone() *Block {
	c := *b
	c.Transactions = make([]*Transaction, len(b.Transactions))
	for i, t := range b.Transactions {
		c.Transactions[i] = t.Clone()
	}

	return &c
}

// EncodeChain returns the canonical JSON form of a chain.
func EncodeChain(chain []*Block) ([]byte, error) {
	if chain == nil {
		chain = []*Block{}
	}

	return json.Marshal(chain)
}

func DecodeChain(b []byte) ([]*Block, error) {
	chain := []*Block{}
	if err := json.Unmarshal(b, &chain); err != nil {
		return nil, errors.Wrap(err, "decoding chain")
	}

	for i, blk := range chain {
		if blk == nil {
			return nil, errors.Wrapf(ErrInvalidChain, "nil block at %d", i)
		}
	}

	return chain, nil
}
