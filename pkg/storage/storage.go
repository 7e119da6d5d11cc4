package storage

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	"github.com/tcfw/votem/pkg/ledger"
)

// Store persists the canonical form of a chain. It never holds key
// material.
type Store interface {
	// SaveChain replaces the stored chain with chain.
	SaveChain(context.Context, []*ledger.Block) error
	LoadChain(context.Context) ([]*ledger.Block, error)

	// LocateTx finds the mined transaction with the given hash.
	LocateTx(context.Context, string) (*ledger.Block, *ledger.Transaction, error)

	Close() error
}

// record is the stored envelope for a block. The bloom filter covers the
// block's transaction hashes so lookups can skip blocks without decoding.
type record struct {
	Index uint64 `msgpack:"i"`
	Hash  string `msgpack:"h"`
	Block []byte `msgpack:"b"`
	Bloom []byte `msgpack:"f"`
}

func newRecord(b *ledger.Block) (*record, error) {
	d, err := json.Marshal(b)
	if err != nil {
		return nil, errors.Wrap(err, "encoding block")
	}

	hashes := make([]string, 0, len(b.Transactions))
	for _, t := range b.Transactions {
		h, err := t.Hash()
		if err != nil {
			return nil, errors.Wrap(err, "hashing transaction")
		}
		hashes = append(hashes, h)
	}

	f, err := MakeBloom(hashes)
	if err != nil {
		return nil, errors.Wrap(err, "building bloom filter")
	}

	return &record{
		Index: b.Index,
		Hash:  b.Hash,
		Block: d,
		Bloom: f,
	}, nil
}

func (r *record) block() (*ledger.Block, error) {
	b := &ledger.Block{}
	if err := json.Unmarshal(r.Block, b); err != nil {
		return nil, errors.Wrapf(err, "decoding block %d", r.Index)
	}

	return b, nil
}

// locate scans records in order for a transaction hash.
func locate(records []*record, hash string) (*ledger.Block, *ledger.Transaction, error) {
	for _, r := range records {
		ok, err := BloomContains(r.Bloom, hash)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "reading bloom for block %d", r.Index)
		}
		if !ok {
			continue
		}

		b, err := r.block()
		if err != nil {
			return nil, nil, err
		}

		for _, t := range b.Transactions {
			h, err := t.Hash()
			if err != nil {
				return nil, nil, errors.Wrap(err, "hashing transaction")
			}
			if h == hash {
				return b, t, nil
			}
		}
	}

	return nil, nil, ErrNotFound
}

func chainFromRecords(records []*record) ([]*ledger.Block, error) {
	if len(records) == 0 {
		return nil, ErrNotFound
	}

	chain := make([]*ledger.Block, 0, len(records))
	for i, r := range records {
		if r.Index != uint64(i) {
			return nil, errors.Wrapf(ErrCorrupt, "expected block %d, found %d", i, r.Index)
		}

		b, err := r.block()
		if err != nil {
			return nil, err
		}
		chain = append(chain, b)
	}

	return chain, nil
}
