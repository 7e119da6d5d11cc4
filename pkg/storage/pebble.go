package storage

import (
	"context"
	"encoding/binary"

	"github.com/cockroachdb/pebble"
	"github.com/pkg/errors"
	"github.com/tcfw/votem/pkg/ledger"
	"github.com/vmihailenco/msgpack/v5"
)

const (
	cacheSize = 1 << 20 * 32
)

type keyType byte

const (
	blockTPrefix keyType = iota + 1
)

var (
	_ Store = (*PebbleStore)(nil)
)

// PebbleStore keeps one record per block keyed by big endian index so
// iteration returns the chain in order.
type PebbleStore struct {
	db *pebble.DB
}

func NewPebbleStore(dir string) (*PebbleStore, error) {
	c := pebble.NewCache(cacheSize)
	defer c.Unref()

	db, err := pebble.Open(dir, &pebble.Options{Cache: c})
	if err != nil {
		return nil, errors.Wrap(err, "opening chain store")
	}

	return &PebbleStore{db: db}, nil
}

func blockKey(index uint64) []byte {
	k := make([]byte, 9)
	k[0] = byte(blockTPrefix)
	binary.BigEndian.PutUint64(k[1:], index)

	return k
}

func (s *PebbleStore) SaveChain(_ context.Context, chain []*ledger.Block) error {
	batch := s.db.NewBatch()
	defer batch.Close()

	for _, b := range chain {
		r, err := newRecord(b)
		if err != nil {
			return err
		}

		d, err := msgpack.Marshal(r)
		if err != nil {
			return errors.Wrap(err, "encoding record")
		}

		if err := batch.Set(blockKey(b.Index), d, nil); err != nil {
			return errors.Wrap(err, "staging block")
		}
	}

	// drop anything past the new tip left by a longer previous chain
	end := []byte{byte(blockTPrefix + 1)}
	if err := batch.DeleteRange(blockKey(uint64(len(chain))), end, nil); err != nil {
		return errors.Wrap(err, "staging truncation")
	}

	if err := batch.Commit(pebble.Sync); err != nil {
		return errors.Wrap(err, "committing chain")
	}

	return nil
}

func (s *PebbleStore) records() ([]*record, error) {
	iter := s.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte{byte(blockTPrefix)},
		UpperBound: []byte{byte(blockTPrefix + 1)},
	})
	defer iter.Close()

	rs := []*record{}
	for iter.First(); iter.Valid(); iter.Next() {
		r := &record{}
		if err := msgpack.Unmarshal(iter.Value(), r); err != nil {
			return nil, errors.Wrap(err, "unmarshalling record")
		}
		rs = append(rs, r)
	}

	if err := iter.Error(); err != nil {
		return nil, errors.Wrap(err, "iterating chain")
	}

	return rs, nil
}

func (s *PebbleStore) LoadChain(_ context.Context) ([]*ledger.Block, error) {
	rs, err := s.records()
	if err != nil {
		return nil, err
	}

	return chainFromRecords(rs)
}

func (s *PebbleStore) LocateTx(_ context.Context, hash string) (*ledger.Block, *ledger.Transaction, error) {
	rs, err := s.records()
	if err != nil {
		return nil, nil, err
	}

	return locate(rs, hash)
}

func (s *PebbleStore) Close() error {
	return s.db.Close()
}
