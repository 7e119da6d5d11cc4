package storage

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/tcfw/votem/pkg/ledger"
	"github.com/vmihailenco/msgpack/v5"
)

var (
	_ Store = (*MemStore)(nil)
)

// MemStore keeps encoded block records in memory.
type MemStore struct {
	mu sync.RWMutex

	objects [][]byte
	closed  bool
}

func NewMemStore() *MemStore {
	return &MemStore{}
}

func (m *MemStore) SaveChain(_ context.Context, chain []*ledger.Block) error {
	objs := make([][]byte, 0, len(chain))
	for _, b := range chain {
		r, err := newRecord(b)
		if err != nil {
			return err
		}

		d, err := msgpack.Marshal(r)
		if err != nil {
			return errors.Wrap(err, "encoding record")
		}
		objs = append(objs, d)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}

	m.objects = objs

	return nil
}

func (m *MemStore) records() ([]*record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrClosed
	}

	rs := make([]*record, 0, len(m.objects))
	for _, d := range m.objects {
		r := &record{}
		if err := msgpack.Unmarshal(d, r); err != nil {
			return nil, errors.Wrap(err, "unmarshalling record")
		}
		rs = append(rs, r)
	}

	return rs, nil
}

func (m *MemStore) LoadChain(_ context.Context) ([]*ledger.Block, error) {
	rs, err := m.records()
	if err != nil {
		return nil, err
	}

	return chainFromRecords(rs)
}

func (m *MemStore) LocateTx(_ context.Context, hash string) (*ledger.Block, *ledger.Transaction, error) {
	rs, err := m.records()
	if err != nil {
		return nil, nil, err
	}

	return locate(rs, hash)
}

func (m *MemStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	m.objects = nil

	return nil
}
