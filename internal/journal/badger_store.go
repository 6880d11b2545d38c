// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// Keys:
//   - entries: "e/<sessionID>/<seq as 16 hex digits>" (JSON)
//   - sequence: "seq/journal"
//
// The persistent sequence keeps append order across restarts.
const (
	entryPrefix   = "e/"
	sequenceKey   = "seq/journal"
	seqBandwidth  = 128
	pruneBatchLen = 1000
)

// BadgerStore persists entries in an embedded badger database.
type BadgerStore struct {
	mu     sync.RWMutex
	db     *badger.DB
	seq    *badger.Sequence
	closed bool
}

// OpenBadgerStore opens the database directory at path. An empty path
// keeps the data in memory only.
func OpenBadgerStore(path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("badger journal: open: %w", err)
	}
	seq, err := db.GetSequence([]byte(sequenceKey), seqBandwidth)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("badger journal: sequence: %w", err)
	}
	return &BadgerStore{db: db, seq: seq}, nil
}

func sessionPrefix(sessionID string) []byte {
	return []byte(entryPrefix + sessionID + "/")
}

func (s *BadgerStore) Append(_ context.Context, e Entry) error {
	if err := e.Validate(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}

	n, err := s.seq.Next()
	if err != nil {
		return fmt.Errorf("badger journal: next sequence: %w", err)
	}
	buf, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("badger journal: encode: %w", err)
	}
	key := fmt.Appendf(sessionPrefix(e.SessionID), "%016x", n)
	if err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, buf)
	}); err != nil {
		return fmt.Errorf("badger journal: append: %w", err)
	}
	return nil
}

func (s *BadgerStore) History(_ context.Context, sessionID string, limit int) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	prefix := sessionPrefix(sessionID)
	var out []Entry
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(append(slices.Clone(prefix), 0xFF)); it.ValidForPrefix(prefix); it.Next() {
			var e Entry
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &e)
			}); err != nil {
				return err
			}
			out = append(out, e)
			if limit > 0 && len(out) == limit {
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("badger journal: history: %w", err)
	}
	slices.Reverse(out)
	return out, nil
}

func (s *BadgerStore) Prune(_ context.Context, before time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, ErrClosed
	}

	var stale [][]byte
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(entryPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			var e Entry
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &e)
			}); err != nil {
				return err
			}
			if e.At.Before(before) {
				stale = append(stale, item.KeyCopy(nil))
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("badger journal: scan: %w", err)
	}

	for chunk := range slices.Chunk(stale, pruneBatchLen) {
		wb := s.db.NewWriteBatch()
		for _, k := range chunk {
			if err := wb.Delete(k); err != nil {
				wb.Cancel()
				return 0, fmt.Errorf("badger journal: delete: %w", err)
			}
		}
		if err := wb.Flush(); err != nil {
			return 0, fmt.Errorf("badger journal: flush: %w", err)
		}
	}
	return len(stale), nil
}

func (s *BadgerStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.seq.Release(); err != nil {
		_ = s.db.Close()
		return fmt.Errorf("badger journal: release sequence: %w", err)
	}
	return s.db.Close()
}

var _ Store = (*BadgerStore)(nil)
