// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package journal

import (
	"context"
	"slices"
	"sync"
	"time"
)

// MemoryStore keeps entries in process memory. History is lost on restart.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string][]Entry
	closed   bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string][]Entry)}
}

func (s *MemoryStore) Append(_ context.Context, e Entry) error {
	if err := e.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.sessions[e.SessionID] = append(s.sessions[e.SessionID], e)
	return nil
}

func (s *MemoryStore) History(_ context.Context, sessionID string, limit int) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	return slices.Clone(tail(s.sessions[sessionID], limit)), nil
}

func (s *MemoryStore) Prune(_ context.Context, before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}
	removed := 0
	for id, entries := range s.sessions {
		kept := slices.DeleteFunc(entries, func(e Entry) bool { return e.At.Before(before) })
		removed += len(entries) - len(kept)
		if len(kept) == 0 {
			delete(s.sessions, id)
		} else {
			s.sessions[id] = kept
		}
	}
	return removed, nil
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.sessions = nil
	s.mu.Unlock()
	return nil
}

var _ Store = (*MemoryStore)(nil)
