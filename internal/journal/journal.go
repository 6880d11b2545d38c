// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package journal keeps the per-session history of lifecycle transitions
// and host commands so operators can reconstruct what a session went
// through after it is gone.
package journal

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	ErrClosed       = errors.New("journal closed")
	ErrInvalidEntry = errors.New("invalid journal entry")
)

// Kind classifies a journal entry.
type Kind string

const (
	KindSession    Kind = "session"
	KindTransition Kind = "transition"
	KindCommand    Kind = "command"
)

// Entry is one recorded fact about a session.
type Entry struct {
	SessionID     string    `json:"sessionId"`
	At            time.Time `json:"at"`
	Kind          Kind      `json:"kind"`
	Event         string    `json:"event"`
	From          string    `json:"from,omitempty"`
	To            string    `json:"to,omitempty"`
	CorrelationID string    `json:"correlationId,omitempty"`
	Outcome       string    `json:"outcome,omitempty"`
	Detail        string    `json:"detail,omitempty"`
}

// Validate checks the fields every backend relies on.
func (e Entry) Validate() error {
	switch {
	case e.SessionID == "":
		return fmt.Errorf("%w: empty session id", ErrInvalidEntry)
	case e.Kind == "":
		return fmt.Errorf("%w: empty kind", ErrInvalidEntry)
	case e.At.IsZero():
		return fmt.Errorf("%w: zero timestamp", ErrInvalidEntry)
	}
	return nil
}

// Store persists entries. History returns the newest limit entries of a
// session in the order they were appended; limit <= 0 returns all.
type Store interface {
	Append(ctx context.Context, e Entry) error
	History(ctx context.Context, sessionID string, limit int) ([]Entry, error)
	Prune(ctx context.Context, before time.Time) (int, error)
	Close() error
}

// Checker is implemented by stores that can verify their own integrity.
type Checker interface {
	Check(ctx context.Context) error
}

// Open creates a Store for the configured backend.
func Open(backend, path string) (Store, error) {
	switch backend {
	case "", "memory":
		return NewMemoryStore(), nil
	case "sqlite":
		return OpenSQLiteStore(path, DefaultSQLiteConfig())
	case "badger":
		return OpenBadgerStore(path)
	default:
		return nil, fmt.Errorf("unknown journal backend: %s", backend)
	}
}

// tail keeps the newest limit entries of an append-ordered slice.
func tail(entries []Entry, limit int) []Entry {
	if limit > 0 && len(entries) > limit {
		return entries[len(entries)-limit:]
	}
	return entries
}
