// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package bridge

import (
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/ManuGH/embedbridge/internal/domain/embed/model"
	"github.com/ManuGH/embedbridge/internal/embed/session"
)

// entry is one live session plus the bridge's per-session state.
type entry struct {
	ctrl    *session.Controller
	limiter *rate.Limiter
	codec   string
	created time.Time
	rec     sessionRecorder
}

// Registry tracks the daemon's live sessions by id.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*entry
}

func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]*entry)}
}

func (r *Registry) add(e *entry) {
	r.mu.Lock()
	r.sessions[e.ctrl.SessionID()] = e
	r.mu.Unlock()
}

func (r *Registry) get(id string) (*entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.sessions[id]
	return e, ok
}

// Remove drops the session from the registry without disposing it.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; !ok {
		return false
	}
	delete(r.sessions, id)
	return true
}

// Get returns the controller for id.
func (r *Registry) Get(id string) (*session.Controller, bool) {
	e, ok := r.get(id)
	if !ok {
		return nil, false
	}
	return e.ctrl, true
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// SessionView is the JSON shape of one session in listings.
type SessionView struct {
	session.Info
	Codec     string    `json:"codec"`
	CreatedAt time.Time `json:"createdAt"`
}

// List returns every session sorted by creation time, oldest first.
func (r *Registry) List() []SessionView {
	r.mu.RLock()
	entries := make([]*entry, 0, len(r.sessions))
	for _, e := range r.sessions {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	out := make([]SessionView, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.view())
	}
	slices.SortFunc(out, func(a, b SessionView) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.SessionID, b.SessionID)
	})
	return out
}

func (e *entry) view() SessionView {
	return SessionView{Info: e.ctrl.Info(), Codec: e.codec, CreatedAt: e.created}
}

// CountByState returns how many sessions sit in each state.
func (r *Registry) CountByState() map[model.State]int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[model.State]int)
	for _, e := range r.sessions {
		out[e.ctrl.State()]++
	}
	return out
}

// DisposeAll disposes every session and empties the registry. It returns
// the number of sessions disposed.
func (r *Registry) DisposeAll() int {
	r.mu.Lock()
	entries := r.sessions
	r.sessions = make(map[string]*entry)
	r.mu.Unlock()

	for _, e := range entries {
		e.ctrl.Dispose()
	}
	return len(entries)
}
