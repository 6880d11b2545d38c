// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package fsm

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrInvalidTransition is returned when no edge exists for state+event or a guard rejects it.
var ErrInvalidTransition = errors.New("invalid transition")

// Transition describes a single edge in the FSM.
// Guard may reject the transition; it runs under the machine lock and must not block.
type Transition[S ~string, E ~string] struct {
	From  S
	Event E
	To    S
	Guard func(ctx context.Context, from S, event E) error
}

// TransitionError reports a rejected event.
type TransitionError[S ~string, E ~string] struct {
	From  S
	Event E
	Err   error
}

func (e *TransitionError[S, E]) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid transition: state=%s event=%s: %v", e.From, e.Event, e.Err)
	}
	return fmt.Sprintf("invalid transition: state=%s event=%s", e.From, e.Event)
}

func (e *TransitionError[S, E]) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrInvalidTransition}
	}
	return []error{ErrInvalidTransition, e.Err}
}

// Hook observes applied transitions. It runs after the lock is released.
type Hook[S ~string, E ~string] func(from, to S, event E)

// Option configures a Machine.
type Option[S ~string, E ~string] func(*Machine[S, E])

// WithHook registers an observer for applied transitions.
func WithHook[S ~string, E ~string](h Hook[S, E]) Option[S, E] {
	return func(m *Machine[S, E]) {
		if h != nil {
			m.hooks = append(m.hooks, h)
		}
	}
}

// Machine is a small, test-friendly FSM runner.
// It is strict: unknown transitions are errors.
type Machine[S ~string, E ~string] struct {
	mu    sync.Mutex
	state S
	index map[string]Transition[S, E]
	hooks []Hook[S, E]
}

func New[S ~string, E ~string](initial S, transitions []Transition[S, E], opts ...Option[S, E]) (*Machine[S, E], error) {
	idx := make(map[string]Transition[S, E], len(transitions))
	for _, t := range transitions {
		k := key(t.From, t.Event)
		if _, exists := idx[k]; exists {
			return nil, fmt.Errorf("duplicate transition: %s -> %s", t.From, t.Event)
		}
		idx[k] = t
	}
	m := &Machine[S, E]{state: initial, index: idx}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

func (m *Machine[S, E]) State() S {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Can reports whether event has an edge out of the current state.
func (m *Machine[S, E]) Can(event E) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.index[key(m.state, event)]
	return ok
}

// Fire applies an event atomically and returns the resulting state.
// On rejection the current state is returned with a *TransitionError.
func (m *Machine[S, E]) Fire(ctx context.Context, event E) (S, error) {
	from, to, err := m.Apply(ctx, event)
	if err != nil {
		return from, err
	}
	return to, nil
}

// Apply is Fire that also reports the state the event was applied to.
func (m *Machine[S, E]) Apply(ctx context.Context, event E) (from, to S, err error) {
	m.mu.Lock()
	from = m.state
	t, ok := m.index[key(from, event)]
	if !ok {
		m.mu.Unlock()
		return from, from, &TransitionError[S, E]{From: from, Event: event}
	}
	if t.Guard != nil {
		if err := t.Guard(ctx, from, event); err != nil {
			m.mu.Unlock()
			return from, from, &TransitionError[S, E]{From: from, Event: event, Err: err}
		}
	}
	m.state = t.To
	hooks := m.hooks
	m.mu.Unlock()

	for _, h := range hooks {
		h(from, t.To, event)
	}
	return from, t.To, nil
}

func key[S ~string, E ~string](from S, event E) string {
	return string(from) + "|" + string(event)
}
