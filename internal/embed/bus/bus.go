// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package bus is the per-session listener registry for embed events.
package bus

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/ManuGH/embedbridge/internal/domain/embed/model"
	xglog "github.com/ManuGH/embedbridge/internal/log"
	"github.com/ManuGH/embedbridge/internal/metrics"
)

// Listener receives one event. A returned error is reported, never propagated.
type Listener func(ev model.EmbedEvent) error

// Func adapts a listener that cannot fail.
func Func(f func(ev model.EmbedEvent)) Listener {
	return func(ev model.EmbedEvent) error {
		f(ev)
		return nil
	}
}

// ListenerError describes one failed listener invocation.
type ListenerError struct {
	Kind  model.EventKind
	Index int
	Err   error
	Panic any
}

func (e *ListenerError) Error() string {
	if e.Panic != nil {
		return fmt.Sprintf("listener %d for %s panicked: %v", e.Index, e.Kind, e.Panic)
	}
	return fmt.Sprintf("listener %d for %s failed: %v", e.Index, e.Kind, e.Err)
}

func (e *ListenerError) Unwrap() error { return e.Err }

// FailureHandler is told about every isolated listener failure.
type FailureHandler func(err *ListenerError)

type entry struct {
	id uint64
	fn Listener
}

// Bus holds ordered listener lists per event kind. Registration and removal
// are serialized; Dispatch delivers to a snapshot taken under the read lock,
// so a dispatch never observes a half-updated registry and listeners may
// call On/Off without deadlocking.
type Bus struct {
	mu        sync.RWMutex
	listeners map[model.EventKind][]entry
	nextID    uint64
	closed    bool

	onFailure FailureHandler
	logger    zerolog.Logger
}

// Option configures a Bus.
type Option func(*Bus)

// WithFailureHandler registers a callback for isolated listener failures.
func WithFailureHandler(h FailureHandler) Option {
	return func(b *Bus) { b.onFailure = h }
}

// WithLogger overrides the component logger.
func WithLogger(l zerolog.Logger) Option {
	return func(b *Bus) { b.logger = l }
}

func New(opts ...Option) *Bus {
	b := &Bus{
		listeners: make(map[model.EventKind][]entry),
		logger:    xglog.WithComponent("bus"),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Registration identifies one listener so it can be removed on its own.
type Registration struct {
	bus  *Bus
	kind model.EventKind
	id   uint64
}

// Remove unregisters this listener only. It reports whether it was present.
func (r Registration) Remove() bool {
	if r.bus == nil {
		return false
	}
	return r.bus.remove(r.kind, r.id)
}

// Kind returns the event kind the registration is bound to.
func (r Registration) Kind() model.EventKind { return r.kind }

// On appends fn to the ordered list for kind. Prior registrations are kept.
// After Close the call is ignored and the returned handle is inert.
func (b *Bus) On(kind model.EventKind, fn Listener) Registration {
	if fn == nil {
		return Registration{}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return Registration{}
	}
	b.nextID++
	b.listeners[kind] = append(b.listeners[kind], entry{id: b.nextID, fn: fn})
	return Registration{bus: b, kind: kind, id: b.nextID}
}

// Off clears every listener for kind. Unknown kinds are a no-op.
func (b *Bus) Off(kind model.EventKind) {
	b.mu.Lock()
	delete(b.listeners, kind)
	b.mu.Unlock()
}

func (b *Bus) remove(kind model.EventKind, id uint64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	lst := b.listeners[kind]
	for i, e := range lst {
		if e.id != id {
			continue
		}
		out := make([]entry, 0, len(lst)-1)
		out = append(out, lst[:i]...)
		out = append(out, lst[i+1:]...)
		if len(out) == 0 {
			delete(b.listeners, kind)
		} else {
			b.listeners[kind] = out
		}
		return true
	}
	return false
}

// Dispatch invokes the listeners registered for ev.Kind in registration
// order and returns how many ran. A failing or panicking listener does not
// stop the rest. With no listeners the event is dropped.
func (b *Bus) Dispatch(ev model.EmbedEvent) int {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		metrics.IncEventDropped(string(ev.Kind), "closed")
		return 0
	}
	lst := append([]entry(nil), b.listeners[ev.Kind]...)
	b.mu.RUnlock()

	if len(lst) == 0 {
		metrics.IncEventDropped(string(ev.Kind), "no_listeners")
		b.logger.Debug().Str(xglog.FieldEventKind, string(ev.Kind)).Msg("event dropped: no listeners")
		return 0
	}

	for i, e := range lst {
		b.invoke(i, e.fn, ev)
	}
	metrics.IncEventDispatched(string(ev.Kind))
	return len(lst)
}

func (b *Bus) invoke(index int, fn Listener, ev model.EmbedEvent) {
	var lerr *ListenerError
	func() {
		defer func() {
			if r := recover(); r != nil {
				lerr = &ListenerError{Kind: ev.Kind, Index: index, Panic: r}
			}
		}()
		if err := fn(ev); err != nil {
			lerr = &ListenerError{Kind: ev.Kind, Index: index, Err: err}
		}
	}()
	if lerr == nil {
		return
	}

	reason := "error"
	if lerr.Panic != nil {
		reason = "panic"
	}
	metrics.IncListenerFailure(string(ev.Kind), reason)
	b.logger.Warn().
		Str(xglog.FieldEventKind, string(ev.Kind)).
		Int("listener", index).
		Str("reason", reason).
		Msg(lerr.Error())
	if b.onFailure != nil {
		b.onFailure(lerr)
	}
}

// Len returns the number of listeners for kind.
func (b *Bus) Len(kind model.EventKind) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners[kind])
}

// Kinds returns every kind with at least one listener.
func (b *Bus) Kinds() []model.EventKind {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]model.EventKind, 0, len(b.listeners))
	for k := range b.listeners {
		out = append(out, k)
	}
	return out
}

// Clear removes every registration but keeps the bus usable.
func (b *Bus) Clear() {
	b.mu.Lock()
	b.listeners = make(map[model.EventKind][]entry)
	b.mu.Unlock()
}

// Close clears every registration; later On and Dispatch calls are no-ops.
func (b *Bus) Close() {
	b.mu.Lock()
	b.listeners = make(map[model.EventKind][]entry)
	b.closed = true
	b.mu.Unlock()
}
