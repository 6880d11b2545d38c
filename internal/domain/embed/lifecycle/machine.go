// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package lifecycle

import (
	"context"
	"fmt"

	"github.com/ManuGH/embedbridge/internal/domain/embed/model"
	"github.com/ManuGH/embedbridge/internal/fsm"
)

const (
	ForbiddenTerminalAbsorbing = "terminal_absorbing"
	ForbiddenNoEdge            = "no_edge"
)

// TransitionError reports an event with no edge out of the current state.
type TransitionError struct {
	From   model.State
	Event  EventKind
	Reason string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s: state=%s event=%s (%s)", model.ErrInvalidTransition, e.From, e.Event, e.Reason)
}

func (e *TransitionError) Unwrap() error { return model.ErrInvalidTransition }

// Observer is notified after every applied transition.
type Observer func(tr Transition)

// Machine is the lifecycle state machine of one embed session.
type Machine struct {
	m *fsm.Machine[model.State, EventKind]
}

// NewMachine returns a machine in StateUninitialized.
func NewMachine(observers ...Observer) *Machine {
	edges := make([]fsm.Transition[model.State, EventKind], 0, len(transitionsTable))
	for _, tr := range transitionsTable {
		edges = append(edges, fsm.Transition[model.State, EventKind]{From: tr.From, Event: tr.Event, To: tr.To})
	}

	var opts []fsm.Option[model.State, EventKind]
	for _, o := range observers {
		if o == nil {
			continue
		}
		opts = append(opts, fsm.WithHook[model.State, EventKind](func(from, to model.State, ev EventKind) {
			o(Transition{From: from, To: to, Event: ev})
		}))
	}

	m, err := fsm.New(model.StateUninitialized, edges, opts...)
	if err != nil {
		// The table is static; a duplicate edge is a programming error.
		panic(err)
	}
	return &Machine{m: m}
}

// State returns the current state.
func (m *Machine) State() model.State { return m.m.State() }

// Can reports whether ev is allowed from the current state.
func (m *Machine) Can(ev EventKind) bool { return m.m.Can(ev) }

// Fire applies ev atomically. On rejection the current state is left
// unchanged and a *TransitionError is returned.
func (m *Machine) Fire(ctx context.Context, ev EventKind) (Transition, error) {
	from, to, err := m.m.Apply(ctx, ev)
	if err != nil {
		reason := ForbiddenNoEdge
		if from.IsTerminal() {
			reason = ForbiddenTerminalAbsorbing
		}
		return Transition{}, &TransitionError{From: from, Event: ev, Reason: reason}
	}
	return Transition{From: from, To: to, Event: ev}, nil
}
