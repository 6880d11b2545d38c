// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package lifecycle

import (
	"github.com/ManuGH/embedbridge/internal/domain/embed/model"
)

// Transition is a single allowed edge in the lifecycle state machine.
type Transition struct {
	From  model.State
	To    model.State
	Event EventKind
}

// States lists every lifecycle state.
func States() []model.State {
	return []model.State{
		model.StateUninitialized,
		model.StateAuthenticating,
		model.StateLoading,
		model.StateReady,
		model.StateError,
		model.StateReloading,
		model.StateDisposed,
	}
}

var transitionsTable = buildTable()

func buildTable() []Transition {
	t := []Transition{
		// Start path
		{From: model.StateUninitialized, To: model.StateAuthenticating, Event: EvInitialize},
		{From: model.StateAuthenticating, To: model.StateLoading, Event: EvTokenAcquired},
		{From: model.StateLoading, To: model.StateReady, Event: EvContentRendered},

		// Failures
		{From: model.StateAuthenticating, To: model.StateError, Event: EvAuthFailed},
		{From: model.StateLoading, To: model.StateError, Event: EvContentError},
		{From: model.StateReloading, To: model.StateError, Event: EvContentError},
		{From: model.StateAuthenticating, To: model.StateError, Event: EvChannelClosed},
		{From: model.StateLoading, To: model.StateError, Event: EvChannelClosed},
		{From: model.StateReady, To: model.StateError, Event: EvChannelClosed},
		{From: model.StateReloading, To: model.StateError, Event: EvChannelClosed},

		// Reload path
		{From: model.StateReady, To: model.StateReloading, Event: EvReloadRequested},
		{From: model.StateReloading, To: model.StateReady, Event: EvReloadAborted},
		{From: model.StateReloading, To: model.StateReady, Event: EvContentRendered},

		// Re-authentication
		{From: model.StateReady, To: model.StateReloading, Event: EvAuthExpired},
		{From: model.StateReloading, To: model.StateAuthenticating, Event: EvReauthenticate},
		{From: model.StateLoading, To: model.StateAuthenticating, Event: EvReauthenticate},
		{From: model.StateError, To: model.StateAuthenticating, Event: EvRetry},
	}

	// Teardown from every live state
	for _, s := range States() {
		if s.IsTerminal() {
			continue
		}
		t = append(t, Transition{From: s, To: model.StateDisposed, Event: EvDispose})
	}
	return t
}

// TransitionFor returns the allowed transition for a given state+event.
func TransitionFor(from model.State, ev EventKind) (Transition, bool) {
	for _, tr := range transitionsTable {
		if tr.From == from && tr.Event == ev {
			return tr, true
		}
	}
	return Transition{}, false
}

// Table returns a copy of every allowed edge.
func Table() []Transition {
	out := make([]Transition, len(transitionsTable))
	copy(out, transitionsTable)
	return out
}
