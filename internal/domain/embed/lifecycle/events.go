// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package lifecycle

// EventKind is a domain event in the embed session lifecycle.
type EventKind string

const (
	EvInitialize      EventKind = "initialize"
	EvTokenAcquired   EventKind = "token_acquired"
	EvAuthFailed      EventKind = "auth_failed"
	EvContentRendered EventKind = "content_rendered"
	EvContentError    EventKind = "content_error"
	EvChannelClosed   EventKind = "channel_closed"
	EvReloadRequested EventKind = "reload_requested"
	EvReloadAborted   EventKind = "reload_aborted"
	EvAuthExpired     EventKind = "auth_expired"
	EvReauthenticate  EventKind = "reauthenticate"
	EvRetry           EventKind = "retry"
	EvDispose         EventKind = "dispose"
)

// Events lists every lifecycle event.
func Events() []EventKind {
	return []EventKind{
		EvInitialize, EvTokenAcquired, EvAuthFailed, EvContentRendered,
		EvContentError, EvChannelClosed, EvReloadRequested, EvReloadAborted,
		EvAuthExpired, EvReauthenticate, EvRetry, EvDispose,
	}
}
