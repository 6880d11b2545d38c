// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package session

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/embedbridge/internal/clock"
	"github.com/ManuGH/embedbridge/internal/domain/embed/lifecycle"
	"github.com/ManuGH/embedbridge/internal/domain/embed/ports"
	"github.com/ManuGH/embedbridge/internal/embed/bus"
)

// DefaultCommandTimeout is the reply window for reply-expecting commands.
const DefaultCommandTimeout = 10 * time.Second

type options struct {
	view           ports.View
	styler         ports.Styler
	commandTimeout time.Duration
	fetchTimeout   time.Duration
	clock          clock.Clock
	logger         *zerolog.Logger
	onListenerErr  bus.FailureHandler
	sessionID      string
	onTransition   func(lifecycle.Transition)
}

// Option configures a Controller.
type Option func(*options)

// WithView sets the collaborator that loads remote content.
func WithView(v ports.View) Option {
	return func(o *options) { o.view = v }
}

// WithStyler sets the collaborator that applies the customization descriptor.
func WithStyler(s ports.Styler) Option {
	return func(o *options) { o.styler = s }
}

// WithCommandTimeout sets the reply window for reply-expecting commands.
func WithCommandTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.commandTimeout = d
		}
	}
}

// WithFetchTimeout bounds each token provider call.
func WithFetchTimeout(d time.Duration) Option {
	return func(o *options) { o.fetchTimeout = d }
}

// WithClock injects the clock used for timeouts and token stamps.
func WithClock(c clock.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithLogger overrides the session logger.
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.logger = &l }
}

// WithListenerErrorHandler receives isolated listener failures.
func WithListenerErrorHandler(h bus.FailureHandler) Option {
	return func(o *options) { o.onListenerErr = h }
}

// WithSessionID fixes the session id instead of generating one.
func WithSessionID(id string) Option {
	return func(o *options) { o.sessionID = id }
}

// WithTransitionObserver is called after every committed state change.
// It runs on the goroutine that fired the event and must not block.
func WithTransitionObserver(fn func(lifecycle.Transition)) Option {
	return func(o *options) { o.onTransition = fn }
}
