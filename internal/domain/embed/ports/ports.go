// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package ports defines the collaborators an embed session consumes from
// the host: the message channel, the token provider, the view that loads
// remote content and the styler that applies customization.
package ports

import (
	"context"

	"github.com/ManuGH/embedbridge/internal/domain/embed/model"
)

// Channel is the bidirectional message transport between host and content.
//
// Ready is closed exactly once when the channel becomes writable; Done is
// closed exactly once when it is torn down. Inbound delivers messages in
// arrival order and is never closed before Done.
type Channel interface {
	// Prepare asks the transport to start accepting traffic.
	Prepare(ctx context.Context) error
	// Send fails with *model.ChannelError when the channel is not writable.
	Send(ctx context.Context, msg model.Message) error
	Inbound() <-chan model.Message
	Ready() <-chan struct{}
	Done() <-chan struct{}
	Close() error
}

// TokenProvider fetches a fresh session token. It is invoked at most once
// concurrently per auth manager; retry policy belongs to the implementation.
type TokenProvider func(ctx context.Context) (model.SessionToken, error)

// LoadRequest is handed to the view when content should (re)load.
type LoadRequest struct {
	SessionID string
	Token     model.SessionToken
	Config    model.EmbedConfig
	Reload    bool
}

// View loads the remote content with the acquired token.
type View interface {
	Load(ctx context.Context, req LoadRequest) error
}

// Styler applies the appearance descriptor to the loaded content.
type Styler interface {
	Apply(ctx context.Context, c model.Customization, cfg model.EmbedConfig) error
}

// ViewFunc adapts a function to View.
type ViewFunc func(ctx context.Context, req LoadRequest) error

func (f ViewFunc) Load(ctx context.Context, req LoadRequest) error { return f(ctx, req) }

// StylerFunc adapts a function to Styler.
type StylerFunc func(ctx context.Context, c model.Customization, cfg model.EmbedConfig) error

func (f StylerFunc) Apply(ctx context.Context, c model.Customization, cfg model.EmbedConfig) error {
	return f(ctx, c, cfg)
}
