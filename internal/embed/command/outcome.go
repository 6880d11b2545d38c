// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package command

import (
	"context"

	"github.com/ManuGH/embedbridge/internal/domain/embed/model"
)

// Outcome is the result of a successful Trigger. Fire-and-forget commands
// are complete once sent; reply-expecting ones resolve through Await.
type Outcome struct {
	CorrelationID string
	Kind          model.HostEventKind

	p *pending
}

// ExpectsReply reports whether Await will block for a correlated reply.
func (o Outcome) ExpectsReply() bool { return o.p != nil }

// Done is closed once the reply, timeout or closure has settled the command.
// It is nil for fire-and-forget commands.
func (o Outcome) Done() <-chan struct{} {
	if o.p == nil {
		return nil
	}
	return o.p.done
}

// Await blocks until the command settles. Fire-and-forget commands return
// immediately with a nil payload. Cancelling ctx stops waiting but leaves
// the command pending until its reply window closes.
func (o Outcome) Await(ctx context.Context) (model.Payload, error) {
	if o.p == nil {
		return nil, nil
	}
	select {
	case <-o.p.done:
		return o.p.payload, o.p.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
