// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package bridge

import (
	"context"
	"fmt"

	"github.com/ManuGH/embedbridge/internal/domain/embed/model"
	"github.com/ManuGH/embedbridge/internal/domain/embed/ports"
)

// Kinds the daemon sends to the content outside the host command set.
const (
	KindInit               = "Init"
	KindApplyCustomization = "ApplyCustomization"
)

// channelView loads content by handing the session parameters to the
// content over its own channel. The remote page owns the actual rendering.
type channelView struct {
	ch ports.Channel
}

var (
	_ ports.View   = channelView{}
	_ ports.Styler = channelView{}
)

func (v channelView) waitReady(ctx context.Context) error {
	select {
	case <-v.ch.Ready():
		return nil
	case <-v.ch.Done():
		return &model.ChannelError{Op: "wait ready", Err: model.ErrChannelClosed}
	case <-ctx.Done():
		return fmt.Errorf("wait for channel ready: %w", ctx.Err())
	}
}

func (v channelView) Load(ctx context.Context, req ports.LoadRequest) error {
	if err := v.waitReady(ctx); err != nil {
		return err
	}
	payload := model.Payload{
		"sessionId": req.SessionID,
		"host":      req.Config.Host(),
		"authMode":  string(req.Config.AuthMode()),
		"reload":    req.Reload,
	}
	if !req.Token.IsZero() {
		payload["token"] = req.Token.Value
	}
	return v.ch.Send(ctx, model.Message{
		Direction: model.HostToContent,
		Kind:      KindInit,
		Payload:   payload,
	})
}

func (v channelView) Apply(ctx context.Context, c model.Customization, _ model.EmbedConfig) error {
	if err := v.waitReady(ctx); err != nil {
		return err
	}
	payload := model.Payload{}
	if c.StylesheetURL != "" {
		payload["stylesheetURL"] = c.StylesheetURL
	}
	if len(c.Variables) > 0 {
		vars := make(map[string]any, len(c.Variables))
		for k, val := range c.Variables {
			vars[k] = val
		}
		payload["variables"] = vars
	}
	return v.ch.Send(ctx, model.Message{
		Direction: model.HostToContent,
		Kind:      KindApplyCustomization,
		Payload:   payload,
	})
}
