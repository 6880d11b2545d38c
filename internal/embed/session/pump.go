// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package session

import (
	"github.com/ManuGH/embedbridge/internal/domain/embed/lifecycle"
	"github.com/ManuGH/embedbridge/internal/domain/embed/model"
	xglog "github.com/ManuGH/embedbridge/internal/log"
	"github.com/ManuGH/embedbridge/internal/metrics"
)

func (c *Controller) startPump() {
	c.pumpOnce.Do(func() {
		c.group.Go(func() error {
			c.pump()
			return nil
		})
	})
}

// pump is the single consumer of the channel's inbound messages. Messages
// that arrive before the channel is ready are held and delivered in order
// once it is.
func (c *Controller) pump() {
	inbound := c.channel.Inbound()
	ready := c.channel.Ready()
	var held []model.Message

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-c.channel.Done():
			c.channelClosed()
			return
		case <-ready:
			ready = nil
			for _, msg := range held {
				c.handle(msg)
			}
			held = nil
		case msg := <-inbound:
			if ready != nil {
				held = append(held, msg)
				metrics.IncInboundBuffered()
				continue
			}
			c.handle(msg)
		}
	}
}

func (c *Controller) handle(msg model.Message) {
	if c.dispatcher.Resolve(msg) {
		return
	}
	ev := model.DecodeEvent(msg)
	c.applyEffects(ev)
	c.bus.Dispatch(ev)
}

// applyEffects moves the lifecycle for inbound events before listeners
// see them, so a listener observes the post-event state.
func (c *Controller) applyEffects(ev model.EmbedEvent) {
	switch {
	case ev.IsAuthExpiry():
		c.startReauth()
	case ev.Kind == model.EventLiveboardRendered:
		if _, err := c.machine.Fire(c.ctx, lifecycle.EvContentRendered); err != nil {
			c.logger.Debug().Err(err).Msg("render event ignored")
		}
	case ev.Kind == model.EventError:
		switch c.State() {
		case model.StateLoading, model.StateReloading:
			_, _ = c.machine.Fire(c.ctx, lifecycle.EvContentError)
		}
	}
}

// startReauth discards the current token and re-runs the auth and load
// flow in the background. Expiry reported while already authenticating is
// absorbed by the running flow.
func (c *Controller) startReauth() {
	switch c.State() {
	case model.StateReady:
		if _, err := c.machine.Fire(c.ctx, lifecycle.EvAuthExpired); err != nil {
			return
		}
	case model.StateLoading, model.StateReloading:
	default:
		c.logger.Debug().Str(xglog.FieldEvent, "auth_expire").Msg("auth expiry ignored in current state")
		return
	}
	if _, err := c.machine.Fire(c.ctx, lifecycle.EvReauthenticate); err != nil {
		return
	}

	c.auth.Invalidate()
	cfg := c.Config()
	c.logger.Info().Msg("session token expired, re-authenticating")
	c.group.Go(func() error {
		if err := c.authenticateAndLoad(c.ctx, cfg, true); err != nil {
			c.logger.Warn().Err(err).Msg("re-authentication failed")
		}
		return nil
	})
}

func (c *Controller) channelClosed() {
	if c.disposed() {
		return
	}
	n := c.dispatcher.Close(model.ErrChannelClosed)
	if _, err := c.machine.Fire(c.ctx, lifecycle.EvChannelClosed); err != nil {
		c.logger.Debug().Err(err).Msg("channel closed outside an active state")
	}
	c.logger.Warn().Int("pending_resolved", n).Msg("channel closed by peer")
	c.bus.Dispatch(model.NewErrorEvent(model.CodeChannelClosed, "channel closed"))
}
