// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package session implements the embed session controller: it drives the
// lifecycle state machine over the auth manager, the event bus, the
// command dispatcher and the message channel.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ManuGH/embedbridge/internal/clock"
	"github.com/ManuGH/embedbridge/internal/domain/embed/lifecycle"
	"github.com/ManuGH/embedbridge/internal/domain/embed/model"
	"github.com/ManuGH/embedbridge/internal/domain/embed/ports"
	"github.com/ManuGH/embedbridge/internal/embed/auth"
	"github.com/ManuGH/embedbridge/internal/embed/bus"
	"github.com/ManuGH/embedbridge/internal/embed/command"
	xglog "github.com/ManuGH/embedbridge/internal/log"
	"github.com/ManuGH/embedbridge/internal/metrics"
	"github.com/ManuGH/embedbridge/internal/telemetry"
)

var tracer = telemetry.Tracer("embedbridge/session")

// Controller is one embed session. Create one per embedded view; instances
// share nothing.
type Controller struct {
	id      string
	channel ports.Channel
	view    ports.View
	styler  ports.Styler
	logger  zerolog.Logger

	onTransition func(lifecycle.Transition)

	machine    *lifecycle.Machine
	auth       *auth.Manager
	bus        *bus.Bus
	dispatcher *command.Dispatcher

	// ctx is cancelled by Dispose.
	ctx    context.Context
	cancel context.CancelFunc
	group  errgroup.Group

	pumpOnce sync.Once

	initMu      sync.Mutex
	initStarted bool
	initDone    chan struct{}
	initErr     error
	cfg         model.EmbedConfig
	prepared    bool
	loaded      bool
}

// New creates a controller in StateUninitialized.
func New(ch ports.Channel, provider ports.TokenProvider, opts ...Option) (*Controller, error) {
	if ch == nil {
		return nil, errors.New("session: nil channel")
	}
	o := options{
		commandTimeout: DefaultCommandTimeout,
		clock:          clock.Real(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.sessionID == "" {
		o.sessionID = uuid.NewString()
	}

	var base zerolog.Logger
	if o.logger != nil {
		base = *o.logger
	} else {
		base = xglog.WithComponent("session")
	}
	logger := base.With().Str(xglog.FieldSessionID, o.sessionID).Logger()

	c := &Controller{
		id:       o.sessionID,
		channel:  ch,
		view:     o.view,
		styler:   o.styler,
		logger:   logger,
		initDone: make(chan struct{}),

		onTransition: o.onTransition,
	}
	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.machine = lifecycle.NewMachine(c.observeTransition)
	c.auth = auth.NewManager(provider,
		auth.WithClock(o.clock),
		auth.WithLogger(logger),
		auth.WithFetchTimeout(o.fetchTimeout),
	)
	c.bus = bus.New(bus.WithLogger(logger), bus.WithFailureHandler(o.onListenerErr))

	d, err := command.New(ch, o.commandTimeout, command.WithClock(o.clock), command.WithLogger(logger))
	if err != nil {
		c.cancel()
		return nil, fmt.Errorf("session: %w", err)
	}
	c.dispatcher = d

	metrics.SessionOpened()
	return c, nil
}

func (c *Controller) observeTransition(tr lifecycle.Transition) {
	metrics.RecordTransition(string(tr.From), string(tr.To))
	c.logger.Info().
		Str(xglog.FieldOldState, string(tr.From)).
		Str(xglog.FieldNewState, string(tr.To)).
		Str(xglog.FieldEvent, string(tr.Event)).
		Msg("state transition")
	if c.onTransition != nil {
		c.onTransition(tr)
	}
}

// SessionID returns the controller's id.
func (c *Controller) SessionID() string { return c.id }

// State returns the current lifecycle state.
func (c *Controller) State() model.State { return c.machine.State() }

// Config returns the config passed to Initialize; it is invalid before that.
func (c *Controller) Config() model.EmbedConfig {
	c.initMu.Lock()
	defer c.initMu.Unlock()
	return c.cfg
}

// PendingCommands returns the number of commands awaiting a reply.
func (c *Controller) PendingCommands() int { return c.dispatcher.Pending() }

// On registers a listener for kind. Listeners run on the controller's
// inbound goroutine, so a listener must not block on a command reply.
func (c *Controller) On(kind model.EventKind, l bus.Listener) bus.Registration {
	return c.bus.On(kind, l)
}

// Off removes every listener for kind.
func (c *Controller) Off(kind model.EventKind) { c.bus.Off(kind) }

// Initialize authenticates and starts loading the content. It is
// idempotent: once a first call has started, later calls run no second
// flow. Callers that arrive while the first flow runs wait for it and get
// its result; callers that arrive after it return the current state.
func (c *Controller) Initialize(ctx context.Context, cfg model.EmbedConfig) (model.State, error) {
	if !cfg.Valid() {
		return c.State(), fmt.Errorf("%w: config not built with NewEmbedConfig", model.ErrInvalidConfig)
	}

	c.initMu.Lock()
	if c.initStarted {
		done := c.initDone
		c.initMu.Unlock()
		select {
		case <-done:
			return c.State(), nil
		default:
		}
		select {
		case <-done:
			return c.State(), c.initErr
		case <-ctx.Done():
			return c.State(), ctx.Err()
		}
	}
	c.initStarted = true
	c.cfg = cfg
	c.initMu.Unlock()

	err := c.initialize(ctx, cfg)

	c.initMu.Lock()
	c.initErr = err
	close(c.initDone)
	c.initMu.Unlock()
	return c.State(), err
}

func (c *Controller) initialize(ctx context.Context, cfg model.EmbedConfig) (err error) {
	ctx, stop := c.bindLifetime(ctx)
	defer stop()

	ctx, span := tracer.Start(ctx, "session.initialize")
	span.SetAttributes(telemetry.SessionAttributes(c.id, string(cfg.AuthMode()), cfg.Host())...)
	defer func() { telemetry.End(span, err, "session") }()

	if _, err = c.fire(ctx, lifecycle.EvInitialize); err != nil {
		return err
	}
	return c.authenticateAndLoad(ctx, cfg, false)
}

// bindLifetime derives a context that is also cancelled by Dispose.
func (c *Controller) bindLifetime(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(c.ctx, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

// authenticateAndLoad runs the Authenticating -> Loading leg. The machine
// must already be in StateAuthenticating.
func (c *Controller) authenticateAndLoad(ctx context.Context, cfg model.EmbedConfig, reload bool) error {
	tok, err := c.acquire(ctx, cfg)
	if err != nil {
		if c.disposed() {
			return model.ErrDisposed
		}
		var authErr *model.AuthError
		if !errors.As(err, &authErr) {
			authErr = &model.AuthError{Reason: err.Error(), Err: err}
		}
		c.logger.Warn().Err(authErr).Str(xglog.FieldAuthMode, string(cfg.AuthMode())).Msg("authentication failed")
		if _, ferr := c.fire(ctx, lifecycle.EvAuthFailed); ferr != nil {
			return ferr
		}
		c.bus.Dispatch(model.NewErrorEvent(model.CodeAuthFailed, authErr.Reason))
		return authErr
	}

	if _, err := c.fire(ctx, lifecycle.EvTokenAcquired); err != nil {
		return err
	}
	c.startPump()

	if !c.isPrepared() {
		if err := c.channel.Prepare(ctx); err != nil {
			return c.loadFailed(ctx, fmt.Errorf("prepare channel: %w", err))
		}
		c.initMu.Lock()
		c.prepared = true
		c.initMu.Unlock()
	}
	if c.view != nil {
		req := ports.LoadRequest{SessionID: c.id, Token: tok, Config: cfg, Reload: reload}
		if err := c.view.Load(ctx, req); err != nil {
			return c.loadFailed(ctx, fmt.Errorf("load view: %w", err))
		}
	}
	if custom := cfg.Customization(); c.styler != nil && !custom.IsZero() {
		if err := c.styler.Apply(ctx, custom, cfg); err != nil {
			return c.loadFailed(ctx, fmt.Errorf("apply customization: %w", err))
		}
	}

	c.initMu.Lock()
	c.loaded = true
	c.initMu.Unlock()
	return nil
}

func (c *Controller) isPrepared() bool {
	c.initMu.Lock()
	defer c.initMu.Unlock()
	return c.prepared
}

func (c *Controller) acquire(ctx context.Context, cfg model.EmbedConfig) (model.SessionToken, error) {
	if !cfg.AuthMode().RequiresToken() {
		return model.SessionToken{}, nil
	}
	return c.auth.Acquire(ctx)
}

func (c *Controller) loadFailed(ctx context.Context, err error) error {
	if c.disposed() {
		return model.ErrDisposed
	}
	c.logger.Warn().Err(err).Msg("content load failed")
	if _, ferr := c.fire(ctx, lifecycle.EvContentError); ferr == nil {
		c.bus.Dispatch(model.NewErrorEvent(model.CodeLoadFailed, err.Error()))
	}
	return err
}

// Retry re-runs the auth and load flow from StateError.
func (c *Controller) Retry(ctx context.Context) (model.State, error) {
	select {
	case <-c.channel.Done():
		if !c.disposed() {
			return c.State(), model.ErrChannelClosed
		}
	default:
	}
	if _, err := c.fire(ctx, lifecycle.EvRetry); err != nil {
		return c.State(), err
	}

	ctx, stop := c.bindLifetime(ctx)
	defer stop()

	c.initMu.Lock()
	cfg, reload := c.cfg, c.loaded
	c.initMu.Unlock()

	err := c.authenticateAndLoad(ctx, cfg, reload)
	return c.State(), err
}

// Trigger sends a host command. A Reload issued in StateReady moves the
// session to StateReloading until the content renders again. Commands on
// a channel that is not ready fail with *model.ChannelError without a
// state change; after Dispose every call fails with model.ErrChannelClosed.
func (c *Controller) Trigger(ctx context.Context, kind model.HostEventKind, payload model.Payload) (command.Outcome, error) {
	ev := model.HostEvent{Kind: kind, Payload: payload}
	if kind != model.HostReload {
		return c.dispatcher.Trigger(ctx, ev)
	}

	_, ferr := c.fire(ctx, lifecycle.EvReloadRequested)
	reloading := ferr == nil
	out, err := c.dispatcher.Trigger(ctx, ev)
	if err != nil && reloading {
		_, _ = c.fire(ctx, lifecycle.EvReloadAborted)
	}
	return out, err
}

// Dispose tears the session down: listeners are cleared, pending commands
// fail with model.ErrChannelClosed and the channel is closed. It is safe to
// call more than once and from a listener.
func (c *Controller) Dispose() {
	if _, err := c.machine.Fire(context.Background(), lifecycle.EvDispose); err != nil {
		return
	}
	c.cancel()
	c.bus.Close()
	n := c.dispatcher.Close(model.ErrChannelClosed)
	if err := c.channel.Close(); err != nil {
		c.logger.Warn().Err(err).Msg("channel close failed")
	}
	metrics.SessionClosed()
	c.logger.Info().Int("pending_resolved", n).Msg("session disposed")
}

// Wait blocks until the controller's background goroutines have exited.
// It returns promptly only after Dispose or channel closure.
func (c *Controller) Wait() {
	_ = c.group.Wait()
}

func (c *Controller) disposed() bool {
	return c.ctx.Err() != nil || c.State() == model.StateDisposed
}

func (c *Controller) fire(ctx context.Context, ev lifecycle.EventKind) (lifecycle.Transition, error) {
	tr, err := c.machine.Fire(ctx, ev)
	if err != nil && c.State() == model.StateDisposed {
		return tr, model.ErrDisposed
	}
	return tr, err
}

// Info is a point-in-time view of a session.
type Info struct {
	SessionID       string         `json:"sessionId"`
	State           model.State    `json:"state"`
	Host            string         `json:"host,omitempty"`
	AuthMode        model.AuthMode `json:"authMode,omitempty"`
	PendingCommands int            `json:"pendingCommands"`
	TokenValid      bool           `json:"tokenValid"`
}

// Info returns the session's current status.
func (c *Controller) Info() Info {
	cfg := c.Config()
	return Info{
		SessionID:       c.id,
		State:           c.State(),
		Host:            cfg.Host(),
		AuthMode:        cfg.AuthMode(),
		PendingCommands: c.dispatcher.Pending(),
		TokenValid:      c.auth.Valid(),
	}
}
