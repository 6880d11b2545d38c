// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package command sends host commands into embedded content and matches
// correlated replies to the callers awaiting them.
package command

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ManuGH/embedbridge/internal/clock"
	"github.com/ManuGH/embedbridge/internal/domain/embed/model"
	xglog "github.com/ManuGH/embedbridge/internal/log"
	"github.com/ManuGH/embedbridge/internal/metrics"
	"github.com/ManuGH/embedbridge/internal/telemetry"
)

var tracer = telemetry.Tracer("embedbridge/command")

// Sender writes one framed message to the channel.
type Sender interface {
	Send(ctx context.Context, msg model.Message) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, msg model.Message) error

func (f SenderFunc) Send(ctx context.Context, msg model.Message) error { return f(ctx, msg) }

type pending struct {
	kind    model.HostEventKind
	id      string
	done    chan struct{}
	payload model.Payload
	err     error
	timer   clock.Timer
}

// Dispatcher frames host commands with fresh correlation ids and keeps the
// pending-reply table. Each entry is removed exactly once: on reply, on
// timeout or on Close.
type Dispatcher struct {
	sender  Sender
	timeout time.Duration
	clock   clock.Clock
	logger  zerolog.Logger

	prefix string
	seq    atomic.Uint64

	// sendMu keeps channel writes in trigger order.
	sendMu sync.Mutex

	mu       sync.Mutex
	pending  map[string]*pending
	closed   bool
	closeErr error
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithClock sets the clock that arms reply timeouts.
func WithClock(c clock.Clock) Option {
	return func(d *Dispatcher) { d.clock = c }
}

// WithLogger overrides the component logger.
func WithLogger(l zerolog.Logger) Option {
	return func(d *Dispatcher) { d.logger = l }
}

// New creates a dispatcher. timeout is the reply window for reply-expecting
// commands and must be positive.
func New(sender Sender, timeout time.Duration, opts ...Option) (*Dispatcher, error) {
	if sender == nil {
		return nil, errors.New("command: nil sender")
	}
	if timeout <= 0 {
		return nil, fmt.Errorf("command: reply timeout must be positive, got %s", timeout)
	}
	d := &Dispatcher{
		sender:  sender,
		timeout: timeout,
		clock:   clock.Real(),
		logger:  xglog.WithComponent("command"),
		prefix:  uuid.NewString(),
		pending: make(map[string]*pending),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Timeout returns the configured reply window.
func (d *Dispatcher) Timeout() time.Duration { return d.timeout }

func (d *Dispatcher) nextID() string {
	return d.prefix + "-" + strconv.FormatUint(d.seq.Add(1), 10)
}

func (d *Dispatcher) owns(id string) bool {
	return strings.HasPrefix(id, d.prefix+"-")
}

// Trigger frames ev and writes it to the channel. For reply-expecting kinds
// the pending entry exists before the write, and the reply window starts
// once the write succeeded. A failed write is returned to the caller and
// leaves nothing pending. After Close every call fails without touching
// the channel.
func (d *Dispatcher) Trigger(ctx context.Context, ev model.HostEvent) (out Outcome, err error) {
	if strings.TrimSpace(string(ev.Kind)) == "" {
		return Outcome{}, fmt.Errorf("%w: empty kind", model.ErrUnknownHostEvent)
	}

	expects := ev.Kind.ExpectsReply()
	id := d.nextID()

	ctx, span := tracer.Start(ctx, "command.trigger")
	span.SetAttributes(telemetry.CommandAttributes(string(ev.Kind), id, expects)...)
	defer func() { telemetry.End(span, err, "command") }()

	var p *pending
	d.mu.Lock()
	if d.closed {
		err = d.closeErr
		d.mu.Unlock()
		return Outcome{}, err
	}
	if expects {
		p = &pending{kind: ev.Kind, id: id, done: make(chan struct{})}
		d.pending[id] = p
		metrics.AddCommandsPending(1)
	}
	d.mu.Unlock()

	d.sendMu.Lock()
	err = d.sender.Send(ctx, ev.Message(id))
	d.sendMu.Unlock()

	if err != nil {
		var chErr *model.ChannelError
		if !errors.As(err, &chErr) {
			err = &model.ChannelError{Op: "send", Err: err}
		}
		if p != nil {
			d.resolve(id, nil, err, metrics.OutcomeSendFail)
		} else {
			metrics.IncCommandOutcome(string(ev.Kind), metrics.OutcomeSendFail)
		}
		return Outcome{}, err
	}
	metrics.IncCommandSent(string(ev.Kind))

	logger := d.logger.With().
		Str(xglog.FieldCommandKind, string(ev.Kind)).
		Str(xglog.FieldCorrelationID, id).
		Logger()

	if p == nil {
		metrics.IncCommandOutcome(string(ev.Kind), metrics.OutcomeSent)
		logger.Debug().Msg("command sent")
		return Outcome{CorrelationID: id, Kind: ev.Kind}, nil
	}

	timer := d.clock.AfterFunc(d.timeout, func() { d.expire(id) })
	d.mu.Lock()
	if _, still := d.pending[id]; still {
		p.timer = timer
	} else {
		timer.Stop()
	}
	d.mu.Unlock()

	logger.Debug().Dur("timeout", d.timeout).Msg("command sent, awaiting reply")
	return Outcome{CorrelationID: id, Kind: ev.Kind, p: p}, nil
}

// Resolve settles the pending entry a reply belongs to. It reports whether
// the message was consumed: replies to this dispatcher's commands are
// consumed even when they arrive too late to match anything.
func (d *Dispatcher) Resolve(msg model.Message) bool {
	if !msg.IsReply() {
		return false
	}

	var err error
	if model.CanonicalEventKind(msg.Kind) == model.EventError {
		ev := model.DecodeEvent(msg)
		err = ev.Err()
	}
	if d.resolve(msg.CorrelationID, msg.Payload.Clone(), err, metrics.OutcomeReplied) {
		return true
	}
	if d.owns(msg.CorrelationID) {
		metrics.IncCommandOutcome(msg.Kind, metrics.OutcomeLate)
		d.logger.Debug().
			Str(xglog.FieldCorrelationID, msg.CorrelationID).
			Str(xglog.FieldCommandKind, msg.Kind).
			Msg("late reply dropped")
		return true
	}
	return false
}

func (d *Dispatcher) expire(id string) {
	d.mu.Lock()
	p, ok := d.pending[id]
	d.mu.Unlock()
	if !ok {
		return
	}
	d.resolve(id, nil, &model.CommandTimeoutError{Kind: p.kind, CorrelationID: id, After: d.timeout}, metrics.OutcomeTimeout)
}

// resolve removes and settles one entry. It returns false if id was not pending.
func (d *Dispatcher) resolve(id string, payload model.Payload, err error, outcome string) bool {
	d.mu.Lock()
	p, ok := d.pending[id]
	if !ok {
		d.mu.Unlock()
		return false
	}
	delete(d.pending, id)
	d.mu.Unlock()

	d.settle(p, payload, err, outcome)
	return true
}

func (d *Dispatcher) settle(p *pending, payload model.Payload, err error, outcome string) {
	if p.timer != nil {
		p.timer.Stop()
	}
	p.payload, p.err = payload, err
	close(p.done)
	metrics.AddCommandsPending(-1)
	metrics.IncCommandOutcome(string(p.kind), outcome)

	if outcome == metrics.OutcomeTimeout {
		d.logger.Warn().
			Str(xglog.FieldCommandKind, string(p.kind)).
			Str(xglog.FieldCorrelationID, p.id).
			Dur("after", d.timeout).
			Msg("command timed out")
	}
}

// Close resolves every pending entry with err (model.ErrChannelClosed when
// nil) and rejects later triggers. It returns the number of entries resolved.
func (d *Dispatcher) Close(err error) int {
	if err == nil {
		err = model.ErrChannelClosed
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return 0
	}
	d.closed = true
	d.closeErr = err
	drained := make([]*pending, 0, len(d.pending))
	for id, p := range d.pending {
		drained = append(drained, p)
		delete(d.pending, id)
	}
	d.mu.Unlock()

	for _, p := range drained {
		d.settle(p, nil, err, metrics.OutcomeClosed)
	}
	if len(drained) > 0 {
		d.logger.Debug().Int("pending", len(drained)).Msg("pending commands resolved on close")
	}
	return len(drained)
}

// Pending returns the number of commands awaiting a reply.
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}
