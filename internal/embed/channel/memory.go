// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package channel

import (
	"context"
	"errors"
	"sync"

	"github.com/ManuGH/embedbridge/internal/domain/embed/model"
	"github.com/ManuGH/embedbridge/internal/domain/embed/ports"
)

// ErrInboundFull is returned by Emit when the inbound buffer is exhausted.
var ErrInboundFull = errors.New("inbound buffer full")

const defaultInboundBuffer = 256

// Memory is an in-process channel. The host side uses it through
// ports.Channel; the content side drives it with Emit, MarkReady and
// Outbound.
type Memory struct {
	inbound  chan model.Message
	outbound chan model.Message

	ready     chan struct{}
	readyOnce sync.Once
	done      chan struct{}
	doneOnce  sync.Once

	autoReady bool
	sendErr   error

	mu       sync.Mutex
	prepared int
	sent     []model.Message
}

var _ ports.Channel = (*Memory)(nil)

// MemoryOption configures a Memory channel.
type MemoryOption func(*Memory)

// WithInboundBuffer sets how many inbound messages Emit may queue.
func WithInboundBuffer(n int) MemoryOption {
	return func(m *Memory) {
		if n > 0 {
			m.inbound = make(chan model.Message, n)
		}
	}
}

// WithAutoReady marks the channel ready as soon as Prepare is called.
func WithAutoReady() MemoryOption {
	return func(m *Memory) { m.autoReady = true }
}

// WithSendError makes every Send fail with err, for fault injection.
func WithSendError(err error) MemoryOption {
	return func(m *Memory) { m.sendErr = err }
}

func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		inbound:  make(chan model.Message, defaultInboundBuffer),
		outbound: make(chan model.Message, defaultInboundBuffer),
		ready:    make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Memory) Prepare(ctx context.Context) error {
	select {
	case <-m.done:
		return &model.ChannelError{Op: "prepare", Err: model.ErrChannelClosed}
	default:
	}
	m.mu.Lock()
	m.prepared++
	m.mu.Unlock()
	if m.autoReady {
		m.MarkReady()
	}
	return nil
}

func (m *Memory) Send(ctx context.Context, msg model.Message) error {
	select {
	case <-m.done:
		return &model.ChannelError{Op: "send", Err: model.ErrChannelClosed}
	default:
	}
	select {
	case <-m.ready:
	default:
		return &model.ChannelError{Op: "send", Err: model.ErrChannelNotReady}
	}
	if m.sendErr != nil {
		return &model.ChannelError{Op: "send", Err: m.sendErr}
	}
	if err := msg.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	m.sent = append(m.sent, msg)
	m.mu.Unlock()

	select {
	case m.outbound <- msg:
	default:
		// The content side is not draining Outbound; Sent still records it.
	}
	return nil
}

func (m *Memory) Inbound() <-chan model.Message { return m.inbound }
func (m *Memory) Ready() <-chan struct{}        { return m.ready }
func (m *Memory) Done() <-chan struct{}         { return m.done }

// Close tears the channel down. It is safe to call more than once.
func (m *Memory) Close() error {
	m.doneOnce.Do(func() { close(m.done) })
	return nil
}

// MarkReady signals readiness. Only the first call has an effect, and
// none after Close.
func (m *Memory) MarkReady() {
	select {
	case <-m.done:
		return
	default:
	}
	m.readyOnce.Do(func() { close(m.ready) })
}

// Emit queues a content->host message. Messages emitted after Close are
// discarded.
func (m *Memory) Emit(msg model.Message) error {
	if msg.Direction == "" {
		msg.Direction = model.ContentToHost
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	select {
	case <-m.done:
		return &model.ChannelError{Op: "emit", Err: model.ErrChannelClosed}
	default:
	}
	select {
	case m.inbound <- msg:
		return nil
	default:
		return ErrInboundFull
	}
}

// Outbound delivers host->content messages as they are sent.
func (m *Memory) Outbound() <-chan model.Message { return m.outbound }

// Sent returns every message sent so far.
func (m *Memory) Sent() []model.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.Message(nil), m.sent...)
}

// Prepared returns how many times Prepare was called.
func (m *Memory) Prepared() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.prepared
}
