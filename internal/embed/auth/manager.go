// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package auth owns token acquisition for one embed session.
package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/singleflight"

	"github.com/ManuGH/embedbridge/internal/clock"
	"github.com/ManuGH/embedbridge/internal/domain/embed/model"
	"github.com/ManuGH/embedbridge/internal/domain/embed/ports"
	xglog "github.com/ManuGH/embedbridge/internal/log"
	"github.com/ManuGH/embedbridge/internal/metrics"
	"github.com/ManuGH/embedbridge/internal/telemetry"
)

// singleflight key; one fetch per manager at a time.
const fetchKey = "token"

var tracer = telemetry.Tracer("embedbridge/auth")

// Manager wraps a token provider with single-flight deduplication and
// explicit invalidation. There is no background refresh.
//
// Every Invalidate and every fetch start bumps a generation counter. The
// cached token is valid only while its generation is current, and a caller
// accepts a fetch result only if that fetch started at or after the
// generation the caller observed on entry.
type Manager struct {
	provider     ports.TokenProvider
	clock        clock.Clock
	logger       zerolog.Logger
	fetchTimeout time.Duration

	group   singleflight.Group
	waiting atomic.Int64

	mu       sync.Mutex
	gen      uint64
	token    model.SessionToken
	tokenGen uint64
	hasToken bool
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock sets the clock used to stamp tokens and time fetches.
func WithClock(c clock.Clock) Option {
	return func(m *Manager) { m.clock = c }
}

// WithLogger overrides the component logger.
func WithLogger(l zerolog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithFetchTimeout bounds a single provider call. Zero means unbounded.
func WithFetchTimeout(d time.Duration) Option {
	return func(m *Manager) { m.fetchTimeout = d }
}

// NewManager creates a manager around provider.
func NewManager(provider ports.TokenProvider, opts ...Option) *Manager {
	m := &Manager{
		provider: provider,
		clock:    clock.Real(),
		logger:   xglog.WithComponent("auth"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

type fetchResult struct {
	gen   uint64
	token model.SessionToken
}

// Acquire returns the current token or joins/starts a fetch. Concurrent
// callers share one in-flight provider call and observe the same token or
// the same *model.AuthError. Cancelling ctx abandons the wait but not the
// shared fetch.
func (m *Manager) Acquire(ctx context.Context) (model.SessionToken, error) {
	m.mu.Lock()
	if m.hasToken && m.tokenGen == m.gen {
		tok := m.token
		m.mu.Unlock()
		metrics.ObserveTokenFetch(metrics.TokenResultCached, 0)
		return tok, nil
	}
	need := m.gen
	m.mu.Unlock()

	ctx, span := tracer.Start(ctx, "auth.acquire")
	var err error
	defer func() { telemetry.End(span, err, "auth") }()

	for {
		ch := m.group.DoChan(fetchKey, func() (any, error) {
			return m.fetch(ctx)
		})
		m.waiting.Add(1)

		var res singleflight.Result
		select {
		case <-ctx.Done():
			m.waiting.Add(-1)
			err = ctx.Err()
			return model.SessionToken{}, err
		case res = <-ch:
			m.waiting.Add(-1)
		}

		r, _ := res.Val.(fetchResult)
		if r.gen < need {
			// Fetch started before an invalidation this caller observed.
			continue
		}
		span.SetAttributes(attribute.Bool(telemetry.TokenSharedKey, res.Shared))
		if res.Err != nil {
			err = res.Err
			return model.SessionToken{}, err
		}
		return r.token, nil
	}
}

func (m *Manager) fetch(ctx context.Context) (res any, err error) {
	m.mu.Lock()
	m.gen++
	gen := m.gen
	m.mu.Unlock()

	fetchCtx := context.WithoutCancel(ctx)
	if m.fetchTimeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(fetchCtx, m.fetchTimeout)
		defer cancel()
	}

	start := m.clock.Now()
	defer func() {
		if r := recover(); r != nil {
			err = &model.AuthError{Reason: fmt.Sprintf("token provider panicked: %v", r)}
			res = fetchResult{gen: gen}
		}
		result := metrics.TokenResultOK
		if err != nil {
			result = metrics.TokenResultError
		}
		metrics.ObserveTokenFetch(result, m.clock.Now().Sub(start))
	}()

	if m.provider == nil {
		return fetchResult{gen: gen}, &model.AuthError{Reason: "no token provider configured"}
	}

	tok, perr := m.provider(fetchCtx)
	if perr == nil && tok.IsZero() {
		perr = errors.New("token provider returned an empty token")
	}
	if perr != nil {
		m.logger.Warn().Err(perr).Uint64("generation", gen).Msg("token fetch failed")
		var authErr *model.AuthError
		if errors.As(perr, &authErr) {
			return fetchResult{gen: gen}, authErr
		}
		return fetchResult{gen: gen}, &model.AuthError{Reason: perr.Error(), Err: perr}
	}
	if tok.IssuedAt.IsZero() {
		tok.IssuedAt = m.clock.Now()
	}

	m.mu.Lock()
	if gen == m.gen {
		m.token = tok
		m.tokenGen = gen
		m.hasToken = true
	}
	m.mu.Unlock()

	m.logger.Debug().Uint64("generation", gen).Str("token", tok.Redacted()).Msg("token acquired")
	return fetchResult{gen: gen, token: tok}, nil
}

// Invalidate marks the current token stale; the next Acquire fetches anew
// even if a fetch is in flight.
func (m *Manager) Invalidate() {
	m.mu.Lock()
	m.gen++
	m.hasToken = false
	m.token = model.SessionToken{}
	m.mu.Unlock()
	m.logger.Debug().Msg("token invalidated")
}

// Current returns the cached token and whether it is still valid.
func (m *Manager) Current() (model.SessionToken, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.hasToken && m.tokenGen == m.gen {
		return m.token, true
	}
	return model.SessionToken{}, false
}

// Valid reports whether a current token is cached.
func (m *Manager) Valid() bool {
	_, ok := m.Current()
	return ok
}

// Waiting returns the number of callers blocked on a fetch.
func (m *Manager) Waiting() int {
	return int(m.waiting.Load())
}
