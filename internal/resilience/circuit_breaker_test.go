// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/embedbridge/internal/clock"
)

var errUpstream = errors.New("token endpoint down")

func failing(context.Context) error { return errUpstream }
func succeeding(context.Context) error { return nil }

func newTestBreaker(t *testing.T) (*CircuitBreaker, *clock.Fake) {
	t.Helper()
	fc := clock.NewFake(time.Unix(1700000000, 0))
	return NewCircuitBreaker("token_source", 2, 10*time.Second, WithClock(fc)), fc
}

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	cb, _ := newTestBreaker(t)
	ctx := context.Background()

	require.ErrorIs(t, cb.Execute(ctx, failing), errUpstream)
	assert.Equal(t, StateClosed, cb.State())
	require.ErrorIs(t, cb.Execute(ctx, failing), errUpstream)
	assert.Equal(t, StateOpen, cb.State())

	called := false
	err := cb.Execute(ctx, func(context.Context) error { called = true; return nil })
	require.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called, "open breaker must not call upstream")

	var open *OpenError
	require.ErrorAs(t, err, &open)
	assert.Equal(t, "token_source", open.Name)
	assert.Equal(t, 10*time.Second, open.RetryAfter)
}

func TestCircuitBreaker_SuccessResetsFailures(t *testing.T) {
	cb, _ := newTestBreaker(t)
	ctx := context.Background()

	_ = cb.Execute(ctx, failing)
	require.NoError(t, cb.Execute(ctx, succeeding))
	_ = cb.Execute(ctx, failing)
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_HalfOpenProbe(t *testing.T) {
	cb, fc := newTestBreaker(t)
	ctx := context.Background()
	_ = cb.Execute(ctx, failing)
	_ = cb.Execute(ctx, failing)

	fc.Advance(4 * time.Second)
	var open *OpenError
	require.ErrorAs(t, cb.Execute(ctx, succeeding), &open)
	assert.Equal(t, 6*time.Second, open.RetryAfter)

	fc.Advance(6 * time.Second)
	release := make(chan struct{})
	probing := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- cb.Execute(ctx, func(context.Context) error {
			close(probing)
			<-release
			return nil
		})
	}()
	<-probing
	assert.Equal(t, StateHalfOpen, cb.State())
	require.ErrorIs(t, cb.Execute(ctx, succeeding), ErrCircuitOpen, "only one probe at a time")

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_FailedProbeReopens(t *testing.T) {
	cb, fc := newTestBreaker(t)
	ctx := context.Background()
	_ = cb.Execute(ctx, failing)
	_ = cb.Execute(ctx, failing)

	fc.Advance(10 * time.Second)
	require.ErrorIs(t, cb.Execute(ctx, failing), errUpstream)
	assert.Equal(t, StateOpen, cb.State())
	require.ErrorIs(t, cb.Execute(ctx, succeeding), ErrCircuitOpen)
}

func TestCircuitBreaker_CallerCancellationIsNotAFailure(t *testing.T) {
	cb, _ := newTestBreaker(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for range 3 {
		err := cb.Execute(ctx, func(ctx context.Context) error { return ctx.Err() })
		require.ErrorIs(t, err, context.Canceled)
	}
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_PanicCountsAsFailure(t *testing.T) {
	fc := clock.NewFake(time.Unix(1700000000, 0))
	cb := NewCircuitBreaker("token_source", 1, time.Minute, WithClock(fc), WithPanicRecovery(true))

	assert.Panics(t, func() {
		_ = cb.Execute(context.Background(), func(context.Context) error { panic("boom") })
	})
	assert.Equal(t, StateOpen, cb.State())
}

func TestNewCircuitBreaker_Defaults(t *testing.T) {
	cb := NewCircuitBreaker("defaults", 0, 0)
	assert.Equal(t, 3, cb.threshold)
	assert.Equal(t, 30*time.Second, cb.resetTimeout)
	assert.Equal(t, "defaults", cb.Name())
	assert.Equal(t, StateClosed, cb.State())
}
