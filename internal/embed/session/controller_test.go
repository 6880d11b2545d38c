// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ManuGH/embedbridge/internal/clock"
	"github.com/ManuGH/embedbridge/internal/domain/embed/lifecycle"
	"github.com/ManuGH/embedbridge/internal/domain/embed/model"
	"github.com/ManuGH/embedbridge/internal/domain/embed/ports"
	"github.com/ManuGH/embedbridge/internal/embed/bus"
	"github.com/ManuGH/embedbridge/internal/embed/channel"
	"github.com/ManuGH/embedbridge/internal/embed/command"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// countingProvider hands out tok-1, tok-2, ... and fails while err is set.
type countingProvider struct {
	calls atomic.Int32
	mu    sync.Mutex
	err   error
}

func (p *countingProvider) setErr(err error) {
	p.mu.Lock()
	p.err = err
	p.mu.Unlock()
}

func (p *countingProvider) fetch(context.Context) (model.SessionToken, error) {
	n := p.calls.Add(1)
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return model.SessionToken{}, p.err
	}
	return model.SessionToken{Value: fmt.Sprintf("tok-%d", n)}, nil
}

// recordingView records every load request.
type recordingView struct {
	mu   sync.Mutex
	reqs []ports.LoadRequest
	err  error
}

func (v *recordingView) Load(_ context.Context, req ports.LoadRequest) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.reqs = append(v.reqs, req)
	return v.err
}

func (v *recordingView) requests() []ports.LoadRequest {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]ports.LoadRequest(nil), v.reqs...)
}

type fixture struct {
	ctrl     *Controller
	ch       *channel.Memory
	provider *countingProvider
	view     *recordingView
}

func newFixture(t *testing.T, chOpts []channel.MemoryOption, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{
		ch:       channel.NewMemory(chOpts...),
		provider: &countingProvider{},
		view:     &recordingView{},
	}
	base := []Option{
		WithView(f.view),
		WithLogger(zerolog.Nop()),
		WithClock(clock.NewFake(time.Unix(1700000000, 0))),
	}
	c, err := New(f.ch, f.provider.fetch, append(base, opts...)...)
	require.NoError(t, err)
	f.ctrl = c
	t.Cleanup(func() {
		c.Dispose()
		c.Wait()
	})
	return f
}

func testConfig(t *testing.T, mode model.AuthMode) model.EmbedConfig {
	t.Helper()
	cfg, err := model.NewEmbedConfig("https://analytics.example.com", mode, model.Customization{})
	require.NoError(t, err)
	return cfg
}

func rendered() model.Message {
	return model.Message{Kind: model.WireContentRendered, Payload: model.Payload{"contentId": "lb-1"}}
}

func waitState(t *testing.T, c *Controller, want model.State) {
	t.Helper()
	require.Eventually(t, func() bool { return c.State() == want }, 2*time.Second, time.Millisecond,
		"state stayed %s, want %s", c.State(), want)
}

func (f *fixture) ready(t *testing.T) {
	t.Helper()
	st, err := f.ctrl.Initialize(context.Background(), testConfig(t, model.AuthTrustedTokenCookieless))
	require.NoError(t, err)
	require.Equal(t, model.StateLoading, st)
	require.NoError(t, f.ch.Emit(rendered()))
	waitState(t, f.ctrl, model.StateReady)
}

func TestInitialize_ReachesReadyOnRender(t *testing.T) {
	f := newFixture(t, []channel.MemoryOption{channel.WithAutoReady()})

	seen := make(chan model.State, 1)
	f.ctrl.On(model.EventLiveboardRendered, bus.Func(func(ev model.EmbedEvent) {
		seen <- f.ctrl.State()
	}))

	st, err := f.ctrl.Initialize(context.Background(), testConfig(t, model.AuthTrustedTokenCookieless))
	require.NoError(t, err)
	assert.Equal(t, model.StateLoading, st)

	reqs := f.view.requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "tok-1", reqs[0].Token.Value)
	assert.False(t, reqs[0].Reload)
	assert.Equal(t, f.ctrl.SessionID(), reqs[0].SessionID)
	assert.Equal(t, 1, f.ch.Prepared())

	require.NoError(t, f.ch.Emit(rendered()))
	select {
	case st := <-seen:
		assert.Equal(t, model.StateReady, st, "listener must observe the post-render state")
	case <-time.After(2 * time.Second):
		t.Fatal("LiveboardRendered was not dispatched")
	}
	assert.Equal(t, model.StateReady, f.ctrl.State())
}

func TestInitialize_AuthFailureDispatchesError(t *testing.T) {
	f := newFixture(t, []channel.MemoryOption{channel.WithAutoReady()})
	f.provider.setErr(errors.New("network down"))

	var got model.EmbedEvent
	f.ctrl.On(model.EventError, bus.Func(func(ev model.EmbedEvent) { got = ev }))

	st, err := f.ctrl.Initialize(context.Background(), testConfig(t, model.AuthTrustedToken))
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrAuth)
	var authErr *model.AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Contains(t, authErr.Reason, "network down")

	assert.Equal(t, model.StateError, st)
	assert.Equal(t, model.EventError, got.Kind)
	assert.True(t, got.Synthesized)
	assert.Equal(t, model.CodeAuthFailed, got.Payload.String("code"))
	assert.Contains(t, got.Payload.String("reason"), "network down")
	assert.Empty(t, f.view.requests())
	assert.Zero(t, f.ch.Prepared())
}

func TestInitialize_ConcurrentCallsShareOneFlow(t *testing.T) {
	f := newFixture(t, []channel.MemoryOption{channel.WithAutoReady()})
	cfg := testConfig(t, model.AuthTrustedToken)

	const callers = 6
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.ctrl.Initialize(context.Background(), cfg)
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, int32(1), f.provider.calls.Load())
	assert.Len(t, f.view.requests(), 1)
	assert.Equal(t, model.StateLoading, f.ctrl.State())
}

func TestInitialize_RepeatAfterCompletionIsNoop(t *testing.T) {
	f := newFixture(t, []channel.MemoryOption{channel.WithAutoReady()})
	f.ready(t)

	st, err := f.ctrl.Initialize(context.Background(), testConfig(t, model.AuthTrustedToken))
	require.NoError(t, err)
	assert.Equal(t, model.StateReady, st)
	assert.Equal(t, int32(1), f.provider.calls.Load())
}

func TestInitialize_RejectsZeroConfig(t *testing.T) {
	f := newFixture(t, nil)

	st, err := f.ctrl.Initialize(context.Background(), model.EmbedConfig{})
	assert.ErrorIs(t, err, model.ErrInvalidConfig)
	assert.Equal(t, model.StateUninitialized, st)
}

func TestInitialize_AuthNoneSkipsProvider(t *testing.T) {
	f := newFixture(t, []channel.MemoryOption{channel.WithAutoReady()})

	_, err := f.ctrl.Initialize(context.Background(), testConfig(t, model.AuthNone))
	require.NoError(t, err)
	assert.Zero(t, f.provider.calls.Load())
	reqs := f.view.requests()
	require.Len(t, reqs, 1)
	assert.True(t, reqs[0].Token.IsZero())
}

func TestInitialize_AppliesCustomization(t *testing.T) {
	var applied atomic.Int32
	styler := ports.StylerFunc(func(_ context.Context, c model.Customization, _ model.EmbedConfig) error {
		applied.Add(1)
		if c.Variables["--primary"] != "#123456" {
			return errors.New("variables not passed through")
		}
		return nil
	})
	f := newFixture(t, []channel.MemoryOption{channel.WithAutoReady()}, WithStyler(styler))

	cfg, err := model.NewEmbedConfig("https://analytics.example.com", model.AuthTrustedToken,
		model.Customization{Variables: map[string]string{"--primary": "#123456"}})
	require.NoError(t, err)

	_, err = f.ctrl.Initialize(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, int32(1), applied.Load())
}

func TestInitialize_LoadFailureMovesToError(t *testing.T) {
	f := newFixture(t, []channel.MemoryOption{channel.WithAutoReady()})
	f.view.err = errors.New("frame blocked")

	var code string
	f.ctrl.On(model.EventError, bus.Func(func(ev model.EmbedEvent) { code = ev.Payload.String("code") }))

	st, err := f.ctrl.Initialize(context.Background(), testConfig(t, model.AuthTrustedToken))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "frame blocked")
	assert.Equal(t, model.StateError, st)
	assert.Equal(t, model.CodeLoadFailed, code)
}

func TestContentError_DuringLoadMovesToError(t *testing.T) {
	f := newFixture(t, []channel.MemoryOption{channel.WithAutoReady()})

	got := make(chan model.EmbedEvent, 1)
	f.ctrl.On(model.EventError, bus.Func(func(ev model.EmbedEvent) { got <- ev }))

	_, err := f.ctrl.Initialize(context.Background(), testConfig(t, model.AuthTrustedToken))
	require.NoError(t, err)
	require.NoError(t, f.ch.Emit(model.Message{Kind: "Error", Payload: model.Payload{"reason": "liveboard not found"}}))

	select {
	case ev := <-got:
		assert.Equal(t, "liveboard not found", ev.Payload.String("reason"))
		assert.False(t, ev.Synthesized)
	case <-time.After(2 * time.Second):
		t.Fatal("Error was not dispatched")
	}
	assert.Equal(t, model.StateError, f.ctrl.State())
}

func TestTrigger_ReloadRoundTrip(t *testing.T) {
	f := newFixture(t, []channel.MemoryOption{channel.WithAutoReady()})
	f.ready(t)

	out, err := f.ctrl.Trigger(context.Background(), model.HostReload, nil)
	require.NoError(t, err)
	assert.False(t, out.ExpectsReply())
	assert.Equal(t, model.StateReloading, f.ctrl.State())

	sent := f.ch.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, string(model.HostReload), sent[0].Kind)
	assert.NotEmpty(t, sent[0].CorrelationID)

	require.NoError(t, f.ch.Emit(rendered()))
	waitState(t, f.ctrl, model.StateReady)
	assert.Equal(t, int32(1), f.provider.calls.Load(), "reload without expiry reuses the token")
}

func TestTrigger_ReloadSendFailureRestoresReady(t *testing.T) {
	f := newFixture(t, []channel.MemoryOption{channel.WithAutoReady(), channel.WithSendError(errors.New("pipe broken"))})
	f.ready(t)

	_, err := f.ctrl.Trigger(context.Background(), model.HostReload, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrChannel)
	assert.Equal(t, model.StateReady, f.ctrl.State())
}

func TestTrigger_ReplyResolvesThroughPump(t *testing.T) {
	f := newFixture(t, []channel.MemoryOption{channel.WithAutoReady()})
	f.ready(t)

	out, err := f.ctrl.Trigger(context.Background(), model.HostGetFilters, nil)
	require.NoError(t, err)
	require.True(t, out.ExpectsReply())

	sent := f.ch.Sent()
	require.Len(t, sent, 1)
	require.NoError(t, f.ch.Emit(model.Message{
		Kind:          sent[0].Kind,
		CorrelationID: sent[0].CorrelationID,
		Payload:       model.Payload{"filters": []any{"region"}},
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	payload, err := out.Await(ctx)
	require.NoError(t, err)
	assert.Equal(t, []any{"region"}, payload["filters"])
	assert.Zero(t, f.ctrl.PendingCommands())
}

func TestTrigger_NotReadyChannelFailsWithoutStateChange(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.ctrl.Initialize(context.Background(), testConfig(t, model.AuthTrustedToken))
	require.NoError(t, err)

	_, err = f.ctrl.Trigger(context.Background(), model.HostShare, nil)
	assert.ErrorIs(t, err, model.ErrChannelNotReady)
	var chErr *model.ChannelError
	assert.ErrorAs(t, err, &chErr)
	assert.Equal(t, model.StateLoading, f.ctrl.State())
	assert.Zero(t, f.ctrl.PendingCommands())
}

func TestAuthExpiry_ReauthenticatesAndReloads(t *testing.T) {
	f := newFixture(t, []channel.MemoryOption{channel.WithAutoReady()})
	f.ready(t)

	expired := make(chan struct{}, 1)
	f.ctrl.On(model.EventAuthExpire, bus.Func(func(model.EmbedEvent) { expired <- struct{}{} }))

	require.NoError(t, f.ch.Emit(model.Message{Kind: "AuthExpire"}))
	<-expired

	require.Eventually(t, func() bool { return len(f.view.requests()) == 2 }, 2*time.Second, time.Millisecond)
	reqs := f.view.requests()
	assert.True(t, reqs[1].Reload)
	assert.Equal(t, "tok-2", reqs[1].Token.Value)
	assert.Equal(t, int32(2), f.provider.calls.Load())
	assert.Equal(t, 1, f.ch.Prepared(), "reload must not prepare the channel again")
	waitState(t, f.ctrl, model.StateLoading)

	require.NoError(t, f.ch.Emit(rendered()))
	waitState(t, f.ctrl, model.StateReady)
}

func TestAuthExpiry_ErrorEventWithExpiredFlag(t *testing.T) {
	f := newFixture(t, []channel.MemoryOption{channel.WithAutoReady()})
	f.ready(t)

	require.NoError(t, f.ch.Emit(model.Message{Kind: "Error", Payload: model.Payload{"code": model.CodeAuthExpired}}))

	require.Eventually(t, func() bool { return f.provider.calls.Load() == 2 }, 2*time.Second, time.Millisecond)
	waitState(t, f.ctrl, model.StateLoading)
}

func TestAuthExpiry_FailedReauthMovesToError(t *testing.T) {
	f := newFixture(t, []channel.MemoryOption{channel.WithAutoReady()})
	f.ready(t)
	f.provider.setErr(errors.New("idp unavailable"))

	require.NoError(t, f.ch.Emit(model.Message{Kind: "AuthExpire"}))
	waitState(t, f.ctrl, model.StateError)
}

func TestDispose_ResolvesPendingAndRejectsLaterCommands(t *testing.T) {
	f := newFixture(t, []channel.MemoryOption{channel.WithAutoReady()})
	f.ready(t)

	var outs []command.Outcome
	for i := 0; i < 3; i++ {
		out, err := f.ctrl.Trigger(context.Background(), model.HostGetTabs, nil)
		require.NoError(t, err)
		outs = append(outs, out)
	}
	require.Equal(t, 3, f.ctrl.PendingCommands())

	f.ctrl.Dispose()
	f.ctrl.Dispose()

	for _, out := range outs {
		_, err := out.Await(context.Background())
		assert.ErrorIs(t, err, model.ErrChannelClosed)
	}
	assert.Equal(t, model.StateDisposed, f.ctrl.State())

	before := len(f.ch.Sent())
	_, err := f.ctrl.Trigger(context.Background(), model.HostShare, nil)
	assert.ErrorIs(t, err, model.ErrChannelClosed)
	assert.Len(t, f.ch.Sent(), before)

	_, err = f.ctrl.Retry(context.Background())
	assert.ErrorIs(t, err, model.ErrDisposed)
}

func TestDispose_ClearsListeners(t *testing.T) {
	f := newFixture(t, []channel.MemoryOption{channel.WithAutoReady()})
	var calls atomic.Int32
	f.ctrl.On(model.EventData, bus.Func(func(model.EmbedEvent) { calls.Add(1) }))

	_, err := f.ctrl.Initialize(context.Background(), testConfig(t, model.AuthTrustedToken))
	require.NoError(t, err)
	f.ctrl.Dispose()
	f.ctrl.Wait()

	assert.Error(t, f.ch.Emit(model.Message{Kind: "Data"}))
	assert.Zero(t, calls.Load())
}

func TestPump_HoldsMessagesUntilReady(t *testing.T) {
	f := newFixture(t, nil)

	var mu sync.Mutex
	var order []int
	f.ctrl.On(model.EventData, bus.Func(func(ev model.EmbedEvent) {
		n, _ := ev.Payload.Int("n")
		mu.Lock()
		order = append(order, n)
		mu.Unlock()
	}))
	count := func() int {
		mu.Lock()
		defer mu.Unlock()
		return len(order)
	}

	_, err := f.ctrl.Initialize(context.Background(), testConfig(t, model.AuthTrustedToken))
	require.NoError(t, err)
	for i := 1; i <= 3; i++ {
		require.NoError(t, f.ch.Emit(model.Message{Kind: "Data", Payload: model.Payload{"n": i}}))
	}
	assert.Never(t, func() bool { return count() > 0 }, 50*time.Millisecond, 5*time.Millisecond)

	f.ch.MarkReady()
	require.Eventually(t, func() bool { return count() == 3 }, 2*time.Second, time.Millisecond)
	mu.Lock()
	assert.Equal(t, []int{1, 2, 3}, order)
	mu.Unlock()
}

func TestChannelClosed_MovesToError(t *testing.T) {
	f := newFixture(t, []channel.MemoryOption{channel.WithAutoReady()})
	f.ready(t)

	codes := make(chan string, 1)
	f.ctrl.On(model.EventError, bus.Func(func(ev model.EmbedEvent) { codes <- ev.Payload.String("code") }))

	out, err := f.ctrl.Trigger(context.Background(), model.HostGetIframeURL, nil)
	require.NoError(t, err)

	require.NoError(t, f.ch.Close())
	waitState(t, f.ctrl, model.StateError)

	_, err = out.Await(context.Background())
	assert.ErrorIs(t, err, model.ErrChannelClosed)
	select {
	case code := <-codes:
		assert.Equal(t, model.CodeChannelClosed, code)
	case <-time.After(2 * time.Second):
		t.Fatal("channel closure was not reported")
	}

	_, err = f.ctrl.Retry(context.Background())
	assert.ErrorIs(t, err, model.ErrChannelClosed)
}

func TestRetry_FromAuthFailure(t *testing.T) {
	f := newFixture(t, []channel.MemoryOption{channel.WithAutoReady()})
	f.provider.setErr(errors.New("network down"))

	st, err := f.ctrl.Initialize(context.Background(), testConfig(t, model.AuthTrustedToken))
	require.Error(t, err)
	require.Equal(t, model.StateError, st)

	f.provider.setErr(nil)
	st, err = f.ctrl.Retry(context.Background())
	require.NoError(t, err)
	assert.Equal(t, model.StateLoading, st)
	assert.Equal(t, 1, f.ch.Prepared())

	reqs := f.view.requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "tok-2", reqs[0].Token.Value)
	assert.False(t, reqs[0].Reload)
}

func TestRetry_RejectedOutsideError(t *testing.T) {
	f := newFixture(t, []channel.MemoryOption{channel.WithAutoReady()})
	f.ready(t)

	st, err := f.ctrl.Retry(context.Background())
	assert.ErrorIs(t, err, model.ErrInvalidTransition)
	assert.Equal(t, model.StateReady, st)
}

func TestListenerFailureReachesHandler(t *testing.T) {
	failures := make(chan *bus.ListenerError, 1)
	f := newFixture(t, []channel.MemoryOption{channel.WithAutoReady()},
		WithListenerErrorHandler(func(err *bus.ListenerError) { failures <- err }))

	var after atomic.Int32
	f.ctrl.On(model.EventLiveboardRendered, bus.Func(func(model.EmbedEvent) { panic("boom") }))
	f.ctrl.On(model.EventLiveboardRendered, bus.Func(func(model.EmbedEvent) { after.Add(1) }))

	f.ready(t)
	select {
	case lerr := <-failures:
		assert.Equal(t, "boom", lerr.Panic)
	case <-time.After(2 * time.Second):
		t.Fatal("listener failure not reported")
	}
	require.Eventually(t, func() bool { return after.Load() == 1 }, 2*time.Second, time.Millisecond)
}

func TestInfo(t *testing.T) {
	f := newFixture(t, []channel.MemoryOption{channel.WithAutoReady()}, WithSessionID("s-1"))
	f.ready(t)

	info := f.ctrl.Info()
	assert.Equal(t, "s-1", info.SessionID)
	assert.Equal(t, model.StateReady, info.State)
	assert.Equal(t, model.AuthTrustedTokenCookieless, info.AuthMode)
	assert.Equal(t, "https://analytics.example.com", info.Host)
	assert.True(t, info.TokenValid)
}

func TestTransitionObserver_SeesEveryCommittedChange(t *testing.T) {
	var (
		mu  sync.Mutex
		got []model.State
	)
	f := newFixture(t, []channel.MemoryOption{channel.WithAutoReady()},
		WithTransitionObserver(func(tr lifecycle.Transition) {
			mu.Lock()
			got = append(got, tr.To)
			mu.Unlock()
		}))
	f.ready(t)
	f.ctrl.Dispose()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []model.State{
		model.StateAuthenticating,
		model.StateLoading,
		model.StateReady,
		model.StateDisposed,
	}, got)
}
