// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ManuGH/embedbridge/internal/config"
	"github.com/ManuGH/embedbridge/internal/domain/embed/lifecycle"
	"github.com/ManuGH/embedbridge/internal/domain/embed/model"
	"github.com/ManuGH/embedbridge/internal/embed/channel"
	"github.com/ManuGH/embedbridge/internal/health"
	"github.com/ManuGH/embedbridge/internal/journal"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const testHost = "https://analytics.example.com"

type harness struct {
	t   *testing.T
	srv *Server
	ts  *httptest.Server
}

func newHarness(t *testing.T, mutate func(*config.AppConfig), opts ...Option) *harness {
	t.Helper()
	cfg := config.Defaults()
	cfg.Embed.Host = testHost
	cfg.Auth.StaticToken = "static-tok"
	if mutate != nil {
		mutate(&cfg)
	}

	s := NewServer(config.NewConfigHolder(cfg, nil), health.NewManager("test"),
		append([]Option{
			WithLogger(zerolog.Nop()),
			WithInitTimeout(5 * time.Second),
		}, opts...)...,
	)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		assert.NoError(t, s.Shutdown(ctx))
		ts.Close()
	})
	return &harness{t: t, srv: s, ts: ts}
}

func (h *harness) do(method, path string, body string) (*http.Response, []byte) {
	h.t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, h.ts.URL+path, r)
	require.NoError(h.t, err)
	resp, err := h.ts.Client().Do(req)
	require.NoError(h.t, err)
	defer func() { _ = resp.Body.Close() }()
	data, err := io.ReadAll(resp.Body)
	require.NoError(h.t, err)
	return resp, data
}

func (h *harness) waitState(id string, want model.State) {
	h.t.Helper()
	require.Eventually(h.t, func() bool {
		ctrl, ok := h.srv.Registry().Get(id)
		return ok && ctrl.State() == want
	}, 5*time.Second, 5*time.Millisecond, "session %s never reached %s", id, want)
}

// content plays the embedded page's side of the WebSocket.
type content struct {
	t     *testing.T
	conn  *websocket.Conn
	codec channel.Codec
	id    string
}

func (h *harness) connect(query string) *content {
	h.t.Helper()
	url := "ws" + strings.TrimPrefix(h.ts.URL, "http") + "/embed/ws" + query
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(h.t, err)
	_ = resp.Body.Close()

	codec := channel.JSON()
	if strings.Contains(query, "codec=cbor") {
		codec = channel.CBOR()
	}
	c := &content{t: h.t, conn: conn, codec: codec, id: resp.Header.Get(HeaderSessionID)}
	require.NotEmpty(h.t, c.id)
	h.t.Cleanup(func() { _ = conn.Close() })
	return c
}

func (c *content) read() model.Message {
	c.t.Helper()
	require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, data, err := c.conn.ReadMessage()
	require.NoError(c.t, err)
	msg, err := c.codec.Unmarshal(data)
	require.NoError(c.t, err)
	return msg
}

func (c *content) write(msg model.Message) {
	c.t.Helper()
	msg.Direction = model.ContentToHost
	data, err := c.codec.Marshal(msg)
	require.NoError(c.t, err)
	typ := websocket.TextMessage
	if c.codec.Binary() {
		typ = websocket.BinaryMessage
	}
	require.NoError(c.t, c.conn.WriteMessage(typ, data))
}

// handshake answers the prepare frame and returns the Init message.
func (c *content) handshake() model.Message {
	c.t.Helper()
	require.Equal(c.t, channel.KindPrepare, c.read().Kind)
	c.write(model.Message{Kind: channel.KindReady})
	init := c.read()
	require.Equal(c.t, KindInit, init.Kind)
	return init
}

func (c *content) render() {
	c.write(model.Message{Kind: model.WireContentRendered})
}

// ready connects a session and drives it to READY.
func (h *harness) ready(query string) *content {
	h.t.Helper()
	c := h.connect(query)
	c.handshake()
	c.render()
	h.waitState(c.id, model.StateReady)
	return c
}

func TestWebSocket_SessionReachesReady(t *testing.T) {
	for _, codec := range []string{channel.CodecJSON, channel.CodecCBOR} {
		t.Run(codec, func(t *testing.T) {
			h := newHarness(t, nil)
			c := h.connect("?codec=" + codec)

			init := c.handshake()
			assert.Equal(t, c.id, init.Payload.String("sessionId"))
			assert.Equal(t, "static-tok", init.Payload.String("token"))
			assert.Equal(t, testHost, init.Payload.String("host"))
			assert.False(t, init.Payload.Bool("reload"))

			c.render()
			h.waitState(c.id, model.StateReady)

			resp, body := h.do(http.MethodGet, "/sessions/"+c.id, "")
			require.Equal(t, http.StatusOK, resp.StatusCode)
			var view SessionView
			require.NoError(t, json.Unmarshal(body, &view))
			assert.Equal(t, model.StateReady, view.State)
			assert.Equal(t, codec, view.Codec)
			assert.True(t, view.TokenValid)
		})
	}
}

func TestWebSocket_UnknownCodec(t *testing.T) {
	h := newHarness(t, nil)
	resp, body := h.do(http.MethodGet, "/embed/ws?codec=xml", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, string(body), "UNKNOWN_CODEC")
}

func TestWebSocket_CustomizationFollowsInit(t *testing.T) {
	h := newHarness(t, func(cfg *config.AppConfig) {
		cfg.Embed.StylesheetURL = "https://cdn.example.com/theme.css"
	})
	c := h.connect("")
	c.handshake()
	msg := c.read()
	assert.Equal(t, KindApplyCustomization, msg.Kind)
	assert.Equal(t, "https://cdn.example.com/theme.css", msg.Payload.String("stylesheetURL"))
}

func TestSessions_List(t *testing.T) {
	h := newHarness(t, nil)
	a := h.ready("")
	b := h.ready("?codec=cbor")

	resp, body := h.do(http.MethodGet, "/sessions", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list sessionList
	require.NoError(t, json.Unmarshal(body, &list))
	require.Len(t, list.Sessions, 2)
	ids := []string{list.Sessions[0].SessionID, list.Sessions[1].SessionID}
	assert.ElementsMatch(t, []string{a.id, b.id}, ids)
}

func TestCommand_FireAndForget(t *testing.T) {
	h := newHarness(t, nil)
	c := h.ready("")

	resp, body := h.do(http.MethodPost, "/sessions/"+c.id+"/commands/navigate", `{"path":"/pinboard/42"}`)
	require.Equal(t, http.StatusAccepted, resp.StatusCode, string(body))

	var out commandResponse
	require.NoError(t, json.Unmarshal(body, &out))
	assert.Equal(t, model.HostNavigate, out.Kind)
	assert.NotEmpty(t, out.CorrelationID)

	msg := c.read()
	assert.Equal(t, string(model.HostNavigate), msg.Kind)
	assert.Equal(t, "/pinboard/42", msg.Payload.String("path"))
}

func TestCommand_ReplyRoundTrip(t *testing.T) {
	h := newHarness(t, nil)
	c := h.ready("")

	type result struct {
		status int
		body   []byte
	}
	done := make(chan result, 1)
	go func() {
		resp, err := h.ts.Client().Post(h.ts.URL+"/sessions/"+c.id+"/commands/GetFilters", "application/json", nil)
		if err != nil {
			done <- result{status: -1, body: []byte(err.Error())}
			return
		}
		defer func() { _ = resp.Body.Close() }()
		body, _ := io.ReadAll(resp.Body)
		done <- result{status: resp.StatusCode, body: body}
	}()

	cmd := c.read()
	require.Equal(t, string(model.HostGetFilters), cmd.Kind)
	require.NotEmpty(t, cmd.CorrelationID)
	c.write(model.Message{
		Kind:          cmd.Kind,
		CorrelationID: cmd.CorrelationID,
		Payload:       model.Payload{"filters": []any{"region"}},
	})

	select {
	case res := <-done:
		require.Equal(t, http.StatusOK, res.status, string(res.body))
		var out commandResponse
		require.NoError(t, json.Unmarshal(res.body, &out))
		assert.Equal(t, cmd.CorrelationID, out.CorrelationID)
		assert.Equal(t, []any{"region"}, out.Payload["filters"])
	case <-time.After(5 * time.Second):
		t.Fatal("command response never arrived")
	}
}

func TestCommand_Rejections(t *testing.T) {
	h := newHarness(t, nil)
	c := h.ready("")

	tests := []struct {
		name   string
		path   string
		body   string
		status int
		code   string
	}{
		{name: "unknown session", path: "/sessions/nope/commands/Reload", status: http.StatusNotFound, code: "SESSION_NOT_FOUND"},
		{name: "unknown kind", path: "/sessions/" + c.id + "/commands/Explode", status: http.StatusBadRequest, code: "UNKNOWN_COMMAND"},
		{name: "array body", path: "/sessions/" + c.id + "/commands/Share", body: `[1,2]`, status: http.StatusBadRequest, code: "MALFORMED_BODY"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := h.do(http.MethodPost, tt.path, tt.body)
			assert.Equal(t, tt.status, resp.StatusCode)
			var apiErr APIError
			require.NoError(t, json.Unmarshal(body, &apiErr))
			assert.Equal(t, tt.code, apiErr.Code)
			assert.NotEmpty(t, apiErr.RequestID)
		})
	}
}

func TestCommand_RateLimitedPerSession(t *testing.T) {
	h := newHarness(t, func(cfg *config.AppConfig) {
		cfg.RateLimit.CommandsPerSecond = 0.001
		cfg.RateLimit.CommandBurst = 1
	})
	c := h.ready("")

	resp, _ := h.do(http.MethodPost, "/sessions/"+c.id+"/commands/Share", "")
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	resp, body := h.do(http.MethodPost, "/sessions/"+c.id+"/commands/Share", "")
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Contains(t, string(body), "RATE_LIMITED")
	assert.Equal(t, "1", resp.Header.Get("Retry-After"))
}

func TestCommand_ReloadMovesToReloading(t *testing.T) {
	h := newHarness(t, nil)
	c := h.ready("")

	resp, _ := h.do(http.MethodPost, "/sessions/"+c.id+"/commands/Reload", "")
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, string(model.HostReload), c.read().Kind)
	h.waitState(c.id, model.StateReloading)

	c.render()
	h.waitState(c.id, model.StateReady)
}

func TestRetry_RejectedWhenReady(t *testing.T) {
	h := newHarness(t, nil)
	c := h.ready("")

	resp, body := h.do(http.MethodPost, "/sessions/"+c.id+"/retry", "")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Contains(t, string(body), "INVALID_STATE")
}

func TestDispose_ClosesConnection(t *testing.T) {
	h := newHarness(t, nil)
	c := h.ready("")

	resp, _ := h.do(http.MethodDelete, "/sessions/"+c.id, "")
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	require.NoError(t, c.conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err := c.conn.ReadMessage()
	var closeErr *websocket.CloseError
	require.ErrorAs(t, err, &closeErr)
	assert.Equal(t, websocket.CloseNormalClosure, closeErr.Code)

	resp, _ = h.do(http.MethodGet, "/sessions/"+c.id, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestPeerClose_RemovesSession(t *testing.T) {
	h := newHarness(t, nil)
	c := h.ready("")

	require.NoError(t, c.conn.Close())
	require.Eventually(t, func() bool { return h.srv.Registry().Len() == 0 }, 5*time.Second, 5*time.Millisecond)
}

func TestTokenEndpointFailure_DegradesHealth(t *testing.T) {
	tokens := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer tokens.Close()

	h := newHarness(t, func(cfg *config.AppConfig) {
		cfg.Auth.StaticToken = ""
		cfg.Auth.TokenURL = tokens.URL
		cfg.Auth.BreakerThreshold = 1
	})
	c := h.connect("")
	h.waitState(c.id, model.StateError)

	sessions := h.srv.checkSessions(context.Background())
	assert.Equal(t, health.StatusDegraded, sessions.Status)
	assert.Contains(t, sessions.Message, "1 of 1")

	source := h.srv.checkTokenSource(context.Background())
	assert.Equal(t, health.StatusDegraded, source.Status)

	// Retry hits the open breaker and lands back in ERROR.
	resp, body := h.do(http.MethodPost, "/sessions/"+c.id+"/retry", "")
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Contains(t, string(body), "token endpoint unavailable")
	h.waitState(c.id, model.StateError)
}

func TestShutdown_RejectsNewSessions(t *testing.T) {
	h := newHarness(t, nil)
	c := h.ready("")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, h.srv.Shutdown(ctx))
	assert.Zero(t, h.srv.Registry().Len())

	require.NoError(t, c.conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err := c.conn.ReadMessage()
	require.Error(t, err)

	url := "ws" + strings.TrimPrefix(h.ts.URL, "http") + "/embed/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	require.NotNil(t, resp)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestHealthEndpoints(t *testing.T) {
	h := newHarness(t, nil)

	resp, _ := h.do(http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp, _ = h.do(http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp, body := h.do(http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, bytes.Contains(body, []byte("go_goroutines")))
}

func TestIPRateLimit(t *testing.T) {
	h := newHarness(t, func(cfg *config.AppConfig) {
		cfg.RateLimit.RequestsPerMinute = 2
	})
	for i := range 2 {
		resp, _ := h.do(http.MethodGet, "/sessions", "")
		require.Equal(t, http.StatusOK, resp.StatusCode, "request %d", i)
	}
	resp, body := h.do(http.MethodGet, "/sessions", "")
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Contains(t, string(body), "RATE_LIMITED")

	// Probes stay outside the limiter.
	resp, _ = h.do(http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestErrorStatus(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{fmt.Errorf("%w: x", errSessionNotFound), http.StatusNotFound, "SESSION_NOT_FOUND"},
		{&model.ChannelError{Op: "send", Err: model.ErrChannelClosed}, http.StatusGone, "SESSION_CLOSED"},
		{&model.ChannelError{Op: "send", Err: model.ErrChannelNotReady}, http.StatusConflict, "CHANNEL_NOT_READY"},
		{model.ErrDisposed, http.StatusGone, "SESSION_CLOSED"},
		{&model.CommandTimeoutError{Kind: model.HostGetTabs}, http.StatusGatewayTimeout, "COMMAND_TIMEOUT"},
		{&lifecycle.TransitionError{From: model.StateReady, Event: lifecycle.EvRetry}, http.StatusConflict, "INVALID_STATE"},
		{&model.AuthError{Reason: "x"}, http.StatusBadGateway, "AUTH_FAILED"},
		{&model.ContentReportedError{Reason: "x"}, http.StatusBadGateway, "CONTENT_ERROR"},
		{fmt.Errorf("history: %w", journal.ErrClosed), http.StatusServiceUnavailable, "STORAGE_UNAVAILABLE"},
		{errors.New("other"), http.StatusInternalServerError, "INTERNAL"},
	}
	for _, tt := range tests {
		status, code := errorStatus(tt.err)
		assert.Equal(t, tt.status, status, tt.err.Error())
		assert.Equal(t, tt.code, code, tt.err.Error())
	}
}
