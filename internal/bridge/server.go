// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package bridge exposes embed sessions over HTTP: content connects over
// a WebSocket, operators inspect sessions and trigger host commands
// through a small JSON API.
package bridge

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/trace"

	"github.com/ManuGH/embedbridge/internal/config"
	"github.com/ManuGH/embedbridge/internal/domain/embed/model"
	"github.com/ManuGH/embedbridge/internal/embed/session"
	"github.com/ManuGH/embedbridge/internal/health"
	"github.com/ManuGH/embedbridge/internal/journal"
	xglog "github.com/ManuGH/embedbridge/internal/log"
	"github.com/ManuGH/embedbridge/internal/metrics"
	"github.com/ManuGH/embedbridge/internal/resilience"
	"github.com/ManuGH/embedbridge/internal/telemetry"
)

// HeaderSessionID carries the new session id on the WebSocket upgrade response.
const HeaderSessionID = "X-Embed-Session"

const (
	defaultInitTimeout = 30 * time.Second
	maxCommandBody     = 1 << 20
	serviceName        = "embedbridge"
)

// Server owns the live sessions and the HTTP surface over them.
type Server struct {
	holder   *config.ConfigHolder
	health   *health.Manager
	registry *Registry
	breaker  *resilience.CircuitBreaker
	client   *http.Client
	upgrader websocket.Upgrader
	logger   zerolog.Logger

	initTimeout time.Duration
	sessionOpts []session.Option

	journal   journal.Store
	retention time.Duration
	dir       SessionDirectory
	rec       *recorder

	closing atomic.Bool
	conns   sync.WaitGroup
}

// Option configures a Server.
type Option func(*Server)

// WithHTTPClient sets the client used for the token endpoint.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Server) { s.client = c }
}

// WithLogger overrides the component logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithInitTimeout bounds how long a new session may take to initialize.
func WithInitTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.initTimeout = d
		}
	}
}

// WithSessionOptions appends options to every controller the server creates.
func WithSessionOptions(opts ...session.Option) Option {
	return func(s *Server) { s.sessionOpts = append(s.sessionOpts, opts...) }
}

// WithBreaker replaces the token endpoint circuit breaker.
func WithBreaker(cb *resilience.CircuitBreaker) Option {
	return func(s *Server) { s.breaker = cb }
}

// WithJournal records session history in store and prunes entries older
// than retention (zero keeps everything).
func WithJournal(store journal.Store, retention time.Duration) Option {
	return func(s *Server) {
		s.journal = store
		s.retention = retention
	}
}

// WithDirectory announces this instance's sessions in d.
func WithDirectory(d SessionDirectory) Option {
	return func(s *Server) { s.dir = d }
}

// NewServer wires a server over the current config. It registers the
// session and token source checks on hm.
func NewServer(holder *config.ConfigHolder, hm *health.Manager, opts ...Option) *Server {
	cfg := holder.Get()
	s := &Server{
		holder:      holder,
		health:      hm,
		registry:    NewRegistry(),
		client:      &http.Client{Timeout: cfg.Auth.FetchTimeout},
		logger:      xglog.WithComponent("bridge"),
		initTimeout: defaultInitTimeout,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.breaker == nil {
		s.breaker = resilience.NewCircuitBreaker("token_source",
			cfg.Auth.BreakerThreshold, cfg.Auth.BreakerResetTimeout, resilience.WithPanicRecovery(true))
	}
	hm.RegisterChecker(health.NewFuncChecker("sessions", s.checkSessions))
	hm.RegisterChecker(health.NewFuncChecker("token_source", s.checkTokenSource))
	if s.journal != nil {
		hm.RegisterChecker(health.NewFuncChecker("journal", s.checkJournal))
	}
	if s.dir != nil {
		hm.RegisterChecker(health.NewFuncChecker("directory", s.checkDirectory))
	}
	if s.journal != nil || s.dir != nil {
		s.rec = newRecorder(s.journal, s.dir, s.retention, s.registry.List, s.logger.With().Str("sub", "recorder").Logger())
		s.rec.start()
	}
	return s
}

// Registry returns the live session registry.
func (s *Server) Registry() *Registry { return s.registry }

// Handler builds the HTTP handler with the ingress middleware stack.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.observe)

	r.Get("/healthz", s.health.ServeHealth)
	r.Get("/readyz", s.health.ServeReady)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		if rpm := s.holder.Get().RateLimit.RequestsPerMinute; rpm > 0 {
			r.Use(ipRateLimit(rpm))
		}
		r.Get("/embed/ws", s.handleWebSocket)
		r.Get("/directory", s.handleDirectory)
		r.Route("/sessions", func(r chi.Router) {
			r.Get("/", s.handleListSessions)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetSession)
				r.Get("/history", s.handleHistory)
				r.Delete("/", s.handleDisposeSession)
				r.Post("/retry", s.handleRetry)
				r.Post("/commands/{kind}", s.handleCommand)
			})
		})
	})

	return otelhttp.NewHandler(r, serviceName,
		otelhttp.WithFilter(shouldTrace),
		otelhttp.WithSpanNameFormatter(func(operation string, r *http.Request) string {
			return operation + " " + r.Method + " " + r.URL.Path
		}),
	)
}

func shouldTrace(r *http.Request) bool {
	switch r.URL.Path {
	case "/healthz", "/readyz", "/metrics":
		return false
	}
	return true
}

func ipRateLimit(rpm int) func(http.Handler) http.Handler {
	return httprate.Limit(
		rpm,
		time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Retry-After", "60")
			writeError(w, r, http.StatusTooManyRequests, "RATE_LIMITED", "too many requests, try again later")
		}),
	)
}

// observe records request metrics, tags the span with the route and
// carries the request id into the log context.
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		metrics.HTTPRequestsInFlight.Inc()
		defer metrics.HTTPRequestsInFlight.Dec()

		ctx := xglog.ContextWithRequestID(r.Context(), middleware.GetReqID(r.Context()))
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r.WithContext(ctx))

		route := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		metrics.ObserveHTTPRequest(r.Method, route, status, time.Since(start))
		trace.SpanFromContext(r.Context()).SetAttributes(telemetry.HTTPAttributes(r.Method, route, status)...)

		reqLogger := xglog.WithContext(ctx, s.logger)
		reqLogger.Debug().
			Str("event", "http.request").
			Str("method", r.Method).
			Str("route", route).
			Int("status", status).
			Dur("duration", time.Since(start)).
			Msg("request served")
	})
}

func (s *Server) checkSessions(context.Context) health.CheckResult {
	counts := s.registry.CountByState()
	total := 0
	for _, n := range counts {
		total += n
	}
	if n := counts[model.StateError]; n > 0 {
		return health.CheckResult{
			Status:  health.StatusDegraded,
			Message: fmt.Sprintf("%d of %d sessions in error", n, total),
		}
	}
	return health.CheckResult{Status: health.StatusHealthy, Message: fmt.Sprintf("%d sessions", total)}
}

func (s *Server) checkTokenSource(context.Context) health.CheckResult {
	if s.holder.Get().Auth.TokenURL == "" {
		return health.CheckResult{Status: health.StatusHealthy, Message: "no token endpoint"}
	}
	if st := s.breaker.State(); st == resilience.StateOpen {
		return health.CheckResult{Status: health.StatusDegraded, Message: "token endpoint breaker open"}
	}
	return health.CheckResult{Status: health.StatusHealthy}
}

func (s *Server) checkJournal(ctx context.Context) health.CheckResult {
	c, ok := s.journal.(journal.Checker)
	if !ok {
		return health.CheckResult{Status: health.StatusHealthy}
	}
	if err := c.Check(ctx); err != nil {
		return health.CheckResult{Status: health.StatusDegraded, Message: "journal check failed", Error: err.Error()}
	}
	return health.CheckResult{Status: health.StatusHealthy}
}

func (s *Server) checkDirectory(ctx context.Context) health.CheckResult {
	if err := s.dir.Ping(ctx); err != nil {
		return health.CheckResult{Status: health.StatusDegraded, Message: "session directory unreachable", Error: err.Error()}
	}
	return health.CheckResult{Status: health.StatusHealthy, Message: "instance " + s.dir.Instance()}
}

// Shutdown stops accepting sessions, disposes the live ones and waits for
// their connections to wind down or ctx to expire.
func (s *Server) Shutdown(ctx context.Context) error {
	s.closing.Store(true)
	s.health.SetDraining(true)
	n := s.registry.DisposeAll()
	s.logger.Info().Str("event", "bridge.shutdown").Int("sessions", n).Msg("disposing sessions")

	done := make(chan struct{})
	go func() {
		s.conns.Wait()
		close(done)
	}()
	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = fmt.Errorf("wait for sessions: %w", ctx.Err())
	}
	s.rec.close()
	return err
}
