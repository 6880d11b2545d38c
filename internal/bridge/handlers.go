// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/ManuGH/embedbridge/internal/directory"
	"github.com/ManuGH/embedbridge/internal/domain/embed/model"
	"github.com/ManuGH/embedbridge/internal/embed/channel"
	"github.com/ManuGH/embedbridge/internal/embed/session"
	"github.com/ManuGH/embedbridge/internal/journal"
	xglog "github.com/ManuGH/embedbridge/internal/log"
	"github.com/ManuGH/embedbridge/internal/metrics"
)

// handleWebSocket upgrades the request into a new embed session and
// serves it until the connection closes.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.closing.Load() {
		writeError(w, r, http.StatusServiceUnavailable, "SHUTTING_DOWN", "server is shutting down")
		return
	}
	cfg := s.holder.Get()

	codecName := r.URL.Query().Get("codec")
	if codecName == "" {
		codecName = cfg.Channel.Codec
	}
	codec, err := channel.CodecByName(codecName)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "UNKNOWN_CODEC", err.Error())
		return
	}
	embedCfg, err := cfg.EmbedConfig()
	if err != nil {
		respondError(w, r, err)
		return
	}

	id := uuid.NewString()
	conn, err := s.upgrader.Upgrade(w, r, http.Header{HeaderSessionID: []string{id}})
	if err != nil {
		// The upgrader has already written the error response.
		metrics.IncWebSocketUpgrade(codec.Name(), "error")
		s.logger.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}
	metrics.IncWebSocketUpgrade(codec.Name(), "ok")

	s.conns.Add(1)
	defer s.conns.Done()

	logger := s.logger.With().
		Str(xglog.FieldSessionID, id).
		Str(xglog.FieldCodec, codec.Name()).
		Logger()
	ch := channel.NewWebSocket(conn, codec,
		channel.WithWebSocketLogger(logger),
		channel.WithWebSocketInboundBuffer(cfg.Channel.InboundBuffer),
	)
	view := channelView{ch: ch}
	rec := s.rec.forSession(id, codec.Name(), embedCfg)
	opts := append([]session.Option{
		session.WithSessionID(id),
		session.WithView(view),
		session.WithStyler(view),
		session.WithCommandTimeout(cfg.Embed.CommandTimeout),
		session.WithFetchTimeout(cfg.Auth.FetchTimeout),
		session.WithLogger(logger),
		session.WithTransitionObserver(rec.transition),
	}, s.sessionOpts...)

	ctrl, err := session.New(ch, NewTokenProvider(cfg.Auth, s.client, s.breaker), opts...)
	if err != nil {
		logger.Error().Err(err).Msg("session create failed")
		_ = ch.Close()
		return
	}

	limit := rate.Inf
	if cps := cfg.RateLimit.CommandsPerSecond; cps > 0 {
		limit = rate.Limit(cps)
	}
	s.registry.add(&entry{
		ctrl:    ctrl,
		limiter: rate.NewLimiter(limit, cfg.RateLimit.CommandBurst),
		codec:   codec.Name(),
		created: time.Now(),
		rec:     rec,
	})
	rec.opened()

	initDone := make(chan struct{})
	go func() {
		defer close(initDone)
		ctx, cancel := context.WithTimeout(context.Background(), s.initTimeout)
		defer cancel()
		state, err := ctrl.Initialize(ctx, embedCfg)
		if err != nil {
			logger.Warn().Err(err).Str("state", string(state)).Msg("session initialize failed")
			return
		}
		logger.Info().Str("state", string(state)).Msg("session initialized")
	}()

	<-ch.Done()
	ctrl.Dispose()
	s.registry.Remove(id)
	rec.closed()
	<-initDone
	ctrl.Wait()
}

type sessionList struct {
	Sessions []SessionView `json:"sessions"`
}

func (s *Server) handleListSessions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, sessionList{Sessions: s.registry.List()})
}

// lookup resolves the {id} session. A session announced by another
// instance answers 421 naming the owner.
func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*entry, bool) {
	id := chi.URLParam(r, "id")
	e, ok := s.registry.get(id)
	if ok {
		return e, true
	}
	if s.dir != nil {
		rec, err := s.dir.Lookup(r.Context(), id)
		if err == nil && rec.Instance != s.dir.Instance() {
			writeJSON(w, http.StatusMisdirectedRequest, APIError{
				Code:      "SESSION_ELSEWHERE",
				Message:   fmt.Sprintf("session %s is served by %s", id, rec.Instance),
				RequestID: middleware.GetReqID(r.Context()),
				Instance:  rec.Instance,
			})
			return nil, false
		}
		if err != nil && !errors.Is(err, directory.ErrNotFound) {
			s.logger.Warn().Err(err).Str(xglog.FieldSessionID, id).Msg("directory lookup failed")
		}
	}
	respondError(w, r, fmt.Errorf("%w: %s", errSessionNotFound, id))
	return nil, false
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	e, ok := s.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, e.view())
}

func (s *Server) handleDisposeSession(w http.ResponseWriter, r *http.Request) {
	e, ok := s.lookup(w, r)
	if !ok {
		return
	}
	e.ctrl.Dispose()
	s.registry.Remove(e.ctrl.SessionID())
	w.WriteHeader(http.StatusNoContent)
}

type stateResponse struct {
	SessionID string      `json:"sessionId"`
	State     model.State `json:"state"`
}

func (s *Server) handleRetry(w http.ResponseWriter, r *http.Request) {
	e, ok := s.lookup(w, r)
	if !ok {
		return
	}
	state, err := e.ctrl.Retry(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stateResponse{SessionID: e.ctrl.SessionID(), State: state})
}

type commandResponse struct {
	CorrelationID string              `json:"correlationId"`
	Kind          model.HostEventKind `json:"kind"`
	Payload       model.Payload       `json:"payload,omitempty"`
}

// handleCommand triggers a host command. Reply-expecting kinds hold the
// request open until the reply, the command timeout or a disconnect.
func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	e, ok := s.lookup(w, r)
	if !ok {
		return
	}
	kind, err := model.ParseHostEventKind(chi.URLParam(r, "kind"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	payload, err := decodePayload(w, r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if !e.limiter.Allow() {
		metrics.IncCommandRateLimited()
		w.Header().Set("Retry-After", "1")
		writeError(w, r, http.StatusTooManyRequests, "RATE_LIMITED", "command rate exceeded for session")
		return
	}

	out, err := e.ctrl.Trigger(r.Context(), kind, payload)
	if err != nil {
		e.rec.command(kind, "", err)
		respondError(w, r, err)
		return
	}
	resp := commandResponse{CorrelationID: out.CorrelationID, Kind: out.Kind}
	if !out.ExpectsReply() {
		e.rec.command(kind, out.CorrelationID, nil)
		writeJSON(w, http.StatusAccepted, resp)
		return
	}
	reply, err := out.Await(r.Context())
	if err != nil {
		e.rec.command(kind, out.CorrelationID, err)
		respondError(w, r, err)
		return
	}
	e.rec.replied(kind, out.CorrelationID)
	resp.Payload = reply
	writeJSON(w, http.StatusOK, resp)
}

// decodePayload reads an optional JSON object body.
func decodePayload(w http.ResponseWriter, r *http.Request) (model.Payload, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxCommandBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, fmt.Errorf("%w: body exceeds %d bytes", model.ErrMalformedMessage, tooLarge.Limit)
		}
		return nil, fmt.Errorf("%w: read body: %v", model.ErrMalformedMessage, err)
	}
	if len(body) == 0 {
		return nil, nil
	}
	var payload model.Payload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("%w: body must be a JSON object: %v", model.ErrMalformedMessage, err)
	}
	return payload, nil
}

type historyResponse struct {
	SessionID string          `json:"sessionId"`
	Entries   []journal.Entry `json:"entries"`
}

// handleHistory returns the journal of a session, live or gone.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		writeError(w, r, http.StatusNotFound, "JOURNAL_DISABLED", "session journal is not configured")
		return
	}
	id := chi.URLParam(r, "id")
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, r, http.StatusBadRequest, "INVALID_LIMIT", "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	entries, err := s.journal.History(r.Context(), id, limit)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if len(entries) == 0 {
		if _, ok := s.registry.get(id); !ok {
			respondError(w, r, fmt.Errorf("%w: %s", errSessionNotFound, id))
			return
		}
		entries = []journal.Entry{}
	}
	writeJSON(w, http.StatusOK, historyResponse{SessionID: id, Entries: entries})
}

type directoryList struct {
	Instance string             `json:"instance"`
	Sessions []directory.Record `json:"sessions"`
}

// handleDirectory lists the sessions announced by every instance.
func (s *Server) handleDirectory(w http.ResponseWriter, r *http.Request) {
	if s.dir == nil {
		writeError(w, r, http.StatusNotFound, "DIRECTORY_DISABLED", "session directory is not configured")
		return
	}
	recs, err := s.dir.List(r.Context())
	if err != nil {
		s.logger.Warn().Err(err).Msg("directory list failed")
		writeError(w, r, http.StatusServiceUnavailable, "STORAGE_UNAVAILABLE", "session directory unreachable")
		return
	}
	slices.SortFunc(recs, func(a, b directory.Record) int { return strings.Compare(a.SessionID, b.SessionID) })
	if recs == nil {
		recs = []directory.Record{}
	}
	writeJSON(w, http.StatusOK, directoryList{Instance: s.dir.Instance(), Sessions: recs})
}
