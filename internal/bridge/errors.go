// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/ManuGH/embedbridge/internal/domain/embed/model"
	"github.com/ManuGH/embedbridge/internal/journal"
	"github.com/ManuGH/embedbridge/internal/log"
)

// APIError is the JSON body of every non-2xx response.
type APIError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"requestId,omitempty"`
	Instance  string `json:"instance,omitempty"`
}

var errSessionNotFound = errors.New("session not found")

// writeJSON writes a JSON response with the given status code.
// If encoding fails, headers are already sent so only a log line remains.
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.L().Error().
			Err(err).
			Int("status", code).
			Msg("failed to encode JSON response")
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, msg string) {
	writeJSON(w, status, APIError{
		Code:      code,
		Message:   msg,
		RequestID: middleware.GetReqID(r.Context()),
	})
}

// errorStatus maps a session error onto an HTTP status and stable code.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, errSessionNotFound):
		return http.StatusNotFound, "SESSION_NOT_FOUND"
	case errors.Is(err, model.ErrUnknownHostEvent):
		return http.StatusBadRequest, "UNKNOWN_COMMAND"
	case errors.Is(err, model.ErrMalformedMessage):
		return http.StatusBadRequest, "MALFORMED_BODY"
	case errors.Is(err, model.ErrDisposed), errors.Is(err, model.ErrChannelClosed):
		return http.StatusGone, "SESSION_CLOSED"
	case errors.Is(err, model.ErrCommandTimeout):
		return http.StatusGatewayTimeout, "COMMAND_TIMEOUT"
	case errors.Is(err, model.ErrInvalidTransition):
		return http.StatusConflict, "INVALID_STATE"
	case errors.Is(err, model.ErrChannel):
		return http.StatusConflict, "CHANNEL_NOT_READY"
	case errors.Is(err, model.ErrAuth):
		return http.StatusBadGateway, "AUTH_FAILED"
	case errors.Is(err, model.ErrContentReported):
		return http.StatusBadGateway, "CONTENT_ERROR"
	case errors.Is(err, journal.ErrClosed):
		return http.StatusServiceUnavailable, "STORAGE_UNAVAILABLE"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusGatewayTimeout, "REQUEST_CANCELLED"
	default:
		return http.StatusInternalServerError, "INTERNAL"
	}
}

func respondError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := errorStatus(err)
	if status >= http.StatusInternalServerError {
		logger := log.WithComponentFromContext(r.Context(), "bridge")
		logger.Warn().
			Err(err).
			Int("status", status).
			Msg("request failed")
	}
	writeError(w, r, status, code, err.Error())
}
