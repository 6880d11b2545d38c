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
	"strings"
	"time"

	"github.com/ManuGH/embedbridge/internal/config"
	"github.com/ManuGH/embedbridge/internal/domain/embed/model"
	"github.com/ManuGH/embedbridge/internal/domain/embed/ports"
	"github.com/ManuGH/embedbridge/internal/resilience"
)

const maxTokenResponseBytes = 64 << 10

// tokenResponse is the JSON body accepted from a token endpoint.
type tokenResponse struct {
	Token    string    `json:"token"`
	IssuedAt time.Time `json:"issuedAt,omitempty"`
}

// NewTokenProvider builds the daemon's token provider from the auth
// settings. A URL source is guarded by breaker and never retried; the
// breaker is shared by every session.
func NewTokenProvider(auth config.AuthSettings, client *http.Client, breaker *resilience.CircuitBreaker) ports.TokenProvider {
	if auth.StaticToken != "" {
		tok := auth.StaticToken
		return func(context.Context) (model.SessionToken, error) {
			return model.SessionToken{Value: tok}, nil
		}
	}
	if auth.TokenURL == "" {
		return func(context.Context) (model.SessionToken, error) {
			return model.SessionToken{}, &model.AuthError{Reason: "no token source configured"}
		}
	}
	if client == nil {
		client = http.DefaultClient
	}
	src := &urlTokenSource{url: auth.TokenURL, client: client}
	return func(ctx context.Context) (model.SessionToken, error) {
		var tok model.SessionToken
		err := breaker.Execute(ctx, func(ctx context.Context) error {
			var ferr error
			tok, ferr = src.fetch(ctx)
			return ferr
		})
		if err != nil {
			var open *resilience.OpenError
			if errors.As(err, &open) {
				return model.SessionToken{}, &model.AuthError{Reason: "token endpoint unavailable", Err: err}
			}
			return model.SessionToken{}, err
		}
		return tok, nil
	}
}

type urlTokenSource struct {
	url    string
	client *http.Client
}

// fetch GETs the token endpoint. A JSON body must carry "token"; any other
// body is taken verbatim as the token.
func (s *urlTokenSource) fetch(ctx context.Context) (model.SessionToken, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return model.SessionToken{}, fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Accept", "application/json, text/plain")

	resp, err := s.client.Do(req)
	if err != nil {
		return model.SessionToken{}, &model.AuthError{Reason: "token request failed", Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxTokenResponseBytes))
	if err != nil {
		return model.SessionToken{}, &model.AuthError{Reason: "read token response", Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return model.SessionToken{}, &model.AuthError{Reason: fmt.Sprintf("token endpoint returned %d", resp.StatusCode)}
	}

	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		var tr tokenResponse
		if err := json.Unmarshal(body, &tr); err != nil {
			return model.SessionToken{}, &model.AuthError{Reason: "decode token response", Err: err}
		}
		if tr.Token == "" {
			return model.SessionToken{}, &model.AuthError{Reason: "token response has no token"}
		}
		return model.SessionToken{Value: tr.Token, IssuedAt: tr.IssuedAt}, nil
	}

	tok := strings.TrimSpace(string(body))
	if tok == "" {
		return model.SessionToken{}, &model.AuthError{Reason: "empty token response"}
	}
	return model.SessionToken{Value: tok}, nil
}
