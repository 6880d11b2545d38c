// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/embedbridge/internal/config"
)

type mockChecker struct {
	name   string
	status Status
}

func (m *mockChecker) Name() string { return m.name }

func (m *mockChecker) Check(context.Context) CheckResult {
	return CheckResult{Status: m.status}
}

func TestNewManager(t *testing.T) {
	m := NewManager("v1.2.3")
	assert.Equal(t, "v1.2.3", m.version)
	assert.Empty(t, m.checkers)
}

func TestManager_Health_NoCheckers(t *testing.T) {
	m := NewManager("v1.0.0")

	resp := m.Health(context.Background(), false)
	assert.Equal(t, StatusHealthy, resp.Status)
	assert.Equal(t, "v1.0.0", resp.Version)
	assert.GreaterOrEqual(t, resp.Uptime, int64(0))
	assert.Nil(t, resp.Checks)
}

func TestManager_Health_WithCheckers(t *testing.T) {
	m := NewManager("v1.0.0")
	m.RegisterChecker(&mockChecker{name: "healthy", status: StatusHealthy})
	m.RegisterChecker(&mockChecker{name: "degraded", status: StatusDegraded})

	resp := m.Health(context.Background(), false)
	assert.Equal(t, StatusHealthy, resp.Status)
	assert.Nil(t, resp.Checks)

	resp = m.Health(context.Background(), true)
	assert.Equal(t, StatusDegraded, resp.Status)
	assert.Len(t, resp.Checks, 2)
	assert.Equal(t, StatusDegraded, resp.Checks["degraded"].Status)
}

func TestManager_Ready(t *testing.T) {
	tests := []struct {
		name      string
		checkers  []Checker
		wantReady bool
		want      Status
	}{
		{name: "no checkers", wantReady: true, want: StatusHealthy},
		{
			name:      "degraded stays ready",
			checkers:  []Checker{&mockChecker{name: "sessions", status: StatusDegraded}},
			wantReady: true,
			want:      StatusDegraded,
		},
		{
			name: "unhealthy wins over degraded",
			checkers: []Checker{
				&mockChecker{name: "a", status: StatusUnhealthy},
				&mockChecker{name: "b", status: StatusDegraded},
			},
			wantReady: false,
			want:      StatusUnhealthy,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewManager("v1")
			for _, c := range tt.checkers {
				m.RegisterChecker(c)
			}
			resp := m.Ready(context.Background())
			assert.Equal(t, tt.wantReady, resp.Ready)
			assert.Equal(t, tt.want, resp.Status)
		})
	}
}

func TestManager_DrainingFailsReadinessOnly(t *testing.T) {
	m := NewManager("v1")
	m.SetDraining(true)

	ready := m.Ready(context.Background())
	assert.False(t, ready.Ready)
	assert.Equal(t, StatusUnhealthy, ready.Checks["draining"].Status)
	assert.Equal(t, StatusHealthy, m.Health(context.Background(), true).Status)
}

func TestServeReady_StatusCodes(t *testing.T) {
	m := NewManager("v1")

	rec := httptest.NewRecorder()
	m.ServeReady(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	m.RegisterChecker(NewFuncChecker("token_source", func(context.Context) CheckResult {
		return CheckResult{Status: StatusUnhealthy, Error: "breaker open"}
	}))
	rec = httptest.NewRecorder()
	m.ServeReady(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var resp ReadinessResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "breaker open", resp.Checks["token_source"].Error)
}

func TestServeHealth_AlwaysOK(t *testing.T) {
	m := NewManager("v1")
	m.RegisterChecker(&mockChecker{name: "x", status: StatusUnhealthy})

	rec := httptest.NewRecorder()
	m.ServeHealth(rec, httptest.NewRequest(http.MethodGet, "/healthz?verbose=true", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp HealthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, StatusUnhealthy, resp.Status)
}

func TestPerformStartupChecks(t *testing.T) {
	cfg := config.Defaults()
	cfg.Embed.Host = "https://analytics.example.com"
	cfg.Auth.StaticToken = "tok"
	require.NoError(t, PerformStartupChecks(context.Background(), cfg))

	bad := cfg
	bad.Channel.Codec = "xml"
	assert.ErrorContains(t, PerformStartupChecks(context.Background(), bad), "codec")

	bad = cfg
	bad.Embed.Host = ""
	assert.ErrorContains(t, PerformStartupChecks(context.Background(), bad), "embed configuration")

	bad = cfg
	bad.ListenAddr = "8089"
	assert.ErrorContains(t, PerformStartupChecks(context.Background(), bad), "listen address")
}
