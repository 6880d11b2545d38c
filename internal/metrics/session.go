// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Token fetch results.
const (
	TokenResultOK     = "ok"
	TokenResultError  = "error"
	TokenResultCached = "cached"
)

var (
	TokenFetchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "embedbridge_token_fetch_total",
		Help: "Total number of token acquisitions by result",
	}, []string{"result"})

	TokenFetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "embedbridge_token_fetch_duration_seconds",
		Help:    "Duration of token provider calls",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	})

	StateTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "embedbridge_state_transitions_total",
		Help: "Total number of embed session lifecycle transitions",
	}, []string{"from", "to"})

	SessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "embedbridge_sessions_active",
		Help: "Number of embed sessions not yet disposed",
	})
)

// ObserveTokenFetch records one provider call.
func ObserveTokenFetch(result string, d time.Duration) {
	TokenFetchTotal.WithLabelValues(orUnknown(result)).Inc()
	if result != TokenResultCached {
		TokenFetchDuration.Observe(d.Seconds())
	}
}

// RecordTransition records a lifecycle transition.
func RecordTransition(from, to string) {
	StateTransitionsTotal.WithLabelValues(orUnknown(from), orUnknown(to)).Inc()
}

// SessionOpened increments the active session gauge.
func SessionOpened() { SessionsActive.Inc() }

// SessionClosed decrements the active session gauge.
func SessionClosed() { SessionsActive.Dec() }
