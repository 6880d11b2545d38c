// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "embedbridge_http_request_duration_seconds",
		Help:    "HTTP request latencies in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})

	HTTPRequestsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "embedbridge_http_requests_in_flight",
		Help: "Current number of HTTP requests being served",
	})

	CommandsRateLimitedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "embedbridge_commands_rate_limited_total",
		Help: "Total number of HTTP-triggered commands rejected by the per-session limiter",
	})

	WebSocketUpgradesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "embedbridge_websocket_upgrades_total",
		Help: "Total number of WebSocket upgrade attempts by codec and result",
	}, []string{"codec", "result"})
)

// ObserveHTTPRequest records one finished request. route is the chi route
// pattern so that ids in paths do not explode cardinality.
func ObserveHTTPRequest(method, route string, status int, d time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, orUnknown(route), strconv.Itoa(status)).Observe(d.Seconds())
}

// IncCommandRateLimited records a command rejected with 429.
func IncCommandRateLimited() { CommandsRateLimitedTotal.Inc() }

// IncWebSocketUpgrade records an upgrade attempt ("ok" or "error").
func IncWebSocketUpgrade(codec, result string) {
	WebSocketUpgradesTotal.WithLabelValues(orUnknown(codec), result).Inc()
}
