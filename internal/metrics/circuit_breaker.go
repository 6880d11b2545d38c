// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	breakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "embedbridge_breaker_state",
		Help: "Breaker state by component; the active state is 1, others 0",
	}, []string{"component", "state"})

	breakerTrips = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "embedbridge_breaker_trips_total",
		Help: "Total number of breaker transitions to open",
	}, []string{"component", "reason"})

	breakerRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "embedbridge_breaker_rejected_total",
		Help: "Total number of calls short-circuited by an open breaker",
	}, []string{"component"})
)

var breakerStates = []string{"closed", "half-open", "open"}

// SetBreakerState records the active breaker state for a component.
func SetBreakerState(component, state string) {
	for _, s := range breakerStates {
		value := 0.0
		if s == state {
			value = 1.0
		}
		breakerState.WithLabelValues(component, s).Set(value)
	}
}

// RecordBreakerTrip counts a transition to open.
func RecordBreakerTrip(component, reason string) {
	breakerTrips.WithLabelValues(component, reason).Inc()
}

// IncBreakerRejected counts a short-circuited call.
func IncBreakerRejected(component string) {
	breakerRejected.WithLabelValues(component).Inc()
}
