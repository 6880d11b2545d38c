// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EventsDispatchedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "embedbridge_events_dispatched_total",
		Help: "Total number of embed events delivered to at least one listener",
	}, []string{"kind"})

	EventsDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "embedbridge_events_dropped_total",
		Help: "Total number of embed events dropped by kind and reason",
	}, []string{"kind", "reason"})

	ListenerFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "embedbridge_listener_failures_total",
		Help: "Total number of listener invocations that returned an error or panicked",
	}, []string{"kind", "reason"})

	InboundBufferedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "embedbridge_inbound_buffered_total",
		Help: "Total number of inbound messages buffered before the channel became ready",
	})
)

// IncEventDispatched records an event that reached its listeners.
func IncEventDispatched(kind string) {
	EventsDispatchedTotal.WithLabelValues(orUnknown(kind)).Inc()
}

// IncEventDropped records a dropped event with a concrete reason.
func IncEventDropped(kind, reason string) {
	EventsDroppedTotal.WithLabelValues(orUnknown(kind), orUnknown(reason)).Inc()
}

// IncListenerFailure records a failed listener ("error" or "panic").
func IncListenerFailure(kind, reason string) {
	ListenerFailuresTotal.WithLabelValues(orUnknown(kind), orUnknown(reason)).Inc()
}

// IncInboundBuffered records a message held until readiness.
func IncInboundBuffered() {
	InboundBufferedTotal.Inc()
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
