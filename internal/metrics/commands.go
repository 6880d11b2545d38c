// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Command outcomes.
const (
	OutcomeSent     = "sent"
	OutcomeReplied  = "replied"
	OutcomeTimeout  = "timeout"
	OutcomeClosed   = "closed"
	OutcomeSendFail = "send_failed"
	OutcomeLate     = "late_reply"
)

var (
	CommandsSentTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "embedbridge_commands_sent_total",
		Help: "Total number of host commands written to the channel",
	}, []string{"kind"})

	CommandOutcomesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "embedbridge_command_outcomes_total",
		Help: "Total number of host command resolutions by outcome",
	}, []string{"kind", "outcome"})

	CommandsPending = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "embedbridge_commands_pending",
		Help: "Number of reply-expecting commands awaiting a correlated reply",
	})
)

// IncCommandSent records a command written to the channel.
func IncCommandSent(kind string) {
	CommandsSentTotal.WithLabelValues(orUnknown(kind)).Inc()
}

// IncCommandOutcome records how a command was resolved.
func IncCommandOutcome(kind, outcome string) {
	CommandOutcomesTotal.WithLabelValues(orUnknown(kind), orUnknown(outcome)).Inc()
}

// AddCommandsPending adjusts the pending-reply gauge.
func AddCommandsPending(delta int) {
	CommandsPending.Add(float64(delta))
}
