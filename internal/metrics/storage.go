// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	JournalWritesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "embedbridge_journal_writes_total",
		Help: "Total number of journal appends by kind and result",
	}, []string{"kind", "result"})

	JournalPrunedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "embedbridge_journal_pruned_total",
		Help: "Total number of journal entries removed by retention",
	})

	RecorderDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "embedbridge_recorder_dropped_total",
		Help: "Total number of session records dropped because the recorder queue was full",
	})

	DirectoryOpsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "embedbridge_directory_ops_total",
		Help: "Total number of session directory operations by op and result",
	}, []string{"op", "result"})
)

// IncJournalWrite records one append ("ok" or "error").
func IncJournalWrite(kind, result string) {
	JournalWritesTotal.WithLabelValues(orUnknown(kind), result).Inc()
}

// AddJournalPruned records entries dropped by the retention sweep.
func AddJournalPruned(n int) {
	if n > 0 {
		JournalPrunedTotal.Add(float64(n))
	}
}

// IncRecorderDropped records a record discarded on a full queue.
func IncRecorderDropped() { RecorderDroppedTotal.Inc() }

// IncDirectoryOp records one directory call ("ok" or "error").
func IncDirectoryOp(op, result string) {
	DirectoryOpsTotal.WithLabelValues(op, result).Inc()
}
