package ledger

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ledgerOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reelforge_ledger_operations_total",
			Help: "Total number of ledger mutations by operation and outcome.",
		},
		[]string{"operation", "outcome"}, // deduct|add, applied|insufficient|duplicate|error
	)
	ledgerConflictRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reelforge_ledger_conflict_retries_total",
		Help: "Total number of internally retried ledger conflicts.",
	})
)
