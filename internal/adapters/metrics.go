package adapters

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reelforge_adapter_requests_total",
			Help: "Total number of upstream adapter calls.",
		},
		[]string{"adapter", "operation", "status"},
	)

	requestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "reelforge_adapter_request_duration_seconds",
			Help:    "Duration of upstream adapter calls.",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"adapter", "operation"},
	)

	tokensEstimated = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "reelforge_text_tokens",
			Help:    "Estimated tokens per text generation, by direction.",
			Buckets: prometheus.ExponentialBuckets(16, 2, 10),
		},
		[]string{"model", "direction"},
	)
)

// Observe records the outcome and latency of one adapter call.
func Observe(adapter, operation string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	requestsTotal.WithLabelValues(adapter, operation, status).Inc()
	requestDuration.WithLabelValues(adapter, operation).Observe(time.Since(start).Seconds())
}
