package queue

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	jobsEnqueued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reelforge_jobs_enqueued_total",
			Help: "Total number of jobs enqueued.",
		},
		[]string{"topic"},
	)
	jobsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reelforge_jobs_processed_total",
			Help: "Total number of job executions by outcome.",
		},
		[]string{"topic", "status"}, // succeeded, retried, failed, lease_lost
	)
	jobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "reelforge_job_duration_seconds",
			Help:    "Duration of job executions.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 14), // 50ms .. ~7min
		},
		[]string{"topic"},
	)
	jobsReaped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reelforge_jobs_reaped_total",
		Help: "Total number of stuck RUNNING jobs recovered.",
	})
)
