package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	videoEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reelforge_video_status_events_total",
			Help: "Video status events emitted, by video status.",
		},
		[]string{"status"},
	)

	refundsIssued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reelforge_refunds_total",
			Help: "Refunds applied, by reason.",
		},
		[]string{"reason"},
	)
)
