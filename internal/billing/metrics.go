package billing

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var paymentEvents = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "reelforge_payment_events_total",
		Help: "Payment events handled, by type and result.",
	},
	[]string{"type", "result"},
)
