// Package metrics pushes the worker's metrics to a Prometheus Pushgateway.
package metrics

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
	"go.uber.org/zap"
)

const DefaultPushInterval = 15 * time.Second

// Pusher periodically pushes a gatherer to the Pushgateway, grouped by instance.
type Pusher struct {
	pusher   *push.Pusher
	interval time.Duration
	logger   *zap.Logger
}

// InstanceID identifies this process in the Pushgateway grouping key.
func InstanceID() string {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}

func NewPusher(url, job string, gatherer prometheus.Gatherer, interval time.Duration, logger *zap.Logger) *Pusher {
	if interval <= 0 {
		interval = DefaultPushInterval
	}
	instance := InstanceID()
	logger = logger.Named("MetricsPusher")
	logger.Info("Pushgateway pusher configured",
		zap.String("url", url),
		zap.String("job", job),
		zap.String("instance", instance),
	)
	return &Pusher{
		pusher:   push.New(url, job).Gatherer(gatherer).Grouping("instance", instance),
		interval: interval,
		logger:   logger,
	}
}

// Run pushes on every tick until ctx is done, then removes this instance's group.
func (p *Pusher) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			if err := p.pusher.Delete(); err != nil {
				p.logger.Warn("Failed to delete metrics from Pushgateway", zap.Error(err))
			}
			return nil
		case <-ticker.C:
			if err := p.pusher.PushContext(ctx); err != nil && ctx.Err() == nil {
				p.logger.Warn("Failed to push metrics", zap.Error(err))
			}
		}
	}
}
