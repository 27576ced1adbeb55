package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/dispatch-service/internal/observability"
	"github.com/spec-kit/dispatch-service/internal/service"
)

// StatsReporter periodically logs pipeline counters and queue depth so
// operators can watch throughput without scraping an endpoint.
type StatsReporter struct {
	coordinator *service.Coordinator
	metrics     *observability.Metrics
	logger      *zap.Logger
	interval    time.Duration
}

// NewStatsReporter creates a reporter. A non-positive interval defaults to
// one minute.
func NewStatsReporter(coordinator *service.Coordinator, metrics *observability.Metrics, logger *zap.Logger, interval time.Duration) *StatsReporter {
	if interval <= 0 {
		interval = time.Minute
	}
	return &StatsReporter{
		coordinator: coordinator,
		metrics:     metrics,
		logger:      logger,
		interval:    interval,
	}
}

// Run emits a stats line every interval until the context is cancelled.
func (r *StatsReporter) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			snapshot := r.metrics.Snapshot()
			r.logger.Info("pipeline stats",
				zap.Int("queue_depth", r.coordinator.QueueDepth()),
				zap.Any("counters", snapshot.Stages),
				zap.Int64("requests", snapshot.Requests),
				zap.Int64("errors", snapshot.Errors))
		}
	}
}
