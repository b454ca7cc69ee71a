package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/kemosabixv/rcng-pwa-sub001/internal/jobs"
)

// IdempotencyRetention is how long payment transaction keys are kept.
const IdempotencyRetention = 90 * 24 * time.Hour

// KeyCleaner prunes stale idempotency keys.
type KeyCleaner interface {
	Cleanup(ctx context.Context, olderThan time.Duration) error
}

// IdempotencyCleanupJob removes idempotency keys past the retention window.
type IdempotencyCleanupJob struct {
	Keys      KeyCleaner
	Retention time.Duration
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
}

// Handle prunes once.
func (j *IdempotencyCleanupJob) Handle(ctx context.Context, _ *asynq.Task) error {
	if j == nil || j.Keys == nil {
		return errors.New("idempotency cleanup: handler not configured")
	}
	retention := j.Retention
	if retention <= 0 {
		retention = IdempotencyRetention
	}
	tracker := metricsOrDefault(j.Metrics).Track(TaskIdempotencyCleanup)
	if err := j.Keys.Cleanup(ctx, retention); err != nil {
		loggerFor(j.Logger, TaskIdempotencyCleanup).Error("prune idempotency keys", slog.Any("error", err))
		return tracker.End(err)
	}
	return tracker.End(nil)
}
