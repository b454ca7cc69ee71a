package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/kemosabixv/rcng-pwa-sub001/internal/dues"
	jobmetrics "github.com/kemosabixv/rcng-pwa-sub001/internal/jobs"
)

// OverdueDues is the part of dues.Service used by the reminder sweep.
type OverdueDues interface {
	Overdue(ctx context.Context) ([]dues.Due, error)
	SendReminder(ctx context.Context, d dues.Due)
}

// DuesReminderJob mails every member with overdue dues.
type DuesReminderJob struct {
	Dues    OverdueDues
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewDuesReminderJob wires dependencies for the sweep.
func NewDuesReminderJob(source OverdueDues, logger *slog.Logger, metrics *jobmetrics.Metrics) *DuesReminderJob {
	return &DuesReminderJob{Dues: source, Logger: logger, Metrics: metrics}
}

// Handle runs one sweep.
func (j *DuesReminderJob) Handle(ctx context.Context, _ *asynq.Task) error {
	if j == nil || j.Dues == nil {
		return errors.New("dues reminders: handler not configured")
	}
	tracker := metricsOrDefault(j.Metrics).Track(TaskDuesOverdueReminders)
	logger := loggerFor(j.Logger, TaskDuesOverdueReminders)
	start := time.Now()

	items, err := j.Dues.Overdue(ctx)
	if err != nil {
		logger.Error("load overdue dues", slog.Any("error", err))
		return tracker.End(err)
	}
	sent := 0
	for _, d := range items {
		if err := ctx.Err(); err != nil {
			return tracker.End(err)
		}
		if d.UserEmail == "" {
			logger.Warn("overdue due without email", slog.Int64("due_id", d.ID), slog.Int64("user_id", d.UserID))
			continue
		}
		j.Dues.SendReminder(ctx, d)
		sent++
	}
	metricsOrDefault(j.Metrics).AddReminders(sent)
	logger.Info("overdue reminders queued", slog.Int("overdue", len(items)), slog.Int("sent", sent), slog.Duration("duration", time.Since(start)))
	return tracker.End(nil)
}
