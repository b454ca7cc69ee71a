package jobs

import (
	"github.com/hibiken/asynq"

	"github.com/kemosabixv/rcng-pwa-sub001/internal/notify"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = notify.QueueMail
	// TaskTypeSendEmail is the task type for sending transactional emails.
	TaskTypeSendEmail = notify.TaskSendMail
	// TaskDuesOverdueReminders sweeps overdue dues and mails their members.
	TaskDuesOverdueReminders = "dues:overdue-reminders"
	// TaskIdempotencyCleanup prunes old payment idempotency keys.
	TaskIdempotencyCleanup = "maintenance:idempotency-cleanup"

	// DuesReminderSchedule runs the sweep every day at 07:00 UTC.
	DuesReminderSchedule = "0 7 * * *"
	// IdempotencyCleanupSchedule runs weekly on Sunday at 03:30 UTC.
	IdempotencyCleanupSchedule = "30 3 * * 0"
)

// NewDuesOverdueRemindersTask constructs the scheduled sweep task.
func NewDuesOverdueRemindersTask() *asynq.Task {
	return asynq.NewTask(TaskDuesOverdueReminders, nil)
}

// DefaultCron lists the periodic tasks registered by the worker.
func DefaultCron() []CronRegistration {
	return []CronRegistration{
		{
			Spec:    DuesReminderSchedule,
			Task:    NewDuesOverdueRemindersTask(),
			Options: []asynq.Option{asynq.Queue(QueueDefault), asynq.MaxRetry(1), asynq.Unique(asynqUniqueTTL)},
		},
		{
			Spec:    IdempotencyCleanupSchedule,
			Task:    asynq.NewTask(TaskIdempotencyCleanup, nil),
			Options: []asynq.Option{asynq.Queue(QueueDefault), asynq.MaxRetry(3)},
		},
	}
}
