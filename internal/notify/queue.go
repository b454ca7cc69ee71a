package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// TaskSendMail is the asynq task type that delivers one Message.
	TaskSendMail = "mail:send"
	// QueueMail is the queue mail tasks are enqueued on.
	QueueMail = "default"
)

// Enqueuer is the part of *asynq.Client used by Queue.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Queue hands messages to the background worker.
type Queue struct {
	client Enqueuer
}

// NewQueue wraps an asynq client.
func NewQueue(client Enqueuer) *Queue {
	return &Queue{client: client}
}

// NewSendMailTask encodes msg as a mail task.
func NewSendMailTask(msg Message) (*asynq.Task, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSendMail, data), nil
}

// Notify implements Notifier.
func (q *Queue) Notify(ctx context.Context, msg Message) error {
	task, err := NewSendMailTask(msg)
	if err != nil {
		return fmt.Errorf("encode mail task: %w", err)
	}
	_, err = q.client.EnqueueContext(ctx, task,
		asynq.Queue(QueueMail),
		asynq.MaxRetry(5),
		asynq.Timeout(30*time.Second),
	)
	if err != nil {
		return fmt.Errorf("enqueue mail: %w", err)
	}
	return nil
}
