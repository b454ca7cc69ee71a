package notify_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/kemosabixv/rcng-pwa-sub001/internal/notify"
)

func TestSendSwallowsErrors(t *testing.T) {
	ctrl := gomock.NewController(t)
	n := notify.NewMockNotifier(ctrl)
	msg := notify.Message{To: "member@club.test", Subject: "Reminder"}
	n.EXPECT().Notify(gomock.Any(), msg).Return(errors.New("queue down"))

	notify.Send(context.Background(), n, nil, msg)
}

func TestSendSkipsEmptyRecipient(t *testing.T) {
	ctrl := gomock.NewController(t)
	n := notify.NewMockNotifier(ctrl)

	notify.Send(context.Background(), n, nil, notify.Message{Subject: "nobody"})
}

type recordingEnqueuer struct {
	tasks []*asynq.Task
	err   error
}

func (r *recordingEnqueuer) EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	if r.err != nil {
		return nil, r.err
	}
	r.tasks = append(r.tasks, task)
	return &asynq.TaskInfo{ID: "1", Queue: notify.QueueMail, Type: task.Type()}, nil
}

func TestQueueEnqueuesMailTask(t *testing.T) {
	rec := &recordingEnqueuer{}
	q := notify.NewQueue(rec)
	msg := notify.Message{To: "treasurer@club.test", Subject: "Dues", Body: "Pay up"}

	require.NoError(t, q.Notify(context.Background(), msg))
	require.Len(t, rec.tasks, 1)
	require.Equal(t, notify.TaskSendMail, rec.tasks[0].Type())

	var decoded notify.Message
	require.NoError(t, json.Unmarshal(rec.tasks[0].Payload(), &decoded))
	require.Equal(t, msg, decoded)

	rec.err = errors.New("redis down")
	require.ErrorContains(t, q.Notify(context.Background(), msg), "redis down")
}
