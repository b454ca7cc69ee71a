package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kemosabixv/rcng-pwa-sub001/internal/dues"
	jobmetrics "github.com/kemosabixv/rcng-pwa-sub001/internal/jobs"
	"github.com/kemosabixv/rcng-pwa-sub001/internal/notify"
)

type recordingMailer struct {
	sent []notify.Message
	err  error
}

func (m *recordingMailer) Send(_ context.Context, msg notify.Message) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

func mailTask(t *testing.T, msg notify.Message) *asynq.Task {
	t.Helper()
	task, err := notify.NewSendMailTask(msg)
	require.NoError(t, err)
	return task
}

func TestMailJobDelivers(t *testing.T) {
	mailer := &recordingMailer{}
	metrics := jobmetrics.NewMetrics(prometheus.NewRegistry())
	job := &MailJob{Mailer: mailer, Metrics: metrics}

	msg := notify.Message{To: "member@club.test", Subject: "Dues reminder", Body: "Please pay."}
	require.NoError(t, job.Handle(context.Background(), mailTask(t, msg)))
	require.Len(t, mailer.sent, 1)
	assert.Equal(t, msg, mailer.sent[0])
}

func TestMailJobSkipsRetryOnBadPayload(t *testing.T) {
	job := &MailJob{Mailer: &recordingMailer{}}

	err := job.Handle(context.Background(), asynq.NewTask(TaskTypeSendEmail, []byte("{")))
	assert.ErrorIs(t, err, asynq.SkipRetry)

	err = job.Handle(context.Background(), mailTask(t, notify.Message{Subject: "no recipient"}))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestMailJobReturnsDeliveryErrorForRetry(t *testing.T) {
	boom := errors.New("connection refused")
	job := &MailJob{Mailer: &recordingMailer{err: boom}}

	err := job.Handle(context.Background(), mailTask(t, notify.Message{To: "a@club.test"}))
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, asynq.SkipRetry)
}

func TestSMTPMailerRender(t *testing.T) {
	m := NewSMTPMailer("127.0.0.1", 1025, "no-reply@rcng.local", "", "")
	m.now = func() time.Time { return time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC) }
	assert.Equal(t, "127.0.0.1:1025", m.Addr)
	assert.Nil(t, m.Auth)

	raw := string(m.render(notify.Message{To: "a@club.test", Subject: "Hi\r\nBcc: x@evil.test", Body: "line one\nline two"}))
	assert.Contains(t, raw, "From: no-reply@rcng.local\r\n")
	assert.Contains(t, raw, "Subject: Hi  Bcc: x@evil.test\r\n")
	assert.Contains(t, raw, "Date: Sun, 15 Mar 2026 10:00:00 +0000\r\n")
	assert.True(t, strings.HasSuffix(raw, "line one\r\nline two"))

	withAuth := NewSMTPMailer("smtp.club.test", 587, "club@club.test", "club", "secret")
	assert.NotNil(t, withAuth.Auth)
}

type fakeOverdue struct {
	items    []dues.Due
	err      error
	reminded []int64
}

func (f *fakeOverdue) Overdue(context.Context) ([]dues.Due, error) {
	return f.items, f.err
}

func (f *fakeOverdue) SendReminder(_ context.Context, d dues.Due) {
	f.reminded = append(f.reminded, d.ID)
}

func TestDuesReminderJobSendsToMembersWithEmail(t *testing.T) {
	source := &fakeOverdue{items: []dues.Due{
		{ID: 1, UserID: 10, UserEmail: "a@club.test"},
		{ID: 2, UserID: 11},
		{ID: 3, UserID: 12, UserEmail: "c@club.test"},
	}}
	reg := prometheus.NewRegistry()
	metrics := jobmetrics.NewMetrics(reg)
	job := NewDuesReminderJob(source, nil, metrics)

	require.NoError(t, job.Handle(context.Background(), NewDuesOverdueRemindersTask()))
	assert.Equal(t, []int64{1, 3}, source.reminded)

	families, err := reg.Gather()
	require.NoError(t, err)
	var reminders float64
	for _, mf := range families {
		if mf.GetName() == "rcng_dues_reminders_total" {
			reminders = mf.GetMetric()[0].GetCounter().GetValue()
		}
	}
	assert.Equal(t, float64(2), reminders)
}

func TestDuesReminderJobPropagatesLoadError(t *testing.T) {
	boom := errors.New("db down")
	job := NewDuesReminderJob(&fakeOverdue{err: boom}, nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))
	assert.ErrorIs(t, job.Handle(context.Background(), NewDuesOverdueRemindersTask()), boom)
}

func TestDefaultCronSchedulesReminders(t *testing.T) {
	cron := DefaultCron()
	require.Len(t, cron, 2)
	assert.Equal(t, "0 7 * * *", cron[0].Spec)
	assert.Equal(t, TaskDuesOverdueReminders, cron[0].Task.Type())
	assert.Equal(t, TaskIdempotencyCleanup, cron[1].Task.Type())
}

type recordingCleaner struct {
	olderThan time.Duration
	err       error
}

func (c *recordingCleaner) Cleanup(_ context.Context, olderThan time.Duration) error {
	c.olderThan = olderThan
	return c.err
}

func TestIdempotencyCleanupUsesRetention(t *testing.T) {
	cleaner := &recordingCleaner{}
	job := &IdempotencyCleanupJob{Keys: cleaner, Metrics: jobmetrics.NewMetrics(prometheus.NewRegistry())}
	require.NoError(t, job.Handle(context.Background(), nil))
	assert.Equal(t, IdempotencyRetention, cleaner.olderThan)

	cleaner.err = errors.New("db down")
	job.Retention = time.Hour
	assert.Error(t, job.Handle(context.Background(), nil))
	assert.Equal(t, time.Hour, cleaner.olderThan)
}

func TestNewServeMuxRejectsDuplicates(t *testing.T) {
	noop := func(context.Context, *asynq.Task) error { return nil }
	_, err := NewServeMux([]TaskHandler{{Type: TaskTypeSendEmail, Handler: noop}, {Type: TaskTypeSendEmail, Handler: noop}})
	assert.Error(t, err)

	mux, err := NewServeMux([]TaskHandler{{Type: TaskTypeSendEmail, Handler: noop}, {Type: "", Handler: noop}})
	require.NoError(t, err)
	assert.NotNil(t, mux)
}

type stubInspector struct {
	info *asynq.QueueInfo
	err  error
}

func (s stubInspector) GetQueueInfo(string) (*asynq.QueueInfo, error) {
	return s.info, s.err
}

func serveHealth(t *testing.T, inspector QueueInspector) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	r := chi.NewRouter()
	NewHandler(inspector, nil).MountRoutes(r)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	return rr, body
}

func TestHealthReportsQueueInfo(t *testing.T) {
	rr, body := serveHealth(t, stubInspector{info: &asynq.QueueInfo{Queue: "default", Pending: 4, Retry: 1}})
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, true, body["success"])
	data := body["data"].(map[string]any)
	assert.Equal(t, float64(4), data["pending"])
	assert.Equal(t, float64(1), data["retry"])
}

func TestHealthUnavailable(t *testing.T) {
	rr, body := serveHealth(t, stubInspector{err: errors.New("redis down")})
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Equal(t, false, body["success"])
}

func TestHealthWithoutInspector(t *testing.T) {
	rr, body := serveHealth(t, nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "default", body["data"].(map[string]any)["queue"])
}
