package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/kemosabixv/rcng-pwa-sub001/internal/jobs"
	"github.com/kemosabixv/rcng-pwa-sub001/internal/notify"
)

// Mailer delivers a rendered message.
type Mailer interface {
	Send(ctx context.Context, msg notify.Message) error
}

// SMTPMailer sends plain-text mail through an SMTP relay.
type SMTPMailer struct {
	Addr string
	From string
	Auth smtp.Auth
	now  func() time.Time
}

// NewSMTPMailer targets host:port. Credentials are optional; relays such as
// Mailpit accept unauthenticated mail.
func NewSMTPMailer(host string, port int, from, username, password string) *SMTPMailer {
	m := &SMTPMailer{Addr: net.JoinHostPort(host, strconv.Itoa(port)), From: from, now: time.Now}
	if username != "" {
		m.Auth = smtp.PlainAuth("", username, password, host)
	}
	return m
}

// Send implements Mailer.
func (m *SMTPMailer) Send(ctx context.Context, msg notify.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return smtp.SendMail(m.Addr, m.Auth, m.From, []string{msg.To}, m.render(msg))
}

func (m *SMTPMailer) render(msg notify.Message) []byte {
	now := time.Now
	if m.now != nil {
		now = m.now
	}
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", m.From)
	fmt.Fprintf(&b, "To: %s\r\n", msg.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", headerSafe(msg.Subject))
	fmt.Fprintf(&b, "Date: %s\r\n", now().UTC().Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	b.WriteString(strings.ReplaceAll(msg.Body, "\n", "\r\n"))
	return []byte(b.String())
}

func headerSafe(v string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(v)
}

// MailJob processes TaskTypeSendEmail tasks.
type MailJob struct {
	Mailer  Mailer
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// Handle decodes and delivers one message. Malformed payloads are not retried.
func (j *MailJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Mailer == nil {
		return errors.New("mail: handler not configured")
	}
	var msg notify.Message
	if err := json.Unmarshal(t.Payload(), &msg); err != nil {
		return fmt.Errorf("mail: decode payload: %v: %w", err, asynq.SkipRetry)
	}
	if strings.TrimSpace(msg.To) == "" {
		return fmt.Errorf("mail: empty recipient: %w", asynq.SkipRetry)
	}

	tracker := metricsOrDefault(j.Metrics).Track(TaskTypeSendEmail)
	err := j.Mailer.Send(ctx, msg)
	logger := loggerFor(j.Logger, TaskTypeSendEmail).With(slog.String("to", msg.To), slog.String("subject", msg.Subject))
	if err != nil {
		logger.Warn("mail delivery failed", slog.Any("error", err))
		return tracker.End(err)
	}
	logger.Info("mail delivered")
	return tracker.End(nil)
}
