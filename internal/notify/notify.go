// Package notify defines the fire-and-forget mail boundary used by services.
package notify

import (
	"context"
	"log/slog"
)

//go:generate mockgen -source=notify.go -destination=notifier_mock.go -package=notify

// Message is a single outbound mail.
type Message struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Notifier hands messages to a delivery channel.
type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}

// Noop drops every message.
type Noop struct{}

// Notify implements Notifier.
func (Noop) Notify(context.Context, Message) error { return nil }

// Send delivers msg best-effort: failures are logged and never returned.
func Send(ctx context.Context, n Notifier, logger *slog.Logger, msg Message) {
	if n == nil || msg.To == "" {
		return
	}
	if err := n.Notify(ctx, msg); err != nil {
		if logger == nil {
			logger = slog.Default()
		}
		logger.Warn("notification not queued", slog.String("to", msg.To), slog.String("subject", msg.Subject), slog.Any("error", err))
	}
}
