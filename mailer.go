package goShield

import (
	"context"
	"log/slog"
)

// LogMailer writes outgoing mail to a logger instead of sending it. Tokens are not logged.
type LogMailer struct {
	Logger *slog.Logger
}

func (m LogMailer) logger() *slog.Logger {
	if m.Logger == nil {
		return slog.Default()
	}
	return m.Logger
}

func (m LogMailer) SendVerification(ctx context.Context, to, _, _ string) error {
	m.logger().InfoContext(ctx, "verification email queued", slog.String("to", to))
	return nil
}

func (m LogMailer) SendPasswordReset(ctx context.Context, to, _, _ string) error {
	m.logger().InfoContext(ctx, "password reset email queued", slog.String("to", to))
	return nil
}
