// Package notification defines the outbound delivery collaborator for
// verification and password-reset tokens. Delivery is best-effort: the
// lifecycle workflows treat a failure as a partial success, never as a
// reason to roll back.
package notification

import (
	"context"
	"log/slog"
)

// Sender delivers account tokens to their owner.
type Sender interface {
	SendVerification(ctx context.Context, email, token string) error
	SendPasswordReset(ctx context.Context, email, token string) error
}

// LogSender is the development sender: it logs instead of delivering.
// The raw token is deliberately not logged.
type LogSender struct {
	logger *slog.Logger
}

// NewLogSender creates a new log-backed sender
func NewLogSender(logger *slog.Logger) *LogSender {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSender{logger: logger}
}

// SendVerification logs a verification delivery
func (s *LogSender) SendVerification(_ context.Context, email, _ string) error {
	s.logger.Info("verification token issued", slog.String("email", email))
	return nil
}

// SendPasswordReset logs a password-reset delivery
func (s *LogSender) SendPasswordReset(_ context.Context, email, _ string) error {
	s.logger.Info("password reset token issued", slog.String("email", email))
	return nil
}
