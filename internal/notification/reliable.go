package notification

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/yourorg/campuscore/internal/reliability/circuitbreaker"
	"github.com/yourorg/campuscore/internal/reliability/retry"
)

// ReliableSender wraps a Sender with retries and a circuit breaker so a
// flapping mail gateway neither blocks provisioning nor gets hammered.
type ReliableSender struct {
	inner    Sender
	breaker  *circuitbreaker.CircuitBreaker
	retryCfg *retry.Config
	logger   *slog.Logger
}

// NewReliableSender creates a new reliable sender wrapper
func NewReliableSender(inner Sender, logger *slog.Logger) *ReliableSender {
	if logger == nil {
		logger = slog.Default()
	}
	breaker := circuitbreaker.NewCircuitBreaker(5, 2, 30*time.Second)
	breaker.SetStateChangeCallback(func(from, to circuitbreaker.State) {
		logger.Warn("notification circuit state changed",
			slog.Int("from", int(from)),
			slog.Int("to", int(to)),
		)
	})
	return &ReliableSender{
		inner:    inner,
		breaker:  breaker,
		retryCfg: retry.DefaultConfig(),
		logger:   logger,
	}
}

func (s *ReliableSender) send(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	if !s.breaker.AllowRequest() {
		return fmt.Errorf("notification delivery unavailable: circuit open")
	}

	_, err := retry.Do(ctx, s.retryCfg, s.logger, op, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	if err != nil {
		s.breaker.RecordFailure()
		return err
	}
	s.breaker.RecordSuccess()
	return nil
}

// SendVerification delivers a verification token with retry and fast-fail
func (s *ReliableSender) SendVerification(ctx context.Context, email, token string) error {
	return s.send(ctx, "send_verification", func(ctx context.Context) error {
		return s.inner.SendVerification(ctx, email, token)
	})
}

// SendPasswordReset delivers a reset token with retry and fast-fail
func (s *ReliableSender) SendPasswordReset(ctx context.Context, email, token string) error {
	return s.send(ctx, "send_password_reset", func(ctx context.Context) error {
		return s.inner.SendPasswordReset(ctx, email, token)
	})
}
