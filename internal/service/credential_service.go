package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/yourorg/campuscore/internal/domain"
	"github.com/yourorg/campuscore/internal/notification"
	"github.com/yourorg/campuscore/internal/security/auth"
)

const (
	maxFailedLogins = 5
	lockoutDuration = 15 * time.Minute
	resetTokenTTL   = time.Hour
	tokenLifetime   = 24 * time.Hour
)

// CredentialService handles authentication and the token-based account
// flows: login with lockout, email verification and password reset.
type CredentialService struct {
	users    domain.UserRepository
	tokens   *auth.TokenManager
	notifier notification.Sender
	audit    domain.AuditSink
	logger   *slog.Logger
}

// NewCredentialService creates a new credential service
func NewCredentialService(
	users domain.UserRepository,
	tokens *auth.TokenManager,
	notifier notification.Sender,
	audit domain.AuditSink,
	logger *slog.Logger,
) *CredentialService {
	if logger == nil {
		logger = slog.Default()
	}
	return &CredentialService{
		users:    users,
		tokens:   tokens,
		notifier: notifier,
		audit:    audit,
		logger:   logger,
	}
}

// LoginResult is the successful login response.
type LoginResult struct {
	UserID    string `json:"user_id"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	Token     string `json:"token"`
	ExpiresIn int    `json:"expires_in"` // seconds
	TokenType string `json:"token_type"`
}

// Login authenticates by email and password. Every credential failure
// returns the same forbidden error so callers cannot probe which
// accounts exist; repeated failures lock the account temporarily.
func (s *CredentialService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, domain.Validationf("email and password are required")
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.Forbiddenf("invalid credentials")
		}
		return nil, fmt.Errorf("failed to look up account: %w", err)
	}

	now := time.Now()
	if user.Locked(now) {
		s.logger.Warn("login rejected: account locked", slog.String("user_id", string(user.ID)))
		return nil, domain.Forbiddenf("account is temporarily locked")
	}
	if user.Status != domain.StatusActive {
		s.logger.Warn("login rejected: account not active",
			slog.String("user_id", string(user.ID)),
			slog.String("status", string(user.Status)),
		)
		return nil, domain.Forbiddenf("account is not active")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, s.handleFailedLogin(ctx, user, now)
	}

	if err := s.users.ClearLoginFailures(ctx, user.ID); err != nil {
		s.logger.Warn("failed to clear login failures", slog.String("error", err.Error()))
	}

	token, err := s.tokens.GenerateToken(string(user.ID), string(user.Role), user.Email, tokenLifetime)
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}

	s.logger.Info("login succeeded", slog.String("user_id", string(user.ID)))
	return &LoginResult{
		UserID:    string(user.ID),
		Email:     user.Email,
		Role:      string(user.Role),
		Token:     token,
		ExpiresIn: int(tokenLifetime.Seconds()),
		TokenType: "Bearer",
	}, nil
}

func (s *CredentialService) handleFailedLogin(ctx context.Context, user *domain.User, now time.Time) error {
	attempts, err := s.users.IncrementFailedLogins(ctx, user.ID)
	if err != nil {
		s.logger.Error("failed to record login failure", slog.String("error", err.Error()))
		return domain.Forbiddenf("invalid credentials")
	}
	if attempts >= maxFailedLogins {
		until := now.Add(lockoutDuration)
		if err := s.users.SetLock(ctx, user.ID, until); err != nil {
			s.logger.Error("failed to lock account", slog.String("error", err.Error()))
		} else {
			s.logger.Warn("account locked after repeated login failures",
				slog.String("user_id", string(user.ID)),
				slog.Time("until", until),
			)
		}
	}
	return domain.Forbiddenf("invalid credentials")
}

// VerifyAccount redeems a verification token, activating a pending
// account. The token is single-use: it is cleared on success and on
// expiry.
func (s *CredentialService) VerifyAccount(ctx context.Context, rawToken string) error {
	if strings.TrimSpace(rawToken) == "" {
		return domain.Validationf("verification token is required")
	}

	user, err := s.users.GetByVerificationToken(ctx, hashToken(rawToken))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Validationf("invalid verification token")
		}
		return fmt.Errorf("failed to look up verification token: %w", err)
	}

	if user.VerificationTokenExpiry == nil || time.Now().After(*user.VerificationTokenExpiry) {
		if err := s.users.ClearVerificationToken(ctx, user.ID); err != nil {
			s.logger.Warn("failed to clear expired verification token", slog.String("error", err.Error()))
		}
		return domain.Validationf("verification token has expired")
	}
	if user.Status != domain.StatusPending {
		return domain.Conflictf("account is not awaiting verification")
	}

	if err := s.users.UpdateStatus(ctx, user.ID, domain.StatusActive); err != nil {
		return err
	}
	if err := s.users.ClearVerificationToken(ctx, user.ID); err != nil {
		s.logger.Warn("failed to clear redeemed verification token", slog.String("error", err.Error()))
	}

	s.logger.Info("account verified", slog.String("user_id", string(user.ID)))
	return nil
}

// RequestPasswordReset issues a reset token for the account behind the
// email. Unknown emails succeed silently; the response never reveals
// whether an account exists.
func (s *CredentialService) RequestPasswordReset(ctx context.Context, email string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return domain.Validationf("email is required")
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("failed to look up account: %w", err)
	}

	raw, hash, err := newToken()
	if err != nil {
		return err
	}
	if err := s.users.SetResetToken(ctx, user.ID, hash, time.Now().Add(resetTokenTTL)); err != nil {
		return fmt.Errorf("failed to store reset token: %w", err)
	}

	if err := s.notifier.SendPasswordReset(ctx, user.Email, raw); err != nil {
		s.logger.Warn("password reset delivery failed",
			slog.String("user_id", string(user.ID)),
			slog.String("error", err.Error()),
		)
	}
	return nil
}

// ResetPassword redeems a reset token and replaces the password. The
// lockout counters clear alongside: a reset proves account ownership.
func (s *CredentialService) ResetPassword(ctx context.Context, rawToken, newPassword string) error {
	if strings.TrimSpace(rawToken) == "" {
		return domain.Validationf("reset token is required")
	}
	if len(newPassword) < 8 {
		return domain.Validationf("password must be at least 8 characters")
	}

	user, err := s.users.GetByResetToken(ctx, hashToken(rawToken))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Validationf("invalid reset token")
		}
		return fmt.Errorf("failed to look up reset token: %w", err)
	}
	if user.ResetTokenExpiry == nil || time.Now().After(*user.ResetTokenExpiry) {
		return domain.Validationf("reset token has expired")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	if err := s.users.UpdatePassword(ctx, user.ID, string(hash)); err != nil {
		return err
	}
	if err := s.users.ClearLoginFailures(ctx, user.ID); err != nil {
		s.logger.Warn("failed to clear login failures after reset", slog.String("error", err.Error()))
	}

	s.logger.Info("password reset", slog.String("user_id", string(user.ID)))
	return nil
}
