package service

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/yourorg/campuscore/internal/domain"
	"github.com/yourorg/campuscore/internal/security/auth"
)

func newCredentialFixture(t *testing.T) (*CredentialService, *memUsers, *fakeSender) {
	t.Helper()
	users := newMemUsers()
	sender := &fakeSender{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	tokens := auth.NewTokenManager("test-secret", "campuscore-test")
	svc := NewCredentialService(users, tokens, sender, &fakeAudit{}, logger)
	return svc, users, sender
}

func seedCredentialUser(t *testing.T, users *memUsers, id domain.PrincipalID, email, password string, status domain.AccountStatus) {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	users.add(&domain.User{
		ID:           id,
		Email:        email,
		PasswordHash: string(hash),
		Role:         domain.RoleStudent,
		Status:       status,
	})
}

func TestLoginSuccess(t *testing.T) {
	svc, users, _ := newCredentialFixture(t)
	seedCredentialUser(t, users, "u1", "u1@campus.test", "correct-horse", domain.StatusActive)

	result, err := svc.Login(context.Background(), "U1@campus.test", "correct-horse")
	require.NoError(t, err)
	assert.Equal(t, "u1", result.UserID)
	assert.Equal(t, "Bearer", result.TokenType)
	assert.NotEmpty(t, result.Token)
	assert.Equal(t, string(domain.RoleStudent), result.Role)
}

func TestLoginFailuresAreUniform(t *testing.T) {
	svc, users, _ := newCredentialFixture(t)
	seedCredentialUser(t, users, "u1", "u1@campus.test", "correct-horse", domain.StatusActive)
	seedCredentialUser(t, users, "u2", "pending@campus.test", "correct-horse", domain.StatusPending)
	ctx := context.Background()

	// Unknown email, wrong password and non-active status all yield the
	// same forbidden error.
	_, err := svc.Login(ctx, "nobody@campus.test", "whatever")
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = svc.Login(ctx, "u1@campus.test", "wrong")
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = svc.Login(ctx, "pending@campus.test", "correct-horse")
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

func TestLoginLockout(t *testing.T) {
	svc, users, _ := newCredentialFixture(t)
	seedCredentialUser(t, users, "u1", "u1@campus.test", "correct-horse", domain.StatusActive)
	ctx := context.Background()

	for i := 0; i < maxFailedLogins; i++ {
		_, err := svc.Login(ctx, "u1@campus.test", "wrong")
		assert.ErrorIs(t, err, domain.ErrForbidden)
	}

	locked := users.get("u1")
	require.NotNil(t, locked.LockedUntil, "account locked after repeated failures")

	// The right password does not get through a lock.
	_, err := svc.Login(ctx, "u1@campus.test", "correct-horse")
	assert.ErrorIs(t, err, domain.ErrForbidden)

	// Once the lock expires, login succeeds and counters reset.
	past := time.Now().Add(-time.Minute)
	require.NoError(t, users.SetLock(ctx, "u1", past))

	result, err := svc.Login(ctx, "u1@campus.test", "correct-horse")
	require.NoError(t, err)
	assert.Equal(t, "u1", result.UserID)
	assert.Equal(t, 0, users.get("u1").FailedLoginAttempts)
}

func TestVerifyAccount(t *testing.T) {
	svc, users, _ := newCredentialFixture(t)
	seedCredentialUser(t, users, "u1", "u1@campus.test", "correct-horse", domain.StatusPending)
	ctx := context.Background()

	raw, hash, err := newToken()
	require.NoError(t, err)
	require.NoError(t, users.SetVerificationToken(ctx, "u1", hash, time.Now().Add(time.Hour)))

	require.NoError(t, svc.VerifyAccount(ctx, raw))

	verified := users.get("u1")
	assert.Equal(t, domain.StatusActive, verified.Status)
	assert.Empty(t, verified.VerificationTokenHash, "token is single-use")

	// Redeeming again fails: the token is gone.
	err = svc.VerifyAccount(ctx, raw)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestVerifyAccountExpiredToken(t *testing.T) {
	svc, users, _ := newCredentialFixture(t)
	seedCredentialUser(t, users, "u1", "u1@campus.test", "correct-horse", domain.StatusPending)
	ctx := context.Background()

	raw, hash, err := newToken()
	require.NoError(t, err)
	require.NoError(t, users.SetVerificationToken(ctx, "u1", hash, time.Now().Add(-time.Minute)))

	err = svc.VerifyAccount(ctx, raw)
	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Empty(t, users.get("u1").VerificationTokenHash, "expired token cleared on redemption attempt")
}

func TestVerifyAccountNotPending(t *testing.T) {
	svc, users, _ := newCredentialFixture(t)
	seedCredentialUser(t, users, "u1", "u1@campus.test", "correct-horse", domain.StatusActive)
	ctx := context.Background()

	raw, hash, err := newToken()
	require.NoError(t, err)
	require.NoError(t, users.SetVerificationToken(ctx, "u1", hash, time.Now().Add(time.Hour)))

	err = svc.VerifyAccount(ctx, raw)
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestPasswordResetFlow(t *testing.T) {
	svc, users, sender := newCredentialFixture(t)
	seedCredentialUser(t, users, "u1", "u1@campus.test", "correct-horse", domain.StatusActive)
	ctx := context.Background()

	// Unknown emails succeed silently and deliver nothing.
	require.NoError(t, svc.RequestPasswordReset(ctx, "nobody@campus.test"))
	assert.Empty(t, sender.resets)

	require.NoError(t, svc.RequestPasswordReset(ctx, "u1@campus.test"))
	require.Len(t, sender.resets, 1)
	raw := sender.lastToken

	require.NoError(t, svc.ResetPassword(ctx, raw, "new-password-1"))

	result, err := svc.Login(ctx, "u1@campus.test", "new-password-1")
	require.NoError(t, err)
	assert.Equal(t, "u1", result.UserID)

	// The reset token is single-use.
	err = svc.ResetPassword(ctx, raw, "another-password")
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestResetPasswordValidation(t *testing.T) {
	svc, _, _ := newCredentialFixture(t)
	ctx := context.Background()

	err := svc.ResetPassword(ctx, "", "new-password-1")
	assert.ErrorIs(t, err, domain.ErrValidation)

	err = svc.ResetPassword(ctx, "sometoken", "short")
	assert.ErrorIs(t, err, domain.ErrValidation)

	err = svc.ResetPassword(ctx, "unknown-token", "new-password-1")
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestResetPasswordClearsLockout(t *testing.T) {
	svc, users, sender := newCredentialFixture(t)
	seedCredentialUser(t, users, "u1", "u1@campus.test", "correct-horse", domain.StatusActive)
	ctx := context.Background()

	for i := 0; i < maxFailedLogins; i++ {
		_, _ = svc.Login(ctx, "u1@campus.test", "wrong")
	}
	require.NotNil(t, users.get("u1").LockedUntil)

	require.NoError(t, svc.RequestPasswordReset(ctx, "u1@campus.test"))
	require.NoError(t, svc.ResetPassword(ctx, sender.lastToken, "new-password-1"))

	assert.Equal(t, 0, users.get("u1").FailedLoginAttempts)
	assert.Nil(t, users.get("u1").LockedUntil)
}
