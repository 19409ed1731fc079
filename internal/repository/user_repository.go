package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lib/pq"

	"github.com/yourorg/campuscore/internal/domain"
)

const userColumns = `id, first_name, last_name, email, password_hash, role, status,
	verification_token_hash, verification_token_expiry, reset_token_hash, reset_token_expiry,
	failed_login_attempts, locked_until, is_deleted, deleted_at, deleted_by,
	created_by, created_at, updated_at`

// PostgresUserRepository implements domain.UserRepository using PostgreSQL
type PostgresUserRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresUserRepository creates a new user repository
func NewPostgresUserRepository(db *sql.DB, logger *slog.Logger) *PostgresUserRepository {
	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresUserRepository{
		db:     db,
		logger: logger,
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*domain.User, error) {
	user := &domain.User{}
	var deletedBy, createdBy sql.NullString
	var verifyExpiry, resetExpiry, lockedUntil, deletedAt sql.NullTime

	err := row.Scan(
		&user.ID,
		&user.FirstName,
		&user.LastName,
		&user.Email,
		&user.PasswordHash,
		&user.Role,
		&user.Status,
		&user.VerificationTokenHash,
		&verifyExpiry,
		&user.ResetTokenHash,
		&resetExpiry,
		&user.FailedLoginAttempts,
		&lockedUntil,
		&user.IsDeleted,
		&deletedAt,
		&deletedBy,
		&createdBy,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if verifyExpiry.Valid {
		user.VerificationTokenExpiry = &verifyExpiry.Time
	}
	if resetExpiry.Valid {
		user.ResetTokenExpiry = &resetExpiry.Time
	}
	if lockedUntil.Valid {
		user.LockedUntil = &lockedUntil.Time
	}
	if deletedAt.Valid {
		user.DeletedAt = &deletedAt.Time
	}
	if deletedBy.Valid {
		id := domain.PrincipalID(deletedBy.String)
		user.DeletedBy = &id
	}
	if createdBy.Valid {
		id := domain.PrincipalID(createdBy.String)
		user.CreatedBy = &id
	}
	return user, nil
}

func (r *PostgresUserRepository) getOne(ctx context.Context, where string, arg any) (*domain.User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE %s`, userColumns, where)

	user, err := scanUser(r.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NotFoundf("user not found")
		}
		r.logger.Error("failed to get user",
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// GetByID retrieves a user by ID, excluding soft-deleted rows
func (r *PostgresUserRepository) GetByID(ctx context.Context, id domain.PrincipalID) (*domain.User, error) {
	return r.getOne(ctx, `id = $1 AND is_deleted = FALSE`, string(id))
}

// GetByIDAny retrieves a user by ID including soft-deleted rows
func (r *PostgresUserRepository) GetByIDAny(ctx context.Context, id domain.PrincipalID) (*domain.User, error) {
	return r.getOne(ctx, `id = $1`, string(id))
}

// GetByEmail retrieves a user by email, excluding soft-deleted rows
func (r *PostgresUserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.getOne(ctx, `lower(email) = lower($1) AND is_deleted = FALSE`, email)
}

// UpdateStatus updates the account status of a live user
func (r *PostgresUserRepository) UpdateStatus(ctx context.Context, id domain.PrincipalID, status domain.AccountStatus) error {
	query := `
		UPDATE users
		SET status = $1, updated_at = NOW()
		WHERE id = $2 AND is_deleted = FALSE
	`
	return r.execExpectingRow(ctx, query, string(status), string(id))
}

// MarkDeleted soft-deletes a user: delete marker, timestamp, deleter and
// forced terminated status in one atomic update. Returns a conflict if
// the row is already soft-deleted.
func (r *PostgresUserRepository) MarkDeleted(ctx context.Context, id, deletedBy domain.PrincipalID, at time.Time) error {
	query := `
		UPDATE users
		SET is_deleted = TRUE, deleted_at = $1, deleted_by = $2, status = $3, updated_at = NOW()
		WHERE id = $4 AND is_deleted = FALSE
	`
	result, err := r.db.ExecContext(ctx, query, at, string(deletedBy), string(domain.StatusTerminated), string(id))
	if err != nil {
		return fmt.Errorf("failed to soft-delete user: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		// Row exists but is already deleted, or does not exist at all.
		// Callers check existence first, so this is the concurrent
		// double-delete case.
		return domain.Conflictf("user %s is already deleted", id)
	}
	return nil
}

// Restore clears the soft-delete marker and reactivates the account
func (r *PostgresUserRepository) Restore(ctx context.Context, id domain.PrincipalID) error {
	query := `
		UPDATE users
		SET is_deleted = FALSE, deleted_at = NULL, deleted_by = NULL, status = $1, updated_at = NOW()
		WHERE id = $2 AND is_deleted = TRUE
	`
	result, err := r.db.ExecContext(ctx, query, string(domain.StatusActive), string(id))
	if err != nil {
		return fmt.Errorf("failed to restore user: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return domain.Conflictf("user %s is not deleted", id)
	}
	return nil
}

// SetVerificationToken stores the hashed verification token with expiry
func (r *PostgresUserRepository) SetVerificationToken(ctx context.Context, id domain.PrincipalID, tokenHash string, expiry time.Time) error {
	query := `
		UPDATE users
		SET verification_token_hash = $1, verification_token_expiry = $2, updated_at = NOW()
		WHERE id = $3 AND is_deleted = FALSE
	`
	return r.execExpectingRow(ctx, query, tokenHash, expiry, string(id))
}

// ClearVerificationToken removes token material that can never be redeemed
func (r *PostgresUserRepository) ClearVerificationToken(ctx context.Context, id domain.PrincipalID) error {
	query := `
		UPDATE users
		SET verification_token_hash = '', verification_token_expiry = NULL, updated_at = NOW()
		WHERE id = $1
	`
	_, err := r.db.ExecContext(ctx, query, string(id))
	if err != nil {
		return fmt.Errorf("failed to clear verification token: %w", err)
	}
	return nil
}

// GetByVerificationToken resolves a live user by hashed verification token
func (r *PostgresUserRepository) GetByVerificationToken(ctx context.Context, tokenHash string) (*domain.User, error) {
	return r.getOne(ctx, `verification_token_hash = $1 AND verification_token_hash <> '' AND is_deleted = FALSE`, tokenHash)
}

// SetResetToken stores the hashed password-reset token with expiry
func (r *PostgresUserRepository) SetResetToken(ctx context.Context, id domain.PrincipalID, tokenHash string, expiry time.Time) error {
	query := `
		UPDATE users
		SET reset_token_hash = $1, reset_token_expiry = $2, updated_at = NOW()
		WHERE id = $3 AND is_deleted = FALSE
	`
	return r.execExpectingRow(ctx, query, tokenHash, expiry, string(id))
}

// GetByResetToken resolves a live user by hashed reset token
func (r *PostgresUserRepository) GetByResetToken(ctx context.Context, tokenHash string) (*domain.User, error) {
	return r.getOne(ctx, `reset_token_hash = $1 AND reset_token_hash <> '' AND is_deleted = FALSE`, tokenHash)
}

// UpdatePassword replaces the credential hash and clears reset token material
func (r *PostgresUserRepository) UpdatePassword(ctx context.Context, id domain.PrincipalID, passwordHash string) error {
	query := `
		UPDATE users
		SET password_hash = $1, reset_token_hash = '', reset_token_expiry = NULL, updated_at = NOW()
		WHERE id = $2 AND is_deleted = FALSE
	`
	return r.execExpectingRow(ctx, query, passwordHash, string(id))
}

// IncrementFailedLogins bumps the failed-attempt counter and returns the new value
func (r *PostgresUserRepository) IncrementFailedLogins(ctx context.Context, id domain.PrincipalID) (int, error) {
	query := `
		UPDATE users
		SET failed_login_attempts = failed_login_attempts + 1, updated_at = NOW()
		WHERE id = $1 AND is_deleted = FALSE
		RETURNING failed_login_attempts
	`
	var attempts int
	if err := r.db.QueryRowContext(ctx, query, string(id)).Scan(&attempts); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, domain.NotFoundf("user not found")
		}
		return 0, fmt.Errorf("failed to record login failure: %w", err)
	}
	return attempts, nil
}

// SetLock locks the account out of login until the given time
func (r *PostgresUserRepository) SetLock(ctx context.Context, id domain.PrincipalID, until time.Time) error {
	query := `
		UPDATE users
		SET locked_until = $1, updated_at = NOW()
		WHERE id = $2 AND is_deleted = FALSE
	`
	return r.execExpectingRow(ctx, query, until, string(id))
}

// ClearLoginFailures resets the counter and lock after a successful login
func (r *PostgresUserRepository) ClearLoginFailures(ctx context.Context, id domain.PrincipalID) error {
	query := `
		UPDATE users
		SET failed_login_attempts = 0, locked_until = NULL, updated_at = NOW()
		WHERE id = $1 AND is_deleted = FALSE
	`
	return r.execExpectingRow(ctx, query, string(id))
}

// PurgeExpiredTokens clears verification and reset token material whose
// expiry has passed. Used by the maintenance worker.
func (r *PostgresUserRepository) PurgeExpiredTokens(ctx context.Context, now time.Time) (int64, error) {
	query := `
		UPDATE users
		SET verification_token_hash = CASE WHEN verification_token_expiry < $1 THEN '' ELSE verification_token_hash END,
		    verification_token_expiry = CASE WHEN verification_token_expiry < $1 THEN NULL ELSE verification_token_expiry END,
		    reset_token_hash = CASE WHEN reset_token_expiry < $1 THEN '' ELSE reset_token_hash END,
		    reset_token_expiry = CASE WHEN reset_token_expiry < $1 THEN NULL ELSE reset_token_expiry END
		WHERE verification_token_expiry < $1 OR reset_token_expiry < $1
	`
	result, err := r.db.ExecContext(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("failed to purge expired tokens: %w", err)
	}
	return result.RowsAffected()
}

// ReleaseExpiredLocks clears login locks whose window has passed
func (r *PostgresUserRepository) ReleaseExpiredLocks(ctx context.Context, now time.Time) (int64, error) {
	query := `
		UPDATE users
		SET locked_until = NULL, failed_login_attempts = 0
		WHERE locked_until IS NOT NULL AND locked_until < $1
	`
	result, err := r.db.ExecContext(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("failed to release expired locks: %w", err)
	}
	return result.RowsAffected()
}

// CountActive returns the number of live accounts in the active status.
// Feeds the active-accounts gauge from the maintenance worker.
func (r *PostgresUserRepository) CountActive(ctx context.Context) (int, error) {
	query := `SELECT COUNT(*) FROM users WHERE status = $1 AND is_deleted = FALSE`

	var count int
	if err := r.db.QueryRowContext(ctx, query, string(domain.StatusActive)).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count active accounts: %w", err)
	}
	return count, nil
}

func (r *PostgresUserRepository) execExpectingRow(ctx context.Context, query string, args ...any) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return mapPQError(err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return domain.NotFoundf("user not found")
	}
	return nil
}

// mapPQError translates driver errors into the domain taxonomy. Unique
// violations surface as conflicts; this is the backstop for concurrent
// creation of the same email.
func mapPQError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return domain.Conflictf("record already exists: %s", pqErr.Constraint)
	}
	return err
}
