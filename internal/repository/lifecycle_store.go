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
	"github.com/yourorg/campuscore/pkg/database"
)

// PostgresLifecycleStore implements domain.LifecycleStore. It owns the
// two multi-record workflows: transactional account creation and the
// cascading permanent delete.
type PostgresLifecycleStore struct {
	db     *sql.DB
	audit  *PostgresAuditRepository
	logger *slog.Logger
}

// NewPostgresLifecycleStore creates a new lifecycle store
func NewPostgresLifecycleStore(db *sql.DB, audit *PostgresAuditRepository, logger *slog.Logger) *PostgresLifecycleStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresLifecycleStore{db: db, audit: audit, logger: logger}
}

// CreateAccount inserts the identity record and its role extension in
// one transaction. Either both commit or neither does; a unique-email
// race surfaces as a conflict from the index.
func (s *PostgresLifecycleStore) CreateAccount(ctx context.Context, acct *domain.NewAccount) error {
	err := database.WithinTx(ctx, s.db, func(tx *sql.Tx) error {
		if err := insertUser(ctx, tx, acct.User); err != nil {
			return err
		}
		return insertExtension(ctx, tx, acct)
	})
	if err != nil {
		return mapPQError(err)
	}
	return nil
}

func insertUser(ctx context.Context, tx *sql.Tx, u *domain.User) error {
	query := `
		INSERT INTO users (id, first_name, last_name, email, password_hash, role, status, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at
	`
	var createdBy any
	if u.CreatedBy != nil {
		createdBy = string(*u.CreatedBy)
	}
	err := tx.QueryRowContext(ctx, query,
		string(u.ID), u.FirstName, u.LastName, u.Email, u.PasswordHash,
		string(u.Role), string(u.Status), createdBy,
	).Scan(&u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func insertExtension(ctx context.Context, tx *sql.Tx, acct *domain.NewAccount) error {
	switch acct.User.Role {
	case domain.RoleAdmin:
		if acct.Admin == nil {
			return domain.Validationf("admin account requires an admin extension")
		}
		scope := make([]string, 0, len(acct.Admin.DepartmentScope))
		for _, d := range acct.Admin.DepartmentScope {
			scope = append(scope, string(d))
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO admins (user_id, is_super_admin, department_scope) VALUES ($1, $2, $3)`,
			string(acct.User.ID), acct.Admin.IsSuperAdmin, pq.Array(scope),
		)
		if err != nil {
			return fmt.Errorf("failed to create admin extension: %w", err)
		}
		return nil

	case domain.RoleHOD, domain.RoleFaculty:
		if acct.Faculty == nil {
			return domain.Validationf("faculty account requires a faculty extension")
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO faculty (user_id, department_id, designation) VALUES ($1, $2, $3)`,
			string(acct.User.ID), string(acct.Faculty.DepartmentID), acct.Faculty.Designation,
		)
		if err != nil {
			return fmt.Errorf("failed to create faculty extension: %w", err)
		}
		return nil

	case domain.RoleStudent:
		if acct.Student == nil {
			return domain.Validationf("student account requires a student extension")
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO students (user_id, department_id, roll_no, year) VALUES ($1, $2, $3, $4)`,
			string(acct.User.ID), string(acct.Student.DepartmentID), acct.Student.RollNo, acct.Student.Year,
		)
		if err != nil {
			return fmt.Errorf("failed to create student extension: %w", err)
		}
		return nil

	case domain.RoleStaff:
		if acct.Staff == nil {
			return domain.Validationf("staff account requires a staff extension")
		}
		var dept any
		if acct.Staff.DepartmentID != nil {
			dept = string(*acct.Staff.DepartmentID)
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO staff (user_id, department_id, position) VALUES ($1, $2, $3)`,
			string(acct.User.ID), dept, acct.Staff.Position,
		)
		if err != nil {
			return fmt.Errorf("failed to create staff extension: %w", err)
		}
		return nil
	}
	return fmt.Errorf("%w: %s", domain.ErrUnknownRole, acct.User.Role)
}

// PurgeAccount permanently deletes a soft-deleted account and everything
// it owns inside one transaction: role-dispatched extension cleanup,
// synchronous clearing of dependent references, the identity record and
// the audit row. If any step fails nothing is observable.
func (s *PostgresLifecycleStore) PurgeAccount(ctx context.Context, target, actor domain.PrincipalID) (*domain.DeletionSummary, error) {
	summary := &domain.DeletionSummary{UserID: target}

	err := database.WithinTx(ctx, s.db, func(tx *sql.Tx) error {
		// Re-validate the precondition under a row lock so a concurrent
		// restore cannot slip between check and delete.
		var role string
		var isDeleted bool
		err := tx.QueryRowContext(ctx,
			`SELECT role, is_deleted FROM users WHERE id = $1 FOR UPDATE`,
			string(target),
		).Scan(&role, &isDeleted)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.NotFoundf("user %s not found", target)
		}
		if err != nil {
			return fmt.Errorf("failed to lock user row: %w", err)
		}
		if !isDeleted {
			return domain.Conflictf("user %s must be soft-deleted before permanent deletion", target)
		}
		summary.Role = domain.Role(role)

		if err := s.cleanupRole(ctx, tx, domain.Role(role), target, summary); err != nil {
			return err
		}

		// Grants reference the user row; remove them regardless of role so
		// the identity delete below cannot trip the foreign key.
		grantRes, err := tx.ExecContext(ctx,
			`DELETE FROM privilege_grants WHERE user_id = $1`, string(target))
		if err != nil {
			return fmt.Errorf("failed to remove privilege grants: %w", err)
		}
		summary.GrantsRemoved, _ = grantRes.RowsAffected()

		if _, err := tx.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, string(target)); err != nil {
			return fmt.Errorf("failed to delete user: %w", err)
		}

		return s.audit.RecordTx(ctx, tx, domain.AuditRecord{
			ActorID:    actor,
			Action:     "permanent_delete",
			Resource:   "user",
			ResourceID: string(target),
			Status:     "success",
			Details:    fmt.Sprintf("role=%s grants_removed=%d departments_cleared=%d", role, summary.GrantsRemoved, summary.DepartmentsCleared),
			CreatedAt:  time.Now().UTC(),
		})
	})
	if err != nil {
		// Precondition failures keep their own sentinel; everything else
		// aborted the cascade and is reported as such, with the cause kept
		// on the chain.
		if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrConflict) {
			return nil, err
		}
		s.logger.Error("permanent delete aborted",
			slog.String("target", string(target)),
			slog.String("actor", string(actor)),
			slog.String("error", err.Error()),
		)
		return nil, errors.Join(domain.ErrTxAborted, err)
	}
	return summary, nil
}

// cleanupRole removes the role extension and the references only that
// role can hold. An unrecognized role tag aborts the transaction rather
// than silently skipping cleanup.
func (s *PostgresLifecycleStore) cleanupRole(ctx context.Context, tx *sql.Tx, role domain.Role, target domain.PrincipalID, summary *domain.DeletionSummary) error {
	switch role {
	case domain.RoleAdmin:
		res, err := tx.ExecContext(ctx, `DELETE FROM admins WHERE user_id = $1`, string(target))
		if err != nil {
			return fmt.Errorf("failed to delete admin extension: %w", err)
		}
		n, _ := res.RowsAffected()
		summary.ExtensionRemoved = n > 0
		return nil

	case domain.RoleHOD, domain.RoleFaculty:
		// A faculty member may head departments; clear the back-reference
		// synchronously instead of leaving it to a background watcher.
		cleared, err := tx.ExecContext(ctx,
			`UPDATE departments SET hod_user_id = NULL, updated_at = NOW() WHERE hod_user_id = $1`,
			string(target))
		if err != nil {
			return fmt.Errorf("failed to clear department head references: %w", err)
		}
		summary.DepartmentsCleared, _ = cleared.RowsAffected()

		res, err := tx.ExecContext(ctx, `DELETE FROM faculty WHERE user_id = $1`, string(target))
		if err != nil {
			return fmt.Errorf("failed to delete faculty extension: %w", err)
		}
		n, _ := res.RowsAffected()
		summary.ExtensionRemoved = n > 0
		return nil

	case domain.RoleStudent:
		res, err := tx.ExecContext(ctx, `DELETE FROM students WHERE user_id = $1`, string(target))
		if err != nil {
			return fmt.Errorf("failed to delete student extension: %w", err)
		}
		n, _ := res.RowsAffected()
		summary.ExtensionRemoved = n > 0
		return nil

	case domain.RoleStaff:
		res, err := tx.ExecContext(ctx, `DELETE FROM staff WHERE user_id = $1`, string(target))
		if err != nil {
			return fmt.Errorf("failed to delete staff extension: %w", err)
		}
		n, _ := res.RowsAffected()
		summary.ExtensionRemoved = n > 0
		return nil
	}
	return fmt.Errorf("%w: no cleanup routine for role %q", domain.ErrUnknownRole, role)
}
