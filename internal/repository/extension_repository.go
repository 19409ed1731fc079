package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/lib/pq"

	"github.com/yourorg/campuscore/internal/domain"
)

// PostgresAdminRepository implements domain.AdminRepository using PostgreSQL
type PostgresAdminRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresAdminRepository creates a new admin extension repository
func NewPostgresAdminRepository(db *sql.DB, logger *slog.Logger) *PostgresAdminRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresAdminRepository{db: db, logger: logger}
}

// GetByUserID retrieves the admin extension for a user
func (r *PostgresAdminRepository) GetByUserID(ctx context.Context, id domain.PrincipalID) (*domain.Admin, error) {
	admin := &domain.Admin{}
	var scope []string

	query := `
		SELECT user_id, is_super_admin, department_scope, created_at, updated_at
		FROM admins
		WHERE user_id = $1
	`
	err := r.db.QueryRowContext(ctx, query, string(id)).Scan(
		&admin.UserID,
		&admin.IsSuperAdmin,
		pq.Array(&scope),
		&admin.CreatedAt,
		&admin.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NotFoundf("admin record not found for user %s", id)
		}
		r.logger.Error("failed to get admin record",
			slog.String("user_id", string(id)),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("failed to get admin record: %w", err)
	}

	admin.DepartmentScope = make([]domain.DepartmentID, 0, len(scope))
	for _, s := range scope {
		admin.DepartmentScope = append(admin.DepartmentScope, domain.DepartmentID(s))
	}
	return admin, nil
}

// PostgresFacultyRepository implements domain.FacultyRepository using PostgreSQL
type PostgresFacultyRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresFacultyRepository creates a new faculty extension repository
func NewPostgresFacultyRepository(db *sql.DB, logger *slog.Logger) *PostgresFacultyRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresFacultyRepository{db: db, logger: logger}
}

// GetByUserID retrieves the faculty extension for a user
func (r *PostgresFacultyRepository) GetByUserID(ctx context.Context, id domain.PrincipalID) (*domain.Faculty, error) {
	f := &domain.Faculty{}

	query := `
		SELECT user_id, department_id, designation, created_at, updated_at
		FROM faculty
		WHERE user_id = $1
	`
	err := r.db.QueryRowContext(ctx, query, string(id)).Scan(
		&f.UserID,
		&f.DepartmentID,
		&f.Designation,
		&f.CreatedAt,
		&f.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NotFoundf("faculty record not found for user %s", id)
		}
		return nil, fmt.Errorf("failed to get faculty record: %w", err)
	}
	return f, nil
}

// PostgresStudentRepository implements domain.StudentRepository using PostgreSQL
type PostgresStudentRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresStudentRepository creates a new student extension repository
func NewPostgresStudentRepository(db *sql.DB, logger *slog.Logger) *PostgresStudentRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresStudentRepository{db: db, logger: logger}
}

// GetByUserID retrieves the student extension for a user
func (r *PostgresStudentRepository) GetByUserID(ctx context.Context, id domain.PrincipalID) (*domain.Student, error) {
	s := &domain.Student{}

	query := `
		SELECT user_id, department_id, roll_no, year, created_at, updated_at
		FROM students
		WHERE user_id = $1
	`
	err := r.db.QueryRowContext(ctx, query, string(id)).Scan(
		&s.UserID,
		&s.DepartmentID,
		&s.RollNo,
		&s.Year,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NotFoundf("student record not found for user %s", id)
		}
		return nil, fmt.Errorf("failed to get student record: %w", err)
	}
	return s, nil
}

// PostgresStaffRepository implements domain.StaffRepository using PostgreSQL
type PostgresStaffRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresStaffRepository creates a new staff extension repository
func NewPostgresStaffRepository(db *sql.DB, logger *slog.Logger) *PostgresStaffRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresStaffRepository{db: db, logger: logger}
}

// GetByUserID retrieves the staff extension for a user
func (r *PostgresStaffRepository) GetByUserID(ctx context.Context, id domain.PrincipalID) (*domain.Staff, error) {
	s := &domain.Staff{}
	var dept sql.NullString

	query := `
		SELECT user_id, department_id, position, created_at, updated_at
		FROM staff
		WHERE user_id = $1
	`
	err := r.db.QueryRowContext(ctx, query, string(id)).Scan(
		&s.UserID,
		&dept,
		&s.Position,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NotFoundf("staff record not found for user %s", id)
		}
		return nil, fmt.Errorf("failed to get staff record: %w", err)
	}
	if dept.Valid {
		d := domain.DepartmentID(dept.String)
		s.DepartmentID = &d
	}
	return s, nil
}
