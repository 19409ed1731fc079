package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/yourorg/campuscore/internal/domain"
)

// PostgresDepartmentRepository implements domain.DepartmentRepository using PostgreSQL
type PostgresDepartmentRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresDepartmentRepository creates a new department repository
func NewPostgresDepartmentRepository(db *sql.DB, logger *slog.Logger) *PostgresDepartmentRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresDepartmentRepository{db: db, logger: logger}
}

func scanDepartment(row rowScanner) (*domain.Department, error) {
	d := &domain.Department{}
	var hod sql.NullString

	err := row.Scan(&d.ID, &d.Code, &d.Name, &hod, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if hod.Valid {
		id := domain.PrincipalID(hod.String)
		d.HODUserID = &id
	}
	return d, nil
}

// GetByID retrieves a department by identifier
func (r *PostgresDepartmentRepository) GetByID(ctx context.Context, id domain.DepartmentID) (*domain.Department, error) {
	query := `
		SELECT id, code, name, hod_user_id, created_at, updated_at
		FROM departments
		WHERE id = $1
	`
	dept, err := scanDepartment(r.db.QueryRowContext(ctx, query, string(id)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NotFoundf("department %s not found", id)
		}
		r.logger.Error("failed to get department",
			slog.String("department_id", string(id)),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("failed to get department: %w", err)
	}
	return dept, nil
}

// List returns all departments ordered by code
func (r *PostgresDepartmentRepository) List(ctx context.Context) ([]*domain.Department, error) {
	query := `
		SELECT id, code, name, hod_user_id, created_at, updated_at
		FROM departments
		ORDER BY code
	`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list departments: %w", err)
	}
	defer rows.Close()

	var departments []*domain.Department
	for rows.Next() {
		dept, err := scanDepartment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan department: %w", err)
		}
		departments = append(departments, dept)
	}
	return departments, rows.Err()
}
