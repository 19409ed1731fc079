package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/yourorg/campuscore/internal/domain"
)

const auditInsert = `
	INSERT INTO audit_log (actor_id, action, resource, resource_id, status, details, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
`

// PostgresAuditRepository persists audit records. It implements
// domain.AuditSink for the ordinary best-effort path and exposes
// RecordTx for the deletion cascade, which writes its audit row inside
// the same transaction that removes the account.
type PostgresAuditRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresAuditRepository creates a new audit repository
func NewPostgresAuditRepository(db *sql.DB, logger *slog.Logger) *PostgresAuditRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresAuditRepository{db: db, logger: logger}
}

// Record appends an audit row outside any transaction
func (r *PostgresAuditRepository) Record(ctx context.Context, rec domain.AuditRecord) error {
	_, err := r.db.ExecContext(ctx, auditInsert,
		string(rec.ActorID), rec.Action, rec.Resource, rec.ResourceID, rec.Status, rec.Details, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record audit entry: %w", err)
	}
	return nil
}

// RecordTx appends an audit row using the caller's transaction
func (r *PostgresAuditRepository) RecordTx(ctx context.Context, tx *sql.Tx, rec domain.AuditRecord) error {
	_, err := tx.ExecContext(ctx, auditInsert,
		string(rec.ActorID), rec.Action, rec.Resource, rec.ResourceID, rec.Status, rec.Details, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record audit entry: %w", err)
	}
	return nil
}
