package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/yourorg/campuscore/internal/domain"
)

// PostgresPrivilegeRepository implements domain.PrivilegeRepository using
// PostgreSQL. Grants are stored one row per (principal, scope) with the
// privilege set in a text[] column; both grant and revoke are single
// statements, so they rely on the store's own per-row atomicity.
type PostgresPrivilegeRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresPrivilegeRepository creates a new privilege grant repository
func NewPostgresPrivilegeRepository(db *sql.DB, logger *slog.Logger) *PostgresPrivilegeRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresPrivilegeRepository{db: db, logger: logger}
}

func scanGrant(row rowScanner) (*domain.PrivilegeGrant, error) {
	g := &domain.PrivilegeGrant{}
	var rawScope string
	var privs []string

	err := row.Scan(&g.ID, &g.UserID, &rawScope, pq.Array(&privs), &g.GrantedBy, &g.CreatedAt, &g.UpdatedAt)
	if err != nil {
		return nil, err
	}

	scope, err := domain.ParseScope(rawScope)
	if err != nil {
		return nil, fmt.Errorf("corrupt scope %q in grant %s: %w", rawScope, g.ID, err)
	}
	g.Scope = scope
	g.Privileges = make([]domain.Privilege, 0, len(privs))
	for _, p := range privs {
		g.Privileges = append(g.Privileges, domain.Privilege(p))
	}
	return g, nil
}

// GrantsFor returns every grant row held by the principal
func (r *PostgresPrivilegeRepository) GrantsFor(ctx context.Context, id domain.PrincipalID) ([]*domain.PrivilegeGrant, error) {
	query := `
		SELECT id, user_id, scope, privileges, granted_by, created_at, updated_at
		FROM privilege_grants
		WHERE user_id = $1
	`
	rows, err := r.db.QueryContext(ctx, query, string(id))
	if err != nil {
		r.logger.Error("failed to list privilege grants",
			slog.String("user_id", string(id)),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("failed to list privilege grants: %w", err)
	}
	defer rows.Close()

	var grants []*domain.PrivilegeGrant
	for rows.Next() {
		g, err := scanGrant(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan privilege grant: %w", err)
		}
		grants = append(grants, g)
	}
	return grants, rows.Err()
}

// Grant finds-or-creates the (principal, scope) row and adds the
// privilege to its set. Re-granting a held privilege is a no-op.
func (r *PostgresPrivilegeRepository) Grant(ctx context.Context, id domain.PrincipalID, priv domain.Privilege, scope domain.Scope, grantedBy domain.PrincipalID) (*domain.PrivilegeGrant, error) {
	query := `
		INSERT INTO privilege_grants (id, user_id, scope, privileges, granted_by)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT ON CONSTRAINT privilege_grants_principal_scope_unique DO UPDATE
		SET privileges = (
			SELECT ARRAY(
				SELECT DISTINCT p
				FROM unnest(privilege_grants.privileges || EXCLUDED.privileges) AS p
				ORDER BY p
			)
		), updated_at = NOW()
		RETURNING id, user_id, scope, privileges, granted_by, created_at, updated_at
	`
	row := r.db.QueryRowContext(ctx, query,
		uuid.NewString(),
		string(id),
		scope.String(),
		pq.Array([]string{string(priv)}),
		string(grantedBy),
	)
	grant, err := scanGrant(row)
	if err != nil {
		r.logger.Error("failed to grant privilege",
			slog.String("user_id", string(id)),
			slog.String("privilege", string(priv)),
			slog.String("scope", scope.String()),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("failed to grant privilege: %w", mapPQError(err))
	}
	return grant, nil
}

// Revoke removes the privilege from the (principal, scope) set and
// deletes the row when the set becomes empty; empty grants never persist.
func (r *PostgresPrivilegeRepository) Revoke(ctx context.Context, id domain.PrincipalID, priv domain.Privilege, scope domain.Scope) (*domain.RevokeResult, error) {
	update := `
		UPDATE privilege_grants
		SET privileges = array_remove(privileges, $1), updated_at = NOW()
		WHERE user_id = $2 AND scope = $3 AND $1 = ANY(privileges)
	`
	result, err := r.db.ExecContext(ctx, update, string(priv), string(id), scope.String())
	if err != nil {
		return nil, fmt.Errorf("failed to revoke privilege: %w", err)
	}
	modified, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to check rows affected: %w", err)
	}

	del := `
		DELETE FROM privilege_grants
		WHERE user_id = $1 AND scope = $2 AND cardinality(privileges) = 0
	`
	delResult, err := r.db.ExecContext(ctx, del, string(id), scope.String())
	if err != nil {
		return nil, fmt.Errorf("failed to remove empty grant: %w", err)
	}
	deleted, err := delResult.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to check rows affected: %w", err)
	}

	if deleted > 0 {
		// The row is gone; report the deletion, not the intermediate update.
		return &domain.RevokeResult{Deleted: deleted}, nil
	}
	return &domain.RevokeResult{Modified: modified}, nil
}
