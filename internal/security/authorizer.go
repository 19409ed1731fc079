package security

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/yourorg/campuscore/internal/domain"
	"github.com/yourorg/campuscore/internal/observability/metrics"
	"github.com/yourorg/campuscore/pkg/cache"
)

// GrantCache caches a principal's grant set between checks. The Redis
// implementation lives in internal/infrastructure/redis; a nil cache
// disables caching.
type GrantCache interface {
	GetGrants(ctx context.Context, id domain.PrincipalID) ([]*domain.PrivilegeGrant, bool)
	SetGrants(ctx context.Context, id domain.PrincipalID, grants []*domain.PrivilegeGrant)
	Invalidate(ctx context.Context, id domain.PrincipalID)
}

const deptCacheTTL = 5 * time.Minute

// Authorizer is the scoped-privilege decision engine. Decisions are
// pure given the stored grants: super admins pass unconditionally,
// everyone else needs a grant whose privilege set contains the
// privilege and whose scope covers the requested one.
type Authorizer struct {
	admins      domain.AdminRepository
	grants      domain.PrivilegeRepository
	departments domain.DepartmentRepository
	deptCache   *cache.Cache
	grantCache  GrantCache
	logger      *slog.Logger
}

// NewAuthorizer creates a new authorization engine. grantCache may be nil.
func NewAuthorizer(
	admins domain.AdminRepository,
	grants domain.PrivilegeRepository,
	departments domain.DepartmentRepository,
	grantCache GrantCache,
	logger *slog.Logger,
) *Authorizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Authorizer{
		admins:      admins,
		grants:      grants,
		departments: departments,
		deptCache:   cache.New(),
		grantCache:  grantCache,
		logger:      logger,
	}
}

// HasPrivilege reports whether the actor holds the privilege within the
// requested scope. Non-admin principals hold no privileges at all.
func (a *Authorizer) HasPrivilege(ctx context.Context, actor domain.PrincipalID, priv domain.Privilege, scope domain.Scope) (bool, error) {
	admin, err := a.admins.GetByUserID(ctx, actor)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			metrics.ObservePrivilegeCheck("denied")
			return false, nil
		}
		return false, fmt.Errorf("failed to resolve admin record: %w", err)
	}

	if admin.IsSuperAdmin {
		metrics.ObservePrivilegeCheck("bypass")
		return true, nil
	}

	grants, err := a.grantsFor(ctx, actor)
	if err != nil {
		return false, err
	}

	for _, g := range grants {
		if g.Has(priv) && g.Scope.Covers(scope) {
			metrics.ObservePrivilegeCheck("allowed")
			return true, nil
		}
	}

	metrics.ObservePrivilegeCheck("denied")
	a.logger.Debug("privilege denied",
		slog.String("actor_id", string(actor)),
		slog.String("privilege", string(priv)),
		slog.String("scope", scope.String()),
	)
	return false, nil
}

// RequirePrivilege is HasPrivilege with a forbidden error on denial.
func (a *Authorizer) RequirePrivilege(ctx context.Context, actor domain.PrincipalID, priv domain.Privilege, scope domain.Scope) error {
	ok, err := a.HasPrivilege(ctx, actor, priv, scope)
	if err != nil {
		return err
	}
	if !ok {
		a.logger.Warn("privilege required but not held",
			slog.String("actor_id", string(actor)),
			slog.String("privilege", string(priv)),
			slog.String("scope", scope.String()),
		)
		return domain.Forbiddenf("missing privilege %s in scope %s", priv, scope)
	}
	return nil
}

// GrantPrivilege adds a privilege to the principal's grant set for the
// scope. The principal must be an admin and a department scope must
// reference a real department. Idempotent.
func (a *Authorizer) GrantPrivilege(ctx context.Context, principal domain.PrincipalID, priv domain.Privilege, scope domain.Scope, grantedBy domain.PrincipalID) (*domain.PrivilegeGrant, error) {
	if scope.IsZero() {
		return nil, domain.Validationf("scope is required")
	}
	if _, err := a.admins.GetByUserID(ctx, principal); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.Validationf("principal %s is not an admin", principal)
		}
		return nil, err
	}
	if err := a.validateScope(ctx, scope); err != nil {
		return nil, err
	}

	grant, err := a.grants.Grant(ctx, principal, priv, scope, grantedBy)
	if err != nil {
		return nil, err
	}
	if a.grantCache != nil {
		a.grantCache.Invalidate(ctx, principal)
	}

	a.logger.Info("privilege granted",
		slog.String("principal_id", string(principal)),
		slog.String("privilege", string(priv)),
		slog.String("scope", scope.String()),
		slog.String("granted_by", string(grantedBy)),
	)
	return grant, nil
}

// RevokePrivilege removes a privilege from the principal's grant set
// for the scope; a grant emptied by the revoke is deleted outright.
func (a *Authorizer) RevokePrivilege(ctx context.Context, principal domain.PrincipalID, priv domain.Privilege, scope domain.Scope) (*domain.RevokeResult, error) {
	if scope.IsZero() {
		return nil, domain.Validationf("scope is required")
	}

	result, err := a.grants.Revoke(ctx, principal, priv, scope)
	if err != nil {
		return nil, err
	}
	if a.grantCache != nil {
		a.grantCache.Invalidate(ctx, principal)
	}

	a.logger.Info("privilege revoked",
		slog.String("principal_id", string(principal)),
		slog.String("privilege", string(priv)),
		slog.String("scope", scope.String()),
		slog.Int64("modified", result.Modified),
		slog.Int64("deleted", result.Deleted),
	)
	return result, nil
}

func (a *Authorizer) grantsFor(ctx context.Context, id domain.PrincipalID) ([]*domain.PrivilegeGrant, error) {
	if a.grantCache != nil {
		if grants, ok := a.grantCache.GetGrants(ctx, id); ok {
			return grants, nil
		}
	}
	grants, err := a.grants.GrantsFor(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.grantCache != nil {
		a.grantCache.SetGrants(ctx, id, grants)
	}
	return grants, nil
}

// validateScope rejects department scopes that do not reference a real
// department. Department rows change rarely, so lookups go through a
// short-lived in-memory cache.
func (a *Authorizer) validateScope(ctx context.Context, scope domain.Scope) error {
	if scope.IsGlobal() {
		return nil
	}
	dept, _ := scope.DepartmentID()

	key := "dept:" + string(dept)
	if _, ok := a.deptCache.Get(key); ok {
		return nil
	}

	d, err := a.departments.GetByID(ctx, dept)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Validationf("scope references unknown department %s", dept)
		}
		return err
	}
	a.deptCache.Set(key, d.ID, deptCacheTTL)
	return nil
}
