package security

import (
	"log/slog"

	"github.com/yourorg/campuscore/internal/domain"
)

// RoleRank is the single total ordering over roles. Both the status
// workflow and the delete gate consult it; there is exactly one table.
// Super admin is not a rank: it is the IsSuperAdmin flag on the admin
// extension and bypasses every comparison. Base roles share the bottom.
var RoleRank = map[domain.Role]int{
	domain.RoleAdmin:   4,
	domain.RoleHOD:     3,
	domain.RoleFaculty: 2,
	domain.RoleStudent: 1,
	domain.RoleStaff:   1,
}

// Rank returns the rank of a role; unknown roles rank below everything.
func Rank(r domain.Role) int {
	return RoleRank[r]
}

// HierarchyPolicy decides whether one account may act on another.
type HierarchyPolicy struct {
	logger *slog.Logger
}

// NewHierarchyPolicy creates a new hierarchy policy
func NewHierarchyPolicy(logger *slog.Logger) *HierarchyPolicy {
	if logger == nil {
		logger = slog.Default()
	}
	return &HierarchyPolicy{logger: logger}
}

// CanActOn reports whether the actor may change the status of the
// target: strictly higher rank only, except a super admin who is
// unrestricted. Nobody but a super admin touches a super admin.
func (p *HierarchyPolicy) CanActOn(actor domain.Actor, target domain.TargetRef) bool {
	if actor.IsSuperAdmin {
		return true
	}
	if target.IsSuperAdmin {
		return false
	}
	return Rank(actor.Role) > Rank(target.Role)
}

// CanDelete evaluates the delete-permission gate. It returns nil when
// the actor may delete the target, domain.ErrForbidden for a policy
// denial, and domain.ErrMissingDepartment when a required department
// comparison cannot be made because the target has none.
func (p *HierarchyPolicy) CanDelete(actor domain.Actor, target domain.TargetRef) error {
	switch {
	case actor.IsSuperAdmin:
		return nil

	case actor.Role == domain.RoleAdmin:
		return p.adminCanDelete(actor, target)

	case actor.Role == domain.RoleHOD:
		return p.hodCanDelete(actor, target)
	}

	p.logger.Warn("delete denied: role may not delete accounts",
		slog.String("actor_id", string(actor.ID)),
		slog.String("actor_role", string(actor.Role)),
	)
	return domain.Forbiddenf("role %q may not delete accounts", actor.Role)
}

func (p *HierarchyPolicy) adminCanDelete(actor domain.Actor, target domain.TargetRef) error {
	if target.IsSuperAdmin {
		return domain.Forbiddenf("only a super admin may delete a super admin")
	}
	if Rank(target.Role) > Rank(actor.Role) {
		return domain.Forbiddenf("target outranks actor")
	}

	// Every remaining branch compares departments, so the target must
	// actually have one; a missing department is a data problem, not a
	// silent denial.
	if !target.HasDepartment {
		return domain.ErrMissingDepartment
	}

	// Admin-on-admin needs the two scope sets to overlap; one shared
	// department is sufficient. Department-scoped targets need the
	// actor's scope to cover their department.
	if !domain.ScopesIntersect(actor.Departments, target.Departments) {
		p.logger.Warn("delete denied: no shared department",
			slog.String("actor_id", string(actor.ID)),
			slog.String("target_id", string(target.ID)),
			slog.String("target_role", string(target.Role)),
		)
		return domain.Forbiddenf("target is outside the actor's department scope")
	}
	return nil
}

func (p *HierarchyPolicy) hodCanDelete(actor domain.Actor, target domain.TargetRef) error {
	switch target.Role {
	case domain.RoleFaculty, domain.RoleStudent, domain.RoleStaff:
	default:
		return domain.Forbiddenf("a department head may only delete faculty, student or staff accounts")
	}

	if !target.HasDepartment {
		return domain.ErrMissingDepartment
	}
	if len(actor.Departments) != 1 || len(target.Departments) != 1 || actor.Departments[0] != target.Departments[0] {
		p.logger.Warn("delete denied: target outside head's department",
			slog.String("actor_id", string(actor.ID)),
			slog.String("target_id", string(target.ID)),
		)
		return domain.Forbiddenf("target is not in the department head's own department")
	}
	return nil
}

// creatorMatrix maps a creator's effective role to the role tags it may
// provision. Super admins bypass the matrix entirely.
var creatorMatrix = map[domain.Role][]domain.Role{
	domain.RoleAdmin: {domain.RoleHOD, domain.RoleFaculty, domain.RoleStudent, domain.RoleStaff},
	domain.RoleHOD:   {domain.RoleFaculty, domain.RoleStudent},
}

// CanCreate reports whether the actor's role is permitted to create an
// account with the requested role tag.
func (p *HierarchyPolicy) CanCreate(actor domain.Actor, target domain.Role) bool {
	if actor.IsSuperAdmin {
		return true
	}
	for _, allowed := range creatorMatrix[actor.Role] {
		if allowed == target {
			return true
		}
	}
	return false
}
