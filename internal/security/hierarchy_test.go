package security

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/yourorg/campuscore/internal/domain"
)

func superAdmin(id string) domain.Actor {
	return domain.Actor{ID: domain.PrincipalID(id), Role: domain.RoleAdmin, IsSuperAdmin: true}
}

func admin(id string, depts ...domain.DepartmentID) domain.Actor {
	return domain.Actor{ID: domain.PrincipalID(id), Role: domain.RoleAdmin, Departments: depts}
}

func hod(id string, dept domain.DepartmentID) domain.Actor {
	return domain.Actor{ID: domain.PrincipalID(id), Role: domain.RoleHOD, Departments: []domain.DepartmentID{dept}}
}

func target(id string, role domain.Role, depts ...domain.DepartmentID) domain.TargetRef {
	return domain.TargetRef{
		ID:            domain.PrincipalID(id),
		Role:          role,
		Departments:   depts,
		HasDepartment: len(depts) > 0,
	}
}

func TestCanActOn(t *testing.T) {
	policy := NewHierarchyPolicy(nil)

	assert.True(t, policy.CanActOn(superAdmin("s"), target("t", domain.RoleAdmin)))
	assert.True(t, policy.CanActOn(admin("a", "d1"), target("t", domain.RoleStudent)))
	assert.True(t, policy.CanActOn(hod("h", "d1"), target("t", domain.RoleFaculty)))

	// Equal or higher rank is out of reach for non-super actors.
	assert.False(t, policy.CanActOn(admin("a", "d1"), target("t", domain.RoleAdmin)))
	assert.False(t, policy.CanActOn(hod("h", "d1"), target("t", domain.RoleHOD)))
	assert.False(t, policy.CanActOn(hod("h", "d1"), target("t", domain.RoleAdmin)))

	// Nobody but a super admin acts on a super admin.
	superTarget := target("t", domain.RoleAdmin, "d1")
	superTarget.IsSuperAdmin = true
	assert.False(t, policy.CanActOn(admin("a", "d1"), superTarget))
	assert.True(t, policy.CanActOn(superAdmin("s"), superTarget))
}

func TestCanDeleteSuperAdminActor(t *testing.T) {
	policy := NewHierarchyPolicy(nil)

	superTarget := target("t", domain.RoleAdmin, "d1")
	superTarget.IsSuperAdmin = true
	assert.NoError(t, policy.CanDelete(superAdmin("s"), superTarget))
	assert.NoError(t, policy.CanDelete(superAdmin("s"), target("t", domain.RoleStudent)))
}

func TestCanDeleteAdminActor(t *testing.T) {
	policy := NewHierarchyPolicy(nil)
	actor := admin("a", "d1")

	// Scenario: admin scoped to D1 may not delete a student in D2.
	err := policy.CanDelete(actor, target("t", domain.RoleStudent, "d2"))
	assert.True(t, errors.Is(err, domain.ErrForbidden), "got %v", err)

	assert.NoError(t, policy.CanDelete(actor, target("t", domain.RoleStudent, "d1")))
	assert.NoError(t, policy.CanDelete(actor, target("t", domain.RoleFaculty, "d1")))

	// Admin-on-admin requires one shared department.
	assert.NoError(t, policy.CanDelete(admin("a", "d1", "d2"), target("t", domain.RoleAdmin, "d2", "d3")))
	err = policy.CanDelete(admin("a", "d1"), target("t", domain.RoleAdmin, "d2"))
	assert.True(t, errors.Is(err, domain.ErrForbidden))

	// Super-admin targets are off limits.
	superTarget := target("t", domain.RoleAdmin, "d1")
	superTarget.IsSuperAdmin = true
	err = policy.CanDelete(actor, superTarget)
	assert.True(t, errors.Is(err, domain.ErrForbidden))

	// A target with no resolvable department is a distinct error, not a
	// silent denial.
	err = policy.CanDelete(actor, target("t", domain.RoleStudent))
	assert.True(t, errors.Is(err, domain.ErrMissingDepartment), "got %v", err)
}

func TestCanDeleteHODActor(t *testing.T) {
	policy := NewHierarchyPolicy(nil)
	actor := hod("h", "d1")

	assert.NoError(t, policy.CanDelete(actor, target("t", domain.RoleFaculty, "d1")))
	assert.NoError(t, policy.CanDelete(actor, target("t", domain.RoleStudent, "d1")))
	assert.NoError(t, policy.CanDelete(actor, target("t", domain.RoleStaff, "d1")))

	err := policy.CanDelete(actor, target("t", domain.RoleStudent, "d2"))
	assert.True(t, errors.Is(err, domain.ErrForbidden))

	err = policy.CanDelete(actor, target("t", domain.RoleAdmin, "d1"))
	assert.True(t, errors.Is(err, domain.ErrForbidden))

	err = policy.CanDelete(actor, target("t", domain.RoleHOD, "d1"))
	assert.True(t, errors.Is(err, domain.ErrForbidden))

	err = policy.CanDelete(actor, target("t", domain.RoleStaff))
	assert.True(t, errors.Is(err, domain.ErrMissingDepartment))
}

func TestCanDeleteBaseRoles(t *testing.T) {
	policy := NewHierarchyPolicy(nil)

	for _, role := range []domain.Role{domain.RoleFaculty, domain.RoleStudent, domain.RoleStaff} {
		actor := domain.Actor{ID: "x", Role: role, Departments: []domain.DepartmentID{"d1"}}
		err := policy.CanDelete(actor, target("t", domain.RoleStudent, "d1"))
		assert.True(t, errors.Is(err, domain.ErrForbidden), "role %q should be denied", role)
	}
}

func TestCanCreate(t *testing.T) {
	policy := NewHierarchyPolicy(nil)

	assert.True(t, policy.CanCreate(superAdmin("s"), domain.RoleAdmin))
	assert.True(t, policy.CanCreate(admin("a", "d1"), domain.RoleFaculty))
	assert.True(t, policy.CanCreate(admin("a", "d1"), domain.RoleHOD))
	assert.False(t, policy.CanCreate(admin("a", "d1"), domain.RoleAdmin), "only super admins create admins")

	assert.True(t, policy.CanCreate(hod("h", "d1"), domain.RoleStudent))
	assert.False(t, policy.CanCreate(hod("h", "d1"), domain.RoleStaff))
	assert.False(t, policy.CanCreate(hod("h", "d1"), domain.RoleHOD))

	student := domain.Actor{ID: "u", Role: domain.RoleStudent}
	assert.False(t, policy.CanCreate(student, domain.RoleStudent))
}
