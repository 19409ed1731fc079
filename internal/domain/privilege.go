package domain

import (
	"context"
	"strings"
	"time"
)

// Privilege is a named permission tag checked by the authorization
// engine before sensitive mutations.
type Privilege string

const (
	PrivCreateAdmin   Privilege = "CREATE_ADMIN"
	PrivCreateFaculty Privilege = "CREATE_FACULTY"
	PrivCreateStudent Privilege = "CREATE_STUDENT"
	PrivCreateStaff   Privilege = "CREATE_STAFF"
	PrivManageCourses Privilege = "MANAGE_COURSES"
	PrivManageFees    Privilege = "MANAGE_FEES"
	PrivManageNotices Privilege = "MANAGE_NOTICES"
	PrivViewAuditLog  Privilege = "VIEW_AUDIT_LOG"
)

// CreationPrivilege returns the privilege gating creation of accounts
// with the given role tag.
func CreationPrivilege(role Role) (Privilege, bool) {
	switch role {
	case RoleAdmin:
		return PrivCreateAdmin, true
	case RoleHOD, RoleFaculty:
		return PrivCreateFaculty, true
	case RoleStudent:
		return PrivCreateStudent, true
	case RoleStaff:
		return PrivCreateStaff, true
	}
	return "", false
}

const globalScope = "GLOBAL"

// Scope is the boundary a privilege applies within: global or one
// department. Values are normalized to upper case in the constructors,
// so every comparison downstream is case-insensitive by construction.
type Scope struct {
	value string
}

// GlobalScope returns the scope covering every department.
func GlobalScope() Scope {
	return Scope{value: globalScope}
}

// ScopeForDepartment returns a scope bound to a single department.
func ScopeForDepartment(id DepartmentID) Scope {
	return Scope{value: strings.ToUpper(string(id))}
}

// ParseScope normalizes a raw scope string. The department referenced by
// a non-global scope is validated against the department registry at
// grant time, not here.
func ParseScope(raw string) (Scope, error) {
	v := strings.ToUpper(strings.TrimSpace(raw))
	if v == "" {
		return Scope{}, Validationf("scope must not be empty")
	}
	return Scope{value: v}, nil
}

// IsGlobal reports whether the scope covers every department.
func (s Scope) IsGlobal() bool { return s.value == globalScope }

// IsZero reports whether the scope was never initialized.
func (s Scope) IsZero() bool { return s.value == "" }

// DepartmentID returns the department a non-global scope is bound to.
func (s Scope) DepartmentID() (DepartmentID, bool) {
	if s.IsGlobal() || s.IsZero() {
		return "", false
	}
	return DepartmentID(s.value), true
}

// Covers reports whether a grant with scope s satisfies a check against
// the requested scope. GLOBAL covers everything.
func (s Scope) Covers(requested Scope) bool {
	if s.IsGlobal() {
		return true
	}
	return s.value == requested.value
}

// String returns the canonical form persisted to storage.
func (s Scope) String() string { return s.value }

// PrivilegeGrant is one grant document: the privileges a principal
// holds within a single scope. At most one grant exists per
// (principal, scope) pair, and Privileges is a set.
type PrivilegeGrant struct {
	ID         string
	UserID     PrincipalID
	Scope      Scope
	Privileges []Privilege
	GrantedBy  PrincipalID
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Has reports whether the grant contains the privilege.
func (g *PrivilegeGrant) Has(p Privilege) bool {
	for _, held := range g.Privileges {
		if held == p {
			return true
		}
	}
	return false
}

// RevokeResult reports what a revoke changed: either one grant row was
// modified, or it became empty and was deleted.
type RevokeResult struct {
	Modified int64 `json:"modified_count"`
	Deleted  int64 `json:"deleted_count"`
}

// PrivilegeRepository stores privilege grants keyed by PrincipalID.
type PrivilegeRepository interface {
	GrantsFor(ctx context.Context, id PrincipalID) ([]*PrivilegeGrant, error)
	// Grant finds-or-creates the (principal, scope) row and adds the
	// privilege to its set. Adding an already-present privilege is a
	// no-op and still succeeds.
	Grant(ctx context.Context, id PrincipalID, priv Privilege, scope Scope, grantedBy PrincipalID) (*PrivilegeGrant, error)
	// Revoke removes the privilege from the set and deletes the row
	// outright when the set becomes empty. Empty grants never persist.
	Revoke(ctx context.Context, id PrincipalID, priv Privilege, scope Scope) (*RevokeResult, error)
}
