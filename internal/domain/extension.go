package domain

import (
	"context"
	"strings"
	"time"
)

// DepartmentID identifies a department.
type DepartmentID string

// NormalizeDepartmentID canonicalizes a client-supplied department
// identifier. Department ids live in uuid columns whose canonical text
// form is lower case, but scope sets compare them as raw text, so every
// identifier must enter the system already in canonical form.
func NormalizeDepartmentID(raw string) DepartmentID {
	return DepartmentID(strings.ToLower(strings.TrimSpace(raw)))
}

// Department is an organizational unit. HODUserID is the back-reference
// to the Faculty account currently heading it; it is cleared inside the
// deletion transaction when that account is permanently removed.
type Department struct {
	ID        DepartmentID
	Code      string // unique short code, e.g. "CSE"
	Name      string
	HODUserID *PrincipalID
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Admin is the role extension for administrative accounts.
type Admin struct {
	UserID       PrincipalID
	IsSuperAdmin bool
	// DepartmentScope restricts a non-super admin to these departments.
	// For a super admin the scope is advisory only; authorization
	// bypasses it entirely.
	DepartmentScope []DepartmentID
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Validate enforces the creation-time invariant: a non-super admin must
// be scoped to at least one department.
func (a *Admin) Validate() error {
	if !a.IsSuperAdmin && len(a.DepartmentScope) == 0 {
		return Validationf("non-super admin requires a non-empty department scope")
	}
	return nil
}

// ScopesIntersect reports whether two department sets share at least one
// department. One shared department is sufficient for admin-on-admin
// actions; see the hierarchy policy.
func ScopesIntersect(a, b []DepartmentID) bool {
	for _, x := range a {
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}

// Faculty is the role extension for teaching accounts. It also backs
// the HOD role; a department head is a faculty record whose user
// carries the hod role tag.
type Faculty struct {
	UserID       PrincipalID
	DepartmentID DepartmentID
	Designation  string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Student is the role extension for student accounts.
type Student struct {
	UserID       PrincipalID
	DepartmentID DepartmentID
	RollNo       string
	Year         int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Staff is the role extension for non-teaching staff. DepartmentID is
// nil for institution-wide staff.
type Staff struct {
	UserID       PrincipalID
	DepartmentID *DepartmentID
	Position     string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// AdminRepository defines data access for admin extensions.
type AdminRepository interface {
	GetByUserID(ctx context.Context, id PrincipalID) (*Admin, error)
}

// FacultyRepository defines data access for faculty extensions.
type FacultyRepository interface {
	GetByUserID(ctx context.Context, id PrincipalID) (*Faculty, error)
}

// StudentRepository defines data access for student extensions.
type StudentRepository interface {
	GetByUserID(ctx context.Context, id PrincipalID) (*Student, error)
}

// StaffRepository defines data access for staff extensions.
type StaffRepository interface {
	GetByUserID(ctx context.Context, id PrincipalID) (*Staff, error)
}

// DepartmentRepository defines data access for departments.
type DepartmentRepository interface {
	GetByID(ctx context.Context, id DepartmentID) (*Department, error)
	List(ctx context.Context) ([]*Department, error)
}

// NewAccount bundles an identity record with exactly one role extension
// for transactional creation. Exactly one extension field matching
// User.Role must be set.
type NewAccount struct {
	User    *User
	Admin   *Admin
	Faculty *Faculty
	Student *Student
	Staff   *Staff
}

// DeletionSummary reports what a permanent delete removed.
type DeletionSummary struct {
	UserID             PrincipalID `json:"user_id"`
	Role               Role        `json:"role"`
	ExtensionRemoved   bool        `json:"extension_removed"`
	GrantsRemoved      int64       `json:"grants_removed"`
	DepartmentsCleared int64       `json:"departments_cleared"`
}

// AuditRecord summarizes a sensitive mutation for the audit sink.
type AuditRecord struct {
	ActorID    PrincipalID
	Action     string
	Resource   string
	ResourceID string
	Status     string
	Details    string
	CreatedAt  time.Time
}

// LifecycleStore runs the two multi-record workflows atomically:
// account creation (user + role extension) and permanent deletion
// (role-dispatched cleanup + dependent references + user + audit row).
// Either everything commits or nothing does.
type LifecycleStore interface {
	CreateAccount(ctx context.Context, acct *NewAccount) error
	PurgeAccount(ctx context.Context, target, actor PrincipalID) (*DeletionSummary, error)
}

// AuditSink records audit entries outside the deletion transaction.
// Best-effort: failures are logged by callers, never propagated.
type AuditSink interface {
	Record(ctx context.Context, rec AuditRecord) error
}
