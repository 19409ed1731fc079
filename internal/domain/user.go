package domain

import (
	"context"
	"time"
)

// PrincipalID identifies a user account. It is the single principal
// identifier used everywhere: privilege grants, audit records and the
// deletion cascade are all keyed by it. Resolved once at the transport
// boundary from the authenticated token.
type PrincipalID string

// Role tags a user account with its position in the institution.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleHOD     Role = "hod"
	RoleFaculty Role = "faculty"
	RoleStudent Role = "student"
	RoleStaff   Role = "staff"
)

// Valid reports whether r is a known role tag.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleHOD, RoleFaculty, RoleStudent, RoleStaff:
		return true
	}
	return false
}

// AccountStatus is the state of an account in its lifecycle.
type AccountStatus string

const (
	StatusPending    AccountStatus = "pending"
	StatusActive     AccountStatus = "active"
	StatusInactive   AccountStatus = "inactive"
	StatusSuspended  AccountStatus = "suspended"
	StatusTerminated AccountStatus = "terminated" // soft-deleted, reversible via restore
)

// statusTransitions lists the transitions reachable through SetStatus.
// Soft delete, restore and permanent delete have their own workflows and
// never go through this table.
var statusTransitions = map[AccountStatus][]AccountStatus{
	StatusPending:   {StatusActive},
	StatusActive:    {StatusInactive, StatusSuspended},
	StatusInactive:  {StatusActive},
	StatusSuspended: {StatusActive},
}

// CanTransition validates a status change before any mutation happens.
// A same-state change is a conflict; anything touching the terminated
// state must use the delete/restore workflows.
func CanTransition(from, to AccountStatus) error {
	if from == to {
		return Conflictf("account already has status %q", to)
	}
	if from == StatusTerminated || to == StatusTerminated {
		return Validationf("status %q is managed by the delete/restore workflows", StatusTerminated)
	}
	for _, next := range statusTransitions[from] {
		if next == to {
			return nil
		}
	}
	return Validationf("cannot transition account from %q to %q", from, to)
}

// User is the canonical identity record.
type User struct {
	ID           PrincipalID
	FirstName    string
	LastName     string
	Email        string // unique across all accounts, deleted or not
	PasswordHash string // bcrypt hash, never exposed
	Role         Role
	Status       AccountStatus

	VerificationTokenHash   string
	VerificationTokenExpiry *time.Time
	ResetTokenHash          string
	ResetTokenExpiry        *time.Time

	FailedLoginAttempts int
	LockedUntil         *time.Time

	IsDeleted bool
	DeletedAt *time.Time
	DeletedBy *PrincipalID

	CreatedBy *PrincipalID
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Locked reports whether the account is currently locked out of login.
func (u *User) Locked(now time.Time) bool {
	return u.LockedUntil != nil && now.Before(*u.LockedUntil)
}

// UserRepository defines data access for identity records. Lookups
// exclude soft-deleted rows unless the method name says otherwise.
type UserRepository interface {
	GetByID(ctx context.Context, id PrincipalID) (*User, error)
	// GetByIDAny also resolves soft-deleted rows; the delete, restore and
	// purge workflows need to see them.
	GetByIDAny(ctx context.Context, id PrincipalID) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)

	UpdateStatus(ctx context.Context, id PrincipalID, status AccountStatus) error
	MarkDeleted(ctx context.Context, id, deletedBy PrincipalID, at time.Time) error
	Restore(ctx context.Context, id PrincipalID) error

	SetVerificationToken(ctx context.Context, id PrincipalID, tokenHash string, expiry time.Time) error
	ClearVerificationToken(ctx context.Context, id PrincipalID) error
	GetByVerificationToken(ctx context.Context, tokenHash string) (*User, error)
	SetResetToken(ctx context.Context, id PrincipalID, tokenHash string, expiry time.Time) error
	GetByResetToken(ctx context.Context, tokenHash string) (*User, error)
	UpdatePassword(ctx context.Context, id PrincipalID, passwordHash string) error

	IncrementFailedLogins(ctx context.Context, id PrincipalID) (int, error)
	SetLock(ctx context.Context, id PrincipalID, until time.Time) error
	ClearLoginFailures(ctx context.Context, id PrincipalID) error

	// Maintenance sweeps used by the background worker.
	PurgeExpiredTokens(ctx context.Context, now time.Time) (int64, error)
	ReleaseExpiredLocks(ctx context.Context, now time.Time) (int64, error)
	CountActive(ctx context.Context) (int, error)
}

// Actor is a fully resolved acting principal: the identity record plus
// whatever administrative scope it carries. Built once per request.
type Actor struct {
	ID           PrincipalID
	Role         Role
	IsSuperAdmin bool
	Departments  []DepartmentID
}

// TargetRef describes the account a workflow is acting on, with the
// department data the hierarchy policy needs. HasDepartment is false
// when the role-extension record is missing or carries no department.
type TargetRef struct {
	ID            PrincipalID
	Role          Role
	IsSuperAdmin  bool
	Departments   []DepartmentID
	HasDepartment bool
}
