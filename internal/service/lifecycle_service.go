package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/yourorg/campuscore/internal/domain"
	"github.com/yourorg/campuscore/internal/notification"
	"github.com/yourorg/campuscore/internal/observability/metrics"
	"github.com/yourorg/campuscore/internal/security"
)

const verificationTokenTTL = 24 * time.Hour

// Repositories bundles the per-table repositories the lifecycle service
// reads from. Multi-record writes go through the LifecycleStore instead.
type Repositories struct {
	Users       domain.UserRepository
	Admins      domain.AdminRepository
	Faculty     domain.FacultyRepository
	Students    domain.StudentRepository
	Staff       domain.StaffRepository
	Departments domain.DepartmentRepository
}

// LifecycleService implements the account lifecycle workflows: creation,
// status changes, soft delete, restore and permanent delete. Every
// workflow resolves the acting principal fresh and runs the hierarchy
// and privilege gates before touching storage.
type LifecycleService struct {
	repos    Repositories
	store    domain.LifecycleStore
	authz    *security.Authorizer
	policy   *security.HierarchyPolicy
	notifier notification.Sender
	audit    domain.AuditSink
	logger   *slog.Logger
}

// NewLifecycleService creates a new lifecycle service
func NewLifecycleService(
	repos Repositories,
	store domain.LifecycleStore,
	authz *security.Authorizer,
	policy *security.HierarchyPolicy,
	notifier notification.Sender,
	audit domain.AuditSink,
	logger *slog.Logger,
) *LifecycleService {
	if logger == nil {
		logger = slog.Default()
	}
	return &LifecycleService{
		repos:    repos,
		store:    store,
		authz:    authz,
		policy:   policy,
		notifier: notifier,
		audit:    audit,
		logger:   logger,
	}
}

// CreateUserInput carries everything needed to provision one account:
// the identity fields plus the role-extension fields for the requested
// role. Fields for other roles are ignored.
type CreateUserInput struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	Role      string `json:"role"`

	// Admin extension.
	IsSuperAdmin    bool     `json:"is_super_admin,omitempty"`
	DepartmentScope []string `json:"department_scope,omitempty"`

	// Department-bound extensions (hod, faculty, student, staff).
	DepartmentID string `json:"department_id,omitempty"`
	Designation  string `json:"designation,omitempty"`
	RollNo       string `json:"roll_no,omitempty"`
	Year         int    `json:"year,omitempty"`
	Position     string `json:"position,omitempty"`
}

// CreateUserResult reports the provisioned account. VerificationSent is
// false when the account committed but token delivery failed; the
// account is still usable once verified through a re-issued token.
type CreateUserResult struct {
	UserID           string `json:"user_id"`
	Email            string `json:"email"`
	Role             string `json:"role"`
	Status           string `json:"status"`
	VerificationSent bool   `json:"verification_sent"`
}

// CreateUser provisions a new account on behalf of actorID. The user row
// and its role extension commit in one transaction; verification token
// delivery happens after commit and never rolls the account back.
func (s *LifecycleService) CreateUser(ctx context.Context, actorID domain.PrincipalID, in CreateUserInput) (*CreateUserResult, error) {
	start := time.Now()
	role := domain.Role(strings.ToLower(strings.TrimSpace(in.Role)))

	result, err := s.createUser(ctx, actorID, role, in)
	if err != nil {
		metrics.ObserveProvision(string(role), "error", time.Since(start))
		return nil, err
	}
	metrics.ObserveProvision(string(role), "success", time.Since(start))
	return result, nil
}

func (s *LifecycleService) createUser(ctx context.Context, actorID domain.PrincipalID, role domain.Role, in CreateUserInput) (*CreateUserResult, error) {
	if err := validateCreateInput(role, in); err != nil {
		return nil, err
	}

	actor, err := s.resolveActor(ctx, actorID)
	if err != nil {
		return nil, err
	}

	if !s.policy.CanCreate(actor, role) {
		return nil, domain.Forbiddenf("role %q may not create %q accounts", actor.Role, role)
	}
	if in.IsSuperAdmin && !actor.IsSuperAdmin {
		return nil, domain.Forbiddenf("only a super admin may create a super admin")
	}

	targetDept := domain.NormalizeDepartmentID(in.DepartmentID)
	if err := s.checkCreationScope(ctx, actor, role, targetDept); err != nil {
		return nil, err
	}

	email := strings.ToLower(strings.TrimSpace(in.Email))
	if _, err := s.repos.Users.GetByEmail(ctx, email); err == nil {
		return nil, domain.Conflictf("email %s is already registered", email)
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("failed to check email uniqueness: %w", err)
	}

	acct, err := s.buildAccount(ctx, actorID, role, email, in)
	if err != nil {
		return nil, err
	}

	if err := s.store.CreateAccount(ctx, acct); err != nil {
		return nil, err
	}

	s.logger.Info("account provisioned",
		slog.String("user_id", string(acct.User.ID)),
		slog.String("role", string(role)),
		slog.String("created_by", string(actorID)),
	)
	s.recordAudit(ctx, actorID, "create", string(acct.User.ID), "success", "role="+string(role))

	sent := s.issueVerification(ctx, acct.User.ID, email)

	return &CreateUserResult{
		UserID:           string(acct.User.ID),
		Email:            email,
		Role:             string(role),
		Status:           string(acct.User.Status),
		VerificationSent: sent,
	}, nil
}

func validateCreateInput(role domain.Role, in CreateUserInput) error {
	if !role.Valid() {
		return domain.Validationf("unknown role %q", in.Role)
	}
	if strings.TrimSpace(in.FirstName) == "" {
		return domain.Validationf("first name is required")
	}
	email := strings.TrimSpace(in.Email)
	if email == "" || !strings.Contains(email, "@") {
		return domain.Validationf("a valid email is required")
	}
	if len(in.Password) < 8 {
		return domain.Validationf("password must be at least 8 characters")
	}

	switch role {
	case domain.RoleAdmin:
		if !in.IsSuperAdmin && len(in.DepartmentScope) == 0 {
			return domain.Validationf("non-super admin requires a non-empty department scope")
		}
	case domain.RoleHOD, domain.RoleFaculty, domain.RoleStudent:
		if strings.TrimSpace(in.DepartmentID) == "" {
			return domain.Validationf("role %q requires a department", role)
		}
	}
	return nil
}

// checkCreationScope enforces the department boundary on non-super
// creators: an admin needs the creation privilege scoped to the target
// department, a department head stays inside their own department.
func (s *LifecycleService) checkCreationScope(ctx context.Context, actor domain.Actor, role domain.Role, targetDept domain.DepartmentID) error {
	if actor.IsSuperAdmin {
		return nil
	}

	switch actor.Role {
	case domain.RoleAdmin:
		priv, ok := domain.CreationPrivilege(role)
		if !ok {
			return domain.Forbiddenf("no creation privilege defined for role %q", role)
		}
		scope := domain.GlobalScope()
		if targetDept != "" {
			scope = domain.ScopeForDepartment(targetDept)
		}
		if err := s.authz.RequirePrivilege(ctx, actor.ID, priv, scope); err != nil {
			return err
		}

	case domain.RoleHOD:
		if targetDept == "" || len(actor.Departments) != 1 || actor.Departments[0] != targetDept {
			return domain.Forbiddenf("a department head may only create accounts in their own department")
		}
	}
	return nil
}

func (s *LifecycleService) buildAccount(ctx context.Context, actorID domain.PrincipalID, role domain.Role, email string, in CreateUserInput) (*domain.NewAccount, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := time.Now()
	id := domain.PrincipalID(uuid.NewString())
	acct := &domain.NewAccount{
		User: &domain.User{
			ID:           id,
			FirstName:    strings.TrimSpace(in.FirstName),
			LastName:     strings.TrimSpace(in.LastName),
			Email:        email,
			PasswordHash: string(hash),
			Role:         role,
			Status:       domain.StatusPending,
			CreatedBy:    &actorID,
			CreatedAt:    now,
			UpdatedAt:    now,
		},
	}

	targetDept := domain.NormalizeDepartmentID(in.DepartmentID)

	switch role {
	case domain.RoleAdmin:
		scope := make([]domain.DepartmentID, 0, len(in.DepartmentScope))
		for _, d := range in.DepartmentScope {
			dept := domain.NormalizeDepartmentID(d)
			if err := s.requireDepartment(ctx, dept); err != nil {
				return nil, err
			}
			scope = append(scope, dept)
		}
		admin := &domain.Admin{UserID: id, IsSuperAdmin: in.IsSuperAdmin, DepartmentScope: scope, CreatedAt: now, UpdatedAt: now}
		if err := admin.Validate(); err != nil {
			return nil, err
		}
		acct.Admin = admin

	case domain.RoleHOD, domain.RoleFaculty:
		if err := s.requireDepartment(ctx, targetDept); err != nil {
			return nil, err
		}
		acct.Faculty = &domain.Faculty{UserID: id, DepartmentID: targetDept, Designation: in.Designation, CreatedAt: now, UpdatedAt: now}

	case domain.RoleStudent:
		if err := s.requireDepartment(ctx, targetDept); err != nil {
			return nil, err
		}
		acct.Student = &domain.Student{UserID: id, DepartmentID: targetDept, RollNo: in.RollNo, Year: in.Year, CreatedAt: now, UpdatedAt: now}

	case domain.RoleStaff:
		staff := &domain.Staff{UserID: id, Position: in.Position, CreatedAt: now, UpdatedAt: now}
		if targetDept != "" {
			if err := s.requireDepartment(ctx, targetDept); err != nil {
				return nil, err
			}
			staff.DepartmentID = &targetDept
		}
		acct.Staff = staff
	}

	return acct, nil
}

func (s *LifecycleService) requireDepartment(ctx context.Context, id domain.DepartmentID) error {
	if _, err := s.repos.Departments.GetByID(ctx, id); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Validationf("department %s does not exist", id)
		}
		return fmt.Errorf("failed to resolve department %s: %w", id, err)
	}
	return nil
}

// issueVerification generates, stores and delivers the verification
// token after the account has committed. A delivery failure downgrades
// the result to a partial success and leaves no stored token behind.
func (s *LifecycleService) issueVerification(ctx context.Context, id domain.PrincipalID, email string) bool {
	raw, hash, err := newToken()
	if err != nil {
		s.logger.Error("failed to generate verification token",
			slog.String("user_id", string(id)),
			slog.String("error", err.Error()),
		)
		return false
	}
	if err := s.repos.Users.SetVerificationToken(ctx, id, hash, time.Now().Add(verificationTokenTTL)); err != nil {
		s.logger.Error("failed to store verification token",
			slog.String("user_id", string(id)),
			slog.String("error", err.Error()),
		)
		return false
	}
	if err := s.notifier.SendVerification(ctx, email, raw); err != nil {
		s.logger.Warn("verification delivery failed, clearing token",
			slog.String("user_id", string(id)),
			slog.String("error", err.Error()),
		)
		if clearErr := s.repos.Users.ClearVerificationToken(ctx, id); clearErr != nil {
			s.logger.Error("failed to clear undelivered verification token",
				slog.String("user_id", string(id)),
				slog.String("error", clearErr.Error()),
			)
		}
		return false
	}
	return true
}

// settableStatuses are the statuses reachable through SetStatus.
// Pending is entered only at creation; terminated only through the
// delete workflows.
var settableStatuses = map[domain.AccountStatus]bool{
	domain.StatusActive:    true,
	domain.StatusInactive:  true,
	domain.StatusSuspended: true,
}

// SetStatus moves the target account to the requested status after the
// transition table and the role hierarchy both allow it.
func (s *LifecycleService) SetStatus(ctx context.Context, actorID, targetID domain.PrincipalID, status domain.AccountStatus) error {
	if !settableStatuses[status] {
		metrics.ObserveTransition("set_status", "error")
		return domain.Validationf("status %q cannot be set directly", status)
	}

	err := s.setStatus(ctx, actorID, targetID, status)
	if err != nil {
		metrics.ObserveTransition("set_status", "error")
		return err
	}
	metrics.ObserveTransition("set_status", "success")
	return nil
}

func (s *LifecycleService) setStatus(ctx context.Context, actorID, targetID domain.PrincipalID, status domain.AccountStatus) error {
	user, err := s.repos.Users.GetByID(ctx, targetID)
	if err != nil {
		return err
	}

	actor, err := s.resolveActor(ctx, actorID)
	if err != nil {
		return err
	}
	target, err := s.resolveTarget(ctx, user)
	if err != nil {
		return err
	}

	if !s.policy.CanActOn(actor, target) {
		return domain.Forbiddenf("actor may not change the status of this account")
	}
	if err := domain.CanTransition(user.Status, status); err != nil {
		return err
	}

	if err := s.repos.Users.UpdateStatus(ctx, targetID, status); err != nil {
		return err
	}

	s.logger.Info("account status changed",
		slog.String("user_id", string(targetID)),
		slog.String("from", string(user.Status)),
		slog.String("to", string(status)),
		slog.String("actor_id", string(actorID)),
	)
	s.recordAudit(ctx, actorID, "set_status", string(targetID), "success",
		fmt.Sprintf("from=%s to=%s", user.Status, status))
	return nil
}

// SoftDelete marks the target account terminated. Reversible via
// Restore; the row and its role extension stay in place.
func (s *LifecycleService) SoftDelete(ctx context.Context, actorID, targetID domain.PrincipalID) error {
	user, err := s.repos.Users.GetByIDAny(ctx, targetID)
	if err != nil {
		metrics.ObserveTransition("soft_delete", "error")
		return err
	}
	if user.IsDeleted {
		metrics.ObserveTransition("soft_delete", "error")
		return domain.Conflictf("account is already deleted")
	}

	actor, err := s.resolveActor(ctx, actorID)
	if err != nil {
		metrics.ObserveTransition("soft_delete", "error")
		return err
	}
	target, err := s.resolveTarget(ctx, user)
	if err != nil {
		metrics.ObserveTransition("soft_delete", "error")
		return err
	}

	if err := s.policy.CanDelete(actor, target); err != nil {
		metrics.ObserveTransition("soft_delete", "denied")
		return err
	}

	if err := s.repos.Users.MarkDeleted(ctx, targetID, actorID, time.Now()); err != nil {
		metrics.ObserveTransition("soft_delete", "error")
		return err
	}

	s.logger.Info("account soft-deleted",
		slog.String("user_id", string(targetID)),
		slog.String("actor_id", string(actorID)),
	)
	s.recordAudit(ctx, actorID, "soft_delete", string(targetID), "success", "")
	metrics.ObserveTransition("soft_delete", "success")
	return nil
}

// Restore reverses a soft delete. Admin-only: restoring an account is
// an administrative recovery action, not part of the normal hierarchy.
func (s *LifecycleService) Restore(ctx context.Context, actorID, targetID domain.PrincipalID) error {
	actor, err := s.resolveActor(ctx, actorID)
	if err != nil {
		metrics.ObserveTransition("restore", "error")
		return err
	}
	if actor.Role != domain.RoleAdmin {
		metrics.ObserveTransition("restore", "denied")
		return domain.Forbiddenf("only admins may restore accounts")
	}

	user, err := s.repos.Users.GetByIDAny(ctx, targetID)
	if err != nil {
		metrics.ObserveTransition("restore", "error")
		return err
	}
	if !user.IsDeleted {
		metrics.ObserveTransition("restore", "error")
		return domain.Conflictf("account is not deleted")
	}

	if err := s.repos.Users.Restore(ctx, targetID); err != nil {
		metrics.ObserveTransition("restore", "error")
		return err
	}

	s.logger.Info("account restored",
		slog.String("user_id", string(targetID)),
		slog.String("actor_id", string(actorID)),
	)
	s.recordAudit(ctx, actorID, "restore", string(targetID), "success", "")
	metrics.ObserveTransition("restore", "success")
	return nil
}

// PermanentDelete irreversibly removes a soft-deleted account and all
// its dependent records in one transaction. Super admin only, and never
// against the actor's own account.
func (s *LifecycleService) PermanentDelete(ctx context.Context, actorID, targetID domain.PrincipalID) (*domain.DeletionSummary, error) {
	// The self-check runs before anything else: even a super admin with a
	// soft-deleted target gets this denial first.
	if actorID == targetID {
		metrics.ObserveTransition("permanent_delete", "denied")
		return nil, domain.Forbiddenf("an account cannot permanently delete itself")
	}

	actor, err := s.resolveActor(ctx, actorID)
	if err != nil {
		metrics.ObserveTransition("permanent_delete", "error")
		return nil, err
	}
	if !actor.IsSuperAdmin {
		metrics.ObserveTransition("permanent_delete", "denied")
		return nil, domain.Forbiddenf("only a super admin may permanently delete accounts")
	}

	user, err := s.repos.Users.GetByIDAny(ctx, targetID)
	if err != nil {
		metrics.ObserveTransition("permanent_delete", "error")
		return nil, err
	}
	if !user.IsDeleted {
		metrics.ObserveTransition("permanent_delete", "error")
		return nil, domain.Conflictf("account must be soft-deleted before permanent deletion")
	}

	summary, err := s.store.PurgeAccount(ctx, targetID, actorID)
	if err != nil {
		metrics.ObserveTransition("permanent_delete", "error")
		return nil, err
	}

	s.logger.Info("account permanently deleted",
		slog.String("user_id", string(targetID)),
		slog.String("actor_id", string(actorID)),
		slog.Int64("grants_removed", summary.GrantsRemoved),
		slog.Int64("departments_cleared", summary.DepartmentsCleared),
	)
	metrics.ObserveTransition("permanent_delete", "success")
	return summary, nil
}

// resolveActor loads the acting principal and its administrative scope.
// A missing or non-active actor is a forbidden condition, not a data
// error: nothing about the target leaks to an invalid caller.
func (s *LifecycleService) resolveActor(ctx context.Context, id domain.PrincipalID) (domain.Actor, error) {
	user, err := s.repos.Users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Actor{}, domain.Forbiddenf("acting account not found")
		}
		return domain.Actor{}, fmt.Errorf("failed to resolve actor: %w", err)
	}
	if user.Status != domain.StatusActive {
		return domain.Actor{}, domain.Forbiddenf("acting account is not active")
	}

	actor := domain.Actor{ID: user.ID, Role: user.Role}
	switch user.Role {
	case domain.RoleAdmin:
		admin, err := s.repos.Admins.GetByUserID(ctx, id)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return domain.Actor{}, domain.Forbiddenf("admin record missing for acting account")
			}
			return domain.Actor{}, fmt.Errorf("failed to resolve admin extension: %w", err)
		}
		actor.IsSuperAdmin = admin.IsSuperAdmin
		actor.Departments = admin.DepartmentScope

	case domain.RoleHOD:
		fac, err := s.repos.Faculty.GetByUserID(ctx, id)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return domain.Actor{}, domain.Forbiddenf("faculty record missing for acting department head")
			}
			return domain.Actor{}, fmt.Errorf("failed to resolve faculty extension: %w", err)
		}
		actor.Departments = []domain.DepartmentID{fac.DepartmentID}
	}
	return actor, nil
}

// resolveTarget builds the TargetRef for a loaded user. A missing role
// extension or an extension without a department leaves HasDepartment
// false; the hierarchy policy decides what that means.
func (s *LifecycleService) resolveTarget(ctx context.Context, user *domain.User) (domain.TargetRef, error) {
	ref := domain.TargetRef{ID: user.ID, Role: user.Role}

	switch user.Role {
	case domain.RoleAdmin:
		admin, err := s.repos.Admins.GetByUserID(ctx, user.ID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return ref, nil
			}
			return ref, fmt.Errorf("failed to resolve target admin extension: %w", err)
		}
		ref.IsSuperAdmin = admin.IsSuperAdmin
		ref.Departments = admin.DepartmentScope
		ref.HasDepartment = len(admin.DepartmentScope) > 0

	case domain.RoleHOD, domain.RoleFaculty:
		fac, err := s.repos.Faculty.GetByUserID(ctx, user.ID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return ref, nil
			}
			return ref, fmt.Errorf("failed to resolve target faculty extension: %w", err)
		}
		ref.Departments = []domain.DepartmentID{fac.DepartmentID}
		ref.HasDepartment = true

	case domain.RoleStudent:
		st, err := s.repos.Students.GetByUserID(ctx, user.ID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return ref, nil
			}
			return ref, fmt.Errorf("failed to resolve target student extension: %w", err)
		}
		ref.Departments = []domain.DepartmentID{st.DepartmentID}
		ref.HasDepartment = true

	case domain.RoleStaff:
		st, err := s.repos.Staff.GetByUserID(ctx, user.ID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return ref, nil
			}
			return ref, fmt.Errorf("failed to resolve target staff extension: %w", err)
		}
		if st.DepartmentID != nil {
			ref.Departments = []domain.DepartmentID{*st.DepartmentID}
			ref.HasDepartment = true
		}
	}
	return ref, nil
}

// recordAudit writes to the audit sink best-effort. Workflow outcomes
// never depend on it.
func (s *LifecycleService) recordAudit(ctx context.Context, actorID domain.PrincipalID, action, resourceID, status, details string) {
	if s.audit == nil {
		return
	}
	rec := domain.AuditRecord{
		ActorID:    actorID,
		Action:     action,
		Resource:   "user",
		ResourceID: resourceID,
		Status:     status,
		Details:    details,
		CreatedAt:  time.Now(),
	}
	if err := s.audit.Record(ctx, rec); err != nil {
		s.logger.Warn("audit record failed",
			slog.String("action", action),
			slog.String("error", err.Error()),
		)
	}
}
