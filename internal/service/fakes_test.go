package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/yourorg/campuscore/internal/domain"
)

// memUsers is an in-memory UserRepository for tests.
type memUsers struct {
	mu   sync.Mutex
	byID map[domain.PrincipalID]*domain.User
}

func newMemUsers() *memUsers {
	return &memUsers{byID: map[domain.PrincipalID]*domain.User{}}
}

func (m *memUsers) add(u *domain.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *u
	m.byID[u.ID] = &cp
}

func (m *memUsers) get(id domain.PrincipalID) *domain.User {
	m.mu.Lock()
	defer m.mu.Unlock()
	u := m.byID[id]
	if u == nil {
		return nil
	}
	cp := *u
	return &cp
}

func (m *memUsers) GetByID(_ context.Context, id domain.PrincipalID) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok || u.IsDeleted {
		return nil, domain.NotFoundf("user not found")
	}
	cp := *u
	return &cp, nil
}

func (m *memUsers) GetByIDAny(_ context.Context, id domain.PrincipalID) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok {
		return nil, domain.NotFoundf("user not found")
	}
	cp := *u
	return &cp, nil
}

func (m *memUsers) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.byID {
		if strings.EqualFold(u.Email, email) && !u.IsDeleted {
			cp := *u
			return &cp, nil
		}
	}
	return nil, domain.NotFoundf("user not found")
}

func (m *memUsers) UpdateStatus(_ context.Context, id domain.PrincipalID, status domain.AccountStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok || u.IsDeleted {
		return domain.NotFoundf("user not found")
	}
	u.Status = status
	return nil
}

func (m *memUsers) MarkDeleted(_ context.Context, id, deletedBy domain.PrincipalID, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok {
		return domain.NotFoundf("user not found")
	}
	if u.IsDeleted {
		return domain.Conflictf("user already deleted")
	}
	u.IsDeleted = true
	u.DeletedAt = &at
	u.DeletedBy = &deletedBy
	u.Status = domain.StatusTerminated
	return nil
}

func (m *memUsers) Restore(_ context.Context, id domain.PrincipalID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok {
		return domain.NotFoundf("user not found")
	}
	if !u.IsDeleted {
		return domain.Conflictf("user not deleted")
	}
	u.IsDeleted = false
	u.DeletedAt = nil
	u.DeletedBy = nil
	u.Status = domain.StatusActive
	return nil
}

func (m *memUsers) SetVerificationToken(_ context.Context, id domain.PrincipalID, tokenHash string, expiry time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok {
		return domain.NotFoundf("user not found")
	}
	u.VerificationTokenHash = tokenHash
	u.VerificationTokenExpiry = &expiry
	return nil
}

func (m *memUsers) ClearVerificationToken(_ context.Context, id domain.PrincipalID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok {
		return domain.NotFoundf("user not found")
	}
	u.VerificationTokenHash = ""
	u.VerificationTokenExpiry = nil
	return nil
}

func (m *memUsers) GetByVerificationToken(_ context.Context, tokenHash string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.byID {
		if u.VerificationTokenHash == tokenHash && tokenHash != "" && !u.IsDeleted {
			cp := *u
			return &cp, nil
		}
	}
	return nil, domain.NotFoundf("user not found")
}

func (m *memUsers) SetResetToken(_ context.Context, id domain.PrincipalID, tokenHash string, expiry time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok {
		return domain.NotFoundf("user not found")
	}
	u.ResetTokenHash = tokenHash
	u.ResetTokenExpiry = &expiry
	return nil
}

func (m *memUsers) GetByResetToken(_ context.Context, tokenHash string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.byID {
		if u.ResetTokenHash == tokenHash && tokenHash != "" && !u.IsDeleted {
			cp := *u
			return &cp, nil
		}
	}
	return nil, domain.NotFoundf("user not found")
}

func (m *memUsers) UpdatePassword(_ context.Context, id domain.PrincipalID, passwordHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok || u.IsDeleted {
		return domain.NotFoundf("user not found")
	}
	u.PasswordHash = passwordHash
	u.ResetTokenHash = ""
	u.ResetTokenExpiry = nil
	return nil
}

func (m *memUsers) IncrementFailedLogins(_ context.Context, id domain.PrincipalID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok {
		return 0, domain.NotFoundf("user not found")
	}
	u.FailedLoginAttempts++
	return u.FailedLoginAttempts, nil
}

func (m *memUsers) SetLock(_ context.Context, id domain.PrincipalID, until time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok {
		return domain.NotFoundf("user not found")
	}
	u.LockedUntil = &until
	return nil
}

func (m *memUsers) ClearLoginFailures(_ context.Context, id domain.PrincipalID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[id]
	if !ok {
		return domain.NotFoundf("user not found")
	}
	u.FailedLoginAttempts = 0
	u.LockedUntil = nil
	return nil
}

func (m *memUsers) PurgeExpiredTokens(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, u := range m.byID {
		if u.VerificationTokenExpiry != nil && now.After(*u.VerificationTokenExpiry) {
			u.VerificationTokenHash = ""
			u.VerificationTokenExpiry = nil
			n++
		}
		if u.ResetTokenExpiry != nil && now.After(*u.ResetTokenExpiry) {
			u.ResetTokenHash = ""
			u.ResetTokenExpiry = nil
			n++
		}
	}
	return n, nil
}

func (m *memUsers) ReleaseExpiredLocks(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, u := range m.byID {
		if u.LockedUntil != nil && now.After(*u.LockedUntil) {
			u.LockedUntil = nil
			u.FailedLoginAttempts = 0
			n++
		}
	}
	return n, nil
}

func (m *memUsers) CountActive(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int
	for _, u := range m.byID {
		if u.Status == domain.StatusActive && !u.IsDeleted {
			n++
		}
	}
	return n, nil
}

// extRepos holds the role-extension fakes.
type extRepos struct {
	admins   map[domain.PrincipalID]*domain.Admin
	faculty  map[domain.PrincipalID]*domain.Faculty
	students map[domain.PrincipalID]*domain.Student
	staff    map[domain.PrincipalID]*domain.Staff
}

func newExtRepos() *extRepos {
	return &extRepos{
		admins:   map[domain.PrincipalID]*domain.Admin{},
		faculty:  map[domain.PrincipalID]*domain.Faculty{},
		students: map[domain.PrincipalID]*domain.Student{},
		staff:    map[domain.PrincipalID]*domain.Staff{},
	}
}

type memAdmins struct{ ext *extRepos }

func (m memAdmins) GetByUserID(_ context.Context, id domain.PrincipalID) (*domain.Admin, error) {
	if a, ok := m.ext.admins[id]; ok {
		return a, nil
	}
	return nil, domain.NotFoundf("admin record not found")
}

type memFaculty struct{ ext *extRepos }

func (m memFaculty) GetByUserID(_ context.Context, id domain.PrincipalID) (*domain.Faculty, error) {
	if f, ok := m.ext.faculty[id]; ok {
		return f, nil
	}
	return nil, domain.NotFoundf("faculty record not found")
}

type memStudents struct{ ext *extRepos }

func (m memStudents) GetByUserID(_ context.Context, id domain.PrincipalID) (*domain.Student, error) {
	if s, ok := m.ext.students[id]; ok {
		return s, nil
	}
	return nil, domain.NotFoundf("student record not found")
}

type memStaff struct{ ext *extRepos }

func (m memStaff) GetByUserID(_ context.Context, id domain.PrincipalID) (*domain.Staff, error) {
	if s, ok := m.ext.staff[id]; ok {
		return s, nil
	}
	return nil, domain.NotFoundf("staff record not found")
}

type memDepts struct {
	depts map[domain.DepartmentID]*domain.Department
}

func (m *memDepts) GetByID(_ context.Context, id domain.DepartmentID) (*domain.Department, error) {
	if d, ok := m.depts[id]; ok {
		return d, nil
	}
	return nil, domain.NotFoundf("department not found")
}

func (m *memDepts) List(_ context.Context) ([]*domain.Department, error) {
	var out []*domain.Department
	for _, d := range m.depts {
		out = append(out, d)
	}
	return out, nil
}

type memGrants struct {
	grants []*domain.PrivilegeGrant
}

func (m *memGrants) GrantsFor(_ context.Context, id domain.PrincipalID) ([]*domain.PrivilegeGrant, error) {
	var out []*domain.PrivilegeGrant
	for _, g := range m.grants {
		if g.UserID == id {
			out = append(out, g)
		}
	}
	return out, nil
}

func (m *memGrants) Grant(_ context.Context, id domain.PrincipalID, priv domain.Privilege, scope domain.Scope, grantedBy domain.PrincipalID) (*domain.PrivilegeGrant, error) {
	for _, g := range m.grants {
		if g.UserID == id && g.Scope.String() == scope.String() {
			if !g.Has(priv) {
				g.Privileges = append(g.Privileges, priv)
			}
			return g, nil
		}
	}
	g := &domain.PrivilegeGrant{
		ID:         fmt.Sprintf("grant-%d", len(m.grants)+1),
		UserID:     id,
		Scope:      scope,
		Privileges: []domain.Privilege{priv},
		GrantedBy:  grantedBy,
	}
	m.grants = append(m.grants, g)
	return g, nil
}

func (m *memGrants) Revoke(_ context.Context, id domain.PrincipalID, priv domain.Privilege, scope domain.Scope) (*domain.RevokeResult, error) {
	for i, g := range m.grants {
		if g.UserID != id || g.Scope.String() != scope.String() {
			continue
		}
		var kept []domain.Privilege
		for _, p := range g.Privileges {
			if p != priv {
				kept = append(kept, p)
			}
		}
		if len(kept) == len(g.Privileges) {
			return &domain.RevokeResult{}, nil
		}
		if len(kept) == 0 {
			m.grants = append(m.grants[:i], m.grants[i+1:]...)
			return &domain.RevokeResult{Deleted: 1}, nil
		}
		g.Privileges = kept
		return &domain.RevokeResult{Modified: 1}, nil
	}
	return &domain.RevokeResult{}, nil
}

func (m *memGrants) countFor(id domain.PrincipalID) int64 {
	var n int64
	for _, g := range m.grants {
		if g.UserID == id {
			n++
		}
	}
	return n
}

func (m *memGrants) deleteFor(id domain.PrincipalID) int64 {
	var kept []*domain.PrivilegeGrant
	var removed int64
	for _, g := range m.grants {
		if g.UserID == id {
			removed++
			continue
		}
		kept = append(kept, g)
	}
	m.grants = kept
	return removed
}

// memStore is an in-memory LifecycleStore. It enforces the email
// uniqueness the unique index provides in Postgres, and supports
// injecting a purge failure to exercise atomicity handling.
type memStore struct {
	users    *memUsers
	ext      *extRepos
	grants   *memGrants
	depts    *memDepts
	purgeErr error
}

func (s *memStore) CreateAccount(_ context.Context, acct *domain.NewAccount) error {
	s.users.mu.Lock()
	for _, u := range s.users.byID {
		if strings.EqualFold(u.Email, acct.User.Email) {
			s.users.mu.Unlock()
			return domain.Conflictf("duplicate key: users_email_unique_idx")
		}
	}
	cp := *acct.User
	s.users.byID[cp.ID] = &cp
	s.users.mu.Unlock()

	switch {
	case acct.Admin != nil:
		s.ext.admins[cp.ID] = acct.Admin
	case acct.Faculty != nil:
		s.ext.faculty[cp.ID] = acct.Faculty
	case acct.Student != nil:
		s.ext.students[cp.ID] = acct.Student
	case acct.Staff != nil:
		s.ext.staff[cp.ID] = acct.Staff
	}
	return nil
}

func (s *memStore) PurgeAccount(_ context.Context, target, actor domain.PrincipalID) (*domain.DeletionSummary, error) {
	if s.purgeErr != nil {
		return nil, s.purgeErr
	}

	s.users.mu.Lock()
	defer s.users.mu.Unlock()
	u, ok := s.users.byID[target]
	if !ok {
		return nil, domain.NotFoundf("user not found")
	}
	if !u.IsDeleted {
		return nil, domain.Conflictf("user is not soft-deleted")
	}

	summary := &domain.DeletionSummary{UserID: target, Role: u.Role}

	switch u.Role {
	case domain.RoleAdmin:
		if _, ok := s.ext.admins[target]; ok {
			delete(s.ext.admins, target)
			summary.ExtensionRemoved = true
		}
	case domain.RoleHOD, domain.RoleFaculty:
		for _, d := range s.depts.depts {
			if d.HODUserID != nil && *d.HODUserID == target {
				d.HODUserID = nil
				summary.DepartmentsCleared++
			}
		}
		if _, ok := s.ext.faculty[target]; ok {
			delete(s.ext.faculty, target)
			summary.ExtensionRemoved = true
		}
	case domain.RoleStudent:
		if _, ok := s.ext.students[target]; ok {
			delete(s.ext.students, target)
			summary.ExtensionRemoved = true
		}
	case domain.RoleStaff:
		if _, ok := s.ext.staff[target]; ok {
			delete(s.ext.staff, target)
			summary.ExtensionRemoved = true
		}
	}

	summary.GrantsRemoved = s.grants.deleteFor(target)
	delete(s.users.byID, target)
	return summary, nil
}

// fakeSender records deliveries and can be told to fail.
type fakeSender struct {
	failVerification bool
	verifications    []string
	resets           []string
	lastToken        string
}

func (f *fakeSender) SendVerification(_ context.Context, email, token string) error {
	if f.failVerification {
		return fmt.Errorf("smtp unavailable")
	}
	f.verifications = append(f.verifications, email)
	f.lastToken = token
	return nil
}

func (f *fakeSender) SendPasswordReset(_ context.Context, email, token string) error {
	f.resets = append(f.resets, email)
	f.lastToken = token
	return nil
}

type fakeAudit struct {
	records []domain.AuditRecord
}

func (f *fakeAudit) Record(_ context.Context, rec domain.AuditRecord) error {
	f.records = append(f.records, rec)
	return nil
}
