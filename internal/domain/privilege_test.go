package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseScopeNormalizes(t *testing.T) {
	for _, raw := range []string{"global", "GLOBAL", " Global "} {
		s, err := ParseScope(raw)
		require.NoError(t, err)
		assert.True(t, s.IsGlobal(), "raw %q", raw)
		assert.Equal(t, "GLOBAL", s.String())
	}

	s, err := ParseScope("cse")
	require.NoError(t, err)
	assert.False(t, s.IsGlobal())
	dept, ok := s.DepartmentID()
	require.True(t, ok)
	assert.Equal(t, DepartmentID("CSE"), dept)

	_, err = ParseScope("   ")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestScopeCovers(t *testing.T) {
	d7, err := ParseScope("D7")
	require.NoError(t, err)

	// GLOBAL covers every requested scope.
	assert.True(t, GlobalScope().Covers(d7))
	assert.True(t, GlobalScope().Covers(GlobalScope()))

	// Department scopes only cover themselves, case-insensitively.
	lower, err := ParseScope("d7")
	require.NoError(t, err)
	assert.True(t, lower.Covers(d7))

	other := ScopeForDepartment("D8")
	assert.False(t, other.Covers(d7))
	assert.False(t, d7.Covers(GlobalScope()))
}

func TestGrantHas(t *testing.T) {
	g := &PrivilegeGrant{Privileges: []Privilege{PrivCreateStudent, PrivManageFees}}
	assert.True(t, g.Has(PrivCreateStudent))
	assert.False(t, g.Has(PrivCreateAdmin))
}

func TestCreationPrivilege(t *testing.T) {
	tests := []struct {
		role Role
		want Privilege
	}{
		{RoleAdmin, PrivCreateAdmin},
		{RoleHOD, PrivCreateFaculty},
		{RoleFaculty, PrivCreateFaculty},
		{RoleStudent, PrivCreateStudent},
		{RoleStaff, PrivCreateStaff},
	}
	for _, tt := range tests {
		got, ok := CreationPrivilege(tt.role)
		require.True(t, ok, "role %q", tt.role)
		assert.Equal(t, tt.want, got)
	}

	_, ok := CreationPrivilege(Role("librarian"))
	assert.False(t, ok)
}
