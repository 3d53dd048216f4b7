package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRole(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want Role
	}{
		{in: "User", want: RoleUser},
		{in: "admin", want: RoleAdmin},
		{in: " ADMIN ", want: RoleAdmin},
	}
	for _, tt := range tests {
		got, err := ParseRole(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}

	_, err := ParseRole("root")
	assert.ErrorIs(t, err, ErrUnknownRole)
}

func TestRole_AtLeast(t *testing.T) {
	t.Parallel()

	assert.True(t, RoleAdmin.AtLeast(RoleUser))
	assert.True(t, RoleAdmin.AtLeast(RoleAdmin))
	assert.True(t, RoleUser.AtLeast(RoleUser))
	assert.False(t, RoleUser.AtLeast(RoleAdmin))
	assert.False(t, Role("Guest").AtLeast(RoleUser))
}

func TestPermissionGrant_Normalize(t *testing.T) {
	t.Parallel()

	g := PermissionGrant{Role: RoleUser, Endpoint: " /api/users/search ", Method: "get"}.Normalize()
	assert.Equal(t, "/api/users/search", g.Endpoint)
	assert.Equal(t, "GET", g.Method)
}
