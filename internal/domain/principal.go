package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrUnknownRole  = errors.New("unknown role")
	ErrInvalidGrant = errors.New("invalid permission grant")
)

type Role string

const (
	RoleUser  Role = "User"
	RoleAdmin Role = "Admin"
)

// rank orders the built-in roles. Anything finer grained than
// "admin or not" is expressed through PermissionGrant rows.
var rank = map[Role]int{
	RoleUser:  1,
	RoleAdmin: 2,
}

func ParseRole(s string) (Role, error) {
	for r := range rank {
		if strings.EqualFold(string(r), strings.TrimSpace(s)) {
			return r, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownRole, s)
}

func (r Role) Valid() bool {
	_, ok := rank[r]
	return ok
}

func (r Role) AtLeast(other Role) bool {
	return rank[r] >= rank[other] && r.Valid()
}

func (r Role) String() string { return string(r) }

// Principal is the identity attached to an authenticated request.
type Principal struct {
	ID       uint   `json:"id"`
	Username string `json:"username"`
	Role     Role   `json:"role"`
}

func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}

type PermissionGrant struct {
	Role     Role   `json:"role"`
	Endpoint string `json:"endpoint"`
	Method   string `json:"method"`
}

// Normalize trims the grant and upper-cases the method so that lookups
// compare like with like.
func (g PermissionGrant) Normalize() PermissionGrant {
	return PermissionGrant{
		Role:     g.Role,
		Endpoint: strings.TrimSpace(g.Endpoint),
		Method:   strings.ToUpper(strings.TrimSpace(g.Method)),
	}
}
