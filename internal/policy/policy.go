package policy

import (
	"context"
	"fmt"

	"github.com/Skotchmaster/usergate/internal/domain"
)

type PermissionStore interface {
	GrantsFor(ctx context.Context, role domain.Role) ([]domain.PermissionGrant, error)
	AddGrant(ctx context.Context, g domain.PermissionGrant) error
}

// IsSelfOrAdmin guards per-record operations: a user may act on their own
// record, an admin on any.
func IsSelfOrAdmin(p domain.Principal, targetID uint) bool {
	return p.ID == targetID || p.IsAdmin()
}

func RequiresAdmin(p domain.Principal) bool {
	return p.IsAdmin()
}

// Policy evaluates the data driven grant table. It is independent of the
// admin and self shortcuts above; endpoints choose which check applies.
type Policy struct {
	Grants PermissionStore
}

func New(grants PermissionStore) *Policy {
	return &Policy{Grants: grants}
}

// HasGrant reports whether an exact (role, endpoint, method) row exists.
// Anything else, including a store error, is a denial.
func (p *Policy) HasGrant(ctx context.Context, role domain.Role, endpoint, method string) (bool, error) {
	want := domain.PermissionGrant{Role: role, Endpoint: endpoint, Method: method}.Normalize()

	grants, err := p.Grants.GrantsFor(ctx, role)
	if err != nil {
		return false, fmt.Errorf("load grants for %s: %w", role, err)
	}
	for _, g := range grants {
		if g.Normalize() == want {
			return true, nil
		}
	}
	return false, nil
}

func (p *Policy) AddGrant(ctx context.Context, g domain.PermissionGrant) error {
	if !g.Role.Valid() {
		return fmt.Errorf("%w: %q", domain.ErrUnknownRole, g.Role)
	}
	g = g.Normalize()
	if g.Endpoint == "" || g.Method == "" {
		return fmt.Errorf("%w: endpoint and method are required", domain.ErrInvalidGrant)
	}
	return p.Grants.AddGrant(ctx, g)
}

func (p *Policy) GrantsFor(ctx context.Context, role domain.Role) ([]domain.PermissionGrant, error) {
	return p.Grants.GrantsFor(ctx, role)
}
