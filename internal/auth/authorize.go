package auth

import (
	"context"
	"errors"

	"github.com/samber/oops"
)

// RoleSource reads an account's current role from storage. It returns
// ErrNotFound when the account no longer exists.
type RoleSource interface {
	CurrentRole(ctx context.Context, kind Kind, id int64) (Role, error)
}

// Requirement describes who may invoke an operation.
type Requirement struct {
	Kind  Kind
	Roles []Role
}

var (
	RequireSuperAdmin   = Requirement{Kind: KindAdmin, Roles: []Role{RoleSuperAdmin}}
	RequireOrganization = Requirement{Kind: KindUser, Roles: OrganizationRoles}
)

// Gate decides access from the stored role, never the role inside the token.
type Gate struct {
	roles RoleSource
}

func NewGate(roles RoleSource) *Gate {
	return &Gate{roles: roles}
}

// Authorize returns nil when p satisfies req. A missing principal yields
// ErrUnauthenticated; every other refusal is ErrUnauthorized.
func (g *Gate) Authorize(ctx context.Context, p Principal, req Requirement) error {
	if p.ID <= 0 {
		return ErrUnauthenticated
	}
	if req.Kind != "" && p.Kind != req.Kind {
		return ErrUnauthorized
	}
	role, err := g.roles.CurrentRole(ctx, p.Kind, p.ID)
	if errors.Is(err, ErrNotFound) {
		return ErrUnauthorized
	}
	if err != nil {
		return oops.Code("AUTH_ROLE_LOOKUP").With("kind", string(p.Kind)).Wrap(err)
	}
	if len(req.Roles) > 0 && !role.AnyOf(req.Roles...) {
		return ErrUnauthorized
	}
	return nil
}
