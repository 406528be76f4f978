package models

import (
	"context"

	tenancy "keystone/internal/tenancy/models"
	id "keystone/pkg/domain"
)

// Principal is the authenticated portal user for one request, rebuilt from
// the session and a fresh identity read every time.
type Principal struct {
	UserID         id.UserID
	Email          string
	Name           string
	IsHyper        bool
	MustReset      bool
	SessionID      id.SessionID
	ActiveTenantID *id.TenantID
	TenantRole     tenancy.Role // empty without an active tenant
}

// Actor converts the principal for tenancy administration.
func (p *Principal) Actor() tenancy.Actor {
	return tenancy.Actor{UserID: p.UserID, IsHyper: p.IsHyper}
}

type principalKey struct{}

func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(*Principal)
	return p, ok && p != nil
}
