package models

import (
	"time"

	id "keystone/pkg/domain"
)

// Membership links a user to a tenant with a role. At most one per (user, tenant).
type Membership struct {
	UserID    id.UserID
	TenantID  id.TenantID
	Role      Role
	CreatedAt time.Time
}

// Grant gives a user access to an app. TenantID nil makes it a global grant.
type Grant struct {
	UserID    id.UserID
	AppID     id.AppID
	TenantID  *id.TenantID
	Role      Role
	CreatedAt time.Time
}

func (g *Grant) IsGlobal() bool { return g.TenantID == nil }

// EffectiveRole is the stored role, or DefaultAppRole when none was stored.
func (g *Grant) EffectiveRole() Role {
	if g.Role == "" {
		return DefaultAppRole
	}
	return g.Role
}

// Actor is the authenticated caller of an administrative operation.
type Actor struct {
	UserID  id.UserID
	IsHyper bool
}

// AppAccess is one app a user may launch, with the role the token will carry.
type AppAccess struct {
	App  *App
	Role Role
}
