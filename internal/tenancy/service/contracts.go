package service

import (
	"context"

	"keystone/internal/audit"
	"keystone/internal/email"
	idmodels "keystone/internal/identity/models"
	identity "keystone/internal/identity/service"
	"keystone/internal/tenancy/models"
	id "keystone/pkg/domain"
)

type TenantStore interface {
	Create(ctx context.Context, tenant *models.Tenant) error
	FindByID(ctx context.Context, tenantID id.TenantID) (*models.Tenant, error)
	List(ctx context.Context) ([]*models.Tenant, error)
}

type AppStore interface {
	Create(ctx context.Context, app *models.App) error
	FindByID(ctx context.Context, appID id.AppID) (*models.App, error)
	List(ctx context.Context) ([]*models.App, error)
}

type MembershipStore interface {
	Create(ctx context.Context, m *models.Membership) error
	Find(ctx context.Context, userID id.UserID, tenantID id.TenantID) (*models.Membership, error)
	ListByTenant(ctx context.Context, tenantID id.TenantID) ([]*models.Membership, error)
	ListByUser(ctx context.Context, userID id.UserID) ([]*models.Membership, error)
	UpdateRole(ctx context.Context, userID id.UserID, tenantID id.TenantID, role models.Role) error
	Delete(ctx context.Context, userID id.UserID, tenantID id.TenantID) error
}

type GrantStore interface {
	Upsert(ctx context.Context, g *models.Grant) error
	ListByUser(ctx context.Context, userID id.UserID, tenantID *id.TenantID) ([]*models.Grant, error)
	ListByTenant(ctx context.Context, tenantID id.TenantID) ([]*models.Grant, error)
	Delete(ctx context.Context, userID id.UserID, appID id.AppID, tenantID *id.TenantID) error
	DeleteByMembership(ctx context.Context, userID id.UserID, tenantID id.TenantID) (int, error)
}

// Gate answers admin checks and keeps its app cache warm.
type Gate interface {
	RequireTenantAdmin(ctx context.Context, actor models.Actor, tenantID id.TenantID) (models.Role, error)
	Remember(app *models.App)
}

// Identities is the credential store as seen by tenant administration.
type Identities interface {
	Get(ctx context.Context, userID id.UserID) (*idmodels.Identity, error)
	Provision(ctx context.Context, in identity.ProvisionInput) (*idmodels.Identity, bool, error)
	IssueRecoveryLink(ctx context.Context, userID id.UserID) (string, error)
	SendRecovery(ctx context.Context, actorID, userID id.UserID) error
	SetLocked(ctx context.Context, actorID, userID id.UserID, locked bool) error
	SetTemporaryPassword(ctx context.Context, actorID, userID id.UserID, password string) error
	UpdateName(ctx context.Context, userID id.UserID, name string) error
}

// SessionRevoker ends a user's portal sessions.
type SessionRevoker interface {
	RevokeUser(ctx context.Context, userID id.UserID) error
}

type Mailer interface {
	Send(ctx context.Context, msg email.Message) error
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event)
}
