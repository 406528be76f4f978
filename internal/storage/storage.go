// Package storage picks the repository implementations for a process:
// Postgres when a pool is configured, in-memory otherwise.
package storage

import (
	"context"
	"time"

	"keystone/internal/audit"
	idmodels "keystone/internal/identity/models"
	recoverystore "keystone/internal/identity/store/recovery"
	userstore "keystone/internal/identity/store/user"
	"keystone/internal/platform/database"
	"keystone/internal/platform/redis"
	psmodels "keystone/internal/portalsession/models"
	sessionstore "keystone/internal/portalsession/store"
	tenancy "keystone/internal/tenancy/models"
	appstore "keystone/internal/tenancy/store/app"
	grantstore "keystone/internal/tenancy/store/grant"
	membershipstore "keystone/internal/tenancy/store/membership"
	tenantstore "keystone/internal/tenancy/store/tenant"
	id "keystone/pkg/domain"
)

type UserStore interface {
	Create(ctx context.Context, user *idmodels.Identity) error
	FindByID(ctx context.Context, userID id.UserID) (*idmodels.Identity, error)
	FindByEmail(ctx context.Context, email string) (*idmodels.Identity, error)
	UpdatePassword(ctx context.Context, userID id.UserID, hash string, state idmodels.ResetState, now time.Time) error
	SetResetState(ctx context.Context, userID id.UserID, state idmodels.ResetState, now time.Time) error
	SetLocked(ctx context.Context, userID id.UserID, locked bool, now time.Time) error
	SetHyper(ctx context.Context, userID id.UserID, hyper bool, now time.Time) error
	UpdateName(ctx context.Context, userID id.UserID, name string, now time.Time) error
}

type RecoveryStore interface {
	Create(ctx context.Context, token *idmodels.RecoveryToken) error
	Consume(ctx context.Context, tokenHash string, now time.Time) (*idmodels.RecoveryToken, error)
}

type TenantStore interface {
	Create(ctx context.Context, tenant *tenancy.Tenant) error
	FindByID(ctx context.Context, tenantID id.TenantID) (*tenancy.Tenant, error)
	FindByName(ctx context.Context, name string) (*tenancy.Tenant, error)
	List(ctx context.Context) ([]*tenancy.Tenant, error)
}

type AppStore interface {
	Create(ctx context.Context, app *tenancy.App) error
	FindBySlug(ctx context.Context, slug string) (*tenancy.App, error)
	FindByID(ctx context.Context, appID id.AppID) (*tenancy.App, error)
	List(ctx context.Context) ([]*tenancy.App, error)
}

type MembershipStore interface {
	Create(ctx context.Context, m *tenancy.Membership) error
	Find(ctx context.Context, userID id.UserID, tenantID id.TenantID) (*tenancy.Membership, error)
	ListByTenant(ctx context.Context, tenantID id.TenantID) ([]*tenancy.Membership, error)
	ListByUser(ctx context.Context, userID id.UserID) ([]*tenancy.Membership, error)
	UpdateRole(ctx context.Context, userID id.UserID, tenantID id.TenantID, role tenancy.Role) error
	Delete(ctx context.Context, userID id.UserID, tenantID id.TenantID) error
}

type GrantStore interface {
	Upsert(ctx context.Context, g *tenancy.Grant) error
	FindTenantGrant(ctx context.Context, userID id.UserID, appID id.AppID, tenantID id.TenantID) (*tenancy.Grant, error)
	FindGlobalGrant(ctx context.Context, userID id.UserID, appID id.AppID) (*tenancy.Grant, error)
	ListByUser(ctx context.Context, userID id.UserID, tenantID *id.TenantID) ([]*tenancy.Grant, error)
	ListByTenant(ctx context.Context, tenantID id.TenantID) ([]*tenancy.Grant, error)
	Delete(ctx context.Context, userID id.UserID, appID id.AppID, tenantID *id.TenantID) error
	DeleteByMembership(ctx context.Context, userID id.UserID, tenantID id.TenantID) (int, error)
}

type SessionStore interface {
	Create(ctx context.Context, session *psmodels.Session) error
	FindByTokenHash(ctx context.Context, tokenHash string) (*psmodels.Session, error)
	SetActiveTenant(ctx context.Context, tokenHash string, tenantID *id.TenantID) error
	Delete(ctx context.Context, tokenHash string) error
	DeleteByUser(ctx context.Context, userID id.UserID) (int, error)
}

// Repositories is the full set of stores behind the portal.
type Repositories struct {
	Users       UserStore
	Recovery    RecoveryStore
	Tenants     TenantStore
	Apps        AppStore
	Memberships MembershipStore
	Grants      GrantStore
	Sessions    SessionStore
	Audit       audit.Store
	Durable     bool
}

// Open returns Postgres-backed repositories when pool is non-nil and Redis
// sessions when rc is non-nil. Either may be nil for a single-process dev
// portal, in which case data lives only as long as the process.
func Open(pool *database.Pool, rc *redis.Client) *Repositories {
	repos := &Repositories{}
	if pool != nil {
		db := pool.DB()
		repos.Users = userstore.NewPostgres(db)
		repos.Recovery = recoverystore.NewPostgres(db)
		repos.Tenants = tenantstore.NewPostgres(db)
		repos.Apps = appstore.NewPostgres(db)
		repos.Memberships = membershipstore.NewPostgres(db)
		repos.Grants = grantstore.NewPostgres(db)
		repos.Audit = audit.NewPostgresStore(db)
		repos.Durable = true
	} else {
		repos.Users = userstore.NewInMemory()
		repos.Recovery = recoverystore.NewInMemory()
		repos.Tenants = tenantstore.NewInMemory()
		repos.Apps = appstore.NewInMemory()
		repos.Memberships = membershipstore.NewInMemory()
		repos.Grants = grantstore.NewInMemory()
		repos.Audit = audit.NewInMemoryStore()
	}
	if rc != nil {
		repos.Sessions = sessionstore.NewRedis(rc.Client)
	} else {
		repos.Sessions = sessionstore.NewInMemory()
	}
	return repos
}
