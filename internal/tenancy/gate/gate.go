// Package gate answers the portal's authorization questions: a user's role
// in a tenant, whether the user may reach an app, and with which role.
//
// App lookups resolve the slug first and fail closed when it is unknown.
// A lookup is either tenant-scoped or global, chosen by whether a tenant
// context is present; the two grant kinds are never probed together.
package gate

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/patrickmn/go-cache"
	"go.opentelemetry.io/otel/attribute"

	"keystone/internal/platform/metrics"
	"keystone/internal/platform/tracing"
	"keystone/internal/sentinel"
	"keystone/internal/tenancy/models"
	id "keystone/pkg/domain"
	dErrors "keystone/pkg/domain-errors"
)

const DefaultCacheTTL = 5 * time.Minute

type AppStore interface {
	FindBySlug(ctx context.Context, slug string) (*models.App, error)
	FindByID(ctx context.Context, appID id.AppID) (*models.App, error)
}

type MembershipStore interface {
	Find(ctx context.Context, userID id.UserID, tenantID id.TenantID) (*models.Membership, error)
}

type GrantStore interface {
	FindTenantGrant(ctx context.Context, userID id.UserID, appID id.AppID, tenantID id.TenantID) (*models.Grant, error)
	FindGlobalGrant(ctx context.Context, userID id.UserID, appID id.AppID) (*models.Grant, error)
	ListByUser(ctx context.Context, userID id.UserID, tenantID *id.TenantID) ([]*models.Grant, error)
}

// Decision is a successful authorization for one app.
type Decision struct {
	App      *models.App
	Role     models.Role
	TenantID *id.TenantID
}

type Gate struct {
	apps        AppStore
	memberships MembershipStore
	grants      GrantStore
	cache       *cache.Cache
	tracer      tracing.Tracer
	metrics     *metrics.Metrics
	logger      *slog.Logger
}

type Option func(*Gate)

// WithCacheTTL sets how long resolved apps stay cached. Zero disables caching.
func WithCacheTTL(ttl time.Duration) Option {
	return func(g *Gate) {
		if ttl <= 0 {
			g.cache = nil
			return
		}
		g.cache = cache.New(ttl, 2*ttl)
	}
}

func WithTracer(t tracing.Tracer) Option {
	return func(g *Gate) {
		g.tracer = t
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(g *Gate) {
		g.metrics = m
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(g *Gate) {
		g.logger = logger
	}
}

func New(apps AppStore, memberships MembershipStore, grants GrantStore, opts ...Option) *Gate {
	g := &Gate{
		apps:        apps,
		memberships: memberships,
		grants:      grants,
		cache:       cache.New(DefaultCacheTTL, 2*DefaultCacheTTL),
		tracer:      tracing.New("keystone/gate"),
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// RoleInTenant returns the user's tenant role. ok is false when the user
// has no membership.
func (g *Gate) RoleInTenant(ctx context.Context, userID id.UserID, tenantID id.TenantID) (role models.Role, ok bool, err error) {
	ctx, span := g.tracer.Start(ctx, "gate.role_in_tenant",
		attribute.String("tenant_id", tenantID.String()))
	defer func() { span.End(err) }()

	m, err := g.memberships.Find(ctx, userID, tenantID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return "", false, nil
		}
		return "", false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load membership")
	}
	return m.Role, true, nil
}

// HasAppAccess reports whether a grant row exists for the user and app in
// the given scope. An unknown slug is simply no access.
func (g *Gate) HasAppAccess(ctx context.Context, userID id.UserID, slug string, tenantID *id.TenantID) (bool, error) {
	_, ok, err := g.RoleForApp(ctx, userID, slug, tenantID)
	return ok, err
}

// RoleForApp returns the role stored on the matching grant.
func (g *Gate) RoleForApp(ctx context.Context, userID id.UserID, slug string, tenantID *id.TenantID) (role models.Role, ok bool, err error) {
	ctx, span := g.tracer.Start(ctx, "gate.role_for_app", attribute.String("app_slug", slug))
	defer func() { span.End(err) }()

	app, err := g.ResolveApp(ctx, slug)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeNotFound) {
			return "", false, nil
		}
		return "", false, err
	}
	grant, err := g.findGrant(ctx, userID, app.ID, tenantID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return "", false, nil
		}
		return "", false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load app grant")
	}
	return grant.EffectiveRole(), true, nil
}

// ResolveApp maps a slug to its app. Unknown slugs are NotFound.
func (g *Gate) ResolveApp(ctx context.Context, slug string) (*models.App, error) {
	if err := models.ValidateSlug(slug); err != nil {
		return nil, dErrors.New(dErrors.CodeNotFound, "app not found")
	}
	if g.cache != nil {
		if cached, ok := g.cache.Get(slugKey(slug)); ok {
			clone := *cached.(*models.App)
			return &clone, nil
		}
	}
	app, err := g.apps.FindBySlug(ctx, slug)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "app not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to resolve app")
	}
	g.Remember(app)
	return app, nil
}

// Remember caches an app. Misses are never cached so a newly registered
// slug is visible immediately.
func (g *Gate) Remember(app *models.App) {
	if g.cache == nil || app == nil {
		return
	}
	clone := *app
	g.cache.SetDefault(slugKey(app.Slug), &clone)
	g.cache.SetDefault(idKey(app.ID), &clone)
}

// Authorize is the issuance check. With a tenant context the user must be a
// current member of that tenant and hold a grant scoped to it; without one
// the user must hold a global grant.
func (g *Gate) Authorize(ctx context.Context, userID id.UserID, slug string, tenantID *id.TenantID) (decision *Decision, err error) {
	ctx, span := g.tracer.Start(ctx, "gate.authorize", attribute.String("app_slug", slug))
	defer func() {
		span.End(err)
		g.observe(err)
	}()

	app, err := g.ResolveApp(ctx, slug)
	if err != nil {
		return nil, err
	}
	if tenantID != nil {
		span.SetAttributes(attribute.String("tenant_id", tenantID.String()))
		_, member, err := g.RoleInTenant(ctx, userID, *tenantID)
		if err != nil {
			return nil, err
		}
		if !member {
			return nil, dErrors.New(dErrors.CodeForbidden, "no access to this app")
		}
	}
	grant, err := g.findGrant(ctx, userID, app.ID, tenantID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeForbidden, "no access to this app")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load app grant")
	}
	return &Decision{App: app, Role: grant.EffectiveRole(), TenantID: tenantID}, nil
}

// AppsForUser lists the apps Authorize would allow in the same scope.
func (g *Gate) AppsForUser(ctx context.Context, userID id.UserID, tenantID *id.TenantID) ([]models.AppAccess, error) {
	if tenantID != nil {
		_, member, err := g.RoleInTenant(ctx, userID, *tenantID)
		if err != nil {
			return nil, err
		}
		if !member {
			return []models.AppAccess{}, nil
		}
	}
	grants, err := g.grants.ListByUser(ctx, userID, tenantID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list app grants")
	}
	out := make([]models.AppAccess, 0, len(grants))
	for _, grant := range grants {
		app, err := g.appByID(ctx, grant.AppID)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				g.logger.WarnContext(ctx, "grant references missing app", "app_id", grant.AppID.String())
				continue
			}
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load app")
		}
		out = append(out, models.AppAccess{App: app, Role: grant.EffectiveRole()})
	}
	return out, nil
}

// RequireTenantAdmin returns the role the actor administers the tenant with.
// Hyper users act as owners of every tenant.
func (g *Gate) RequireTenantAdmin(ctx context.Context, actor models.Actor, tenantID id.TenantID) (models.Role, error) {
	if actor.IsHyper {
		return models.RoleOwner, nil
	}
	role, ok, err := g.RoleInTenant(ctx, actor.UserID, tenantID)
	if err != nil {
		return "", err
	}
	if !ok || !role.CanAdminister() {
		return "", dErrors.New(dErrors.CodeForbidden, "tenant admin role required")
	}
	return role, nil
}

func (g *Gate) findGrant(ctx context.Context, userID id.UserID, appID id.AppID, tenantID *id.TenantID) (*models.Grant, error) {
	if tenantID != nil {
		return g.grants.FindTenantGrant(ctx, userID, appID, *tenantID)
	}
	return g.grants.FindGlobalGrant(ctx, userID, appID)
}

func (g *Gate) appByID(ctx context.Context, appID id.AppID) (*models.App, error) {
	if g.cache != nil {
		if cached, ok := g.cache.Get(idKey(appID)); ok {
			clone := *cached.(*models.App)
			return &clone, nil
		}
	}
	app, err := g.apps.FindByID(ctx, appID)
	if err != nil {
		return nil, err
	}
	g.Remember(app)
	return app, nil
}

func (g *Gate) observe(err error) {
	if g.metrics == nil {
		return
	}
	switch {
	case err == nil:
		g.metrics.IncGateLookup("allowed")
	case dErrors.HasCode(err, dErrors.CodeForbidden):
		g.metrics.IncGateLookup("denied")
	case dErrors.HasCode(err, dErrors.CodeNotFound):
		g.metrics.IncGateLookup("not_found")
	default:
		g.metrics.IncGateLookup("error")
	}
}

func slugKey(slug string) string  { return "slug:" + slug }
func idKey(appID id.AppID) string { return "id:" + appID.String() }
