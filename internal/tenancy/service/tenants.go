package service

import (
	"context"
	"errors"

	"keystone/internal/audit"
	"keystone/internal/sentinel"
	"keystone/internal/tenancy/models"
	id "keystone/pkg/domain"
	dErrors "keystone/pkg/domain-errors"
	"keystone/pkg/requestcontext"
)

// CreateTenant is limited to hyper users.
func (s *Service) CreateTenant(ctx context.Context, actor models.Actor, name string) (*models.Tenant, error) {
	if err := requireHyper(actor); err != nil {
		return nil, err
	}
	tenant, err := models.NewTenant(id.NewTenantID(), name, requestcontext.Now(ctx))
	if err != nil {
		return nil, err
	}
	if err := s.tenants.Create(ctx, tenant); err != nil {
		if errors.Is(err, sentinel.ErrAlreadyExists) {
			return nil, dErrors.New(dErrors.CodeConflict, "tenant name must be unique")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create tenant")
	}
	if s.metrics != nil {
		s.metrics.IncTenantsCreated()
	}
	s.emit(ctx, audit.Event{Action: audit.ActionTenantCreated, ActorID: actorID(actor), TenantID: tenant.ID.String()})
	s.logger.InfoContext(ctx, "tenant created", "tenant_id", tenant.ID.String())
	return tenant, nil
}

// ListTenants returns every tenant to hyper users and the caller's own
// tenants to everyone else.
func (s *Service) ListTenants(ctx context.Context, actor models.Actor) ([]models.TenantAccess, error) {
	if actor.IsHyper {
		tenants, err := s.tenants.List(ctx)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list tenants")
		}
		out := make([]models.TenantAccess, 0, len(tenants))
		for _, t := range tenants {
			out = append(out, models.TenantAccess{Tenant: t, Role: models.RoleOwner})
		}
		return out, nil
	}
	return s.TenantsForUser(ctx, actor.UserID)
}

// TenantsForUser lists the tenants userID is a member of.
func (s *Service) TenantsForUser(ctx context.Context, userID id.UserID) ([]models.TenantAccess, error) {
	memberships, err := s.memberships.ListByUser(ctx, userID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list memberships")
	}
	out := make([]models.TenantAccess, 0, len(memberships))
	for _, m := range memberships {
		tenant, err := s.tenants.FindByID(ctx, m.TenantID)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				s.logger.WarnContext(ctx, "membership references missing tenant", "tenant_id", m.TenantID.String())
				continue
			}
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load tenant")
		}
		out = append(out, models.TenantAccess{Tenant: tenant, Role: m.Role})
	}
	return out, nil
}

// GetTenant is visible to hyper users and members of the tenant.
func (s *Service) GetTenant(ctx context.Context, actor models.Actor, tenantID id.TenantID) (*models.Tenant, error) {
	if !actor.IsHyper {
		if _, err := s.memberships.Find(ctx, actor.UserID, tenantID); err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return nil, dErrors.New(dErrors.CodeForbidden, "not a member of this tenant")
			}
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load membership")
		}
	}
	tenant, err := s.tenants.FindByID(ctx, tenantID)
	if err != nil {
		return nil, wrapTenantErr(err, "failed to load tenant")
	}
	return tenant, nil
}

// CreateApp registers a downstream app. Slugs are unique and immutable.
func (s *Service) CreateApp(ctx context.Context, actor models.Actor, slug, name, domain string) (*models.App, error) {
	if err := requireHyper(actor); err != nil {
		return nil, err
	}
	app, err := models.NewApp(id.NewAppID(), slug, name, domain, requestcontext.Now(ctx))
	if err != nil {
		return nil, err
	}
	if err := s.apps.Create(ctx, app); err != nil {
		if errors.Is(err, sentinel.ErrAlreadyExists) {
			return nil, dErrors.New(dErrors.CodeConflict, "app slug already exists")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create app")
	}
	s.gate.Remember(app)
	s.emit(ctx, audit.Event{Action: audit.ActionAppCreated, ActorID: actorID(actor), AppSlug: app.Slug})
	return app, nil
}

func (s *Service) ListApps(ctx context.Context) ([]*models.App, error) {
	apps, err := s.apps.List(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list apps")
	}
	return apps, nil
}
