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

// authorizeGrant checks the caller may manage grants in scope: tenant admins
// for their tenant, hyper users for global grants. Tenant grants also need
// the user to be a member.
func (s *Service) authorizeGrant(ctx context.Context, actor models.Actor, userID id.UserID, tenantID *id.TenantID) error {
	if tenantID == nil {
		return requireHyper(actor)
	}
	if _, err := s.gate.RequireTenantAdmin(ctx, actor, *tenantID); err != nil {
		return err
	}
	if _, err := s.memberships.Find(ctx, userID, *tenantID); err != nil {
		return wrapMemberErr(err, "failed to load member")
	}
	return nil
}

// SetGrant creates or replaces a grant.
func (s *Service) SetGrant(ctx context.Context, actor models.Actor, cmd GrantCommand) (*models.Grant, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	if err := s.authorizeGrant(ctx, actor, cmd.UserID, cmd.TenantID); err != nil {
		return nil, err
	}
	app, err := s.apps.FindByID(ctx, cmd.AppID)
	if err != nil {
		return nil, wrapAppErr(err, "failed to load app")
	}

	grant := &models.Grant{
		UserID:    cmd.UserID,
		AppID:     cmd.AppID,
		TenantID:  cmd.TenantID,
		Role:      cmd.Role,
		CreatedAt: requestcontext.Now(ctx),
	}
	if err := s.grants.Upsert(ctx, grant); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save grant")
	}
	s.emit(ctx, audit.Event{
		Action:    audit.ActionGrantSet,
		ActorID:   actorID(actor),
		SubjectID: cmd.UserID.String(),
		TenantID:  tenantIDString(cmd.TenantID),
		AppSlug:   app.Slug,
		Reason:    string(cmd.Role),
	})
	return grant, nil
}

func (s *Service) RevokeGrant(ctx context.Context, actor models.Actor, userID id.UserID, appID id.AppID, tenantID *id.TenantID) error {
	if err := s.authorizeGrant(ctx, actor, userID, tenantID); err != nil {
		return err
	}
	if err := s.grants.Delete(ctx, userID, appID, tenantID); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "grant not found")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to revoke grant")
	}
	ev := audit.Event{
		Action:    audit.ActionGrantRevoked,
		ActorID:   actorID(actor),
		SubjectID: userID.String(),
		TenantID:  tenantIDString(tenantID),
	}
	if app, err := s.apps.FindByID(ctx, appID); err == nil {
		ev.AppSlug = app.Slug
	}
	s.emit(ctx, ev)
	return nil
}

// ListTenantGrants lists every grant scoped to tenantID.
func (s *Service) ListTenantGrants(ctx context.Context, actor models.Actor, tenantID id.TenantID) ([]*models.Grant, error) {
	if _, err := s.gate.RequireTenantAdmin(ctx, actor, tenantID); err != nil {
		return nil, err
	}
	grants, err := s.grants.ListByTenant(ctx, tenantID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list grants")
	}
	return grants, nil
}

// ListGlobalGrants lists a user's tenant-independent grants.
func (s *Service) ListGlobalGrants(ctx context.Context, actor models.Actor, userID id.UserID) ([]*models.Grant, error) {
	if err := requireHyper(actor); err != nil {
		return nil, err
	}
	grants, err := s.grants.ListByUser(ctx, userID, nil)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list grants")
	}
	return grants, nil
}
