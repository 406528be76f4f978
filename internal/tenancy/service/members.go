package service

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"keystone/internal/audit"
	"keystone/internal/email"
	idmodels "keystone/internal/identity/models"
	identity "keystone/internal/identity/service"
	"keystone/internal/sentinel"
	"keystone/internal/tenancy/models"
	id "keystone/pkg/domain"
	dErrors "keystone/pkg/domain-errors"
	"keystone/pkg/platform/privacy"
	"keystone/pkg/requestcontext"
)

// InviteResult describes what an invite changed. AlreadyLinked is the benign
// duplicate case: the membership existed and was left as it was.
type InviteResult struct {
	Member        *models.Member
	Created       bool
	AlreadyLinked bool
	Grants        []*models.Grant
	EmailSent     bool
}

// ListMembers returns the tenant's members with their identity fields.
// Identities are read concurrently.
func (s *Service) ListMembers(ctx context.Context, actor models.Actor, tenantID id.TenantID) ([]*models.Member, error) {
	if _, err := s.gate.RequireTenantAdmin(ctx, actor, tenantID); err != nil {
		return nil, err
	}
	memberships, err := s.memberships.ListByTenant(ctx, tenantID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list members")
	}

	members := make([]*models.Member, len(memberships))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(memberLookupLimit)
	for i, m := range memberships {
		g.Go(func() error {
			user, err := s.identities.Get(gctx, m.UserID)
			if err != nil {
				if dErrors.HasCode(err, dErrors.CodeNotFound) {
					s.logger.WarnContext(ctx, "membership references missing user", "user_id", m.UserID.String())
					return nil
				}
				return err
			}
			members[i] = toMember(m, user)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load members")
	}

	out := make([]*models.Member, 0, len(members))
	for _, m := range members {
		if m != nil {
			out = append(out, m)
		}
	}
	return out, nil
}

// InviteMember links a user to the tenant by email, creating the identity
// if the address is new, and grants the listed apps in this tenant. Only an
// owner may invite another owner. The welcome email is best-effort.
func (s *Service) InviteMember(ctx context.Context, actor models.Actor, cmd InviteCommand) (*InviteResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	actorRole, err := s.gate.RequireTenantAdmin(ctx, actor, cmd.TenantID)
	if err != nil {
		return nil, err
	}
	if cmd.Role == models.RoleOwner && actorRole != models.RoleOwner {
		return nil, dErrors.New(dErrors.CodeForbidden, "only an owner can add an owner")
	}

	tenant, err := s.tenants.FindByID(ctx, cmd.TenantID)
	if err != nil {
		return nil, wrapTenantErr(err, "failed to load tenant")
	}
	for _, appID := range cmd.AppIDs {
		if _, err := s.apps.FindByID(ctx, appID); err != nil {
			return nil, wrapAppErr(err, "failed to load app")
		}
	}

	user, created, err := s.identities.Provision(ctx, identity.ProvisionInput{
		Email:     cmd.Email,
		Name:      cmd.Name,
		Password:  cmd.Password,
		MustReset: cmd.Password != "",
	})
	if err != nil {
		return nil, err
	}

	if !created && cmd.Password != "" {
		// An existing account keeps its credentials; linking grants no say over them.
		s.logger.InfoContext(ctx, "invite password ignored for existing account",
			"user_id", user.ID.String(),
			"tenant_id", tenant.ID.String(),
		)
	}

	now := requestcontext.Now(ctx)
	result := &InviteResult{Created: created}
	membership := &models.Membership{UserID: user.ID, TenantID: tenant.ID, Role: cmd.Role, CreatedAt: now}
	if err := s.memberships.Create(ctx, membership); err != nil {
		if !errors.Is(err, sentinel.ErrAlreadyExists) {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to add member")
		}
		result.AlreadyLinked = true
		existing, err := s.memberships.Find(ctx, user.ID, tenant.ID)
		if err != nil {
			return nil, wrapMemberErr(err, "failed to load member")
		}
		membership = existing
	}
	result.Member = toMember(membership, user)

	tenantID := tenant.ID
	for _, appID := range cmd.AppIDs {
		grant := &models.Grant{UserID: user.ID, AppID: appID, TenantID: &tenantID, Role: cmd.AppRole, CreatedAt: now}
		if err := s.grants.Upsert(ctx, grant); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to grant app access")
		}
		result.Grants = append(result.Grants, grant)
	}

	if !result.AlreadyLinked {
		if s.metrics != nil {
			s.metrics.IncMembersInvited()
		}
		s.emit(ctx, audit.Event{
			Action:    audit.ActionMemberInvited,
			ActorID:   actorID(actor),
			SubjectID: user.ID.String(),
			TenantID:  tenant.ID.String(),
			Reason:    string(cmd.Role),
		})
	}
	if created {
		result.EmailSent = s.sendWelcome(ctx, user, tenant, cmd.Password != "")
	}
	return result, nil
}

// sendWelcome reports whether the email went out. Failures are logged only.
func (s *Service) sendWelcome(ctx context.Context, user *idmodels.Identity, tenant *models.Tenant, temporaryPassword bool) bool {
	vars := email.WelcomeVars{
		Name:              user.DisplayName(),
		TenantName:        tenant.Name,
		LoginURL:          s.portalBaseURL + loginPath,
		TemporaryPassword: temporaryPassword,
	}
	if !temporaryPassword {
		link, err := s.identities.IssueRecoveryLink(ctx, user.ID)
		if err != nil {
			s.logger.WarnContext(ctx, "welcome email skipped: no recovery link", "error", err, "user_id", user.ID.String())
			return false
		}
		vars.RecoveryLink = link
	}
	msg, err := email.Welcome(user.Email, vars)
	if err == nil {
		err = s.mailer.Send(ctx, msg)
	}
	if err != nil {
		s.logger.WarnContext(ctx, "welcome email not sent",
			"error", err,
			"email", privacy.MaskEmail(user.Email),
			"tenant_id", tenant.ID.String(),
		)
		return false
	}
	return true
}

// UpdateMember applies an admin's changes to a member. Admins cannot lock
// themselves, change their own role, or modify an owner; only an owner can
// grant the owner role.
func (s *Service) UpdateMember(ctx context.Context, actor models.Actor, cmd UpdateMemberCommand) (*models.Member, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}
	actorRole, err := s.gate.RequireTenantAdmin(ctx, actor, cmd.TenantID)
	if err != nil {
		return nil, err
	}
	target, err := s.memberships.Find(ctx, cmd.UserID, cmd.TenantID)
	if err != nil {
		return nil, wrapMemberErr(err, "failed to load member")
	}

	self := actor.UserID == cmd.UserID
	if self && cmd.AccountLocked != nil && *cmd.AccountLocked {
		return nil, dErrors.New(dErrors.CodeForbidden, "you cannot lock your own account")
	}
	if self && cmd.Role != nil && *cmd.Role != target.Role {
		return nil, dErrors.New(dErrors.CodeForbidden, "you cannot change your own role")
	}
	if self && cmd.TemporaryPassword != nil {
		return nil, dErrors.New(dErrors.CodeForbidden, "use the change password form for your own account")
	}
	if !self && target.Role == models.RoleOwner && actorRole != models.RoleOwner {
		return nil, dErrors.New(dErrors.CodeForbidden, "only an owner can modify an owner")
	}
	if cmd.Role != nil && *cmd.Role == models.RoleOwner && actorRole != models.RoleOwner {
		return nil, dErrors.New(dErrors.CodeForbidden, "only an owner can assign the owner role")
	}

	if cmd.touchesAccount() && !self {
		if err := s.requireAccountAuthority(ctx, actor, cmd.UserID, cmd.TenantID); err != nil {
			return nil, err
		}
	}

	if cmd.Role != nil && *cmd.Role != target.Role {
		if err := s.memberships.UpdateRole(ctx, cmd.UserID, cmd.TenantID, *cmd.Role); err != nil {
			return nil, wrapMemberErr(err, "failed to update role")
		}
		target.Role = *cmd.Role
	}
	if cmd.Name != nil {
		if err := s.identities.UpdateName(ctx, cmd.UserID, *cmd.Name); err != nil {
			return nil, err
		}
	}
	if cmd.TemporaryPassword != nil {
		if err := s.identities.SetTemporaryPassword(ctx, actor.UserID, cmd.UserID, *cmd.TemporaryPassword); err != nil {
			return nil, err
		}
	}
	if cmd.AccountLocked != nil {
		if err := s.identities.SetLocked(ctx, actor.UserID, cmd.UserID, *cmd.AccountLocked); err != nil {
			return nil, err
		}
		if *cmd.AccountLocked && s.sessions != nil {
			if err := s.sessions.RevokeUser(ctx, cmd.UserID); err != nil {
				s.logger.WarnContext(ctx, "failed to end sessions of locked account", "error", err, "user_id", cmd.UserID.String())
			}
		}
	}

	s.emit(ctx, audit.Event{
		Action:    audit.ActionMemberUpdated,
		ActorID:   actorID(actor),
		SubjectID: cmd.UserID.String(),
		TenantID:  cmd.TenantID.String(),
	})

	user, err := s.identities.Get(ctx, cmd.UserID)
	if err != nil {
		return nil, err
	}
	return toMember(target, user), nil
}

// requireAccountAuthority guards changes to the identity itself (name,
// password, lock), which are global rather than tenant-local. The actor must
// administer every tenant the user belongs to, with owner rights where the
// user is an owner. Only hyper users may change a hyper account.
func (s *Service) requireAccountAuthority(ctx context.Context, actor models.Actor, userID id.UserID, tenantID id.TenantID) error {
	if actor.IsHyper {
		return nil
	}
	user, err := s.identities.Get(ctx, userID)
	if err != nil {
		return err
	}
	if user.IsHyper {
		return dErrors.New(dErrors.CodeForbidden, "operator accounts can only be changed by an operator")
	}
	memberships, err := s.memberships.ListByUser(ctx, userID)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load memberships")
	}
	for _, m := range memberships {
		if m.TenantID == tenantID {
			continue
		}
		role, err := s.gate.RequireTenantAdmin(ctx, actor, m.TenantID)
		if err != nil {
			if dErrors.HasCode(err, dErrors.CodeForbidden) {
				return dErrors.New(dErrors.CodeForbidden, "member belongs to tenants you do not administer")
			}
			return err
		}
		if m.Role == models.RoleOwner && role != models.RoleOwner {
			return dErrors.New(dErrors.CodeForbidden, "only an owner can modify an owner")
		}
	}
	return nil
}

// RemoveMember deletes the membership and the member's grants in this
// tenant. Global grants and the identity itself are kept.
func (s *Service) RemoveMember(ctx context.Context, actor models.Actor, tenantID id.TenantID, userID id.UserID) error {
	actorRole, err := s.gate.RequireTenantAdmin(ctx, actor, tenantID)
	if err != nil {
		return err
	}
	if actor.UserID == userID {
		return dErrors.New(dErrors.CodeForbidden, "you cannot remove yourself")
	}
	target, err := s.memberships.Find(ctx, userID, tenantID)
	if err != nil {
		return wrapMemberErr(err, "failed to load member")
	}
	if target.Role == models.RoleOwner && actorRole != models.RoleOwner {
		return dErrors.New(dErrors.CodeForbidden, "only an owner can remove an owner")
	}

	if err := s.memberships.Delete(ctx, userID, tenantID); err != nil {
		return wrapMemberErr(err, "failed to remove member")
	}
	removed, err := s.grants.DeleteByMembership(ctx, userID, tenantID)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to remove member grants")
	}

	s.logger.InfoContext(ctx, "member removed",
		"tenant_id", tenantID.String(),
		"user_id", userID.String(),
		"grants_removed", removed,
	)
	s.emit(ctx, audit.Event{
		Action:    audit.ActionMemberRemoved,
		ActorID:   actorID(actor),
		SubjectID: userID.String(),
		TenantID:  tenantID.String(),
	})
	return nil
}

// SendReset emails a recovery link to a member on an admin's request.
func (s *Service) SendReset(ctx context.Context, actor models.Actor, tenantID id.TenantID, userID id.UserID) error {
	if _, err := s.gate.RequireTenantAdmin(ctx, actor, tenantID); err != nil {
		return err
	}
	if _, err := s.memberships.Find(ctx, userID, tenantID); err != nil {
		return wrapMemberErr(err, "failed to load member")
	}
	return s.identities.SendRecovery(ctx, actor.UserID, userID)
}

func toMember(m *models.Membership, user *idmodels.Identity) *models.Member {
	return &models.Member{
		Membership:    *m,
		Email:         user.Email,
		Name:          user.Name,
		AccountLocked: user.AccountLocked,
		MustReset:     user.MustResetPassword(),
	}
}
