package service

import (
	"errors"

	"go.uber.org/mock/gomock"

	"keystone/internal/audit"
	"keystone/internal/email"
	idmodels "keystone/internal/identity/models"
	identity "keystone/internal/identity/service"
	"keystone/internal/sentinel"
	"keystone/internal/tenancy/models"
	id "keystone/pkg/domain"
	dErrors "keystone/pkg/domain-errors"
)

func (s *ServiceSuite) TestListMembers() {
	s.Run("admin sees members with identity fields", func() {
		s.identities.EXPECT().Get(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ any, userID id.UserID) (*idmodels.Identity, error) {
				u := identityFor(userID, userID.String()+"@example.com")
				u.AccountLocked = userID == s.user.UserID
				return u, nil
			}).Times(3)

		members, err := s.service.ListMembers(s.ctx, s.admin, s.acme.ID)
		s.Require().NoError(err)
		s.Require().Len(members, 3)
		byUser := make(map[id.UserID]*models.Member, len(members))
		for _, m := range members {
			byUser[m.UserID] = m
		}
		s.Equal(models.RoleOwner, byUser[s.owner.UserID].Role)
		s.True(byUser[s.user.UserID].AccountLocked)
		s.False(byUser[s.admin.UserID].AccountLocked)
	})

	s.Run("members with a dangling identity are skipped", func() {
		s.identities.EXPECT().Get(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ any, userID id.UserID) (*idmodels.Identity, error) {
				if userID == s.owner.UserID {
					return nil, dErrors.New(dErrors.CodeNotFound, "user not found")
				}
				return identityFor(userID, "x@example.com"), nil
			}).Times(3)

		members, err := s.service.ListMembers(s.ctx, s.admin, s.acme.ID)
		s.Require().NoError(err)
		s.Len(members, 2)
	})

	s.Run("identity failure fails the listing", func() {
		s.identities.EXPECT().Get(gomock.Any(), gomock.Any()).
			Return(nil, dErrors.New(dErrors.CodeInternal, "db down")).MinTimes(1).MaxTimes(3)

		_, err := s.service.ListMembers(s.ctx, s.admin, s.acme.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeInternal))
	})

	s.Run("plain users are forbidden", func() {
		_, err := s.service.ListMembers(s.ctx, s.user, s.acme.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})
}

func (s *ServiceSuite) TestInviteMember() {
	s.Run("new user gets a recovery link and tenant grants", func() {
		newID := id.NewUserID()
		s.identities.EXPECT().Provision(gomock.Any(), identity.ProvisionInput{
			Email: "dana@example.com", Name: "Dana",
		}).Return(identityFor(newID, "dana@example.com"), true, nil)
		s.identities.EXPECT().IssueRecoveryLink(gomock.Any(), newID).
			Return("https://portal.example.com/reset-password?token=abc", nil)
		s.mailer.EXPECT().Send(gomock.Any(), gomock.Any()).
			Do(func(_ any, msg email.Message) {
				s.Equal("dana@example.com", msg.To)
				s.Equal("Your Account Has Been Created", msg.Subject)
				s.Contains(msg.Text, "reset-password?token=abc")
				s.Contains(msg.Text, "https://portal.example.com/login")
				s.Contains(msg.Text, "Acme")
			}).Return(nil)

		res, err := s.service.InviteMember(s.ctx, s.admin, InviteCommand{
			TenantID: s.acme.ID,
			Email:    " dana@example.com ",
			Name:     "Dana",
			Role:     models.RoleAgent,
			AppIDs:   []id.AppID{s.chat.ID},
			AppRole:  models.RoleAgent,
		})
		s.Require().NoError(err)
		s.True(res.Created)
		s.False(res.AlreadyLinked)
		s.True(res.EmailSent)
		s.Equal(models.RoleAgent, res.Member.Role)

		grant, err := s.grants.FindTenantGrant(s.ctx, newID, s.chat.ID, s.acme.ID)
		s.Require().NoError(err)
		s.Equal(models.RoleAgent, grant.Role)
		s.Equal(audit.ActionMemberInvited, s.audit.last().Action)
	})

	s.Run("admin supplied password forces a reset and is never emailed", func() {
		newID := id.NewUserID()
		s.identities.EXPECT().Provision(gomock.Any(), identity.ProvisionInput{
			Email: "eve@example.com", Password: "temp-pass", MustReset: true,
		}).Return(identityFor(newID, "eve@example.com"), true, nil)
		s.identities.EXPECT().IssueRecoveryLink(gomock.Any(), gomock.Any()).Times(0)
		s.mailer.EXPECT().Send(gomock.Any(), gomock.Any()).
			Do(func(_ any, msg email.Message) {
				s.NotContains(msg.Text, "temp-pass")
				s.Contains(msg.Text, "temporary password")
			}).Return(nil)

		res, err := s.service.InviteMember(s.ctx, s.admin, InviteCommand{
			TenantID: s.acme.ID, Email: "eve@example.com", Password: "temp-pass",
		})
		s.Require().NoError(err)
		s.Equal(models.RoleUser, res.Member.Role)
	})

	s.Run("existing member is reported as already linked", func() {
		s.identities.EXPECT().Provision(gomock.Any(), gomock.Any()).
			Return(identityFor(s.user.UserID, "user@example.com"), false, nil)
		s.mailer.EXPECT().Send(gomock.Any(), gomock.Any()).Times(0)

		res, err := s.service.InviteMember(s.ctx, s.admin, InviteCommand{
			TenantID: s.acme.ID, Email: "user@example.com", Role: models.RoleAdmin,
		})
		s.Require().NoError(err)
		s.True(res.AlreadyLinked)
		s.Equal(models.RoleUser, res.Member.Role, "existing role is kept")
	})

	s.Run("welcome email failure does not fail the invite", func() {
		newID := id.NewUserID()
		s.identities.EXPECT().Provision(gomock.Any(), gomock.Any()).
			Return(identityFor(newID, "fay@example.com"), true, nil)
		s.identities.EXPECT().IssueRecoveryLink(gomock.Any(), newID).Return("https://portal.example.com/reset-password?token=x", nil)
		s.mailer.EXPECT().Send(gomock.Any(), gomock.Any()).Return(errors.New("smtp down"))

		res, err := s.service.InviteMember(s.ctx, s.admin, InviteCommand{TenantID: s.acme.ID, Email: "fay@example.com"})
		s.Require().NoError(err)
		s.False(res.EmailSent)
		_, err = s.memberships.Find(s.ctx, newID, s.acme.ID)
		s.NoError(err)
	})

	s.Run("only an owner can invite an owner", func() {
		s.identities.EXPECT().Provision(gomock.Any(), gomock.Any()).Times(0)
		_, err := s.service.InviteMember(s.ctx, s.admin, InviteCommand{
			TenantID: s.acme.ID, Email: "gus@example.com", Role: models.RoleOwner,
		})
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("plain users cannot invite", func() {
		_, err := s.service.InviteMember(s.ctx, s.user, InviteCommand{TenantID: s.acme.ID, Email: "gus@example.com"})
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("unknown app fails before any identity is created", func() {
		s.identities.EXPECT().Provision(gomock.Any(), gomock.Any()).Times(0)
		_, err := s.service.InviteMember(s.ctx, s.owner, InviteCommand{
			TenantID: s.acme.ID, Email: "gus@example.com", AppIDs: []id.AppID{id.NewAppID()},
		})
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("invalid email is rejected", func() {
		_, err := s.service.InviteMember(s.ctx, s.owner, InviteCommand{TenantID: s.acme.ID, Email: "nope"})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

func (s *ServiceSuite) TestUpdateMember() {
	locked, unlocked := true, false
	roleAdmin, roleOwner := models.RoleAdmin, models.RoleOwner

	s.Run("admin cannot lock themselves", func() {
		_, err := s.service.UpdateMember(s.ctx, s.admin, UpdateMemberCommand{
			TenantID: s.acme.ID, UserID: s.admin.UserID, AccountLocked: &locked,
		})
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("admin cannot change their own role", func() {
		_, err := s.service.UpdateMember(s.ctx, s.admin, UpdateMemberCommand{
			TenantID: s.acme.ID, UserID: s.admin.UserID, Role: &roleOwner,
		})
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("admin cannot modify an owner", func() {
		_, err := s.service.UpdateMember(s.ctx, s.admin, UpdateMemberCommand{
			TenantID: s.acme.ID, UserID: s.owner.UserID, AccountLocked: &locked,
		})
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("admin cannot promote to owner", func() {
		_, err := s.service.UpdateMember(s.ctx, s.admin, UpdateMemberCommand{
			TenantID: s.acme.ID, UserID: s.user.UserID, Role: &roleOwner,
		})
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("plain users cannot update anyone", func() {
		_, err := s.service.UpdateMember(s.ctx, s.user, UpdateMemberCommand{
			TenantID: s.acme.ID, UserID: s.admin.UserID, AccountLocked: &locked,
		})
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("locking ends the user's sessions", func() {
		s.identities.EXPECT().Get(gomock.Any(), s.user.UserID).Return(identityFor(s.user.UserID, "user@example.com"), nil)
		s.identities.EXPECT().SetLocked(gomock.Any(), s.admin.UserID, s.user.UserID, true).Return(nil)
		s.sessions.EXPECT().RevokeUser(gomock.Any(), s.user.UserID).Return(nil)
		u := identityFor(s.user.UserID, "user@example.com")
		u.AccountLocked = true
		s.identities.EXPECT().Get(gomock.Any(), s.user.UserID).Return(u, nil)

		m, err := s.service.UpdateMember(s.ctx, s.admin, UpdateMemberCommand{
			TenantID: s.acme.ID, UserID: s.user.UserID, AccountLocked: &locked,
		})
		s.Require().NoError(err)
		s.True(m.AccountLocked)
	})

	s.Run("unlocking leaves sessions alone", func() {
		s.identities.EXPECT().SetLocked(gomock.Any(), s.admin.UserID, s.user.UserID, false).Return(nil)
		s.sessions.EXPECT().RevokeUser(gomock.Any(), gomock.Any()).Times(0)
		s.identities.EXPECT().Get(gomock.Any(), s.user.UserID).Return(identityFor(s.user.UserID, "user@example.com"), nil).Times(2)

		_, err := s.service.UpdateMember(s.ctx, s.admin, UpdateMemberCommand{
			TenantID: s.acme.ID, UserID: s.user.UserID, AccountLocked: &unlocked,
		})
		s.Require().NoError(err)
	})

	s.Run("role, name and temporary password", func() {
		name, pw := "Renamed", "temp-pass"
		gomock.InOrder(
			s.identities.EXPECT().Get(gomock.Any(), s.user.UserID).Return(identityFor(s.user.UserID, "user@example.com"), nil),
			s.identities.EXPECT().UpdateName(gomock.Any(), s.user.UserID, "Renamed").Return(nil),
			s.identities.EXPECT().SetTemporaryPassword(gomock.Any(), s.owner.UserID, s.user.UserID, "temp-pass").Return(nil),
			s.identities.EXPECT().Get(gomock.Any(), s.user.UserID).Return(identityFor(s.user.UserID, "user@example.com"), nil),
		)

		m, err := s.service.UpdateMember(s.ctx, s.owner, UpdateMemberCommand{
			TenantID: s.acme.ID, UserID: s.user.UserID, Role: &roleAdmin, Name: &name, TemporaryPassword: &pw,
		})
		s.Require().NoError(err)
		s.Equal(models.RoleAdmin, m.Role)

		stored, err := s.memberships.Find(s.ctx, s.user.UserID, s.acme.ID)
		s.Require().NoError(err)
		s.Equal(models.RoleAdmin, stored.Role)
		s.Equal(audit.ActionMemberUpdated, s.audit.last().Action)
	})

	s.Run("unknown member", func() {
		_, err := s.service.UpdateMember(s.ctx, s.owner, UpdateMemberCommand{
			TenantID: s.acme.ID, UserID: id.NewUserID(), AccountLocked: &locked,
		})
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("empty update is invalid", func() {
		_, err := s.service.UpdateMember(s.ctx, s.owner, UpdateMemberCommand{TenantID: s.acme.ID, UserID: s.user.UserID})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

func (s *ServiceSuite) TestUpdateMemberAccountAuthority() {
	locked := true
	pw := "chosen-by-admin"
	roleAdmin := models.RoleAdmin

	s.Run("linking an operator account gives no credential authority", func() {
		root := identityFor(id.NewUserID(), "root@platform.example")
		root.IsHyper = true
		s.identities.EXPECT().Provision(gomock.Any(), gomock.Any()).Return(root, false, nil)

		res, err := s.service.InviteMember(s.ctx, s.admin, InviteCommand{
			TenantID: s.acme.ID, Email: "root@platform.example", Role: models.RoleUser, Password: "temp-password-1",
		})
		s.Require().NoError(err)
		s.False(res.Created)

		s.identities.EXPECT().Get(gomock.Any(), root.ID).Return(root, nil)
		s.identities.EXPECT().SetTemporaryPassword(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Times(0)
		_, err = s.service.UpdateMember(s.ctx, s.admin, UpdateMemberCommand{
			TenantID: s.acme.ID, UserID: root.ID, TemporaryPassword: &pw,
		})
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))

		s.identities.EXPECT().Get(gomock.Any(), root.ID).Return(root, nil)
		s.identities.EXPECT().SetLocked(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Times(0)
		_, err = s.service.UpdateMember(s.ctx, s.owner, UpdateMemberCommand{
			TenantID: s.acme.ID, UserID: root.ID, AccountLocked: &locked,
		})
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("membership role of an operator account stays tenant-local", func() {
		root := identityFor(id.NewUserID(), "ops@platform.example")
		root.IsHyper = true
		s.Require().NoError(s.memberships.Create(s.ctx, &models.Membership{UserID: root.ID, TenantID: s.acme.ID, Role: models.RoleUser, CreatedAt: now}))
		s.identities.EXPECT().Get(gomock.Any(), root.ID).Return(root, nil)

		m, err := s.service.UpdateMember(s.ctx, s.admin, UpdateMemberCommand{
			TenantID: s.acme.ID, UserID: root.ID, Role: &roleAdmin,
		})
		s.Require().NoError(err)
		s.Equal(models.RoleAdmin, m.Role)
	})

	s.Run("member of a tenant the admin does not run", func() {
		other := s.tenant("Other")
		target := id.NewUserID()
		s.link(target, s.acme.ID, models.RoleUser)
		s.link(target, other.ID, models.RoleUser)
		s.identities.EXPECT().Get(gomock.Any(), target).Return(identityFor(target, "shared@example.com"), nil).Times(2)
		s.identities.EXPECT().SetLocked(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Times(0)
		s.identities.EXPECT().UpdateName(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

		_, err := s.service.UpdateMember(s.ctx, s.admin, UpdateMemberCommand{
			TenantID: s.acme.ID, UserID: target, AccountLocked: &locked,
		})
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))

		name := "Renamed"
		_, err = s.service.UpdateMember(s.ctx, s.owner, UpdateMemberCommand{
			TenantID: s.acme.ID, UserID: target, Name: &name,
		})
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("owner elsewhere needs owner rights there", func() {
		other := s.tenant("Shared")
		target := id.NewUserID()
		s.link(target, s.acme.ID, models.RoleUser)
		s.link(target, other.ID, models.RoleOwner)
		s.link(s.admin.UserID, other.ID, models.RoleAdmin)
		s.identities.EXPECT().Get(gomock.Any(), target).Return(identityFor(target, "boss@example.com"), nil)
		s.identities.EXPECT().SetTemporaryPassword(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

		_, err := s.service.UpdateMember(s.ctx, s.admin, UpdateMemberCommand{
			TenantID: s.acme.ID, UserID: target, TemporaryPassword: &pw,
		})
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("admin of every tenant the member belongs to", func() {
		other := s.tenant("Sister")
		target := id.NewUserID()
		s.link(target, s.acme.ID, models.RoleUser)
		s.link(target, other.ID, models.RoleUser)
		s.link(s.admin.UserID, other.ID, models.RoleAdmin)
		gomock.InOrder(
			s.identities.EXPECT().Get(gomock.Any(), target).Return(identityFor(target, "both@example.com"), nil),
			s.identities.EXPECT().SetTemporaryPassword(gomock.Any(), s.admin.UserID, target, pw).Return(nil),
			s.identities.EXPECT().Get(gomock.Any(), target).Return(identityFor(target, "both@example.com"), nil),
		)

		_, err := s.service.UpdateMember(s.ctx, s.admin, UpdateMemberCommand{
			TenantID: s.acme.ID, UserID: target, TemporaryPassword: &pw,
		})
		s.Require().NoError(err)
	})

	s.Run("operators may change any account", func() {
		root := identityFor(id.NewUserID(), "peer@platform.example")
		root.IsHyper = true
		s.link(root.ID, s.acme.ID, models.RoleUser)
		gomock.InOrder(
			s.identities.EXPECT().SetTemporaryPassword(gomock.Any(), s.hyper.UserID, root.ID, pw).Return(nil),
			s.identities.EXPECT().Get(gomock.Any(), root.ID).Return(root, nil),
		)

		_, err := s.service.UpdateMember(s.ctx, s.hyper, UpdateMemberCommand{
			TenantID: s.acme.ID, UserID: root.ID, TemporaryPassword: &pw,
		})
		s.Require().NoError(err)
	})
}

func (s *ServiceSuite) TestRemoveMember() {
	tenantID := s.acme.ID
	s.Require().NoError(s.grants.Upsert(s.ctx, &models.Grant{UserID: s.user.UserID, AppID: s.chat.ID, TenantID: &tenantID, Role: models.RoleUser}))
	s.Require().NoError(s.grants.Upsert(s.ctx, &models.Grant{UserID: s.user.UserID, AppID: s.chat.ID, Role: models.RoleUser}))

	s.Run("admin cannot remove an owner", func() {
		err := s.service.RemoveMember(s.ctx, s.admin, s.acme.ID, s.owner.UserID)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("nobody removes themselves", func() {
		err := s.service.RemoveMember(s.ctx, s.owner, s.acme.ID, s.owner.UserID)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("removes membership and tenant grants only", func() {
		s.Require().NoError(s.service.RemoveMember(s.ctx, s.admin, s.acme.ID, s.user.UserID))

		_, err := s.memberships.Find(s.ctx, s.user.UserID, s.acme.ID)
		s.ErrorIs(err, sentinel.ErrNotFound)
		_, err = s.grants.FindTenantGrant(s.ctx, s.user.UserID, s.chat.ID, s.acme.ID)
		s.ErrorIs(err, sentinel.ErrNotFound)
		_, err = s.grants.FindGlobalGrant(s.ctx, s.user.UserID, s.chat.ID)
		s.NoError(err, "global grant survives")
	})

	s.Run("second removal is not found", func() {
		err := s.service.RemoveMember(s.ctx, s.admin, s.acme.ID, s.user.UserID)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *ServiceSuite) TestSendReset() {
	s.identities.EXPECT().SendRecovery(gomock.Any(), s.admin.UserID, s.user.UserID).Return(nil)
	s.Require().NoError(s.service.SendReset(s.ctx, s.admin, s.acme.ID, s.user.UserID))

	err := s.service.SendReset(s.ctx, s.admin, s.acme.ID, id.NewUserID())
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

	err = s.service.SendReset(s.ctx, s.user, s.acme.ID, s.admin.UserID)
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
}
