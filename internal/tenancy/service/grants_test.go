package service

import (
	"errors"
	"io"
	"log/slog"

	"go.uber.org/mock/gomock"

	"keystone/internal/audit"
	"keystone/internal/tenancy/models"
	"keystone/internal/tenancy/service/mocks"
	id "keystone/pkg/domain"
	dErrors "keystone/pkg/domain-errors"
)

func (s *ServiceSuite) TestTenantGrants() {
	tenantID := s.acme.ID

	s.Run("admin grants a member", func() {
		grant, err := s.service.SetGrant(s.ctx, s.admin, GrantCommand{
			UserID: s.user.UserID, AppID: s.chat.ID, TenantID: &tenantID, Role: models.RoleAgent,
		})
		s.Require().NoError(err)
		s.Equal(models.RoleAgent, grant.Role)
		s.Equal(audit.ActionGrantSet, s.audit.last().Action)
		s.Equal("chat", s.audit.last().AppSlug)

		grants, err := s.service.ListTenantGrants(s.ctx, s.admin, s.acme.ID)
		s.Require().NoError(err)
		s.Len(grants, 1)
	})

	s.Run("role defaults to user", func() {
		grant, err := s.service.SetGrant(s.ctx, s.admin, GrantCommand{
			UserID: s.owner.UserID, AppID: s.chat.ID, TenantID: &tenantID,
		})
		s.Require().NoError(err)
		s.Equal(models.RoleUser, grant.Role)
	})

	s.Run("non-members cannot be granted", func() {
		_, err := s.service.SetGrant(s.ctx, s.admin, GrantCommand{
			UserID: id.NewUserID(), AppID: s.chat.ID, TenantID: &tenantID,
		})
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("unknown app", func() {
		_, err := s.service.SetGrant(s.ctx, s.admin, GrantCommand{
			UserID: s.user.UserID, AppID: id.NewAppID(), TenantID: &tenantID,
		})
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("plain users cannot grant", func() {
		_, err := s.service.SetGrant(s.ctx, s.user, GrantCommand{
			UserID: s.user.UserID, AppID: s.chat.ID, TenantID: &tenantID,
		})
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("revoke", func() {
		s.Require().NoError(s.service.RevokeGrant(s.ctx, s.admin, s.user.UserID, s.chat.ID, &tenantID))
		err := s.service.RevokeGrant(s.ctx, s.admin, s.user.UserID, s.chat.ID, &tenantID)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *ServiceSuite) TestGlobalGrantsNeedHyper() {
	_, err := s.service.SetGrant(s.ctx, s.owner, GrantCommand{UserID: s.user.UserID, AppID: s.chat.ID})
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))

	grant, err := s.service.SetGrant(s.ctx, s.hyper, GrantCommand{UserID: s.user.UserID, AppID: s.chat.ID})
	s.Require().NoError(err)
	s.True(grant.IsGlobal())

	global, err := s.service.ListGlobalGrants(s.ctx, s.hyper, s.user.UserID)
	s.Require().NoError(err)
	s.Len(global, 1)

	_, err = s.service.ListGlobalGrants(s.ctx, s.owner, s.user.UserID)
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))

	s.Require().NoError(s.service.RevokeGrant(s.ctx, s.hyper, s.user.UserID, s.chat.ID, nil))
}

func (s *ServiceSuite) TestGrantStoreFailureIsInternal() {
	grants := mocks.NewMockGrantStore(s.ctrl)
	gate := mocks.NewMockGate(s.ctrl)
	svc := New(Stores{Tenants: s.tenants, Apps: s.apps, Memberships: s.memberships, Grants: grants},
		gate, s.identities, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))

	gate.EXPECT().RequireTenantAdmin(gomock.Any(), s.admin, s.acme.ID).Return(models.RoleAdmin, nil)
	grants.EXPECT().ListByTenant(gomock.Any(), s.acme.ID).Return(nil, errors.New("db down"))

	_, err := svc.ListTenantGrants(s.ctx, s.admin, s.acme.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
}
