package service

import (
	"keystone/internal/audit"
	"keystone/internal/tenancy/models"
	dErrors "keystone/pkg/domain-errors"
)

func (s *ServiceSuite) TestCreateTenant() {
	s.Run("only hyper users create tenants", func() {
		_, err := s.service.CreateTenant(s.ctx, s.owner, "Globex")
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("creates and audits", func() {
		tenant, err := s.service.CreateTenant(s.ctx, s.hyper, "  Globex ")
		s.Require().NoError(err)
		s.Equal("Globex", tenant.Name)
		s.Equal(now, tenant.CreatedAt)
		s.Equal(audit.ActionTenantCreated, s.audit.last().Action)
	})

	s.Run("names are unique", func() {
		_, err := s.service.CreateTenant(s.ctx, s.hyper, "acme")
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("empty name is invalid", func() {
		_, err := s.service.CreateTenant(s.ctx, s.hyper, " ")
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

func (s *ServiceSuite) TestListTenants() {
	_, err := s.service.CreateTenant(s.ctx, s.hyper, "Globex")
	s.Require().NoError(err)

	all, err := s.service.ListTenants(s.ctx, s.hyper)
	s.Require().NoError(err)
	s.Len(all, 2)

	mine, err := s.service.ListTenants(s.ctx, s.admin)
	s.Require().NoError(err)
	s.Require().Len(mine, 1)
	s.Equal(s.acme.ID, mine[0].Tenant.ID)
	s.Equal(models.RoleAdmin, mine[0].Role)
}

func (s *ServiceSuite) TestGetTenant() {
	got, err := s.service.GetTenant(s.ctx, s.user, s.acme.ID)
	s.Require().NoError(err)
	s.Equal("Acme", got.Name)

	globex, err := s.service.CreateTenant(s.ctx, s.hyper, "Globex")
	s.Require().NoError(err)
	_, err = s.service.GetTenant(s.ctx, s.user, globex.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))

	_, err = s.service.GetTenant(s.ctx, s.hyper, globex.ID)
	s.NoError(err)
}

func (s *ServiceSuite) TestCreateApp() {
	_, err := s.service.CreateApp(s.ctx, s.owner, "dc", "Data Center", "https://dc.example.com")
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))

	app, err := s.service.CreateApp(s.ctx, s.hyper, "dc", "Data Center", "https://dc.example.com/")
	s.Require().NoError(err)
	s.Equal("https://dc.example.com", app.Domain)
	s.Equal("dc", s.audit.last().AppSlug)

	_, err = s.service.CreateApp(s.ctx, s.hyper, "dc", "Again", "https://dc2.example.com")
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))

	_, err = s.service.CreateApp(s.ctx, s.hyper, "Bad Slug", "Bad", "https://bad.example.com")
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))

	apps, err := s.service.ListApps(s.ctx)
	s.Require().NoError(err)
	s.Len(apps, 2)
}
