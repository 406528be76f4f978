package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"

	"keystone/internal/email"
	identity "keystone/internal/identity/service"
	recoverystore "keystone/internal/identity/store/recovery"
	userstore "keystone/internal/identity/store/user"
	psmodels "keystone/internal/portalsession/models"
	"keystone/internal/tenancy/gate"
	"keystone/internal/tenancy/models"
	"keystone/internal/tenancy/service"
	appstore "keystone/internal/tenancy/store/app"
	grantstore "keystone/internal/tenancy/store/grant"
	membershipstore "keystone/internal/tenancy/store/membership"
	tenantstore "keystone/internal/tenancy/store/tenant"
	id "keystone/pkg/domain"
	"keystone/pkg/platform/httputil"
)

const actorHeader = "X-Test-Actor"

type HandlerSuite struct {
	suite.Suite
	router      http.Handler
	identities  *identity.Service
	tenants     *tenantstore.InMemory
	memberships *membershipstore.InMemory
	principals  map[string]*psmodels.Principal
	acme        *models.Tenant
	chat        *models.App
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.identities = identity.New(userstore.NewInMemory(), recoverystore.NewInMemory(), identity.WithLogger(logger))
	s.tenants = tenantstore.NewInMemory()
	s.memberships = membershipstore.NewInMemory()
	apps := appstore.NewInMemory()
	grants := grantstore.NewInMemory()
	g := gate.New(apps, s.memberships, grants, gate.WithCacheTTL(0), gate.WithLogger(logger))
	svc := service.New(service.Stores{
		Tenants: s.tenants, Apps: apps, Memberships: s.memberships, Grants: grants,
	}, g, s.identities,
		service.WithLogger(logger),
		service.WithMailer(email.NewLogSender(logger, false)),
		service.WithPortalBaseURL("https://portal.example.com"),
	)

	var err error
	s.acme, err = models.NewTenant(id.NewTenantID(), "Acme", time.Now())
	s.Require().NoError(err)
	s.Require().NoError(s.tenants.Create(ctx, s.acme))
	s.chat, err = models.NewApp(id.NewAppID(), "chat", "Chat", "https://chat.example.com", time.Now())
	s.Require().NoError(err)
	s.Require().NoError(apps.Create(ctx, s.chat))

	s.principals = map[string]*psmodels.Principal{
		"owner": s.provision("owner@example.com", models.RoleOwner, false),
		"admin": s.provision("admin@example.com", models.RoleAdmin, false),
		"user":  s.provision("user@example.com", models.RoleUser, false),
		"hyper": s.provision("ops@example.com", "", true),
	}

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if p, ok := s.principals[r.Header.Get(actorHeader)]; ok {
				r = r.WithContext(psmodels.WithPrincipal(r.Context(), p))
			}
			next.ServeHTTP(w, r)
		})
	})
	New(svc, logger).Register(r)
	s.router = r
}

func (s *HandlerSuite) provision(emailAddr string, role models.Role, hyper bool) *psmodels.Principal {
	ctx := context.Background()
	user, _, err := s.identities.Provision(ctx, identity.ProvisionInput{
		Email: emailAddr, Name: emailAddr, Password: "correct horse", IsHyper: hyper,
	})
	s.Require().NoError(err)
	p := &psmodels.Principal{UserID: user.ID, Email: user.Email, IsHyper: hyper}
	if role != "" {
		s.Require().NoError(s.memberships.Create(ctx, &models.Membership{
			UserID: user.ID, TenantID: s.acme.ID, Role: role, CreatedAt: time.Now(),
		}))
	}
	return p
}

func (s *HandlerSuite) do(actor, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	if actor != "" {
		req.Header.Set(actorHeader, actor)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](s *HandlerSuite, rec *httptest.ResponseRecorder) T {
	var out T
	s.Require().NoError(json.NewDecoder(rec.Body).Decode(&out), rec.Body.String())
	return out
}

func (s *HandlerSuite) tenantPath(suffix string) string {
	return "/tenants/" + s.acme.ID.String() + suffix
}

func (s *HandlerSuite) TestRequiresPrincipal() {
	rec := s.do("", http.MethodGet, "/apps", "")
	s.Equal(http.StatusUnauthorized, rec.Code)
}

func (s *HandlerSuite) TestTenants() {
	s.Run("hyper creates tenants", func() {
		rec := s.do("hyper", http.MethodPost, "/tenants", `{"name":"Globex"}`)
		s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())
		resp := decode[TenantResponse](s, rec)
		s.Equal("Globex", resp.Name)
		s.NotEmpty(resp.ID)
	})

	s.Run("duplicate name conflicts", func() {
		rec := s.do("hyper", http.MethodPost, "/tenants", `{"name":"acme"}`)
		s.Equal(http.StatusConflict, rec.Code)
	})

	s.Run("tenant owners cannot create tenants", func() {
		rec := s.do("owner", http.MethodPost, "/tenants", `{"name":"Initech"}`)
		s.Equal(http.StatusForbidden, rec.Code)
	})

	s.Run("unknown fields are rejected", func() {
		rec := s.do("hyper", http.MethodPost, "/tenants", `{"name":"Initech","plan":"gold"}`)
		s.Equal(http.StatusBadRequest, rec.Code)
	})

	s.Run("listing is scoped to the caller", func() {
		all := decode[[]TenantResponse](s, s.do("hyper", http.MethodGet, "/tenants", ""))
		s.Len(all, 2)

		mine := decode[[]TenantResponse](s, s.do("admin", http.MethodGet, "/me/tenants", ""))
		s.Require().Len(mine, 1)
		s.Equal(s.acme.ID.String(), mine[0].ID)
		s.Equal("admin", mine[0].Role)
	})

	s.Run("get tenant", func() {
		rec := s.do("user", http.MethodGet, s.tenantPath(""), "")
		s.Equal(http.StatusOK, rec.Code)

		s.principals["stranger"] = s.provision("stranger@example.com", "", false)
		rec = s.do("stranger", http.MethodGet, s.tenantPath(""), "")
		s.Equal(http.StatusForbidden, rec.Code)

		rec = s.do("user", http.MethodGet, "/tenants/not-a-uuid", "")
		s.Equal(http.StatusBadRequest, rec.Code)
	})
}

func (s *HandlerSuite) TestApps() {
	rec := s.do("hyper", http.MethodPost, "/apps", `{"slug":"Billing","name":"Billing","domain":"https://billing.example.com/"}`)
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())
	app := decode[AppResponse](s, rec)
	s.Equal("billing", app.Slug)
	s.Equal("https://billing.example.com", app.Domain)

	rec = s.do("hyper", http.MethodPost, "/apps", `{"slug":"bad slug","name":"x","domain":"https://x.example.com"}`)
	s.Equal(http.StatusBadRequest, rec.Code)

	rec = s.do("hyper", http.MethodPost, "/apps", `{"slug":"chat","name":"Chat 2","domain":"https://chat2.example.com"}`)
	s.Equal(http.StatusConflict, rec.Code)

	rec = s.do("owner", http.MethodPost, "/apps", `{"slug":"crm","name":"CRM","domain":"https://crm.example.com"}`)
	s.Equal(http.StatusForbidden, rec.Code)

	apps := decode[[]AppResponse](s, s.do("user", http.MethodGet, "/apps", ""))
	s.Len(apps, 2)
}

func (s *HandlerSuite) TestMembers() {
	var newUserID string

	s.Run("invite creates the user", func() {
		body := `{"email":"dana@example.com","name":"Dana","role":"agent","app_ids":["` + s.chat.ID.String() + `"]}`
		rec := s.do("admin", http.MethodPost, s.tenantPath("/members"), body)
		s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())
		resp := decode[InviteResponse](s, rec)
		s.True(resp.OK)
		s.True(resp.Created)
		s.Empty(resp.Note)
		s.Equal("agent", resp.Member.Role)
		s.Require().Len(resp.Grants, 1)
		s.Equal(s.acme.ID.String(), resp.Grants[0].TenantID)
		newUserID = resp.Member.UserID
	})

	s.Run("duplicate invite is benign", func() {
		rec := s.do("admin", http.MethodPost, s.tenantPath("/members"), `{"email":"DANA@example.com"}`)
		s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
		resp := decode[InviteResponse](s, rec)
		s.True(resp.OK)
		s.Equal("already linked", resp.Note)
		s.Equal("agent", resp.Member.Role)
	})

	s.Run("admin password forces a reset", func() {
		rec := s.do("admin", http.MethodPost, s.tenantPath("/members"), `{"email":"eve@example.com","password":"temp-pass"}`)
		s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())
		resp := decode[InviteResponse](s, rec)
		s.True(resp.Member.MustResetPassword)
	})

	s.Run("plain users cannot see members", func() {
		rec := s.do("user", http.MethodGet, s.tenantPath("/members"), "")
		s.Equal(http.StatusForbidden, rec.Code)
	})

	s.Run("admin lists members", func() {
		members := decode[[]MemberResponse](s, s.do("admin", http.MethodGet, s.tenantPath("/members"), ""))
		s.Len(members, 5)
	})

	s.Run("lock and unlock", func() {
		rec := s.do("admin", http.MethodPatch, s.tenantPath("/members/"+newUserID), `{"account_locked":true}`)
		s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
		s.True(decode[MemberResponse](s, rec).AccountLocked)

		rec = s.do("admin", http.MethodPatch, s.tenantPath("/members/"+newUserID), `{"account_locked":false}`)
		s.Require().Equal(http.StatusOK, rec.Code)
		s.False(decode[MemberResponse](s, rec).AccountLocked)
	})

	s.Run("self lock is refused", func() {
		path := s.tenantPath("/members/" + s.principals["admin"].UserID.String())
		rec := s.do("admin", http.MethodPatch, path, `{"account_locked":true}`)
		s.Equal(http.StatusForbidden, rec.Code)
	})

	s.Run("admin cannot promote to owner", func() {
		rec := s.do("admin", http.MethodPatch, s.tenantPath("/members/"+newUserID), `{"role":"owner"}`)
		s.Equal(http.StatusForbidden, rec.Code)
	})

	s.Run("send reset", func() {
		rec := s.do("admin", http.MethodPost, s.tenantPath("/members/"+newUserID+"/send-reset"), "")
		s.Equal(http.StatusOK, rec.Code, rec.Body.String())
	})

	s.Run("remove", func() {
		rec := s.do("admin", http.MethodDelete, s.tenantPath("/members/"+newUserID), "")
		s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())

		rec = s.do("admin", http.MethodDelete, s.tenantPath("/members/"+newUserID), "")
		s.Equal(http.StatusNotFound, rec.Code)
	})
}

func (s *HandlerSuite) TestAdminCannotTakeOverExistingAccount() {
	rec := s.do("admin", http.MethodPost, s.tenantPath("/members"), `{"email":"ops@example.com","password":"attacker-chosen"}`)
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())
	resp := decode[InviteResponse](s, rec)
	s.False(resp.Created)
	s.False(resp.Member.MustResetPassword)

	path := s.tenantPath("/members/" + resp.Member.UserID)
	rec = s.do("admin", http.MethodPatch, path, `{"temporary_password":"attacker-chosen"}`)
	s.Equal(http.StatusForbidden, rec.Code)
	rec = s.do("owner", http.MethodPatch, path, `{"account_locked":true}`)
	s.Equal(http.StatusForbidden, rec.Code)

	user, err := s.identities.Authenticate(context.Background(), "ops@example.com", "correct horse")
	s.Require().NoError(err)
	s.True(user.IsHyper)
	s.False(user.AccountLocked)
	_, err = s.identities.Authenticate(context.Background(), "ops@example.com", "attacker-chosen")
	s.Error(err)
}

func (s *HandlerSuite) TestGrants() {
	userID := s.principals["user"].UserID.String()
	body := `{"user_id":"` + userID + `","app_id":"` + s.chat.ID.String() + `","role":"agent"}`

	rec := s.do("admin", http.MethodPut, s.tenantPath("/grants"), body)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	grant := decode[GrantResponse](s, rec)
	s.Equal("agent", grant.Role)
	s.Equal(s.acme.ID.String(), grant.TenantID)

	grants := decode[[]GrantResponse](s, s.do("admin", http.MethodGet, s.tenantPath("/grants"), ""))
	s.Len(grants, 1)

	revoke := s.tenantPath("/grants/" + userID + "/" + s.chat.ID.String())
	s.Equal(http.StatusOK, s.do("admin", http.MethodDelete, revoke, "").Code)
	s.Equal(http.StatusNotFound, s.do("admin", http.MethodDelete, revoke, "").Code)

	s.Equal(http.StatusForbidden, s.do("owner", http.MethodPut, "/grants", body).Code)
	rec = s.do("hyper", http.MethodPut, "/grants", body)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	s.Empty(decode[GrantResponse](s, rec).TenantID)

	global := decode[[]GrantResponse](s, s.do("hyper", http.MethodGet, "/grants?user_id="+userID, ""))
	s.Len(global, 1)
	s.Equal(http.StatusOK, s.do("hyper", http.MethodDelete, "/grants/"+userID+"/"+s.chat.ID.String(), "").Code)

	rec = s.do("hyper", http.MethodGet, "/grants", "")
	s.Equal(http.StatusBadRequest, rec.Code)
	s.NotEmpty(decode[httputil.ErrorResponse](s, rec).Error)
}
