package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"

	identity "keystone/internal/identity/service"
	recoverystore "keystone/internal/identity/store/recovery"
	userstore "keystone/internal/identity/store/user"
	"keystone/internal/portalsession/middleware"
	"keystone/internal/portalsession/service"
	sessionstore "keystone/internal/portalsession/store"
	tenancy "keystone/internal/tenancy/models"
	membershipstore "keystone/internal/tenancy/store/membership"
	id "keystone/pkg/domain"
)

type HandlerSuite struct {
	suite.Suite
	router      http.Handler
	identities  *identity.Service
	memberships *membershipstore.InMemory
	cookie      middleware.Cookie
	userID      id.UserID
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.identities = identity.New(userstore.NewInMemory(), recoverystore.NewInMemory(), identity.WithLogger(logger))
	s.memberships = membershipstore.NewInMemory()
	svc := service.New(sessionstore.NewInMemory(), s.identities, s.memberships, service.WithLogger(logger))
	s.cookie = middleware.Cookie{Name: "portal_session", Secure: true}

	user, _, err := s.identities.Provision(context.Background(), identity.ProvisionInput{
		Email: "ada@example.com", Name: "Ada", Password: "correct horse",
	})
	s.Require().NoError(err)
	s.userID = user.ID

	h := New(svc, s.cookie, logger)
	r := chi.NewRouter()
	h.RegisterPublic(r)
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireSession(svc, s.cookie, logger))
		h.Register(r)
	})
	s.router = r
}

func (s *HandlerSuite) do(method, path, body string, cookie *http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *HandlerSuite) login() *http.Cookie {
	rec := s.do(http.MethodPost, "/auth/login", `{"email":"ada@example.com","password":"correct horse"}`, nil)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	for _, c := range rec.Result().Cookies() {
		if c.Name == s.cookie.Name {
			return c
		}
	}
	s.FailNow("login did not set the session cookie")
	return nil
}

func (s *HandlerSuite) TestLoginSetsHardenedCookie() {
	c := s.login()
	s.True(c.HttpOnly)
	s.True(c.Secure)
	s.Equal(http.SameSiteLaxMode, c.SameSite)
	s.Equal(int(service.DefaultSessionTTL.Seconds()), c.MaxAge)
}

func (s *HandlerSuite) TestLoginRejectsBadCredentials() {
	rec := s.do(http.MethodPost, "/auth/login", `{"email":"ada@example.com","password":"nope"}`, nil)
	s.Equal(http.StatusUnauthorized, rec.Code)
	s.Empty(rec.Result().Cookies())

	rec = s.do(http.MethodPost, "/auth/login", `{"email":"","password":""}`, nil)
	s.Equal(http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodPost, "/auth/login", `{"email":"ada@example.com","password":"x","tenant_id":"acme"}`, nil)
	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *HandlerSuite) TestMe() {
	rec := s.do(http.MethodGet, "/me", "", nil)
	s.Equal(http.StatusUnauthorized, rec.Code)

	rec = s.do(http.MethodGet, "/me", "", s.login())
	s.Require().Equal(http.StatusOK, rec.Code)

	var resp PrincipalResponse
	s.Require().NoError(json.NewDecoder(rec.Body).Decode(&resp))
	s.Equal(s.userID.String(), resp.UserID)
	s.Equal("ada@example.com", resp.Email)
	s.False(resp.MustResetPassword)
	s.Empty(resp.ActiveTenantID)
}

func (s *HandlerSuite) TestSwitchTenant() {
	acme := id.NewTenantID()
	s.Require().NoError(s.memberships.Create(context.Background(),
		&tenancy.Membership{UserID: s.userID, TenantID: acme, Role: tenancy.RoleAdmin}))
	cookie := s.login()

	rec := s.do(http.MethodPost, "/me/tenant", `{"tenant_id":"`+id.NewTenantID().String()+`"}`, cookie)
	s.Equal(http.StatusForbidden, rec.Code)

	rec = s.do(http.MethodPost, "/me/tenant", `{"tenant_id":"`+acme.String()+`"}`, cookie)
	s.Require().Equal(http.StatusOK, rec.Code)
	var resp PrincipalResponse
	s.Require().NoError(json.NewDecoder(rec.Body).Decode(&resp))
	s.Equal(acme.String(), resp.ActiveTenantID)
	s.Equal("admin", resp.TenantRole)
}

func (s *HandlerSuite) TestLogout() {
	cookie := s.login()

	rec := s.do(http.MethodPost, "/auth/logout", "", cookie)
	s.Require().Equal(http.StatusOK, rec.Code)
	s.True(strings.Contains(rec.Header().Get("Set-Cookie"), "Max-Age=0"))

	rec = s.do(http.MethodGet, "/me", "", cookie)
	s.Equal(http.StatusUnauthorized, rec.Code)
}

func (s *HandlerSuite) TestLockedUserIsSignedOut() {
	cookie := s.login()
	s.Require().NoError(s.identities.SetLocked(context.Background(), id.NewUserID(), s.userID, true))

	rec := s.do(http.MethodGet, "/me", "", cookie)
	s.Equal(http.StatusForbidden, rec.Code)
	s.Contains(rec.Body.String(), "account_locked")
}
