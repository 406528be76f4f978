package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"keystone/internal/portalsession/middleware"
	"keystone/internal/portalsession/models"
	"keystone/internal/portalsession/service"
	id "keystone/pkg/domain"
	dErrors "keystone/pkg/domain-errors"
	"keystone/pkg/platform/httputil"
	"keystone/pkg/requestcontext"
)

type Service interface {
	Login(ctx context.Context, email, password string, tenantHint *id.TenantID) (*service.LoginResult, error)
	Logout(ctx context.Context, rawToken string) error
	SwitchTenant(ctx context.Context, rawToken string, tenantID *id.TenantID) (*models.Principal, error)
	TTL() time.Duration
}

type Handler struct {
	service Service
	cookie  middleware.Cookie
	logger  *slog.Logger
}

func New(service Service, cookie middleware.Cookie, logger *slog.Logger) *Handler {
	return &Handler{service: service, cookie: cookie, logger: logger}
}

// RegisterPublic mounts the routes that work without a session.
func (h *Handler) RegisterPublic(r chi.Router) {
	r.Post("/auth/login", h.HandleLogin)
	r.Post("/auth/logout", h.HandleLogout)
}

// Register mounts the routes that need RequireSession upstream.
func (h *Handler) Register(r chi.Router) {
	r.Get("/me", h.HandleMe)
	r.Post("/me/tenant", h.HandleSwitchTenant)
}

func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[LoginRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	res, err := h.service.Login(ctx, req.Email, req.Password, req.tenantID)
	if err != nil {
		if dErrors.CodeOf(err) == dErrors.CodeInternal {
			h.logger.ErrorContext(ctx, "login failed", "error", err, "request_id", requestID)
		}
		httputil.WriteError(w, err)
		return
	}

	h.cookie.Set(w, res.Token, int(h.service.TTL().Seconds()))
	httputil.WriteJSON(w, http.StatusOK, &LoginResponse{
		PrincipalResponse: toPrincipalResponse(res.Principal),
		ExpiresAt:         res.Session.ExpiresAt,
	})
}

// HandleLogout always clears the cookie, even when the session is gone.
func (h *Handler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	if err := h.service.Logout(ctx, h.cookie.Token(r)); err != nil {
		h.logger.ErrorContext(ctx, "logout failed", "error", err, "request_id", requestID)
		httputil.WriteError(w, err)
		return
	}
	h.cookie.Clear(w)
	httputil.WriteJSON(w, http.StatusOK, &OKResponse{OK: true})
}

func (h *Handler) HandleMe(w http.ResponseWriter, r *http.Request) {
	principal, ok := models.PrincipalFromContext(r.Context())
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "not signed in"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toPrincipalResponse(principal))
}

func (h *Handler) HandleSwitchTenant(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[SwitchTenantRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	principal, err := h.service.SwitchTenant(ctx, h.cookie.Token(r), req.tenantID)
	if err != nil {
		h.logger.WarnContext(ctx, "switch tenant failed", "error", err, "request_id", requestID)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toPrincipalResponse(principal))
}
