package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	psmodels "keystone/internal/portalsession/models"
	"keystone/internal/sso/service"
	tenancy "keystone/internal/tenancy/models"
	id "keystone/pkg/domain"
	dErrors "keystone/pkg/domain-errors"
	"keystone/pkg/platform/httputil"
	"keystone/pkg/platform/validation"
	"keystone/pkg/requestcontext"
)

type Service interface {
	Issue(ctx context.Context, userID id.UserID, slug string, tenantID *id.TenantID) (*service.Result, error)
	Apps(ctx context.Context, userID id.UserID, tenantID *id.TenantID) ([]tenancy.AppAccess, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts the issuance routes. A portal session is required upstream;
// the principal's active tenant is the token's tenant context.
func (h *Handler) Register(r chi.Router) {
	r.Post("/sso/issue", h.HandleIssue)
	r.Get(launchPath, h.HandleLaunch)
	r.Get("/me/apps", h.HandleApps)
}

// HandleIssue returns the token as JSON for script callers.
func (h *Handler) HandleIssue(w http.ResponseWriter, r *http.Request) {
	res, ok := h.issue(w, r)
	if !ok {
		return
	}
	httputil.WriteJSON(w, http.StatusOK, &IssueResponse{
		Token:       res.Token.Value,
		RedirectURL: res.RedirectURL,
		AppSlug:     res.App.Slug,
		Role:        string(res.Role),
		ExpiresAt:   res.Token.ExpiresAt,
	})
}

// HandleLaunch sends the browser straight to the app's /sso endpoint.
func (h *Handler) HandleLaunch(w http.ResponseWriter, r *http.Request) {
	res, ok := h.issue(w, r)
	if !ok {
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	http.Redirect(w, r, res.RedirectURL, http.StatusFound)
}

func (h *Handler) HandleApps(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	principal, ok := psmodels.PrincipalFromContext(ctx)
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "not signed in"))
		return
	}
	apps, err := h.service.Apps(ctx, principal.UserID, principal.ActiveTenantID)
	if err != nil {
		h.logger.ErrorContext(ctx, "list apps failed", "error", err, "request_id", requestcontext.RequestID(ctx))
		httputil.WriteError(w, err)
		return
	}
	out := make([]*AppResponse, 0, len(apps))
	for _, a := range apps {
		out = append(out, toAppResponse(a))
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) issue(w http.ResponseWriter, r *http.Request) (*service.Result, bool) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	principal, ok := psmodels.PrincipalFromContext(ctx)
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "not signed in"))
		return nil, false
	}
	slug := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("app")))
	if err := validation.CheckStringLength("app", slug, validation.MaxSlugLength); err != nil {
		httputil.WriteError(w, err)
		return nil, false
	}

	res, err := h.service.Issue(ctx, principal.UserID, slug, principal.ActiveTenantID)
	if err != nil {
		if dErrors.CodeOf(err) == dErrors.CodeInternal {
			h.logger.ErrorContext(ctx, "sso issue failed", "error", err, "request_id", requestID)
		}
		httputil.WriteError(w, err)
		return nil, false
	}
	return res, true
}
