// Package handler exposes tenancy administration over HTTP. Every route
// expects a portal principal in the request context.
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	psmodels "keystone/internal/portalsession/models"
	"keystone/internal/tenancy/models"
	"keystone/internal/tenancy/service"
	id "keystone/pkg/domain"
	dErrors "keystone/pkg/domain-errors"
	"keystone/pkg/platform/httputil"
	"keystone/pkg/requestcontext"
)

type Service interface {
	CreateTenant(ctx context.Context, actor models.Actor, name string) (*models.Tenant, error)
	ListTenants(ctx context.Context, actor models.Actor) ([]models.TenantAccess, error)
	TenantsForUser(ctx context.Context, userID id.UserID) ([]models.TenantAccess, error)
	GetTenant(ctx context.Context, actor models.Actor, tenantID id.TenantID) (*models.Tenant, error)
	CreateApp(ctx context.Context, actor models.Actor, slug, name, domain string) (*models.App, error)
	ListApps(ctx context.Context) ([]*models.App, error)

	ListMembers(ctx context.Context, actor models.Actor, tenantID id.TenantID) ([]*models.Member, error)
	InviteMember(ctx context.Context, actor models.Actor, cmd service.InviteCommand) (*service.InviteResult, error)
	UpdateMember(ctx context.Context, actor models.Actor, cmd service.UpdateMemberCommand) (*models.Member, error)
	RemoveMember(ctx context.Context, actor models.Actor, tenantID id.TenantID, userID id.UserID) error
	SendReset(ctx context.Context, actor models.Actor, tenantID id.TenantID, userID id.UserID) error

	SetGrant(ctx context.Context, actor models.Actor, cmd service.GrantCommand) (*models.Grant, error)
	RevokeGrant(ctx context.Context, actor models.Actor, userID id.UserID, appID id.AppID, tenantID *id.TenantID) error
	ListTenantGrants(ctx context.Context, actor models.Actor, tenantID id.TenantID) ([]*models.Grant, error)
	ListGlobalGrants(ctx context.Context, actor models.Actor, userID id.UserID) ([]*models.Grant, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts the administration routes. Authorization is decided per
// call by the service, so the router only needs a session upstream.
func (h *Handler) Register(r chi.Router) {
	r.Get("/me/tenants", h.HandleMyTenants)

	r.Post("/tenants", h.HandleCreateTenant)
	r.Get("/tenants", h.HandleListTenants)
	r.Get("/tenants/{tenant_id}", h.HandleGetTenant)

	r.Get("/apps", h.HandleListApps)
	r.Post("/apps", h.HandleCreateApp)

	r.Get("/tenants/{tenant_id}/members", h.HandleListMembers)
	r.Post("/tenants/{tenant_id}/members", h.HandleInviteMember)
	r.Patch("/tenants/{tenant_id}/members/{user_id}", h.HandleUpdateMember)
	r.Delete("/tenants/{tenant_id}/members/{user_id}", h.HandleRemoveMember)
	r.Post("/tenants/{tenant_id}/members/{user_id}/send-reset", h.HandleSendReset)

	r.Get("/tenants/{tenant_id}/grants", h.HandleListTenantGrants)
	r.Put("/tenants/{tenant_id}/grants", h.HandleSetTenantGrant)
	r.Delete("/tenants/{tenant_id}/grants/{user_id}/{app_id}", h.HandleRevokeTenantGrant)

	r.Get("/grants", h.HandleListGlobalGrants)
	r.Put("/grants", h.HandleSetGlobalGrant)
	r.Delete("/grants/{user_id}/{app_id}", h.HandleRevokeGlobalGrant)
}

func (h *Handler) HandleMyTenants(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	tenants, err := h.service.TenantsForUser(ctx, actor.UserID)
	if err != nil {
		h.fail(ctx, w, "list my tenants failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toTenantList(tenants))
}

func (h *Handler) HandleCreateTenant(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[CreateTenantRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	tenant, err := h.service.CreateTenant(ctx, actor, req.Name)
	if err != nil {
		h.fail(ctx, w, "create tenant failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toTenantResponse(tenant, models.RoleOwner))
}

func (h *Handler) HandleListTenants(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	tenants, err := h.service.ListTenants(ctx, actor)
	if err != nil {
		h.fail(ctx, w, "list tenants failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toTenantList(tenants))
}

func (h *Handler) HandleGetTenant(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	tenantID, ok := tenantParam(w, r)
	if !ok {
		return
	}
	tenant, err := h.service.GetTenant(ctx, actor, tenantID)
	if err != nil {
		h.fail(ctx, w, "get tenant failed", err, "tenant_id", tenantID.String())
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toTenantResponse(tenant, ""))
}

func (h *Handler) HandleListApps(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if _, ok := h.actor(w, r); !ok {
		return
	}
	apps, err := h.service.ListApps(ctx)
	if err != nil {
		h.fail(ctx, w, "list apps failed", err)
		return
	}
	out := make([]*AppResponse, 0, len(apps))
	for _, a := range apps {
		out = append(out, toAppResponse(a))
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) HandleCreateApp(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[CreateAppRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	app, err := h.service.CreateApp(ctx, actor, req.Slug, req.Name, req.Domain)
	if err != nil {
		h.fail(ctx, w, "create app failed", err, "slug", req.Slug)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toAppResponse(app))
}

func (h *Handler) HandleListMembers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	tenantID, ok := tenantParam(w, r)
	if !ok {
		return
	}
	members, err := h.service.ListMembers(ctx, actor, tenantID)
	if err != nil {
		h.fail(ctx, w, "list members failed", err, "tenant_id", tenantID.String())
		return
	}
	out := make([]*MemberResponse, 0, len(members))
	for _, m := range members {
		out = append(out, toMemberResponse(m))
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

// HandleInviteMember answers 201 for a new membership and 200 with the
// "already linked" note when the user was already a member.
func (h *Handler) HandleInviteMember(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	tenantID, ok := tenantParam(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[InviteMemberRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	res, err := h.service.InviteMember(ctx, actor, req.command(tenantID))
	if err != nil {
		h.fail(ctx, w, "invite member failed", err, "tenant_id", tenantID.String())
		return
	}
	status := http.StatusCreated
	if res.AlreadyLinked {
		status = http.StatusOK
	}
	httputil.WriteJSON(w, status, toInviteResponse(res))
}

func (h *Handler) HandleUpdateMember(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	tenantID, userID, ok := memberParams(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[UpdateMemberRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	member, err := h.service.UpdateMember(ctx, actor, req.command(tenantID, userID))
	if err != nil {
		h.fail(ctx, w, "update member failed", err, "tenant_id", tenantID.String(), "user_id", userID.String())
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toMemberResponse(member))
}

func (h *Handler) HandleRemoveMember(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	tenantID, userID, ok := memberParams(w, r)
	if !ok {
		return
	}
	if err := h.service.RemoveMember(ctx, actor, tenantID, userID); err != nil {
		h.fail(ctx, w, "remove member failed", err, "tenant_id", tenantID.String(), "user_id", userID.String())
		return
	}
	httputil.WriteJSON(w, http.StatusOK, &OKResponse{OK: true})
}

func (h *Handler) HandleSendReset(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	tenantID, userID, ok := memberParams(w, r)
	if !ok {
		return
	}
	if err := h.service.SendReset(ctx, actor, tenantID, userID); err != nil {
		h.fail(ctx, w, "send reset failed", err, "tenant_id", tenantID.String(), "user_id", userID.String())
		return
	}
	httputil.WriteJSON(w, http.StatusOK, &OKResponse{OK: true})
}

func (h *Handler) HandleListTenantGrants(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	tenantID, ok := tenantParam(w, r)
	if !ok {
		return
	}
	grants, err := h.service.ListTenantGrants(ctx, actor, tenantID)
	if err != nil {
		h.fail(ctx, w, "list grants failed", err, "tenant_id", tenantID.String())
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toGrantList(grants))
}

func (h *Handler) HandleSetTenantGrant(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenantParam(w, r)
	if !ok {
		return
	}
	h.setGrant(w, r, &tenantID)
}

func (h *Handler) HandleRevokeTenantGrant(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := tenantParam(w, r)
	if !ok {
		return
	}
	h.revokeGrant(w, r, &tenantID)
}

// HandleListGlobalGrants lists the global grants of ?user_id=.
func (h *Handler) HandleListGlobalGrants(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	userID, err := id.ParseUserID(r.URL.Query().Get("user_id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	grants, err := h.service.ListGlobalGrants(ctx, actor, userID)
	if err != nil {
		h.fail(ctx, w, "list global grants failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toGrantList(grants))
}

func (h *Handler) HandleSetGlobalGrant(w http.ResponseWriter, r *http.Request) {
	h.setGrant(w, r, nil)
}

func (h *Handler) HandleRevokeGlobalGrant(w http.ResponseWriter, r *http.Request) {
	h.revokeGrant(w, r, nil)
}

func (h *Handler) setGrant(w http.ResponseWriter, r *http.Request, tenantID *id.TenantID) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[SetGrantRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	grant, err := h.service.SetGrant(ctx, actor, req.command(tenantID))
	if err != nil {
		h.fail(ctx, w, "set grant failed", err, "user_id", req.UserID, "app_id", req.AppID)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toGrantResponse(grant))
}

func (h *Handler) revokeGrant(w http.ResponseWriter, r *http.Request, tenantID *id.TenantID) {
	ctx := r.Context()
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	userID, err := id.ParseUserID(chi.URLParam(r, "user_id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	appID, err := id.ParseAppID(chi.URLParam(r, "app_id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.service.RevokeGrant(ctx, actor, userID, appID, tenantID); err != nil {
		h.fail(ctx, w, "revoke grant failed", err, "user_id", userID.String(), "app_id", appID.String())
		return
	}
	httputil.WriteJSON(w, http.StatusOK, &OKResponse{OK: true})
}

func (h *Handler) actor(w http.ResponseWriter, r *http.Request) (models.Actor, bool) {
	principal, ok := psmodels.PrincipalFromContext(r.Context())
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "not signed in"))
		return models.Actor{}, false
	}
	return principal.Actor(), true
}

// fail logs server faults at error level and refusals at info, then writes
// the mapped status.
func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, msg string, err error, attrs ...any) {
	attrs = append(attrs, "error", err, "request_id", requestcontext.RequestID(ctx))
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, msg, attrs...)
	} else {
		h.logger.InfoContext(ctx, msg, attrs...)
	}
	httputil.WriteError(w, err)
}

func tenantParam(w http.ResponseWriter, r *http.Request) (id.TenantID, bool) {
	tenantID, err := id.ParseTenantID(chi.URLParam(r, "tenant_id"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid tenant id"))
		return id.TenantID{}, false
	}
	return tenantID, true
}

func memberParams(w http.ResponseWriter, r *http.Request) (id.TenantID, id.UserID, bool) {
	tenantID, ok := tenantParam(w, r)
	if !ok {
		return id.TenantID{}, id.UserID{}, false
	}
	userID, err := id.ParseUserID(chi.URLParam(r, "user_id"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid user id"))
		return id.TenantID{}, id.UserID{}, false
	}
	return tenantID, userID, true
}
