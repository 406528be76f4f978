package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	sessionmodels "keystone/internal/portalsession/models"
	id "keystone/pkg/domain"
	dErrors "keystone/pkg/domain-errors"
	"keystone/pkg/platform/httputil"
	"keystone/pkg/requestcontext"
)

// forgotPasswordMessage is returned whether or not the email exists.
const forgotPasswordMessage = "If an account exists for that address, a recovery link is on its way."

type Service interface {
	ForgotPassword(ctx context.Context, email string)
	Recover(ctx context.Context, rawToken, newPassword string) (id.UserID, error)
	ChangePassword(ctx context.Context, userID id.UserID, currentPassword, newPassword string) error
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// RegisterPublic mounts the recovery routes, which need no session.
func (h *Handler) RegisterPublic(r chi.Router) {
	r.Post("/auth/forgot-password", h.HandleForgotPassword)
	r.Post("/auth/recover", h.HandleRecover)
}

// Register mounts the routes that need a signed-in principal.
func (h *Handler) Register(r chi.Router) {
	r.Post("/auth/password", h.HandleChangePassword)
}

type MessageResponse struct {
	OK      bool   `json:"ok"`
	Message string `json:"message,omitempty"`
}

func (h *Handler) HandleForgotPassword(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[ForgotPasswordRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	h.service.ForgotPassword(ctx, req.Email)
	httputil.WriteJSON(w, http.StatusOK, &MessageResponse{OK: true, Message: forgotPasswordMessage})
}

func (h *Handler) HandleRecover(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[RecoverRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	userID, err := h.service.Recover(ctx, req.Token, req.NewPassword)
	if err != nil {
		h.logger.WarnContext(ctx, "password recovery failed", "error", err, "request_id", requestID)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "password recovered", "user_id", userID.String(), "request_id", requestID)
	httputil.WriteJSON(w, http.StatusOK, &MessageResponse{OK: true})
}

func (h *Handler) HandleChangePassword(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	principal, ok := sessionmodels.PrincipalFromContext(ctx)
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "not signed in"))
		return
	}

	req, ok := httputil.DecodeAndPrepare[ChangePasswordRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	if err := h.service.ChangePassword(ctx, principal.UserID, req.CurrentPassword, req.NewPassword); err != nil {
		h.logger.WarnContext(ctx, "change password failed", "error", err, "request_id", requestID)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, &MessageResponse{OK: true})
}
