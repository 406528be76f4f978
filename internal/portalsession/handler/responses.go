package handler

import (
	"time"

	"keystone/internal/portalsession/models"
)

type PrincipalResponse struct {
	UserID            string `json:"user_id"`
	Email             string `json:"email"`
	Name              string `json:"name"`
	IsHyper           bool   `json:"is_hyper"`
	MustResetPassword bool   `json:"must_reset_password"`
	ActiveTenantID    string `json:"active_tenant_id,omitempty"`
	TenantRole        string `json:"tenant_role,omitempty"`
}

type LoginResponse struct {
	PrincipalResponse
	ExpiresAt time.Time `json:"expires_at"`
}

type OKResponse struct {
	OK bool `json:"ok"`
}

func toPrincipalResponse(p *models.Principal) PrincipalResponse {
	resp := PrincipalResponse{
		UserID:            p.UserID.String(),
		Email:             p.Email,
		Name:              p.Name,
		IsHyper:           p.IsHyper,
		MustResetPassword: p.MustReset,
		TenantRole:        string(p.TenantRole),
	}
	if p.ActiveTenantID != nil {
		resp.ActiveTenantID = p.ActiveTenantID.String()
	}
	return resp
}
