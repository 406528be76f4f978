package handler

import (
	"time"

	"keystone/internal/tenancy/models"
	"keystone/internal/tenancy/service"
)

type TenantResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Role      string    `json:"role,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type AppResponse struct {
	ID        string    `json:"id"`
	Slug      string    `json:"slug"`
	Name      string    `json:"name"`
	Domain    string    `json:"domain"`
	CreatedAt time.Time `json:"created_at"`
}

type MemberResponse struct {
	UserID            string    `json:"user_id"`
	TenantID          string    `json:"tenant_id"`
	Email             string    `json:"email"`
	Name              string    `json:"name"`
	Role              string    `json:"role"`
	AccountLocked     bool      `json:"account_locked"`
	MustResetPassword bool      `json:"must_reset_password"`
	CreatedAt         time.Time `json:"created_at"`
}

type GrantResponse struct {
	UserID    string    `json:"user_id"`
	AppID     string    `json:"app_id"`
	TenantID  string    `json:"tenant_id,omitempty"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// InviteResponse carries Note "already linked" when the user was a member
// before the call.
type InviteResponse struct {
	OK        bool             `json:"ok"`
	Note      string           `json:"note,omitempty"`
	Created   bool             `json:"created"`
	EmailSent bool             `json:"email_sent"`
	Member    *MemberResponse  `json:"member"`
	Grants    []*GrantResponse `json:"grants,omitempty"`
}

type OKResponse struct {
	OK bool `json:"ok"`
}

const noteAlreadyLinked = "already linked"

func toTenantResponse(t *models.Tenant, role models.Role) *TenantResponse {
	return &TenantResponse{ID: t.ID.String(), Name: t.Name, Role: string(role), CreatedAt: t.CreatedAt}
}

func toTenantList(access []models.TenantAccess) []*TenantResponse {
	out := make([]*TenantResponse, 0, len(access))
	for _, a := range access {
		out = append(out, toTenantResponse(a.Tenant, a.Role))
	}
	return out
}

func toAppResponse(a *models.App) *AppResponse {
	return &AppResponse{ID: a.ID.String(), Slug: a.Slug, Name: a.Name, Domain: a.Domain, CreatedAt: a.CreatedAt}
}

func toMemberResponse(m *models.Member) *MemberResponse {
	return &MemberResponse{
		UserID:            m.UserID.String(),
		TenantID:          m.TenantID.String(),
		Email:             m.Email,
		Name:              m.Name,
		Role:              string(m.Role),
		AccountLocked:     m.AccountLocked,
		MustResetPassword: m.MustReset,
		CreatedAt:         m.CreatedAt,
	}
}

func toGrantResponse(g *models.Grant) *GrantResponse {
	resp := &GrantResponse{
		UserID:    g.UserID.String(),
		AppID:     g.AppID.String(),
		Role:      string(g.EffectiveRole()),
		CreatedAt: g.CreatedAt,
	}
	if g.TenantID != nil {
		resp.TenantID = g.TenantID.String()
	}
	return resp
}

func toGrantList(grants []*models.Grant) []*GrantResponse {
	out := make([]*GrantResponse, 0, len(grants))
	for _, g := range grants {
		out = append(out, toGrantResponse(g))
	}
	return out
}

func toInviteResponse(res *service.InviteResult) *InviteResponse {
	resp := &InviteResponse{
		OK:        true,
		Created:   res.Created,
		EmailSent: res.EmailSent,
		Member:    toMemberResponse(res.Member),
	}
	if res.AlreadyLinked {
		resp.Note = noteAlreadyLinked
	}
	if len(res.Grants) > 0 {
		resp.Grants = toGrantList(res.Grants)
	}
	return resp
}
