package handler

import (
	"strings"

	id "keystone/pkg/domain"
	dErrors "keystone/pkg/domain-errors"
	"keystone/pkg/platform/validation"
)

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	TenantID string `json:"tenant_id,omitempty"`

	tenantID *id.TenantID
}

func (r *LoginRequest) Normalize() {
	if r == nil {
		return
	}
	r.Email = strings.TrimSpace(r.Email)
	r.TenantID = strings.TrimSpace(r.TenantID)
}

func (r *LoginRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	if r.Email == "" || r.Password == "" {
		return dErrors.New(dErrors.CodeValidation, "email and password are required")
	}
	if err := validation.CheckStringLength("email", r.Email, validation.MaxEmailLength); err != nil {
		return err
	}
	if err := validation.CheckStringLength("password", r.Password, validation.MaxPasswordLength); err != nil {
		return err
	}
	if r.TenantID != "" {
		tenantID, err := id.ParseTenantID(r.TenantID)
		if err != nil {
			return err
		}
		r.tenantID = &tenantID
	}
	return nil
}

// SwitchTenantRequest selects the active tenant. An empty tenant_id clears it.
type SwitchTenantRequest struct {
	TenantID string `json:"tenant_id"`

	tenantID *id.TenantID
}

func (r *SwitchTenantRequest) Normalize() {
	if r == nil {
		return
	}
	r.TenantID = strings.TrimSpace(r.TenantID)
}

func (r *SwitchTenantRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	if r.TenantID == "" {
		return nil
	}
	tenantID, err := id.ParseTenantID(r.TenantID)
	if err != nil {
		return err
	}
	r.tenantID = &tenantID
	return nil
}
