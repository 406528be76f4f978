package handler

import (
	"strings"

	"keystone/internal/tenancy/models"
	"keystone/internal/tenancy/service"
	id "keystone/pkg/domain"
	dErrors "keystone/pkg/domain-errors"
	strs "keystone/pkg/platform/strings"
	"keystone/pkg/platform/validation"
)

type CreateTenantRequest struct {
	Name string `json:"name"`
}

func (r *CreateTenantRequest) Normalize() {
	if r == nil {
		return
	}
	r.Name = strings.TrimSpace(r.Name)
}

func (r *CreateTenantRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	if r.Name == "" {
		return dErrors.New(dErrors.CodeValidation, "name is required")
	}
	return validation.CheckStringLength("name", r.Name, validation.MaxNameLength)
}

type CreateAppRequest struct {
	Slug   string `json:"slug"`
	Name   string `json:"name"`
	Domain string `json:"domain"`
}

func (r *CreateAppRequest) Normalize() {
	if r == nil {
		return
	}
	r.Slug = strings.ToLower(strings.TrimSpace(r.Slug))
	r.Name = strings.TrimSpace(r.Name)
	r.Domain = strings.TrimSpace(r.Domain)
}

// Validate checks sizes only; slug and domain format belong to models.NewApp.
func (r *CreateAppRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	if r.Slug == "" || r.Name == "" || r.Domain == "" {
		return dErrors.New(dErrors.CodeValidation, "slug, name and domain are required")
	}
	if err := validation.CheckStringLength("slug", r.Slug, validation.MaxSlugLength); err != nil {
		return err
	}
	if err := validation.CheckStringLength("name", r.Name, validation.MaxNameLength); err != nil {
		return err
	}
	return validation.CheckStringLength("domain", r.Domain, validation.MaxDomainLength)
}

// InviteMemberRequest adds a user by email. Password is optional; app_ids
// are granted in the tenant with app_role.
type InviteMemberRequest struct {
	Email    string   `json:"email"`
	Name     string   `json:"name,omitempty"`
	Role     string   `json:"role,omitempty"`
	Password string   `json:"password,omitempty"`
	AppIDs   []string `json:"app_ids,omitempty"`
	AppRole  string   `json:"app_role,omitempty"`

	appIDs []id.AppID
}

func (r *InviteMemberRequest) Normalize() {
	if r == nil {
		return
	}
	r.Email = strings.TrimSpace(r.Email)
	r.Name = strings.TrimSpace(r.Name)
	r.Role = strings.ToLower(strings.TrimSpace(r.Role))
	r.AppRole = strings.ToLower(strings.TrimSpace(r.AppRole))
	r.AppIDs = strs.DedupeAndTrimLower(r.AppIDs)
}

func (r *InviteMemberRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	if err := validation.CheckSliceCount("app_ids", len(r.AppIDs), validation.MaxAppsPerGrant); err != nil {
		return err
	}
	if r.Password != "" {
		if err := validation.CheckStringLength("password", r.Password, validation.MaxPasswordLength); err != nil {
			return err
		}
	}
	r.appIDs = r.appIDs[:0]
	for _, raw := range r.AppIDs {
		appID, err := id.ParseAppID(raw)
		if err != nil {
			return err
		}
		r.appIDs = append(r.appIDs, appID)
	}
	return nil
}

func (r *InviteMemberRequest) command(tenantID id.TenantID) service.InviteCommand {
	return service.InviteCommand{
		TenantID: tenantID,
		Email:    r.Email,
		Name:     r.Name,
		Role:     models.Role(r.Role),
		Password: r.Password,
		AppIDs:   r.appIDs,
		AppRole:  models.Role(r.AppRole),
	}
}

// UpdateMemberRequest changes only the fields present in the body.
type UpdateMemberRequest struct {
	Name              *string `json:"name,omitempty"`
	Role              *string `json:"role,omitempty"`
	AccountLocked     *bool   `json:"account_locked,omitempty"`
	TemporaryPassword *string `json:"temporary_password,omitempty"`
}

func (r *UpdateMemberRequest) Normalize() {
	if r == nil {
		return
	}
	r.Name = strs.TrimSpacePtr(r.Name)
	if r.Role != nil {
		role := strings.ToLower(strings.TrimSpace(*r.Role))
		r.Role = &role
	}
}

func (r *UpdateMemberRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	if r.Name != nil {
		if err := validation.CheckStringLength("name", *r.Name, validation.MaxNameLength); err != nil {
			return err
		}
	}
	if r.TemporaryPassword != nil {
		if err := validation.CheckStringLength("temporary_password", *r.TemporaryPassword, validation.MaxPasswordLength); err != nil {
			return err
		}
	}
	return nil
}

func (r *UpdateMemberRequest) command(tenantID id.TenantID, userID id.UserID) service.UpdateMemberCommand {
	cmd := service.UpdateMemberCommand{
		TenantID:          tenantID,
		UserID:            userID,
		Name:              r.Name,
		AccountLocked:     r.AccountLocked,
		TemporaryPassword: r.TemporaryPassword,
	}
	if r.Role != nil {
		role := models.Role(*r.Role)
		cmd.Role = &role
	}
	return cmd
}

// SetGrantRequest creates or replaces a grant. The scope comes from the route.
type SetGrantRequest struct {
	UserID string `json:"user_id"`
	AppID  string `json:"app_id"`
	Role   string `json:"role,omitempty"`

	userID id.UserID
	appID  id.AppID
}

func (r *SetGrantRequest) Normalize() {
	if r == nil {
		return
	}
	r.UserID = strings.TrimSpace(r.UserID)
	r.AppID = strings.TrimSpace(r.AppID)
	r.Role = strings.ToLower(strings.TrimSpace(r.Role))
}

func (r *SetGrantRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	userID, err := id.ParseUserID(r.UserID)
	if err != nil {
		return err
	}
	appID, err := id.ParseAppID(r.AppID)
	if err != nil {
		return err
	}
	r.userID, r.appID = userID, appID
	return nil
}

func (r *SetGrantRequest) command(tenantID *id.TenantID) service.GrantCommand {
	return service.GrantCommand{UserID: r.userID, AppID: r.appID, TenantID: tenantID, Role: models.Role(r.Role)}
}
