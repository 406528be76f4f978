package service

import (
	"strings"

	"keystone/internal/tenancy/models"
	id "keystone/pkg/domain"
	dErrors "keystone/pkg/domain-errors"
	"keystone/pkg/platform/validation"
)

// InviteCommand adds a user to a tenant by email, creating the identity when
// the address is new.
type InviteCommand struct {
	TenantID id.TenantID
	Email    string
	Name     string
	Role     models.Role
	// Password is optional. When set the user must change it at first login;
	// when empty the welcome email carries a recovery link instead.
	Password string
	AppIDs   []id.AppID
	AppRole  models.Role
}

func (c *InviteCommand) Validate() error {
	c.Email = strings.TrimSpace(c.Email)
	c.Name = strings.TrimSpace(c.Name)
	if c.TenantID.IsNil() {
		return dErrors.New(dErrors.CodeBadRequest, "tenant ID required")
	}
	if err := validation.CheckEmail(c.Email); err != nil {
		return err
	}
	if err := validation.CheckStringLength("name", c.Name, validation.MaxNameLength); err != nil {
		return err
	}
	if c.Role == "" {
		c.Role = models.RoleUser
	}
	if !c.Role.IsValid() {
		return dErrors.New(dErrors.CodeValidation, "invalid role")
	}
	if c.AppRole == "" {
		c.AppRole = models.DefaultAppRole
	}
	if !c.AppRole.IsValid() {
		return dErrors.New(dErrors.CodeValidation, "invalid app role")
	}
	if err := validation.CheckSliceCount("apps", len(c.AppIDs), validation.MaxAppsPerGrant); err != nil {
		return err
	}
	return nil
}

// UpdateMemberCommand changes only the fields that are set.
type UpdateMemberCommand struct {
	TenantID          id.TenantID
	UserID            id.UserID
	Name              *string
	Role              *models.Role
	AccountLocked     *bool
	TemporaryPassword *string
}

func (c *UpdateMemberCommand) Validate() error {
	if c.TenantID.IsNil() || c.UserID.IsNil() {
		return dErrors.New(dErrors.CodeBadRequest, "tenant and user IDs required")
	}
	if c.Role != nil && !c.Role.IsValid() {
		return dErrors.New(dErrors.CodeValidation, "invalid role")
	}
	if c.Name == nil && c.Role == nil && c.AccountLocked == nil && c.TemporaryPassword == nil {
		return dErrors.New(dErrors.CodeValidation, "nothing to update")
	}
	return nil
}

// touchesAccount reports whether the update reaches the identity rather than
// just the membership.
func (c *UpdateMemberCommand) touchesAccount() bool {
	return c.Name != nil || c.AccountLocked != nil || c.TemporaryPassword != nil
}

// GrantCommand sets a user's access to an app. A nil TenantID is a global
// grant.
type GrantCommand struct {
	UserID   id.UserID
	AppID    id.AppID
	TenantID *id.TenantID
	Role     models.Role
}

func (c *GrantCommand) Validate() error {
	if c.UserID.IsNil() || c.AppID.IsNil() {
		return dErrors.New(dErrors.CodeBadRequest, "user and app IDs required")
	}
	if c.Role == "" {
		c.Role = models.DefaultAppRole
	}
	if !c.Role.IsValid() {
		return dErrors.New(dErrors.CodeValidation, "invalid role")
	}
	return nil
}
