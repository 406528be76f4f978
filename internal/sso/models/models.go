package models

import (
	"time"

	tenancy "keystone/internal/tenancy/models"
	id "keystone/pkg/domain"
)

// Grant is an authorized issuance request: who, for which app, in which
// tenant, with which role.
type Grant struct {
	UserID   id.UserID
	AppSlug  string
	Role     tenancy.Role
	TenantID *id.TenantID
}

// Token is a freshly signed SSO token. Value must never be logged.
type Token struct {
	Value     string
	JTI       string
	ExpiresAt time.Time
}
