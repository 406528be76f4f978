package models

import (
	"strings"
	"time"

	id "keystone/pkg/domain"
	dErrors "keystone/pkg/domain-errors"
)

const maxNameLength = 128

// Tenant is a client organisation. It owns memberships and tenant-scoped grants.
type Tenant struct {
	ID        id.TenantID
	Name      string
	CreatedAt time.Time
}

func NewTenant(tenantID id.TenantID, name string, now time.Time) (*Tenant, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "tenant name cannot be empty")
	}
	if len(name) > maxNameLength {
		return nil, dErrors.New(dErrors.CodeValidation, "tenant name must be 128 characters or less")
	}
	return &Tenant{ID: tenantID, Name: name, CreatedAt: now}, nil
}
