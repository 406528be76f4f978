package service

import (
	"context"

	"keystone/internal/audit"
	idmodels "keystone/internal/identity/models"
	"keystone/internal/portalsession/models"
	tenancy "keystone/internal/tenancy/models"
	id "keystone/pkg/domain"
)

type Store interface {
	Create(ctx context.Context, session *models.Session) error
	FindByTokenHash(ctx context.Context, tokenHash string) (*models.Session, error)
	SetActiveTenant(ctx context.Context, tokenHash string, tenantID *id.TenantID) error
	Delete(ctx context.Context, tokenHash string) error
	DeleteByUser(ctx context.Context, userID id.UserID) (int, error)
}

// Identities verifies credentials and re-reads the account on every request.
type Identities interface {
	Authenticate(ctx context.Context, email, password string) (*idmodels.Identity, error)
	Current(ctx context.Context, userID id.UserID) (*idmodels.Identity, error)
}

type Memberships interface {
	Find(ctx context.Context, userID id.UserID, tenantID id.TenantID) (*tenancy.Membership, error)
	ListByUser(ctx context.Context, userID id.UserID) ([]*tenancy.Membership, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event)
}
