package service

import (
	"context"

	"keystone/internal/audit"
	"keystone/internal/sso/models"
	"keystone/internal/tenancy/gate"
	tenancy "keystone/internal/tenancy/models"
	id "keystone/pkg/domain"
	"keystone/pkg/ssotoken"
)

// Gate decides whether a user may enter an app.
type Gate interface {
	Authorize(ctx context.Context, userID id.UserID, slug string, tenantID *id.TenantID) (*gate.Decision, error)
	AppsForUser(ctx context.Context, userID id.UserID, tenantID *id.TenantID) ([]tenancy.AppAccess, error)
}

// TokenSigner mints SSO tokens. *ssotoken.Codec satisfies it.
type TokenSigner interface {
	IssueSSO(ctx context.Context, identity ssotoken.Identity) (string, *ssotoken.Claims, error)
}

// TokenIssuer is the signing step of issuance, called only after the gate
// allowed the request.
type TokenIssuer interface {
	Issue(ctx context.Context, grant models.Grant) (*models.Token, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event)
}
