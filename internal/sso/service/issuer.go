package service

import (
	"context"
	"log/slog"

	"keystone/internal/audit"
	"keystone/internal/platform/metrics"
	"keystone/internal/sso/models"
	"keystone/pkg/ssotoken"
)

// Issuer signs SSO tokens for grants the gate already approved and records
// the issuance by id only.
type Issuer struct {
	signer         TokenSigner
	auditPublisher AuditPublisher
	metrics        *metrics.Metrics
	logger         *slog.Logger
}

type IssuerOption func(*Issuer)

func WithIssuerLogger(logger *slog.Logger) IssuerOption {
	return func(i *Issuer) {
		i.logger = logger
	}
}

func WithIssuerAudit(p AuditPublisher) IssuerOption {
	return func(i *Issuer) {
		i.auditPublisher = p
	}
}

func WithIssuerMetrics(m *metrics.Metrics) IssuerOption {
	return func(i *Issuer) {
		i.metrics = m
	}
}

func NewIssuer(signer TokenSigner, opts ...IssuerOption) *Issuer {
	i := &Issuer{signer: signer, logger: slog.Default()}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

func (i *Issuer) Issue(ctx context.Context, grant models.Grant) (*models.Token, error) {
	identity := ssotoken.Identity{
		UserID:  grant.UserID.String(),
		AppSlug: grant.AppSlug,
		Role:    string(grant.Role),
	}
	if grant.TenantID != nil {
		identity.ClientID = grant.TenantID.String()
	}
	raw, claims, err := i.signer.IssueSSO(ctx, identity)
	if err != nil {
		return nil, err
	}

	if i.metrics != nil {
		i.metrics.IncTokensIssued(grant.AppSlug)
	}
	i.logger.InfoContext(ctx, "sso token issued",
		"log_type", "audit",
		"user_id", identity.UserID,
		"tenant_id", identity.ClientID,
		"app_slug", identity.AppSlug,
		"jti", claims.ID,
	)
	if i.auditPublisher != nil {
		i.auditPublisher.Emit(ctx, audit.Event{
			Action:    audit.ActionSSOIssued,
			ActorID:   identity.UserID,
			SubjectID: identity.UserID,
			TenantID:  identity.ClientID,
			AppSlug:   identity.AppSlug,
			Decision:  "granted",
			Reason:    identity.Role,
		})
	}
	return &models.Token{Value: raw, JTI: claims.ID, ExpiresAt: claims.ExpiresAtTime()}, nil
}
