// Package service is the portal side of SSO: it runs the authorization gate
// and, only when the gate allows it, signs a short-lived token for the app.
package service

import (
	"context"
	"log/slog"

	"keystone/internal/audit"
	"keystone/internal/platform/metrics"
	"keystone/internal/sso/models"
	tenancy "keystone/internal/tenancy/models"
	id "keystone/pkg/domain"
	dErrors "keystone/pkg/domain-errors"
)

// Result is what the browser needs to enter the app.
type Result struct {
	Token       *models.Token
	App         *tenancy.App
	Role        tenancy.Role
	RedirectURL string
}

type Service struct {
	gate           Gate
	issuer         TokenIssuer
	auditPublisher AuditPublisher
	metrics        *metrics.Metrics
	logger         *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditPublisher(p AuditPublisher) Option {
	return func(s *Service) {
		s.auditPublisher = p
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func New(gate Gate, issuer TokenIssuer, opts ...Option) *Service {
	s := &Service{gate: gate, issuer: issuer, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Issue authorizes userID for the app named slug in the tenant context
// (nil means global grants only) and returns a signed token. The issuer is
// not reached on any denial.
func (s *Service) Issue(ctx context.Context, userID id.UserID, slug string, tenantID *id.TenantID) (*Result, error) {
	if slug == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "app is required")
	}
	decision, err := s.gate.Authorize(ctx, userID, slug, tenantID)
	if err != nil {
		s.denied(ctx, userID, slug, tenantID, err)
		return nil, err
	}

	token, err := s.issuer.Issue(ctx, models.Grant{
		UserID:   userID,
		AppSlug:  decision.App.Slug,
		Role:     decision.Role,
		TenantID: decision.TenantID,
	})
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to issue sso token")
	}
	return &Result{
		Token:       token,
		App:         decision.App,
		Role:        decision.Role,
		RedirectURL: decision.App.SSOURL(token.Value),
	}, nil
}

// Apps lists what the user may launch in the same scope Issue would use.
func (s *Service) Apps(ctx context.Context, userID id.UserID, tenantID *id.TenantID) ([]tenancy.AppAccess, error) {
	return s.gate.AppsForUser(ctx, userID, tenantID)
}

func (s *Service) denied(ctx context.Context, userID id.UserID, slug string, tenantID *id.TenantID, err error) {
	reason := denyReason(err)
	if s.metrics != nil {
		s.metrics.IncIssueDenied(reason)
	}
	attrs := []any{"user_id", userID.String(), "app_slug", slug, "reason", reason}
	if tenantID != nil {
		attrs = append(attrs, "tenant_id", tenantID.String())
	}
	if reason == "error" {
		s.logger.ErrorContext(ctx, "sso issue failed", append(attrs, "error", err)...)
		return
	}
	s.logger.InfoContext(ctx, "sso issue denied", attrs...)

	if s.auditPublisher == nil {
		return
	}
	ev := audit.Event{
		Action:    audit.ActionSSODenied,
		ActorID:   userID.String(),
		SubjectID: userID.String(),
		AppSlug:   slug,
		Decision:  "denied",
		Reason:    reason,
	}
	if tenantID != nil {
		ev.TenantID = tenantID.String()
	}
	s.auditPublisher.Emit(ctx, ev)
}

func denyReason(err error) string {
	switch dErrors.CodeOf(err) {
	case dErrors.CodeForbidden:
		return "forbidden"
	case dErrors.CodeNotFound:
		return "unknown_app"
	default:
		return "error"
	}
}
