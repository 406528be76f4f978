// Package service administers the tenancy directory: tenants, apps,
// memberships and app grants. Every mutation is checked against the
// caller's role before it touches a store.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"keystone/internal/audit"
	"keystone/internal/email"
	"keystone/internal/platform/metrics"
	"keystone/internal/sentinel"
	"keystone/internal/tenancy/models"
	id "keystone/pkg/domain"
	dErrors "keystone/pkg/domain-errors"
)

const (
	loginPath = "/login"
	// memberLookupLimit bounds concurrent identity reads when listing members.
	memberLookupLimit = 8
)

type Service struct {
	tenants        TenantStore
	apps           AppStore
	memberships    MembershipStore
	grants         GrantStore
	gate           Gate
	identities     Identities
	sessions       SessionRevoker
	mailer         Mailer
	auditPublisher AuditPublisher
	metrics        *metrics.Metrics
	logger         *slog.Logger
	portalBaseURL  string
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

func WithMailer(m Mailer) Option {
	return func(s *Service) {
		s.mailer = m
	}
}

// WithSessionRevoker ends portal sessions when an account is locked.
func WithSessionRevoker(r SessionRevoker) Option {
	return func(s *Service) {
		s.sessions = r
	}
}

func WithPortalBaseURL(base string) Option {
	return func(s *Service) {
		s.portalBaseURL = strings.TrimRight(base, "/")
	}
}

// Stores groups the directory's repositories.
type Stores struct {
	Tenants     TenantStore
	Apps        AppStore
	Memberships MembershipStore
	Grants      GrantStore
}

func New(stores Stores, gate Gate, identities Identities, opts ...Option) *Service {
	s := &Service{
		tenants:     stores.Tenants,
		apps:        stores.Apps,
		memberships: stores.Memberships,
		grants:      stores.Grants,
		gate:        gate,
		identities:  identities,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.mailer == nil {
		s.mailer = email.NewLogSender(s.logger, false)
	}
	return s
}

func requireHyper(actor models.Actor) error {
	if !actor.IsHyper {
		return dErrors.New(dErrors.CodeForbidden, "operator access required")
	}
	return nil
}

func (s *Service) emit(ctx context.Context, ev audit.Event) {
	if s.auditPublisher != nil {
		s.auditPublisher.Emit(ctx, ev)
	}
}

func wrapTenantErr(err error, msg string) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, "tenant not found")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, msg)
}

func wrapAppErr(err error, msg string) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, "app not found")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, msg)
}

func wrapMemberErr(err error, msg string) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, "member not found")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, msg)
}

func actorID(actor models.Actor) string { return actor.UserID.String() }

func tenantIDString(tenantID *id.TenantID) string {
	if tenantID == nil {
		return ""
	}
	return tenantID.String()
}
