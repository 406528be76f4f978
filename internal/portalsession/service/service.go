// Package service manages portal browser sessions: login, per-request
// principal resolution, tenant switching and logout.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"keystone/internal/audit"
	idmodels "keystone/internal/identity/models"
	"keystone/internal/platform/metrics"
	"keystone/internal/portalsession/device"
	"keystone/internal/portalsession/models"
	"keystone/internal/sentinel"
	tenancy "keystone/internal/tenancy/models"
	id "keystone/pkg/domain"
	dErrors "keystone/pkg/domain-errors"
	"keystone/pkg/platform/privacy"
	"keystone/pkg/requestcontext"
	"keystone/pkg/secrets"
)

const (
	DefaultSessionTTL = 12 * time.Hour
	sessionTokenBytes = 32
)

var errNoSession = dErrors.New(dErrors.CodeUnauthorized, "not signed in")

type Service struct {
	store          Store
	identities     Identities
	memberships    Memberships
	auditPublisher AuditPublisher
	metrics        *metrics.Metrics
	logger         *slog.Logger
	ttl            time.Duration
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

func WithSessionTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

func New(store Store, identities Identities, memberships Memberships, opts ...Option) *Service {
	s := &Service{
		store:       store,
		identities:  identities,
		memberships: memberships,
		logger:      slog.Default(),
		ttl:         DefaultSessionTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// TTL is the lifetime given to new sessions, for the cookie Max-Age.
func (s *Service) TTL() time.Duration { return s.ttl }

// LoginResult carries the raw cookie token. It is returned once and never
// stored.
type LoginResult struct {
	Token     string
	Session   *models.Session
	Principal *models.Principal
}

// Login authenticates the user and opens a session. The active tenant is the
// hint when the user belongs to it, otherwise the only membership if there
// is exactly one.
func (s *Service) Login(ctx context.Context, email, password string, tenantHint *id.TenantID) (*LoginResult, error) {
	user, err := s.identities.Authenticate(ctx, email, password)
	if err != nil {
		return nil, err
	}

	memberships, err := s.memberships.ListByUser(ctx, user.ID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load memberships")
	}
	var active *id.TenantID
	for _, m := range memberships {
		if tenantHint != nil && m.TenantID == *tenantHint {
			t := m.TenantID
			active = &t
			break
		}
	}
	if active == nil && len(memberships) == 1 {
		t := memberships[0].TenantID
		active = &t
	}

	token, err := secrets.Generate(sessionTokenBytes)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate session token")
	}
	now := requestcontext.Now(ctx)
	session := &models.Session{
		ID:             id.NewSessionID(),
		TokenHash:      secrets.HashToken(token),
		UserID:         user.ID,
		ActiveTenantID: active,
		DeviceName:     device.DisplayName(requestcontext.UserAgent(ctx)),
		ClientIP:       privacy.AnonymizeIP(requestcontext.ClientIP(ctx)),
		CreatedAt:      now,
		ExpiresAt:      now.Add(s.ttl),
	}
	if err := s.store.Create(ctx, session); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create session")
	}
	if s.metrics != nil {
		s.metrics.SessionStarted()
	}

	principal := newPrincipal(user, session)
	if active != nil {
		for _, m := range memberships {
			if m.TenantID == *active {
				principal.TenantRole = m.Role
			}
		}
	}

	s.logger.InfoContext(ctx, "portal session started",
		"user_id", user.ID.String(),
		"session_id", session.ID.String(),
		"device", session.DeviceName,
	)
	return &LoginResult{Token: token, Session: session, Principal: principal}, nil
}

// Resolve rebuilds the principal for a session token. Identity flags are
// read fresh, so a lock or reset takes effect on the next request. A locked
// account loses every session.
func (s *Service) Resolve(ctx context.Context, rawToken string) (*models.Principal, error) {
	session, err := s.load(ctx, rawToken)
	if err != nil {
		return nil, err
	}

	user, err := s.identities.Current(ctx, session.UserID)
	if err != nil {
		switch {
		case dErrors.HasCode(err, dErrors.CodeAccountLocked):
			s.dropUserSessions(ctx, session.UserID)
			return nil, err
		case dErrors.HasCode(err, dErrors.CodeNotFound):
			s.drop(ctx, session)
			return nil, errNoSession
		default:
			return nil, err
		}
	}

	principal := newPrincipal(user, session)
	if session.ActiveTenantID == nil {
		return principal, nil
	}

	m, err := s.memberships.Find(ctx, user.ID, *session.ActiveTenantID)
	switch {
	case err == nil:
		principal.TenantRole = m.Role
	case errors.Is(err, sentinel.ErrNotFound):
		// Removed from the tenant since login.
		principal.ActiveTenantID = nil
		if err := s.store.SetActiveTenant(ctx, session.TokenHash, nil); err != nil {
			s.logger.WarnContext(ctx, "failed to clear stale active tenant", "error", err, "session_id", session.ID.String())
		}
	default:
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load membership")
	}
	return principal, nil
}

// SwitchTenant changes the session's active tenant. The user must be a
// member; nil clears the selection.
func (s *Service) SwitchTenant(ctx context.Context, rawToken string, tenantID *id.TenantID) (*models.Principal, error) {
	principal, err := s.Resolve(ctx, rawToken)
	if err != nil {
		return nil, err
	}

	var role tenancy.Role
	if tenantID != nil {
		m, err := s.memberships.Find(ctx, principal.UserID, *tenantID)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return nil, dErrors.New(dErrors.CodeForbidden, "not a member of this tenant")
			}
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load membership")
		}
		role = m.Role
	}

	if err := s.store.SetActiveTenant(ctx, secrets.HashToken(rawToken), tenantID); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, errNoSession
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to update session")
	}

	principal.ActiveTenantID = tenantID
	principal.TenantRole = role
	ev := audit.Event{Action: audit.ActionTenantSwitched, ActorID: principal.UserID.String(), SubjectID: principal.UserID.String()}
	if tenantID != nil {
		ev.TenantID = tenantID.String()
	}
	s.emit(ctx, ev)
	return principal, nil
}

// Logout ends the session. Unknown or expired tokens are not an error.
func (s *Service) Logout(ctx context.Context, rawToken string) error {
	if rawToken == "" {
		return nil
	}
	session, err := s.store.FindByTokenHash(ctx, secrets.HashToken(rawToken))
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load session")
	}
	if err := s.store.Delete(ctx, session.TokenHash); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to delete session")
	}
	if s.metrics != nil {
		s.metrics.SessionEnded()
	}
	s.emit(ctx, audit.Event{Action: audit.ActionLogout, ActorID: session.UserID.String(), SubjectID: session.UserID.String()})
	return nil
}

// RevokeUser ends every session of userID, e.g. after an account lock.
func (s *Service) RevokeUser(ctx context.Context, userID id.UserID) error {
	removed, err := s.store.DeleteByUser(ctx, userID)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to revoke sessions")
	}
	s.sessionsEnded(removed)
	return nil
}

func (s *Service) load(ctx context.Context, rawToken string) (*models.Session, error) {
	if rawToken == "" {
		return nil, errNoSession
	}
	session, err := s.store.FindByTokenHash(ctx, secrets.HashToken(rawToken))
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, errNoSession
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load session")
	}
	if session.IsExpired(requestcontext.Now(ctx)) {
		s.drop(ctx, session)
		return nil, dErrors.New(dErrors.CodeUnauthorized, "session expired")
	}
	return session, nil
}

func (s *Service) drop(ctx context.Context, session *models.Session) {
	if err := s.store.Delete(ctx, session.TokenHash); err != nil {
		s.logger.WarnContext(ctx, "failed to delete session", "error", err, "session_id", session.ID.String())
		return
	}
	s.sessionsEnded(1)
}

func (s *Service) dropUserSessions(ctx context.Context, userID id.UserID) {
	removed, err := s.store.DeleteByUser(ctx, userID)
	if err != nil {
		s.logger.WarnContext(ctx, "failed to revoke sessions of locked account", "error", err, "user_id", userID.String())
		return
	}
	s.sessionsEnded(removed)
}

func (s *Service) sessionsEnded(n int) {
	if s.metrics == nil {
		return
	}
	for range n {
		s.metrics.SessionEnded()
	}
}

func (s *Service) emit(ctx context.Context, ev audit.Event) {
	if s.auditPublisher != nil {
		s.auditPublisher.Emit(ctx, ev)
	}
}

func newPrincipal(user *idmodels.Identity, session *models.Session) *models.Principal {
	p := &models.Principal{
		UserID:    user.ID,
		Email:     user.Email,
		Name:      user.DisplayName(),
		IsHyper:   user.IsHyper,
		MustReset: user.MustResetPassword(),
		SessionID: session.ID,
	}
	if session.ActiveTenantID != nil {
		t := *session.ActiveTenantID
		p.ActiveTenantID = &t
	}
	return p
}
