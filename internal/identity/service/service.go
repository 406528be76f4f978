// Package service is the portal's credential store: it verifies passwords,
// drives the forced-reset state machine, and issues recovery links.
package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"keystone/internal/audit"
	"keystone/internal/email"
	"keystone/internal/identity/models"
	"keystone/internal/platform/metrics"
	"keystone/internal/sentinel"
	id "keystone/pkg/domain"
	dErrors "keystone/pkg/domain-errors"
	"keystone/pkg/requestcontext"
)

const (
	DefaultRecoveryTTL = time.Hour
	recoveryTokenBytes = 32
	resetPasswordPath  = "/reset-password"
)

type Service struct {
	users          UserStore
	recovery       RecoveryStore
	mailer         Mailer
	auditPublisher AuditPublisher
	metrics        *metrics.Metrics
	logger         *slog.Logger
	recoveryTTL    time.Duration
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

func WithRecoveryTTL(ttl time.Duration) Option {
	return func(s *Service) {
		if ttl > 0 {
			s.recoveryTTL = ttl
		}
	}
}

// WithPortalBaseURL sets the origin recovery links point at.
func WithPortalBaseURL(base string) Option {
	return func(s *Service) {
		s.portalBaseURL = strings.TrimRight(base, "/")
	}
}

func New(users UserStore, recovery RecoveryStore, opts ...Option) *Service {
	s := &Service{
		users:       users,
		recovery:    recovery,
		logger:      slog.Default(),
		recoveryTTL: DefaultRecoveryTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.mailer == nil {
		s.mailer = email.NewLogSender(s.logger, false)
	}
	return s
}

// Get loads an identity without side effects.
func (s *Service) Get(ctx context.Context, userID id.UserID) (*models.Identity, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, translateUserErr(err, "failed to load user")
	}
	return user, nil
}

// FindByEmail returns the identity for email, or NotFound.
func (s *Service) FindByEmail(ctx context.Context, emailAddr string) (*models.Identity, error) {
	user, err := s.users.FindByEmail(ctx, models.NormalizeEmail(emailAddr))
	if err != nil {
		return nil, translateUserErr(err, "failed to load user")
	}
	return user, nil
}

// Current loads the identity behind a portal session and repairs a stale
// reset flag. A locked account is rejected.
func (s *Service) Current(ctx context.Context, userID id.UserID) (*models.Identity, error) {
	user, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.AccountLocked {
		return nil, dErrors.New(dErrors.CodeAccountLocked, "account is locked")
	}
	s.healStaleReset(ctx, user)
	return user, nil
}

// healStaleReset finishes a reset whose flag clear failed earlier. Failure
// is logged and retried on the next check.
func (s *Service) healStaleReset(ctx context.Context, user *models.Identity) {
	if !user.HasStaleReset() {
		return
	}
	if err := s.users.SetResetState(ctx, user.ID, models.ResetNormal, requestcontext.Now(ctx)); err != nil {
		s.logger.WarnContext(ctx, "failed to clear stale reset flag",
			"error", err,
			"user_id", user.ID.String(),
		)
		return
	}
	user.ResetState = models.ResetNormal
}

func (s *Service) emit(ctx context.Context, action audit.Action, actorID, subjectID id.UserID, reason string) {
	if s.auditPublisher == nil {
		return
	}
	ev := audit.Event{Action: action, SubjectID: subjectID.String(), Reason: reason}
	if !actorID.IsNil() {
		ev.ActorID = actorID.String()
	}
	s.auditPublisher.Emit(ctx, ev)
}

func (s *Service) incLogin(result string) {
	if s.metrics != nil {
		s.metrics.IncLogin(result)
	}
}

func (s *Service) incPasswordReset(flow string) {
	if s.metrics != nil {
		s.metrics.IncPasswordReset(flow)
	}
}

func translateUserErr(err error, msg string) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, "user not found")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, msg)
}
