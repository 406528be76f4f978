// Package ssoapp is the library a downstream app embeds to accept portal SSO
// tokens: it exchanges a presented SSO token for a local app session cookie
// and guards protected routes with that cookie.
package ssoapp

import (
	"context"
	"log/slog"
	"time"

	dErrors "keystone/pkg/domain-errors"
	"keystone/pkg/ssotoken"
)

// Session is the result of a successful exchange.
type Session struct {
	Token     string
	Claims    *ssotoken.Claims
	ExpiresAt time.Time
}

// Exchanger verifies SSO tokens for exactly one app and mints that app's
// session tokens.
type Exchanger struct {
	appSlug string
	sso     *ssotoken.Codec
	session *ssotoken.Codec
	logger  *slog.Logger
	metrics *Metrics
}

type ExchangerOption func(*Exchanger)

func WithLogger(logger *slog.Logger) ExchangerOption {
	return func(e *Exchanger) {
		e.logger = logger
	}
}

func WithMetrics(m *Metrics) ExchangerOption {
	return func(e *Exchanger) {
		e.metrics = m
	}
}

// WithSessionCodec signs app sessions with a secret of the app's own instead
// of the shared SSO secret.
func WithSessionCodec(c *ssotoken.Codec) ExchangerOption {
	return func(e *Exchanger) {
		if c != nil {
			e.session = c
		}
	}
}

// NewExchanger returns an Exchanger for appSlug. sso must be built with the
// secret shared with the portal.
func NewExchanger(appSlug string, sso *ssotoken.Codec, opts ...ExchangerOption) (*Exchanger, error) {
	if appSlug == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "app slug is required")
	}
	if sso == nil {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "sso codec is required")
	}
	e := &Exchanger{
		appSlug: appSlug,
		sso:     sso,
		session: sso,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

func (e *Exchanger) AppSlug() string { return e.appSlug }

// SessionTTL is the lifetime of minted app sessions and of the cookie.
func (e *Exchanger) SessionTTL() time.Duration { return e.session.AppSessionTTL() }

// Exchange validates raw as an SSO token addressed to this app and mints an
// app session token carrying the same identity claims.
func (e *Exchanger) Exchange(ctx context.Context, raw string) (*Session, error) {
	claims, err := e.sso.VerifySSO(ctx, raw, e.appSlug)
	if err != nil {
		e.observe(ctx, "exchange", err)
		return nil, err
	}

	token, sessionClaims, err := e.session.IssueAppSession(ctx, claims.Identity())
	if err != nil {
		e.observe(ctx, "exchange", err)
		return nil, err
	}

	e.logger.InfoContext(ctx, "sso token exchanged",
		"log_type", "audit",
		"user_id", claims.UserID,
		"client_id", claims.ClientID,
		"app_slug", claims.AppSlug,
		"sso_jti", claims.ID,
		"session_jti", sessionClaims.ID,
	)
	e.observe(ctx, "exchange", nil)

	return &Session{
		Token:     token,
		Claims:    sessionClaims,
		ExpiresAt: sessionClaims.ExpiresAtTime(),
	}, nil
}

// VerifySession validates an app session cookie value.
func (e *Exchanger) VerifySession(ctx context.Context, raw string) (*ssotoken.Claims, error) {
	claims, err := e.session.VerifyAppSession(ctx, raw, e.appSlug)
	if err != nil {
		e.observe(ctx, "session", err)
		return nil, err
	}
	return claims, nil
}

func (e *Exchanger) observe(ctx context.Context, op string, err error) {
	result := "ok"
	if err != nil {
		result = string(dErrors.CodeOf(err))
		e.logger.WarnContext(ctx, "sso verification failed",
			"op", op,
			"app_slug", e.appSlug,
			"reason", result,
		)
	}
	if e.metrics != nil {
		e.metrics.Verifications.WithLabelValues(e.appSlug, op, result).Inc()
	}
}
