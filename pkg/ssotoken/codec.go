package ssotoken

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	dErrors "keystone/pkg/domain-errors"
	"keystone/pkg/requestcontext"
)

const (
	// MinSecretLength is the minimum shared secret length in bytes.
	MinSecretLength = 32

	DefaultSSOTTL        = 5 * time.Minute
	DefaultAppSessionTTL = 7 * 24 * time.Hour
	DefaultLeeway        = 5 * time.Second
	DefaultIssuer        = "keystone-portal"
)

// Codec signs and verifies tokens with one shared secret.
type Codec struct {
	secret        []byte
	issuer        string
	ssoTTL        time.Duration
	appSessionTTL time.Duration
	leeway        time.Duration
}

type Option func(*Codec)

func WithSSOTTL(ttl time.Duration) Option {
	return func(c *Codec) {
		if ttl > 0 {
			c.ssoTTL = ttl
		}
	}
}

func WithAppSessionTTL(ttl time.Duration) Option {
	return func(c *Codec) {
		if ttl > 0 {
			c.appSessionTTL = ttl
		}
	}
}

func WithLeeway(leeway time.Duration) Option {
	return func(c *Codec) {
		if leeway >= 0 {
			c.leeway = leeway
		}
	}
}

func WithIssuer(issuer string) Option {
	return func(c *Codec) {
		if issuer != "" {
			c.issuer = issuer
		}
	}
}

// New builds a Codec. The secret must be at least MinSecretLength bytes and
// the app session TTL must be longer than the SSO TTL.
func New(secret []byte, opts ...Option) (*Codec, error) {
	if len(secret) < MinSecretLength {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "signing secret must be at least 32 bytes")
	}
	c := &Codec{
		secret:        append([]byte(nil), secret...),
		issuer:        DefaultIssuer,
		ssoTTL:        DefaultSSOTTL,
		appSessionTTL: DefaultAppSessionTTL,
		leeway:        DefaultLeeway,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.appSessionTTL <= c.ssoTTL {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "app session TTL must exceed SSO TTL")
	}
	return c, nil
}

func (c *Codec) SSOTTL() time.Duration        { return c.ssoTTL }
func (c *Codec) AppSessionTTL() time.Duration { return c.appSessionTTL }

// IssueSSO mints a short-lived SSO token for id.AppSlug.
func (c *Codec) IssueSSO(ctx context.Context, id Identity) (string, *Claims, error) {
	return c.issue(ctx, id, KindSSO, c.ssoTTL)
}

// IssueAppSession mints a long-lived app session token.
func (c *Codec) IssueAppSession(ctx context.Context, id Identity) (string, *Claims, error) {
	return c.issue(ctx, id, KindAppSession, c.appSessionTTL)
}

func (c *Codec) issue(ctx context.Context, id Identity, kind Kind, ttl time.Duration) (string, *Claims, error) {
	if id.UserID == "" || id.AppSlug == "" || id.Role == "" {
		return "", nil, dErrors.New(dErrors.CodeInvalidInput, "user_id, app_slug and role are required")
	}
	now := requestcontext.Now(ctx)
	claims := &Claims{
		UserID:   id.UserID,
		ClientID: id.ClientID,
		AppSlug:  id.AppSlug,
		Role:     id.Role,
		TokenUse: kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.issuer,
			Subject:   id.UserID,
			Audience:  jwt.ClaimStrings{id.AppSlug},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to sign token")
	}
	return signed, claims, nil
}

// VerifySSO validates an SSO token presented to the app named appSlug.
func (c *Codec) VerifySSO(ctx context.Context, raw, appSlug string) (*Claims, error) {
	claims, err := c.verify(ctx, raw, appSlug, KindSSO)
	if err != nil {
		return nil, err
	}
	if claims.Lifetime() > c.ssoTTL+c.leeway {
		return nil, dErrors.New(dErrors.CodeMalformed, "token lifetime exceeds SSO TTL")
	}
	return claims, nil
}

// VerifyAppSession validates an app session token for the app named appSlug.
func (c *Codec) VerifyAppSession(ctx context.Context, raw, appSlug string) (*Claims, error) {
	return c.verify(ctx, raw, appSlug, KindAppSession)
}

func (c *Codec) verify(ctx context.Context, raw, appSlug string, kind Kind) (*Claims, error) {
	if raw == "" {
		return nil, dErrors.New(dErrors.CodeMalformed, "token is empty")
	}
	now := requestcontext.Now(ctx)

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, c.keyFunc,
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(c.leeway),
		jwt.WithTimeFunc(func() time.Time { return now }),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
		jwt.WithIssuer(c.issuer),
	)
	if err != nil {
		return nil, classify(err)
	}
	if !token.Valid {
		return nil, dErrors.New(dErrors.CodeMalformed, "invalid token")
	}

	if claims.TokenUse != kind {
		return nil, dErrors.New(dErrors.CodeMalformed, "unexpected token_use")
	}
	if claims.IssuedAt == nil {
		return nil, dErrors.New(dErrors.CodeMalformed, "missing iat")
	}
	if claims.UserID == "" || claims.AppSlug == "" || claims.Role == "" {
		return nil, dErrors.New(dErrors.CodeMalformed, "missing identity claims")
	}
	if claims.AppSlug != appSlug || !claims.hasAudience(appSlug) {
		return nil, dErrors.New(dErrors.CodeWrongAudience, "token was issued for a different app")
	}
	return claims, nil
}

func (c *Codec) keyFunc(token *jwt.Token) (any, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok || token.Method.Alg() != jwt.SigningMethodHS256.Alg() {
		return nil, jwt.ErrTokenSignatureInvalid
	}
	return c.secret, nil
}

// classify maps jwt parse errors onto the verification error kinds.
// Expiry is the only failure reported as anything other than malformed.
func classify(err error) error {
	if errors.Is(err, jwt.ErrTokenExpired) {
		return dErrors.New(dErrors.CodeExpired, "token expired")
	}
	return dErrors.Wrap(err, dErrors.CodeMalformed, "invalid token")
}

// Inspect decodes claims without verifying anything. Diagnostics only.
func Inspect(raw string) (*Claims, error) {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeMalformed, "could not decode token")
	}
	return claims, nil
}
