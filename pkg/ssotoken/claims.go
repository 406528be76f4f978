package ssotoken

import (
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Kind distinguishes the two tokens of the handshake via the token_use claim.
type Kind string

const (
	KindSSO        Kind = "sso"
	KindAppSession Kind = "app_session"
)

// Identity is the payload both tokens carry.
type Identity struct {
	UserID   string
	ClientID string // tenant; empty for users reaching the app via a global grant
	AppSlug  string
	Role     string
}

// Claims is the wire form of a token.
type Claims struct {
	UserID   string `json:"user_id"`
	ClientID string `json:"client_id,omitempty"`
	AppSlug  string `json:"app_slug"`
	Role     string `json:"role"`
	TokenUse Kind   `json:"token_use"`
	jwt.RegisteredClaims
}

// Identity returns the identity fields of the claims.
func (c *Claims) Identity() Identity {
	return Identity{
		UserID:   c.UserID,
		ClientID: c.ClientID,
		AppSlug:  c.AppSlug,
		Role:     c.Role,
	}
}

// IssuedAtTime returns iat, or the zero time when absent.
func (c *Claims) IssuedAtTime() time.Time {
	if c.IssuedAt == nil {
		return time.Time{}
	}
	return c.IssuedAt.Time
}

// ExpiresAtTime returns exp, or the zero time when absent.
func (c *Claims) ExpiresAtTime() time.Time {
	if c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time
}

// Lifetime is exp - iat.
func (c *Claims) Lifetime() time.Duration {
	return c.ExpiresAtTime().Sub(c.IssuedAtTime())
}

func (c *Claims) hasAudience(appSlug string) bool {
	if len(c.Audience) == 0 {
		return true
	}
	return slices.Contains(c.Audience, appSlug)
}
