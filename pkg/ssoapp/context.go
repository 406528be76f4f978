package ssoapp

import (
	"context"

	"keystone/pkg/ssotoken"
)

type claimsKey struct{}

func withClaims(ctx context.Context, c *ssotoken.Claims) context.Context {
	return context.WithValue(ctx, claimsKey{}, c)
}

// ClaimsFromContext returns the session claims set by RequireSession.
func ClaimsFromContext(ctx context.Context) (*ssotoken.Claims, bool) {
	c, ok := ctx.Value(claimsKey{}).(*ssotoken.Claims)
	return c, ok && c != nil
}
