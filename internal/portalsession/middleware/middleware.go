// Package middleware authenticates portal requests from the session cookie.
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"slices"

	"keystone/internal/portalsession/models"
	dErrors "keystone/pkg/domain-errors"
	"keystone/pkg/platform/httputil"
	"keystone/pkg/requestcontext"
)

// Resolver turns a raw session token into the current principal.
type Resolver interface {
	Resolve(ctx context.Context, rawToken string) (*models.Principal, error)
}

// Cookie describes the portal session cookie.
type Cookie struct {
	Name   string
	Secure bool
}

// Set writes the session cookie. maxAge is in seconds.
func (c Cookie) Set(w http.ResponseWriter, token string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     c.Name,
		Value:    token,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (c Cookie) Clear(w http.ResponseWriter) {
	c.Set(w, "", -1)
}

// Token returns the raw session token, or "".
func (c Cookie) Token(r *http.Request) string {
	cookie, err := r.Cookie(c.Name)
	if err != nil {
		return ""
	}
	return cookie.Value
}

// RequireSession rejects requests without a live session and stores the
// principal in the request context. A cookie that no longer resolves is
// cleared.
func RequireSession(resolver Resolver, cookie Cookie, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			token := cookie.Token(r)
			if token == "" {
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "not signed in"))
				return
			}

			principal, err := resolver.Resolve(ctx, token)
			if err != nil {
				code := dErrors.CodeOf(err)
				if code == dErrors.CodeUnauthorized || code == dErrors.CodeAccountLocked {
					cookie.Clear(w)
					logger.InfoContext(ctx, "portal session rejected",
						"reason", string(code),
						"request_id", requestcontext.RequestID(ctx),
					)
				} else {
					logger.ErrorContext(ctx, "failed to resolve portal session",
						"error", err,
						"request_id", requestcontext.RequestID(ctx),
					)
				}
				httputil.WriteError(w, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(models.WithPrincipal(ctx, principal)))
		})
	}
}

// RequirePasswordCurrent blocks users who must reset their password from
// everything except the listed paths.
func RequirePasswordCurrent(allowed ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := models.PrincipalFromContext(r.Context())
			if ok && principal.MustReset && !slices.Contains(allowed, r.URL.Path) {
				httputil.WriteError(w, dErrors.New(dErrors.CodePasswordResetRequired, "password change required"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireHyper limits a route to platform operators.
func RequireHyper(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, ok := models.PrincipalFromContext(r.Context())
		if !ok {
			httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "not signed in"))
			return
		}
		if !principal.IsHyper {
			httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "operator access required"))
			return
		}
		next.ServeHTTP(w, r)
	})
}
