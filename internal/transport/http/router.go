// Package httptransport assembles the portal's HTTP surface: the middleware
// stack, public credential routes behind a rate limit, and session-guarded
// routes behind the forced-reset gate.
package httptransport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"keystone/internal/platform/health"
	"keystone/internal/portalsession/middleware"
	dErrors "keystone/pkg/domain-errors"
	"keystone/pkg/platform/httputil"
	"keystone/pkg/platform/middleware/request"
	"keystone/pkg/platform/validation"
)

const (
	DefaultRequestTimeout = 30 * time.Second
	DefaultLoginRateLimit = 10
)

// resetAllowlist is what a user who must change their password can still reach.
var resetAllowlist = []string{"/me", "/auth/password", "/auth/logout"}

// RouteRegistrar is implemented by every feature handler.
type RouteRegistrar interface {
	Register(r chi.Router)
}

// PublicRouteRegistrar mounts routes that work without a portal session.
type PublicRouteRegistrar interface {
	RegisterPublic(r chi.Router)
}

// Deps carries everything the router mounts. Handlers are registered in
// order; each may implement RegisterPublic as well as Register.
type Deps struct {
	Logger         *slog.Logger
	Resolver       middleware.Resolver
	Cookie         middleware.Cookie
	Handlers       []RouteRegistrar
	Health         *health.Handler
	MetricsHandler http.Handler
	Latency        *request.Metrics
	RequestTimeout time.Duration
	// LoginRateLimit is requests per minute per client IP on the public
	// credential routes.
	LoginRateLimit int
}

func NewRouter(d Deps) http.Handler {
	if d.RequestTimeout <= 0 {
		d.RequestTimeout = DefaultRequestTimeout
	}
	if d.LoginRateLimit <= 0 {
		d.LoginRateLimit = DefaultLoginRateLimit
	}

	r := chi.NewRouter()
	r.Use(request.Recovery(d.Logger))
	r.Use(request.RequestID)
	r.Use(request.Clock)
	r.Use(request.ClientMetadata)
	r.Use(request.Logger(d.Logger))
	r.Use(request.Timeout(d.RequestTimeout))
	r.Use(request.BodyLimit(validation.MaxBodySize))
	r.Use(request.ContentTypeJSON)
	r.Use(request.LatencyMiddleware(d.Latency, routePattern))

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "route not found"))
	})

	if d.Health != nil {
		d.Health.Register(r)
	}
	if d.MetricsHandler != nil {
		r.Handle("/metrics", d.MetricsHandler)
	}

	r.Group(func(r chi.Router) {
		r.Use(credentialRateLimit(d.LoginRateLimit))
		for _, h := range d.Handlers {
			if p, ok := h.(PublicRouteRegistrar); ok {
				p.RegisterPublic(r)
			}
		}
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireSession(d.Resolver, d.Cookie, d.Logger))
		r.Use(middleware.RequirePasswordCurrent(resetAllowlist...))
		for _, h := range d.Handlers {
			h.Register(r)
		}
	})

	return r
}

// credentialRateLimit throttles password guessing per client IP.
func credentialRateLimit(perMinute int) func(http.Handler) http.Handler {
	return httprate.Limit(
		perMinute,
		time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Retry-After", "60")
			httputil.WriteJSON(w, http.StatusTooManyRequests, &httputil.ErrorResponse{
				Error:            "rate_limited",
				ErrorDescription: "too many attempts, try again later",
			})
		}),
	)
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		return rctx.RoutePattern()
	}
	return ""
}
