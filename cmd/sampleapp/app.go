package main

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"keystone/internal/platform/config"
	"keystone/internal/platform/health"
	"keystone/pkg/platform/httputil"
	"keystone/pkg/platform/middleware/request"
	"keystone/pkg/ssoapp"
	"keystone/pkg/ssotoken"
)

// WhoAmIResponse is what the protected home page returns.
type WhoAmIResponse struct {
	App       string    `json:"app"`
	UserID    string    `json:"user_id"`
	Role      string    `json:"role"`
	TenantID  string    `json:"tenant_id,omitempty"`
	ExpiresAt time.Time `json:"session_expires_at"`
}

// newRouter builds the sample app: GET /sso exchanges a portal token, GET /
// shows the session claims, POST /logout drops the app session.
func newRouter(cfg config.App, reg prometheus.Registerer, gatherer prometheus.Gatherer, log *slog.Logger) (http.Handler, error) {
	sso, err := ssotoken.New([]byte(cfg.SharedSecret),
		ssotoken.WithSSOTTL(cfg.SSOTTL),
		ssotoken.WithAppSessionTTL(cfg.SessionTTL),
		ssotoken.WithLeeway(cfg.ClockLeeway),
	)
	if err != nil {
		return nil, err
	}
	opts := []ssoapp.ExchangerOption{
		ssoapp.WithLogger(log),
		ssoapp.WithMetrics(ssoapp.NewMetrics(reg)),
	}
	if cfg.SessionSecret != "" {
		sessions, err := ssotoken.New([]byte(cfg.SessionSecret),
			ssotoken.WithSSOTTL(cfg.SSOTTL),
			ssotoken.WithAppSessionTTL(cfg.SessionTTL),
			ssotoken.WithLeeway(cfg.ClockLeeway),
		)
		if err != nil {
			return nil, err
		}
		opts = append(opts, ssoapp.WithSessionCodec(sessions))
	}
	exchanger, err := ssoapp.NewExchanger(cfg.AppSlug, sso, opts...)
	if err != nil {
		return nil, err
	}
	app := ssoapp.NewHandler(exchanger, ssoapp.HandlerConfig{
		PortalLoginURL: cfg.PortalLoginURL,
		PublicURL:      cfg.PublicURL,
		CookieName:     cfg.CookieName,
		InsecureCookie: cfg.InsecureCookie,
	})

	r := chi.NewRouter()
	r.Use(request.Recovery(log))
	r.Use(request.RequestID)
	r.Use(request.Clock)
	r.Use(request.Logger(log))

	health.New(cfg.Env).Register(r)
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	r.Get("/sso", app.HandleSSO)
	r.Post("/logout", app.HandleLogout)
	r.With(app.RequireSession).Get("/", func(w http.ResponseWriter, r *http.Request) {
		claims, ok := ssoapp.ClaimsFromContext(r.Context())
		if !ok {
			http.Redirect(w, r, app.LoginURL("/"), http.StatusFound)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, &WhoAmIResponse{
			App:       claims.AppSlug,
			UserID:    claims.UserID,
			Role:      claims.Role,
			TenantID:  claims.ClientID,
			ExpiresAt: claims.ExpiresAtTime(),
		})
	})
	return r, nil
}
