package ssoapp

import (
	"net/http"
	"net/url"
	"strings"
	"time"
)

const DefaultCookieName = "app_session"

// HandlerConfig controls the HTTP surface around an Exchanger.
type HandlerConfig struct {
	// PortalLoginURL is the portal's login page, e.g. https://portal.example.com/login.
	PortalLoginURL string
	// PublicURL is this app's external origin. When set, redirect targets
	// sent to the portal are absolute.
	PublicURL  string
	CookieName string
	CookiePath string
	HomePath   string
	// InsecureCookie drops the Secure attribute. Local plain-HTTP development only.
	InsecureCookie bool
}

// Handler serves GET /sso and guards protected routes.
type Handler struct {
	exchanger *Exchanger
	cfg       HandlerConfig
}

func NewHandler(exchanger *Exchanger, cfg HandlerConfig) *Handler {
	if cfg.CookieName == "" {
		cfg.CookieName = DefaultCookieName
	}
	if cfg.CookiePath == "" {
		cfg.CookiePath = "/"
	}
	if cfg.HomePath == "" {
		cfg.HomePath = "/"
	}
	cfg.PublicURL = strings.TrimRight(cfg.PublicURL, "/")
	return &Handler{exchanger: exchanger, cfg: cfg}
}

// HandleSSO exchanges ?token= for an app session cookie and redirects home.
// Every failure redirects to the portal login. The redirect target is the
// app home, never the /sso URL, so the spent token is not echoed back.
func (h *Handler) HandleSSO(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	session, err := h.exchanger.Exchange(ctx, r.URL.Query().Get("token"))
	if err != nil {
		http.Redirect(w, r, h.LoginURL(h.cfg.HomePath), http.StatusFound)
		return
	}

	http.SetCookie(w, h.sessionCookie(session.Token, h.exchanger.SessionTTL()))
	http.Redirect(w, r, h.cfg.HomePath, http.StatusFound)
}

// RequireSession admits requests carrying a valid app session cookie and
// redirects everything else to the portal login with redirect=<original URL>.
func (h *Handler) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(h.cfg.CookieName)
		if err != nil || cookie.Value == "" {
			http.Redirect(w, r, h.LoginURL(r.URL.RequestURI()), http.StatusFound)
			return
		}
		claims, err := h.exchanger.VerifySession(r.Context(), cookie.Value)
		if err != nil {
			http.SetCookie(w, h.deletionCookie())
			http.Redirect(w, r, h.LoginURL(r.URL.RequestURI()), http.StatusFound)
			return
		}
		next.ServeHTTP(w, r.WithContext(withClaims(r.Context(), claims)))
	})
}

// HandleLogout clears the app session cookie. The portal session is untouched.
func (h *Handler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, h.deletionCookie())
	http.Redirect(w, r, h.LoginURL(h.cfg.HomePath), http.StatusFound)
}

// LoginURL builds <PortalLoginURL>?redirect=<PublicURL+requestURI>.
func (h *Handler) LoginURL(requestURI string) string {
	target := requestURI
	if h.cfg.PublicURL != "" {
		target = h.cfg.PublicURL + requestURI
	}
	u, err := url.Parse(h.cfg.PortalLoginURL)
	if err != nil {
		return h.cfg.PortalLoginURL
	}
	q := u.Query()
	q.Set("redirect", target)
	u.RawQuery = q.Encode()
	return u.String()
}

func (h *Handler) sessionCookie(value string, maxAge time.Duration) *http.Cookie {
	return &http.Cookie{
		Name:     h.cfg.CookieName,
		Value:    value,
		Path:     h.cfg.CookiePath,
		MaxAge:   int(maxAge.Seconds()),
		HttpOnly: true,
		Secure:   !h.cfg.InsecureCookie,
		SameSite: http.SameSiteLaxMode,
	}
}

func (h *Handler) deletionCookie() *http.Cookie {
	return &http.Cookie{
		Name:     h.cfg.CookieName,
		Value:    "",
		Path:     h.cfg.CookiePath,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   !h.cfg.InsecureCookie,
		SameSite: http.SameSiteLaxMode,
	}
}
