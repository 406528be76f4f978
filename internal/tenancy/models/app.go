package models

import (
	"net/url"
	"regexp"
	"strings"
	"time"

	id "keystone/pkg/domain"
	dErrors "keystone/pkg/domain-errors"
)

var slugPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{0,62}$`)

// App is a downstream application reachable through SSO. Apps are global.
type App struct {
	ID        id.AppID
	Slug      string
	Name      string
	Domain    string // origin the browser is sent to, e.g. https://chat.example.com
	CreatedAt time.Time
}

func NewApp(appID id.AppID, slug, name, domain string, now time.Time) (*App, error) {
	slug = strings.TrimSpace(slug)
	if err := ValidateSlug(slug); err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" || len(name) > maxNameLength {
		return nil, dErrors.New(dErrors.CodeValidation, "app name must be 1-128 characters")
	}
	domain = strings.TrimRight(strings.TrimSpace(domain), "/")
	u, err := url.Parse(domain)
	if err != nil || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" || u.Path != "" {
		return nil, dErrors.New(dErrors.CodeValidation, "app domain must be an http(s) origin")
	}
	return &App{ID: appID, Slug: slug, Name: name, Domain: domain, CreatedAt: now}, nil
}

func ValidateSlug(slug string) error {
	if !slugPattern.MatchString(slug) {
		return dErrors.New(dErrors.CodeValidation, "app slug must be lowercase letters, digits, or dashes")
	}
	return nil
}

// SSOURL is where the browser presents a freshly minted token.
func (a *App) SSOURL(token string) string {
	return a.Domain + "/sso?token=" + url.QueryEscape(token)
}
