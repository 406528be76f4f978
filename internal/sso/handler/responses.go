package handler

import (
	"net/url"
	"time"

	tenancy "keystone/internal/tenancy/models"
)

const launchPath = "/sso/launch"

type IssueResponse struct {
	Token       string    `json:"token"`
	RedirectURL string    `json:"redirect_url"`
	AppSlug     string    `json:"app_slug"`
	Role        string    `json:"role"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// AppResponse is one entry of the launcher.
type AppResponse struct {
	Slug      string `json:"slug"`
	Name      string `json:"name"`
	Domain    string `json:"domain"`
	Role      string `json:"role"`
	LaunchURL string `json:"launch_url"`
}

func toAppResponse(a tenancy.AppAccess) *AppResponse {
	return &AppResponse{
		Slug:      a.App.Slug,
		Name:      a.App.Name,
		Domain:    a.App.Domain,
		Role:      string(a.Role),
		LaunchURL: launchPath + "?app=" + url.QueryEscape(a.App.Slug),
	}
}
