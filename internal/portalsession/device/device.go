// Package device turns User-Agent headers into display names for the
// session list.
package device

import (
	"strings"

	"github.com/mssola/useragent"
)

// DisplayName returns "Browser on OS", e.g. "Chrome on macOS" or
// "Safari on iPhone".
func DisplayName(userAgent string) string {
	if userAgent == "" {
		return "Unknown Device"
	}

	ua := useragent.New(userAgent)
	browser, _ := ua.Browser()
	os := ua.OS()

	if ua.Mobile() {
		if platform := ua.Platform(); platform != "" && browser != "" {
			return strings.TrimSpace(browser + " on " + platform)
		}
	}
	if browser == "" {
		browser = "Unknown Browser"
	}
	if os == "" {
		os = "Unknown OS"
	}
	return strings.TrimSpace(browser + " on " + os)
}
