package models

import (
	"time"

	id "keystone/pkg/domain"
)

// Session is a portal browser session. The cookie carries a random token;
// only its hash is stored.
type Session struct {
	ID             id.SessionID
	TokenHash      string
	UserID         id.UserID
	ActiveTenantID *id.TenantID
	DeviceName     string
	ClientIP       string
	CreatedAt      time.Time
	ExpiresAt      time.Time
}

func (s *Session) IsExpired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
