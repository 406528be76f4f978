package models

import (
	"time"

	id "keystone/pkg/domain"
)

// RecoveryToken is a single-use password recovery link. Only the token's
// hash is stored.
type RecoveryToken struct {
	TokenHash string
	UserID    id.UserID
	ExpiresAt time.Time
	UsedAt    *time.Time
	CreatedAt time.Time
}

func (t *RecoveryToken) IsExpired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

func (t *RecoveryToken) IsUsed() bool {
	return t.UsedAt != nil
}
