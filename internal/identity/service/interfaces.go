package service

import (
	"context"
	"time"

	"keystone/internal/audit"
	"keystone/internal/email"
	"keystone/internal/identity/models"
	id "keystone/pkg/domain"
)

// UserStore persists identities.
// Error contract: lookups and updates return sentinel.ErrNotFound for unknown users.
type UserStore interface {
	Create(ctx context.Context, user *models.Identity) error
	FindByID(ctx context.Context, userID id.UserID) (*models.Identity, error)
	FindByEmail(ctx context.Context, email string) (*models.Identity, error)
	UpdatePassword(ctx context.Context, userID id.UserID, hash string, state models.ResetState, now time.Time) error
	SetResetState(ctx context.Context, userID id.UserID, state models.ResetState, now time.Time) error
	SetLocked(ctx context.Context, userID id.UserID, locked bool, now time.Time) error
	SetHyper(ctx context.Context, userID id.UserID, hyper bool, now time.Time) error
	UpdateName(ctx context.Context, userID id.UserID, name string, now time.Time) error
}

// RecoveryStore persists hashed single-use recovery tokens.
type RecoveryStore interface {
	Create(ctx context.Context, token *models.RecoveryToken) error
	Consume(ctx context.Context, tokenHash string, now time.Time) (*models.RecoveryToken, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event)
}

type Mailer interface {
	Send(ctx context.Context, msg email.Message) error
}
