package models

import (
	"strings"
	"time"

	id "keystone/pkg/domain"
	dErrors "keystone/pkg/domain-errors"
	"keystone/pkg/platform/validation"
)

// ResetState tracks a forced password change.
//
//	normal -> must_reset           admin set a temporary password
//	must_reset -> reset_in_progress new password stored
//	reset_in_progress -> normal    flag cleared
//
// A reset_in_progress identity already has its new password, so it is let in
// and the flag is cleared on the next login or session check.
type ResetState string

const (
	ResetNormal     ResetState = "normal"
	ResetRequired   ResetState = "must_reset"
	ResetInProgress ResetState = "reset_in_progress"
)

func (s ResetState) IsValid() bool {
	switch s {
	case ResetNormal, ResetRequired, ResetInProgress:
		return true
	}
	return false
}

// Identity is a portal account.
type Identity struct {
	ID            id.UserID
	Email         string
	Name          string
	PasswordHash  string
	IsHyper       bool
	AccountLocked bool
	ResetState    ResetState
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func NewIdentity(userID id.UserID, email, name, passwordHash string, now time.Time) (*Identity, error) {
	email = NormalizeEmail(email)
	if err := validation.CheckEmail(email); err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if err := validation.CheckStringLength("name", name, validation.MaxNameLength); err != nil {
		return nil, err
	}
	if passwordHash == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "password hash required")
	}
	return &Identity{
		ID:           userID,
		Email:        email,
		Name:         name,
		PasswordHash: passwordHash,
		ResetState:   ResetNormal,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// MustResetPassword reports whether portal access is limited to the reset form.
func (i *Identity) MustResetPassword() bool {
	return i.ResetState == ResetRequired
}

// HasStaleReset reports a reset whose password write succeeded but whose
// flag clear did not.
func (i *Identity) HasStaleReset() bool {
	return i.ResetState == ResetInProgress
}

// DisplayName falls back to the email's local part.
func (i *Identity) DisplayName() string {
	if i.Name != "" {
		return i.Name
	}
	local, _, _ := strings.Cut(i.Email, "@")
	return local
}
