package handler

import (
	"strings"

	dErrors "keystone/pkg/domain-errors"
	"keystone/pkg/platform/validation"
	"keystone/pkg/secrets"
)

type ForgotPasswordRequest struct {
	Email string `json:"email"`
}

func (r *ForgotPasswordRequest) Normalize() {
	if r == nil {
		return
	}
	r.Email = strings.TrimSpace(r.Email)
}

func (r *ForgotPasswordRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	return validation.CheckEmail(r.Email)
}

type RecoverRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

func (r *RecoverRequest) Normalize() {
	if r == nil {
		return
	}
	r.Token = strings.TrimSpace(r.Token)
}

func (r *RecoverRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	if r.Token == "" {
		return dErrors.New(dErrors.CodeValidation, "token is required")
	}
	if err := validation.CheckStringLength("token", r.Token, validation.MaxTokenLength); err != nil {
		return err
	}
	return validateNewPassword(r.NewPassword)
}

// ChangePasswordRequest is sent by a signed-in user. CurrentPassword may be
// empty during a forced reset.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password,omitempty"`
	NewPassword     string `json:"new_password"`
}

func (r *ChangePasswordRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	if err := validation.CheckStringLength("current_password", r.CurrentPassword, validation.MaxPasswordLength); err != nil {
		return err
	}
	return validateNewPassword(r.NewPassword)
}

func validateNewPassword(pw string) error {
	if len(pw) < secrets.MinPasswordLength {
		return dErrors.New(dErrors.CodeValidation, "new_password must be at least 6 characters")
	}
	return validation.CheckStringLength("new_password", pw, validation.MaxPasswordLength)
}
