package service

import (
	"context"

	"keystone/internal/audit"
	"keystone/internal/identity/models"
	id "keystone/pkg/domain"
	dErrors "keystone/pkg/domain-errors"
	"keystone/pkg/requestcontext"
	"keystone/pkg/secrets"
)

// ChangePassword sets a new password for the signed-in user. A user in the
// forced-reset state is not asked for the current password.
//
// For a forced reset the new password is written together with
// reset_in_progress, and only then is the flag cleared. If the clear fails
// the change still succeeds; Current and Authenticate finish it later.
func (s *Service) ChangePassword(ctx context.Context, userID id.UserID, currentPassword, newPassword string) error {
	user, err := s.Get(ctx, userID)
	if err != nil {
		return err
	}
	if user.AccountLocked {
		return dErrors.New(dErrors.CodeAccountLocked, "account is locked")
	}

	forced := user.MustResetPassword()
	if !forced {
		if currentPassword == "" {
			return dErrors.New(dErrors.CodeValidation, "current password is required")
		}
		if err := secrets.VerifyPassword(currentPassword, user.PasswordHash); err != nil {
			if dErrors.HasCode(err, dErrors.CodeUnauthorized) {
				return dErrors.New(dErrors.CodeUnauthorized, "current password is incorrect")
			}
			return err
		}
	}

	hash, err := secrets.HashPassword(newPassword)
	if err != nil {
		return err
	}
	now := requestcontext.Now(ctx)

	if !forced {
		if err := s.users.UpdatePassword(ctx, userID, hash, models.ResetNormal, now); err != nil {
			return translateUserErr(err, "failed to update password")
		}
		s.incPasswordReset("change")
		s.emit(ctx, audit.ActionPasswordChanged, userID, userID, "")
		return nil
	}

	if err := s.users.UpdatePassword(ctx, userID, hash, models.ResetInProgress, now); err != nil {
		return translateUserErr(err, "failed to update password")
	}
	if err := s.users.SetResetState(ctx, userID, models.ResetNormal, now); err != nil {
		s.logger.WarnContext(ctx, "password updated but reset flag not cleared",
			"error", err,
			"user_id", userID.String(),
		)
	}
	s.incPasswordReset("forced")
	s.emit(ctx, audit.ActionPasswordChanged, userID, userID, "forced_reset")
	return nil
}

// SetTemporaryPassword is an admin action: it replaces the password and
// forces a reset on next sign-in.
func (s *Service) SetTemporaryPassword(ctx context.Context, actorID, userID id.UserID, password string) error {
	hash, err := secrets.HashPassword(password)
	if err != nil {
		return err
	}
	if err := s.users.UpdatePassword(ctx, userID, hash, models.ResetRequired, requestcontext.Now(ctx)); err != nil {
		return translateUserErr(err, "failed to set temporary password")
	}
	s.incPasswordReset("temporary")
	s.emit(ctx, audit.ActionPasswordChanged, actorID, userID, "temporary_password")
	return nil
}
