package service

import (
	"context"
	"errors"

	"keystone/internal/audit"
	"keystone/internal/identity/models"
	"keystone/internal/sentinel"
	id "keystone/pkg/domain"
	dErrors "keystone/pkg/domain-errors"
	"keystone/pkg/platform/privacy"
	"keystone/pkg/secrets"
)

var errInvalidCredentials = dErrors.New(dErrors.CodeUnauthorized, "invalid email or password")

// Authenticate verifies an email and password. Unknown emails and wrong
// passwords fail identically. The lock check runs only after the password
// matched, so a locked response never confirms a guess was wrong.
func (s *Service) Authenticate(ctx context.Context, emailAddr, password string) (*models.Identity, error) {
	user, err := s.users.FindByEmail(ctx, models.NormalizeEmail(emailAddr))
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			secrets.DummyVerify(password)
			s.incLogin("invalid_credentials")
			s.logger.InfoContext(ctx, "login failed", "reason", "unknown_email", "email", privacy.MaskEmail(emailAddr))
			return nil, errInvalidCredentials
		}
		s.incLogin("error")
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load user")
	}

	if err := secrets.VerifyPassword(password, user.PasswordHash); err != nil {
		if dErrors.HasCode(err, dErrors.CodeUnauthorized) {
			s.incLogin("invalid_credentials")
			s.emit(ctx, audit.ActionLoginFailed, id.UserID{}, user.ID, "invalid_password")
			return nil, errInvalidCredentials
		}
		s.incLogin("error")
		return nil, err
	}

	if user.AccountLocked {
		s.incLogin("locked")
		s.emit(ctx, audit.ActionLoginFailed, id.UserID{}, user.ID, "account_locked")
		return nil, dErrors.New(dErrors.CodeAccountLocked, "account is locked")
	}

	s.healStaleReset(ctx, user)
	s.incLogin("success")
	s.emit(ctx, audit.ActionLoginSucceeded, user.ID, user.ID, "")
	return user, nil
}
