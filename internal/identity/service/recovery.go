package service

import (
	"context"
	"errors"
	"net/url"

	"keystone/internal/audit"
	"keystone/internal/email"
	"keystone/internal/identity/models"
	"keystone/internal/sentinel"
	id "keystone/pkg/domain"
	dErrors "keystone/pkg/domain-errors"
	"keystone/pkg/platform/privacy"
	"keystone/pkg/requestcontext"
	"keystone/pkg/secrets"
)

// IssueRecoveryLink stores a new single-use token for the user and returns
// the link that redeems it.
func (s *Service) IssueRecoveryLink(ctx context.Context, userID id.UserID) (string, error) {
	raw, err := secrets.Generate(recoveryTokenBytes)
	if err != nil {
		return "", err
	}
	now := requestcontext.Now(ctx)
	token := &models.RecoveryToken{
		TokenHash: secrets.HashToken(raw),
		UserID:    userID,
		ExpiresAt: now.Add(s.recoveryTTL),
		CreatedAt: now,
	}
	if err := s.recovery.Create(ctx, token); err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to store recovery token")
	}
	return s.portalBaseURL + resetPasswordPath + "?token=" + url.QueryEscape(raw), nil
}

// ForgotPassword emails a recovery link when the address belongs to an
// unlocked account. It reports nothing, so callers respond the same way
// whether or not the account exists.
func (s *Service) ForgotPassword(ctx context.Context, emailAddr string) {
	user, err := s.users.FindByEmail(ctx, models.NormalizeEmail(emailAddr))
	if err != nil {
		if !errors.Is(err, sentinel.ErrNotFound) {
			s.logger.ErrorContext(ctx, "forgot password lookup failed", "error", err)
		}
		return
	}
	if user.AccountLocked {
		s.logger.InfoContext(ctx, "forgot password ignored for locked account", "user_id", user.ID.String())
		return
	}
	if err := s.sendRecovery(ctx, user); err != nil {
		s.logger.ErrorContext(ctx, "forgot password email not sent",
			"error", err,
			"user_id", user.ID.String(),
		)
		return
	}
	s.emit(ctx, audit.ActionRecoveryIssued, id.UserID{}, user.ID, "self_service")
}

// SendRecovery is the admin-triggered variant. Unlike ForgotPassword it
// reports failures, and it refuses locked accounts.
func (s *Service) SendRecovery(ctx context.Context, actorID, userID id.UserID) error {
	user, err := s.Get(ctx, userID)
	if err != nil {
		return err
	}
	if user.AccountLocked {
		return dErrors.New(dErrors.CodeAccountLocked, "account is locked")
	}
	if err := s.sendRecovery(ctx, user); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to send recovery email")
	}
	s.emit(ctx, audit.ActionRecoveryIssued, actorID, user.ID, "admin")
	return nil
}

func (s *Service) sendRecovery(ctx context.Context, user *models.Identity) error {
	link, err := s.IssueRecoveryLink(ctx, user.ID)
	if err != nil {
		return err
	}
	msg, err := email.Recovery(user.Email, email.RecoveryVars{Name: user.DisplayName(), Link: link, TTL: s.recoveryTTL})
	if err != nil {
		return err
	}
	if err := s.mailer.Send(ctx, msg); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "recovery email sent", "email", privacy.MaskEmail(user.Email))
	return nil
}

// Recover redeems a recovery token and sets the user's chosen password. It
// also ends any forced-reset state.
func (s *Service) Recover(ctx context.Context, rawToken, newPassword string) (id.UserID, error) {
	hash, err := secrets.HashPassword(newPassword)
	if err != nil {
		return id.UserID{}, err
	}
	now := requestcontext.Now(ctx)
	token, err := s.recovery.Consume(ctx, secrets.HashToken(rawToken), now)
	if err != nil {
		switch {
		case errors.Is(err, sentinel.ErrNotFound), errors.Is(err, sentinel.ErrAlreadyUsed), errors.Is(err, sentinel.ErrExpired):
			return id.UserID{}, dErrors.New(dErrors.CodeUnauthorized, "recovery link is invalid or expired")
		default:
			return id.UserID{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to redeem recovery link")
		}
	}

	user, err := s.Get(ctx, token.UserID)
	if err != nil {
		return id.UserID{}, err
	}
	if user.AccountLocked {
		return id.UserID{}, dErrors.New(dErrors.CodeAccountLocked, "account is locked")
	}
	if err := s.users.UpdatePassword(ctx, user.ID, hash, models.ResetNormal, now); err != nil {
		return id.UserID{}, translateUserErr(err, "failed to update password")
	}
	s.incPasswordReset("recovery")
	s.emit(ctx, audit.ActionPasswordRecover, user.ID, user.ID, "")
	return user.ID, nil
}
