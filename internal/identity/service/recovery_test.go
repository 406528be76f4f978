package service

import (
	"errors"
	"net/url"
	"strings"

	"go.uber.org/mock/gomock"

	"keystone/internal/email"
	"keystone/internal/identity/models"
	"keystone/internal/sentinel"
	dErrors "keystone/pkg/domain-errors"
	"keystone/pkg/secrets"
)

func (s *ServiceSuite) TestIssueRecoveryLink() {
	user := s.newUser(models.ResetNormal, false)
	var stored *models.RecoveryToken
	s.recovery.EXPECT().Create(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ any, tok *models.RecoveryToken) error {
			stored = tok
			return nil
		})

	link, err := s.service.IssueRecoveryLink(s.ctx, user.ID)
	s.Require().NoError(err)
	s.True(strings.HasPrefix(link, "https://portal.example.com/reset-password?token="))

	u, err := url.Parse(link)
	s.Require().NoError(err)
	raw := u.Query().Get("token")
	s.Equal(secrets.HashToken(raw), stored.TokenHash, "only the hash is stored")
	s.Equal(now.Add(DefaultRecoveryTTL), stored.ExpiresAt)
}

func (s *ServiceSuite) TestForgotPassword() {
	s.Run("unknown email sends nothing", func() {
		s.users.EXPECT().FindByEmail(gomock.Any(), "ghost@example.com").Return(nil, sentinel.ErrNotFound)
		s.service.ForgotPassword(s.ctx, "ghost@example.com")
	})

	s.Run("locked account sends nothing", func() {
		user := s.newUser(models.ResetNormal, true)
		s.users.EXPECT().FindByEmail(gomock.Any(), "ada@example.com").Return(user, nil)
		s.service.ForgotPassword(s.ctx, "ada@example.com")
	})

	s.Run("existing account gets a recovery email", func() {
		user := s.newUser(models.ResetNormal, false)
		s.users.EXPECT().FindByEmail(gomock.Any(), "ada@example.com").Return(user, nil)
		s.recovery.EXPECT().Create(gomock.Any(), gomock.Any()).Return(nil)
		s.mailer.EXPECT().Send(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ any, msg email.Message) error {
				s.Equal("ada@example.com", msg.To)
				s.Contains(msg.Text, "/reset-password?token=")
				return nil
			})
		s.publisher.EXPECT().Emit(gomock.Any(), gomock.Any())
		s.service.ForgotPassword(s.ctx, "ada@example.com")
	})

	s.Run("mail failure is swallowed", func() {
		user := s.newUser(models.ResetNormal, false)
		s.users.EXPECT().FindByEmail(gomock.Any(), "ada@example.com").Return(user, nil)
		s.recovery.EXPECT().Create(gomock.Any(), gomock.Any()).Return(nil)
		s.mailer.EXPECT().Send(gomock.Any(), gomock.Any()).Return(errors.New("smtp down"))
		s.service.ForgotPassword(s.ctx, "ada@example.com")
	})
}

func (s *ServiceSuite) TestSendRecovery() {
	admin := s.newUser(models.ResetNormal, false)

	s.Run("locked account is refused", func() {
		user := s.newUser(models.ResetNormal, true)
		s.users.EXPECT().FindByID(gomock.Any(), user.ID).Return(user, nil)
		err := s.service.SendRecovery(s.ctx, admin.ID, user.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeAccountLocked))
	})

	s.Run("mail failure is reported", func() {
		user := s.newUser(models.ResetNormal, false)
		s.users.EXPECT().FindByID(gomock.Any(), user.ID).Return(user, nil)
		s.recovery.EXPECT().Create(gomock.Any(), gomock.Any()).Return(nil)
		s.mailer.EXPECT().Send(gomock.Any(), gomock.Any()).Return(errors.New("smtp down"))
		err := s.service.SendRecovery(s.ctx, admin.ID, user.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeInternal))
	})
}

func (s *ServiceSuite) TestRecover() {
	s.Run("redeems and clears a forced reset", func() {
		user := s.newUser(models.ResetRequired, false)
		s.recovery.EXPECT().Consume(gomock.Any(), secrets.HashToken("raw-token"), now).
			Return(&models.RecoveryToken{UserID: user.ID}, nil)
		s.users.EXPECT().FindByID(gomock.Any(), user.ID).Return(user, nil)
		s.users.EXPECT().UpdatePassword(gomock.Any(), user.ID, gomock.Any(), models.ResetNormal, now).Return(nil)
		s.publisher.EXPECT().Emit(gomock.Any(), gomock.Any())

		got, err := s.service.Recover(s.ctx, "raw-token", "brand-new-pass")
		s.Require().NoError(err)
		s.Equal(user.ID, got)
	})

	for name, storeErr := range map[string]error{
		"unknown": sentinel.ErrNotFound,
		"used":    sentinel.ErrAlreadyUsed,
		"expired": sentinel.ErrExpired,
	} {
		s.Run(name+" link", func() {
			s.recovery.EXPECT().Consume(gomock.Any(), gomock.Any(), now).Return(nil, storeErr)
			_, err := s.service.Recover(s.ctx, "raw-token", "brand-new-pass")
			s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
		})
	}

	s.Run("locked account", func() {
		user := s.newUser(models.ResetNormal, true)
		s.recovery.EXPECT().Consume(gomock.Any(), gomock.Any(), now).Return(&models.RecoveryToken{UserID: user.ID}, nil)
		s.users.EXPECT().FindByID(gomock.Any(), user.ID).Return(user, nil)
		_, err := s.service.Recover(s.ctx, "raw-token", "brand-new-pass")
		s.True(dErrors.HasCode(err, dErrors.CodeAccountLocked))
	})

	s.Run("password validated before the token is spent", func() {
		_, err := s.service.Recover(s.ctx, "raw-token", "x")
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
}
