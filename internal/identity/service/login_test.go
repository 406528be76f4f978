package service

import (
	"errors"

	"go.uber.org/mock/gomock"

	"keystone/internal/audit"
	"keystone/internal/identity/models"
	"keystone/internal/sentinel"
	dErrors "keystone/pkg/domain-errors"
)

func (s *ServiceSuite) TestAuthenticate() {
	s.Run("success", func() {
		user := s.newUser(models.ResetNormal, false)
		s.users.EXPECT().FindByEmail(gomock.Any(), "ada@example.com").Return(user, nil)
		s.publisher.EXPECT().Emit(gomock.Any(), gomock.AssignableToTypeOf(audit.Event{})).
			Do(func(_ any, ev audit.Event) { s.Equal(audit.ActionLoginSucceeded, ev.Action) })

		got, err := s.service.Authenticate(s.ctx, " Ada@Example.com ", "correct horse")
		s.Require().NoError(err)
		s.Equal(user.ID, got.ID)
	})

	s.Run("unknown email and wrong password fail the same way", func() {
		s.users.EXPECT().FindByEmail(gomock.Any(), "ghost@example.com").Return(nil, sentinel.ErrNotFound)
		_, unknownErr := s.service.Authenticate(s.ctx, "ghost@example.com", "whatever")

		user := s.newUser(models.ResetNormal, false)
		s.users.EXPECT().FindByEmail(gomock.Any(), "ada@example.com").Return(user, nil)
		s.publisher.EXPECT().Emit(gomock.Any(), gomock.Any())
		_, wrongErr := s.service.Authenticate(s.ctx, "ada@example.com", "wrong password")

		s.True(dErrors.HasCode(unknownErr, dErrors.CodeUnauthorized))
		s.Equal(unknownErr.Error(), wrongErr.Error())
	})

	s.Run("locked account is rejected even with the right password", func() {
		user := s.newUser(models.ResetNormal, true)
		s.users.EXPECT().FindByEmail(gomock.Any(), "ada@example.com").Return(user, nil)
		s.publisher.EXPECT().Emit(gomock.Any(), gomock.Any())

		_, err := s.service.Authenticate(s.ctx, "ada@example.com", "correct horse")
		s.True(dErrors.HasCode(err, dErrors.CodeAccountLocked))
	})

	s.Run("locked account with a wrong password looks like bad credentials", func() {
		user := s.newUser(models.ResetNormal, true)
		s.users.EXPECT().FindByEmail(gomock.Any(), "ada@example.com").Return(user, nil)
		s.publisher.EXPECT().Emit(gomock.Any(), gomock.Any())

		_, err := s.service.Authenticate(s.ctx, "ada@example.com", "nope-nope")
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	s.Run("stale reset flag is cleared at login", func() {
		user := s.newUser(models.ResetInProgress, false)
		s.users.EXPECT().FindByEmail(gomock.Any(), "ada@example.com").Return(user, nil)
		s.users.EXPECT().SetResetState(gomock.Any(), user.ID, models.ResetNormal, now).Return(nil)
		s.publisher.EXPECT().Emit(gomock.Any(), gomock.Any())

		got, err := s.service.Authenticate(s.ctx, "ada@example.com", "correct horse")
		s.Require().NoError(err)
		s.Equal(models.ResetNormal, got.ResetState)
	})

	s.Run("store failure is internal", func() {
		s.users.EXPECT().FindByEmail(gomock.Any(), gomock.Any()).Return(nil, errors.New("db down"))
		_, err := s.service.Authenticate(s.ctx, "ada@example.com", "correct horse")
		s.True(dErrors.HasCode(err, dErrors.CodeInternal))
	})
}

func (s *ServiceSuite) TestCurrent() {
	s.Run("locked", func() {
		user := s.newUser(models.ResetNormal, true)
		s.users.EXPECT().FindByID(gomock.Any(), user.ID).Return(user, nil)
		_, err := s.service.Current(s.ctx, user.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeAccountLocked))
	})

	s.Run("heal failure still lets the user in", func() {
		user := s.newUser(models.ResetInProgress, false)
		s.users.EXPECT().FindByID(gomock.Any(), user.ID).Return(user, nil)
		s.users.EXPECT().SetResetState(gomock.Any(), user.ID, models.ResetNormal, now).Return(errors.New("timeout"))

		got, err := s.service.Current(s.ctx, user.ID)
		s.Require().NoError(err)
		s.False(got.MustResetPassword())
	})

	s.Run("unknown user", func() {
		user := s.newUser(models.ResetNormal, false)
		s.users.EXPECT().FindByID(gomock.Any(), user.ID).Return(nil, sentinel.ErrNotFound)
		_, err := s.service.Current(s.ctx, user.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}
