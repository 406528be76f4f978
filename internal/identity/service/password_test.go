package service

import (
	"errors"

	"go.uber.org/mock/gomock"

	"keystone/internal/identity/models"
	dErrors "keystone/pkg/domain-errors"
	"keystone/pkg/secrets"
)

func (s *ServiceSuite) TestChangePassword() {
	s.Run("normal state requires the current password", func() {
		user := s.newUser(models.ResetNormal, false)
		s.users.EXPECT().FindByID(gomock.Any(), user.ID).Return(user, nil)
		err := s.service.ChangePassword(s.ctx, user.ID, "", "new-password")
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))

		s.users.EXPECT().FindByID(gomock.Any(), user.ID).Return(user, nil)
		err = s.service.ChangePassword(s.ctx, user.ID, "wrong", "new-password")
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	s.Run("normal change is a single write", func() {
		user := s.newUser(models.ResetNormal, false)
		s.users.EXPECT().FindByID(gomock.Any(), user.ID).Return(user, nil)
		s.users.EXPECT().UpdatePassword(gomock.Any(), user.ID, gomock.Any(), models.ResetNormal, now).
			DoAndReturn(func(_ any, _ any, hash string, _ models.ResetState, _ any) error {
				s.NoError(secrets.VerifyPassword("new-password", hash))
				return nil
			})
		s.publisher.EXPECT().Emit(gomock.Any(), gomock.Any())

		s.NoError(s.service.ChangePassword(s.ctx, user.ID, "correct horse", "new-password"))
	})

	s.Run("stale in-progress state still requires the current password", func() {
		user := s.newUser(models.ResetInProgress, false)
		s.users.EXPECT().FindByID(gomock.Any(), user.ID).Return(user, nil)
		s.users.EXPECT().UpdatePassword(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Times(0)
		err := s.service.ChangePassword(s.ctx, user.ID, "", "new-password")
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))

		s.users.EXPECT().FindByID(gomock.Any(), user.ID).Return(user, nil)
		s.users.EXPECT().UpdatePassword(gomock.Any(), user.ID, gomock.Any(), models.ResetNormal, now).Return(nil)
		s.users.EXPECT().SetResetState(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Times(0)
		s.publisher.EXPECT().Emit(gomock.Any(), gomock.Any())
		s.NoError(s.service.ChangePassword(s.ctx, user.ID, "correct horse", "new-password"))
	})

	s.Run("forced reset stores the password before clearing the flag", func() {
		user := s.newUser(models.ResetRequired, false)
		s.users.EXPECT().FindByID(gomock.Any(), user.ID).Return(user, nil)
		gomock.InOrder(
			s.users.EXPECT().UpdatePassword(gomock.Any(), user.ID, gomock.Any(), models.ResetInProgress, now).Return(nil),
			s.users.EXPECT().SetResetState(gomock.Any(), user.ID, models.ResetNormal, now).Return(nil),
		)
		s.publisher.EXPECT().Emit(gomock.Any(), gomock.Any())

		s.NoError(s.service.ChangePassword(s.ctx, user.ID, "", "new-password"))
	})

	s.Run("flag is never cleared when the password write fails", func() {
		user := s.newUser(models.ResetRequired, false)
		s.users.EXPECT().FindByID(gomock.Any(), user.ID).Return(user, nil)
		s.users.EXPECT().UpdatePassword(gomock.Any(), user.ID, gomock.Any(), models.ResetInProgress, now).
			Return(errors.New("write failed"))
		s.users.EXPECT().SetResetState(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

		err := s.service.ChangePassword(s.ctx, user.ID, "", "new-password")
		s.True(dErrors.HasCode(err, dErrors.CodeInternal))
	})

	s.Run("failed flag clear still succeeds", func() {
		user := s.newUser(models.ResetRequired, false)
		s.users.EXPECT().FindByID(gomock.Any(), user.ID).Return(user, nil)
		s.users.EXPECT().UpdatePassword(gomock.Any(), user.ID, gomock.Any(), models.ResetInProgress, now).Return(nil)
		s.users.EXPECT().SetResetState(gomock.Any(), user.ID, models.ResetNormal, now).Return(errors.New("timeout"))
		s.publisher.EXPECT().Emit(gomock.Any(), gomock.Any())

		s.NoError(s.service.ChangePassword(s.ctx, user.ID, "", "new-password"))
	})

	s.Run("locked account", func() {
		user := s.newUser(models.ResetRequired, true)
		s.users.EXPECT().FindByID(gomock.Any(), user.ID).Return(user, nil)
		err := s.service.ChangePassword(s.ctx, user.ID, "", "new-password")
		s.True(dErrors.HasCode(err, dErrors.CodeAccountLocked))
	})

	s.Run("short password", func() {
		user := s.newUser(models.ResetRequired, false)
		s.users.EXPECT().FindByID(gomock.Any(), user.ID).Return(user, nil)
		err := s.service.ChangePassword(s.ctx, user.ID, "", "abc")
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

func (s *ServiceSuite) TestSetTemporaryPassword() {
	user := s.newUser(models.ResetNormal, false)
	admin := s.newUser(models.ResetNormal, false)
	s.users.EXPECT().UpdatePassword(gomock.Any(), user.ID, gomock.Any(), models.ResetRequired, now).Return(nil)
	s.publisher.EXPECT().Emit(gomock.Any(), gomock.Any())

	s.NoError(s.service.SetTemporaryPassword(s.ctx, admin.ID, user.ID, "temp-pass-1"))
}
