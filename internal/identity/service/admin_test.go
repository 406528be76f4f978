package service

import (
	"go.uber.org/mock/gomock"

	"keystone/internal/identity/models"
	"keystone/internal/sentinel"
	dErrors "keystone/pkg/domain-errors"
)

func (s *ServiceSuite) TestProvision() {
	s.Run("existing identity is returned unchanged", func() {
		user := s.newUser(models.ResetNormal, false)
		s.users.EXPECT().FindByEmail(gomock.Any(), "ada@example.com").Return(user, nil)

		got, created, err := s.service.Provision(s.ctx, ProvisionInput{Email: "ADA@example.com", Password: "ignored-pass"})
		s.Require().NoError(err)
		s.False(created)
		s.Equal(user.ID, got.ID)
	})

	s.Run("admin supplied password forces a reset", func() {
		s.users.EXPECT().FindByEmail(gomock.Any(), "new@example.com").Return(nil, sentinel.ErrNotFound)
		s.users.EXPECT().Create(gomock.Any(), gomock.Any()).Return(nil)

		got, created, err := s.service.Provision(s.ctx, ProvisionInput{Email: "new@example.com", Name: "New", Password: "temp-pass", MustReset: true})
		s.Require().NoError(err)
		s.True(created)
		s.True(got.MustResetPassword())
		s.Equal(now, got.CreatedAt)
	})

	s.Run("concurrent create returns the winner", func() {
		winner := s.newUser(models.ResetNormal, false)
		s.users.EXPECT().FindByEmail(gomock.Any(), "ada@example.com").Return(nil, sentinel.ErrNotFound)
		s.users.EXPECT().Create(gomock.Any(), gomock.Any()).Return(sentinel.ErrAlreadyExists)
		s.users.EXPECT().FindByEmail(gomock.Any(), "ada@example.com").Return(winner, nil)

		got, created, err := s.service.Provision(s.ctx, ProvisionInput{Email: "ada@example.com"})
		s.Require().NoError(err)
		s.False(created)
		s.Equal(winner.ID, got.ID)
	})

	s.Run("invalid email", func() {
		s.users.EXPECT().FindByEmail(gomock.Any(), "nope").Return(nil, sentinel.ErrNotFound)
		_, _, err := s.service.Provision(s.ctx, ProvisionInput{Email: "nope"})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

func (s *ServiceSuite) TestSetLocked() {
	user := s.newUser(models.ResetNormal, false)
	admin := s.newUser(models.ResetNormal, false)
	s.users.EXPECT().SetLocked(gomock.Any(), user.ID, true, now).Return(nil)
	s.publisher.EXPECT().Emit(gomock.Any(), gomock.Any())
	s.NoError(s.service.SetLocked(s.ctx, admin.ID, user.ID, true))

	s.users.EXPECT().SetLocked(gomock.Any(), user.ID, false, now).Return(sentinel.ErrNotFound)
	err := s.service.SetLocked(s.ctx, admin.ID, user.ID, false)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}
