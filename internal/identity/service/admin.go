package service

import (
	"context"
	"errors"
	"strings"

	"keystone/internal/audit"
	"keystone/internal/identity/models"
	"keystone/internal/sentinel"
	id "keystone/pkg/domain"
	dErrors "keystone/pkg/domain-errors"
	"keystone/pkg/platform/validation"
	"keystone/pkg/requestcontext"
	"keystone/pkg/secrets"
)

// ProvisionInput creates an identity if the email is new.
type ProvisionInput struct {
	Email string
	Name  string
	// Password is optional. When empty a random one is generated and the
	// user is expected to choose their own through a recovery link.
	Password  string
	MustReset bool
	IsHyper   bool
}

// Provision returns the identity for in.Email, creating it when absent.
// created reports whether a new identity was stored. Existing identities are
// returned unchanged.
func (s *Service) Provision(ctx context.Context, in ProvisionInput) (user *models.Identity, created bool, err error) {
	emailAddr := models.NormalizeEmail(in.Email)
	existing, err := s.users.FindByEmail(ctx, emailAddr)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, sentinel.ErrNotFound) {
		return nil, false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load user")
	}

	password := in.Password
	if password == "" {
		if password, err = secrets.Generate(24); err != nil {
			return nil, false, err
		}
	}
	hash, err := secrets.HashPassword(password)
	if err != nil {
		return nil, false, err
	}
	now := requestcontext.Now(ctx)
	user, err = models.NewIdentity(id.NewUserID(), emailAddr, in.Name, hash, now)
	if err != nil {
		return nil, false, err
	}
	user.IsHyper = in.IsHyper
	if in.MustReset {
		user.ResetState = models.ResetRequired
	}

	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, sentinel.ErrAlreadyExists) {
			// Lost a race with a concurrent invite for the same email.
			existing, findErr := s.users.FindByEmail(ctx, emailAddr)
			if findErr == nil {
				return existing, false, nil
			}
		}
		return nil, false, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create user")
	}
	return user, true, nil
}

// SetLocked locks or unlocks an account. Locking takes effect on the user's
// next request: portal sessions re-check the flag every time.
func (s *Service) SetLocked(ctx context.Context, actorID, userID id.UserID, locked bool) error {
	if err := s.users.SetLocked(ctx, userID, locked, requestcontext.Now(ctx)); err != nil {
		return translateUserErr(err, "failed to update account lock")
	}
	action := audit.ActionAccountUnlocked
	if locked {
		action = audit.ActionAccountLocked
	}
	s.emit(ctx, action, actorID, userID, "")
	return nil
}

func (s *Service) SetHyper(ctx context.Context, userID id.UserID, hyper bool) error {
	if err := s.users.SetHyper(ctx, userID, hyper, requestcontext.Now(ctx)); err != nil {
		return translateUserErr(err, "failed to update hyper flag")
	}
	return nil
}

func (s *Service) UpdateName(ctx context.Context, userID id.UserID, name string) error {
	name = strings.TrimSpace(name)
	if err := validation.CheckStringLength("name", name, validation.MaxNameLength); err != nil {
		return err
	}
	if err := s.users.UpdateName(ctx, userID, name, requestcontext.Now(ctx)); err != nil {
		return translateUserErr(err, "failed to update name")
	}
	return nil
}
