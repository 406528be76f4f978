package user

import (
	"context"
	"strings"
	"sync"
	"time"

	"keystone/internal/identity/models"
	"keystone/internal/sentinel"
	id "keystone/pkg/domain"
)

// InMemory stores identities keyed by id with a lowercase email index.
type InMemory struct {
	mu      sync.RWMutex
	users   map[id.UserID]*models.Identity
	byEmail map[string]id.UserID
}

func NewInMemory() *InMemory {
	return &InMemory{
		users:   make(map[id.UserID]*models.Identity),
		byEmail: make(map[string]id.UserID),
	}
}

func (s *InMemory) Create(_ context.Context, user *models.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	email := strings.ToLower(user.Email)
	if _, ok := s.byEmail[email]; ok {
		return sentinel.ErrAlreadyExists
	}
	if _, ok := s.users[user.ID]; ok {
		return sentinel.ErrAlreadyExists
	}
	clone := *user
	s.users[user.ID] = &clone
	s.byEmail[email] = user.ID
	return nil
}

func (s *InMemory) FindByID(_ context.Context, userID id.UserID) (*models.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[userID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	clone := *u
	return &clone, nil
}

func (s *InMemory) FindByEmail(_ context.Context, email string) (*models.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	userID, ok := s.byEmail[strings.ToLower(email)]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	clone := *s.users[userID]
	return &clone, nil
}

// UpdatePassword writes the hash and reset state together.
func (s *InMemory) UpdatePassword(_ context.Context, userID id.UserID, hash string, state models.ResetState, now time.Time) error {
	return s.update(userID, func(u *models.Identity) {
		u.PasswordHash = hash
		u.ResetState = state
		u.UpdatedAt = now
	})
}

func (s *InMemory) SetResetState(_ context.Context, userID id.UserID, state models.ResetState, now time.Time) error {
	return s.update(userID, func(u *models.Identity) {
		u.ResetState = state
		u.UpdatedAt = now
	})
}

func (s *InMemory) SetLocked(_ context.Context, userID id.UserID, locked bool, now time.Time) error {
	return s.update(userID, func(u *models.Identity) {
		u.AccountLocked = locked
		u.UpdatedAt = now
	})
}

func (s *InMemory) SetHyper(_ context.Context, userID id.UserID, hyper bool, now time.Time) error {
	return s.update(userID, func(u *models.Identity) {
		u.IsHyper = hyper
		u.UpdatedAt = now
	})
}

func (s *InMemory) UpdateName(_ context.Context, userID id.UserID, name string, now time.Time) error {
	return s.update(userID, func(u *models.Identity) {
		u.Name = name
		u.UpdatedAt = now
	})
}

func (s *InMemory) update(userID id.UserID, apply func(*models.Identity)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return sentinel.ErrNotFound
	}
	apply(u)
	return nil
}
