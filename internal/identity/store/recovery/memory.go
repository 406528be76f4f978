package recovery

import (
	"context"
	"sync"
	"time"

	"keystone/internal/identity/models"
	"keystone/internal/sentinel"
)

// InMemory stores recovery tokens keyed by hash.
type InMemory struct {
	mu     sync.Mutex
	tokens map[string]*models.RecoveryToken
}

func NewInMemory() *InMemory {
	return &InMemory{tokens: make(map[string]*models.RecoveryToken)}
}

func (s *InMemory) Create(_ context.Context, token *models.RecoveryToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tokens[token.TokenHash]; ok {
		return sentinel.ErrAlreadyExists
	}
	clone := *token
	s.tokens[token.TokenHash] = &clone
	return nil
}

// Consume marks the token used. It succeeds at most once per token.
func (s *InMemory) Consume(_ context.Context, tokenHash string, now time.Time) (*models.RecoveryToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tokens[tokenHash]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if t.IsUsed() {
		return nil, sentinel.ErrAlreadyUsed
	}
	if t.IsExpired(now) {
		return nil, sentinel.ErrExpired
	}
	used := now
	t.UsedAt = &used
	clone := *t
	return &clone, nil
}
