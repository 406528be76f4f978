// Package store persists portal sessions keyed by the hash of the cookie
// token.
package store

import (
	"context"
	"fmt"
	"sync"

	"keystone/internal/portalsession/models"
	"keystone/internal/sentinel"
	id "keystone/pkg/domain"
)

// InMemory keeps sessions in process. Expired sessions are left in place;
// callers check ExpiresAt and delete them.
type InMemory struct {
	mu       sync.RWMutex
	sessions map[string]*models.Session
}

func NewInMemory() *InMemory {
	return &InMemory{sessions: make(map[string]*models.Session)}
}

func (s *InMemory) Create(_ context.Context, session *models.Session) error {
	if session == nil {
		return fmt.Errorf("session is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[session.TokenHash]; ok {
		return fmt.Errorf("session exists: %w", sentinel.ErrAlreadyExists)
	}
	s.sessions[session.TokenHash] = cloneSession(session)
	return nil
}

func (s *InMemory) FindByTokenHash(_ context.Context, tokenHash string) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[tokenHash]
	if !ok {
		return nil, fmt.Errorf("session not found: %w", sentinel.ErrNotFound)
	}
	return cloneSession(session), nil
}

func (s *InMemory) SetActiveTenant(_ context.Context, tokenHash string, tenantID *id.TenantID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[tokenHash]
	if !ok {
		return fmt.Errorf("session not found: %w", sentinel.ErrNotFound)
	}
	session.ActiveTenantID = copyTenantID(tenantID)
	return nil
}

// Delete is idempotent.
func (s *InMemory) Delete(_ context.Context, tokenHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, tokenHash)
	return nil
}

func (s *InMemory) DeleteByUser(_ context.Context, userID id.UserID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for hash, session := range s.sessions {
		if session.UserID == userID {
			delete(s.sessions, hash)
			removed++
		}
	}
	return removed, nil
}

func cloneSession(s *models.Session) *models.Session {
	c := *s
	c.ActiveTenantID = copyTenantID(s.ActiveTenantID)
	return &c
}

func copyTenantID(tenantID *id.TenantID) *id.TenantID {
	if tenantID == nil {
		return nil
	}
	t := *tenantID
	return &t
}
