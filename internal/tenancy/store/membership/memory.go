package membership

import (
	"context"
	"slices"
	"sync"

	"keystone/internal/sentinel"
	"keystone/internal/tenancy/models"
	id "keystone/pkg/domain"
)

type key struct {
	user   id.UserID
	tenant id.TenantID
}

// InMemory stores memberships keyed by (user, tenant).
type InMemory struct {
	mu          sync.RWMutex
	memberships map[key]*models.Membership
}

func NewInMemory() *InMemory {
	return &InMemory{memberships: make(map[key]*models.Membership)}
}

func (s *InMemory) Create(_ context.Context, m *models.Membership) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key{m.UserID, m.TenantID}
	if _, ok := s.memberships[k]; ok {
		return sentinel.ErrAlreadyExists
	}
	clone := *m
	s.memberships[k] = &clone
	return nil
}

func (s *InMemory) Find(_ context.Context, userID id.UserID, tenantID id.TenantID) (*models.Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.memberships[key{userID, tenantID}]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	clone := *m
	return &clone, nil
}

func (s *InMemory) ListByTenant(_ context.Context, tenantID id.TenantID) ([]*models.Membership, error) {
	return s.filter(func(m *models.Membership) bool { return m.TenantID == tenantID }), nil
}

func (s *InMemory) ListByUser(_ context.Context, userID id.UserID) ([]*models.Membership, error) {
	return s.filter(func(m *models.Membership) bool { return m.UserID == userID }), nil
}

func (s *InMemory) UpdateRole(_ context.Context, userID id.UserID, tenantID id.TenantID, role models.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.memberships[key{userID, tenantID}]
	if !ok {
		return sentinel.ErrNotFound
	}
	m.Role = role
	return nil
}

func (s *InMemory) Delete(_ context.Context, userID id.UserID, tenantID id.TenantID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key{userID, tenantID}
	if _, ok := s.memberships[k]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.memberships, k)
	return nil
}

// filter returns copies ordered by creation time.
func (s *InMemory) filter(keep func(*models.Membership) bool) []*models.Membership {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Membership
	for _, m := range s.memberships {
		if keep(m) {
			clone := *m
			out = append(out, &clone)
		}
	}
	slices.SortFunc(out, func(a, b *models.Membership) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return out
}
