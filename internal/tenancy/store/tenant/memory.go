package tenant

import (
	"context"
	"slices"
	"strings"
	"sync"

	"keystone/internal/sentinel"
	"keystone/internal/tenancy/models"
	id "keystone/pkg/domain"
)

// InMemory stores tenants in a map guarded by a RWMutex.
type InMemory struct {
	mu      sync.RWMutex
	tenants map[id.TenantID]*models.Tenant
}

func NewInMemory() *InMemory {
	return &InMemory{tenants: make(map[id.TenantID]*models.Tenant)}
}

// Create inserts the tenant unless the name (case-insensitive) is taken.
func (s *InMemory) Create(_ context.Context, tenant *models.Tenant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tenants {
		if strings.EqualFold(t.Name, tenant.Name) {
			return sentinel.ErrAlreadyExists
		}
	}
	if _, ok := s.tenants[tenant.ID]; ok {
		return sentinel.ErrAlreadyExists
	}
	clone := *tenant
	s.tenants[tenant.ID] = &clone
	return nil
}

func (s *InMemory) FindByID(_ context.Context, tenantID id.TenantID) (*models.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tenants[tenantID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	clone := *t
	return &clone, nil
}

func (s *InMemory) FindByName(_ context.Context, name string) (*models.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.tenants {
		if strings.EqualFold(t.Name, name) {
			clone := *t
			return &clone, nil
		}
	}
	return nil, sentinel.ErrNotFound
}

// List returns all tenants ordered by name.
func (s *InMemory) List(_ context.Context) ([]*models.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Tenant, 0, len(s.tenants))
	for _, t := range s.tenants {
		clone := *t
		out = append(out, &clone)
	}
	slices.SortFunc(out, func(a, b *models.Tenant) int { return strings.Compare(a.Name, b.Name) })
	return out, nil
}
