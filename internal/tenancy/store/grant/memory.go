package grant

import (
	"context"
	"slices"
	"sync"

	"keystone/internal/sentinel"
	"keystone/internal/tenancy/models"
	id "keystone/pkg/domain"
)

// key uses the zero TenantID for global grants.
type key struct {
	user   id.UserID
	app    id.AppID
	tenant id.TenantID
	global bool
}

func keyOf(userID id.UserID, appID id.AppID, tenantID *id.TenantID) key {
	if tenantID == nil {
		return key{user: userID, app: appID, global: true}
	}
	return key{user: userID, app: appID, tenant: *tenantID}
}

// InMemory stores app grants. Tenant-scoped and global grants never collide.
type InMemory struct {
	mu     sync.RWMutex
	grants map[key]*models.Grant
}

func NewInMemory() *InMemory {
	return &InMemory{grants: make(map[key]*models.Grant)}
}

// Upsert creates the grant or replaces the role of an existing one.
func (s *InMemory) Upsert(_ context.Context, g *models.Grant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := keyOf(g.UserID, g.AppID, g.TenantID)
	if existing, ok := s.grants[k]; ok {
		existing.Role = g.Role
		return nil
	}
	s.grants[k] = cloneGrant(g)
	return nil
}

func (s *InMemory) FindTenantGrant(_ context.Context, userID id.UserID, appID id.AppID, tenantID id.TenantID) (*models.Grant, error) {
	return s.find(keyOf(userID, appID, &tenantID))
}

func (s *InMemory) FindGlobalGrant(_ context.Context, userID id.UserID, appID id.AppID) (*models.Grant, error) {
	return s.find(keyOf(userID, appID, nil))
}

// ListByUser returns the user's grants scoped to tenantID, or only the
// global grants when tenantID is nil. The two sets are never mixed.
func (s *InMemory) ListByUser(_ context.Context, userID id.UserID, tenantID *id.TenantID) ([]*models.Grant, error) {
	return s.filter(func(k key) bool {
		if k.user != userID {
			return false
		}
		if tenantID == nil {
			return k.global
		}
		return !k.global && k.tenant == *tenantID
	}), nil
}

func (s *InMemory) ListByTenant(_ context.Context, tenantID id.TenantID) ([]*models.Grant, error) {
	return s.filter(func(k key) bool { return !k.global && k.tenant == tenantID }), nil
}

func (s *InMemory) Delete(_ context.Context, userID id.UserID, appID id.AppID, tenantID *id.TenantID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := keyOf(userID, appID, tenantID)
	if _, ok := s.grants[k]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.grants, k)
	return nil
}

// DeleteByMembership drops every grant the user holds within the tenant.
func (s *InMemory) DeleteByMembership(_ context.Context, userID id.UserID, tenantID id.TenantID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k := range s.grants {
		if k.user == userID && !k.global && k.tenant == tenantID {
			delete(s.grants, k)
			n++
		}
	}
	return n, nil
}

func (s *InMemory) find(k key) (*models.Grant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.grants[k]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cloneGrant(g), nil
}

func (s *InMemory) filter(keep func(key) bool) []*models.Grant {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Grant
	for k, g := range s.grants {
		if keep(k) {
			out = append(out, cloneGrant(g))
		}
	}
	slices.SortFunc(out, func(a, b *models.Grant) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return out
}

func cloneGrant(g *models.Grant) *models.Grant {
	clone := *g
	if g.TenantID != nil {
		t := *g.TenantID
		clone.TenantID = &t
	}
	return &clone
}
