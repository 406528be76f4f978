package app

import (
	"context"
	"slices"
	"strings"
	"sync"

	"keystone/internal/sentinel"
	"keystone/internal/tenancy/models"
	id "keystone/pkg/domain"
)

// InMemory stores apps keyed by id with a slug index.
type InMemory struct {
	mu     sync.RWMutex
	apps   map[id.AppID]*models.App
	bySlug map[string]id.AppID
}

func NewInMemory() *InMemory {
	return &InMemory{
		apps:   make(map[id.AppID]*models.App),
		bySlug: make(map[string]id.AppID),
	}
}

func (s *InMemory) Create(_ context.Context, app *models.App) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.bySlug[app.Slug]; ok {
		return sentinel.ErrAlreadyExists
	}
	if _, ok := s.apps[app.ID]; ok {
		return sentinel.ErrAlreadyExists
	}
	clone := *app
	s.apps[app.ID] = &clone
	s.bySlug[app.Slug] = app.ID
	return nil
}

func (s *InMemory) FindBySlug(_ context.Context, slug string) (*models.App, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	appID, ok := s.bySlug[slug]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	clone := *s.apps[appID]
	return &clone, nil
}

func (s *InMemory) FindByID(_ context.Context, appID id.AppID) (*models.App, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.apps[appID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	clone := *a
	return &clone, nil
}

func (s *InMemory) List(_ context.Context) ([]*models.App, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.App, 0, len(s.apps))
	for _, a := range s.apps {
		clone := *a
		out = append(out, &clone)
	}
	slices.SortFunc(out, func(a, b *models.App) int { return strings.Compare(a.Slug, b.Slug) })
	return out, nil
}
