package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"tramita/internal/domain"
	"tramita/internal/hierarchy"
	"tramita/pkg/sentinel"
)

// InMemory is a map-backed group store for tests and single-process use.
// Groups are copied on the way in and out so callers never share state.
type InMemory struct {
	mu     sync.RWMutex
	groups map[domain.GroupID]*domain.Group
}

func NewInMemory() *InMemory {
	return &InMemory{groups: make(map[domain.GroupID]*domain.Group)}
}

// Put inserts or replaces a group. Used by tests and seeding.
func (s *InMemory) Put(g *domain.Group) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *g
	c.ReassignTargets = append([]domain.GroupID(nil), g.ReassignTargets...)
	s.groups[c.ID] = &c
}

func (s *InMemory) Get(ctx context.Context, id domain.GroupID) (*domain.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.groups[id]
	if !ok {
		return nil, fmt.Errorf("group %d: %w", id, sentinel.ErrNotFound)
	}
	return copyGroup(g), nil
}

func (s *InMemory) ByIDs(ctx context.Context, ids []domain.GroupID) ([]*domain.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domain.Group, 0, len(ids))
	for _, id := range ids {
		g, ok := s.groups[id]
		if !ok {
			return nil, fmt.Errorf("group %d: %w", id, sentinel.ErrNotFound)
		}
		out = append(out, copyGroup(g))
	}
	return out, nil
}

func (s *InMemory) ByPlatePrefix(ctx context.Context, prefix string) ([]*domain.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.Group
	for _, g := range s.groups {
		if strings.HasPrefix(g.Plate, prefix) {
			out = append(out, copyGroup(g))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *InMemory) All(ctx context.Context) ([]*domain.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*domain.Group, 0, len(s.groups))
	for _, g := range s.groups {
		out = append(out, copyGroup(g))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *InMemory) ApplyTreeSnapshot(ctx context.Context, updates []hierarchy.TreeUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range updates {
		g, ok := s.groups[u.ID]
		if !ok {
			return fmt.Errorf("group %d: %w", u.ID, sentinel.ErrNotFound)
		}
		if u.Plate != "" {
			g.Plate = u.Plate
		}
		if u.ParentID != nil {
			p := *u.ParentID
			g.ParentID = &p
		}
		g.AmbitCoordinatorID = copyID(u.AmbitCoordinatorID)
	}
	return nil
}

func copyGroup(g *domain.Group) *domain.Group {
	c := *g
	c.ParentID = copyID(g.ParentID)
	c.AmbitCoordinatorID = copyID(g.AmbitCoordinatorID)
	c.ReassignTargets = append([]domain.GroupID(nil), g.ReassignTargets...)
	return &c
}

func copyID(id *domain.GroupID) *domain.GroupID {
	if id == nil {
		return nil
	}
	c := *id
	return &c
}
