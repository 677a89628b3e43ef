package store

import (
	"context"
	"sync"
)

// InMemory is the in-memory permission lookup, used in tests and when no
// database is configured.
type InMemory struct {
	mu    sync.RWMutex
	perms map[string]map[string]bool
}

func NewInMemory() *InMemory {
	return &InMemory{perms: make(map[string]map[string]bool)}
}

// Grant adds a permission to a user. Seeding helper.
func (s *InMemory) Grant(userID string, permissions ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.perms[userID]
	if !ok {
		set = make(map[string]bool)
		s.perms[userID] = set
	}
	for _, p := range permissions {
		set[p] = true
	}
}

func (s *InMemory) HasPermission(ctx context.Context, userID, permission string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.perms[userID][permission], nil
}
