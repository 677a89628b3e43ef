package store

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"tramita/internal/domain"
)

// InMemory keeps reassignment trails per record, in append order.
type InMemory struct {
	mu     sync.RWMutex
	events map[uuid.UUID][]*domain.ReassignmentEvent
}

func NewInMemory() *InMemory {
	return &InMemory{events: make(map[uuid.UUID][]*domain.ReassignmentEvent)}
}

func (s *InMemory) Append(ctx context.Context, ev *domain.ReassignmentEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := *ev
	s.events[ev.RecordID] = append(s.events[ev.RecordID], &c)
	return nil
}

func (s *InMemory) ByRecord(ctx context.Context, recordID uuid.UUID) ([]*domain.ReassignmentEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	trail := s.events[recordID]
	out := make([]*domain.ReassignmentEvent, len(trail))
	for i, ev := range trail {
		c := *ev
		out[i] = &c
	}
	return out, nil
}
