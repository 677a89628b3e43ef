package store

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"tramita/internal/audit"
)

// InMemory collects audit events for tests and single-process deployments.
type InMemory struct {
	mu     sync.RWMutex
	events []audit.Event
}

func NewInMemory() *InMemory {
	return &InMemory{}
}

func (s *InMemory) Emit(ctx context.Context, ev audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return nil
}

// ByRecord returns the events captured for a record, in emit order.
func (s *InMemory) ByRecord(recordID uuid.UUID) []audit.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []audit.Event
	for _, ev := range s.events {
		if ev.RecordID == recordID {
			out = append(out, ev)
		}
	}
	return out
}

// All returns every captured event in emit order.
func (s *InMemory) All() []audit.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]audit.Event(nil), s.events...)
}
