package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"tramita/internal/domain"
	"tramita/pkg/sentinel"
)

// InMemory is the map-backed record store. Save honours the changed-field
// list the same way the SQL store does, so tests exercise the partial-update
// contract for real.
type InMemory struct {
	mu      sync.RWMutex
	records map[uuid.UUID]*domain.Record
}

func NewInMemory() *InMemory {
	return &InMemory{records: make(map[uuid.UUID]*domain.Record)}
}

func (s *InMemory) Get(ctx context.Context, id uuid.UUID) (*domain.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[id]
	if !ok {
		return nil, fmt.Errorf("record %s: %w", id, sentinel.ErrNotFound)
	}
	c := *r
	return &c, nil
}

// GetForUpdate matches the SQL store's row-locking accessor. In memory the
// store mutex is the serialization point, so it is a plain read.
func (s *InMemory) GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.Record, error) {
	return s.Get(ctx, id)
}

func (s *InMemory) Create(ctx context.Context, r *domain.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[r.ID]; exists {
		return fmt.Errorf("record %s: %w", r.ID, sentinel.ErrConflict)
	}
	c := *r
	s.records[r.ID] = &c
	return nil
}

func (s *InMemory) Save(ctx context.Context, r *domain.Record, fields ...domain.Field) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.records[r.ID]
	if !ok {
		return fmt.Errorf("record %s: %w", r.ID, sentinel.ErrNotFound)
	}
	for _, f := range fields {
		switch f {
		case domain.FieldState:
			cur.State = r.State
		case domain.FieldClosedAt:
			cur.ClosedAt = r.ClosedAt
		case domain.FieldClaimsNumber:
			cur.ClaimsNumber = r.ClaimsNumber
		case domain.FieldResponsible:
			cur.ResponsibleID = r.ResponsibleID
		case domain.FieldReassignmentNotAllowed:
			cur.ReassignmentNotAllowed = r.ReassignmentNotAllowed
		case domain.FieldAlarm:
			cur.Alarms.Alarm = r.Alarms.Alarm
		case domain.FieldPendApplicantResponse:
			cur.Alarms.PendApplicantResponse = r.Alarms.PendApplicantResponse
		case domain.FieldApplicantResponse:
			cur.Alarms.ApplicantResponse = r.Alarms.ApplicantResponse
		case domain.FieldResponseToResponsible:
			cur.Alarms.ResponseToResponsible = r.Alarms.ResponseToResponsible
		case domain.FieldPendResponseResponsible:
			cur.Alarms.PendResponseResponsible = r.Alarms.PendResponseResponsible
		case domain.FieldCitizenAlarm:
			cur.Alarms.CitizenAlarm = r.Alarms.CitizenAlarm
		default:
			return fmt.Errorf("unknown record field %q: %w", f, sentinel.ErrInvalidState)
		}
	}
	return nil
}

func (s *InMemory) IDs(ctx context.Context) ([]uuid.UUID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]uuid.UUID, 0, len(s.records))
	for id := range s.records {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out, nil
}
