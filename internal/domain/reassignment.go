package domain

import (
	"time"

	"github.com/google/uuid"
)

// ReassignmentReason classifies why a record moved between groups. Automatic
// reasons record system-initiated derivations; only manual moves are offered
// back as "return to sender" candidates.
type ReassignmentReason string

const (
	ReasonManual              ReassignmentReason = "manual"
	ReasonInitialAssignment   ReassignmentReason = "initial_assignment"
	ReasonGroupDeleted        ReassignmentReason = "group_deleted"
	ReasonDerivateResignation ReassignmentReason = "derivate_resignation"
)

// Automatic reports whether the reason is a system-initiated derivation.
func (r ReassignmentReason) Automatic() bool {
	switch r {
	case ReasonInitialAssignment, ReasonGroupDeleted, ReasonDerivateResignation:
		return true
	}
	return false
}

// ReassignmentEvent is one entry of the append-only reassignment audit trail.
// Events are never mutated or deleted.
type ReassignmentEvent struct {
	ID            uuid.UUID
	RecordID      uuid.UUID
	ActingGroup   GroupID
	PreviousGroup GroupID
	NextGroup     GroupID
	Reason        ReassignmentReason
	CreatedAt     time.Time
}
