package audit

import (
	"time"

	"github.com/google/uuid"

	"tramita/internal/domain"
)

// Kind names an auditable occurrence.
type Kind string

const (
	KindTransitionPerformed Kind = "transition_performed"
	KindRecordReassigned    Kind = "record_reassigned"
	KindRecordClaimed       Kind = "record_claimed"
	KindMessageCreated      Kind = "message_created"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	ID          uuid.UUID         `json:"id"`
	Kind        Kind              `json:"kind"`
	RecordID    uuid.UUID         `json:"record_id"`
	ActingGroup domain.GroupID    `json:"acting_group"`
	Detail      map[string]string `json:"detail,omitempty"`
	Timestamp   time.Time         `json:"timestamp"`
}
