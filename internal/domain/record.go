package domain

import (
	"time"

	"github.com/google/uuid"
)

// RecordState is the lifecycle state of a record card. A record's state must
// always be one reachable from its process type's catalog entry.
type RecordState string

const (
	StatePendingValidate    RecordState = "pending_validate"
	StateInPlanning         RecordState = "in_planning"
	StateInResolution       RecordState = "in_resolution"
	StatePendingAnswer      RecordState = "pending_answer"
	StateClosed             RecordState = "closed"
	StateCancelled          RecordState = "cancelled"
	StateNotProcessed       RecordState = "not_processed"
	StateExternalProcessing RecordState = "external_processing"
	StateExternalReturned   RecordState = "external_returned"
)

// Terminal reports whether no further lifecycle transition can leave s.
func (s RecordState) Terminal() bool {
	switch s {
	case StateClosed, StateCancelled, StateNotProcessed:
		return true
	}
	return false
}

// ProcessType selects which lifecycle steps a record follows.
type ProcessType string

const (
	ProcessClosedDirectly               ProcessType = "closed_directly"
	ProcessResponse                     ProcessType = "response"
	ProcessResolutionResponse           ProcessType = "resolution_response"
	ProcessPlanningResolutionResponse   ProcessType = "planning_resolution_response"
	ProcessEvaluationResolutionResponse ProcessType = "evaluation_resolution_response"
	ProcessExternalProcessing           ProcessType = "external_processing"
	ProcessDirectExternalProcessing     ProcessType = "direct_external_processing"
	ProcessResolutionExternal           ProcessType = "resolution_external_processing"
)

// Alarms are the per-record conversation alarm flags. They are recomputed by
// the alarm engine on message traffic and persisted field-by-field.
type Alarms struct {
	Alarm                   bool
	PendApplicantResponse   bool
	ApplicantResponse       bool
	ResponseToResponsible   bool
	PendResponseResponsible bool
	CitizenAlarm            bool
}

// Field names a persistable record field for partial updates. Save calls list
// exactly the fields a mutation touched; untouched fields are never rewritten.
type Field string

const (
	FieldState                   Field = "record_state"
	FieldClosedAt                Field = "closed_at"
	FieldClaimsNumber            Field = "claims_number"
	FieldResponsible             Field = "responsible_profile"
	FieldReassignmentNotAllowed  Field = "reassignment_not_allowed"
	FieldAlarm                   Field = "alarm"
	FieldPendApplicantResponse   Field = "pend_applicant_response"
	FieldApplicantResponse       Field = "applicant_response"
	FieldResponseToResponsible   Field = "response_to_responsible"
	FieldPendResponseResponsible Field = "pend_response_responsible"
	FieldCitizenAlarm            Field = "citizen_alarm"
)

// Record is a citizen service request tracked through the administrative
// lifecycle. Record and Group are the two aggregate roots; everything else
// exists in relation to exactly one record.
type Record struct {
	ID            uuid.UUID
	ProcessType   ProcessType
	State         RecordState
	ThemeID       string
	ResponsibleID GroupID
	CreationGroup GroupID
	CreatedAt     time.Time
	ClosedAt      *time.Time

	// ClaimsNumber counts citizen-initiated reopen cycles. Only ever
	// incremented.
	ClaimsNumber int

	ReassignmentNotAllowed bool
	Mayorship              bool
	ApplicantBlocked       bool

	// ThemeInvalidated is set when the record's theme was removed from the
	// active catalog out from under it; theme-change becomes forced-available.
	ThemeInvalidated bool

	Alarms Alarms
}

// Age returns how long the record has existed as of now.
func (r *Record) Age(now time.Time) time.Duration {
	return now.Sub(r.CreatedAt)
}
