// Package catalog holds the static process-type table: which lifecycle steps
// each process type walks, and which transition handler applies per step. The
// table is built once at startup and treated as read-only process-wide
// configuration.
package catalog

import (
	"fmt"

	"tramita/internal/domain"
)

// HandlerKind tags which transition-handler contract the caller must invoke
// when entering a step. It is a pure decision value; execution stays with the
// caller.
type HandlerKind int

const (
	// HandlerChangeState is the plain state mutation.
	HandlerChangeState HandlerKind = iota
	// HandlerPendingAnswerChangeState additionally persists closing metadata
	// and may short-circuit to an immediate answer.
	HandlerPendingAnswerChangeState
)

func (k HandlerKind) String() string {
	if k == HandlerPendingAnswerChangeState {
		return "pending_answer_change_state"
	}
	return "change_state"
}

// Step is one position in a process type's ideal path.
type Step struct {
	Name    string
	State   domain.RecordState
	Handler HandlerKind
}

// Entry describes one process type: its ordered steps and the record fields
// its intake form requires or forbids.
type Entry struct {
	Process         domain.ProcessType
	Steps           []Step
	RequiredFields  []string
	ForbiddenFields []string
}

// Catalog maps process types to their entries.
type Catalog struct {
	entries map[domain.ProcessType]Entry
	order   []domain.ProcessType
}

// Entry looks up the catalog entry for a process type.
func (c *Catalog) Entry(p domain.ProcessType) (Entry, bool) {
	e, ok := c.entries[p]
	return e, ok
}

// Processes lists the configured process types in declaration order.
func (c *Catalog) Processes() []domain.ProcessType {
	return append([]domain.ProcessType(nil), c.order...)
}

// New builds a catalog from entries, validating each path: non-empty, no
// duplicate states, first step pending-validate, last step terminal.
func New(entries ...Entry) (*Catalog, error) {
	c := &Catalog{entries: make(map[domain.ProcessType]Entry, len(entries))}
	for _, e := range entries {
		if err := validateEntry(e); err != nil {
			return nil, err
		}
		if _, dup := c.entries[e.Process]; dup {
			return nil, fmt.Errorf("catalog: duplicate process type %s", e.Process)
		}
		c.entries[e.Process] = e
		c.order = append(c.order, e.Process)
	}
	return c, nil
}

func validateEntry(e Entry) error {
	if len(e.Steps) < 2 {
		return fmt.Errorf("catalog: process %s needs at least two steps", e.Process)
	}
	seen := make(map[domain.RecordState]bool, len(e.Steps))
	for _, s := range e.Steps {
		if seen[s.State] {
			return fmt.Errorf("catalog: process %s repeats state %s", e.Process, s.State)
		}
		seen[s.State] = true
	}
	if e.Steps[0].State != domain.StatePendingValidate {
		return fmt.Errorf("catalog: process %s must start at pending_validate", e.Process)
	}
	last := e.Steps[len(e.Steps)-1]
	if !last.State.Terminal() {
		return fmt.Errorf("catalog: process %s must end in a terminal state", e.Process)
	}
	return nil
}

// step constructs a Step, deriving the handler kind from the step state.
func step(name string, state domain.RecordState) Step {
	h := HandlerChangeState
	if state == domain.StatePendingAnswer {
		h = HandlerPendingAnswerChangeState
	}
	return Step{Name: name, State: state, Handler: h}
}

// Default is the production process table.
func Default() *Catalog {
	c, err := New(
		Entry{
			Process: domain.ProcessClosedDirectly,
			// Validate and close are one externally-visible transition.
			Steps: []Step{
				step("pending_validate", domain.StatePendingValidate),
				step("closed", domain.StateClosed),
			},
		},
		Entry{
			Process: domain.ProcessResponse,
			Steps: []Step{
				step("pending_validate", domain.StatePendingValidate),
				step("pending_answer", domain.StatePendingAnswer),
				step("closed", domain.StateClosed),
			},
		},
		Entry{
			Process: domain.ProcessResolutionResponse,
			Steps: []Step{
				step("pending_validate", domain.StatePendingValidate),
				step("in_resolution", domain.StateInResolution),
				step("pending_answer", domain.StatePendingAnswer),
				step("closed", domain.StateClosed),
			},
		},
		Entry{
			Process: domain.ProcessPlanningResolutionResponse,
			Steps: []Step{
				step("pending_validate", domain.StatePendingValidate),
				step("in_planning", domain.StateInPlanning),
				step("in_resolution", domain.StateInResolution),
				step("pending_answer", domain.StatePendingAnswer),
				step("closed", domain.StateClosed),
			},
			RequiredFields: []string{"planned_date"},
		},
		Entry{
			Process: domain.ProcessEvaluationResolutionResponse,
			Steps: []Step{
				step("pending_validate", domain.StatePendingValidate),
				step("evaluation", domain.StateInPlanning),
				step("in_resolution", domain.StateInResolution),
				step("pending_answer", domain.StatePendingAnswer),
				step("closed", domain.StateClosed),
			},
			RequiredFields: []string{"evaluation_report"},
		},
		Entry{
			Process: domain.ProcessExternalProcessing,
			Steps: []Step{
				step("pending_validate", domain.StatePendingValidate),
				step("external_processing", domain.StateExternalProcessing),
				step("external_returned", domain.StateExternalReturned),
				step("closed", domain.StateClosed),
			},
			ForbiddenFields: []string{"planned_date"},
		},
		Entry{
			Process: domain.ProcessDirectExternalProcessing,
			Steps: []Step{
				step("pending_validate", domain.StatePendingValidate),
				step("external_processing", domain.StateExternalProcessing),
				step("closed", domain.StateClosed),
			},
			ForbiddenFields: []string{"planned_date"},
		},
		Entry{
			Process: domain.ProcessResolutionExternal,
			Steps: []Step{
				step("pending_validate", domain.StatePendingValidate),
				step("in_resolution", domain.StateInResolution),
				step("external_processing", domain.StateExternalProcessing),
				step("closed", domain.StateClosed),
			},
		},
	)
	if err != nil {
		// The default table is static; a validation failure here is a
		// programming error.
		panic(err)
	}
	return c
}
