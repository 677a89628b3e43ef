// Package lifecycle computes record lifecycle decisions from the process
// catalog: current step, legal transitions, next state, and which transition
// handler applies. Everything here is a pure read; execution of transitions
// lives in the record service.
package lifecycle

import (
	"fmt"

	"tramita/internal/catalog"
	"tramita/internal/domain"
	domainerrors "tramita/pkg/domain-errors"
)

// Transition is one legal next action from a record's current step.
type Transition struct {
	Name    string
	To      domain.RecordState
	Handler catalog.HandlerKind
}

// Fixed transition names not derived from step names.
const (
	TransitionCancel = "cancel"
	TransitionReturn = "return"
	TransitionClose  = "closed"
)

// Machine evaluates lifecycle rules against the static process catalog. It
// keeps the rules centralized and testable.
type Machine struct {
	catalog *catalog.Catalog
}

func NewMachine(c *catalog.Catalog) *Machine {
	return &Machine{catalog: c}
}

// IdealPath returns the full ordered step list for a process type. Constant
// per process type; used for progress display.
func (m *Machine) IdealPath(p domain.ProcessType) ([]catalog.Step, error) {
	e, ok := m.catalog.Entry(p)
	if !ok {
		return nil, domainerrors.New(domainerrors.CodeNotFound,
			fmt.Sprintf("unknown process type %s", p))
	}
	return e.Steps, nil
}

// CurrentStep maps the record's state to its step in the ideal path. A state
// that does not appear in the path is data corruption and surfaces as an
// invalid_state error, never silently coerced.
func (m *Machine) CurrentStep(r *domain.Record) (catalog.Step, int, error) {
	steps, err := m.IdealPath(r.ProcessType)
	if err != nil {
		return catalog.Step{}, 0, err
	}
	for i, s := range steps {
		if s.State == r.State {
			return s, i, nil
		}
	}
	// Cancellation states are reachable from every process type without
	// appearing in its path.
	if r.State == domain.StateCancelled || r.State == domain.StateNotProcessed {
		return catalog.Step{Name: string(r.State), State: r.State}, len(steps), nil
	}
	return catalog.Step{}, 0, domainerrors.New(domainerrors.CodeInvalidState,
		fmt.Sprintf("record state %s unreachable for process type %s", r.State, r.ProcessType))
}

// Transitions returns the map of legal next actions from the record's current
// step, keyed by transition name. Terminal states return an empty map.
//
// External-processing intermediate steps offer "return" (when the path has an
// external_returned step) and "close" instead of the usual advance+cancel.
func (m *Machine) Transitions(r *domain.Record) (map[string]Transition, error) {
	steps, err := m.IdealPath(r.ProcessType)
	if err != nil {
		return nil, err
	}
	step, idx, err := m.CurrentStep(r)
	if err != nil {
		return nil, err
	}

	out := make(map[string]Transition)
	if step.State.Terminal() {
		return out, nil
	}

	switch step.State {
	case domain.StateExternalProcessing:
		out[TransitionClose] = Transition{
			Name:    TransitionClose,
			To:      domain.StateClosed,
			Handler: m.StateChangeMethod(r, domain.StateClosed),
		}
		for _, s := range steps {
			if s.State == domain.StateExternalReturned {
				out[TransitionReturn] = Transition{
					Name:    TransitionReturn,
					To:      domain.StateExternalReturned,
					Handler: m.StateChangeMethod(r, domain.StateExternalReturned),
				}
			}
		}
	case domain.StateExternalReturned:
		out[TransitionClose] = Transition{
			Name:    TransitionClose,
			To:      domain.StateClosed,
			Handler: m.StateChangeMethod(r, domain.StateClosed),
		}
	default:
		next := steps[idx+1]
		out[next.Name] = Transition{
			Name:    next.Name,
			To:      next.State,
			Handler: m.StateChangeMethod(r, next.State),
		}
		out[TransitionCancel] = Transition{
			Name:    TransitionCancel,
			To:      domain.StateCancelled,
			Handler: m.StateChangeMethod(r, domain.StateCancelled),
		}
	}
	return out, nil
}

// NextStepCode returns the state the next sequential step represents, or
// ok=false when the record is already at a terminal step.
func (m *Machine) NextStepCode(r *domain.Record) (domain.RecordState, bool, error) {
	steps, err := m.IdealPath(r.ProcessType)
	if err != nil {
		return "", false, err
	}
	_, idx, err := m.CurrentStep(r)
	if err != nil {
		return "", false, err
	}
	if r.State.Terminal() || idx+1 >= len(steps) {
		return "", false, nil
	}
	return steps[idx+1].State, true, nil
}

// StateChangeMethod selects the transition-handler contract for moving the
// record into next. Pure dispatch: the pending-answer handler applies exactly
// when the target state is pending_answer.
func (m *Machine) StateChangeMethod(r *domain.Record, next domain.RecordState) catalog.HandlerKind {
	if next == domain.StatePendingAnswer {
		return catalog.HandlerPendingAnswerChangeState
	}
	return catalog.HandlerChangeState
}
