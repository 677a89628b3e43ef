package lifecycle

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"tramita/internal/catalog"
	"tramita/internal/domain"
	domainerrors "tramita/pkg/domain-errors"
)

type MachineSuite struct {
	suite.Suite
	machine *Machine
}

func TestMachineSuite(t *testing.T) {
	suite.Run(t, new(MachineSuite))
}

func (s *MachineSuite) SetupTest() {
	s.machine = NewMachine(catalog.Default())
}

func (s *MachineSuite) record(p domain.ProcessType, state domain.RecordState) *domain.Record {
	return &domain.Record{ID: uuid.New(), ProcessType: p, State: state}
}

func (s *MachineSuite) TestIdealPath() {
	s.Run("returns the ordered step list", func() {
		steps, err := s.machine.IdealPath(domain.ProcessResolutionResponse)
		s.Require().NoError(err)
		states := make([]domain.RecordState, 0, len(steps))
		for _, st := range steps {
			states = append(states, st.State)
		}
		s.Equal([]domain.RecordState{
			domain.StatePendingValidate,
			domain.StateInResolution,
			domain.StatePendingAnswer,
			domain.StateClosed,
		}, states)
	})

	s.Run("unknown process type is a not_found error", func() {
		_, err := s.machine.IdealPath("no_such_process")
		s.Require().Error(err)
		s.True(domainerrors.Is(err, domainerrors.CodeNotFound))
	})
}

func (s *MachineSuite) TestCurrentStep() {
	s.Run("maps state to its path position", func() {
		_, idx, err := s.machine.CurrentStep(s.record(domain.ProcessResolutionResponse, domain.StateInResolution))
		s.Require().NoError(err)
		s.Equal(1, idx)
	})

	s.Run("cancelled is a synthetic terminal step past the path", func() {
		step, idx, err := s.machine.CurrentStep(s.record(domain.ProcessResponse, domain.StateCancelled))
		s.Require().NoError(err)
		s.Equal(domain.StateCancelled, step.State)
		s.Equal(3, idx)
	})

	s.Run("an unreachable state is invalid_state", func() {
		_, _, err := s.machine.CurrentStep(s.record(domain.ProcessClosedDirectly, domain.StateInResolution))
		s.Require().Error(err)
		s.True(domainerrors.Is(err, domainerrors.CodeInvalidState))
	})
}

func (s *MachineSuite) TestTransitions() {
	s.Run("offers the next step plus cancel", func() {
		transitions, err := s.machine.Transitions(s.record(domain.ProcessResolutionResponse, domain.StatePendingValidate))
		s.Require().NoError(err)
		s.Len(transitions, 2)
		s.Contains(transitions, "in_resolution")
		s.Contains(transitions, TransitionCancel)
		s.Equal(domain.StateInResolution, transitions["in_resolution"].To)
	})

	s.Run("terminal states offer nothing", func() {
		transitions, err := s.machine.Transitions(s.record(domain.ProcessResponse, domain.StateClosed))
		s.Require().NoError(err)
		s.Empty(transitions)

		transitions, err = s.machine.Transitions(s.record(domain.ProcessResponse, domain.StateCancelled))
		s.Require().NoError(err)
		s.Empty(transitions)
	})

	s.Run("external processing offers close and return when the path has a return step", func() {
		transitions, err := s.machine.Transitions(s.record(domain.ProcessExternalProcessing, domain.StateExternalProcessing))
		s.Require().NoError(err)
		s.Len(transitions, 2)
		s.Contains(transitions, TransitionClose)
		s.Contains(transitions, TransitionReturn)
	})

	s.Run("direct external processing offers close only", func() {
		transitions, err := s.machine.Transitions(s.record(domain.ProcessDirectExternalProcessing, domain.StateExternalProcessing))
		s.Require().NoError(err)
		s.Len(transitions, 1)
		s.Contains(transitions, TransitionClose)
	})

	s.Run("external returned offers close only", func() {
		transitions, err := s.machine.Transitions(s.record(domain.ProcessExternalProcessing, domain.StateExternalReturned))
		s.Require().NoError(err)
		s.Len(transitions, 1)
		s.Contains(transitions, TransitionClose)
	})

	s.Run("moving into pending_answer uses the pending handler", func() {
		transitions, err := s.machine.Transitions(s.record(domain.ProcessResolutionResponse, domain.StateInResolution))
		s.Require().NoError(err)
		t, ok := transitions["pending_answer"]
		s.Require().True(ok)
		s.Equal(catalog.HandlerPendingAnswerChangeState, t.Handler)
		s.Equal(catalog.HandlerChangeState, transitions[TransitionCancel].Handler)
	})
}

// TestFullWalk drives one record through the whole resolution_response path
// using only the machine's own transition offers.
func (s *MachineSuite) TestFullWalk() {
	rec := s.record(domain.ProcessResolutionResponse, domain.StatePendingValidate)
	expect := []domain.RecordState{
		domain.StateInResolution,
		domain.StatePendingAnswer,
		domain.StateClosed,
	}
	for _, want := range expect {
		next, ok, err := s.machine.NextStepCode(rec)
		s.Require().NoError(err)
		s.Require().True(ok)
		s.Equal(want, next)

		transitions, err := s.machine.Transitions(rec)
		s.Require().NoError(err)
		found := false
		for _, t := range transitions {
			if t.To == want {
				rec.State = t.To
				found = true
				break
			}
		}
		s.Require().True(found, "no transition into %s", want)
	}

	_, ok, err := s.machine.NextStepCode(rec)
	s.Require().NoError(err)
	s.False(ok)
}
