package catalog

import (
	"testing"

	"github.com/stretchr/testify/suite"

	"tramita/internal/domain"
)

type CatalogSuite struct {
	suite.Suite
}

func TestCatalogSuite(t *testing.T) {
	suite.Run(t, new(CatalogSuite))
}

func (s *CatalogSuite) TestValidation() {
	s.Run("rejects a single-step path", func() {
		_, err := New(Entry{
			Process: "broken",
			Steps:   []Step{step("pending_validate", domain.StatePendingValidate)},
		})
		s.Require().Error(err)
	})

	s.Run("rejects repeated states", func() {
		_, err := New(Entry{
			Process: "broken",
			Steps: []Step{
				step("pending_validate", domain.StatePendingValidate),
				step("again", domain.StatePendingValidate),
				step("closed", domain.StateClosed),
			},
		})
		s.Require().Error(err)
	})

	s.Run("rejects a path not starting at pending_validate", func() {
		_, err := New(Entry{
			Process: "broken",
			Steps: []Step{
				step("in_resolution", domain.StateInResolution),
				step("closed", domain.StateClosed),
			},
		})
		s.Require().Error(err)
	})

	s.Run("rejects a non-terminal last step", func() {
		_, err := New(Entry{
			Process: "broken",
			Steps: []Step{
				step("pending_validate", domain.StatePendingValidate),
				step("in_resolution", domain.StateInResolution),
			},
		})
		s.Require().Error(err)
	})

	s.Run("rejects duplicate process types", func() {
		e := Entry{
			Process: "dup",
			Steps: []Step{
				step("pending_validate", domain.StatePendingValidate),
				step("closed", domain.StateClosed),
			},
		}
		_, err := New(e, e)
		s.Require().Error(err)
	})
}

func (s *CatalogSuite) TestDefaultTable() {
	c := Default()

	s.Run("covers every process type", func() {
		s.Len(c.Processes(), 8)
		for _, p := range c.Processes() {
			_, ok := c.Entry(p)
			s.True(ok, "process %s", p)
		}
	})

	s.Run("closed_directly has the minimal two-step path", func() {
		e, ok := c.Entry(domain.ProcessClosedDirectly)
		s.Require().True(ok)
		s.Len(e.Steps, 2)
		s.Equal(domain.StateClosed, e.Steps[1].State)
	})

	s.Run("pending_answer steps carry the pending handler", func() {
		for _, p := range c.Processes() {
			e, _ := c.Entry(p)
			for _, st := range e.Steps {
				want := HandlerChangeState
				if st.State == domain.StatePendingAnswer {
					want = HandlerPendingAnswerChangeState
				}
				s.Equal(want, st.Handler, "process %s step %s", p, st.Name)
			}
		}
	})

	s.Run("external paths forbid planning fields", func() {
		e, _ := c.Entry(domain.ProcessExternalProcessing)
		s.Contains(e.ForbiddenFields, "planned_date")
		e, _ = c.Entry(domain.ProcessPlanningResolutionResponse)
		s.Contains(e.RequiredFields, "planned_date")
	})
}
