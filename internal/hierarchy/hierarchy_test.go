package hierarchy_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"tramita/internal/domain"
	"tramita/internal/hierarchy"
	"tramita/internal/hierarchy/store"
	"tramita/pkg/sentinel"
)

// The tree under test, plates in parentheses:
//
//	1 (1/)                 root coordinating group
//	├── 2 (1/2/)           ambit
//	│   ├── 4 (1/2/4/)
//	│   └── 5 (1/2/5/)     ambit nested in 2
//	│       ├── 6 (1/2/5/6/)
//	│       └── 7 (1/2/5/7/)   ambit nested in 5
//	│           └── 8 (1/2/5/7/8/)
//	└── 3 (1/3/)
//	    └── 9 (1/3/9/)
type HierarchySuite struct {
	suite.Suite
	store   *store.InMemory
	service *hierarchy.Service
	ctx     context.Context
}

func TestHierarchySuite(t *testing.T) {
	suite.Run(t, new(HierarchySuite))
}

func (s *HierarchySuite) SetupTest() {
	s.store = store.NewInMemory()
	s.service = hierarchy.NewService(s.store)
	s.ctx = context.Background()

	s.put(1, nil, "1/", false)
	s.put(2, ptr(1), "1/2/", true)
	s.put(3, ptr(1), "1/3/", false)
	s.put(4, ptr(2), "1/2/4/", false)
	s.put(5, ptr(2), "1/2/5/", true)
	s.put(6, ptr(5), "1/2/5/6/", false)
	s.put(7, ptr(5), "1/2/5/7/", true)
	s.put(8, ptr(7), "1/2/5/7/8/", false)
	s.put(9, ptr(3), "1/3/9/", false)
}

func ptr(id domain.GroupID) *domain.GroupID { return &id }

func (s *HierarchySuite) put(id domain.GroupID, parent *domain.GroupID, plate string, ambit bool) {
	s.store.Put(&domain.Group{
		ID:       id,
		ParentID: parent,
		Plate:    plate,
		IsAmbit:  ambit,
	})
}

func (s *HierarchySuite) group(id domain.GroupID) *domain.Group {
	g, err := s.store.Get(s.ctx, id)
	s.Require().NoError(err)
	return g
}

func ids(groups []*domain.Group) []int64 {
	out := make([]int64, 0, len(groups))
	for _, g := range groups {
		out = append(out, int64(g.ID))
	}
	return out
}

func (s *HierarchySuite) TestAncestorsAndDescendants() {
	s.Run("ancestors follow the plate root-first", func() {
		ancestors, err := s.service.Ancestors(s.ctx, s.group(8), false)
		s.Require().NoError(err)
		s.Equal([]int64{1, 2, 5, 7}, ids(ancestors))
	})

	s.Run("descendants cover the whole sub-tree", func() {
		descendants, err := s.service.Descendants(s.ctx, s.group(5), true)
		s.Require().NoError(err)
		s.Equal([]int64{5, 6, 7, 8}, ids(descendants))
	})

	s.Run("plate prefix does not confuse 1/4/ with 1/40/", func() {
		s.put(40, ptr(1), "1/40/", false)
		child := s.group(40)
		s.False(hierarchy.IsDescendant(child, s.group(4)))
		s.True(hierarchy.IsDescendant(child, s.group(1)))
	})
}

func (s *HierarchySuite) TestCoordinators() {
	s.Run("plain group resolves to nearest ambit ancestor", func() {
		coord, err := s.service.CoordinatorOf(s.ctx, s.group(4))
		s.Require().NoError(err)
		s.Require().NotNil(coord)
		s.EqualValues(2, coord.ID)
	})

	s.Run("nesting picks the nearest island, not the outermost", func() {
		coord, err := s.service.CoordinatorOf(s.ctx, s.group(8))
		s.Require().NoError(err)
		s.Require().NotNil(coord)
		s.EqualValues(7, coord.ID)
	})

	s.Run("an ambit group coordinates itself", func() {
		coord, err := s.service.CoordinatorOf(s.ctx, s.group(5))
		s.Require().NoError(err)
		s.Require().NotNil(coord)
		s.EqualValues(5, coord.ID)
	})

	s.Run("a branch without ambit groups has no coordinator", func() {
		coord, err := s.service.CoordinatorOf(s.ctx, s.group(9))
		s.Require().NoError(err)
		s.Nil(coord)
	})
}

func (s *HierarchySuite) TestAmbitViews() {
	s.Run("ambit view excludes nested islands at every depth", func() {
		view, err := s.service.AmbitOf(s.ctx, s.group(2))
		s.Require().NoError(err)
		s.Equal([]int64{2, 4}, ids(view))
	})

	s.Run("middle island excludes the deeper one", func() {
		view, err := s.service.AmbitOf(s.ctx, s.group(5))
		s.Require().NoError(err)
		s.Equal([]int64{5, 6}, ids(view))
	})

	s.Run("innermost island is complete", func() {
		view, err := s.service.AmbitOf(s.ctx, s.group(7))
		s.Require().NoError(err)
		s.Equal([]int64{7, 8}, ids(view))
	})

	s.Run("plain group inherits its coordinator's view", func() {
		view, err := s.service.AmbitOf(s.ctx, s.group(4))
		s.Require().NoError(err)
		s.Equal([]int64{2, 4}, ids(view))

		view, err = s.service.AmbitOf(s.ctx, s.group(8))
		s.Require().NoError(err)
		s.Equal([]int64{7, 8}, ids(view))
	})

	s.Run("no ambit ancestor falls back to own branch minus root", func() {
		view, err := s.service.AmbitOf(s.ctx, s.group(9))
		s.Require().NoError(err)
		s.Equal([]int64{3, 9}, ids(view))
	})
}

func (s *HierarchySuite) TestRecomputeAmbitCoordinators() {
	s.Require().NoError(s.service.RecomputeAmbitCoordinators(s.ctx))

	expect := map[domain.GroupID]*domain.GroupID{
		1: nil,
		2: ptr(2),
		3: nil,
		4: ptr(2),
		5: ptr(5),
		6: ptr(5),
		7: ptr(7),
		8: ptr(7),
		9: nil,
	}
	for id, want := range expect {
		got := s.group(id).AmbitCoordinatorID
		if want == nil {
			s.Nil(got, "group %d", id)
		} else {
			s.Require().NotNil(got, "group %d", id)
			s.Equal(*want, *got, "group %d", id)
		}
	}

	// Running it again changes nothing.
	s.Require().NoError(s.service.RecomputeAmbitCoordinators(s.ctx))
	s.Equal(ptr(7), s.group(8).AmbitCoordinatorID)
}

func (s *HierarchySuite) TestReparent() {
	s.Run("rewrites plates of the moved sub-tree", func() {
		s.Require().NoError(s.service.Reparent(s.ctx, 5, 3))

		s.Equal("1/3/5/", s.group(5).Plate)
		s.Equal("1/3/5/6/", s.group(6).Plate)
		s.Equal("1/3/5/7/8/", s.group(8).Plate)
		s.Require().NotNil(s.group(5).ParentID)
		s.EqualValues(3, *s.group(5).ParentID)
	})

	s.Run("refreshes coordinators for the moved groups", func() {
		// 6 moved out from under ambit 2, but 5 is still its island.
		s.Require().NotNil(s.group(6).AmbitCoordinatorID)
		s.EqualValues(5, *s.group(6).AmbitCoordinatorID)
	})

	s.Run("rejects a move into the own sub-tree", func() {
		err := s.service.Reparent(s.ctx, 3, 9)
		s.Require().ErrorIs(err, sentinel.ErrInvalidState)
	})

	s.Run("rejects moving the root", func() {
		err := s.service.Reparent(s.ctx, 1, 3)
		s.Require().ErrorIs(err, sentinel.ErrInvalidState)
	})
}
