package recovery_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"tramita/internal/recovery"
)

type staticLister struct {
	ids []uuid.UUID
	err error
}

func (l *staticLister) IDs(ctx context.Context) ([]uuid.UUID, error) {
	return l.ids, l.err
}

type countingRecomputer struct {
	mu     sync.Mutex
	seen   map[uuid.UUID]int
	failOn uuid.UUID
}

func (r *countingRecomputer) RecomputeRecord(ctx context.Context, recordID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.seen == nil {
		r.seen = make(map[uuid.UUID]int)
	}
	r.seen[recordID]++
	if recordID == r.failOn {
		return errors.New("store offline")
	}
	return nil
}

type SweeperSuite struct {
	suite.Suite

	ctx    context.Context
	logger *slog.Logger
}

func TestSweeperSuite(t *testing.T) {
	suite.Run(t, new(SweeperSuite))
}

func (s *SweeperSuite) SetupTest() {
	s.ctx = context.Background()
	s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
}

func (s *SweeperSuite) TestSweepsEveryRecordOnce() {
	ids := []uuid.UUID{uuid.New(), uuid.New(), uuid.New(), uuid.New()}
	engine := &countingRecomputer{}
	sweeper := recovery.NewSweeper(&staticLister{ids: ids}, engine,
		recovery.WithConcurrency(2),
		recovery.WithLogger(s.logger),
	)

	s.Require().NoError(sweeper.RecomputeAlarms(s.ctx))

	s.Len(engine.seen, len(ids))
	for _, id := range ids {
		s.Equal(1, engine.seen[id])
	}
}

func (s *SweeperSuite) TestEmptyStoreIsNotAnError() {
	sweeper := recovery.NewSweeper(&staticLister{}, &countingRecomputer{},
		recovery.WithLogger(s.logger),
	)
	s.NoError(sweeper.RecomputeAlarms(s.ctx))
}

func (s *SweeperSuite) TestListerFailureAbortsSweep() {
	engine := &countingRecomputer{}
	sweeper := recovery.NewSweeper(&staticLister{err: errors.New("db gone")}, engine,
		recovery.WithLogger(s.logger),
	)

	s.Require().Error(sweeper.RecomputeAlarms(s.ctx))
	s.Empty(engine.seen)
}

func (s *SweeperSuite) TestRecomputeFailurePropagates() {
	bad := uuid.New()
	ids := []uuid.UUID{uuid.New(), bad, uuid.New()}
	engine := &countingRecomputer{failOn: bad}
	sweeper := recovery.NewSweeper(&staticLister{ids: ids}, engine,
		recovery.WithConcurrency(1),
		recovery.WithLogger(s.logger),
	)

	err := sweeper.RecomputeAlarms(s.ctx)
	s.Require().Error(err)
	s.Contains(err.Error(), "store offline")
	s.Equal(1, engine.seen[bad])
}
