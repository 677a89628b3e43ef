//go:build integration

package store_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"tramita/internal/domain"
	"tramita/internal/record/store"
	"tramita/pkg/sentinel"
	"tramita/pkg/testutil/containers"
	"tramita/pkg/tx"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.Postgres
	runner   tx.SQLRunner
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.store = store.NewPostgres(s.postgres.DB)
	s.runner = tx.SQLRunner{DB: s.postgres.DB}
}

func (s *PostgresStoreSuite) SetupTest() {
	err := s.postgres.TruncateTables(context.Background(), "records")
	s.Require().NoError(err)
}

func newTestRecord() *domain.Record {
	return &domain.Record{
		ID:            uuid.New(),
		ProcessType:   domain.ProcessResolutionResponse,
		State:         domain.StatePendingValidate,
		ThemeID:       "lighting",
		ResponsibleID: 4,
		CreationGroup: 2,
		CreatedAt:     time.Now().UTC().Truncate(time.Microsecond),
	}
}

func (s *PostgresStoreSuite) TestCreateAndGetRoundtrip() {
	ctx := context.Background()
	rec := newTestRecord()
	rec.Mayorship = true
	rec.Alarms.PendApplicantResponse = true

	s.Require().NoError(s.store.Create(ctx, rec))

	got, err := s.store.Get(ctx, rec.ID)
	s.Require().NoError(err)
	s.Equal(rec.ProcessType, got.ProcessType)
	s.Equal(rec.State, got.State)
	s.Equal(rec.ThemeID, got.ThemeID)
	s.Equal(rec.ResponsibleID, got.ResponsibleID)
	s.Equal(rec.CreationGroup, got.CreationGroup)
	s.True(got.Mayorship)
	s.True(got.Alarms.PendApplicantResponse)
	s.Nil(got.ClosedAt)
}

func (s *PostgresStoreSuite) TestNotFound() {
	ctx := context.Background()

	_, err := s.store.Get(ctx, uuid.New())
	s.ErrorIs(err, sentinel.ErrNotFound)

	rec := newTestRecord()
	err = s.store.Save(ctx, rec, domain.FieldState)
	s.ErrorIs(err, sentinel.ErrNotFound)
}

// TestPartialSave verifies that Save touches only the named columns.
func (s *PostgresStoreSuite) TestPartialSave() {
	ctx := context.Background()
	rec := newTestRecord()
	s.Require().NoError(s.store.Create(ctx, rec))

	rec.State = domain.StatePendingAnswer
	rec.ResponsibleID = 99
	rec.ClaimsNumber = 7
	s.Require().NoError(s.store.Save(ctx, rec, domain.FieldState))

	got, err := s.store.Get(ctx, rec.ID)
	s.Require().NoError(err)
	s.Equal(domain.StatePendingAnswer, got.State)
	s.EqualValues(4, got.ResponsibleID, "unnamed column must not be rewritten")
	s.Equal(0, got.ClaimsNumber, "unnamed column must not be rewritten")
}

func (s *PostgresStoreSuite) TestSaveClosedAt() {
	ctx := context.Background()
	rec := newTestRecord()
	s.Require().NoError(s.store.Create(ctx, rec))

	closed := time.Now().UTC().Truncate(time.Microsecond)
	rec.State = domain.StateClosed
	rec.ClosedAt = &closed
	s.Require().NoError(s.store.Save(ctx, rec, domain.FieldState, domain.FieldClosedAt))

	got, err := s.store.Get(ctx, rec.ID)
	s.Require().NoError(err)
	s.Require().NotNil(got.ClosedAt)
	s.WithinDuration(closed, *got.ClosedAt, time.Millisecond)

	rec.ClosedAt = nil
	s.Require().NoError(s.store.Save(ctx, rec, domain.FieldClosedAt))
	got, err = s.store.Get(ctx, rec.ID)
	s.Require().NoError(err)
	s.Nil(got.ClosedAt)
}

// TestGetForUpdateSerializesWriters verifies the row lock makes concurrent
// read-modify-write cycles behave like sequential ones.
func (s *PostgresStoreSuite) TestGetForUpdateSerializesWriters() {
	ctx := context.Background()
	rec := newTestRecord()
	s.Require().NoError(s.store.Create(ctx, rec))

	const goroutines = 20
	var wg sync.WaitGroup
	var failures atomic.Int32

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.runner.Within(ctx, func(ctx context.Context) error {
				locked, err := s.store.GetForUpdate(ctx, rec.ID)
				if err != nil {
					return err
				}
				locked.ClaimsNumber++
				return s.store.Save(ctx, locked, domain.FieldClaimsNumber)
			})
			if err != nil {
				failures.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(0), failures.Load())
	got, err := s.store.Get(ctx, rec.ID)
	s.Require().NoError(err)
	s.Equal(goroutines, got.ClaimsNumber, "every increment must land")
}

func (s *PostgresStoreSuite) TestIDs() {
	ctx := context.Background()
	want := map[uuid.UUID]bool{}
	for i := 0; i < 5; i++ {
		rec := newTestRecord()
		s.Require().NoError(s.store.Create(ctx, rec))
		want[rec.ID] = true
	}

	ids, err := s.store.IDs(ctx)
	s.Require().NoError(err)
	s.Len(ids, len(want))
	for _, id := range ids {
		s.True(want[id])
	}
}
