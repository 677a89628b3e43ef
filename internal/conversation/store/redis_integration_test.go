//go:build integration

package store_test

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"tramita/internal/conversation/store"
	"tramita/pkg/testutil/containers"
)

type RedisUnreadSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	store *store.RedisUnread
}

func TestRedisUnreadSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisUnreadSuite))
}

func (s *RedisUnreadSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.redis = mgr.GetRedis(s.T())
	s.store = store.NewRedisUnread(s.redis.Client)
}

func (s *RedisUnreadSuite) SetupTest() {
	err := s.redis.FlushAll(context.Background())
	s.Require().NoError(err)
}

func (s *RedisUnreadSuite) TestMissingCounterIsNil() {
	ctx := context.Background()

	got, err := s.store.Get(ctx, uuid.New(), 4)
	s.Require().NoError(err)
	s.Nil(got)

	got, err = s.store.Delete(ctx, uuid.New(), 4)
	s.Require().NoError(err)
	s.Nil(got)
}

func (s *RedisUnreadSuite) TestIncrementAccumulates() {
	ctx := context.Background()
	conv := uuid.New()

	for i := 0; i < 3; i++ {
		s.Require().NoError(s.store.Increment(ctx, conv, 4))
	}
	s.Require().NoError(s.store.Increment(ctx, conv, 9))

	got, err := s.store.Get(ctx, conv, 4)
	s.Require().NoError(err)
	s.Require().NotNil(got)
	s.Equal(3, got.Count)

	got, err = s.store.Get(ctx, conv, 9)
	s.Require().NoError(err)
	s.Require().NotNil(got)
	s.Equal(1, got.Count)
}

// TestDeleteReturnsAndClears verifies the read-and-clear used by MarkRead is
// atomic: concurrent deletes see the counter exactly once.
func (s *RedisUnreadSuite) TestDeleteReturnsAndClears() {
	ctx := context.Background()
	conv := uuid.New()
	for i := 0; i < 5; i++ {
		s.Require().NoError(s.store.Increment(ctx, conv, 4))
	}

	const goroutines = 10
	var wg sync.WaitGroup
	var mu sync.Mutex
	var seen int

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := s.store.Delete(ctx, conv, 4)
			s.NoError(err)
			if got != nil {
				mu.Lock()
				seen++
				s.Equal(5, got.Count)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	s.Equal(1, seen, "exactly one delete observes the counter")

	got, err := s.store.Get(ctx, conv, 4)
	s.Require().NoError(err)
	s.Nil(got)
}

func (s *RedisUnreadSuite) TestCountersAreScopedPerGroup() {
	ctx := context.Background()
	conv := uuid.New()
	s.Require().NoError(s.store.Increment(ctx, conv, 4))
	s.Require().NoError(s.store.Increment(ctx, conv, 9))

	_, err := s.store.Delete(ctx, conv, 4)
	s.Require().NoError(err)

	got, err := s.store.Get(ctx, conv, 9)
	s.Require().NoError(err)
	s.Require().NotNil(got)
	s.Equal(1, got.Count)
}
