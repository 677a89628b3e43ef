package store

import (
	"context"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"tramita/internal/domain"
)

// RedisUnread keeps unread counters in redis, one key per
// (conversation, group). Key existence carries the signal; the integer is
// cosmetic, matching the row-existence semantics of the SQL variant.
type RedisUnread struct {
	client *redis.Client
}

func NewRedisUnread(client *redis.Client) *RedisUnread {
	return &RedisUnread{client: client}
}

func unreadRedisKey(conversationID uuid.UUID, group domain.GroupID) string {
	return fmt.Sprintf("unread:%s:%d", conversationID, int64(group))
}

func (s *RedisUnread) Increment(ctx context.Context, conversationID uuid.UUID, group domain.GroupID) error {
	if err := s.client.Incr(ctx, unreadRedisKey(conversationID, group)).Err(); err != nil {
		return fmt.Errorf("increment unread counter: %w", err)
	}
	return nil
}

func (s *RedisUnread) Delete(ctx context.Context, conversationID uuid.UUID, group domain.GroupID) (*domain.UnreadCounter, error) {
	val, err := s.client.GetDel(ctx, unreadRedisKey(conversationID, group)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("delete unread counter: %w", err)
	}
	count, err := strconv.Atoi(val)
	if err != nil {
		return nil, fmt.Errorf("malformed unread counter %q: %w", val, err)
	}
	return &domain.UnreadCounter{ConversationID: conversationID, GroupID: group, Count: count}, nil
}

func (s *RedisUnread) Get(ctx context.Context, conversationID uuid.UUID, group domain.GroupID) (*domain.UnreadCounter, error) {
	val, err := s.client.Get(ctx, unreadRedisKey(conversationID, group)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get unread counter: %w", err)
	}
	count, err := strconv.Atoi(val)
	if err != nil {
		return nil, fmt.Errorf("malformed unread counter %q: %w", val, err)
	}
	return &domain.UnreadCounter{ConversationID: conversationID, GroupID: group, Count: count}, nil
}
