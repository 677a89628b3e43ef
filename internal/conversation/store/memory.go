package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"tramita/internal/domain"
	"tramita/pkg/sentinel"
)

// InMemory holds conversations and messages for tests and single-process use.
type InMemory struct {
	mu       sync.RWMutex
	convs    map[uuid.UUID]*domain.Conversation
	messages map[uuid.UUID][]*domain.Message
}

func NewInMemory() *InMemory {
	return &InMemory{
		convs:    make(map[uuid.UUID]*domain.Conversation),
		messages: make(map[uuid.UUID][]*domain.Message),
	}
}

func (s *InMemory) GetConversation(ctx context.Context, id uuid.UUID) (*domain.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.convs[id]
	if !ok {
		return nil, fmt.Errorf("conversation %s: %w", id, sentinel.ErrNotFound)
	}
	return copyConversation(c), nil
}

func (s *InMemory) CreateConversation(ctx context.Context, c *domain.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.convs[c.ID]; exists {
		return fmt.Errorf("conversation %s: %w", c.ID, sentinel.ErrConflict)
	}
	s.convs[c.ID] = copyConversation(c)
	return nil
}

func (s *InMemory) AppendMessage(ctx context.Context, m *domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.convs[m.ConversationID]; !ok {
		return fmt.Errorf("conversation %s: %w", m.ConversationID, sentinel.ErrNotFound)
	}
	c := *m
	s.messages[m.ConversationID] = append(s.messages[m.ConversationID], &c)
	return nil
}

func (s *InMemory) Messages(ctx context.Context, conversationID uuid.UUID) ([]*domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msgs := s.messages[conversationID]
	out := make([]*domain.Message, len(msgs))
	for i, m := range msgs {
		c := *m
		out[i] = &c
	}
	return out, nil
}

func (s *InMemory) ByRecord(ctx context.Context, recordID uuid.UUID) ([]*domain.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.Conversation
	for _, c := range s.convs {
		if c.RecordID == recordID {
			out = append(out, copyConversation(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out, nil
}

func (s *InMemory) CloseConversation(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.convs[id]
	if !ok {
		return fmt.Errorf("conversation %s: %w", id, sentinel.ErrNotFound)
	}
	c.Closed = true
	return nil
}

func copyConversation(c *domain.Conversation) *domain.Conversation {
	cp := *c
	cp.Participants = append([]domain.GroupID(nil), c.Participants...)
	return &cp
}

// InMemoryUnread is the map-backed unread tracker. Existence of an entry is
// authoritative.
type InMemoryUnread struct {
	mu       sync.Mutex
	counters map[unreadKey]int
}

type unreadKey struct {
	conversation uuid.UUID
	group        domain.GroupID
}

func NewInMemoryUnread() *InMemoryUnread {
	return &InMemoryUnread{counters: make(map[unreadKey]int)}
}

func (s *InMemoryUnread) Increment(ctx context.Context, conversationID uuid.UUID, group domain.GroupID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counters[unreadKey{conversationID, group}]++
	return nil
}

func (s *InMemoryUnread) Delete(ctx context.Context, conversationID uuid.UUID, group domain.GroupID) (*domain.UnreadCounter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := unreadKey{conversationID, group}
	count, ok := s.counters[key]
	if !ok {
		return nil, nil
	}
	delete(s.counters, key)
	return &domain.UnreadCounter{ConversationID: conversationID, GroupID: group, Count: count}, nil
}

func (s *InMemoryUnread) Get(ctx context.Context, conversationID uuid.UUID, group domain.GroupID) (*domain.UnreadCounter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count, ok := s.counters[unreadKey{conversationID, group}]
	if !ok {
		return nil, nil
	}
	return &domain.UnreadCounter{ConversationID: conversationID, GroupID: group, Count: count}, nil
}
