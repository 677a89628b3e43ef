package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"tramita/internal/domain"
	"tramita/pkg/sentinel"
	"tramita/pkg/tx"
)

// Postgres persists conversations and messages. Writes join the caller's
// transaction when one is carried in context.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (s *Postgres) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if t, ok := tx.From(ctx); ok {
		return t.ExecContext(ctx, query, args...)
	}
	return s.db.ExecContext(ctx, query, args...)
}

func (s *Postgres) GetConversation(ctx context.Context, id uuid.UUID) (*domain.Conversation, error) {
	var (
		c            domain.Conversation
		creation     int64
		participants pq.Int64Array
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, record_id, type, creation_group, closed, require_answer, participants
		FROM conversations WHERE id = $1
	`, id).Scan(&c.ID, &c.RecordID, &c.Type, &creation, &c.Closed, &c.RequireAnswer, &participants)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("conversation %s: %w", id, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	c.CreationGroup = domain.GroupID(creation)
	for _, p := range participants {
		c.Participants = append(c.Participants, domain.GroupID(p))
	}
	return &c, nil
}

func (s *Postgres) CreateConversation(ctx context.Context, c *domain.Conversation) error {
	participants := make(pq.Int64Array, len(c.Participants))
	for i, p := range c.Participants {
		participants[i] = int64(p)
	}
	_, err := s.exec(ctx, `
		INSERT INTO conversations (id, record_id, type, creation_group, closed, require_answer, participants)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, c.ID, c.RecordID, string(c.Type), int64(c.CreationGroup), c.Closed, c.RequireAnswer, participants)
	if err != nil {
		return fmt.Errorf("create conversation: %w", err)
	}
	return nil
}

func (s *Postgres) AppendMessage(ctx context.Context, m *domain.Message) error {
	_, err := s.exec(ctx, `
		INSERT INTO messages (id, conversation_id, author_group, record_state, text, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, m.ID, m.ConversationID, nullableGroup(m.AuthorGroup), string(m.RecordState), m.Text, m.CreatedAt)
	if err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	return nil
}

func (s *Postgres) Messages(ctx context.Context, conversationID uuid.UUID) ([]*domain.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, conversation_id, author_group, record_state, text, created_at
		FROM messages WHERE conversation_id = $1
		ORDER BY created_at, id
	`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("messages: %w", err)
	}
	defer rows.Close()

	var out []*domain.Message
	for rows.Next() {
		var (
			m      domain.Message
			author sql.NullInt64
			state  string
		)
		if err := rows.Scan(&m.ID, &m.ConversationID, &author, &state, &m.Text, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		if author.Valid {
			g := domain.GroupID(author.Int64)
			m.AuthorGroup = &g
		}
		m.RecordState = domain.RecordState(state)
		out = append(out, &m)
	}
	return out, rows.Err()
}

func (s *Postgres) ByRecord(ctx context.Context, recordID uuid.UUID) ([]*domain.Conversation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM conversations WHERE record_id = $1 ORDER BY id
	`, recordID)
	if err != nil {
		return nil, fmt.Errorf("conversations by record: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan conversation id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]*domain.Conversation, 0, len(ids))
	for _, id := range ids {
		c, err := s.GetConversation(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func (s *Postgres) CloseConversation(ctx context.Context, id uuid.UUID) error {
	res, err := s.exec(ctx, `UPDATE conversations SET closed = TRUE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("close conversation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("conversation %s: %w", id, sentinel.ErrNotFound)
	}
	return nil
}

// PostgresUnread keeps unread counters in SQL, one row per
// (conversation, group); the row's existence is the signal.
type PostgresUnread struct {
	db *sql.DB
}

func NewPostgresUnread(db *sql.DB) *PostgresUnread {
	return &PostgresUnread{db: db}
}

func (s *PostgresUnread) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	if t, ok := tx.From(ctx); ok {
		return t.ExecContext(ctx, query, args...)
	}
	return s.db.ExecContext(ctx, query, args...)
}

func (s *PostgresUnread) Increment(ctx context.Context, conversationID uuid.UUID, group domain.GroupID) error {
	_, err := s.exec(ctx, `
		INSERT INTO unread_counters (conversation_id, group_id, count)
		VALUES ($1, $2, 1)
		ON CONFLICT (conversation_id, group_id) DO UPDATE SET count = unread_counters.count + 1
	`, conversationID, int64(group))
	if err != nil {
		return fmt.Errorf("increment unread counter: %w", err)
	}
	return nil
}

func (s *PostgresUnread) Delete(ctx context.Context, conversationID uuid.UUID, group domain.GroupID) (*domain.UnreadCounter, error) {
	const q = `
		DELETE FROM unread_counters
		WHERE conversation_id = $1 AND group_id = $2
		RETURNING count
	`
	var row *sql.Row
	if t, ok := tx.From(ctx); ok {
		row = t.QueryRowContext(ctx, q, conversationID, int64(group))
	} else {
		row = s.db.QueryRowContext(ctx, q, conversationID, int64(group))
	}
	var count int
	if err := row.Scan(&count); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("delete unread counter: %w", err)
	}
	return &domain.UnreadCounter{ConversationID: conversationID, GroupID: group, Count: count}, nil
}

func (s *PostgresUnread) Get(ctx context.Context, conversationID uuid.UUID, group domain.GroupID) (*domain.UnreadCounter, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT count FROM unread_counters WHERE conversation_id = $1 AND group_id = $2
	`, conversationID, int64(group)).Scan(&count)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get unread counter: %w", err)
	}
	return &domain.UnreadCounter{ConversationID: conversationID, GroupID: group, Count: count}, nil
}

func nullableGroup(g *domain.GroupID) any {
	if g == nil {
		return nil
	}
	return int64(*g)
}
