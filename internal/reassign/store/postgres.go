package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"tramita/internal/domain"
	"tramita/pkg/tx"
)

// Postgres persists the append-only reassignment trail. Appends join the
// caller's transaction when one is carried in context so the trail commits
// atomically with the state change that caused it.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (s *Postgres) Append(ctx context.Context, ev *domain.ReassignmentEvent) error {
	const q = `
		INSERT INTO reassignment_events
			(id, record_id, acting_group, previous_group, next_group, reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	args := []any{
		ev.ID, ev.RecordID,
		int64(ev.ActingGroup), int64(ev.PreviousGroup), int64(ev.NextGroup),
		string(ev.Reason), ev.CreatedAt,
	}
	var err error
	if t, ok := tx.From(ctx); ok {
		_, err = t.ExecContext(ctx, q, args...)
	} else {
		_, err = s.db.ExecContext(ctx, q, args...)
	}
	if err != nil {
		return fmt.Errorf("append reassignment event: %w", err)
	}
	return nil
}

func (s *Postgres) ByRecord(ctx context.Context, recordID uuid.UUID) ([]*domain.ReassignmentEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, record_id, acting_group, previous_group, next_group, reason, created_at
		FROM reassignment_events
		WHERE record_id = $1
		ORDER BY created_at, id
	`, recordID)
	if err != nil {
		return nil, fmt.Errorf("reassignment trail: %w", err)
	}
	defer rows.Close()

	var out []*domain.ReassignmentEvent
	for rows.Next() {
		var (
			ev                 domain.ReassignmentEvent
			acting, prev, next int64
			reason             string
		)
		if err := rows.Scan(&ev.ID, &ev.RecordID, &acting, &prev, &next, &reason, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan reassignment event: %w", err)
		}
		ev.ActingGroup = domain.GroupID(acting)
		ev.PreviousGroup = domain.GroupID(prev)
		ev.NextGroup = domain.GroupID(next)
		ev.Reason = domain.ReassignmentReason(reason)
		out = append(out, &ev)
	}
	return out, rows.Err()
}
