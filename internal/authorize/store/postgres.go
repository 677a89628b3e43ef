package store

import (
	"context"
	"database/sql"
	"fmt"
)

// Postgres looks permissions up in the user_permissions table, one row per
// (user, permission).
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (s *Postgres) HasPermission(ctx context.Context, userID, permission string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM user_permissions
			WHERE user_id = $1 AND permission = $2
		)
	`, userID, permission).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("permission lookup: %w", err)
	}
	return exists, nil
}
