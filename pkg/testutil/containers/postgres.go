//go:build integration

package containers

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// PostgresContainer wraps a testcontainers Postgres instance with the schema
// already applied.
type PostgresContainer struct {
	Container testcontainers.Container
	DSN       string
	DB        *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS groups (
	id                   BIGINT PRIMARY KEY,
	name                 TEXT NOT NULL,
	parent_id            BIGINT REFERENCES groups (id),
	plate                TEXT NOT NULL,
	is_ambit             BOOLEAN NOT NULL DEFAULT FALSE,
	ambit_coordinator_id BIGINT
);
CREATE INDEX IF NOT EXISTS groups_plate_idx ON groups (plate text_pattern_ops);

CREATE TABLE IF NOT EXISTS group_reassign_edges (
	group_id  BIGINT NOT NULL REFERENCES groups (id) ON DELETE CASCADE,
	target_id BIGINT NOT NULL,
	PRIMARY KEY (group_id, target_id)
);

CREATE TABLE IF NOT EXISTS records (
	id                        UUID PRIMARY KEY,
	process_type              TEXT NOT NULL,
	record_state              TEXT NOT NULL,
	theme_id                  TEXT NOT NULL DEFAULT '',
	responsible_profile       BIGINT NOT NULL,
	creation_group            BIGINT NOT NULL,
	created_at                TIMESTAMPTZ NOT NULL,
	closed_at                 TIMESTAMPTZ,
	claims_number             INTEGER NOT NULL DEFAULT 0,
	reassignment_not_allowed  BOOLEAN NOT NULL DEFAULT FALSE,
	mayorship                 BOOLEAN NOT NULL DEFAULT FALSE,
	applicant_blocked         BOOLEAN NOT NULL DEFAULT FALSE,
	theme_invalidated         BOOLEAN NOT NULL DEFAULT FALSE,
	alarm                     BOOLEAN NOT NULL DEFAULT FALSE,
	pend_applicant_response   BOOLEAN NOT NULL DEFAULT FALSE,
	applicant_response        BOOLEAN NOT NULL DEFAULT FALSE,
	response_to_responsible   BOOLEAN NOT NULL DEFAULT FALSE,
	pend_response_responsible BOOLEAN NOT NULL DEFAULT FALSE,
	citizen_alarm             BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE TABLE IF NOT EXISTS reassignment_events (
	id             UUID PRIMARY KEY,
	record_id      UUID NOT NULL,
	acting_group   BIGINT NOT NULL,
	previous_group BIGINT NOT NULL,
	next_group     BIGINT NOT NULL,
	reason         TEXT NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS reassignment_events_record_idx
	ON reassignment_events (record_id, created_at);

CREATE TABLE IF NOT EXISTS conversations (
	id             UUID PRIMARY KEY,
	record_id      UUID NOT NULL,
	type           TEXT NOT NULL,
	creation_group BIGINT NOT NULL,
	closed         BOOLEAN NOT NULL DEFAULT FALSE,
	require_answer BOOLEAN NOT NULL DEFAULT TRUE,
	participants   BIGINT[] NOT NULL DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS conversations_record_idx ON conversations (record_id);

CREATE TABLE IF NOT EXISTS messages (
	id              UUID PRIMARY KEY,
	conversation_id UUID NOT NULL,
	author_group    BIGINT,
	record_state    TEXT NOT NULL,
	text            TEXT NOT NULL,
	created_at      TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS messages_conversation_idx
	ON messages (conversation_id, created_at);

CREATE TABLE IF NOT EXISTS unread_counters (
	conversation_id UUID NOT NULL,
	group_id        BIGINT NOT NULL,
	count           INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (conversation_id, group_id)
);

CREATE TABLE IF NOT EXISTS user_permissions (
	user_id    TEXT NOT NULL,
	permission TEXT NOT NULL,
	PRIMARY KEY (user_id, permission)
);
`

// NewPostgresContainer starts a new Postgres container and applies the schema.
func NewPostgresContainer(t *testing.T) *PostgresContainer {
	t.Helper()

	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("tramita_test"),
		tcpostgres.WithUsername("tramita"),
		tcpostgres.WithPassword("tramita"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("failed to get postgres connection string: %v", err)
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("failed to open postgres connection: %v", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		_ = container.Terminate(ctx)
		t.Fatalf("failed to ping postgres: %v", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		_ = container.Terminate(ctx)
		t.Fatalf("failed to apply schema: %v", err)
	}

	// The container is shared through the Manager; Ryuk handles cleanup.

	return &PostgresContainer{
		Container: container,
		DSN:       dsn,
		DB:        db,
	}
}

// TruncateTables empties the named tables. Use between tests for isolation.
func (p *PostgresContainer) TruncateTables(ctx context.Context, tables ...string) error {
	if len(tables) == 0 {
		return nil
	}
	q := fmt.Sprintf("TRUNCATE TABLE %s CASCADE", strings.Join(tables, ", "))
	if _, err := p.DB.ExecContext(ctx, q); err != nil {
		return fmt.Errorf("truncate tables: %w", err)
	}
	return nil
}
