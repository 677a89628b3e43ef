// Package tx carries a SQL transaction through context so stores composed in
// one core operation commit atomically, and abstracts "run this inside a
// transaction" for callers that must not know the storage backend.
package tx

import (
	"context"
	"database/sql"
	"fmt"
)

type ctxKey struct{}

var txKey = ctxKey{}

// WithTx stores a SQL transaction in context for downstream store usage.
func WithTx(ctx context.Context, tx *sql.Tx) context.Context {
	if tx == nil {
		return ctx
	}
	return context.WithValue(ctx, txKey, tx)
}

// From extracts a SQL transaction from context if present.
func From(ctx context.Context) (*sql.Tx, bool) {
	tx, ok := ctx.Value(txKey).(*sql.Tx)
	return tx, ok
}

// Runner executes a function inside one atomic unit. SQL-backed deployments
// use SQLRunner; memory-backed tests use Noop, where atomicity is the single
// process itself.
type Runner interface {
	Within(ctx context.Context, fn func(ctx context.Context) error) error
}

// SQLRunner begins a database/sql transaction, threads it through context,
// and commits iff fn returns nil.
type SQLRunner struct {
	DB *sql.DB
}

func (r SQLRunner) Within(ctx context.Context, fn func(ctx context.Context) error) error {
	t, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(WithTx(ctx, t)); err != nil {
		_ = t.Rollback()
		return err
	}
	if err := t.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Noop runs fn directly. For in-memory stores.
type Noop struct{}

func (Noop) Within(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
