// Package recovery rebuilds derived record state after incidents. The only
// sweep today is the alarm recompute: walk every record and rederive its
// alarm flags from the conversation history, trusting the stores as the
// source of truth.
package recovery

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"tramita/internal/platform/metrics"
)

const defaultConcurrency = 8

// Recomputer rederives one record's alarm flags.
type Recomputer interface {
	RecomputeRecord(ctx context.Context, recordID uuid.UUID) error
}

// RecordLister enumerates record ids for a sweep.
type RecordLister interface {
	IDs(ctx context.Context) ([]uuid.UUID, error)
}

// Sweeper runs bulk recomputations with bounded concurrency.
type Sweeper struct {
	records     RecordLister
	engine      Recomputer
	concurrency int
	metrics     *metrics.Metrics
	logger      *slog.Logger
}

type Option func(*Sweeper)

func WithConcurrency(n int) Option {
	return func(s *Sweeper) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Sweeper) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Sweeper) { s.metrics = m }
}

func NewSweeper(records RecordLister, engine Recomputer, opts ...Option) *Sweeper {
	s := &Sweeper{
		records:     records,
		engine:      engine,
		concurrency: defaultConcurrency,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RecomputeAlarms sweeps every record. Each record recomputes in its own
// transaction, so a failure aborts the sweep without poisoning records
// already processed; rerunning is safe.
func (s *Sweeper) RecomputeAlarms(ctx context.Context) error {
	ids, err := s.records.IDs(ctx)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, id := range ids {
		g.Go(func() error {
			if err := s.engine.RecomputeRecord(ctx, id); err != nil {
				s.logger.ErrorContext(ctx, "alarm recompute failed", "record_id", id, "error", err)
				return err
			}
			if s.metrics != nil {
				s.metrics.AlarmRecomputations.Inc()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "alarm sweep complete", "records", len(ids))
	return nil
}
