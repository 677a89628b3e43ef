package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Sink receives audit events for durable delivery. Implementations: the
// in-memory store (tests), the kafka sink (production).
type Sink interface {
	Emit(ctx context.Context, ev Event) error
}

// Publisher fronts a sink with optional async buffering so the hot path never
// blocks on delivery. Close drains the buffer.
type Publisher struct {
	sink   Sink
	logger *slog.Logger

	inbox chan Event
	wg    sync.WaitGroup
	once  sync.Once
}

type PublisherOption func(*Publisher)

// WithAsyncBuffer makes Emit enqueue instead of delivering inline.
func WithAsyncBuffer(size int) PublisherOption {
	return func(p *Publisher) {
		p.inbox = make(chan Event, size)
	}
}

func WithPublisherLogger(logger *slog.Logger) PublisherOption {
	return func(p *Publisher) { p.logger = logger }
}

func NewPublisher(sink Sink, opts ...PublisherOption) *Publisher {
	p := &Publisher{sink: sink, logger: slog.Default()}
	for _, opt := range opts {
		opt(p)
	}
	if p.inbox != nil {
		p.wg.Add(1)
		go p.drain()
	}
	return p
}

// Emit records an event. Zero ID and Timestamp are filled in.
func (p *Publisher) Emit(ctx context.Context, ev Event) error {
	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	if p.inbox == nil {
		return p.sink.Emit(ctx, ev)
	}
	p.inbox <- ev
	return nil
}

func (p *Publisher) drain() {
	defer p.wg.Done()
	for ev := range p.inbox {
		// Delivery failures are logged, not propagated: the state change the
		// event describes has already committed.
		if err := p.sink.Emit(context.Background(), ev); err != nil {
			p.logger.Error("audit event delivery failed",
				"kind", string(ev.Kind),
				"record_id", ev.RecordID,
				"error", err,
			)
		}
	}
}

// Close drains pending events and stops the background worker.
func (p *Publisher) Close() {
	p.once.Do(func() {
		if p.inbox != nil {
			close(p.inbox)
			p.wg.Wait()
		}
	})
}
