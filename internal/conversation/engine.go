// Package conversation owns message threads and the per-record alarm flags
// they drive. On every message (and on mark-read by the responsible group)
// the engine recomputes the alarm subset for the conversation's type and
// persists only the fields that changed.
package conversation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"tramita/internal/audit"
	"tramita/internal/catalog"
	"tramita/internal/domain"
	"tramita/internal/platform/metrics"
	"tramita/pkg/tx"
)

// Store persists conversations and messages.
type Store interface {
	GetConversation(ctx context.Context, id uuid.UUID) (*domain.Conversation, error)
	CreateConversation(ctx context.Context, c *domain.Conversation) error
	AppendMessage(ctx context.Context, m *domain.Message) error
	// Messages returns a conversation's messages in chronological order.
	Messages(ctx context.Context, conversationID uuid.UUID) ([]*domain.Message, error)
	ByRecord(ctx context.Context, recordID uuid.UUID) ([]*domain.Conversation, error)
	CloseConversation(ctx context.Context, id uuid.UUID) error
}

// UnreadStore tracks which groups have unread messages per conversation.
// Existence of an entry is authoritative; the count is cosmetic.
type UnreadStore interface {
	// Increment bumps the counter, creating it with count=1 when absent.
	Increment(ctx context.Context, conversationID uuid.UUID, group domain.GroupID) error
	// Delete removes the group's entry, returning the deleted counter or nil
	// when none existed.
	Delete(ctx context.Context, conversationID uuid.UUID, group domain.GroupID) (*domain.UnreadCounter, error)
	Get(ctx context.Context, conversationID uuid.UUID, group domain.GroupID) (*domain.UnreadCounter, error)
}

// RecordStore is the slice of record persistence the engine needs.
type RecordStore interface {
	Get(ctx context.Context, id uuid.UUID) (*domain.Record, error)
	Save(ctx context.Context, r *domain.Record, fields ...domain.Field) error
}

// Obligations answers the secondary alarm check: does the responsible group
// carry an unresolved pending-message obligation independent of this
// conversation.
type Obligations interface {
	HasPendingObligation(ctx context.Context, recordID uuid.UUID, group domain.GroupID) (bool, error)
}

// NoObligations is the null secondary check.
type NoObligations struct{}

func (NoObligations) HasPendingObligation(ctx context.Context, recordID uuid.UUID, group domain.GroupID) (bool, error) {
	return false, nil
}

// AuditSink is the slice of the audit pipeline the engine emits to.
type AuditSink interface {
	Emit(ctx context.Context, ev audit.Event) error
}

// Engine applies alarm propagation rules.
type Engine struct {
	convs       Store
	unread      UnreadStore
	records     RecordStore
	channels    catalog.ResponseChannels
	obligations Obligations
	runner      tx.Runner
	sink        AuditSink
	metrics     *metrics.Metrics
	logger      *slog.Logger
	clock       func() time.Time
}

type Option func(*Engine)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

func WithObligations(o Obligations) Option {
	return func(e *Engine) { e.obligations = o }
}

func WithAuditSink(s AuditSink) Option {
	return func(e *Engine) { e.sink = s }
}

func WithClock(clock func() time.Time) Option {
	return func(e *Engine) { e.clock = clock }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

func NewEngine(convs Store, unread UnreadStore, records RecordStore, channels catalog.ResponseChannels, runner tx.Runner, opts ...Option) *Engine {
	e := &Engine{
		convs:       convs,
		unread:      unread,
		records:     records,
		channels:    channels,
		obligations: NoObligations{},
		runner:      runner,
		logger:      slog.Default(),
		clock:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Open creates a new conversation thread on a record.
func (e *Engine) Open(ctx context.Context, c *domain.Conversation) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return e.convs.CreateConversation(ctx, c)
}

// AddMessage appends a message and recomputes the record's alarm flags and
// unread counters inside one atomic unit.
func (e *Engine) AddMessage(ctx context.Context, conversationID uuid.UUID, authorGroup *domain.GroupID, text string) (*domain.Message, error) {
	conv, err := e.convs.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	rec, err := e.records.Get(ctx, conv.RecordID)
	if err != nil {
		return nil, err
	}

	msg := &domain.Message{
		ID:             uuid.New(),
		ConversationID: conversationID,
		AuthorGroup:    authorGroup,
		RecordState:    rec.State,
		Text:           text,
		CreatedAt:      e.clock(),
	}

	err = e.runner.Within(ctx, func(ctx context.Context) error {
		if err := e.convs.AppendMessage(ctx, msg); err != nil {
			return err
		}
		if err := e.recomputeAlarms(ctx, rec, conv); err != nil {
			return err
		}
		// Every involved group except the author gets an unread entry. The
		// updates are order-free but must all land before commit.
		for _, g := range conv.Participants {
			if authorGroup != nil && g == *authorGroup {
				continue
			}
			if err := e.unread.Increment(ctx, conversationID, g); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if e.sink != nil {
		var acting domain.GroupID
		if authorGroup != nil {
			acting = *authorGroup
		}
		_ = e.sink.Emit(ctx, audit.Event{
			Kind:        audit.KindMessageCreated,
			RecordID:    rec.ID,
			ActingGroup: acting,
			Detail:      map[string]string{"conversation_type": string(conv.Type)},
		})
	}
	return msg, nil
}

// MarkRead removes exactly the reading group's unread entry. When the reader
// is the record's responsible profile and the removed entry was live, the
// alarm flags are recomputed: the alarm reflects "is there something unread",
// not just "did something happen".
func (e *Engine) MarkRead(ctx context.Context, conversationID uuid.UUID, group domain.GroupID) error {
	conv, err := e.convs.GetConversation(ctx, conversationID)
	if err != nil {
		return err
	}
	return e.runner.Within(ctx, func(ctx context.Context) error {
		deleted, err := e.unread.Delete(ctx, conversationID, group)
		if err != nil {
			return err
		}
		if deleted == nil || deleted.Count == 0 {
			return nil
		}
		if e.metrics != nil {
			e.metrics.UnreadPurged.Inc()
		}
		rec, err := e.records.Get(ctx, conv.RecordID)
		if err != nil {
			return err
		}
		if rec.ResponsibleID != group {
			return nil
		}
		return e.recomputeAlarms(ctx, rec, conv)
	})
}

// RecomputeRecord rederives every alarm flag on one record from its full
// conversation history. Idempotent: running it on a consistent record is a
// no-op because only changed fields are ever written.
func (e *Engine) RecomputeRecord(ctx context.Context, recordID uuid.UUID) error {
	return e.runner.Within(ctx, func(ctx context.Context) error {
		rec, err := e.records.Get(ctx, recordID)
		if err != nil {
			return err
		}
		convs, err := e.convs.ByRecord(ctx, recordID)
		if err != nil {
			return err
		}
		for _, conv := range convs {
			if err := e.recomputeAlarms(ctx, rec, conv); err != nil {
				return err
			}
		}
		return nil
	})
}

// recomputeAlarms rederives the alarm subset owned by conv's type from the
// message history and persists only the changed fields. A record without a
// response configuration simply cannot be pending an applicant answer; that
// is not an error.
func (e *Engine) recomputeAlarms(ctx context.Context, rec *domain.Record, conv *domain.Conversation) error {
	msgs, err := e.convs.Messages(ctx, conv.ID)
	if err != nil {
		return err
	}

	before := rec.Alarms

	switch conv.Type {
	case domain.ConversationApplicant:
		applicantReplied := applicantRepliedSinceResponsible(msgs)
		pend := len(msgs) > 0 && msgs[len(msgs)-1].FromApplicant()

		channel, err := e.channels.ResponseChannelOf(ctx, rec.ID)
		if err != nil {
			return fmt.Errorf("response channel of %s: %w", rec.ID, err)
		}
		if channel == catalog.ChannelNone {
			pend = false
		}
		rec.Alarms.ApplicantResponse = applicantReplied
		rec.Alarms.PendApplicantResponse = pend

	default:
		replied := nonResponsibleRepliedSinceResponsible(msgs, rec.ResponsibleID)
		pend := pendingOnResponsible(msgs, conv, rec.ResponsibleID)
		if !replied && !pend {
			pend, err = e.obligations.HasPendingObligation(ctx, rec.ID, rec.ResponsibleID)
			if err != nil {
				return err
			}
		}
		rec.Alarms.ResponseToResponsible = replied
		rec.Alarms.PendResponseResponsible = pend
	}

	rec.Alarms.Alarm = rec.Alarms.ApplicantResponse ||
		rec.Alarms.PendApplicantResponse ||
		rec.Alarms.ResponseToResponsible ||
		rec.Alarms.PendResponseResponsible ||
		rec.Alarms.CitizenAlarm

	fields := changedAlarmFields(before, rec.Alarms)
	if len(fields) == 0 {
		return nil
	}
	return e.records.Save(ctx, rec, fields...)
}

// applicantRepliedSinceResponsible reports whether the applicant wrote after
// the last responsible-side message. Walking backwards, the first author
// decides: applicant means an unanswered reply, a group means the applicant
// has not spoken since.
func applicantRepliedSinceResponsible(msgs []*domain.Message) bool {
	if len(msgs) == 0 {
		return false
	}
	return msgs[len(msgs)-1].FromApplicant()
}

// nonResponsibleRepliedSinceResponsible reports whether any non-responsible
// participant wrote after the responsible group's last message.
func nonResponsibleRepliedSinceResponsible(msgs []*domain.Message, responsible domain.GroupID) bool {
	if len(msgs) == 0 {
		return false
	}
	last := msgs[len(msgs)-1]
	return last.AuthorGroup == nil || *last.AuthorGroup != responsible
}

// pendingOnResponsible: the thread requires an answer and its last word is
// not the responsible group's.
func pendingOnResponsible(msgs []*domain.Message, conv *domain.Conversation, responsible domain.GroupID) bool {
	if !conv.RequireAnswer || conv.Closed || len(msgs) == 0 {
		return false
	}
	last := msgs[len(msgs)-1]
	return last.AuthorGroup == nil || *last.AuthorGroup != responsible
}

func changedAlarmFields(before, after domain.Alarms) []domain.Field {
	var fields []domain.Field
	if before.Alarm != after.Alarm {
		fields = append(fields, domain.FieldAlarm)
	}
	if before.PendApplicantResponse != after.PendApplicantResponse {
		fields = append(fields, domain.FieldPendApplicantResponse)
	}
	if before.ApplicantResponse != after.ApplicantResponse {
		fields = append(fields, domain.FieldApplicantResponse)
	}
	if before.ResponseToResponsible != after.ResponseToResponsible {
		fields = append(fields, domain.FieldResponseToResponsible)
	}
	if before.PendResponseResponsible != after.PendResponseResponsible {
		fields = append(fields, domain.FieldPendResponseResponsible)
	}
	if before.CitizenAlarm != after.CitizenAlarm {
		fields = append(fields, domain.FieldCitizenAlarm)
	}
	return fields
}
