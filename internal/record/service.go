// Package record orchestrates the side-effecting record operations: intake,
// lifecycle transitions, reassignment, and claim. Decisions come from the
// lifecycle machine and the reassignment resolver; this service executes them
// inside one atomic unit per operation.
package record

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"tramita/internal/audit"
	"tramita/internal/catalog"
	"tramita/internal/domain"
	"tramita/internal/hierarchy"
	"tramita/internal/lifecycle"
	"tramita/internal/platform/metrics"
	"tramita/internal/reassign"
	domainerrors "tramita/pkg/domain-errors"
	"tramita/pkg/tx"
)

// Store is the record persistence port.
type Store interface {
	Get(ctx context.Context, id uuid.UUID) (*domain.Record, error)
	// GetForUpdate serializes concurrent transitions on one record.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.Record, error)
	Create(ctx context.Context, r *domain.Record) error
	Save(ctx context.Context, r *domain.Record, fields ...domain.Field) error
	IDs(ctx context.Context) ([]uuid.UUID, error)
}

// AuditSink is the slice of the audit pipeline this service emits to.
type AuditSink interface {
	Emit(ctx context.Context, ev audit.Event) error
}

// Service executes record mutations.
type Service struct {
	records  Store
	groups   hierarchy.Store
	machine  *lifecycle.Machine
	resolver *reassign.Resolver
	events   reassign.EventStore
	channels catalog.ResponseChannels
	catalog  *catalog.Catalog
	runner   tx.Runner
	sink     AuditSink
	metrics  *metrics.Metrics
	logger   *slog.Logger
	clock    func() time.Time
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithAuditSink(sink AuditSink) Option {
	return func(s *Service) { s.sink = sink }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithClock(clock func() time.Time) Option {
	return func(s *Service) { s.clock = clock }
}

func NewService(
	records Store,
	groups hierarchy.Store,
	machine *lifecycle.Machine,
	resolver *reassign.Resolver,
	events reassign.EventStore,
	channels catalog.ResponseChannels,
	cat *catalog.Catalog,
	runner tx.Runner,
	opts ...Option,
) *Service {
	s := &Service{
		records:  records,
		groups:   groups,
		machine:  machine,
		resolver: resolver,
		events:   events,
		channels: channels,
		catalog:  cat,
		runner:   runner,
		logger:   slog.Default(),
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Intake validates attributes against the process catalog, creates the record
// in pending_validate, and writes the initial-assignment derivation to the
// trail as an automatic move, never offered back as a return target.
func (s *Service) Intake(ctx context.Context, r *domain.Record, attrs map[string]string) (*domain.Record, error) {
	entry, ok := s.catalog.Entry(r.ProcessType)
	if !ok {
		return nil, domainerrors.New(domainerrors.CodeBadRequest,
			fmt.Sprintf("unknown process type %s", r.ProcessType))
	}
	for _, f := range entry.RequiredFields {
		if attrs[f] == "" {
			return nil, domainerrors.New(domainerrors.CodeBadRequest,
				fmt.Sprintf("field %s is required for process %s", f, r.ProcessType))
		}
	}
	for _, f := range entry.ForbiddenFields {
		if _, present := attrs[f]; present {
			return nil, domainerrors.New(domainerrors.CodeBadRequest,
				fmt.Sprintf("field %s is not allowed for process %s", f, r.ProcessType))
		}
	}

	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	r.State = domain.StatePendingValidate
	r.CreatedAt = s.clock()

	err := s.runner.Within(ctx, func(ctx context.Context) error {
		if err := s.records.Create(ctx, r); err != nil {
			return err
		}
		return s.events.Append(ctx, &domain.ReassignmentEvent{
			ID:            uuid.New(),
			RecordID:      r.ID,
			ActingGroup:   r.CreationGroup,
			PreviousGroup: r.CreationGroup,
			NextGroup:     r.ResponsibleID,
			Reason:        domain.ReasonInitialAssignment,
			CreatedAt:     s.clock(),
		})
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

// PerformTransition executes a named transition from the record's current
// step. The action must be present in the lifecycle machine's transition map;
// requesting anything else is programmatic misuse and surfaces as a hard
// error, not a deny.
func (s *Service) PerformTransition(ctx context.Context, recordID uuid.UUID, action string, acting domain.GroupID) (*domain.Record, error) {
	var rec *domain.Record
	err := s.runner.Within(ctx, func(ctx context.Context) error {
		var err error
		rec, err = s.records.GetForUpdate(ctx, recordID)
		if err != nil {
			return err
		}
		transitions, err := s.machine.Transitions(rec)
		if err != nil {
			return err
		}
		t, ok := transitions[action]
		if !ok {
			return domainerrors.New(domainerrors.CodeInvalidState,
				fmt.Sprintf("transition %s is not legal from state %s", action, rec.State))
		}

		from := rec.State
		fields := []domain.Field{domain.FieldState}

		switch t.Handler {
		case catalog.HandlerPendingAnswerChangeState:
			channel, err := s.channels.ResponseChannelOf(ctx, rec.ID)
			if err != nil {
				return fmt.Errorf("response channel of %s: %w", rec.ID, err)
			}
			if channel == catalog.ChannelNone {
				// Immediate-answer short-circuit: nothing to answer through,
				// so the record closes in the same externally-visible
				// transition.
				rec.State = domain.StateClosed
			} else {
				rec.State = t.To
			}
		default:
			rec.State = t.To
		}

		if rec.State == domain.StateClosed || rec.State == domain.StateCancelled {
			now := s.clock()
			rec.ClosedAt = &now
			rec.Alarms.PendApplicantResponse = false
			rec.Alarms.PendResponseResponsible = false
			rec.Alarms.Alarm = rec.Alarms.ApplicantResponse ||
				rec.Alarms.ResponseToResponsible || rec.Alarms.CitizenAlarm
			fields = append(fields,
				domain.FieldClosedAt,
				domain.FieldPendApplicantResponse,
				domain.FieldPendResponseResponsible,
				domain.FieldAlarm,
			)
		}

		if err := s.records.Save(ctx, rec, fields...); err != nil {
			return err
		}
		s.emit(ctx, audit.Event{
			Kind:        audit.KindTransitionPerformed,
			RecordID:    rec.ID,
			ActingGroup: acting,
			Detail: map[string]string{
				"action": action,
				"from":   string(from),
				"to":     string(rec.State),
			},
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.TransitionsPerformed.WithLabelValues(action).Inc()
	}
	s.logger.InfoContext(ctx, "transition performed",
		"record_id", recordID, "action", action, "state", string(rec.State))
	return rec, nil
}

// Reassign moves the record to target on behalf of acting. The target must be
// in the resolver's current candidate set; the move and its trail entry
// commit together.
func (s *Service) Reassign(ctx context.Context, recordID uuid.UUID, actingID, target domain.GroupID) (*domain.Record, error) {
	var rec *domain.Record
	err := s.runner.Within(ctx, func(ctx context.Context) error {
		var err error
		rec, err = s.records.GetForUpdate(ctx, recordID)
		if err != nil {
			return err
		}
		acting, err := s.groups.Get(ctx, actingID)
		if err != nil {
			return err
		}
		legal, elig, err := s.resolver.IsLegalTarget(ctx, rec, acting, target)
		if err != nil {
			return err
		}
		if !legal {
			reason := elig.Reason
			if reason == "" {
				reason = fmt.Sprintf("group %d is not a legal reassignment target", target)
			}
			return domainerrors.New(domainerrors.CodeForbidden, reason)
		}

		prev := rec.ResponsibleID
		rec.ResponsibleID = target
		if err := s.records.Save(ctx, rec, domain.FieldResponsible); err != nil {
			return err
		}
		if err := s.events.Append(ctx, &domain.ReassignmentEvent{
			ID:            uuid.New(),
			RecordID:      rec.ID,
			ActingGroup:   actingID,
			PreviousGroup: prev,
			NextGroup:     target,
			Reason:        domain.ReasonManual,
			CreatedAt:     s.clock(),
		}); err != nil {
			return err
		}
		s.emit(ctx, audit.Event{
			Kind:        audit.KindRecordReassigned,
			RecordID:    rec.ID,
			ActingGroup: actingID,
			Detail: map[string]string{
				"from": fmt.Sprintf("%d", prev),
				"to":   fmt.Sprintf("%d", target),
			},
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.ReassignmentsMoved.Inc()
	}
	return rec, nil
}

// Derive applies an automatic reassignment caused by a system event. No
// legality check: derivations bypass the resolver, and their reason keeps
// them out of future return-candidate sets.
func (s *Service) Derive(ctx context.Context, recordID uuid.UUID, target domain.GroupID, reason domain.ReassignmentReason) error {
	if !reason.Automatic() {
		return domainerrors.New(domainerrors.CodeBadRequest,
			fmt.Sprintf("derivation requires an automatic reason, got %s", reason))
	}
	return s.runner.Within(ctx, func(ctx context.Context) error {
		rec, err := s.records.GetForUpdate(ctx, recordID)
		if err != nil {
			return err
		}
		prev := rec.ResponsibleID
		rec.ResponsibleID = target
		if err := s.records.Save(ctx, rec, domain.FieldResponsible); err != nil {
			return err
		}
		return s.events.Append(ctx, &domain.ReassignmentEvent{
			ID:            uuid.New(),
			RecordID:      rec.ID,
			ActingGroup:   prev,
			PreviousGroup: prev,
			NextGroup:     target,
			Reason:        reason,
			CreatedAt:     s.clock(),
		})
	})
}

// Claim reopens a closed record at the applicant's request: the claims
// counter only ever increases, and the record restarts at pending_validate.
func (s *Service) Claim(ctx context.Context, recordID uuid.UUID, acting domain.GroupID) (*domain.Record, error) {
	var rec *domain.Record
	err := s.runner.Within(ctx, func(ctx context.Context) error {
		var err error
		rec, err = s.records.GetForUpdate(ctx, recordID)
		if err != nil {
			return err
		}
		if rec.State != domain.StateClosed {
			return domainerrors.New(domainerrors.CodeInvalidState,
				fmt.Sprintf("only closed records can be claimed, record is %s", rec.State))
		}
		if rec.ApplicantBlocked {
			return domainerrors.New(domainerrors.CodeForbidden, "applicant is blocked from claiming")
		}
		rec.ClaimsNumber++
		rec.State = domain.StatePendingValidate
		rec.ClosedAt = nil
		if err := s.records.Save(ctx, rec,
			domain.FieldState, domain.FieldClaimsNumber, domain.FieldClosedAt); err != nil {
			return err
		}
		s.emit(ctx, audit.Event{
			Kind:        audit.KindRecordClaimed,
			RecordID:    rec.ID,
			ActingGroup: acting,
			Detail:      map[string]string{"claims_number": fmt.Sprintf("%d", rec.ClaimsNumber)},
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.RecordsClaimed.Inc()
	}
	return rec, nil
}

func (s *Service) emit(ctx context.Context, ev audit.Event) {
	if s.sink == nil {
		return
	}
	if err := s.sink.Emit(ctx, ev); err != nil {
		s.logger.WarnContext(ctx, "audit emit failed", "kind", string(ev.Kind), "error", err)
	}
}
