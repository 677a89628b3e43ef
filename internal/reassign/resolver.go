// Package reassign computes where a record may legally move across the group
// tree: the eligibility gate, the candidate set, ambit restriction, and the
// packaged reassign action.
package reassign

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"tramita/internal/catalog"
	"tramita/internal/domain"
	"tramita/internal/hierarchy"
)

// EligibilityType classifies the reassignment regime for a record/group pair.
type EligibilityType string

const (
	// NoReassign: the record carries the reassignment lock and no override
	// condition holds.
	NoReassign EligibilityType = "no_reassign"
	// CoordinatorOnly: the record is not yet validated, its theme is not
	// flagged validated-reassignable, and the acting group is not an ambit;
	// only the group's ambit coordinator is offered.
	CoordinatorOnly EligibilityType = "reassign_coordinator_only"
	// AmbitGroups: the record aged past the theme's validation-place
	// threshold (or was claimed) while still pending validation; candidates
	// are limited to the acting group's ambit.
	AmbitGroups EligibilityType = "reassign_ambit_groups"
	// ConfigGroups: the default regime, driven by the explicit
	// reassignment-edge graph.
	ConfigGroups EligibilityType = "reassign_config_groups"
)

// Eligibility carries the selected regime plus a human-readable reason for
// every non-default result. Callers surface the reason as-is.
type Eligibility struct {
	Type   EligibilityType
	Reason string
}

// Action is the packaged reassign decision for one acting group.
type Action struct {
	CanPerform bool
	Reason     string
}

// EventStore reads and appends the record's reassignment trail. The trail is
// append-only; events are never mutated or deleted.
type EventStore interface {
	Append(ctx context.Context, ev *domain.ReassignmentEvent) error
	ByRecord(ctx context.Context, recordID uuid.UUID) ([]*domain.ReassignmentEvent, error)
}

// Resolver computes reassignment legality. Read-only: appending events on a
// performed move belongs to the record service's transaction.
type Resolver struct {
	tree   *hierarchy.Service
	groups hierarchy.Store
	events EventStore
	themes catalog.ThemeConfig
	clock  func() time.Time
	logger *slog.Logger
}

type Option func(*Resolver)

func WithClock(clock func() time.Time) Option {
	return func(r *Resolver) { r.clock = clock }
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) { r.logger = logger }
}

func NewResolver(tree *hierarchy.Service, groups hierarchy.Store, events EventStore, themes catalog.ThemeConfig, opts ...Option) *Resolver {
	r := &Resolver{
		tree:   tree,
		groups: groups,
		events: events,
		themes: themes,
		clock:  time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SelectType is the eligibility gate.
func (r *Resolver) SelectType(ctx context.Context, rec *domain.Record, acting *domain.Group) (Eligibility, error) {
	// Claimed records stay movable despite the lock: the claim restarts the
	// validation cycle and the record must be routable again.
	if rec.ReassignmentNotAllowed && rec.ClaimsNumber == 0 {
		return Eligibility{
			Type:   NoReassign,
			Reason: "reassignment is locked for this record",
		}, nil
	}

	if rec.State == domain.StatePendingValidate {
		reassignable, err := r.themes.IsValidatedReassignable(ctx, rec.ThemeID)
		if err != nil {
			return Eligibility{}, fmt.Errorf("theme config for %s: %w", rec.ThemeID, err)
		}
		if !reassignable {
			days, err := r.themes.ValidationPlaceDays(ctx, rec.ThemeID)
			if err != nil {
				return Eligibility{}, fmt.Errorf("theme config for %s: %w", rec.ThemeID, err)
			}
			aged := rec.Age(r.clock()) > time.Duration(days)*24*time.Hour
			if aged || rec.ClaimsNumber > 0 {
				return Eligibility{
					Type:   AmbitGroups,
					Reason: "record pending validation past the place threshold; candidates limited to the group's ambit",
				}, nil
			}
			if !acting.IsAmbit {
				return Eligibility{
					Type:   CoordinatorOnly,
					Reason: "record pending validation; only the ambit coordinator may receive it",
				}, nil
			}
		}
	}

	return Eligibility{Type: ConfigGroups}, nil
}

// Candidates computes the legal reassignment targets for the acting group, in
// stable id order. Repeated calls with unchanged data return identical
// sequences.
func (r *Resolver) Candidates(ctx context.Context, rec *domain.Record, acting *domain.Group) ([]*domain.Group, Eligibility, error) {
	elig, err := r.SelectType(ctx, rec, acting)
	if err != nil {
		return nil, Eligibility{}, err
	}

	switch elig.Type {
	case NoReassign:
		return nil, elig, nil

	case CoordinatorOnly:
		coord, err := r.tree.CoordinatorOf(ctx, acting)
		if err != nil {
			return nil, Eligibility{}, err
		}
		if coord == nil || coord.ID == rec.ResponsibleID {
			return nil, elig, nil
		}
		return []*domain.Group{coord}, elig, nil
	}

	ids, err := r.candidateIDs(ctx, rec, acting)
	if err != nil {
		return nil, Eligibility{}, err
	}

	groups, err := r.groups.ByIDs(ctx, ids)
	if err != nil {
		return nil, Eligibility{}, err
	}

	if elig.Type == AmbitGroups {
		view, err := r.tree.AmbitOf(ctx, acting)
		if err != nil {
			return nil, Eligibility{}, err
		}
		restricted := groups[:0]
		for _, g := range groups {
			if hierarchy.Contains(view, g.ID) {
				restricted = append(restricted, g)
			}
		}
		groups = restricted
	}

	sort.Slice(groups, func(i, j int) bool { return groups[i].ID < groups[j].ID })
	return groups, elig, nil
}

// candidateIDs is the unrestricted candidate set: the group's explicit
// outgoing edges plus the groups that manually reassigned the record to it.
// Automatic derivations (initial assignment, group deletion, derivate
// resignation) are never offered back as return targets. The record's current
// responsible is always excluded: a group cannot reassign to itself.
func (r *Resolver) candidateIDs(ctx context.Context, rec *domain.Record, acting *domain.Group) ([]domain.GroupID, error) {
	seen := make(map[domain.GroupID]bool)
	var ids []domain.GroupID
	add := func(id domain.GroupID) {
		if id == rec.ResponsibleID || seen[id] {
			return
		}
		seen[id] = true
		ids = append(ids, id)
	}

	for _, target := range acting.ReassignTargets {
		add(target)
	}

	trail, err := r.events.ByRecord(ctx, rec.ID)
	if err != nil {
		return nil, fmt.Errorf("reassignment trail for %s: %w", rec.ID, err)
	}
	for _, ev := range trail {
		if ev.Reason.Automatic() {
			continue
		}
		if ev.NextGroup == acting.ID {
			add(ev.PreviousGroup)
		}
	}

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// ReassignAction packages the full evaluation: can_perform is true iff the
// post-restriction candidate set is non-empty; the reason is populated
// whenever the eligibility gate narrowed or blocked the set.
func (r *Resolver) ReassignAction(ctx context.Context, rec *domain.Record, acting *domain.Group) (Action, error) {
	candidates, elig, err := r.Candidates(ctx, rec, acting)
	if err != nil {
		return Action{}, err
	}
	action := Action{CanPerform: len(candidates) > 0, Reason: elig.Reason}
	if !action.CanPerform && action.Reason == "" {
		action.Reason = "no reassignment targets configured for this group"
	}
	r.logger.DebugContext(ctx, "reassign action evaluated",
		"record_id", rec.ID,
		"group_id", acting.ID,
		"eligibility", string(elig.Type),
		"candidates", len(candidates),
	)
	return action, nil
}

// IsLegalTarget reports whether target is in the acting group's current
// candidate set. The record service consults this before performing a move.
func (r *Resolver) IsLegalTarget(ctx context.Context, rec *domain.Record, acting *domain.Group, target domain.GroupID) (bool, Eligibility, error) {
	candidates, elig, err := r.Candidates(ctx, rec, acting)
	if err != nil {
		return false, Eligibility{}, err
	}
	for _, g := range candidates {
		if g.ID == target {
			return true, elig, nil
		}
	}
	return false, elig, nil
}
