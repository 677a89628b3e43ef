// Package authorize decides whether an actor may perform a record action.
// Every decision passes four gates in order: the record's lifecycle position
// allows the action, the actor's group holds tramit authority, the actor
// carries the mapped permission, and the action-specific precondition holds.
// Denials always name the failed gate.
package authorize

import (
	"context"
	"fmt"
	"log/slog"

	"tramita/internal/domain"
	"tramita/internal/hierarchy"
	"tramita/internal/lifecycle"
	"tramita/internal/platform/metrics"
	domainerrors "tramita/pkg/domain-errors"
)

const (
	gateState      = "state"
	gateAuthority  = "authority"
	gatePermission = "permission"
	gatePrecond    = "precondition"
)

// Actor is the authenticated principal evaluating an action.
type Actor struct {
	UserID  string
	GroupID domain.GroupID
}

// Decision is the evaluation outcome. Reason is set only on deny.
type Decision struct {
	Allowed bool
	Reason  string
}

func allow() Decision { return Decision{Allowed: true} }

func deny(reason string) Decision { return Decision{Reason: reason} }

// Evaluator runs the decision gates.
type Evaluator struct {
	perms   PermissionLookup
	groups  GroupReader
	machine *lifecycle.Machine
	metrics *metrics.Metrics
	logger  *slog.Logger
}

type Option func(*Evaluator)

func WithLogger(logger *slog.Logger) Option {
	return func(e *Evaluator) { e.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Evaluator) { e.metrics = m }
}

func NewEvaluator(perms PermissionLookup, groups GroupReader, machine *lifecycle.Machine, opts ...Option) *Evaluator {
	e := &Evaluator{
		perms:   perms,
		groups:  groups,
		machine: machine,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate decides action for actor on rec. A deny is a normal result, not an
// error; errors are reserved for unknown actions and infrastructure failures.
func (e *Evaluator) Evaluate(ctx context.Context, actor Actor, action Action, rec *domain.Record) (Decision, error) {
	permission, ok := permissionFor[action]
	if !ok {
		return Decision{}, domainerrors.New(domainerrors.CodeBadRequest,
			fmt.Sprintf("unknown action %s", action))
	}

	d, err := e.stateGate(action, rec)
	if err != nil {
		return Decision{}, err
	}
	if !d.Allowed {
		return e.denied(ctx, actor, action, gateState, d), nil
	}

	if needsTramitAuthority(action) {
		override := false
		if rec.Mayorship {
			// Mayorship records demand the elevated permission from everyone,
			// the responsible group included. Holding it doubles as the
			// authority override.
			override, err = e.perms.HasPermission(ctx, actor.UserID, PermissionMayorship)
			if err != nil {
				return Decision{}, fmt.Errorf("permission lookup for %s: %w", actor.UserID, err)
			}
			if !override {
				return e.denied(ctx, actor, action, gatePermission,
					deny(fmt.Sprintf("mayorship record requires permission %s", PermissionMayorship))), nil
			}
		}
		if !override {
			ok, err := e.hasTramitAuthority(ctx, actor, rec)
			if err != nil {
				return Decision{}, err
			}
			if !ok {
				return e.denied(ctx, actor, action, gateAuthority,
					deny(fmt.Sprintf("group %d has no tramit authority over this record", actor.GroupID))), nil
			}
		}
	}

	has, err := e.perms.HasPermission(ctx, actor.UserID, permission)
	if err != nil {
		return Decision{}, fmt.Errorf("permission lookup for %s: %w", actor.UserID, err)
	}
	if !has {
		return e.denied(ctx, actor, action, gatePermission,
			deny(fmt.Sprintf("missing permission %s", permission))), nil
	}

	if d := e.preconditionGate(action, rec); !d.Allowed {
		return e.denied(ctx, actor, action, gatePrecond, d), nil
	}
	return allow(), nil
}

// Available evaluates every action in the table against rec and returns each
// action's decision. Denied actions stay in the map with their reason so the
// menu can show why, never silently dropped.
func (e *Evaluator) Available(ctx context.Context, actor Actor, rec *domain.Record) (map[Action]Decision, error) {
	out := make(map[Action]Decision, len(permissionFor))
	for action := range permissionFor {
		d, err := e.Evaluate(ctx, actor, action, rec)
		if err != nil {
			return nil, err
		}
		out[action] = d
	}
	return out, nil
}

// stateGate rejects actions the record's lifecycle position rules out.
// Transition-named actions defer to the state machine: an action whose
// transition is not offered from the current step is illegal no matter what
// the later gates would say. A record whose theme was invalidated keeps
// theme-change open everywhere except cancelled, so the staff can repair it
// before anything else moves.
func (e *Evaluator) stateGate(action Action, rec *domain.Record) (Decision, error) {
	if action == ActionThemeChange && rec.ThemeInvalidated && rec.State != domain.StateCancelled {
		return allow(), nil
	}
	if rec.State.Terminal() && !closedAllowed(action, rec.State) {
		return deny(fmt.Sprintf("action %s is not available on a %s record", action, rec.State)), nil
	}
	switch action {
	case ActionClaim:
		if rec.State != domain.StateClosed {
			return deny(fmt.Sprintf("only closed records can be claimed, record is %s", rec.State)), nil
		}
	case ActionValidate:
		if rec.State != domain.StatePendingValidate {
			return deny(fmt.Sprintf("validate only applies in %s", domain.StatePendingValidate)), nil
		}
	case ActionCancel:
		transitions, err := e.machine.Transitions(rec)
		if err != nil {
			return Decision{}, err
		}
		if _, ok := transitions[lifecycle.TransitionCancel]; !ok {
			return deny(fmt.Sprintf("no cancel transition from %s", rec.State)), nil
		}
	case ActionAnswer:
		if rec.State != domain.StatePendingAnswer {
			return deny(fmt.Sprintf("answer only applies in %s", domain.StatePendingAnswer)), nil
		}
	}
	return allow(), nil
}

// needsTramitAuthority reports whether the action requires the actor's group
// to sit over the record. Claim is applicant-initiated and exempt.
func needsTramitAuthority(action Action) bool {
	return action != ActionClaim
}

// hasTramitAuthority holds when the actor's group is the responsible group or
// one of its ancestors.
func (e *Evaluator) hasTramitAuthority(ctx context.Context, actor Actor, rec *domain.Record) (bool, error) {
	if actor.GroupID == rec.ResponsibleID {
		return true, nil
	}
	acting, err := e.groups.Get(ctx, actor.GroupID)
	if err != nil {
		return false, err
	}
	responsible, err := e.groups.Get(ctx, rec.ResponsibleID)
	if err != nil {
		return false, err
	}
	return hierarchy.IsDescendant(responsible, acting), nil
}

func (e *Evaluator) preconditionGate(action Action, rec *domain.Record) Decision {
	switch action {
	case ActionClaim:
		if rec.ApplicantBlocked {
			return deny("applicant is blocked from claiming")
		}
	case ActionReassign:
		if rec.ReassignmentNotAllowed && rec.ClaimsNumber == 0 {
			return deny("reassignment is locked for this record")
		}
	}
	return allow()
}

func (e *Evaluator) denied(ctx context.Context, actor Actor, action Action, gate string, d Decision) Decision {
	if e.metrics != nil {
		e.metrics.ActionsDenied.WithLabelValues(gate).Inc()
	}
	e.logger.DebugContext(ctx, "action denied",
		"user_id", actor.UserID, "group_id", actor.GroupID,
		"action", string(action), "gate", gate, "reason", d.Reason)
	return d
}
