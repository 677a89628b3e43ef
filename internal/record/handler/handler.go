// Package handler is the HTTP surface for records: intake, action listing,
// transitions, reassignment, and claims. It stays thin; every decision lives
// in the authorize evaluator, the lifecycle machine, or the record service.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"tramita/internal/authorize"
	"tramita/internal/domain"
	"tramita/internal/lifecycle"
	"tramita/internal/platform/metrics"
	"tramita/internal/platform/middleware"
	"tramita/internal/reassign"
	"tramita/internal/record"
	"tramita/internal/transport/http/shared"
	dErrors "tramita/pkg/domain-errors"
	"tramita/pkg/sentinel"
)

// Service is the record operations interface the handler delegates to.
type Service interface {
	Intake(ctx context.Context, r *domain.Record, attrs map[string]string) (*domain.Record, error)
	PerformTransition(ctx context.Context, recordID uuid.UUID, action string, acting domain.GroupID) (*domain.Record, error)
	Reassign(ctx context.Context, recordID uuid.UUID, acting, target domain.GroupID) (*domain.Record, error)
	Claim(ctx context.Context, recordID uuid.UUID, acting domain.GroupID) (*domain.Record, error)
}

// GroupReader resolves acting groups for the reassignment endpoints.
type GroupReader interface {
	Get(ctx context.Context, id domain.GroupID) (*domain.Group, error)
}

// Handler handles record endpoints.
type Handler struct {
	logger       *slog.Logger
	service      Service
	records      record.Store
	groups       GroupReader
	machine      *lifecycle.Machine
	resolver     *reassign.Resolver
	events       reassign.EventStore
	evaluator    *authorize.Evaluator
	metrics      *metrics.Metrics
	jwtValidator middleware.JWTValidator
}

func New(
	service Service,
	records record.Store,
	groups GroupReader,
	machine *lifecycle.Machine,
	resolver *reassign.Resolver,
	events reassign.EventStore,
	evaluator *authorize.Evaluator,
	logger *slog.Logger,
	m *metrics.Metrics,
	jwtValidator middleware.JWTValidator,
) *Handler {
	return &Handler{
		logger:       logger,
		service:      service,
		records:      records,
		groups:       groups,
		machine:      machine,
		resolver:     resolver,
		events:       events,
		evaluator:    evaluator,
		metrics:      m,
		jwtValidator: jwtValidator,
	}
}

// Register registers the record routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	recordRouter := chi.NewRouter()
	recordRouter.Use(middleware.Recovery(h.logger))
	recordRouter.Use(middleware.RequestID)
	recordRouter.Use(middleware.Logger(h.logger))
	recordRouter.Use(middleware.Timeout(30 * time.Second))
	recordRouter.Use(middleware.ContentTypeJSON)
	recordRouter.Use(middleware.LatencyMiddleware(h.metrics))
	recordRouter.Use(middleware.RequireAuth(h.jwtValidator, h.logger))

	recordRouter.Post("/records", h.handleIntake)
	recordRouter.Get("/records/{id}", h.handleGet)
	recordRouter.Get("/records/{id}/actions", h.handleActions)
	recordRouter.Post("/records/{id}/transitions", h.handlePerformTransition)
	recordRouter.Get("/records/{id}/reassignment/candidates", h.handleCandidates)
	recordRouter.Post("/records/{id}/reassignment", h.handleReassign)
	recordRouter.Get("/records/{id}/reassignment/trail", h.handleTrail)
	recordRouter.Post("/records/{id}/claims", h.handleClaim)

	r.Mount("/", recordRouter)
}

type intakeRequest struct {
	ProcessType  string            `json:"process_type"`
	ThemeID      string            `json:"theme_id"`
	Responsible  int64             `json:"responsible_group"`
	Mayorship    bool              `json:"mayorship"`
	Attributes   map[string]string `json:"attributes"`
	NoReassign   bool              `json:"reassignment_not_allowed"`
	CitizenAlarm bool              `json:"citizen_alarm"`
}

type recordResponse struct {
	ID           string  `json:"id"`
	ProcessType  string  `json:"process_type"`
	State        string  `json:"state"`
	ThemeID      string  `json:"theme_id"`
	Responsible  int64   `json:"responsible_group"`
	ClaimsNumber int     `json:"claims_number"`
	Alarm        bool    `json:"alarm"`
	ClosedAt     *string `json:"closed_at,omitempty"`
}

func toRecordResponse(rec *domain.Record) recordResponse {
	resp := recordResponse{
		ID:           rec.ID.String(),
		ProcessType:  string(rec.ProcessType),
		State:        string(rec.State),
		ThemeID:      rec.ThemeID,
		Responsible:  int64(rec.ResponsibleID),
		ClaimsNumber: rec.ClaimsNumber,
		Alarm:        rec.Alarms.Alarm,
	}
	if rec.ClosedAt != nil {
		t := rec.ClosedAt.UTC().Format(time.RFC3339)
		resp.ClosedAt = &t
	}
	return resp
}

func (h *Handler) handleIntake(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	acting := middleware.GetActingGroup(ctx)

	var req intakeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	rec := &domain.Record{
		ProcessType:            domain.ProcessType(req.ProcessType),
		ThemeID:                req.ThemeID,
		ResponsibleID:          domain.GroupID(req.Responsible),
		CreationGroup:          acting,
		Mayorship:              req.Mayorship,
		ReassignmentNotAllowed: req.NoReassign,
	}
	rec.Alarms.CitizenAlarm = req.CitizenAlarm

	created, err := h.service.Intake(ctx, rec, req.Attributes)
	if err != nil {
		h.writeServiceError(ctx, w, "intake failed", err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, toRecordResponse(created))
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := h.recordID(w, r)
	if !ok {
		return
	}
	rec, err := h.records.Get(ctx, id)
	if err != nil {
		h.writeServiceError(ctx, w, "record lookup failed", err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toRecordResponse(rec))
}

// handleActions returns the action menu: the lifecycle transitions legal from
// the current step, every record action with its decision and deny reason,
// and the reassignment availability with its reason.
func (h *Handler) handleActions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := h.recordID(w, r)
	if !ok {
		return
	}
	rec, err := h.records.Get(ctx, id)
	if err != nil {
		h.writeServiceError(ctx, w, "record lookup failed", err)
		return
	}

	transitions, err := h.machine.Transitions(rec)
	if err != nil {
		h.writeServiceError(ctx, w, "transition listing failed", err)
		return
	}
	transitionNames := make([]string, 0, len(transitions))
	for name := range transitions {
		transitionNames = append(transitionNames, name)
	}

	actor := authorize.Actor{
		UserID:  middleware.GetUserID(ctx),
		GroupID: middleware.GetActingGroup(ctx),
	}
	available, err := h.evaluator.Available(ctx, actor, rec)
	if err != nil {
		h.writeServiceError(ctx, w, "action evaluation failed", err)
		return
	}
	actions := make(map[string]map[string]any, len(available))
	for action, d := range available {
		actions[string(action)] = map[string]any{
			"can_perform": d.Allowed,
			"reason":      d.Reason,
		}
	}

	acting, err := h.groups.Get(ctx, actor.GroupID)
	if err != nil {
		h.writeServiceError(ctx, w, "acting group lookup failed", err)
		return
	}
	reassignAction, err := h.resolver.ReassignAction(ctx, rec, acting)
	if err != nil {
		h.writeServiceError(ctx, w, "reassignment evaluation failed", err)
		return
	}

	shared.WriteJSON(w, http.StatusOK, map[string]any{
		"transitions": transitionNames,
		"actions":     actions,
		"reassignment": map[string]any{
			"can_perform": reassignAction.CanPerform,
			"reason":      reassignAction.Reason,
		},
	})
}

type transitionRequest struct {
	Action string `json:"action"`
}

func (h *Handler) handlePerformTransition(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := h.recordID(w, r)
	if !ok {
		return
	}
	var req transitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Action == "" {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	acting := middleware.GetActingGroup(ctx)
	rec, err := h.service.PerformTransition(ctx, id, req.Action, acting)
	if err != nil {
		h.writeServiceError(ctx, w, "transition failed", err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toRecordResponse(rec))
}

func (h *Handler) handleCandidates(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := h.recordID(w, r)
	if !ok {
		return
	}
	rec, err := h.records.Get(ctx, id)
	if err != nil {
		h.writeServiceError(ctx, w, "record lookup failed", err)
		return
	}
	acting, err := h.groups.Get(ctx, middleware.GetActingGroup(ctx))
	if err != nil {
		h.writeServiceError(ctx, w, "acting group lookup failed", err)
		return
	}

	candidates, elig, err := h.resolver.Candidates(ctx, rec, acting)
	if err != nil {
		h.writeServiceError(ctx, w, "candidate resolution failed", err)
		return
	}
	out := make([]map[string]any, 0, len(candidates))
	for _, g := range candidates {
		out = append(out, map[string]any{"id": int64(g.ID), "name": g.Name})
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{
		"eligibility": string(elig.Type),
		"candidates":  out,
	})
}

type reassignRequest struct {
	TargetGroup int64 `json:"target_group"`
}

func (h *Handler) handleReassign(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := h.recordID(w, r)
	if !ok {
		return
	}
	var req reassignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.TargetGroup == 0 {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	actor := authorize.Actor{
		UserID:  middleware.GetUserID(ctx),
		GroupID: middleware.GetActingGroup(ctx),
	}
	if ok := h.authorized(ctx, w, actor, authorize.ActionReassign, id); !ok {
		return
	}

	rec, err := h.service.Reassign(ctx, id, actor.GroupID, domain.GroupID(req.TargetGroup))
	if err != nil {
		h.writeServiceError(ctx, w, "reassignment failed", err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toRecordResponse(rec))
}

func (h *Handler) handleTrail(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := h.recordID(w, r)
	if !ok {
		return
	}
	events, err := h.events.ByRecord(ctx, id)
	if err != nil {
		h.writeServiceError(ctx, w, "trail lookup failed", err)
		return
	}
	out := make([]map[string]any, 0, len(events))
	for _, ev := range events {
		out = append(out, map[string]any{
			"acting_group":   int64(ev.ActingGroup),
			"previous_group": int64(ev.PreviousGroup),
			"next_group":     int64(ev.NextGroup),
			"reason":         string(ev.Reason),
			"created_at":     ev.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{"events": out})
}

func (h *Handler) handleClaim(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := h.recordID(w, r)
	if !ok {
		return
	}
	actor := authorize.Actor{
		UserID:  middleware.GetUserID(ctx),
		GroupID: middleware.GetActingGroup(ctx),
	}
	if ok := h.authorized(ctx, w, actor, authorize.ActionClaim, id); !ok {
		return
	}

	rec, err := h.service.Claim(ctx, id, actor.GroupID)
	if err != nil {
		h.writeServiceError(ctx, w, "claim failed", err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toRecordResponse(rec))
}

func (h *Handler) recordID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid record id"))
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) authorized(ctx context.Context, w http.ResponseWriter, actor authorize.Actor, action authorize.Action, recordID uuid.UUID) bool {
	rec, err := h.records.Get(ctx, recordID)
	if err != nil {
		h.writeServiceError(ctx, w, "record lookup failed", err)
		return false
	}
	decision, err := h.evaluator.Evaluate(ctx, actor, action, rec)
	if err != nil {
		h.writeServiceError(ctx, w, "authorization failed", err)
		return false
	}
	if !decision.Allowed {
		shared.WriteError(w, dErrors.New(dErrors.CodeForbidden, decision.Reason))
		return false
	}
	return true
}

func (h *Handler) writeServiceError(ctx context.Context, w http.ResponseWriter, msg string, err error) {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		err = dErrors.Wrap(dErrors.CodeNotFound, "record not found", err)
	case errors.Is(err, sentinel.ErrConflict):
		err = dErrors.Wrap(dErrors.CodeConflict, "conflicting update", err)
	}
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, msg,
			"request_id", middleware.GetRequestID(ctx),
			"error", err.Error(),
		)
		shared.WriteError(w, dErrors.New(dErrors.CodeInternal, msg))
		return
	}
	h.logger.WarnContext(ctx, msg,
		"request_id", middleware.GetRequestID(ctx),
		"error", err.Error(),
	)
	shared.WriteError(w, err)
}
