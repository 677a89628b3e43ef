// Package handler is the HTTP surface for conversation threads and unread
// tracking.
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

	"tramita/internal/conversation"
	"tramita/internal/domain"
	"tramita/internal/platform/metrics"
	"tramita/internal/platform/middleware"
	"tramita/internal/transport/http/shared"
	dErrors "tramita/pkg/domain-errors"
	"tramita/pkg/sentinel"
)

// Engine is the conversation operations interface the handler delegates to.
type Engine interface {
	Open(ctx context.Context, c *domain.Conversation) error
	AddMessage(ctx context.Context, conversationID uuid.UUID, authorGroup *domain.GroupID, text string) (*domain.Message, error)
	MarkRead(ctx context.Context, conversationID uuid.UUID, group domain.GroupID) error
}

// Handler handles conversation endpoints.
type Handler struct {
	logger       *slog.Logger
	engine       Engine
	convs        conversation.Store
	unread       conversation.UnreadStore
	metrics      *metrics.Metrics
	jwtValidator middleware.JWTValidator
}

func New(
	engine Engine,
	convs conversation.Store,
	unread conversation.UnreadStore,
	logger *slog.Logger,
	m *metrics.Metrics,
	jwtValidator middleware.JWTValidator,
) *Handler {
	return &Handler{
		logger:       logger,
		engine:       engine,
		convs:        convs,
		unread:       unread,
		metrics:      m,
		jwtValidator: jwtValidator,
	}
}

// Register registers the conversation routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	convRouter := chi.NewRouter()
	convRouter.Use(middleware.Recovery(h.logger))
	convRouter.Use(middleware.RequestID)
	convRouter.Use(middleware.Logger(h.logger))
	convRouter.Use(middleware.Timeout(30 * time.Second))
	convRouter.Use(middleware.ContentTypeJSON)
	convRouter.Use(middleware.LatencyMiddleware(h.metrics))
	convRouter.Use(middleware.RequireAuth(h.jwtValidator, h.logger))

	convRouter.Post("/conversations", h.handleOpen)
	convRouter.Get("/records/{id}/conversations", h.handleByRecord)
	convRouter.Get("/conversations/{id}/messages", h.handleMessages)
	convRouter.Post("/conversations/{id}/messages", h.handleAddMessage)
	convRouter.Post("/conversations/{id}/read", h.handleMarkRead)

	r.Mount("/", convRouter)
}

type openRequest struct {
	RecordID      string  `json:"record_id"`
	Type          string  `json:"type"`
	RequireAnswer bool    `json:"require_answer"`
	Participants  []int64 `json:"participants"`
}

func (h *Handler) handleOpen(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	acting := middleware.GetActingGroup(ctx)

	var req openRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	recordID, err := uuid.Parse(req.RecordID)
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid record id"))
		return
	}

	conv := &domain.Conversation{
		RecordID:      recordID,
		Type:          domain.ConversationType(req.Type),
		CreationGroup: acting,
		RequireAnswer: req.RequireAnswer,
	}
	for _, p := range req.Participants {
		conv.Participants = append(conv.Participants, domain.GroupID(p))
	}

	if err := h.engine.Open(ctx, conv); err != nil {
		h.writeServiceError(ctx, w, "conversation open failed", err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, map[string]string{"id": conv.ID.String()})
}

func (h *Handler) handleByRecord(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	recordID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid record id"))
		return
	}
	convs, err := h.convs.ByRecord(ctx, recordID)
	if err != nil {
		h.writeServiceError(ctx, w, "conversation listing failed", err)
		return
	}

	acting := middleware.GetActingGroup(ctx)
	out := make([]map[string]any, 0, len(convs))
	for _, c := range convs {
		unread := 0
		counter, err := h.unread.Get(ctx, c.ID, acting)
		if err != nil {
			h.writeServiceError(ctx, w, "unread lookup failed", err)
			return
		}
		if counter != nil {
			unread = counter.Count
		}
		out = append(out, map[string]any{
			"id":     c.ID.String(),
			"type":   string(c.Type),
			"closed": c.Closed,
			"unread": unread,
		})
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{"conversations": out})
}

func (h *Handler) handleMessages(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := h.conversationID(w, r)
	if !ok {
		return
	}
	msgs, err := h.convs.Messages(ctx, id)
	if err != nil {
		h.writeServiceError(ctx, w, "message listing failed", err)
		return
	}
	out := make([]map[string]any, 0, len(msgs))
	for _, m := range msgs {
		entry := map[string]any{
			"id":           m.ID.String(),
			"text":         m.Text,
			"record_state": string(m.RecordState),
			"created_at":   m.CreatedAt.UTC().Format(time.RFC3339),
		}
		if m.AuthorGroup != nil {
			entry["author_group"] = int64(*m.AuthorGroup)
		}
		out = append(out, entry)
	}
	shared.WriteJSON(w, http.StatusOK, map[string]any{"messages": out})
}

type addMessageRequest struct {
	Text          string `json:"text"`
	FromApplicant bool   `json:"from_applicant"`
}

func (h *Handler) handleAddMessage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := h.conversationID(w, r)
	if !ok {
		return
	}
	var req addMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Text == "" {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	var author *domain.GroupID
	if !req.FromApplicant {
		acting := middleware.GetActingGroup(ctx)
		author = &acting
	}

	msg, err := h.engine.AddMessage(ctx, id, author, req.Text)
	if err != nil {
		h.writeServiceError(ctx, w, "message append failed", err)
		return
	}
	if h.metrics != nil {
		kind := "group"
		if req.FromApplicant {
			kind = "applicant"
		}
		h.metrics.MessagesCreated.WithLabelValues(kind).Inc()
	}
	shared.WriteJSON(w, http.StatusCreated, map[string]string{"id": msg.ID.String()})
}

func (h *Handler) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := h.conversationID(w, r)
	if !ok {
		return
	}
	if err := h.engine.MarkRead(ctx, id, middleware.GetActingGroup(ctx)); err != nil {
		h.writeServiceError(ctx, w, "mark read failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) conversationID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid conversation id"))
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) writeServiceError(ctx context.Context, w http.ResponseWriter, msg string, err error) {
	if errors.Is(err, sentinel.ErrNotFound) {
		err = dErrors.Wrap(dErrors.CodeNotFound, "conversation not found", err)
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
