package handler_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/suite"

	"tramita/internal/catalog"
	"tramita/internal/conversation"
	"tramita/internal/conversation/handler"
	convstore "tramita/internal/conversation/store"
	"tramita/internal/domain"
	"tramita/internal/platform/metrics"
	"tramita/internal/platform/middleware"
	recordstore "tramita/internal/record/store"
	"tramita/internal/token"
	"tramita/pkg/testutil"
	"tramita/pkg/tx"
)

type tokenValidator struct {
	svc *token.Service
}

func (v tokenValidator) ValidateToken(raw string) (*middleware.JWTClaims, error) {
	claims, err := v.svc.ValidateToken(raw)
	if err != nil {
		return nil, err
	}
	return &middleware.JWTClaims{UserID: claims.UserID, GroupID: claims.Group()}, nil
}

type HandlerSuite struct {
	suite.Suite

	records  *recordstore.InMemory
	convs    *convstore.InMemory
	unread   *convstore.InMemoryUnread
	router   chi.Router
	tokens   *token.Service
	recordID uuid.UUID
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	s.records = recordstore.NewInMemory()
	s.convs = convstore.NewInMemory()
	s.unread = convstore.NewInMemoryUnread()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := metrics.NewWith(prometheus.NewRegistry())
	channels := &catalog.StaticChannels{Channels: map[uuid.UUID]catalog.ResponseChannel{}}

	engine := conversation.NewEngine(s.convs, s.unread, s.records, channels, tx.Noop{},
		conversation.WithLogger(logger),
		conversation.WithMetrics(m),
	)
	s.tokens = token.NewService("handler-test-key", "tramita", "tramita-api")

	s.recordID = uuid.New()
	err := s.records.Create(context.Background(), &domain.Record{
		ID:            s.recordID,
		ProcessType:   domain.ProcessResolutionResponse,
		State:         domain.StateInResolution,
		ThemeID:       "lighting",
		ResponsibleID: 4,
		CreationGroup: 4,
		CreatedAt:     time.Now(),
	})
	s.Require().NoError(err)

	h := handler.New(engine, s.convs, s.unread, logger, m, tokenValidator{svc: s.tokens})
	s.router = chi.NewRouter()
	h.Register(s.router)
}

func (s *HandlerSuite) bearer(userID string, group domain.GroupID) string {
	raw, err := s.tokens.GenerateAccessToken(userID, group, time.Hour)
	s.Require().NoError(err)
	return "Bearer " + raw
}

func (s *HandlerSuite) openConversation(group domain.GroupID, participants []int64) string {
	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/conversations", map[string]any{
		"record_id":      s.recordID.String(),
		"type":           "internal",
		"require_answer": true,
		"participants":   participants,
	})
	req.Header.Set("Authorization", s.bearer("clerk", group))
	rr := testutil.DoRequest(s.router, req)
	testutil.AssertStatus(s.T(), rr, http.StatusCreated)

	created := testutil.UnmarshalResponse[map[string]string](s.T(), rr)
	id := (*created)["id"]
	s.Require().NotEmpty(id)
	return id
}

func (s *HandlerSuite) postMessage(convID string, group domain.GroupID, body map[string]any) {
	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/conversations/"+convID+"/messages", body)
	req.Header.Set("Authorization", s.bearer("clerk", group))
	rr := testutil.DoRequest(s.router, req)
	testutil.AssertStatus(s.T(), rr, http.StatusCreated)
}

func (s *HandlerSuite) listForRecord(group domain.GroupID) []any {
	req := testutil.NewRequest(s.T(), http.MethodGet, "/records/"+s.recordID.String()+"/conversations")
	req.Header.Set("Authorization", s.bearer("clerk", group))
	rr := testutil.DoRequest(s.router, req)
	testutil.AssertStatus(s.T(), rr, http.StatusOK)

	body := testutil.UnmarshalResponse[map[string]any](s.T(), rr)
	convs, _ := (*body)["conversations"].([]any)
	return convs
}

func (s *HandlerSuite) TestOpenRequiresAuth() {
	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/conversations", map[string]any{})
	rr := testutil.DoRequest(s.router, req)
	testutil.AssertStatusAndError(s.T(), rr, http.StatusUnauthorized, "unauthorized")
}

func (s *HandlerSuite) TestOpenRejectsBadRecordID() {
	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/conversations", map[string]any{
		"record_id": "not-a-uuid",
		"type":      "internal",
	})
	req.Header.Set("Authorization", s.bearer("clerk", 4))
	rr := testutil.DoRequest(s.router, req)
	testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "bad_request")
}

func (s *HandlerSuite) TestOpenAndListByRecord() {
	id := s.openConversation(4, []int64{4, 5})

	convs := s.listForRecord(4)
	s.Require().Len(convs, 1)
	entry := convs[0].(map[string]any)
	s.Equal(id, entry["id"])
	s.Equal("internal", entry["type"])
	s.Equal(false, entry["closed"])
	s.Equal(float64(0), entry["unread"])
}

func (s *HandlerSuite) TestAddMessageIncrementsOtherParticipants() {
	id := s.openConversation(4, []int64{4, 5})
	s.postMessage(id, 4, map[string]any{"text": "status update"})

	other := s.listForRecord(5)
	s.Require().Len(other, 1)
	s.Equal(float64(1), other[0].(map[string]any)["unread"])

	author := s.listForRecord(4)
	s.Require().Len(author, 1)
	s.Equal(float64(0), author[0].(map[string]any)["unread"])
}

func (s *HandlerSuite) TestAddMessageRaisesAlarmOnResponsible() {
	id := s.openConversation(5, []int64{4, 5})
	s.postMessage(id, 5, map[string]any{"text": "need your input"})

	rec, err := s.records.Get(context.Background(), s.recordID)
	s.Require().NoError(err)
	s.True(rec.Alarms.Alarm)
	s.True(rec.Alarms.ResponseToResponsible)
}

func (s *HandlerSuite) TestAddMessageRejectsEmptyText() {
	id := s.openConversation(4, []int64{4, 5})

	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/conversations/"+id+"/messages", map[string]any{
		"text": "",
	})
	req.Header.Set("Authorization", s.bearer("clerk", 4))
	rr := testutil.DoRequest(s.router, req)
	testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "bad_request")
}

func (s *HandlerSuite) TestAddMessageUnknownConversation() {
	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/conversations/"+uuid.NewString()+"/messages", map[string]any{
		"text": "hello",
	})
	req.Header.Set("Authorization", s.bearer("clerk", 4))
	rr := testutil.DoRequest(s.router, req)
	testutil.AssertStatusAndError(s.T(), rr, http.StatusNotFound, "not_found")
}

func (s *HandlerSuite) TestMessagesListing() {
	id := s.openConversation(4, []int64{4, 5})
	s.postMessage(id, 5, map[string]any{"text": "first"})

	req := testutil.NewRequest(s.T(), http.MethodGet, "/conversations/"+id+"/messages")
	req.Header.Set("Authorization", s.bearer("clerk", 4))
	rr := testutil.DoRequest(s.router, req)
	testutil.AssertStatus(s.T(), rr, http.StatusOK)

	body := testutil.UnmarshalResponse[map[string]any](s.T(), rr)
	msgs, _ := (*body)["messages"].([]any)
	s.Require().Len(msgs, 1)
	entry := msgs[0].(map[string]any)
	s.Equal("first", entry["text"])
	s.Equal("in_resolution", entry["record_state"])
	s.Equal(float64(5), entry["author_group"])
}

func (s *HandlerSuite) TestMarkReadClearsUnread() {
	id := s.openConversation(5, []int64{4, 5})
	s.postMessage(id, 5, map[string]any{"text": "over to you"})

	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/conversations/"+id+"/read", map[string]any{})
	req.Header.Set("Authorization", s.bearer("clerk", 4))
	rr := testutil.DoRequest(s.router, req)
	testutil.AssertStatus(s.T(), rr, http.StatusNoContent)

	convs := s.listForRecord(4)
	s.Require().Len(convs, 1)
	s.Equal(float64(0), convs[0].(map[string]any)["unread"])
}
