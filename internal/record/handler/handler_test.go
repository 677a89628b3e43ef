package handler_test

import (
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/suite"

	"tramita/internal/audit"
	auditstore "tramita/internal/audit/store"
	"tramita/internal/authorize"
	authorizestore "tramita/internal/authorize/store"
	"tramita/internal/catalog"
	"tramita/internal/domain"
	"tramita/internal/hierarchy"
	hierarchystore "tramita/internal/hierarchy/store"
	"tramita/internal/lifecycle"
	"tramita/internal/platform/metrics"
	"tramita/internal/platform/middleware"
	"tramita/internal/reassign"
	reassignstore "tramita/internal/reassign/store"
	"tramita/internal/record"
	"tramita/internal/record/handler"
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

	records *recordstore.InMemory
	groups  *hierarchystore.InMemory
	events  *reassignstore.InMemory
	perms   *authorizestore.InMemory
	service *record.Service
	router  chi.Router
	tokens  *token.Service
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	s.records = recordstore.NewInMemory()
	s.groups = hierarchystore.NewInMemory()
	s.events = reassignstore.NewInMemory()
	s.perms = authorizestore.NewInMemory()

	root := domain.GroupID(1)
	s.groups.Put(&domain.Group{ID: 1, Plate: "1/"})
	s.groups.Put(&domain.Group{ID: 2, ParentID: &root, Plate: "1/2/", IsAmbit: true})
	parent := domain.GroupID(2)
	s.groups.Put(&domain.Group{ID: 4, ParentID: &parent, Plate: "1/2/4/", ReassignTargets: []domain.GroupID{5}})
	s.groups.Put(&domain.Group{ID: 5, ParentID: &parent, Plate: "1/2/5/"})

	cat := catalog.Default()
	tree := hierarchy.NewService(s.groups)
	themes := &catalog.StaticThemes{DefaultDays: 30, Reassignable: map[string]bool{"lighting": true}}
	resolver := reassign.NewResolver(tree, s.groups, s.events, themes)
	machine := lifecycle.NewMachine(cat)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := metrics.NewWith(prometheus.NewRegistry())
	sink := auditstore.NewInMemory()
	channels := &catalog.StaticChannels{Channels: map[uuid.UUID]catalog.ResponseChannel{}}

	s.service = record.NewService(
		s.records, s.groups, machine, resolver, s.events, channels, cat, tx.Noop{},
		record.WithLogger(logger),
		record.WithAuditSink(audit.NewPublisher(sink)),
	)
	evaluator := authorize.NewEvaluator(s.perms, s.groups, machine, authorize.WithLogger(logger))
	s.tokens = token.NewService("handler-test-key", "tramita", "tramita-api")

	h := handler.New(
		s.service, s.records, s.groups, machine, resolver, s.events,
		evaluator, logger, m, tokenValidator{svc: s.tokens},
	)
	s.router = chi.NewRouter()
	h.Register(s.router)
}

func (s *HandlerSuite) bearer(userID string, group domain.GroupID) string {
	raw, err := s.tokens.GenerateAccessToken(userID, group, time.Hour)
	s.Require().NoError(err)
	return "Bearer " + raw
}

func (s *HandlerSuite) intakeRecord(group domain.GroupID) string {
	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/records", map[string]any{
		"process_type":      "resolution_response",
		"theme_id":          "lighting",
		"responsible_group": 4,
	})
	req.Header.Set("Authorization", s.bearer("clerk", group))
	rr := testutil.DoRequest(s.router, req)
	testutil.AssertStatus(s.T(), rr, http.StatusCreated)

	created := testutil.UnmarshalResponse[map[string]any](s.T(), rr)
	id, _ := (*created)["id"].(string)
	s.Require().NotEmpty(id)
	return id
}

func (s *HandlerSuite) TestRequiresAuthentication() {
	req := testutil.NewRequest(s.T(), http.MethodGet, "/records/"+uuid.NewString())
	rr := testutil.DoRequest(s.router, req)
	testutil.AssertStatusAndError(s.T(), rr, http.StatusUnauthorized, "unauthorized")
}

func (s *HandlerSuite) TestRejectsGarbageToken() {
	req := testutil.NewRequest(s.T(), http.MethodGet, "/records/"+uuid.NewString())
	req.Header.Set("Authorization", "Bearer not-a-token")
	rr := testutil.DoRequest(s.router, req)
	testutil.AssertStatus(s.T(), rr, http.StatusUnauthorized)
}

func (s *HandlerSuite) TestIntakeAndGet() {
	id := s.intakeRecord(2)

	req := testutil.NewRequest(s.T(), http.MethodGet, "/records/"+id)
	req.Header.Set("Authorization", s.bearer("clerk", 2))
	rr := testutil.DoRequest(s.router, req)
	testutil.AssertStatusOK(s.T(), rr)
	testutil.AssertJSONContains(s.T(), rr, "state", "pending_validate")
	testutil.AssertJSONContains(s.T(), rr, "responsible_group", float64(4))
}

func (s *HandlerSuite) TestIntakeRejectsUnknownProcess() {
	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/records", map[string]any{
		"process_type":      "bogus",
		"responsible_group": 4,
	})
	req.Header.Set("Authorization", s.bearer("clerk", 2))
	rr := testutil.DoRequest(s.router, req)
	testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "bad_request")
}

func (s *HandlerSuite) TestGetUnknownRecordIs404() {
	req := testutil.NewRequest(s.T(), http.MethodGet, "/records/"+uuid.NewString())
	req.Header.Set("Authorization", s.bearer("clerk", 2))
	rr := testutil.DoRequest(s.router, req)
	testutil.AssertStatusAndError(s.T(), rr, http.StatusNotFound, "not_found")
}

func (s *HandlerSuite) TestMalformedRecordIDIs400() {
	req := testutil.NewRequest(s.T(), http.MethodGet, "/records/not-a-uuid")
	req.Header.Set("Authorization", s.bearer("clerk", 2))
	rr := testutil.DoRequest(s.router, req)
	testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "bad_request")
}

func (s *HandlerSuite) TestPerformTransition() {
	id := s.intakeRecord(2)

	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/records/"+id+"/transitions",
		map[string]any{"action": "in_resolution"})
	req.Header.Set("Authorization", s.bearer("clerk", 4))
	rr := testutil.DoRequest(s.router, req)
	testutil.AssertStatusOK(s.T(), rr)
	testutil.AssertJSONContains(s.T(), rr, "state", "in_resolution")
}

func (s *HandlerSuite) TestIllegalTransitionIs422() {
	id := s.intakeRecord(2)

	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/records/"+id+"/transitions",
		map[string]any{"action": "closed"})
	req.Header.Set("Authorization", s.bearer("clerk", 4))
	rr := testutil.DoRequest(s.router, req)
	testutil.AssertStatusAndError(s.T(), rr, http.StatusUnprocessableEntity, "invalid_state")
}

func (s *HandlerSuite) TestActionsMenu() {
	id := s.intakeRecord(2)
	s.perms.Grant("clerk", "record.validate", "record.cancel")

	req := testutil.NewRequest(s.T(), http.MethodGet, "/records/"+id+"/actions")
	req.Header.Set("Authorization", s.bearer("clerk", 4))
	rr := testutil.DoRequest(s.router, req)
	testutil.AssertStatusOK(s.T(), rr)
	testutil.AssertJSONHasKey(s.T(), rr, "transitions")
	testutil.AssertJSONHasKey(s.T(), rr, "reassignment")

	body := testutil.UnmarshalResponse[map[string]any](s.T(), rr)
	actions, _ := (*body)["actions"].(map[string]any)
	s.Require().NotEmpty(actions)

	validate, _ := actions["validate"].(map[string]any)
	s.Equal(true, validate["can_perform"])

	// Ungranted actions stay in the menu, denied with the failed gate.
	reassign, _ := actions["reassign"].(map[string]any)
	s.Equal(false, reassign["can_perform"])
	s.Contains(reassign["reason"], "record.reassign")
}

func (s *HandlerSuite) TestReassignRequiresPermission() {
	id := s.intakeRecord(2)

	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/records/"+id+"/reassignment",
		map[string]any{"target_group": 5})
	req.Header.Set("Authorization", s.bearer("clerk", 4))
	rr := testutil.DoRequest(s.router, req)
	testutil.AssertStatusAndError(s.T(), rr, http.StatusForbidden, "forbidden")
}

func (s *HandlerSuite) TestReassignAndTrail() {
	id := s.intakeRecord(2)
	s.perms.Grant("clerk", "record.reassign")

	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/records/"+id+"/reassignment",
		map[string]any{"target_group": 5})
	req.Header.Set("Authorization", s.bearer("clerk", 4))
	rr := testutil.DoRequest(s.router, req)
	testutil.AssertStatusOK(s.T(), rr)
	testutil.AssertJSONContains(s.T(), rr, "responsible_group", float64(5))

	req = testutil.NewRequest(s.T(), http.MethodGet, "/records/"+id+"/reassignment/trail")
	req.Header.Set("Authorization", s.bearer("clerk", 4))
	rr = testutil.DoRequest(s.router, req)
	testutil.AssertStatusOK(s.T(), rr)

	trail := testutil.UnmarshalResponse[map[string][]map[string]any](s.T(), rr)
	events := (*trail)["events"]
	s.Require().Len(events, 2)
	s.Equal("initial_assignment", events[0]["reason"])
	s.Equal("manual", events[1]["reason"])
}

func (s *HandlerSuite) TestCandidates() {
	id := s.intakeRecord(2)

	req := testutil.NewRequest(s.T(), http.MethodGet, "/records/"+id+"/reassignment/candidates")
	req.Header.Set("Authorization", s.bearer("clerk", 2))
	rr := testutil.DoRequest(s.router, req)
	testutil.AssertStatusOK(s.T(), rr)
	testutil.AssertJSONHasKey(s.T(), rr, "eligibility")
	testutil.AssertJSONHasKey(s.T(), rr, "candidates")
}

func (s *HandlerSuite) TestClaimGate() {
	id := s.intakeRecord(2)
	s.perms.Grant("citizen-desk", "record.claim")

	// Claiming an open record fails the state gate before anything else.
	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/records/"+id+"/claims", nil)
	req.Header.Set("Authorization", s.bearer("citizen-desk", 2))
	rr := testutil.DoRequest(s.router, req)
	testutil.AssertStatusAndError(s.T(), rr, http.StatusForbidden, "forbidden")
}
