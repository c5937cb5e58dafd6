package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/moogar0880/problems"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sust-cse/approval-engine/internal/application/port"
	"github.com/sust-cse/approval-engine/internal/application/service"
	"github.com/sust-cse/approval-engine/internal/domain/entity"
	"github.com/sust-cse/approval-engine/internal/domain/workflow"
)

type nopLogger struct{}

func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}

type mockSubmission struct {
	submitApplicationFunc func(ctx context.Context, cmd service.SubmitApplicationCommand) (*entity.Instance, error)
	submitCostFunc        func(ctx context.Context, cmd service.SubmitCostRequestCommand) (*entity.Instance, error)
}

func (m *mockSubmission) SubmitApplication(ctx context.Context, cmd service.SubmitApplicationCommand) (*entity.Instance, error) {
	if m.submitApplicationFunc != nil {
		return m.submitApplicationFunc(ctx, cmd)
	}
	return pendingInstance("app-1"), nil
}

func (m *mockSubmission) SubmitCostRequest(ctx context.Context, cmd service.SubmitCostRequestCommand) (*entity.Instance, error) {
	if m.submitCostFunc != nil {
		return m.submitCostFunc(ctx, cmd)
	}
	return pendingInstance("cost-1"), nil
}

type mockDecision struct {
	decideFunc func(ctx context.Context, cmd service.DecideCommand) (*entity.Instance, error)
}

func (m *mockDecision) Decide(ctx context.Context, cmd service.DecideCommand) (*entity.Instance, error) {
	if m.decideFunc != nil {
		return m.decideFunc(ctx, cmd)
	}
	return pendingInstance(cmd.InstanceID), nil
}

type mockVerification struct {
	lookupFunc func(ctx context.Context, code string) (*entity.VerificationView, error)
}

func (m *mockVerification) MintCode(context.Context, *entity.Instance, time.Time) (string, error) {
	return "", errors.New("not used")
}

func (m *mockVerification) Lookup(ctx context.Context, code string) (*entity.VerificationView, error) {
	if m.lookupFunc != nil {
		return m.lookupFunc(ctx, code)
	}
	return nil, workflow.ErrNotFound
}

type mockChecks struct {
	attachFunc func(ctx context.Context, cmd service.AttachCheckCommand) (*entity.Instance, error)
}

func (m *mockChecks) AttachCheck(ctx context.Context, cmd service.AttachCheckCommand) (*entity.Instance, error) {
	if m.attachFunc != nil {
		return m.attachFunc(ctx, cmd)
	}
	return pendingInstance(cmd.InstanceID), nil
}

type mockQueries struct {
	getFunc      func(ctx context.Context, id string) (*entity.Instance, error)
	listFunc     func(ctx context.Context, filter port.InstanceFilter) ([]*entity.Instance, error)
	awaitingFunc func(ctx context.Context, identityID string, limit, offset int) ([]*entity.Instance, error)
}

func (m *mockQueries) GetInstance(ctx context.Context, id string) (*entity.Instance, error) {
	if m.getFunc != nil {
		return m.getFunc(ctx, id)
	}
	return pendingInstance(id), nil
}

func (m *mockQueries) ListInstances(ctx context.Context, filter port.InstanceFilter) ([]*entity.Instance, error) {
	if m.listFunc != nil {
		return m.listFunc(ctx, filter)
	}
	return []*entity.Instance{}, nil
}

func (m *mockQueries) ListAwaiting(ctx context.Context, identityID string, limit, offset int) ([]*entity.Instance, error) {
	if m.awaitingFunc != nil {
		return m.awaitingFunc(ctx, identityID, limit, offset)
	}
	return []*entity.Instance{}, nil
}

type testServices struct {
	submission   *mockSubmission
	decision     *mockDecision
	verification *mockVerification
	checks       *mockChecks
	queries      *mockQueries
}

func newTestServer(t *testing.T, checks map[string]HealthCheck) (*Server, *testServices) {
	t.Helper()
	mocks := &testServices{
		submission:   &mockSubmission{},
		decision:     &mockDecision{},
		verification: &mockVerification{},
		checks:       &mockChecks{},
		queries:      &mockQueries{},
	}
	server := NewServer(DefaultServerConfig(), Services{
		Submission:   mocks.submission,
		Decision:     mocks.decision,
		Verification: mocks.verification,
		Checks:       mocks.checks,
		Queries:      mocks.queries,
		HealthChecks: checks,
	}, nopLogger{})
	return server, mocks
}

func pendingInstance(id string) *entity.Instance {
	return &entity.Instance{
		ID:                id,
		WorkflowType:      entity.WorkflowTypeApplication,
		Title:             "Request",
		StageChain:        []entity.StageDescriptor{{Key: entity.StageL0}, {Key: entity.StageL2}},
		CurrentStageIndex: 0,
		Status:            "PENDING_L0",
	}
}

func doRequest(server *Server, method, path, identity string, body any) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if identity != "" {
		req.Header.Set(IdentityHeader, identity)
	}
	rec := httptest.NewRecorder()
	server.Router().ServeHTTP(rec, req)
	return rec
}

func decodeProblem(t *testing.T, rec *httptest.ResponseRecorder) problems.Problem {
	t.Helper()
	assert.Equal(t, problems.ProblemMediaType, rec.Header().Get("Content-Type"))
	var problem problems.Problem
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	return problem
}

func TestHealthCheck(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		server, _ := newTestServer(t, map[string]HealthCheck{
			"database": func(context.Context) error { return nil },
		})
		rec := doRequest(server, http.MethodGet, "/health", "", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"database":"ok"`)
	})

	t.Run("dependency down", func(t *testing.T) {
		server, _ := newTestServer(t, map[string]HealthCheck{
			"cache": func(context.Context) error { return errors.New("connection refused") },
		})
		rec := doRequest(server, http.MethodGet, "/health", "", nil)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Contains(t, rec.Body.String(), `"cache":"unhealthy"`)
		assert.NotContains(t, rec.Body.String(), "connection refused")
	})
}

func TestAPI_RequiresIdentity(t *testing.T) {
	server, _ := newTestServer(t, nil)

	rec := doRequest(server, http.MethodGet, "/api/v1/instances", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	problem := decodeProblem(t, rec)
	assert.Equal(t, "unauthenticated", problem.Type)
}

func TestSubmitApplication(t *testing.T) {
	server, mocks := newTestServer(t, nil)

	var got service.SubmitApplicationCommand
	mocks.submission.submitApplicationFunc = func(_ context.Context, cmd service.SubmitApplicationCommand) (*entity.Instance, error) {
		got = cmd
		return pendingInstance("app-9"), nil
	}

	rec := doRequest(server, http.MethodPost, "/api/v1/applications", "s1", map[string]any{
		"title":     "  Weekend access ",
		"kind":      "GENERAL",
		"to_id":     "t2",
		"medium_id": "t1",
		"details":   map[string]string{"body": "please"},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "s1", got.SubmitterID)
	assert.Equal(t, "Weekend access", got.Title)
	assert.Equal(t, entity.ApplicationKindGeneral, got.Kind)
	assert.JSONEq(t, `{"body":"please"}`, string(got.Details))

	var resp struct {
		Success bool `json:"success"`
		Data    struct {
			ID           string `json:"id"`
			CurrentStage string `json:"current_stage"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "app-9", resp.Data.ID)
	assert.Equal(t, entity.StageL0, resp.Data.CurrentStage)
}

func TestSubmitApplication_BindingErrors(t *testing.T) {
	server, _ := newTestServer(t, nil)

	rec := doRequest(server, http.MethodPost, "/api/v1/applications", "s1", map[string]any{
		"title": "   ", "kind": "VACATION",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	problem := decodeProblem(t, rec)
	assert.Equal(t, "validation_error", problem.Type)
	assert.Contains(t, problem.Detail, "Title")
	assert.Contains(t, problem.Detail, "Kind")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/applications", bytes.NewBufferString("{not json"))
	req.Header.Set(IdentityHeader, "s1")
	raw := httptest.NewRecorder()
	server.Router().ServeHTTP(raw, req)
	assert.Equal(t, http.StatusBadRequest, raw.Code)
}

func TestSubmitCostRequest_Validation(t *testing.T) {
	server, _ := newTestServer(t, nil)

	tests := []struct {
		name string
		body map[string]any
		code int
	}{
		{"valid", map[string]any{"title": "Travel", "amount_cents": 1000, "currency": "BDT", "purpose": "conference"}, http.StatusCreated},
		{"lower case currency", map[string]any{"title": "Travel", "amount_cents": 1000, "currency": "bdt", "purpose": "conference"}, http.StatusUnprocessableEntity},
		{"zero amount", map[string]any{"title": "Travel", "amount_cents": 0, "currency": "BDT", "purpose": "conference"}, http.StatusUnprocessableEntity},
		{"missing purpose", map[string]any{"title": "Travel", "amount_cents": 1000, "currency": "BDT"}, http.StatusUnprocessableEntity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(server, http.MethodPost, "/api/v1/cost-requests", "s1", tt.body)
			assert.Equal(t, tt.code, rec.Code, rec.Body.String())
		})
	}
}

func TestDecide_ErrorMapping(t *testing.T) {
	server, mocks := newTestServer(t, nil)

	tests := []struct {
		name        string
		err         error
		code        int
		problemType string
		detail      string
	}{
		{"unauthorized", fmt.Errorf("%w: nope", workflow.ErrUnauthorized), http.StatusForbidden, "unauthorized", actionUnavailable},
		{"terminal", fmt.Errorf("%w: done", workflow.ErrAlreadyTerminal), http.StatusConflict, "already_terminal", actionUnavailable},
		{"conflict", fmt.Errorf("%w: raced", workflow.ErrConflict), http.StatusConflict, "conflict", actionUnavailable},
		{"not found", fmt.Errorf("%w: instance x", workflow.ErrNotFound), http.StatusNotFound, "not_found", ""},
		{"validation", fmt.Errorf("%w: comment required", workflow.ErrValidation), http.StatusUnprocessableEntity, "validation_error", ""},
		{"internal", errors.New("disk on fire"), http.StatusInternalServerError, "internal_error", "internal server error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mocks.decision.decideFunc = func(context.Context, service.DecideCommand) (*entity.Instance, error) {
				return nil, tt.err
			}
			rec := doRequest(server, http.MethodPost, "/api/v1/instances/i-1/decisions", "admin", map[string]any{
				"decision": "REJECT", "comment": "no",
			})
			assert.Equal(t, tt.code, rec.Code)
			problem := decodeProblem(t, rec)
			assert.Equal(t, tt.problemType, problem.Type)
			if tt.detail != "" {
				assert.Equal(t, tt.detail, problem.Detail)
			}
		})
	}
}

func TestDecide_PassesCommand(t *testing.T) {
	server, mocks := newTestServer(t, nil)

	var got service.DecideCommand
	mocks.decision.decideFunc = func(_ context.Context, cmd service.DecideCommand) (*entity.Instance, error) {
		got = cmd
		return pendingInstance(cmd.InstanceID), nil
	}

	rec := doRequest(server, http.MethodPost, "/api/v1/instances/i-7/decisions", "t2", map[string]any{
		"decision": "APPROVE", "signature_ref": "t2.png", "expected_stage": "L2",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, service.DecideCommand{
		InstanceID: "i-7", ActorID: "t2", Decision: entity.DecisionApprove,
		SignatureRef: "t2.png", ExpectedStage: "L2",
	}, got)

	rec = doRequest(server, http.MethodPost, "/api/v1/instances/i-7/decisions", "t2", map[string]any{"decision": "MAYBE"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestAttachCheck(t *testing.T) {
	server, mocks := newTestServer(t, nil)
	mocks.checks.attachFunc = func(_ context.Context, cmd service.AttachCheckCommand) (*entity.Instance, error) {
		require.NotNil(t, cmd.Date)
		assert.Equal(t, "CHK-1", cmd.Number)
		return nil, fmt.Errorf("%w: not approved", workflow.ErrPrecondition)
	}

	rec := doRequest(server, http.MethodPost, "/api/v1/cost-requests/c-1/check", "admin", map[string]any{
		"number": "CHK-1", "date": "2026-03-20T00:00:00Z",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "precondition_failed", decodeProblem(t, rec).Type)
}

func TestListInstances(t *testing.T) {
	server, mocks := newTestServer(t, nil)

	var got port.InstanceFilter
	mocks.queries.listFunc = func(_ context.Context, filter port.InstanceFilter) ([]*entity.Instance, error) {
		got = filter
		return []*entity.Instance{pendingInstance("a"), pendingInstance("b")}, nil
	}

	rec := doRequest(server, http.MethodGet, "/api/v1/instances?type=APPLICATION&submitter=s1&offset=10", "admin", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, port.InstanceFilter{
		WorkflowType: entity.WorkflowTypeApplication, SubmitterID: "s1", Limit: 20, Offset: 10,
	}, got)

	rec = doRequest(server, http.MethodGet, "/api/v1/instances?limit=1000", "admin", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestInbox(t *testing.T) {
	server, mocks := newTestServer(t, nil)
	mocks.queries.awaitingFunc = func(_ context.Context, identityID string, limit, offset int) ([]*entity.Instance, error) {
		assert.Equal(t, "reviewer", identityID)
		return []*entity.Instance{pendingInstance("a")}, nil
	}

	rec := doRequest(server, http.MethodGet, "/api/v1/inbox", "reviewer", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"can_act":true`)
}

func TestVerify(t *testing.T) {
	server, mocks := newTestServer(t, nil)
	approvedAt := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	mocks.verification.lookupFunc = func(_ context.Context, code string) (*entity.VerificationView, error) {
		if code != "APP-20260314-0001" {
			return nil, fmt.Errorf("%w: code %s is pending", workflow.ErrNotFound, code)
		}
		return &entity.VerificationView{
			Code: code, Title: "Request", Status: entity.StatusApproved,
			SubmitterName: "Student One", ApprovedAt: &approvedAt,
		}, nil
	}

	rec := doRequest(server, http.MethodGet, "/public/verify/APP-20260314-0001", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"submitter_name":"Student One"`)

	rec = doRequest(server, http.MethodGet, "/public/verify/APP-20260314-0002", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	problem := decodeProblem(t, rec)
	assert.Equal(t, "verification code not found", problem.Detail)
}
