package service

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sust-cse/approval-engine/internal/application/port"
	"github.com/sust-cse/approval-engine/internal/application/schema"
	"github.com/sust-cse/approval-engine/internal/domain/entity"
	"github.com/sust-cse/approval-engine/internal/domain/event"
	"github.com/sust-cse/approval-engine/internal/domain/workflow"
	"github.com/sust-cse/approval-engine/internal/infrastructure/persistence/repository"
	"github.com/sust-cse/approval-engine/internal/infrastructure/persistence/sqlite"
	"github.com/sust-cse/approval-engine/migrations"
	"github.com/sust-cse/approval-engine/pkg/database"
)

// fixedNow is the clock every harness service runs on
var fixedNow = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

type nopLogger struct{}

func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}

// recordingDispatcher captures dispatched events synchronously
type recordingDispatcher struct {
	mu     sync.Mutex
	events []*event.Event
}

func (d *recordingDispatcher) DispatchAsync(_ context.Context, evt *event.Event) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, evt)
}

func (d *recordingDispatcher) types() []event.Type {
	d.mu.Lock()
	defer d.mu.Unlock()
	types := make([]event.Type, 0, len(d.events))
	for _, evt := range d.events {
		types = append(types, evt.Type)
	}
	return types
}

type mockSignatureStore struct {
	lookupFunc func(ctx context.Context, identityID string) (string, error)
	urlFunc    func(ctx context.Context, ref string) (string, error)
}

func (m *mockSignatureStore) Lookup(ctx context.Context, identityID string) (string, error) {
	if m.lookupFunc != nil {
		return m.lookupFunc(ctx, identityID)
	}
	return "", nil
}

func (m *mockSignatureStore) URL(ctx context.Context, ref string) (string, error) {
	if m.urlFunc != nil {
		return m.urlFunc(ctx, ref)
	}
	return "https://signatures.example/" + ref, nil
}

type mockCache struct {
	mu    sync.Mutex
	views map[string]*entity.VerificationView
	gets  int
}

func newMockCache() *mockCache {
	return &mockCache{views: make(map[string]*entity.VerificationView)}
}

func (m *mockCache) Get(_ context.Context, code string) (*entity.VerificationView, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gets++
	return m.views[code], nil
}

func (m *mockCache) Set(_ context.Context, view *entity.VerificationView) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.views[view.Code] = view
	return nil
}

// harness wires every service against a migrated SQLite file database
type harness struct {
	instances    port.InstanceRepository
	trail        port.TrailRepository
	identities   port.IdentityRepository
	tx           port.TransactionManager
	dispatcher   *recordingDispatcher
	signatures   *mockSignatureStore
	cache        *mockCache
	submission   SubmissionService
	decision     DecisionService
	verification VerificationService
	checks       CheckService
	queries      QueryService
}

type harnessOption func(*harness)

// withInstanceRepo wraps the SQLite instance repository before services are built
func withInstanceRepo(wrap func(port.InstanceRepository) port.InstanceRepository) harnessOption {
	return func(h *harness) {
		h.instances = wrap(h.instances)
	}
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()
	logger := zap.NewNop()

	db, err := database.New(database.Config{Path: filepath.Join(t.TempDir(), "engine.db")}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = database.NewMigrator(db, logger).Run(migrations.FS)
	require.NoError(t, err)

	schemas, err := schema.NewValidator()
	require.NoError(t, err)

	h := &harness{
		instances:  repository.NewInstanceRepository(db.DB, logger),
		trail:      repository.NewTrailRepository(db.DB, logger),
		identities: repository.NewIdentityRepository(db.DB, logger),
		tx:         sqlite.NewDB(db.DB, logger),
		dispatcher: &recordingDispatcher{},
		signatures: &mockSignatureStore{},
		cache:      newMockCache(),
	}
	for _, opt := range opts {
		opt(h)
	}

	clock := WithClock(func() time.Time { return fixedNow })
	sequences := repository.NewSequenceRepository(db.DB, logger)

	h.verification = NewVerificationService(h.instances, h.trail, sequences, h.signatures, h.cache, nil, nopLogger{})
	h.submission = NewSubmissionService(h.instances, h.identities, h.tx, workflow.NewStageResolver(), schemas, h.dispatcher, nopLogger{}, clock)
	h.decision = NewDecisionService(h.instances, h.trail, h.identities, h.tx, h.verification, h.signatures, h.dispatcher, nopLogger{}, clock)
	h.checks = NewCheckService(h.instances, h.trail, h.identities, h.dispatcher, nopLogger{}, clock)
	h.queries = NewQueryService(h.instances, h.trail, h.identities)

	seedDirectory(t, h.identities)
	return h
}

func seedDirectory(t *testing.T, identities port.IdentityRepository) {
	t.Helper()
	directory := []*entity.Identity{
		{ID: "admin", DisplayName: "Office Admin", Roles: []string{entity.RoleAdmin}},
		{ID: "reviewer", DisplayName: "Desk Reviewer", Roles: []string{entity.RoleReviewer}},
		{ID: "t1", DisplayName: "Teacher One", Roles: []string{entity.RoleTeacher}},
		{ID: "t2", DisplayName: "Teacher Two", Roles: []string{entity.RoleTeacher}},
		{ID: "s1", DisplayName: "Student One", Roles: []string{entity.RoleStudent}},
		{ID: "fin1", DisplayName: "Finance One", Permissions: []string{entity.PermissionApproveCostL1}},
		{ID: "fin2", DisplayName: "Finance Two", Permissions: []string{entity.PermissionApproveCostL2}},
	}
	for _, identity := range directory {
		require.NoError(t, identities.Upsert(context.Background(), identity))
	}
}

func (h *harness) submitApplication(t *testing.T, mediumID string) *entity.Instance {
	t.Helper()
	inst, err := h.submission.SubmitApplication(context.Background(), SubmitApplicationCommand{
		SubmitterID: "s1",
		Title:       "Request for lab access",
		Kind:        entity.ApplicationKindGeneral,
		ToID:        "t2",
		MediumID:    mediumID,
		Details:     json.RawMessage(`{"body":"please grant weekend access"}`),
	})
	require.NoError(t, err)
	return inst
}

func (h *harness) submitCost(t *testing.T) *entity.Instance {
	t.Helper()
	inst, err := h.submission.SubmitCostRequest(context.Background(), SubmitCostRequestCommand{
		SubmitterID: "s1",
		Title:       "Conference travel",
		AmountCents: 4_500_000,
		Currency:    "bdt",
		Purpose:     "ICCIT 2026",
	})
	require.NoError(t, err)
	return inst
}

func (h *harness) decide(t *testing.T, id, actor string, decision entity.Decision, comment string) *entity.Instance {
	t.Helper()
	inst, err := h.decision.Decide(context.Background(), DecideCommand{
		InstanceID: id,
		ActorID:    actor,
		Decision:   decision,
		Comment:    comment,
	})
	require.NoError(t, err)
	return inst
}

func stageKeys(entries []*entity.TrailEntry) []string {
	keys := make([]string, 0, len(entries))
	for _, entry := range entries {
		keys = append(keys, entry.StageKey)
	}
	return keys
}
