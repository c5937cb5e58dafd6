package service

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sust-cse/approval-engine/internal/application/port"
	"github.com/sust-cse/approval-engine/internal/domain/entity"
	"github.com/sust-cse/approval-engine/internal/domain/event"
	"github.com/sust-cse/approval-engine/internal/domain/workflow"
)

var appCodePattern = regexp.MustCompile(`^APP-\d{8}-\d{4}$`)

func TestDecide_ApplicationWithoutMedium(t *testing.T) {
	h := newHarness(t)
	inst := h.submitApplication(t, "")

	inst = h.decide(t, inst.ID, "admin", entity.DecisionApprove, "")
	assert.Equal(t, "PENDING_L2", inst.Status)
	assert.Equal(t, 1, inst.CurrentStageIndex)
	assert.Nil(t, inst.VerificationCode)

	inst = h.decide(t, inst.ID, "t2", entity.DecisionApprove, "looks fine")
	assert.Equal(t, entity.StatusApproved, inst.Status)
	assert.Equal(t, entity.TerminatedStageIndex, inst.CurrentStageIndex)
	require.NotNil(t, inst.VerificationCode)
	assert.Regexp(t, appCodePattern, *inst.VerificationCode)
	assert.Equal(t, "APP-20260314-0001", *inst.VerificationCode)
	require.NotNil(t, inst.ApprovedAt)
	assert.True(t, inst.ApprovedAt.Equal(fixedNow))

	assert.Equal(t, []string{entity.StageL0, entity.StageL2}, stageKeys(inst.Trail))
	_, hasL1 := inst.TrailEntryFor(entity.StageL1)
	assert.False(t, hasL1)

	assert.Equal(t, []event.Type{
		event.TypeInstanceSubmitted,
		event.TypeStageDecided,
		event.TypeStageDecided,
		event.TypeInstanceApproved,
	}, h.dispatcher.types())
}

func TestDecide_ApplicationWithMedium(t *testing.T) {
	h := newHarness(t)
	inst := h.submitApplication(t, "t1")

	inst = h.decide(t, inst.ID, "reviewer", entity.DecisionApprove, "")
	assert.Equal(t, "PENDING_L1", inst.Status)

	_, err := h.decision.Decide(context.Background(), DecideCommand{
		InstanceID: inst.ID, ActorID: "t2", Decision: entity.DecisionApprove,
	})
	assert.ErrorIs(t, err, workflow.ErrUnauthorized, "the final approver cannot skip the medium")

	inst = h.decide(t, inst.ID, "t1", entity.DecisionApprove, "")
	assert.Equal(t, "PENDING_L2", inst.Status)
	inst = h.decide(t, inst.ID, "t2", entity.DecisionApprove, "")

	assert.Equal(t, entity.StatusApproved, inst.Status)
	require.Len(t, inst.Trail, 3)
	assert.Equal(t, []string{entity.StageL0, entity.StageL1, entity.StageL2}, stageKeys(inst.Trail))
	for i, entry := range inst.Trail {
		assert.Equal(t, i, entry.StageIndex)
		assert.Equal(t, entity.DecisionApprove, entry.Decision)
	}
	assert.Equal(t, "Teacher One", inst.Trail[1].ReviewerName)
}

func TestDecide_CostRequestRejectedAtL2(t *testing.T) {
	h := newHarness(t)
	inst := h.submitCost(t)

	inst = h.decide(t, inst.ID, "fin1", entity.DecisionApprove, "")
	assert.Equal(t, "PENDING_L2", inst.Status)

	_, err := h.decision.Decide(context.Background(), DecideCommand{
		InstanceID: inst.ID, ActorID: "fin2", Decision: entity.DecisionReject, Comment: "   ",
	})
	assert.ErrorIs(t, err, workflow.ErrValidation)

	inst = h.decide(t, inst.ID, "fin2", entity.DecisionReject, "insufficient justification")
	assert.Equal(t, entity.StatusRejected, inst.Status)
	assert.Equal(t, entity.TerminatedStageIndex, inst.CurrentStageIndex)
	assert.Nil(t, inst.VerificationCode)
	require.Len(t, inst.Trail, 2)
	assert.Equal(t, entity.DecisionApprove, inst.Trail[0].Decision)
	assert.Equal(t, entity.DecisionReject, inst.Trail[1].Decision)
	assert.Equal(t, "insufficient justification", inst.Trail[1].Comment)

	_, err = h.checks.AttachCheck(context.Background(), AttachCheckCommand{
		InstanceID: inst.ID, ActorID: "admin", Number: "CHK-1",
	})
	assert.ErrorIs(t, err, workflow.ErrPrecondition)
}

func TestDecide_TerminalInstancesRejectFurtherDecisions(t *testing.T) {
	h := newHarness(t)
	approved := h.submitApplication(t, "")
	h.decide(t, approved.ID, "admin", entity.DecisionApprove, "")
	h.decide(t, approved.ID, "t2", entity.DecisionApprove, "")

	rejected := h.submitApplication(t, "")
	h.decide(t, rejected.ID, "admin", entity.DecisionReject, "incomplete")

	for _, id := range []string{approved.ID, rejected.ID} {
		for _, decision := range []entity.Decision{entity.DecisionApprove, entity.DecisionReject} {
			_, err := h.decision.Decide(context.Background(), DecideCommand{
				InstanceID: id, ActorID: "admin", Decision: decision, Comment: "again",
			})
			assert.ErrorIs(t, err, workflow.ErrAlreadyTerminal)
			assert.True(t, workflow.IsActionUnavailable(err))
		}
	}

	got, err := h.queries.GetInstance(context.Background(), rejected.ID)
	require.NoError(t, err)
	assert.Len(t, got.Trail, 1, "a rejection ends the chain before later stages")
}

func TestDecide_Failures(t *testing.T) {
	h := newHarness(t)
	inst := h.submitApplication(t, "t1")
	ctx := context.Background()

	tests := []struct {
		name    string
		cmd     DecideCommand
		wantErr error
	}{
		{"unknown instance", DecideCommand{InstanceID: "missing", ActorID: "admin", Decision: entity.DecisionApprove}, workflow.ErrNotFound},
		{"invalid decision", DecideCommand{InstanceID: inst.ID, ActorID: "admin", Decision: "MAYBE"}, workflow.ErrValidation},
		{"unknown actor", DecideCommand{InstanceID: inst.ID, ActorID: "ghost", Decision: entity.DecisionApprove}, workflow.ErrUnauthorized},
		{"missing actor", DecideCommand{InstanceID: inst.ID, Decision: entity.DecisionApprove}, workflow.ErrUnauthorized},
		{"wrong role", DecideCommand{InstanceID: inst.ID, ActorID: "s1", Decision: entity.DecisionApprove}, workflow.ErrUnauthorized},
		{"stale expected stage", DecideCommand{InstanceID: inst.ID, ActorID: "admin", Decision: entity.DecisionApprove, ExpectedStage: entity.StageL1}, workflow.ErrConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.decision.Decide(ctx, tt.cmd)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	got, err := h.queries.GetInstance(ctx, inst.ID)
	require.NoError(t, err)
	assert.Equal(t, "PENDING_L0", got.Status)
	assert.Empty(t, got.Trail)

	_, err = h.decision.Decide(ctx, DecideCommand{
		InstanceID: inst.ID, ActorID: "admin", Decision: entity.DecisionApprove, ExpectedStage: entity.StageL0,
	})
	assert.NoError(t, err)
}

func TestDecide_Signatures(t *testing.T) {
	h := newHarness(t)
	h.signatures.lookupFunc = func(_ context.Context, identityID string) (string, error) {
		switch identityID {
		case "t1":
			return "", errors.New("bucket unavailable")
		case "admin":
			return "signatures/admin.png", nil
		default:
			return "signatures/" + identityID + ".png", nil
		}
	}

	inst := h.submitApplication(t, "t1")
	h.decide(t, inst.ID, "admin", entity.DecisionApprove, "")
	h.decide(t, inst.ID, "t1", entity.DecisionApprove, "")
	_, err := h.decision.Decide(context.Background(), DecideCommand{
		InstanceID: inst.ID, ActorID: "t2", Decision: entity.DecisionApprove, SignatureRef: "signatures/t2.png",
	})
	require.NoError(t, err)

	got, err := h.queries.GetInstance(context.Background(), inst.ID)
	require.NoError(t, err)
	require.Len(t, got.Trail, 3)
	assert.Empty(t, got.Trail[0].SignatureRef, "L0 is not signable")
	assert.Empty(t, got.Trail[1].SignatureRef, "lookup failure does not block approval")
	assert.Equal(t, "signatures/t2.png", got.Trail[2].SignatureRef)
}

func TestDecide_RejectsSignatureOfAnotherIdentity(t *testing.T) {
	h := newHarness(t)
	h.signatures.lookupFunc = func(_ context.Context, identityID string) (string, error) {
		return identityID + ".png", nil
	}

	inst := h.submitApplication(t, "t1")
	h.decide(t, inst.ID, "admin", entity.DecisionApprove, "")
	h.decide(t, inst.ID, "t1", entity.DecisionApprove, "")

	_, err := h.decision.Decide(context.Background(), DecideCommand{
		InstanceID: inst.ID, ActorID: "t2", Decision: entity.DecisionApprove, SignatureRef: "t1.png",
	})
	require.ErrorIs(t, err, workflow.ErrValidation)

	got, err := h.queries.GetInstance(context.Background(), inst.ID)
	require.NoError(t, err)
	assert.Equal(t, "PENDING_L2", got.Status)
	assert.Len(t, got.Trail, 2)
	assert.Nil(t, got.VerificationCode)

	// Without a store nothing can be vouched for
	h.decision = NewDecisionService(h.instances, h.trail, h.identities, h.tx, h.verification, nil, h.dispatcher, nopLogger{})
	_, err = h.decision.Decide(context.Background(), DecideCommand{
		InstanceID: inst.ID, ActorID: "t2", Decision: entity.DecisionApprove, SignatureRef: "t2.png",
	})
	require.ErrorIs(t, err, workflow.ErrValidation)
}

// racingInstanceRepo holds the first two GetByID calls until both have loaded the same pre-state
type racingInstanceRepo struct {
	port.InstanceRepository
	loaded sync.WaitGroup
	calls  atomic.Int32
	armed  atomic.Bool
}

func (r *racingInstanceRepo) GetByID(ctx context.Context, id string) (*entity.Instance, error) {
	inst, err := r.InstanceRepository.GetByID(ctx, id)
	if r.armed.Load() && r.calls.Add(1) <= 2 {
		r.loaded.Done()
		r.loaded.Wait()
	}
	return inst, err
}

func TestDecide_ConcurrentDecisionsOnSameStage(t *testing.T) {
	racing := &racingInstanceRepo{}
	h := newHarness(t, withInstanceRepo(func(repo port.InstanceRepository) port.InstanceRepository {
		racing.InstanceRepository = repo
		return racing
	}))
	inst := h.submitApplication(t, "")

	racing.loaded.Add(2)
	racing.armed.Store(true)

	var (
		wg      sync.WaitGroup
		results = make([]error, 2)
	)
	for i, actor := range []string{"admin", "reviewer"} {
		wg.Add(1)
		go func(i int, actor string) {
			defer wg.Done()
			_, results[i] = h.decision.Decide(context.Background(), DecideCommand{
				InstanceID: inst.ID, ActorID: actor, Decision: entity.DecisionApprove,
			})
		}(i, actor)
	}
	wg.Wait()

	var successes, conflicts int
	for _, err := range results {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, workflow.ErrConflict):
			conflicts++
			assert.True(t, workflow.IsRetryable(err))
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, successes)
	assert.Equal(t, 1, conflicts)

	got, err := h.queries.GetInstance(context.Background(), inst.ID)
	require.NoError(t, err)
	assert.Equal(t, "PENDING_L2", got.Status)
	assert.Equal(t, []string{entity.StageL0}, stageKeys(got.Trail))
}

func TestDecide_TrailMatchesProgress(t *testing.T) {
	h := newHarness(t)
	inst := h.submitCost(t)
	approvers := []string{"fin1", "fin2", "admin"}

	for i, approver := range approvers {
		got, err := h.queries.GetInstance(context.Background(), inst.ID)
		require.NoError(t, err)
		assert.Len(t, got.Trail, i)
		for j, stage := range got.StageChain {
			_, present := got.TrailEntryFor(stage.Key)
			assert.Equal(t, j < got.CurrentStageIndex, present, "stage %s", stage.Key)
		}
		assert.Equal(t, got.Status == entity.StatusApproved, got.VerificationCode != nil)

		h.decide(t, inst.ID, approver, entity.DecisionApprove, "")
	}

	got, err := h.queries.GetInstance(context.Background(), inst.ID)
	require.NoError(t, err)
	assert.Len(t, got.Trail, 3)
	require.NotNil(t, got.VerificationCode)
	assert.Equal(t, "COST-20260314-0001", *got.VerificationCode)
}
