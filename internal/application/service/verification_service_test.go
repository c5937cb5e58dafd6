package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sust-cse/approval-engine/internal/domain/entity"
	"github.com/sust-cse/approval-engine/internal/domain/workflow"
)

func approveApplication(t *testing.T, h *harness) *entity.Instance {
	t.Helper()
	inst := h.submitApplication(t, "")
	h.decide(t, inst.ID, "admin", entity.DecisionApprove, "")
	return h.decide(t, inst.ID, "t2", entity.DecisionApprove, "")
}

func TestVerification_LookupApproved(t *testing.T) {
	h := newHarness(t)
	h.signatures.lookupFunc = func(_ context.Context, identityID string) (string, error) {
		return identityID + ".png", nil
	}
	inst := approveApplication(t, h)
	require.NotNil(t, inst.VerificationCode)
	code := *inst.VerificationCode

	view, err := h.verification.Lookup(context.Background(), code)
	require.NoError(t, err)
	assert.Equal(t, code, view.Code)
	assert.Equal(t, "Request for lab access", view.Title)
	assert.Equal(t, entity.StatusApproved, view.Status)
	assert.Equal(t, "Student One", view.SubmitterName)
	require.Len(t, view.Trail, 2)
	assert.Equal(t, "Office Admin", view.Trail[0].ReviewerName)
	assert.Empty(t, view.Trail[0].SignatureURL)
	assert.Equal(t, "https://signatures.example/t2.png", view.Trail[1].SignatureURL)

	t.Run("lower case input resolves", func(t *testing.T) {
		view, err := h.verification.Lookup(context.Background(), "  "+strings.ToLower(code)+" ")
		require.NoError(t, err)
		assert.Equal(t, code, view.Code)
	})

	t.Run("served from cache", func(t *testing.T) {
		cached := *view
		cached.Title = "cached"
		require.NoError(t, h.cache.Set(context.Background(), &cached))

		got, err := h.verification.Lookup(context.Background(), code)
		require.NoError(t, err)
		assert.Equal(t, "cached", got.Title)
	})
}

func TestVerification_LookupNotDiscoverable(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	pending := h.submitApplication(t, "")
	rejected := h.submitApplication(t, "")
	h.decide(t, rejected.ID, "admin", entity.DecisionReject, "incomplete")

	for _, id := range []string{pending.ID, rejected.ID} {
		got, err := h.queries.GetInstance(ctx, id)
		require.NoError(t, err)
		assert.Nil(t, got.VerificationCode)
	}

	for _, code := range []string{"", "not-a-code", "APP-2026-0001", "APP-20260314-0001", pending.ID} {
		_, err := h.verification.Lookup(ctx, code)
		assert.ErrorIs(t, err, workflow.ErrNotFound, "code %q", code)
	}
}

func TestVerification_SequencePerPrefixPerDay(t *testing.T) {
	h := newHarness(t)

	first := approveApplication(t, h)
	second := approveApplication(t, h)
	assert.Equal(t, "APP-20260314-0001", *first.VerificationCode)
	assert.Equal(t, "APP-20260314-0002", *second.VerificationCode)

	cost := h.submitCost(t)
	for _, approver := range []string{"fin1", "fin2", "admin"} {
		cost = h.decide(t, cost.ID, approver, entity.DecisionApprove, "")
	}
	assert.Equal(t, "COST-20260314-0001", *cost.VerificationCode)
}

func TestVerification_MintCodeTwice(t *testing.T) {
	h := newHarness(t)
	inst := approveApplication(t, h)

	_, err := h.verification.MintCode(context.Background(), inst, time.Now())
	assert.ErrorIs(t, err, workflow.ErrAlreadyAssigned)

	// The repository refuses even when the in-memory copy has lost its code
	inst.VerificationCode = nil
	_, err = h.verification.MintCode(context.Background(), inst, time.Now())
	assert.ErrorIs(t, err, workflow.ErrAlreadyAssigned)
}

func TestVerification_SignatureURLFailureIsTolerated(t *testing.T) {
	h := newHarness(t)
	h.signatures.lookupFunc = func(_ context.Context, identityID string) (string, error) {
		return identityID + ".png", nil
	}
	h.signatures.urlFunc = func(context.Context, string) (string, error) {
		return "", errors.New("presign failed")
	}
	inst := approveApplication(t, h)

	view, err := h.verification.Lookup(context.Background(), *inst.VerificationCode)
	require.NoError(t, err)
	for _, item := range view.Trail {
		assert.Empty(t, item.SignatureURL)
	}
}
