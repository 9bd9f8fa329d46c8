package service

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pesio-ai/be-proc-requisitions/internal/platform/errors"
	"github.com/pesio-ai/be-proc-requisitions/internal/repository"
)

func TestOverrideByNonCaptainIsUnauthorized(t *testing.T) {
	for _, actor := range []string{"crew-1", "sup-1", "cap-2", "nobody"} {
		t.Run(actor, func(t *testing.T) {
			f := newFixture(t)
			f.addRequisition("req-1", 8_000, repository.UrgencyEmergency)
			ctx := context.Background()

			_, err := f.override.ProcessOverride(ctx, "req-1", OverrideRequest{CaptainID: actor, Reason: "engine fire"})
			require.Error(t, err)
			assert.True(t, errors.IsAuthorization(err))
			assert.Contains(t, err.Error(), "Only captains can perform emergency overrides")

			req := f.requisition(t, "req-1")
			assert.Equal(t, repository.RequisitionDraft, req.Status)
			assert.False(t, req.EmergencyOverride)
			assert.True(t, f.budget(t, "budget-v1").CurrentSpent.IsZero())

			history, err := f.router.GetApprovalHistory(ctx, "req-1")
			require.NoError(t, err)
			require.Len(t, history, 1)
			assert.Equal(t, auditOverrideDenied, history[0].Action)
		})
	}
}

func TestOverrideByCaptain(t *testing.T) {
	f := newFixture(t)
	f.addRequisition("req-1", 8_000, repository.UrgencyEmergency)
	ctx := context.Background()

	routed, err := f.router.ProcessRequisition(ctx, "req-1")
	require.NoError(t, err)
	require.True(t, routed.PendingApproval)

	res, err := f.override.ProcessOverride(ctx, "req-1", OverrideRequest{CaptainID: "cap-1", Reason: "steering gear failure"})
	require.NoError(t, err)

	assert.True(t, res.Approved)
	assert.True(t, res.EmergencyOverride)
	assert.True(t, res.RequiresPostApproval)
	assert.Equal(t, "cap-1", res.OverriddenBy)
	assert.True(t, res.BudgetCommitted)
	assert.Equal(t, repository.BudgetScopeVessel, res.BudgetLevel)
	require.NotEmpty(t, res.ReviewApprovalID)

	req := f.requisition(t, "req-1")
	assert.Equal(t, repository.RequisitionApproved, req.Status)
	assert.True(t, req.EmergencyOverride)
	assert.True(t, req.RequiresPostApproval)
	require.NotNil(t, req.OverriddenBy)
	assert.Equal(t, "cap-1", *req.OverriddenBy)
	require.NotNil(t, req.ApprovalLevel)
	assert.Equal(t, repository.LevelCaptain, *req.ApprovalLevel)
	assert.True(t, f.budget(t, "budget-v1").CurrentSpent.Equal(decimal.NewFromInt(8_000)))

	closed, err := f.store.GetApproval(ctx, routed.ApprovalID)
	require.NoError(t, err)
	assert.Equal(t, repository.ApprovalApproved, closed.Status)

	review, err := f.router.GetActiveApproval(ctx, "req-1")
	require.NoError(t, err)
	require.NotNil(t, review)
	assert.Equal(t, res.ReviewApprovalID, review.ID)
	assert.Equal(t, repository.PurposePostApprovalReview, review.Purpose)
	assert.Equal(t, repository.LevelSuperintendent, review.Level)
	assert.Equal(t, "sup-1", review.AssignedTo)
}

func TestOverrideRequiresEmergencyUrgency(t *testing.T) {
	f := newFixture(t)
	f.addRequisition("req-1", 8_000, repository.UrgencyUrgent)

	_, err := f.override.ProcessOverride(context.Background(), "req-1", OverrideRequest{CaptainID: "cap-1", Reason: "need it"})
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeClassification, errors.CodeOf(err))
	assert.Equal(t, repository.RequisitionDraft, f.requisition(t, "req-1").Status)
}

func TestOverrideRequiresReason(t *testing.T) {
	f := newFixture(t)
	f.addRequisition("req-1", 8_000, repository.UrgencyEmergency)

	_, err := f.override.ProcessOverride(context.Background(), "req-1", OverrideRequest{CaptainID: "cap-1", Reason: "  "})
	require.Error(t, err)
	assert.True(t, errors.IsValidation(err))
}

func TestOverrideOfDecidedRequisitionConflicts(t *testing.T) {
	f := newFixture(t)
	f.addRequisition("req-1", 8_000, repository.UrgencyEmergency)
	ctx := context.Background()

	_, err := f.override.ProcessOverride(ctx, "req-1", OverrideRequest{CaptainID: "cap-1", Reason: "flooding"})
	require.NoError(t, err)

	_, err = f.override.ProcessOverride(ctx, "req-1", OverrideRequest{CaptainID: "cap-1", Reason: "flooding"})
	require.Error(t, err)
	assert.True(t, errors.IsConflict(err))
}

func TestOverrideStandsWhenBudgetShort(t *testing.T) {
	f := newFixture(t)
	f.store.PutBudget(&repository.Budget{
		ID:           "budget-v1",
		Scope:        repository.BudgetScopeVessel,
		OwnerID:      vessel,
		Period:       "2024-03",
		MonthlyLimit: decimal.NewFromInt(1_000),
		CurrentSpent: decimal.Zero,
		Currency:     "USD",
	})
	f.addRequisition("req-1", 8_000, repository.UrgencyEmergency)
	ctx := context.Background()

	res, err := f.override.ProcessOverride(ctx, "req-1", OverrideRequest{CaptainID: "cap-1", Reason: "flooding"})
	require.NoError(t, err)
	assert.True(t, res.Approved)
	assert.False(t, res.BudgetCommitted)
	assert.True(t, f.budget(t, "budget-v1").CurrentSpent.IsZero())

	history, err := f.router.GetApprovalHistory(ctx, "req-1")
	require.NoError(t, err)
	require.NotEmpty(t, history)
	last := history[len(history)-1]
	assert.Equal(t, auditEmergencyOverride, last.Action)
	assert.Contains(t, last.Metadata, "budget_shortfall")
}

func TestReviewDecisionLeavesRequisitionApproved(t *testing.T) {
	f := newFixture(t)
	f.addRequisition("req-1", 8_000, repository.UrgencyEmergency)
	ctx := context.Background()

	res, err := f.override.ProcessOverride(ctx, "req-1", OverrideRequest{CaptainID: "cap-1", Reason: "flooding"})
	require.NoError(t, err)

	out, err := f.router.DecideApproval(ctx, DecideRequest{ApprovalID: res.ReviewApprovalID, ActorID: "sup-1", Notes: "should have waited"})
	require.NoError(t, err)
	assert.True(t, out.Rejected)
	assert.Equal(t, repository.ApprovalRejected, out.Status)

	req := f.requisition(t, "req-1")
	assert.Equal(t, repository.RequisitionApproved, req.Status)
	assert.True(t, req.RequiresPostApproval)

	active, err := f.router.GetActiveApproval(ctx, "req-1")
	require.NoError(t, err)
	assert.Nil(t, active)
}
