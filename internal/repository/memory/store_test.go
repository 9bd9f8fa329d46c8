package memory

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pesio-ai/be-proc-requisitions/internal/platform/errors"
	"github.com/pesio-ai/be-proc-requisitions/internal/repository"
)

var now = time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)

func seedPending(s *Store) {
	s.PutRequisition(&repository.Requisition{
		ID:       "req-1",
		Amount:   decimal.NewFromInt(500),
		Currency: "USD",
		VesselID: "v-1",
		Status:   repository.RequisitionPendingApproval,
	})
	s.PutApproval(&repository.ApprovalRecord{
		ID:                 "apr-1",
		RequisitionID:      "req-1",
		Level:              repository.LevelSuperintendent,
		Chain:              []repository.ApprovalLevel{repository.LevelSuperintendent},
		AssignedTo:         "u-sup",
		Status:             repository.ApprovalPending,
		EscalationDeadline: now.Add(24 * time.Hour),
		CreatedAt:          now,
	})
}

func TestApplyTransitionCompareAndSwap(t *testing.T) {
	ctx := context.Background()
	s := New()
	seedPending(s)

	approve := func() *repository.Transition {
		actor := "u-sup"
		return &repository.Transition{
			Approval: &repository.ApprovalUpdate{
				ID:             "apr-1",
				ExpectedStatus: repository.ApprovalPending,
				Status:         repository.ApprovalApproved,
				ActedBy:        &actor,
				ActedAt:        &now,
				UpdatedAt:      now,
			},
			Requisition: &repository.RequisitionUpdate{
				ID:               "req-1",
				ExpectedStatuses: []repository.RequisitionStatus{repository.RequisitionPendingApproval},
				Status:           repository.RequisitionApproved,
				UpdatedAt:        now,
			},
		}
	}

	require.NoError(t, s.ApplyTransition(ctx, approve()))

	err := s.ApplyTransition(ctx, approve())
	require.Error(t, err)
	assert.True(t, errors.IsConflict(err))

	rec, err := s.GetApproval(ctx, "apr-1")
	require.NoError(t, err)
	assert.Equal(t, repository.ApprovalApproved, rec.Status)
	assert.Equal(t, "u-sup", *rec.ActedBy)
}

func TestApplyTransitionRejectsSecondActiveRecord(t *testing.T) {
	ctx := context.Background()
	s := New()
	seedPending(s)

	err := s.ApplyTransition(ctx, &repository.Transition{
		Create: &repository.ApprovalRecord{
			ID:            "apr-2",
			RequisitionID: "req-1",
			Status:        repository.ApprovalPending,
		},
	})
	require.Error(t, err)
	assert.True(t, errors.IsConflict(err))

	active, err := s.GetActiveApproval(ctx, "req-1")
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, "apr-1", active.ID)
}

func TestApplyTransitionIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	s := New()
	seedPending(s)
	s.PutBudget(&repository.Budget{
		ID:           "b-1",
		Scope:        repository.BudgetScopeVessel,
		OwnerID:      "v-1",
		Period:       "2024-03",
		MonthlyLimit: decimal.NewFromInt(100),
		CurrentSpent: decimal.Zero,
	})

	err := s.ApplyTransition(ctx, &repository.Transition{
		Approval: &repository.ApprovalUpdate{
			ID:             "apr-1",
			ExpectedStatus: repository.ApprovalPending,
			Status:         repository.ApprovalApproved,
			UpdatedAt:      now,
		},
		Commit: &repository.BudgetCommit{
			BudgetID: "b-1",
			Amount:   decimal.NewFromInt(500),
			Limit:    decimal.NewFromInt(100),
		},
	})
	require.Error(t, err)
	assert.True(t, errors.IsBudgetExceeded(err))

	rec, err := s.GetApproval(ctx, "apr-1")
	require.NoError(t, err)
	assert.Equal(t, repository.ApprovalPending, rec.Status, "approval must be untouched when the commit fails")
}

func TestConcurrentCommitsNeverExceedLimit(t *testing.T) {
	ctx := context.Background()
	s := New()
	s.PutBudget(&repository.Budget{
		ID:           "b-1",
		Scope:        repository.BudgetScopeVessel,
		MonthlyLimit: decimal.NewFromInt(1000),
		CurrentSpent: decimal.Zero,
	})

	var wg sync.WaitGroup
	var succeeded atomic.Int32
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.ApplyTransition(ctx, &repository.Transition{
				Commit: &repository.BudgetCommit{
					BudgetID: "b-1",
					Amount:   decimal.NewFromInt(300),
					Limit:    decimal.NewFromInt(1000),
				},
			})
			if err == nil {
				succeeded.Add(1)
			}
		}()
	}
	wg.Wait()

	b, err := s.GetBudget(ctx, "b-1")
	require.NoError(t, err)
	assert.Equal(t, int32(3), succeeded.Load())
	assert.True(t, b.CurrentSpent.Equal(decimal.NewFromInt(900)), "spent %s", b.CurrentSpent)
}

func TestOverspendCommitSkipsLimitGuard(t *testing.T) {
	ctx := context.Background()
	s := New()
	s.PutBudget(&repository.Budget{
		ID:           "b-1",
		Scope:        repository.BudgetScopeVessel,
		MonthlyLimit: decimal.NewFromInt(1000),
		CurrentSpent: decimal.NewFromInt(800),
	})

	guarded := &repository.BudgetCommit{BudgetID: "b-1", Amount: decimal.NewFromInt(500), Limit: decimal.NewFromInt(1000)}
	err := s.ApplyTransition(ctx, &repository.Transition{Commit: guarded})
	assert.True(t, errors.IsBudgetExceeded(err))

	overspend := *guarded
	overspend.Overspend = true
	require.NoError(t, s.ApplyTransition(ctx, &repository.Transition{Commit: &overspend}))

	b, err := s.GetBudget(ctx, "b-1")
	require.NoError(t, err)
	assert.True(t, b.CurrentSpent.Equal(decimal.NewFromInt(1300)), "spent %s", b.CurrentSpent)
}

func TestReadsReturnCopies(t *testing.T) {
	ctx := context.Background()
	s := New()
	seedPending(s)

	rec, err := s.GetApproval(ctx, "apr-1")
	require.NoError(t, err)
	rec.Status = repository.ApprovalRejected
	rec.Chain[0] = repository.LevelCaptain

	again, err := s.GetApproval(ctx, "apr-1")
	require.NoError(t, err)
	assert.Equal(t, repository.ApprovalPending, again.Status)
	assert.Equal(t, repository.LevelSuperintendent, again.Chain[0])
}

func TestFindApproverPicksLowestAssignedID(t *testing.T) {
	ctx := context.Background()
	s := New()
	s.PutUser(&repository.User{ID: "u-b", Role: repository.RoleSuperintendent, VesselAssignments: []string{"v-1"}})
	s.PutUser(&repository.User{ID: "u-a", Role: repository.RoleSuperintendent, VesselAssignments: []string{"v-1"}})
	s.PutUser(&repository.User{ID: "u-0", Role: repository.RoleSuperintendent, VesselAssignments: []string{"v-2"}})

	u, err := s.FindApprover(ctx, repository.RoleSuperintendent, "v-1")
	require.NoError(t, err)
	assert.Equal(t, "u-a", u.ID)

	_, err = s.FindApprover(ctx, repository.RoleCaptain, "v-1")
	assert.True(t, errors.IsNotFound(err))
}

func TestListOverdueApprovals(t *testing.T) {
	ctx := context.Background()
	s := New()
	seedPending(s)

	overdue, err := s.ListOverdueApprovals(ctx, now.Add(23*time.Hour), 10)
	require.NoError(t, err)
	assert.Empty(t, overdue)

	overdue, err = s.ListOverdueApprovals(ctx, now.Add(25*time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, overdue, 1)
	assert.Equal(t, "apr-1", overdue[0].ID)

	relief := "u-relief"
	require.NoError(t, s.ApplyTransition(ctx, &repository.Transition{
		Approval: &repository.ApprovalUpdate{
			ID:             "apr-1",
			ExpectedStatus: repository.ApprovalPending,
			Status:         repository.ApprovalDelegated,
			DelegatedTo:    &relief,
			UpdatedAt:      now,
		},
	}))
	overdue, err = s.ListOverdueApprovals(ctx, now.Add(25*time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, overdue, 1, "delegated records keep their deadline")

	mine, err := s.ListPendingForUser(ctx, "u-relief")
	require.NoError(t, err)
	assert.Len(t, mine, 1)
	mine, err = s.ListPendingForUser(ctx, "u-sup")
	require.NoError(t, err)
	assert.Empty(t, mine)
}

func TestAppendAuditFailure(t *testing.T) {
	s := New()
	s.FailAudit = true
	err := s.AppendAudit(context.Background(), &repository.AuditEntry{RequisitionID: "req-1"})
	assert.Error(t, err)
}
