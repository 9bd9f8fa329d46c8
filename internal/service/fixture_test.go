package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/pesio-ai/be-proc-requisitions/internal/platform/clock"
	"github.com/pesio-ai/be-proc-requisitions/internal/platform/idgen"
	"github.com/pesio-ai/be-proc-requisitions/internal/platform/logger"
	"github.com/pesio-ai/be-proc-requisitions/internal/platform/metrics"
	"github.com/pesio-ai/be-proc-requisitions/internal/repository"
	"github.com/pesio-ai/be-proc-requisitions/internal/repository/memory"
	"github.com/pesio-ai/be-proc-requisitions/internal/rules"
)

const vessel = "v-1"

var march15 = time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC)

type fakeNotifier struct {
	mu     sync.Mutex
	events []string
	at     []time.Time
	err    error
}

func (n *fakeNotifier) PublishApprovalEscalated(_ context.Context, approvalID, requisitionID, originalApprover, newApprover, reason string, at time.Time) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.events = append(n.events, fmt.Sprintf("%s|%s|%s->%s|%s", requisitionID, approvalID, originalApprover, newApprover, reason))
	n.at = append(n.at, at)
	return nil
}

func (n *fakeNotifier) sent() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.events...)
}

type fixture struct {
	store      *memory.Store
	clock      *clock.Fixed
	metrics    *metrics.Metrics
	notifier   *fakeNotifier
	budgets    *BudgetValidator
	resolver   *DelegationResolver
	router     *ApprovalRouter
	escalation *EscalationService
	override   *OverrideService
}

func newFixture(t *testing.T, ruleSet ...rules.WorkflowRule) *fixture {
	t.Helper()

	f := &fixture{
		store:    memory.New(),
		clock:    clock.NewFixed(march15),
		metrics:  metrics.New(),
		notifier: &fakeNotifier{},
	}
	log := logger.Nop()
	ids := &idgen.Sequence{Prefix: "apr"}

	evaluator := rules.NewEvaluator(ruleSet)
	require.NoError(t, evaluator.Err())

	f.budgets = NewBudgetValidator(f.store, f.clock, log)
	f.resolver = NewDelegationResolver(f.store, log)
	f.router = NewApprovalRouter(f.store, evaluator, f.budgets, f.resolver, DefaultDeadlines, f.clock, ids, f.metrics, log)
	f.escalation = NewEscalationService(f.store, f.resolver, f.notifier, DefaultDeadlines, 0, f.clock, ids, f.metrics, log)
	f.override = NewOverrideService(f.store, f.budgets, f.resolver, DefaultDeadlines, f.clock, ids, f.metrics, log)

	for _, u := range []struct {
		id   string
		role repository.Role
	}{
		{"crew-1", repository.RoleCrew},
		{"cap-1", repository.RoleCaptain},
		{"sup-1", repository.RoleSuperintendent},
		{"pm-1", repository.RoleProcurementManager},
		{"sm-1", repository.RoleSeniorManagement},
	} {
		f.store.PutUser(&repository.User{ID: u.id, Name: u.id, Role: u.role, VesselAssignments: []string{vessel}})
	}
	f.store.PutUser(&repository.User{ID: "cap-2", Role: repository.RoleCaptain, VesselAssignments: []string{"v-2"}})
	f.store.PutUser(&repository.User{ID: "sup-2", Role: repository.RoleSuperintendent, VesselAssignments: []string{"v-2"}})

	fleetID := "fleet-1"
	f.store.PutBudget(&repository.Budget{
		ID:           fleetID,
		Scope:        repository.BudgetScopeFleet,
		OwnerID:      "fleet-north",
		Period:       "2024-03",
		MonthlyLimit: decimal.NewFromInt(1_000_000),
		CurrentSpent: decimal.Zero,
		Currency:     "USD",
	})
	f.store.PutBudget(&repository.Budget{
		ID:             "budget-v1",
		Scope:          repository.BudgetScopeVessel,
		OwnerID:        vessel,
		Period:         "2024-03",
		MonthlyLimit:   decimal.NewFromInt(100_000),
		CurrentSpent:   decimal.Zero,
		Currency:       "USD",
		ParentBudgetID: &fleetID,
	})
	return f
}

func (f *fixture) addRequisition(id string, amount int64, urgency repository.Urgency, crit ...repository.Criticality) *repository.Requisition {
	req := &repository.Requisition{
		ID:            id,
		Amount:        decimal.NewFromInt(amount),
		Currency:      "USD",
		Urgency:       urgency,
		VesselID:      vessel,
		RequestedByID: "crew-1",
		Status:        repository.RequisitionDraft,
		CreatedAt:     march15,
		UpdatedAt:     march15,
	}
	for i, c := range crit {
		req.Items = append(req.Items, repository.LineItem{ID: fmt.Sprintf("%s-item-%d", id, i), Description: "part", Quantity: decimal.NewFromInt(1), Criticality: c})
	}
	f.store.PutRequisition(req)
	return req
}

func (f *fixture) requisition(t *testing.T, id string) *repository.Requisition {
	t.Helper()
	req, err := f.store.GetRequisition(context.Background(), id)
	require.NoError(t, err)
	return req
}

func (f *fixture) budget(t *testing.T, id string) *repository.Budget {
	t.Helper()
	b, err := f.store.GetBudget(context.Background(), id)
	require.NoError(t, err)
	return b
}

func (f *fixture) approve(t *testing.T, approvalID, actor string) *DecisionResult {
	t.Helper()
	res, err := f.router.DecideApproval(context.Background(), DecideRequest{ApprovalID: approvalID, ActorID: actor, Approved: true})
	require.NoError(t, err)
	return res
}
