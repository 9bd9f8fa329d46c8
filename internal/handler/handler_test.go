package handler

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pesio-ai/be-proc-requisitions/internal/platform/clock"
	"github.com/pesio-ai/be-proc-requisitions/internal/platform/idgen"
	"github.com/pesio-ai/be-proc-requisitions/internal/platform/logger"
	"github.com/pesio-ai/be-proc-requisitions/internal/repository"
	"github.com/pesio-ai/be-proc-requisitions/internal/repository/memory"
	"github.com/pesio-ai/be-proc-requisitions/internal/rules"
	"github.com/pesio-ai/be-proc-requisitions/internal/service"
)

var now = time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC)

type services struct {
	store      *memory.Store
	router     *service.ApprovalRouter
	escalation *service.EscalationService
	override   *service.OverrideService
}

func newServices() *services {
	store := memory.New()
	log := logger.Nop()
	clk := clock.NewFixed(now)
	ids := &idgen.Sequence{Prefix: "apr"}

	for _, u := range []*repository.User{
		{ID: "cap-1", Role: repository.RoleCaptain, VesselAssignments: []string{"v-1"}},
		{ID: "sup-1", Role: repository.RoleSuperintendent, VesselAssignments: []string{"v-1"}},
		{ID: "pm-1", Role: repository.RoleProcurementManager, VesselAssignments: []string{"v-1"}},
		{ID: "sm-1", Role: repository.RoleSeniorManagement, VesselAssignments: []string{"v-1"}},
	} {
		store.PutUser(u)
	}
	store.PutBudget(&repository.Budget{
		ID:           "budget-v1",
		Scope:        repository.BudgetScopeVessel,
		OwnerID:      "v-1",
		Period:       "2024-03",
		MonthlyLimit: decimal.NewFromInt(100_000),
		CurrentSpent: decimal.Zero,
		Currency:     "USD",
	})
	for id, amount := range map[string]int64{"req-small": 300, "req-sup": 2_500} {
		store.PutRequisition(&repository.Requisition{
			ID:            id,
			Amount:        decimal.NewFromInt(amount),
			Currency:      "USD",
			Urgency:       repository.UrgencyRoutine,
			VesselID:      "v-1",
			RequestedByID: "crew-1",
			Status:        repository.RequisitionDraft,
		})
	}
	store.PutRequisition(&repository.Requisition{
		ID:            "req-emergency",
		Amount:        decimal.NewFromInt(8_000),
		Currency:      "USD",
		Urgency:       repository.UrgencyEmergency,
		VesselID:      "v-1",
		RequestedByID: "crew-1",
		Status:        repository.RequisitionDraft,
	})

	budgets := service.NewBudgetValidator(store, clk, log)
	resolver := service.NewDelegationResolver(store, log)
	return &services{
		store:      store,
		router:     service.NewApprovalRouter(store, rules.NewEvaluator(nil), budgets, resolver, service.DefaultDeadlines, clk, ids, nil, log),
		escalation: service.NewEscalationService(store, resolver, nil, service.DefaultDeadlines, 0, clk, ids, nil, log),
		override:   service.NewOverrideService(store, budgets, resolver, service.DefaultDeadlines, clk, ids, nil, log),
	}
}

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }
