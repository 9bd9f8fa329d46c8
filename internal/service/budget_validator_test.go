package service

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pesio-ai/be-proc-requisitions/internal/platform/clock"
	"github.com/pesio-ai/be-proc-requisitions/internal/platform/errors"
	"github.com/pesio-ai/be-proc-requisitions/internal/platform/logger"
	"github.com/pesio-ai/be-proc-requisitions/internal/repository"
	"github.com/pesio-ai/be-proc-requisitions/internal/repository/memory"
)

func budgetStore(period string, limit, spent int64, seasonal map[string]decimal.Decimal, fleetLimit, fleetSpent int64) *memory.Store {
	s := memory.New()
	var parent *string
	if fleetLimit > 0 {
		id := "fleet-1"
		parent = &id
		s.PutBudget(&repository.Budget{
			ID:           id,
			Scope:        repository.BudgetScopeFleet,
			OwnerID:      "fleet",
			Period:       period,
			MonthlyLimit: decimal.NewFromInt(fleetLimit),
			CurrentSpent: decimal.NewFromInt(fleetSpent),
			Currency:     "USD",
		})
	}
	s.PutBudget(&repository.Budget{
		ID:                  "vessel-1",
		Scope:               repository.BudgetScopeVessel,
		OwnerID:             vessel,
		Period:              period,
		MonthlyLimit:        decimal.NewFromInt(limit),
		CurrentSpent:        decimal.NewFromInt(spent),
		Currency:            "USD",
		SeasonalAdjustments: seasonal,
		ParentBudgetID:      parent,
	})
	return s
}

func budgetRequisition(amount int64) *repository.Requisition {
	return &repository.Requisition{ID: "req-1", Amount: decimal.NewFromInt(amount), Currency: "USD", VesselID: vessel}
}

func TestBudgetWithinVessel(t *testing.T) {
	oct := time.Date(2024, 10, 3, 0, 0, 0, 0, time.UTC)
	store := budgetStore("2024-10", 10_000, 3_000, map[string]decimal.Decimal{"autumn": decimal.RequireFromString("1.2")}, 0, 0)
	v := NewBudgetValidator(store, clock.NewFixed(oct), logger.Nop())

	check, err := v.Validate(context.Background(), budgetRequisition(8_000))
	require.NoError(t, err)

	assert.True(t, check.WithinBudget)
	assert.Equal(t, repository.BudgetScopeVessel, check.Level)
	assert.False(t, check.Escalated)
	assert.True(t, check.Remaining.Equal(decimal.NewFromInt(7_000)), "remaining %s", check.Remaining)
	assert.True(t, check.AdjustedLimit.Equal(decimal.NewFromInt(12_000)), "adjusted %s", check.AdjustedLimit)
	assert.Equal(t, "vessel-1", check.BudgetID())

	commit := check.Commit(decimal.NewFromInt(8_000))
	require.NotNil(t, commit)
	assert.Equal(t, "vessel-1", commit.BudgetID)
	assert.True(t, commit.Limit.Equal(decimal.NewFromInt(12_000)))
}

func TestBudgetFallsBackToFleet(t *testing.T) {
	store := budgetStore("2024-03", 10_000, 3_000, nil, 500_000, 100_000)
	v := NewBudgetValidator(store, clock.NewFixed(march15), logger.Nop())

	check, err := v.Validate(context.Background(), budgetRequisition(12_000))
	require.NoError(t, err)

	assert.True(t, check.WithinBudget)
	assert.Equal(t, repository.BudgetScopeFleet, check.Level)
	assert.True(t, check.Escalated)
	assert.Equal(t, "Vessel budget exceeded", check.Reason)
	assert.True(t, check.Remaining.Equal(decimal.NewFromInt(400_000)))
	assert.Equal(t, "fleet-1", check.Commit(decimal.NewFromInt(12_000)).BudgetID)
}

func TestBudgetNeitherCovers(t *testing.T) {
	store := budgetStore("2024-03", 10_000, 3_000, nil, 20_000, 15_000)
	v := NewBudgetValidator(store, clock.NewFixed(march15), logger.Nop())

	check, err := v.Validate(context.Background(), budgetRequisition(12_000))
	require.NoError(t, err)

	assert.False(t, check.WithinBudget)
	assert.Nil(t, check.Commit(decimal.NewFromInt(12_000)))
	assert.Equal(t, "Vessel and fleet budgets exceeded", check.Reason)
}

func TestBudgetVesselExceededWithoutFleet(t *testing.T) {
	store := budgetStore("2024-03", 10_000, 3_000, nil, 0, 0)
	v := NewBudgetValidator(store, clock.NewFixed(march15), logger.Nop())

	check, err := v.Validate(context.Background(), budgetRequisition(12_000))
	require.NoError(t, err)
	assert.False(t, check.WithinBudget)
	assert.Contains(t, check.Reason, "no fleet budget")
}

func TestBudgetWinterMultiplier(t *testing.T) {
	jan := time.Date(2024, 1, 20, 0, 0, 0, 0, time.UTC)
	store := budgetStore("2024-01", 10_000, 0, map[string]decimal.Decimal{"winter": decimal.RequireFromString("1.5")}, 0, 0)
	v := NewBudgetValidator(store, clock.NewFixed(jan), logger.Nop())

	check, err := v.Validate(context.Background(), budgetRequisition(14_000))
	require.NoError(t, err)
	assert.True(t, check.AdjustedLimit.Equal(decimal.NewFromInt(15_000)), "adjusted %s", check.AdjustedLimit)
	assert.True(t, check.WithinBudget)
}

func TestSeasonalMultiplier(t *testing.T) {
	table := map[string]decimal.Decimal{
		"Winter":   decimal.RequireFromString("1.5"),
		"february": decimal.RequireFromString("1.1"),
		"summer":   decimal.RequireFromString("0.8"),
	}

	tests := []struct {
		month time.Month
		want  string
	}{
		{time.December, "1.5"},
		{time.January, "1.5"},
		{time.February, "1.1"},
		{time.July, "0.8"},
		{time.April, "1"},
	}
	for _, tt := range tests {
		t.Run(tt.month.String(), func(t *testing.T) {
			m, err := SeasonalMultiplier(table, tt.month)
			require.NoError(t, err)
			assert.True(t, m.Equal(decimal.RequireFromString(tt.want)), "got %s", m)
		})
	}

	m, err := SeasonalMultiplier(nil, time.May)
	require.NoError(t, err)
	assert.True(t, m.Equal(decimal.NewFromInt(1)))

	_, err = SeasonalMultiplier(map[string]decimal.Decimal{"spring": decimal.Zero}, time.May)
	assert.Error(t, err)
}

func TestBudgetMissingVesselBudget(t *testing.T) {
	v := NewBudgetValidator(memory.New(), clock.NewFixed(march15), logger.Nop())

	check, err := v.Validate(context.Background(), budgetRequisition(100))
	require.NoError(t, err)
	assert.False(t, check.WithinBudget)
	assert.Contains(t, check.Reason, "No vessel budget")
}

func TestBudgetCurrencyMismatchFailsClosed(t *testing.T) {
	store := budgetStore("2024-03", 10_000, 0, nil, 0, 0)
	v := NewBudgetValidator(store, clock.NewFixed(march15), logger.Nop())

	req := budgetRequisition(100)
	req.Currency = "EUR"
	_, err := v.Validate(context.Background(), req)
	require.Error(t, err)
	assert.True(t, errors.IsConfiguration(err))
}

func TestBudgetInvalidMultiplierFailsClosed(t *testing.T) {
	store := budgetStore("2024-03", 10_000, 0, map[string]decimal.Decimal{"march": decimal.NewFromInt(-1)}, 0, 0)
	v := NewBudgetValidator(store, clock.NewFixed(march15), logger.Nop())

	_, err := v.Validate(context.Background(), budgetRequisition(100))
	require.Error(t, err)
	assert.True(t, errors.IsConfiguration(err))
}
