package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pesio-ai/be-proc-requisitions/internal/platform/clock"
	"github.com/pesio-ai/be-proc-requisitions/internal/platform/errors"
	"github.com/pesio-ai/be-proc-requisitions/internal/platform/logger"
	"github.com/pesio-ai/be-proc-requisitions/internal/platform/tracing"
	"github.com/pesio-ai/be-proc-requisitions/internal/repository"
)

const reasonVesselExceeded = "Vessel budget exceeded"

// seasons maps calendar months onto the season keys used in seasonal tables.
var seasons = map[time.Month]string{
	time.December:  "winter",
	time.January:   "winter",
	time.February:  "winter",
	time.March:     "spring",
	time.April:     "spring",
	time.May:       "spring",
	time.June:      "summer",
	time.July:      "summer",
	time.August:    "summer",
	time.September: "autumn",
	time.October:   "autumn",
	time.November:  "autumn",
}

// BudgetCheck is the outcome of validating one requisition against the budget hierarchy.
type BudgetCheck struct {
	WithinBudget bool
	Level        repository.BudgetScope
	Escalated    bool
	Reason       string
	Period       string

	// Remaining is the unadjusted headroom (limit minus spent) of the budget
	// that covered the request, before the request is applied.
	Remaining         decimal.Decimal
	AdjustedRemaining decimal.Decimal
	AdjustedLimit     decimal.Decimal
	Multiplier        decimal.Decimal

	budgetID       string
	limit          decimal.Decimal
	vesselBudgetID string
}

// BudgetID is the budget that will be charged on final approval.
func (c *BudgetCheck) BudgetID() string { return c.budgetID }

// Commit returns the guarded increment for amount, or nil when no budget covers it.
func (c *BudgetCheck) Commit(amount decimal.Decimal) *repository.BudgetCommit {
	if c == nil || !c.WithinBudget {
		return nil
	}
	return &repository.BudgetCommit{
		BudgetID: c.budgetID,
		Scope:    c.Level,
		Amount:   amount,
		Limit:    c.limit,
	}
}

// OverspendCommit charges amount to the vessel budget past its limit. It is nil
// when no vessel budget exists to carry the overrun.
func (c *BudgetCheck) OverspendCommit(amount decimal.Decimal) *repository.BudgetCommit {
	if c == nil || c.vesselBudgetID == "" {
		return nil
	}
	return &repository.BudgetCommit{
		BudgetID:  c.vesselBudgetID,
		Scope:     repository.BudgetScopeVessel,
		Amount:    amount,
		Limit:     c.AdjustedLimit,
		Overspend: true,
	}
}

// Shortfall is how far amount overruns the vessel's adjusted headroom.
func (c *BudgetCheck) Shortfall(amount decimal.Decimal) decimal.Decimal {
	if c == nil || c.vesselBudgetID == "" {
		return amount
	}
	if short := amount.Sub(c.AdjustedRemaining); short.IsPositive() {
		return short
	}
	return decimal.Zero
}

// BudgetValidator checks requisitions against the vessel budget and falls back
// to the parent fleet budget.
type BudgetValidator struct {
	store BudgetStore
	clock clock.Clock
	log   *logger.Logger
}

// NewBudgetValidator creates a new BudgetValidator.
func NewBudgetValidator(store BudgetStore, clk clock.Clock, log *logger.Logger) *BudgetValidator {
	return &BudgetValidator{store: store, clock: clk, log: log}
}

// Validate never writes. A missing vessel budget is reported as not covered;
// inconsistent budget data fails with a configuration error.
func (v *BudgetValidator) Validate(ctx context.Context, req *repository.Requisition) (check *BudgetCheck, err error) {
	ctx, span := tracing.StartSpan(ctx, "budget.validate")
	defer func() { tracing.EndSpan(span, err) }()

	now := v.clock.Now()
	period := now.Format("2006-01")
	check = &BudgetCheck{Period: period, Multiplier: decimal.NewFromInt(1)}

	vessel, err := v.store.GetVesselBudget(ctx, req.VesselID, period)
	if err != nil {
		return nil, err
	}
	if vessel == nil {
		v.log.Warn().
			Str("requisition_id", req.ID).
			Str("vessel_id", req.VesselID).
			Str("period", period).
			Msg("No vessel budget configured; requisition is not budget-covered")
		check.Reason = "No vessel budget configured for " + period
		return check, nil
	}
	if !strings.EqualFold(vessel.Currency, req.Currency) {
		return nil, errors.Configuration(fmt.Sprintf(
			"vessel budget %s is in %s but requisition %s is in %s", vessel.ID, vessel.Currency, req.ID, req.Currency))
	}

	multiplier, err := SeasonalMultiplier(vessel.SeasonalAdjustments, now.Month())
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfiguration, "budget "+vessel.ID)
	}
	adjusted := vessel.MonthlyLimit.Mul(multiplier)

	check.Level = repository.BudgetScopeVessel
	check.vesselBudgetID = vessel.ID
	check.Multiplier = multiplier
	check.AdjustedLimit = adjusted
	check.Remaining = vessel.MonthlyLimit.Sub(vessel.CurrentSpent)
	check.AdjustedRemaining = adjusted.Sub(vessel.CurrentSpent)

	if !vessel.CurrentSpent.Add(req.Amount).GreaterThan(adjusted) {
		check.WithinBudget = true
		check.budgetID = vessel.ID
		check.limit = adjusted
		return check, nil
	}

	if vessel.ParentBudgetID == nil {
		check.Reason = reasonVesselExceeded + "; no fleet budget configured"
		return check, nil
	}

	fleet, err := v.store.GetBudget(ctx, *vessel.ParentBudgetID)
	if errors.IsNotFound(err) {
		v.log.Warn().
			Str("vessel_budget_id", vessel.ID).
			Str("fleet_budget_id", *vessel.ParentBudgetID).
			Msg("Parent fleet budget missing")
		check.Reason = reasonVesselExceeded + "; fleet budget missing"
		return check, nil
	}
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(fleet.Currency, req.Currency) {
		return nil, errors.Configuration(fmt.Sprintf(
			"fleet budget %s is in %s but requisition %s is in %s", fleet.ID, fleet.Currency, req.ID, req.Currency))
	}

	if !fleet.CurrentSpent.Add(req.Amount).GreaterThan(fleet.MonthlyLimit) {
		return &BudgetCheck{
			WithinBudget:      true,
			Level:             repository.BudgetScopeFleet,
			Escalated:         true,
			Reason:            reasonVesselExceeded,
			Period:            period,
			Remaining:         fleet.MonthlyLimit.Sub(fleet.CurrentSpent),
			AdjustedRemaining: fleet.MonthlyLimit.Sub(fleet.CurrentSpent),
			AdjustedLimit:     fleet.MonthlyLimit,
			Multiplier:        decimal.NewFromInt(1),
			budgetID:          fleet.ID,
			limit:             fleet.MonthlyLimit,
		}, nil
	}

	check.Reason = "Vessel and fleet budgets exceeded"
	return check, nil
}

// SeasonalMultiplier looks the month up by name first, then by season. Keys
// are case-insensitive; a missing entry means 1.0.
func SeasonalMultiplier(table map[string]decimal.Decimal, month time.Month) (decimal.Decimal, error) {
	one := decimal.NewFromInt(1)
	if len(table) == 0 {
		return one, nil
	}

	for _, key := range []string{strings.ToLower(month.String()), seasons[month]} {
		for k, m := range table {
			if !strings.EqualFold(k, key) {
				continue
			}
			if !m.IsPositive() {
				return decimal.Zero, fmt.Errorf("seasonal multiplier %q must be positive, got %s", k, m)
			}
			return m, nil
		}
	}
	return one, nil
}
