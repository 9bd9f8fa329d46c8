package repository

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/pesio-ai/be-proc-requisitions/internal/platform/database"
	"github.com/pesio-ai/be-proc-requisitions/internal/platform/errors"
)

const budgetColumns = `
	id, scope, owner_id, period, monthly_limit, current_spent, currency,
	seasonal_adjustments, parent_budget_id, created_at, updated_at`

// BudgetRepository reads vessel and fleet budgets.
type BudgetRepository struct {
	db *database.DB
}

// NewBudgetRepository creates a new BudgetRepository.
func NewBudgetRepository(db *database.DB) *BudgetRepository {
	return &BudgetRepository{db: db}
}

// Upsert creates or replaces the budget for (scope, owner, period).
func (r *BudgetRepository) Upsert(ctx context.Context, b *Budget) error {
	adjustments, err := json.Marshal(b.SeasonalAdjustments)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to marshal seasonal adjustments")
	}

	query := `
		INSERT INTO budgets
		    (id, scope, owner_id, period, monthly_limit, current_spent, currency,
		     seasonal_adjustments, parent_budget_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (scope, owner_id, period) DO UPDATE
		SET monthly_limit        = EXCLUDED.monthly_limit,
		    currency             = EXCLUDED.currency,
		    seasonal_adjustments = EXCLUDED.seasonal_adjustments,
		    parent_budget_id     = EXCLUDED.parent_budget_id,
		    updated_at           = NOW()
		RETURNING id, created_at, updated_at
	`

	return r.db.QueryRow(ctx, query,
		b.ID,
		b.Scope,
		b.OwnerID,
		b.Period,
		b.MonthlyLimit,
		b.CurrentSpent,
		b.Currency,
		adjustments,
		b.ParentBudgetID,
	).Scan(&b.ID, &b.CreatedAt, &b.UpdatedAt)
}

// GetByID retrieves a budget by primary key.
func (r *BudgetRepository) GetByID(ctx context.Context, id string) (*Budget, error) {
	query := `SELECT ` + budgetColumns + ` FROM budgets WHERE id = $1`

	b, err := scanBudget(r.db.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("budget", id)
	}
	return b, err
}

// GetVesselBudget returns the vessel budget for a period, or nil if none is configured.
func (r *BudgetRepository) GetVesselBudget(ctx context.Context, vesselID, period string) (*Budget, error) {
	query := `SELECT ` + budgetColumns + `
		FROM budgets
		WHERE scope = 'VESSEL' AND owner_id = $1 AND period = $2`

	b, err := scanBudget(r.db.QueryRow(ctx, query, vesselID, period))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return b, err
}

// commitBudget adds c.Amount to the budget's spend unless that would exceed
// c.Limit. The guard is part of the UPDATE so concurrent commits serialise on
// the row and can never jointly overspend.
func commitBudget(ctx context.Context, q database.Querier, c *BudgetCommit) error {
	if c.Overspend {
		return overspendBudget(ctx, q, c)
	}
	query := `
		UPDATE budgets
		SET current_spent = current_spent + $2,
		    updated_at    = NOW()
		WHERE id = $1
		  AND current_spent + $2 <= $3
		RETURNING id
	`

	var returnedID string
	err := q.QueryRow(ctx, query, c.BudgetID, c.Amount, c.Limit).Scan(&returnedID)
	if err == pgx.ErrNoRows {
		return errors.BudgetExceeded("budget " + c.BudgetID + " cannot absorb " + c.Amount.String())
	}
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to commit budget")
	}
	return nil
}

// overspendBudget records an authorized overrun. The increment is still a single
// row update, so concurrent commits serialise on the row.
func overspendBudget(ctx context.Context, q database.Querier, c *BudgetCommit) error {
	query := `
		UPDATE budgets
		SET current_spent = current_spent + $2,
		    updated_at    = NOW()
		WHERE id = $1
		RETURNING id
	`

	var returnedID string
	err := q.QueryRow(ctx, query, c.BudgetID, c.Amount).Scan(&returnedID)
	if err == pgx.ErrNoRows {
		return errors.NotFound("budget", c.BudgetID)
	}
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to commit budget overspend")
	}
	return nil
}

// ── scan helpers ──────────────────────────────────────────────────────────────

type budgetScanner interface {
	Scan(dest ...any) error
}

func scanBudget(row budgetScanner) (*Budget, error) {
	b := &Budget{}
	var adjustments []byte
	err := row.Scan(
		&b.ID,
		&b.Scope,
		&b.OwnerID,
		&b.Period,
		&b.MonthlyLimit,
		&b.CurrentSpent,
		&b.Currency,
		&adjustments,
		&b.ParentBudgetID,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, err
		}
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan budget")
	}

	if len(adjustments) > 0 {
		b.SeasonalAdjustments = make(map[string]decimal.Decimal)
		if err := json.Unmarshal(adjustments, &b.SeasonalAdjustments); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeConfiguration, "invalid seasonal adjustments on budget "+b.ID)
		}
	}
	return b, nil
}
