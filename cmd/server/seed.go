package main

import (
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/pesio-ai/be-proc-requisitions/internal/repository"
	"github.com/pesio-ai/be-proc-requisitions/internal/repository/memory"
)

// seedFile is the fixture format accepted by serve --memory --seed.
type seedFile struct {
	Users []struct {
		ID      string          `yaml:"id"`
		Name    string          `yaml:"name"`
		Role    repository.Role `yaml:"role"`
		Vessels []string        `yaml:"vessels"`
	} `yaml:"users"`
	Budgets []struct {
		ID       string                     `yaml:"id"`
		Scope    repository.BudgetScope     `yaml:"scope"`
		OwnerID  string                     `yaml:"owner_id"`
		Period   string                     `yaml:"period"`
		Limit    decimal.Decimal            `yaml:"monthly_limit"`
		Spent    decimal.Decimal            `yaml:"current_spent"`
		Currency string                     `yaml:"currency"`
		Seasonal map[string]decimal.Decimal `yaml:"seasonal_adjustments"`
		Parent   string                     `yaml:"parent_budget_id"`
	} `yaml:"budgets"`
	Delegations []struct {
		ID     string    `yaml:"id"`
		From   string    `yaml:"from_user_id"`
		To     string    `yaml:"to_user_id"`
		Vessel string    `yaml:"vessel_id"`
		Start  time.Time `yaml:"start_date"`
		End    time.Time `yaml:"end_date"`
		Reason string    `yaml:"reason"`
	} `yaml:"delegations"`
	Requisitions []struct {
		ID          string             `yaml:"id"`
		Amount      decimal.Decimal    `yaml:"amount"`
		Currency    string             `yaml:"currency"`
		Urgency     repository.Urgency `yaml:"urgency"`
		VesselID    string             `yaml:"vessel_id"`
		RequestedBy string             `yaml:"requested_by"`
		Items       []struct {
			Description string                 `yaml:"description"`
			Quantity    decimal.Decimal        `yaml:"quantity"`
			Criticality repository.Criticality `yaml:"criticality"`
		} `yaml:"items"`
	} `yaml:"requisitions"`
}

// loadSeed reads a YAML fixture into the store. Budgets without a period are
// placed in the current month.
func loadSeed(store *memory.Store, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read seed file: %w", err)
	}
	var seed seedFile
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return fmt.Errorf("parse seed file %s: %w", path, err)
	}

	now := time.Now().UTC()
	for _, u := range seed.Users {
		store.PutUser(&repository.User{ID: u.ID, Name: u.Name, Role: u.Role, VesselAssignments: u.Vessels})
	}
	for _, b := range seed.Budgets {
		period := b.Period
		if period == "" {
			period = now.Format("2006-01")
		}
		budget := &repository.Budget{
			ID:                  b.ID,
			Scope:               b.Scope,
			OwnerID:             b.OwnerID,
			Period:              period,
			MonthlyLimit:        b.Limit,
			CurrentSpent:        b.Spent,
			Currency:            b.Currency,
			SeasonalAdjustments: b.Seasonal,
			CreatedAt:           now,
			UpdatedAt:           now,
		}
		if b.Parent != "" {
			parent := b.Parent
			budget.ParentBudgetID = &parent
		}
		store.PutBudget(budget)
	}
	for _, d := range seed.Delegations {
		store.PutDelegation(&repository.Delegation{
			ID:         d.ID,
			FromUserID: d.From,
			ToUserID:   d.To,
			VesselID:   d.Vessel,
			StartDate:  d.Start,
			EndDate:    d.End,
			Reason:     d.Reason,
			CreatedAt:  now,
		})
	}
	for _, r := range seed.Requisitions {
		req := &repository.Requisition{
			ID:            r.ID,
			Amount:        r.Amount,
			Currency:      r.Currency,
			Urgency:       r.Urgency,
			VesselID:      r.VesselID,
			RequestedByID: r.RequestedBy,
			Status:        repository.RequisitionDraft,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		for i, item := range r.Items {
			req.Items = append(req.Items, repository.LineItem{
				ID:          fmt.Sprintf("%s-%d", r.ID, i+1),
				Description: item.Description,
				Quantity:    item.Quantity,
				Criticality: item.Criticality,
			})
		}
		store.PutRequisition(req)
	}
	return nil
}
