package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pesio-ai/be-proc-requisitions/internal/platform/database"
	"github.com/pesio-ai/be-proc-requisitions/internal/platform/errors"
)

// WorkflowRuleRow is a stored workflow rule. Condition and Action are kept as
// raw JSON; the rules package parses and validates them.
type WorkflowRuleRow struct {
	ID        string
	Name      string
	Priority  int
	Condition json.RawMessage
	Action    json.RawMessage
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// WorkflowRuleRepository handles CRUD for workflow_rules.
type WorkflowRuleRepository struct {
	db *database.DB
}

// NewWorkflowRuleRepository creates a new WorkflowRuleRepository.
func NewWorkflowRuleRepository(db *database.DB) *WorkflowRuleRepository {
	return &WorkflowRuleRepository{db: db}
}

// Upsert inserts or replaces a rule.
func (r *WorkflowRuleRepository) Upsert(ctx context.Context, rule *WorkflowRuleRow) error {
	query := `
		INSERT INTO workflow_rules (id, name, priority, condition, action, is_active)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE
		SET name       = EXCLUDED.name,
		    priority   = EXCLUDED.priority,
		    condition  = EXCLUDED.condition,
		    action     = EXCLUDED.action,
		    is_active  = EXCLUDED.is_active,
		    updated_at = NOW()
		RETURNING created_at, updated_at
	`

	return r.db.QueryRow(ctx, query,
		rule.ID,
		rule.Name,
		rule.Priority,
		[]byte(rule.Condition),
		[]byte(rule.Action),
		rule.IsActive,
	).Scan(&rule.CreatedAt, &rule.UpdatedAt)
}

// ListActive returns active rules ordered by priority.
func (r *WorkflowRuleRepository) ListActive(ctx context.Context) ([]*WorkflowRuleRow, error) {
	query := `
		SELECT id, name, priority, condition, action, is_active, created_at, updated_at
		FROM workflow_rules
		WHERE is_active = TRUE
		ORDER BY priority ASC, name ASC
	`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list workflow rules")
	}
	defer rows.Close()

	var out []*WorkflowRuleRow
	for rows.Next() {
		rule, err := scanRuleRow(rows)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan workflow rule")
		}
		out = append(out, rule)
	}
	return out, rows.Err()
}

// Deactivate disables a rule without deleting it.
func (r *WorkflowRuleRepository) Deactivate(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `UPDATE workflow_rules SET is_active = FALSE, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to deactivate workflow rule")
	}
	if tag.RowsAffected() == 0 {
		return errors.NotFound("workflow_rule", id)
	}
	return nil
}

type ruleScanner interface {
	Scan(dest ...any) error
}

func scanRuleRow(row ruleScanner) (*WorkflowRuleRow, error) {
	rule := &WorkflowRuleRow{}
	var condition, action []byte
	if err := row.Scan(
		&rule.ID,
		&rule.Name,
		&rule.Priority,
		&condition,
		&action,
		&rule.IsActive,
		&rule.CreatedAt,
		&rule.UpdatedAt,
	); err != nil {
		return nil, err
	}
	rule.Condition = condition
	rule.Action = action
	return rule, nil
}
