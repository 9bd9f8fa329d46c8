package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/pesio-ai/be-proc-requisitions/internal/platform/database"
	"github.com/pesio-ai/be-proc-requisitions/internal/platform/errors"
)

// RequisitionRepository handles requisition data operations
type RequisitionRepository struct {
	db *database.DB
}

// NewRequisitionRepository creates a new requisition repository
func NewRequisitionRepository(db *database.DB) *RequisitionRepository {
	return &RequisitionRepository{db: db}
}

// Create inserts a requisition with its items
func (r *RequisitionRepository) Create(ctx context.Context, req *Requisition) error {
	return r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		query := `
			INSERT INTO requisitions (id, amount, currency, urgency, vessel_id, requested_by_id, status)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING created_at, updated_at
		`
		err := tx.QueryRow(ctx, query,
			req.ID,
			req.Amount,
			req.Currency,
			req.Urgency,
			req.VesselID,
			req.RequestedByID,
			req.Status,
		).Scan(&req.CreatedAt, &req.UpdatedAt)
		if err != nil {
			return errors.Wrap(err, errors.ErrCodeInternal, "failed to create requisition")
		}

		itemQuery := `
			INSERT INTO requisition_items (id, requisition_id, line_number, description, quantity, criticality)
			VALUES ($1, $2, $3, $4, $5, $6)
		`
		for i, item := range req.Items {
			if _, err := tx.Exec(ctx, itemQuery,
				item.ID,
				req.ID,
				i+1,
				item.Description,
				item.Quantity,
				item.Criticality,
			); err != nil {
				return errors.Wrap(err, errors.ErrCodeInternal, "failed to create requisition item")
			}
		}
		return nil
	})
}

// GetByID retrieves a requisition by ID with all items
func (r *RequisitionRepository) GetByID(ctx context.Context, id string) (*Requisition, error) {
	return getRequisition(ctx, r.db, id, false)
}

func getRequisition(ctx context.Context, q database.Querier, id string, forUpdate bool) (*Requisition, error) {
	query := `
		SELECT id, amount, currency, urgency, vessel_id, requested_by_id,
		       status, approval_level, expedited, emergency_override,
		       requires_post_approval, overridden_by, override_reason,
		       approved_at, created_at, updated_at
		FROM requisitions
		WHERE id = $1
	`
	if forUpdate {
		query += " FOR UPDATE"
	}

	req := &Requisition{}
	err := q.QueryRow(ctx, query, id).Scan(
		&req.ID,
		&req.Amount,
		&req.Currency,
		&req.Urgency,
		&req.VesselID,
		&req.RequestedByID,
		&req.Status,
		&req.ApprovalLevel,
		&req.Expedited,
		&req.EmergencyOverride,
		&req.RequiresPostApproval,
		&req.OverriddenBy,
		&req.OverrideReason,
		&req.ApprovedAt,
		&req.CreatedAt,
		&req.UpdatedAt,
	)
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("requisition", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get requisition")
	}

	items, err := getRequisitionItems(ctx, q, id)
	if err != nil {
		return nil, err
	}
	req.Items = items
	return req, nil
}

func getRequisitionItems(ctx context.Context, q database.Querier, requisitionID string) ([]LineItem, error) {
	query := `
		SELECT id, description, quantity, criticality
		FROM requisition_items
		WHERE requisition_id = $1
		ORDER BY line_number
	`

	rows, err := q.Query(ctx, query, requisitionID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get requisition items")
	}
	defer rows.Close()

	var items []LineItem
	for rows.Next() {
		var item LineItem
		if err := rows.Scan(&item.ID, &item.Description, &item.Quantity, &item.Criticality); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan requisition item")
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// updateRequisition applies u if the requisition is still in one of the
// expected statuses. A mismatch is reported as a conflict.
func updateRequisition(ctx context.Context, q database.Querier, u *RequisitionUpdate) error {
	query := `
		UPDATE requisitions
		SET status                 = $2,
		    approval_level         = $3,
		    expedited              = $4,
		    emergency_override     = $5,
		    requires_post_approval = $6,
		    overridden_by          = $7,
		    override_reason        = $8,
		    approved_at            = COALESCE($9, approved_at),
		    updated_at             = $10
		WHERE id = $1
		  AND (cardinality($11::text[]) = 0 OR status = ANY($11::text[]))
		RETURNING id
	`

	expected := make([]string, len(u.ExpectedStatuses))
	for i, s := range u.ExpectedStatuses {
		expected[i] = string(s)
	}

	var returnedID string
	err := q.QueryRow(ctx, query,
		u.ID,
		u.Status,
		u.ApprovalLevel,
		u.Expedited,
		u.EmergencyOverride,
		u.RequiresPostApproval,
		u.OverriddenBy,
		u.OverrideReason,
		u.ApprovedAt,
		u.UpdatedAt,
		expected,
	).Scan(&returnedID)
	if err == pgx.ErrNoRows {
		return errors.Conflict("requisition " + u.ID + " not found or not in expected status")
	}
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to update requisition")
	}
	return nil
}
