package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/pesio-ai/be-proc-requisitions/internal/platform/database"
	"github.com/pesio-ai/be-proc-requisitions/internal/platform/errors"
)

// activeApprovalConstraint guarantees one PENDING/DELEGATED record per requisition.
const activeApprovalConstraint = "uq_approval_records_active"

const approvalColumns = `
	id, requisition_id, vessel_id, level, purpose, chain, tier,
	assigned_to, status, reason,
	delegated_to, delegated_at, delegation_reason, original_approver_id,
	escalated_from, escalation_deadline,
	acted_by, acted_at, notes,
	created_at, updated_at`

// ApprovalRecordRepository handles reads on approval records. Writes go through
// Store.ApplyTransition so they commit together with the requisition change.
type ApprovalRecordRepository struct {
	db *database.DB
}

// NewApprovalRecordRepository creates a new ApprovalRecordRepository.
func NewApprovalRecordRepository(db *database.DB) *ApprovalRecordRepository {
	return &ApprovalRecordRepository{db: db}
}

// GetByID retrieves an approval record by primary key.
func (r *ApprovalRecordRepository) GetByID(ctx context.Context, id string) (*ApprovalRecord, error) {
	query := `SELECT ` + approvalColumns + ` FROM approval_records WHERE id = $1`

	rec, err := scanApproval(r.db.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("approval_record", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get approval record")
	}
	return rec, nil
}

// GetActive returns the record awaiting a decision for a requisition.
// Returns nil when none exists.
func (r *ApprovalRecordRepository) GetActive(ctx context.Context, requisitionID string) (*ApprovalRecord, error) {
	query := `SELECT ` + approvalColumns + `
		FROM approval_records
		WHERE requisition_id = $1
		  AND status IN ('PENDING', 'DELEGATED')`

	rec, err := scanApproval(r.db.QueryRow(ctx, query, requisitionID))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get active approval")
	}
	return rec, nil
}

// ListByRequisition returns the full approval history of a requisition, oldest first.
func (r *ApprovalRecordRepository) ListByRequisition(ctx context.Context, requisitionID string) ([]*ApprovalRecord, error) {
	query := `SELECT ` + approvalColumns + `
		FROM approval_records
		WHERE requisition_id = $1
		ORDER BY created_at ASC, tier ASC`

	rows, err := r.db.Query(ctx, query, requisitionID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list approval records")
	}
	defer rows.Close()
	return scanApprovalRows(rows)
}

// ListPendingForUser returns active records the user currently holds: delegated
// to them, or assigned to them and not handed on.
func (r *ApprovalRecordRepository) ListPendingForUser(ctx context.Context, userID string) ([]*ApprovalRecord, error) {
	query := `SELECT ` + approvalColumns + `
		FROM approval_records
		WHERE status IN ('PENDING', 'DELEGATED')
		  AND COALESCE(delegated_to, assigned_to) = $1
		ORDER BY escalation_deadline ASC`

	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get pending approvals")
	}
	defer rows.Close()
	return scanApprovalRows(rows)
}

// ListOverdue returns active records whose deadline has passed, earliest first.
func (r *ApprovalRecordRepository) ListOverdue(ctx context.Context, at time.Time, limit int) ([]*ApprovalRecord, error) {
	query := `SELECT ` + approvalColumns + `
		FROM approval_records
		WHERE status IN ('PENDING', 'DELEGATED')
		  AND escalation_deadline < $1
		ORDER BY escalation_deadline ASC, id ASC
		LIMIT $2`

	rows, err := r.db.Query(ctx, query, at, limit)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list overdue approvals")
	}
	defer rows.Close()
	return scanApprovalRows(rows)
}

func insertApproval(ctx context.Context, q database.Querier, a *ApprovalRecord) error {
	query := `
		INSERT INTO approval_records
		    (id, requisition_id, vessel_id, level, purpose, chain, tier,
		     assigned_to, status, reason,
		     delegated_to, delegated_at, delegation_reason, original_approver_id,
		     escalated_from, escalation_deadline, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7,
		        $8, $9, $10,
		        $11, $12, $13, $14,
		        $15, $16, $17, $18)
	`

	chain := make([]string, len(a.Chain))
	for i, l := range a.Chain {
		chain[i] = string(l)
	}

	_, err := q.Exec(ctx, query,
		a.ID,
		a.RequisitionID,
		a.VesselID,
		a.Level,
		a.Purpose,
		chain,
		a.Tier,
		a.AssignedTo,
		a.Status,
		a.Reason,
		a.DelegatedTo,
		a.DelegatedAt,
		a.DelegationReason,
		a.OriginalApproverID,
		a.EscalatedFrom,
		a.EscalationDeadline,
		a.CreatedAt,
		a.UpdatedAt,
	)
	if database.IsUniqueViolation(err, activeApprovalConstraint) {
		return errors.Conflict("requisition " + a.RequisitionID + " already has an active approval")
	}
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to create approval record")
	}
	return nil
}

// updateApproval applies u only while the record is still in u.ExpectedStatus.
func updateApproval(ctx context.Context, q database.Querier, u *ApprovalUpdate) error {
	query := `
		UPDATE approval_records
		SET status               = $3,
		    acted_by             = COALESCE($4, acted_by),
		    acted_at             = COALESCE($5, acted_at),
		    notes                = COALESCE($6, notes),
		    delegated_to         = COALESCE($7, delegated_to),
		    delegated_at         = CASE WHEN $7::text IS NULL THEN delegated_at ELSE $9 END,
		    delegation_reason    = COALESCE($8, delegation_reason),
		    original_approver_id = COALESCE($10, original_approver_id),
		    updated_at           = $9
		WHERE id = $1
		  AND status = $2
		RETURNING id
	`

	var returnedID string
	err := q.QueryRow(ctx, query,
		u.ID,
		u.ExpectedStatus,
		u.Status,
		u.ActedBy,
		u.ActedAt,
		u.Notes,
		u.DelegatedTo,
		u.DelegationReason,
		u.UpdatedAt,
		u.OriginalApproverID,
	).Scan(&returnedID)
	if err == pgx.ErrNoRows {
		return errors.Conflict("approval record " + u.ID + " not found or no longer " + string(u.ExpectedStatus))
	}
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to update approval record")
	}
	return nil
}

// ── scan helpers ──────────────────────────────────────────────────────────────

type approvalScanner interface {
	Scan(dest ...any) error
}

func scanApproval(row approvalScanner) (*ApprovalRecord, error) {
	a := &ApprovalRecord{}
	var chain []string
	err := row.Scan(
		&a.ID,
		&a.RequisitionID,
		&a.VesselID,
		&a.Level,
		&a.Purpose,
		&chain,
		&a.Tier,
		&a.AssignedTo,
		&a.Status,
		&a.Reason,
		&a.DelegatedTo,
		&a.DelegatedAt,
		&a.DelegationReason,
		&a.OriginalApproverID,
		&a.EscalatedFrom,
		&a.EscalationDeadline,
		&a.ActedBy,
		&a.ActedAt,
		&a.Notes,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	a.Chain = make([]ApprovalLevel, len(chain))
	for i, l := range chain {
		a.Chain[i] = ApprovalLevel(l)
	}
	return a, nil
}

func scanApprovalRows(rows pgx.Rows) ([]*ApprovalRecord, error) {
	var records []*ApprovalRecord
	for rows.Next() {
		a, err := scanApproval(rows)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan approval record")
		}
		records = append(records, a)
	}
	return records, rows.Err()
}
