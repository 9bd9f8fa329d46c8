package repository

import (
	"context"

	"github.com/pesio-ai/be-proc-requisitions/internal/platform/database"
	"github.com/pesio-ai/be-proc-requisitions/internal/platform/errors"
)

// DelegationRepository stores approver delegations.
type DelegationRepository struct {
	db *database.DB
}

// NewDelegationRepository creates a new DelegationRepository.
func NewDelegationRepository(db *database.DB) *DelegationRepository {
	return &DelegationRepository{db: db}
}

// Create inserts a delegation.
func (r *DelegationRepository) Create(ctx context.Context, d *Delegation) error {
	query := `
		INSERT INTO delegations (id, from_user_id, to_user_id, vessel_id, start_date, end_date, reason)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`
	err := r.db.QueryRow(ctx, query,
		d.ID, d.FromUserID, d.ToUserID, d.VesselID, d.StartDate, d.EndDate, d.Reason,
	).Scan(&d.CreatedAt)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to create delegation")
	}
	return nil
}

// ListByDelegator returns every delegation the user has granted on a vessel.
// Window filtering is left to the resolver, which needs to see overlaps.
func (r *DelegationRepository) ListByDelegator(ctx context.Context, fromUserID, vesselID string) ([]*Delegation, error) {
	query := `
		SELECT id, from_user_id, to_user_id, vessel_id, start_date, end_date, reason, created_at
		FROM delegations
		WHERE from_user_id = $1 AND vessel_id = $2
		ORDER BY created_at ASC
	`

	rows, err := r.db.Query(ctx, query, fromUserID, vesselID)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to list delegations")
	}
	defer rows.Close()

	var out []*Delegation
	for rows.Next() {
		d := &Delegation{}
		if err := rows.Scan(&d.ID, &d.FromUserID, &d.ToUserID, &d.VesselID,
			&d.StartDate, &d.EndDate, &d.Reason, &d.CreatedAt); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to scan delegation")
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
