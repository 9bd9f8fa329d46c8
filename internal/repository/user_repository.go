package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/pesio-ai/be-proc-requisitions/internal/platform/database"
	"github.com/pesio-ai/be-proc-requisitions/internal/platform/errors"
)

// UserRepository reads approver identities.
type UserRepository struct {
	db *database.DB
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(db *database.DB) *UserRepository {
	return &UserRepository{db: db}
}

// Upsert creates or updates a user.
func (r *UserRepository) Upsert(ctx context.Context, u *User) error {
	query := `
		INSERT INTO users (id, name, role, vessel_assignments)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE
		SET name = EXCLUDED.name, role = EXCLUDED.role, vessel_assignments = EXCLUDED.vessel_assignments
	`
	if _, err := r.db.Exec(ctx, query, u.ID, u.Name, u.Role, u.VesselAssignments); err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to upsert user")
	}
	return nil
}

// GetByID retrieves a user.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*User, error) {
	query := `SELECT id, name, role, vessel_assignments FROM users WHERE id = $1`

	u := &User{}
	err := r.db.QueryRow(ctx, query, id).Scan(&u.ID, &u.Name, &u.Role, &u.VesselAssignments)
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("user", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to get user")
	}
	return u, nil
}

// FindApprover returns the default holder of role on a vessel, lowest id first.
func (r *UserRepository) FindApprover(ctx context.Context, role Role, vesselID string) (*User, error) {
	query := `
		SELECT id, name, role, vessel_assignments
		FROM users
		WHERE role = $1 AND $2 = ANY(vessel_assignments)
		ORDER BY id ASC
		LIMIT 1
	`

	u := &User{}
	err := r.db.QueryRow(ctx, query, role, vesselID).Scan(&u.ID, &u.Name, &u.Role, &u.VesselAssignments)
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("approver", fmt.Sprintf("%s@%s", role, vesselID))
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to find approver")
	}
	return u, nil
}
