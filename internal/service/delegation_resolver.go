package service

import (
	"context"
	"time"

	"github.com/pesio-ai/be-proc-requisitions/internal/platform/errors"
	"github.com/pesio-ai/be-proc-requisitions/internal/platform/logger"
	"github.com/pesio-ai/be-proc-requisitions/internal/repository"
)

// Resolution names who should act for a role on a vessel at a point in time.
type Resolution struct {
	ApproverID         string
	Delegated          bool
	OriginalApproverID string
	DelegationID       string
	Ambiguous          bool
}

// DelegationResolver maps an approver of record onto an active delegate.
type DelegationResolver struct {
	store DirectoryStore
	log   *logger.Logger
}

// NewDelegationResolver creates a new DelegationResolver.
func NewDelegationResolver(store DirectoryStore, log *logger.Logger) *DelegationResolver {
	return &DelegationResolver{store: store, log: log}
}

// ResolveApprover finds the default holder of role on the vessel and follows
// one active delegation from them, if any.
func (r *DelegationResolver) ResolveApprover(ctx context.Context, role repository.Role, vesselID string, at time.Time) (*Resolution, error) {
	approver, err := r.store.FindApprover(ctx, role, vesselID)
	if errors.IsNotFound(err) {
		return nil, errors.Configuration("no " + string(role) + " assigned to vessel " + vesselID)
	}
	if err != nil {
		return nil, err
	}

	d, ambiguous, err := r.activeDelegation(ctx, approver.ID, vesselID, at)
	if err != nil {
		return nil, err
	}
	if d == nil {
		return &Resolution{ApproverID: approver.ID}, nil
	}
	return &Resolution{
		ApproverID:         d.ToUserID,
		Delegated:          true,
		OriginalApproverID: approver.ID,
		DelegationID:       d.ID,
		Ambiguous:          ambiguous,
	}, nil
}

// CanActFor reports whether actorID currently holds a delegation from
// approverID on the vessel.
func (r *DelegationResolver) CanActFor(ctx context.Context, approverID, actorID, vesselID string, at time.Time) (bool, error) {
	if approverID == actorID {
		return true, nil
	}
	d, _, err := r.activeDelegation(ctx, approverID, vesselID, at)
	if err != nil {
		return false, err
	}
	return d != nil && d.ToUserID == actorID, nil
}

// activeDelegation returns the delegation in force, preferring the most
// recently created when several overlap.
func (r *DelegationResolver) activeDelegation(ctx context.Context, fromUserID, vesselID string, at time.Time) (*repository.Delegation, bool, error) {
	delegations, err := r.store.ListDelegations(ctx, fromUserID, vesselID)
	if err != nil {
		return nil, false, err
	}

	var (
		chosen *repository.Delegation
		active []string
	)
	for _, d := range delegations {
		if d.VesselID != vesselID || d.ToUserID == fromUserID || !d.ActiveAt(at) {
			continue
		}
		active = append(active, d.ID)
		if chosen == nil || d.CreatedAt.After(chosen.CreatedAt) ||
			(d.CreatedAt.Equal(chosen.CreatedAt) && d.ID > chosen.ID) {
			chosen = d
		}
	}

	ambiguous := len(active) > 1
	if ambiguous {
		r.log.Warn().
			Str("from_user_id", fromUserID).
			Str("vessel_id", vesselID).
			Strs("delegation_ids", active).
			Str("chosen", chosen.ID).
			Msg("Overlapping delegations; using the most recently created")
	}
	return chosen, ambiguous, nil
}
