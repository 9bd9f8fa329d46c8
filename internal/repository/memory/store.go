// Package memory is an in-process implementation of the approval data store.
// Every method copies snapshots in and out, and ApplyTransition runs under a
// single lock, so it honours the same atomicity and compare-and-swap contract
// as the postgres store.
package memory

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/pesio-ai/be-proc-requisitions/internal/platform/errors"
	"github.com/pesio-ai/be-proc-requisitions/internal/repository"
)

// Store keeps all entities in maps guarded by one mutex.
type Store struct {
	mu sync.RWMutex

	requisitions map[string]*repository.Requisition
	approvals    map[string]*repository.ApprovalRecord
	budgets      map[string]*repository.Budget
	users        map[string]*repository.User
	delegations  []*repository.Delegation
	audit        []*repository.AuditEntry

	auditSeq int
	// FailAudit makes AppendAudit return an error; used to exercise non-fatal audit paths.
	FailAudit bool
}

// New returns an empty store.
func New() *Store {
	return &Store{
		requisitions: make(map[string]*repository.Requisition),
		approvals:    make(map[string]*repository.ApprovalRecord),
		budgets:      make(map[string]*repository.Budget),
		users:        make(map[string]*repository.User),
	}
}

// ── seeding ──────────────────────────────────────────────────────────────────

func (s *Store) PutRequisition(r *repository.Requisition) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requisitions[r.ID] = cloneRequisition(r)
}

func (s *Store) PutBudget(b *repository.Budget) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.budgets[b.ID] = cloneBudget(b)
}

func (s *Store) PutUser(u *repository.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = cloneUser(u)
}

func (s *Store) PutDelegation(d *repository.Delegation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *d
	s.delegations = append(s.delegations, &cp)
}

func (s *Store) PutApproval(a *repository.ApprovalRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.approvals[a.ID] = cloneApproval(a)
}

// ── reads ────────────────────────────────────────────────────────────────────

func (s *Store) GetRequisition(_ context.Context, id string) (*repository.Requisition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.requisitions[id]
	if !ok {
		return nil, errors.NotFound("requisition", id)
	}
	return cloneRequisition(r), nil
}

func (s *Store) GetUser(_ context.Context, id string) (*repository.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, errors.NotFound("user", id)
	}
	return cloneUser(u), nil
}

// FindApprover returns the default approver holding role on the vessel: the
// assigned user with the lowest id, so the choice is stable.
func (s *Store) FindApprover(_ context.Context, role repository.Role, vesselID string) (*repository.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var found *repository.User
	for _, u := range s.users {
		if u.Role != role || !u.AssignedTo(vesselID) {
			continue
		}
		if found == nil || u.ID < found.ID {
			found = u
		}
	}
	if found == nil {
		return nil, errors.NotFound("approver", fmt.Sprintf("%s@%s", role, vesselID))
	}
	return cloneUser(found), nil
}

func (s *Store) ListDelegations(_ context.Context, fromUserID, vesselID string) ([]*repository.Delegation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*repository.Delegation
	for _, d := range s.delegations {
		if d.FromUserID == fromUserID && d.VesselID == vesselID {
			cp := *d
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *Store) GetApproval(_ context.Context, id string) (*repository.ApprovalRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.approvals[id]
	if !ok {
		return nil, errors.NotFound("approval_record", id)
	}
	return cloneApproval(a), nil
}

// GetActiveApproval returns the PENDING/DELEGATED record for a requisition, or nil.
func (s *Store) GetActiveApproval(_ context.Context, requisitionID string) (*repository.ApprovalRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if a := s.activeFor(requisitionID); a != nil {
		return cloneApproval(a), nil
	}
	return nil, nil
}

// ListApprovals returns every record of a requisition, oldest first.
func (s *Store) ListApprovals(_ context.Context, requisitionID string) ([]*repository.ApprovalRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*repository.ApprovalRecord
	for _, a := range s.approvals {
		if a.RequisitionID == requisitionID {
			out = append(out, cloneApproval(a))
		}
	}
	sortByCreated(out)
	return out, nil
}

// ListPendingForUser returns active records the user currently holds.
func (s *Store) ListPendingForUser(_ context.Context, userID string) ([]*repository.ApprovalRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*repository.ApprovalRecord
	for _, a := range s.approvals {
		if !a.Status.Active() {
			continue
		}
		holder := a.AssignedTo
		if a.DelegatedTo != nil {
			holder = *a.DelegatedTo
		}
		if holder == userID {
			out = append(out, cloneApproval(a))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EscalationDeadline.Before(out[j].EscalationDeadline) })
	return out, nil
}

// ListOverdueApprovals returns active records whose deadline is before at,
// earliest deadline first, at most limit records.
func (s *Store) ListOverdueApprovals(_ context.Context, at time.Time, limit int) ([]*repository.ApprovalRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*repository.ApprovalRecord
	for _, a := range s.approvals {
		if a.Status.Active() && a.EscalationDeadline.Before(at) {
			out = append(out, cloneApproval(a))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].EscalationDeadline.Equal(out[j].EscalationDeadline) {
			return out[i].ID < out[j].ID
		}
		return out[i].EscalationDeadline.Before(out[j].EscalationDeadline)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) GetBudget(_ context.Context, id string) (*repository.Budget, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.budgets[id]
	if !ok {
		return nil, errors.NotFound("budget", id)
	}
	return cloneBudget(b), nil
}

// GetVesselBudget returns the vessel budget for the period, or nil when none is configured.
func (s *Store) GetVesselBudget(_ context.Context, vesselID, period string) (*repository.Budget, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, b := range s.budgets {
		if b.Scope == repository.BudgetScopeVessel && b.OwnerID == vesselID && b.Period == period {
			return cloneBudget(b), nil
		}
	}
	return nil, nil
}

// ListAudit returns the audit trail of a requisition in append order.
func (s *Store) ListAudit(_ context.Context, requisitionID string) ([]*repository.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*repository.AuditEntry
	for _, e := range s.audit {
		if e.RequisitionID == requisitionID {
			cp := *e
			cp.Metadata = maps.Clone(e.Metadata)
			out = append(out, &cp)
		}
	}
	return out, nil
}

// ── writes ───────────────────────────────────────────────────────────────────

func (s *Store) AppendAudit(_ context.Context, entry *repository.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailAudit {
		return errors.New(errors.ErrCodeInternal, "audit log unavailable")
	}
	s.auditSeq++
	cp := *entry
	cp.ID = fmt.Sprintf("audit-%d", s.auditSeq)
	cp.Metadata = maps.Clone(entry.Metadata)
	s.audit = append(s.audit, &cp)
	entry.ID = cp.ID
	return nil
}

// ApplyTransition validates every precondition first and only then mutates, so
// a failed transition leaves the store untouched.
func (s *Store) ApplyTransition(_ context.Context, t *repository.Transition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var approval *repository.ApprovalRecord
	if u := t.Approval; u != nil {
		a, ok := s.approvals[u.ID]
		if !ok {
			return errors.NotFound("approval_record", u.ID)
		}
		if a.Status != u.ExpectedStatus {
			return errors.Conflict(fmt.Sprintf("approval record %s is %s, expected %s", u.ID, a.Status, u.ExpectedStatus))
		}
		approval = a
	}

	var requisition *repository.Requisition
	if u := t.Requisition; u != nil {
		r, ok := s.requisitions[u.ID]
		if !ok {
			return errors.NotFound("requisition", u.ID)
		}
		if len(u.ExpectedStatuses) > 0 && !slices.Contains(u.ExpectedStatuses, r.Status) {
			return errors.Conflict(fmt.Sprintf("requisition %s is %s", u.ID, r.Status))
		}
		requisition = r
	}

	if c := t.Create; c != nil {
		if existing := s.activeFor(c.RequisitionID); existing != nil && (approval == nil || existing.ID != approval.ID) {
			return errors.Conflict(fmt.Sprintf("requisition %s already has active approval %s", c.RequisitionID, existing.ID))
		}
		if _, dup := s.approvals[c.ID]; dup {
			return errors.Conflict(fmt.Sprintf("approval record %s already exists", c.ID))
		}
	}

	var budget *repository.Budget
	if c := t.Commit; c != nil {
		b, ok := s.budgets[c.BudgetID]
		if !ok {
			return errors.NotFound("budget", c.BudgetID)
		}
		if !c.Overspend && b.CurrentSpent.Add(c.Amount).GreaterThan(c.Limit) {
			return errors.BudgetExceeded(fmt.Sprintf("budget %s cannot absorb %s", b.ID, c.Amount))
		}
		budget = b
	}

	if approval != nil {
		applyApprovalUpdate(approval, t.Approval)
	}
	if requisition != nil {
		applyRequisitionUpdate(requisition, t.Requisition)
	}
	if t.Create != nil {
		s.approvals[t.Create.ID] = cloneApproval(t.Create)
	}
	if budget != nil {
		budget.CurrentSpent = budget.CurrentSpent.Add(t.Commit.Amount)
	}
	return nil
}

func (s *Store) activeFor(requisitionID string) *repository.ApprovalRecord {
	for _, a := range s.approvals {
		if a.RequisitionID == requisitionID && a.Status.Active() {
			return a
		}
	}
	return nil
}

func applyApprovalUpdate(a *repository.ApprovalRecord, u *repository.ApprovalUpdate) {
	a.Status = u.Status
	if u.ActedBy != nil {
		a.ActedBy = u.ActedBy
		a.ActedAt = u.ActedAt
	}
	if u.Notes != nil {
		a.Notes = u.Notes
	}
	if u.DelegatedTo != nil {
		a.DelegatedTo = u.DelegatedTo
		a.DelegationReason = u.DelegationReason
		a.OriginalApproverID = u.OriginalApproverID
		at := u.UpdatedAt
		a.DelegatedAt = &at
	}
	a.UpdatedAt = u.UpdatedAt
}

func applyRequisitionUpdate(r *repository.Requisition, u *repository.RequisitionUpdate) {
	r.Status = u.Status
	r.ApprovalLevel = u.ApprovalLevel
	r.Expedited = u.Expedited
	r.EmergencyOverride = u.EmergencyOverride
	r.RequiresPostApproval = u.RequiresPostApproval
	r.OverriddenBy = u.OverriddenBy
	r.OverrideReason = u.OverrideReason
	if u.ApprovedAt != nil {
		r.ApprovedAt = u.ApprovedAt
	}
	r.UpdatedAt = u.UpdatedAt
}

// ── copy helpers ─────────────────────────────────────────────────────────────

func cloneRequisition(r *repository.Requisition) *repository.Requisition {
	cp := *r
	cp.Items = slices.Clone(r.Items)
	return &cp
}

func cloneApproval(a *repository.ApprovalRecord) *repository.ApprovalRecord {
	cp := *a
	cp.Chain = slices.Clone(a.Chain)
	return &cp
}

func cloneBudget(b *repository.Budget) *repository.Budget {
	cp := *b
	cp.SeasonalAdjustments = maps.Clone(b.SeasonalAdjustments)
	return &cp
}

func cloneUser(u *repository.User) *repository.User {
	cp := *u
	cp.VesselAssignments = slices.Clone(u.VesselAssignments)
	return &cp
}

func sortByCreated(records []*repository.ApprovalRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].CreatedAt.Equal(records[j].CreatedAt) {
			return records[i].Tier < records[j].Tier
		}
		return records[i].CreatedAt.Before(records[j].CreatedAt)
	})
}
