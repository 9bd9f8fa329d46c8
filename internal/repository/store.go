package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/pesio-ai/be-proc-requisitions/internal/platform/database"
)

// Store is the postgres-backed data store used by the approval services. It
// exposes the same method set as memory.Store.
type Store struct {
	db *database.DB

	Requisitions *RequisitionRepository
	Approvals    *ApprovalRecordRepository
	Budgets      *BudgetRepository
	Delegations  *DelegationRepository
	Users        *UserRepository
	Audit        *ApprovalAuditRepository
	Rules        *WorkflowRuleRepository
}

// NewStore wires every repository onto one pool.
func NewStore(db *database.DB) *Store {
	return &Store{
		db:           db,
		Requisitions: NewRequisitionRepository(db),
		Approvals:    NewApprovalRecordRepository(db),
		Budgets:      NewBudgetRepository(db),
		Delegations:  NewDelegationRepository(db),
		Users:        NewUserRepository(db),
		Audit:        NewApprovalAuditRepository(db),
		Rules:        NewWorkflowRuleRepository(db),
	}
}

// ApplyTransition writes every part of t in one transaction. The approval and
// requisition updates are compare-and-swap on status, the new record is guarded
// by the active-record unique index, and the budget commit is a guarded
// increment, so any lost race rolls the whole transition back.
func (s *Store) ApplyTransition(ctx context.Context, t *Transition) error {
	return s.db.InTransaction(ctx, func(tx pgx.Tx) error {
		if t.Approval != nil {
			if err := updateApproval(ctx, tx, t.Approval); err != nil {
				return err
			}
		}
		if t.Requisition != nil {
			if err := updateRequisition(ctx, tx, t.Requisition); err != nil {
				return err
			}
		}
		if t.Create != nil {
			if err := insertApproval(ctx, tx, t.Create); err != nil {
				return err
			}
		}
		if t.Commit != nil {
			if err := commitBudget(ctx, tx, t.Commit); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) GetRequisition(ctx context.Context, id string) (*Requisition, error) {
	return s.Requisitions.GetByID(ctx, id)
}

func (s *Store) GetUser(ctx context.Context, id string) (*User, error) {
	return s.Users.GetByID(ctx, id)
}

func (s *Store) FindApprover(ctx context.Context, role Role, vesselID string) (*User, error) {
	return s.Users.FindApprover(ctx, role, vesselID)
}

func (s *Store) ListDelegations(ctx context.Context, fromUserID, vesselID string) ([]*Delegation, error) {
	return s.Delegations.ListByDelegator(ctx, fromUserID, vesselID)
}

func (s *Store) GetApproval(ctx context.Context, id string) (*ApprovalRecord, error) {
	return s.Approvals.GetByID(ctx, id)
}

func (s *Store) GetActiveApproval(ctx context.Context, requisitionID string) (*ApprovalRecord, error) {
	return s.Approvals.GetActive(ctx, requisitionID)
}

func (s *Store) ListApprovals(ctx context.Context, requisitionID string) ([]*ApprovalRecord, error) {
	return s.Approvals.ListByRequisition(ctx, requisitionID)
}

func (s *Store) ListPendingForUser(ctx context.Context, userID string) ([]*ApprovalRecord, error) {
	return s.Approvals.ListPendingForUser(ctx, userID)
}

func (s *Store) ListOverdueApprovals(ctx context.Context, at time.Time, limit int) ([]*ApprovalRecord, error) {
	return s.Approvals.ListOverdue(ctx, at, limit)
}

func (s *Store) GetBudget(ctx context.Context, id string) (*Budget, error) {
	return s.Budgets.GetByID(ctx, id)
}

func (s *Store) GetVesselBudget(ctx context.Context, vesselID, period string) (*Budget, error) {
	return s.Budgets.GetVesselBudget(ctx, vesselID, period)
}

func (s *Store) AppendAudit(ctx context.Context, entry *AuditEntry) error {
	return s.Audit.Append(ctx, entry)
}

func (s *Store) ListAudit(ctx context.Context, requisitionID string) ([]*AuditEntry, error) {
	return s.Audit.ListByRequisition(ctx, requisitionID)
}
