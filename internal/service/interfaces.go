package service

import (
	"context"
	"time"

	"github.com/pesio-ai/be-proc-requisitions/internal/repository"
)

// BudgetStore reads the budgets the validator works on.
type BudgetStore interface {
	GetBudget(ctx context.Context, id string) (*repository.Budget, error)
	GetVesselBudget(ctx context.Context, vesselID, period string) (*repository.Budget, error)
}

// DirectoryStore resolves users and their delegations.
type DirectoryStore interface {
	GetUser(ctx context.Context, id string) (*repository.User, error)
	FindApprover(ctx context.Context, role repository.Role, vesselID string) (*repository.User, error)
	ListDelegations(ctx context.Context, fromUserID, vesselID string) ([]*repository.Delegation, error)
}

// ApprovalStore is the full data-access collaborator of the approval core.
// Both repository.Store and memory.Store satisfy it.
type ApprovalStore interface {
	BudgetStore
	DirectoryStore

	GetRequisition(ctx context.Context, id string) (*repository.Requisition, error)
	GetApproval(ctx context.Context, id string) (*repository.ApprovalRecord, error)
	GetActiveApproval(ctx context.Context, requisitionID string) (*repository.ApprovalRecord, error)
	ListApprovals(ctx context.Context, requisitionID string) ([]*repository.ApprovalRecord, error)
	ListPendingForUser(ctx context.Context, userID string) ([]*repository.ApprovalRecord, error)
	ListOverdueApprovals(ctx context.Context, at time.Time, limit int) ([]*repository.ApprovalRecord, error)
	AppendAudit(ctx context.Context, entry *repository.AuditEntry) error
	ListAudit(ctx context.Context, requisitionID string) ([]*repository.AuditEntry, error)
	ApplyTransition(ctx context.Context, t *repository.Transition) error
}

// EscalationNotifier delivers escalation events to the notification bus.
type EscalationNotifier interface {
	PublishApprovalEscalated(ctx context.Context, approvalID, requisitionID, originalApprover, newApprover, reason string, at time.Time) error
}

// Deadlines are the escalation windows applied to new approval records.
type Deadlines struct {
	Default   time.Duration
	Expedited time.Duration
	Emergency time.Duration
}

// DefaultDeadlines are used when none are configured.
var DefaultDeadlines = Deadlines{
	Default:   24 * time.Hour,
	Expedited: 4 * time.Hour,
	Emergency: time.Hour,
}

// window picks the escalation window for a requisition.
func (d Deadlines) window(urgency repository.Urgency, expedited bool) time.Duration {
	switch {
	case urgency == repository.UrgencyEmergency && d.Emergency > 0:
		return d.Emergency
	case expedited && d.Expedited > 0:
		return d.Expedited
	case d.Default > 0:
		return d.Default
	}
	return DefaultDeadlines.Default
}
