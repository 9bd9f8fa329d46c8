package repository

import (
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

// ── Enumerations ─────────────────────────────────────────────────────────────

// Urgency is the requester-declared urgency of a requisition.
type Urgency string

const (
	UrgencyRoutine   Urgency = "ROUTINE"
	UrgencyUrgent    Urgency = "URGENT"
	UrgencyEmergency Urgency = "EMERGENCY"
)

// Valid reports whether u is a known urgency.
func (u Urgency) Valid() bool {
	switch u {
	case UrgencyRoutine, UrgencyUrgent, UrgencyEmergency:
		return true
	}
	return false
}

// Criticality classifies a line item.
type Criticality string

const (
	CriticalityStandard       Criticality = "STANDARD"
	CriticalitySafetyCritical Criticality = "SAFETY_CRITICAL"
)

// RequisitionStatus is the lifecycle status of a requisition.
type RequisitionStatus string

const (
	RequisitionDraft           RequisitionStatus = "DRAFT"
	RequisitionPendingApproval RequisitionStatus = "PENDING_APPROVAL"
	RequisitionApproved        RequisitionStatus = "APPROVED"
	RequisitionRejected        RequisitionStatus = "REJECTED"
	RequisitionOrdered         RequisitionStatus = "ORDERED"
)

// ApprovalLevel is the organisational authority required to approve.
type ApprovalLevel string

const (
	LevelAuto               ApprovalLevel = "AUTO"
	LevelSuperintendent     ApprovalLevel = "SUPERINTENDENT"
	LevelProcurementManager ApprovalLevel = "PROCUREMENT_MANAGER"
	LevelSeniorManagement   ApprovalLevel = "SENIOR_MANAGEMENT"
	LevelCaptain            ApprovalLevel = "CAPTAIN"
)

// Valid reports whether l is a known level.
func (l ApprovalLevel) Valid() bool {
	switch l {
	case LevelAuto, LevelSuperintendent, LevelProcurementManager, LevelSeniorManagement, LevelCaptain:
		return true
	}
	return false
}

// escalationLadder orders authorities from the vessel upwards.
var escalationLadder = []ApprovalLevel{
	LevelCaptain,
	LevelSuperintendent,
	LevelProcurementManager,
	LevelSeniorManagement,
}

// NextAuthority returns the level an overdue approval escalates to, and false
// when l is already the top of the ladder.
func (l ApprovalLevel) NextAuthority() (ApprovalLevel, bool) {
	idx := slices.Index(escalationLadder, l)
	if idx < 0 || idx == len(escalationLadder)-1 {
		return "", false
	}
	return escalationLadder[idx+1], true
}

// Role is the role a user holds.
type Role string

const (
	RoleCrew               Role = "CREW"
	RoleCaptain            Role = "CAPTAIN"
	RoleSuperintendent     Role = "SUPERINTENDENT"
	RoleProcurementManager Role = "PROCUREMENT_MANAGER"
	RoleSeniorManagement   Role = "SENIOR_MANAGEMENT"
)

// Role returns the user role that holds authority for the level.
func (l ApprovalLevel) Role() Role {
	return Role(l)
}

// ApprovalStatus is the status of one approval record.
type ApprovalStatus string

const (
	ApprovalPending   ApprovalStatus = "PENDING"
	ApprovalApproved  ApprovalStatus = "APPROVED"
	ApprovalRejected  ApprovalStatus = "REJECTED"
	ApprovalEscalated ApprovalStatus = "ESCALATED"
	ApprovalDelegated ApprovalStatus = "DELEGATED"
)

// Active reports whether the record still awaits a decision.
func (s ApprovalStatus) Active() bool {
	return s == ApprovalPending || s == ApprovalDelegated
}

// ApprovalPurpose distinguishes routing records from post-hoc override reviews.
type ApprovalPurpose string

const (
	PurposeRouting            ApprovalPurpose = "ROUTING"
	PurposePostApprovalReview ApprovalPurpose = "POST_APPROVAL_REVIEW"
)

// BudgetScope is the level of the budget hierarchy.
type BudgetScope string

const (
	BudgetScopeVessel BudgetScope = "VESSEL"
	BudgetScopeFleet  BudgetScope = "FLEET"
)

// ── Snapshots ────────────────────────────────────────────────────────────────

// LineItem is one requisition line.
type LineItem struct {
	ID          string
	Description string
	Quantity    decimal.Decimal
	Criticality Criticality
}

// Requisition is a purchase requisition snapshot.
type Requisition struct {
	ID                   string
	Amount               decimal.Decimal
	Currency             string
	Urgency              Urgency
	VesselID             string
	RequestedByID        string
	Items                []LineItem
	Status               RequisitionStatus
	ApprovalLevel        *ApprovalLevel
	Expedited            bool
	EmergencyOverride    bool
	RequiresPostApproval bool
	OverriddenBy         *string
	OverrideReason       *string
	ApprovedAt           *time.Time
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// HasSafetyCriticalItem reports whether any line is flagged SAFETY_CRITICAL.
func (r *Requisition) HasSafetyCriticalItem() bool {
	for _, item := range r.Items {
		if item.Criticality == CriticalitySafetyCritical {
			return true
		}
	}
	return false
}

// ApprovalRecord is one tier of a requisition's approval chain.
type ApprovalRecord struct {
	ID                 string
	RequisitionID      string
	VesselID           string
	Level              ApprovalLevel
	Purpose            ApprovalPurpose
	Chain              []ApprovalLevel // ordered tiers required for the requisition
	Tier               int             // index into Chain this record satisfies
	AssignedTo         string
	Status             ApprovalStatus
	Reason             string
	DelegatedTo        *string
	DelegatedAt        *time.Time
	DelegationReason   *string
	OriginalApproverID *string
	EscalatedFrom      *string
	EscalationDeadline time.Time
	ActedBy            *string
	ActedAt            *time.Time
	Notes              *string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// IsFinalTier reports whether approving this record satisfies the whole chain.
func (a *ApprovalRecord) IsFinalTier() bool {
	return a.Tier >= len(a.Chain)-1
}

// Budget is a vessel or fleet spending envelope for one period.
type Budget struct {
	ID                  string
	Scope               BudgetScope
	OwnerID             string
	Period              string // YYYY-MM
	MonthlyLimit        decimal.Decimal
	CurrentSpent        decimal.Decimal
	Currency            string
	SeasonalAdjustments map[string]decimal.Decimal // month or season name -> multiplier
	ParentBudgetID      *string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Delegation temporarily redirects one approver's authority on a vessel.
type Delegation struct {
	ID         string
	FromUserID string
	ToUserID   string
	VesselID   string
	StartDate  time.Time
	EndDate    time.Time
	Reason     string
	CreatedAt  time.Time
}

// ActiveAt reports whether the delegation window covers t (inclusive).
func (d *Delegation) ActiveAt(t time.Time) bool {
	return !t.Before(d.StartDate) && !t.After(d.EndDate)
}

// User is an identity with a role and vessel assignments.
type User struct {
	ID                string
	Name              string
	Role              Role
	VesselAssignments []string
}

// AssignedTo reports whether the user is assigned to the vessel.
func (u *User) AssignedTo(vesselID string) bool {
	return slices.Contains(u.VesselAssignments, vesselID)
}

// AuditEntry is one immutable record in the approval audit log.
type AuditEntry struct {
	ID            string
	RequisitionID string
	ApprovalID    *string
	Action        string // routed | auto_approved | approved | rejected | escalated | delegated | emergency_override | post_review_*
	PerformedBy   string
	PerformedAt   time.Time
	StatusBefore  *RequisitionStatus
	StatusAfter   *RequisitionStatus
	Metadata      map[string]interface{}
}

// ── Mutations ────────────────────────────────────────────────────────────────

// Transition is the complete set of writes produced by one core operation. The
// store applies it atomically or not at all.
type Transition struct {
	Approval    *ApprovalUpdate
	Create      *ApprovalRecord
	Requisition *RequisitionUpdate
	Commit      *BudgetCommit
}

// ApprovalUpdate changes an approval record only if it is still in ExpectedStatus.
type ApprovalUpdate struct {
	ID                 string
	ExpectedStatus     ApprovalStatus
	Status             ApprovalStatus
	ActedBy            *string
	ActedAt            *time.Time
	Notes              *string
	DelegatedTo        *string
	DelegationReason   *string
	OriginalApproverID *string
	UpdatedAt          time.Time
}

// RequisitionUpdate changes a requisition only if its status is one of ExpectedStatuses.
type RequisitionUpdate struct {
	ID                   string
	ExpectedStatuses     []RequisitionStatus
	Status               RequisitionStatus
	ApprovalLevel        *ApprovalLevel
	Expedited            bool
	EmergencyOverride    bool
	RequiresPostApproval bool
	OverriddenBy         *string
	OverrideReason       *string
	ApprovedAt           *time.Time
	UpdatedAt            time.Time
}

// BudgetCommit atomically adds Amount to a budget's spend, refusing to exceed
// Limit unless Overspend marks a senior-management authorized overrun.
type BudgetCommit struct {
	BudgetID  string
	Scope     BudgetScope
	Amount    decimal.Decimal
	Limit     decimal.Decimal
	Overspend bool
}
