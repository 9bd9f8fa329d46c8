package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/pesio-ai/be-proc-requisitions/internal/platform/clock"
	"github.com/pesio-ai/be-proc-requisitions/internal/platform/errors"
	"github.com/pesio-ai/be-proc-requisitions/internal/platform/idgen"
	"github.com/pesio-ai/be-proc-requisitions/internal/platform/logger"
	"github.com/pesio-ai/be-proc-requisitions/internal/platform/metrics"
	"github.com/pesio-ai/be-proc-requisitions/internal/platform/tracing"
	"github.com/pesio-ai/be-proc-requisitions/internal/repository"
)

const msgCaptainsOnly = "Only captains can perform emergency overrides"

// OverrideRequest is a captain's emergency approval.
type OverrideRequest struct {
	CaptainID string
	Reason    string
}

// OverrideResult describes an applied override.
type OverrideResult struct {
	RequisitionID        string
	Approved             bool
	EmergencyOverride    bool
	RequiresPostApproval bool
	OverriddenBy         string
	ReviewApprovalID     string
	BudgetCommitted      bool
	BudgetLevel          repository.BudgetScope
}

// OverrideService lets a vessel's captain approve an emergency requisition
// immediately, leaving a post-approval review behind.
type OverrideService struct {
	store     ApprovalStore
	budgets   *BudgetValidator
	resolver  *DelegationResolver
	deadlines Deadlines
	clock     clock.Clock
	ids       idgen.Generator
	metrics   *metrics.Metrics
	log       *logger.Logger
}

// NewOverrideService creates a new OverrideService.
func NewOverrideService(
	store ApprovalStore,
	budgets *BudgetValidator,
	resolver *DelegationResolver,
	deadlines Deadlines,
	clk clock.Clock,
	ids idgen.Generator,
	m *metrics.Metrics,
	log *logger.Logger,
) *OverrideService {
	return &OverrideService{
		store:     store,
		budgets:   budgets,
		resolver:  resolver,
		deadlines: deadlines,
		clock:     clk,
		ids:       ids,
		metrics:   m,
		log:       log,
	}
}

// ProcessOverride approves requisitionID on the captain's authority. Nothing is
// written unless the actor is the vessel's captain and the requisition is an
// emergency.
func (s *OverrideService) ProcessOverride(ctx context.Context, requisitionID string, in OverrideRequest) (res *OverrideResult, err error) {
	ctx, span := tracing.StartSpan(ctx, "override.process",
		attribute.String("requisition_id", requisitionID),
		attribute.String("captain_id", in.CaptainID))
	defer func() { tracing.EndSpan(span, err) }()

	reason := in.Reason
	if strings.TrimSpace(reason) == "" {
		return nil, errors.InvalidInput("reason", "override justification is required")
	}

	req, err := s.store.GetRequisition(ctx, requisitionID)
	if err != nil {
		return nil, err
	}

	actor, err := s.store.GetUser(ctx, in.CaptainID)
	if err != nil && !errors.IsNotFound(err) {
		return nil, err
	}
	if actor == nil || actor.Role != repository.RoleCaptain || !actor.AssignedTo(req.VesselID) {
		s.denied(ctx, req, in, msgCaptainsOnly)
		return nil, errors.Unauthorized(msgCaptainsOnly)
	}
	if req.Urgency != repository.UrgencyEmergency {
		s.denied(ctx, req, in, "urgency "+string(req.Urgency))
		return nil, errors.New(errors.ErrCodeClassification,
			fmt.Sprintf("only EMERGENCY requisitions can be overridden (urgency: %s)", req.Urgency))
	}
	if req.Status != repository.RequisitionDraft && req.Status != repository.RequisitionPendingApproval {
		return nil, errors.Conflict(fmt.Sprintf("requisition %s cannot be overridden from status %s", req.ID, req.Status))
	}

	now := s.clock.Now()
	active, err := s.store.GetActiveApproval(ctx, req.ID)
	if err != nil {
		return nil, err
	}

	t := &repository.Transition{}
	if active != nil {
		t.Approval = &repository.ApprovalUpdate{
			ID:             active.ID,
			ExpectedStatus: active.Status,
			Status:         repository.ApprovalApproved,
			ActedBy:        strPtr(in.CaptainID),
			ActedAt:        &now,
			Notes:          strPtr("Emergency override: " + reason),
			UpdatedAt:      now,
		}
	}

	captain := repository.LevelCaptain
	upd := requisitionUpdate(req, repository.RequisitionApproved)
	upd.ApprovalLevel = &captain
	upd.Expedited = true
	upd.EmergencyOverride = true
	upd.RequiresPostApproval = true
	upd.OverriddenBy = strPtr(in.CaptainID)
	upd.OverrideReason = strPtr(reason)
	upd.ApprovedAt = &now
	upd.UpdatedAt = now
	t.Requisition = upd

	review, err := s.reviewRecord(ctx, req, now)
	if err != nil {
		s.log.Warn().Err(err).
			Str("requisition_id", req.ID).
			Msg("No superintendent available for post-approval review; review left unassigned")
	}
	t.Create = review

	metadata := map[string]interface{}{"reason": reason}

	check, budgetErr := s.budgets.Validate(ctx, req)
	switch {
	case budgetErr != nil:
		metadata["budget_error"] = budgetErr.Error()
	case !check.WithinBudget:
		metadata["budget_shortfall"] = check.Reason
	default:
		t.Commit = check.Commit(req.Amount)
	}

	err = s.store.ApplyTransition(ctx, t)
	if errors.IsBudgetExceeded(err) && t.Commit != nil {
		// Another approval took the headroom since validation; the override stands.
		metadata["budget_shortfall"] = err.Error()
		t.Commit = nil
		err = s.store.ApplyTransition(ctx, t)
	}
	if err != nil {
		if errors.IsConflict(err) {
			s.metrics.Conflict("override")
		}
		return nil, err
	}

	res = &OverrideResult{
		RequisitionID:        req.ID,
		Approved:             true,
		EmergencyOverride:    true,
		RequiresPostApproval: true,
		OverriddenBy:         in.CaptainID,
		BudgetCommitted:      t.Commit != nil,
	}
	if t.Commit != nil {
		res.BudgetLevel = t.Commit.Scope
		metadata["budget_level"] = string(t.Commit.Scope)
		s.metrics.BudgetCommitted(string(t.Commit.Scope))
	}
	if review != nil {
		res.ReviewApprovalID = review.ID
		metadata["review_approval_id"] = review.ID
	}
	if active != nil {
		metadata["closed_approval_id"] = active.ID
	}

	s.metrics.Override("approved")
	s.log.Warn().
		Str("requisition_id", req.ID).
		Str("captain_id", in.CaptainID).
		Str("amount", req.Amount.String()).
		Bool("budget_committed", res.BudgetCommitted).
		Msg("Emergency override applied")

	appendAudit(ctx, s.store, s.log, &repository.AuditEntry{
		RequisitionID: req.ID,
		ApprovalID:    strPtrOrNil(res.ReviewApprovalID),
		Action:        auditEmergencyOverride,
		PerformedBy:   in.CaptainID,
		PerformedAt:   now,
		StatusBefore:  statusPtr(req.Status),
		StatusAfter:   statusPtr(repository.RequisitionApproved),
		Metadata:      metadata,
	})
	return res, nil
}

func (s *OverrideService) reviewRecord(ctx context.Context, req *repository.Requisition, now time.Time) (*repository.ApprovalRecord, error) {
	resolution, err := s.resolver.ResolveApprover(ctx, repository.RoleSuperintendent, req.VesselID, now)
	if err != nil {
		return nil, err
	}
	rec := &repository.ApprovalRecord{
		ID:                 s.ids.NewID(),
		RequisitionID:      req.ID,
		VesselID:           req.VesselID,
		Level:              repository.LevelSuperintendent,
		Purpose:            repository.PurposePostApprovalReview,
		Chain:              []repository.ApprovalLevel{repository.LevelSuperintendent},
		AssignedTo:         resolution.ApproverID,
		Status:             repository.ApprovalPending,
		Reason:             "Post-approval review of emergency override",
		EscalationDeadline: now.Add(s.deadlines.window(repository.UrgencyRoutine, false)),
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if resolution.Delegated {
		rec.OriginalApproverID = strPtr(resolution.OriginalApproverID)
	}
	return rec, nil
}

func (s *OverrideService) denied(ctx context.Context, req *repository.Requisition, in OverrideRequest, why string) {
	s.metrics.Override("denied")
	s.log.Warn().
		Str("requisition_id", req.ID).
		Str("actor_id", in.CaptainID).
		Str("reason", why).
		Msg("Emergency override denied")

	appendAudit(ctx, s.store, s.log, &repository.AuditEntry{
		RequisitionID: req.ID,
		Action:        auditOverrideDenied,
		PerformedBy:   in.CaptainID,
		PerformedAt:   s.clock.Now(),
		Metadata:      map[string]interface{}{"why": why},
	})
}

func strPtrOrNil(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
