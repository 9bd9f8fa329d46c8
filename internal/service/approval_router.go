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
	"github.com/pesio-ai/be-proc-requisitions/internal/rules"
)

// RuleEvaluator decides how a requisition is routed.
type RuleEvaluator interface {
	Evaluate(req *repository.Requisition) rules.Decision
}

var levelRank = map[repository.ApprovalLevel]int{
	repository.LevelAuto:               0,
	repository.LevelSuperintendent:     1,
	repository.LevelProcurementManager: 2,
	repository.LevelSeniorManagement:   3,
}

// shoreChain is the sequential shore-side approval ladder.
var shoreChain = []repository.ApprovalLevel{
	repository.LevelSuperintendent,
	repository.LevelProcurementManager,
	repository.LevelSeniorManagement,
}

// RequiredChain returns the ordered tiers that must approve a requisition at
// level. A requisition the budget does not cover needs senior management
// whatever its level; a captain-level one then continues up the shore chain.
func RequiredChain(level repository.ApprovalLevel, budgetCovered bool) []repository.ApprovalLevel {
	if level == repository.LevelCaptain {
		if budgetCovered {
			return []repository.ApprovalLevel{repository.LevelCaptain}
		}
		return append([]repository.ApprovalLevel{repository.LevelCaptain}, shoreChain...)
	}

	rank := levelRank[level]
	if !budgetCovered && rank < levelRank[repository.LevelSeniorManagement] {
		rank = levelRank[repository.LevelSeniorManagement]
	}
	chain := make([]repository.ApprovalLevel, rank)
	copy(chain, shoreChain[:rank])
	return chain
}

// ApprovalRouter creates and advances approval records.
type ApprovalRouter struct {
	store     ApprovalStore
	rules     RuleEvaluator
	budgets   *BudgetValidator
	resolver  *DelegationResolver
	deadlines Deadlines
	clock     clock.Clock
	ids       idgen.Generator
	metrics   *metrics.Metrics
	log       *logger.Logger
}

// NewApprovalRouter creates a new ApprovalRouter.
func NewApprovalRouter(
	store ApprovalStore,
	evaluator RuleEvaluator,
	budgets *BudgetValidator,
	resolver *DelegationResolver,
	deadlines Deadlines,
	clk clock.Clock,
	ids idgen.Generator,
	m *metrics.Metrics,
	log *logger.Logger,
) *ApprovalRouter {
	return &ApprovalRouter{
		store:     store,
		rules:     evaluator,
		budgets:   budgets,
		resolver:  resolver,
		deadlines: deadlines,
		clock:     clk,
		ids:       ids,
		metrics:   m,
		log:       log,
	}
}

// RoutingResult describes what ProcessRequisition did.
type RoutingResult struct {
	RequisitionID       string
	Approved            bool
	AutoApproved        bool
	PendingApproval     bool
	Rejected            bool
	ApprovalLevel       repository.ApprovalLevel
	RequiredTiers       []repository.ApprovalLevel
	ApprovalID          string
	AssignedTo          string
	Delegated           bool
	OriginalApproverID  string
	Expedited           bool
	EscalationTimeHours float64
	EscalationDeadline  time.Time
	MatchedRule         string
	Diagnostic          string
	Budget              *BudgetCheck
}

// ── Routing ───────────────────────────────────────────────────────────────────

// ProcessRequisition routes a new or resubmitted requisition: it is either
// approved outright, rejected by a rule, or given its first approval record.
func (s *ApprovalRouter) ProcessRequisition(ctx context.Context, requisitionID string) (res *RoutingResult, err error) {
	ctx, span := tracing.StartSpan(ctx, "router.process_requisition", attribute.String("requisition_id", requisitionID))
	defer func() { tracing.EndSpan(span, err) }()

	req, err := s.store.GetRequisition(ctx, requisitionID)
	if err != nil {
		return nil, err
	}
	if err := validateRequisition(req); err != nil {
		return nil, err
	}
	if req.Status != repository.RequisitionDraft && req.Status != repository.RequisitionPendingApproval {
		return nil, errors.Conflict(fmt.Sprintf("requisition %s cannot be routed from status %s", req.ID, req.Status))
	}

	active, err := s.store.GetActiveApproval(ctx, req.ID)
	if err != nil {
		return nil, err
	}
	if active != nil {
		return nil, errors.Conflict(fmt.Sprintf("requisition %s already has active approval %s", req.ID, active.ID))
	}

	now := s.clock.Now()
	decision := s.rules.Evaluate(req)
	res = &RoutingResult{
		RequisitionID: req.ID,
		Expedited:     decision.Expedited,
		MatchedRule:   decision.MatchedRule,
		Diagnostic:    decision.Diagnostic,
	}

	if decision.Action == rules.ActionReject {
		return s.rejectByRule(ctx, req, decision, res, now)
	}

	check, err := s.budgets.Validate(ctx, req)
	if err != nil {
		return nil, err
	}
	res.Budget = check

	chain := RequiredChain(decision.Level, check.WithinBudget)
	if len(chain) == 0 {
		return s.autoApprove(ctx, req, check, res, now)
	}

	top := chain[len(chain)-1]
	res.ApprovalLevel = top
	res.RequiredTiers = chain

	resolution, err := s.resolver.ResolveApprover(ctx, chain[0].Role(), req.VesselID, now)
	if err != nil {
		return nil, err
	}

	window := s.deadlines.window(req.Urgency, decision.Expedited)
	rec := &repository.ApprovalRecord{
		ID:                 s.ids.NewID(),
		RequisitionID:      req.ID,
		VesselID:           req.VesselID,
		Level:              chain[0],
		Purpose:            repository.PurposeRouting,
		Chain:              chain,
		Tier:               0,
		AssignedTo:         resolution.ApproverID,
		Status:             repository.ApprovalPending,
		Reason:             routingReason(decision, check),
		EscalationDeadline: now.Add(window),
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if resolution.Delegated {
		rec.OriginalApproverID = strPtr(resolution.OriginalApproverID)
	}

	upd := requisitionUpdate(req, repository.RequisitionPendingApproval)
	upd.ApprovalLevel = &top
	upd.Expedited = decision.Expedited
	upd.UpdatedAt = now

	if err := s.apply(ctx, "route", &repository.Transition{Create: rec, Requisition: upd}); err != nil {
		return nil, err
	}

	res.PendingApproval = true
	res.ApprovalID = rec.ID
	res.AssignedTo = rec.AssignedTo
	res.Delegated = resolution.Delegated
	res.OriginalApproverID = resolution.OriginalApproverID
	res.EscalationDeadline = rec.EscalationDeadline
	res.EscalationTimeHours = window.Hours()

	s.metrics.RequisitionRouted("pending", string(top))
	s.log.Info().
		Str("requisition_id", req.ID).
		Str("approval_id", rec.ID).
		Str("level", string(rec.Level)).
		Str("required_level", string(top)).
		Str("assigned_to", rec.AssignedTo).
		Bool("expedited", decision.Expedited).
		Msg("Requisition routed for approval")

	appendAudit(ctx, s.store, s.log, &repository.AuditEntry{
		RequisitionID: req.ID,
		ApprovalID:    &rec.ID,
		Action:        auditRouted,
		PerformedBy:   req.RequestedByID,
		PerformedAt:   now,
		StatusBefore:  statusPtr(req.Status),
		StatusAfter:   statusPtr(repository.RequisitionPendingApproval),
		Metadata: map[string]interface{}{
			"required_tiers": levelsToStrings(chain),
			"matched_rule":   decision.MatchedRule,
			"budget_level":   string(check.Level),
			"within_budget":  check.WithinBudget,
			"delegated":      resolution.Delegated,
		},
	})
	return res, nil
}

func (s *ApprovalRouter) autoApprove(ctx context.Context, req *repository.Requisition, check *BudgetCheck, res *RoutingResult, now time.Time) (*RoutingResult, error) {
	level := repository.LevelAuto
	upd := requisitionUpdate(req, repository.RequisitionApproved)
	upd.ApprovalLevel = &level
	upd.Expedited = res.Expedited
	upd.ApprovedAt = &now
	upd.UpdatedAt = now

	if err := s.apply(ctx, "auto_approve", &repository.Transition{
		Requisition: upd,
		Commit:      check.Commit(req.Amount),
	}); err != nil {
		return nil, err
	}

	res.Approved = true
	res.AutoApproved = true
	res.ApprovalLevel = level

	s.metrics.RequisitionRouted("auto_approved", string(level))
	s.metrics.BudgetCommitted(string(check.Level))
	s.log.Info().Str("requisition_id", req.ID).Str("amount", req.Amount.String()).Msg("Requisition auto-approved")

	appendAudit(ctx, s.store, s.log, &repository.AuditEntry{
		RequisitionID: req.ID,
		Action:        auditAutoApproved,
		PerformedBy:   "system",
		PerformedAt:   now,
		StatusBefore:  statusPtr(req.Status),
		StatusAfter:   statusPtr(repository.RequisitionApproved),
		Metadata: map[string]interface{}{
			"matched_rule": res.MatchedRule,
			"budget_level": string(check.Level),
		},
	})
	return res, nil
}

func (s *ApprovalRouter) rejectByRule(ctx context.Context, req *repository.Requisition, decision rules.Decision, res *RoutingResult, now time.Time) (*RoutingResult, error) {
	upd := requisitionUpdate(req, repository.RequisitionRejected)
	upd.UpdatedAt = now
	if err := s.apply(ctx, "rule_reject", &repository.Transition{Requisition: upd}); err != nil {
		return nil, err
	}

	res.Rejected = true
	s.metrics.RequisitionRouted("rejected", "")
	s.log.Warn().
		Str("requisition_id", req.ID).
		Str("matched_rule", decision.MatchedRule).
		Str("diagnostic", decision.Diagnostic).
		Msg("Requisition rejected by workflow rules")

	appendAudit(ctx, s.store, s.log, &repository.AuditEntry{
		RequisitionID: req.ID,
		Action:        auditRuleRejected,
		PerformedBy:   "system",
		PerformedAt:   now,
		StatusBefore:  statusPtr(req.Status),
		StatusAfter:   statusPtr(repository.RequisitionRejected),
		Metadata: map[string]interface{}{
			"matched_rule": decision.MatchedRule,
			"diagnostic":   decision.Diagnostic,
		},
	})
	return res, nil
}

// ── Decisions ─────────────────────────────────────────────────────────────────

// DecideRequest is an approver's verdict on one approval record.
type DecideRequest struct {
	ApprovalID string
	ActorID    string
	Approved   bool
	Notes      string
}

// DecisionResult describes the state after a decision.
type DecisionResult struct {
	ApprovalID    string
	RequisitionID string
	Status        repository.ApprovalStatus
	CanProceed    bool
	Rejected      bool
	TiersApproved int
	RequiredTiers []repository.ApprovalLevel
	Next          *repository.ApprovalRecord
	BudgetLevel   repository.BudgetScope
	Overspend     bool // senior management approved spend past the budget
}

// DecideApproval applies an approval or rejection to an active record. An
// approval advances exactly one tier; the last tier re-validates and commits
// the budget together with the requisition's approval.
func (s *ApprovalRouter) DecideApproval(ctx context.Context, in DecideRequest) (res *DecisionResult, err error) {
	ctx, span := tracing.StartSpan(ctx, "router.decide_approval",
		attribute.String("approval_id", in.ApprovalID),
		attribute.Bool("approved", in.Approved))
	defer func() { tracing.EndSpan(span, err) }()

	if in.ActorID == "" {
		return nil, errors.InvalidInput("actor_id", "actor is required")
	}
	if !in.Approved && strings.TrimSpace(in.Notes) == "" {
		return nil, errors.InvalidInput("notes", "rejection reason is required")
	}

	rec, err := s.store.GetApproval(ctx, in.ApprovalID)
	if err != nil {
		return nil, err
	}
	if !rec.Status.Active() {
		return nil, errors.Conflict(fmt.Sprintf("approval %s is %s", rec.ID, rec.Status))
	}

	now := s.clock.Now()
	if err := s.assertCanAct(ctx, rec, in.ActorID, now); err != nil {
		return nil, err
	}

	if rec.Purpose == repository.PurposePostApprovalReview {
		return s.decideReview(ctx, rec, in, now)
	}

	req, err := s.store.GetRequisition(ctx, rec.RequisitionID)
	if err != nil {
		return nil, err
	}
	if req.Status != repository.RequisitionPendingApproval {
		return nil, errors.Conflict(fmt.Sprintf("requisition %s is %s", req.ID, req.Status))
	}

	res = &DecisionResult{
		ApprovalID:    rec.ID,
		RequisitionID: req.ID,
		RequiredTiers: rec.Chain,
		TiersApproved: rec.Tier,
	}

	if !in.Approved {
		return s.reject(ctx, req, rec, in, res, now)
	}
	if rec.IsFinalTier() {
		return s.approveFinal(ctx, req, rec, in, res, now)
	}
	return s.advance(ctx, req, rec, in, res, now)
}

func (s *ApprovalRouter) reject(ctx context.Context, req *repository.Requisition, rec *repository.ApprovalRecord, in DecideRequest, res *DecisionResult, now time.Time) (*DecisionResult, error) {
	upd := requisitionUpdate(req, repository.RequisitionRejected)
	upd.UpdatedAt = now

	if err := s.apply(ctx, "decide", &repository.Transition{
		Approval:    decisionUpdate(rec, repository.ApprovalRejected, in, now),
		Requisition: upd,
	}); err != nil {
		return nil, err
	}

	res.Status = repository.ApprovalRejected
	res.Rejected = true

	s.metrics.ApprovalDecided(string(rec.Level), "rejected")
	s.log.Info().
		Str("requisition_id", req.ID).
		Str("approval_id", rec.ID).
		Str("rejected_by", in.ActorID).
		Int("tier", rec.Tier).
		Msg("Requisition rejected")

	appendAudit(ctx, s.store, s.log, &repository.AuditEntry{
		RequisitionID: req.ID,
		ApprovalID:    &rec.ID,
		Action:        auditRejected,
		PerformedBy:   in.ActorID,
		PerformedAt:   now,
		StatusBefore:  statusPtr(req.Status),
		StatusAfter:   statusPtr(repository.RequisitionRejected),
		Metadata:      map[string]interface{}{"reason": in.Notes, "tier": rec.Tier, "level": string(rec.Level)},
	})
	return res, nil
}

func (s *ApprovalRouter) advance(ctx context.Context, req *repository.Requisition, rec *repository.ApprovalRecord, in DecideRequest, res *DecisionResult, now time.Time) (*DecisionResult, error) {
	nextTier := rec.Tier + 1
	nextLevel := rec.Chain[nextTier]

	resolution, err := s.resolver.ResolveApprover(ctx, nextLevel.Role(), rec.VesselID, now)
	if err != nil {
		return nil, err
	}

	window := s.deadlines.window(req.Urgency, req.Expedited)
	next := &repository.ApprovalRecord{
		ID:                 s.ids.NewID(),
		RequisitionID:      rec.RequisitionID,
		VesselID:           rec.VesselID,
		Level:              nextLevel,
		Purpose:            repository.PurposeRouting,
		Chain:              rec.Chain,
		Tier:               nextTier,
		AssignedTo:         resolution.ApproverID,
		Status:             repository.ApprovalPending,
		Reason:             fmt.Sprintf("Tier %d of %d approved by %s", rec.Tier+1, len(rec.Chain), in.ActorID),
		EscalationDeadline: now.Add(window),
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if resolution.Delegated {
		next.OriginalApproverID = strPtr(resolution.OriginalApproverID)
	}

	if err := s.apply(ctx, "decide", &repository.Transition{
		Approval: decisionUpdate(rec, repository.ApprovalApproved, in, now),
		Create:   next,
	}); err != nil {
		return nil, err
	}

	res.Status = repository.ApprovalApproved
	res.TiersApproved = nextTier
	res.Next = next

	s.metrics.ApprovalDecided(string(rec.Level), "approved")
	s.log.Info().
		Str("requisition_id", req.ID).
		Str("approval_id", rec.ID).
		Str("next_approval_id", next.ID).
		Str("next_level", string(nextLevel)).
		Str("next_assignee", next.AssignedTo).
		Msg("Approval tier satisfied; advanced to next tier")

	appendAudit(ctx, s.store, s.log, &repository.AuditEntry{
		RequisitionID: req.ID,
		ApprovalID:    &rec.ID,
		Action:        auditApproved,
		PerformedBy:   in.ActorID,
		PerformedAt:   now,
		StatusBefore:  statusPtr(req.Status),
		StatusAfter:   statusPtr(req.Status),
		Metadata: map[string]interface{}{
			"tier":             rec.Tier,
			"level":            string(rec.Level),
			"next_approval_id": next.ID,
			"next_level":       string(nextLevel),
		},
	})
	return res, nil
}

func (s *ApprovalRouter) approveFinal(ctx context.Context, req *repository.Requisition, rec *repository.ApprovalRecord, in DecideRequest, res *DecisionResult, now time.Time) (*DecisionResult, error) {
	check, err := s.budgets.Validate(ctx, req)
	if err != nil {
		return nil, err
	}
	commit := check.Commit(req.Amount)
	overspend := !check.WithinBudget
	if overspend {
		// Only senior management may sign off spend the budget cannot absorb.
		if rec.Level != repository.LevelSeniorManagement {
			return nil, errors.BudgetExceeded(fmt.Sprintf("requisition %s: %s", req.ID, check.Reason))
		}
		commit = check.OverspendCommit(req.Amount)
	}

	upd := requisitionUpdate(req, repository.RequisitionApproved)
	upd.ApprovedAt = &now
	upd.UpdatedAt = now

	if err := s.apply(ctx, "decide", &repository.Transition{
		Approval:    decisionUpdate(rec, repository.ApprovalApproved, in, now),
		Requisition: upd,
		Commit:      commit,
	}); err != nil {
		return nil, err
	}

	res.Status = repository.ApprovalApproved
	res.CanProceed = true
	res.TiersApproved = len(rec.Chain)
	res.BudgetLevel = check.Level
	res.Overspend = overspend

	metadata := map[string]interface{}{
		"tier":         rec.Tier,
		"level":        string(rec.Level),
		"budget_level": string(check.Level),
		"budget_id":    check.BudgetID(),
		"amount":       req.Amount.String(),
	}
	event := s.log.Info().
		Str("requisition_id", req.ID).
		Str("approval_id", rec.ID).
		Str("approved_by", in.ActorID).
		Str("budget_level", string(check.Level))

	s.metrics.ApprovalDecided(string(rec.Level), "approved")
	if commit != nil {
		s.metrics.BudgetCommitted(string(commit.Scope))
		metadata["budget_id"] = commit.BudgetID
		event = event.Str("budget_id", commit.BudgetID)
	}
	if overspend {
		shortfall := check.Shortfall(req.Amount)
		metadata["budget_overspend"] = true
		metadata["budget_shortfall"] = shortfall.String()
		metadata["budget_reason"] = check.Reason
		event = event.Bool("overspend", true).Str("shortfall", shortfall.String())
	}
	event.Msg("Requisition fully approved")

	appendAudit(ctx, s.store, s.log, &repository.AuditEntry{
		RequisitionID: req.ID,
		ApprovalID:    &rec.ID,
		Action:        auditApproved,
		PerformedBy:   in.ActorID,
		PerformedAt:   now,
		StatusBefore:  statusPtr(req.Status),
		StatusAfter:   statusPtr(repository.RequisitionApproved),
		Metadata:      metadata,
	})
	return res, nil
}

// decideReview closes a post-approval review record. The requisition was
// already approved by the override and is not touched.
func (s *ApprovalRouter) decideReview(ctx context.Context, rec *repository.ApprovalRecord, in DecideRequest, now time.Time) (*DecisionResult, error) {
	status, action := repository.ApprovalApproved, auditPostReviewApproved
	if !in.Approved {
		status, action = repository.ApprovalRejected, auditPostReviewRejected
	}

	if err := s.apply(ctx, "decide", &repository.Transition{
		Approval: decisionUpdate(rec, status, in, now),
	}); err != nil {
		return nil, err
	}

	s.metrics.ApprovalDecided(string(rec.Level), strings.ToLower(string(status)))
	s.log.Info().
		Str("requisition_id", rec.RequisitionID).
		Str("approval_id", rec.ID).
		Str("status", string(status)).
		Msg("Post-approval review completed")

	appendAudit(ctx, s.store, s.log, &repository.AuditEntry{
		RequisitionID: rec.RequisitionID,
		ApprovalID:    &rec.ID,
		Action:        action,
		PerformedBy:   in.ActorID,
		PerformedAt:   now,
		Metadata:      map[string]interface{}{"notes": in.Notes},
	})
	return &DecisionResult{
		ApprovalID:    rec.ID,
		RequisitionID: rec.RequisitionID,
		Status:        status,
		Rejected:      !in.Approved,
		RequiredTiers: rec.Chain,
		TiersApproved: 1,
	}, nil
}

func decisionUpdate(rec *repository.ApprovalRecord, status repository.ApprovalStatus, in DecideRequest, now time.Time) *repository.ApprovalUpdate {
	u := &repository.ApprovalUpdate{
		ID:             rec.ID,
		ExpectedStatus: rec.Status,
		Status:         status,
		ActedBy:        strPtr(in.ActorID),
		ActedAt:        &now,
		UpdatedAt:      now,
	}
	if in.Notes != "" {
		u.Notes = strPtr(in.Notes)
	}
	return u
}

// ── Delegation ────────────────────────────────────────────────────────────────

// DelegateRequest hands an active record from its approver to a colleague.
type DelegateRequest struct {
	ApprovalID string
	FromUserID string
	ToUserID   string
	Reason     string
}

// DelegateApproval lets the assigned approver delegate their record to another user.
func (s *ApprovalRouter) DelegateApproval(ctx context.Context, in DelegateRequest) (rec *repository.ApprovalRecord, err error) {
	ctx, span := tracing.StartSpan(ctx, "router.delegate_approval", attribute.String("approval_id", in.ApprovalID))
	defer func() { tracing.EndSpan(span, err) }()

	if strings.TrimSpace(in.Reason) == "" {
		return nil, errors.InvalidInput("reason", "delegation reason is required")
	}
	if in.ToUserID == "" || in.ToUserID == in.FromUserID {
		return nil, errors.InvalidInput("to_user_id", "delegate must be a different user")
	}

	rec, err = s.store.GetApproval(ctx, in.ApprovalID)
	if err != nil {
		return nil, err
	}
	if !rec.Status.Active() {
		return nil, errors.Conflict(fmt.Sprintf("approval %s is %s", rec.ID, rec.Status))
	}

	now := s.clock.Now()
	if err := s.assertCanAct(ctx, rec, in.FromUserID, now); err != nil {
		return nil, err
	}
	if _, err := s.store.GetUser(ctx, in.ToUserID); err != nil {
		return nil, err
	}

	original := rec.AssignedTo
	if rec.OriginalApproverID != nil {
		original = *rec.OriginalApproverID
	}

	if err := s.apply(ctx, "delegate", &repository.Transition{
		Approval: &repository.ApprovalUpdate{
			ID:                 rec.ID,
			ExpectedStatus:     rec.Status,
			Status:             repository.ApprovalDelegated,
			DelegatedTo:        strPtr(in.ToUserID),
			DelegationReason:   strPtr(in.Reason),
			OriginalApproverID: strPtr(original),
			UpdatedAt:          now,
		},
	}); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("approval_id", rec.ID).
		Str("delegated_by", in.FromUserID).
		Str("delegated_to", in.ToUserID).
		Msg("Approval delegated")

	appendAudit(ctx, s.store, s.log, &repository.AuditEntry{
		RequisitionID: rec.RequisitionID,
		ApprovalID:    &rec.ID,
		Action:        auditDelegated,
		PerformedBy:   in.FromUserID,
		PerformedAt:   now,
		Metadata: map[string]interface{}{
			"delegated_to": in.ToUserID,
			"reason":       in.Reason,
			"tier":         rec.Tier,
		},
	})
	return s.store.GetApproval(ctx, rec.ID)
}

// ── Query helpers ─────────────────────────────────────────────────────────────

// GetActiveApproval returns the record awaiting a decision, or nil.
func (s *ApprovalRouter) GetActiveApproval(ctx context.Context, requisitionID string) (*repository.ApprovalRecord, error) {
	return s.store.GetActiveApproval(ctx, requisitionID)
}

// GetApprovals returns every approval record of a requisition, oldest first.
func (s *ApprovalRouter) GetApprovals(ctx context.Context, requisitionID string) ([]*repository.ApprovalRecord, error) {
	return s.store.ListApprovals(ctx, requisitionID)
}

// GetPendingApprovals returns all records currently awaiting action from a user.
func (s *ApprovalRouter) GetPendingApprovals(ctx context.Context, userID string) ([]*repository.ApprovalRecord, error) {
	return s.store.ListPendingForUser(ctx, userID)
}

// GetApprovalHistory returns the full audit trail for a requisition.
func (s *ApprovalRouter) GetApprovalHistory(ctx context.Context, requisitionID string) ([]*repository.AuditEntry, error) {
	return s.store.ListAudit(ctx, requisitionID)
}

// CheckBudget validates a requisition against its budgets without writing anything.
func (s *ApprovalRouter) CheckBudget(ctx context.Context, requisitionID string) (*BudgetCheck, error) {
	req, err := s.store.GetRequisition(ctx, requisitionID)
	if err != nil {
		return nil, err
	}
	if err := validateRequisition(req); err != nil {
		return nil, err
	}
	return s.budgets.Validate(ctx, req)
}

// ── Authorization helper ──────────────────────────────────────────────────────

// assertCanAct checks that actorID is the current holder of the record, or
// holds an active delegation from them. Once a record is handed over with
// DelegateApproval the delegate is its holder and the assignee no longer is.
func (s *ApprovalRouter) assertCanAct(ctx context.Context, rec *repository.ApprovalRecord, actorID string, at time.Time) error {
	holder := rec.AssignedTo
	if rec.DelegatedTo != nil {
		holder = *rec.DelegatedTo
	}
	if holder == actorID {
		return nil
	}
	ok, err := s.resolver.CanActFor(ctx, holder, actorID, rec.VesselID, at)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	return errors.Unauthorized("user is not authorized to act on this approval")
}

// ── Internal helpers ──────────────────────────────────────────────────────────

func (s *ApprovalRouter) apply(ctx context.Context, operation string, t *repository.Transition) error {
	err := s.store.ApplyTransition(ctx, t)
	if errors.IsConflict(err) {
		s.metrics.Conflict(operation)
	}
	return err
}

func validateRequisition(req *repository.Requisition) error {
	if !req.Amount.IsPositive() {
		return errors.InvalidInput("amount", "amount must be greater than zero")
	}
	if !req.Urgency.Valid() {
		return errors.InvalidInput("urgency", fmt.Sprintf("unknown urgency %q", req.Urgency))
	}
	if req.Currency == "" {
		return errors.InvalidInput("currency", "currency is required")
	}
	if req.VesselID == "" {
		return errors.InvalidInput("vessel_id", "vessel is required")
	}
	return nil
}

func routingReason(decision rules.Decision, check *BudgetCheck) string {
	switch {
	case !check.WithinBudget:
		return "Budget not covered: " + check.Reason
	case check.Escalated:
		return check.Reason
	case decision.MatchedRule != "":
		return "Matched rule " + decision.MatchedRule
	case decision.Level == repository.LevelCaptain:
		return "Safety-critical items"
	}
	return "Amount threshold"
}

func levelsToStrings(levels []repository.ApprovalLevel) []string {
	out := make([]string, len(levels))
	for i, l := range levels {
		out[i] = string(l)
	}
	return out
}
