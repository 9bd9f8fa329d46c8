package handler

import (
	"time"

	"github.com/pesio-ai/be-proc-requisitions/internal/repository"
	"github.com/pesio-ai/be-proc-requisitions/internal/service"
)

// The converters below produce plain maps that both transports share: the gRPC
// handler wraps them in structpb and the HTTP handler encodes them as JSON.
// Only types structpb.NewStruct accepts are used.

func routingToMap(r *service.RoutingResult) map[string]interface{} {
	m := map[string]interface{}{
		"requisition_id":   r.RequisitionID,
		"approved":         r.Approved,
		"auto_approved":    r.AutoApproved,
		"pending_approval": r.PendingApproval,
		"rejected":         r.Rejected,
		"approval_level":   string(r.ApprovalLevel),
		"required_tiers":   levels(r.RequiredTiers),
		"expedited":        r.Expedited,
	}
	if r.ApprovalID != "" {
		m["approval_id"] = r.ApprovalID
		m["assigned_to"] = r.AssignedTo
		m["delegated"] = r.Delegated
		m["escalation_time_hours"] = r.EscalationTimeHours
		m["escalation_deadline"] = r.EscalationDeadline.Format(time.RFC3339)
	}
	if r.OriginalApproverID != "" {
		m["original_approver_id"] = r.OriginalApproverID
	}
	if r.MatchedRule != "" {
		m["matched_rule"] = r.MatchedRule
	}
	if r.Diagnostic != "" {
		m["diagnostic"] = r.Diagnostic
	}
	if r.Budget != nil {
		m["budget"] = budgetToMap(r.Budget)
	}
	return m
}

func budgetToMap(c *service.BudgetCheck) map[string]interface{} {
	m := map[string]interface{}{
		"within_budget": c.WithinBudget,
		"level":         string(c.Level),
		"escalated":     c.Escalated,
		"period":        c.Period,
		"multiplier":    c.Multiplier.String(),
	}
	if c.Reason != "" {
		m["reason"] = c.Reason
	}
	if c.Level != "" {
		m["remaining"] = c.Remaining.String()
		m["adjusted_remaining"] = c.AdjustedRemaining.String()
		m["adjusted_limit"] = c.AdjustedLimit.String()
	}
	return m
}

func decisionToMap(d *service.DecisionResult) map[string]interface{} {
	m := map[string]interface{}{
		"approval_id":    d.ApprovalID,
		"requisition_id": d.RequisitionID,
		"status":         string(d.Status),
		"can_proceed":    d.CanProceed,
		"rejected":       d.Rejected,
		"tiers_approved": d.TiersApproved,
		"required_tiers": levels(d.RequiredTiers),
		"overspend":      d.Overspend,
	}
	if d.Next != nil {
		m["next"] = approvalToMap(d.Next)
	}
	if d.BudgetLevel != "" {
		m["budget_level"] = string(d.BudgetLevel)
	}
	return m
}

func overrideToMap(o *service.OverrideResult) map[string]interface{} {
	m := map[string]interface{}{
		"requisition_id":         o.RequisitionID,
		"approved":               o.Approved,
		"emergency_override":     o.EmergencyOverride,
		"requires_post_approval": o.RequiresPostApproval,
		"overridden_by":          o.OverriddenBy,
		"budget_committed":       o.BudgetCommitted,
	}
	if o.ReviewApprovalID != "" {
		m["review_approval_id"] = o.ReviewApprovalID
	}
	if o.BudgetLevel != "" {
		m["budget_level"] = string(o.BudgetLevel)
	}
	return m
}

func escalationToMap(r *service.EscalationReport) map[string]interface{} {
	escalated := make([]interface{}, 0, len(r.EscalatedApprovals))
	for _, e := range r.EscalatedApprovals {
		escalated = append(escalated, map[string]interface{}{
			"requisition_id":    e.RequisitionID,
			"from_approval_id":  e.FromApprovalID,
			"to_approval_id":    e.ToApprovalID,
			"from_level":        string(e.FromLevel),
			"to_level":          string(e.ToLevel),
			"original_approver": e.OriginalApprover,
			"new_approver":      e.NewApprover,
			"notified":          e.Notified,
		})
	}
	skipped := make([]interface{}, 0, len(r.Skipped))
	for _, s := range r.Skipped {
		skipped = append(skipped, map[string]interface{}{"approval_id": s.ApprovalID, "reason": s.Reason})
	}
	return map[string]interface{}{
		"escalated_approvals": escalated,
		"skipped":             skipped,
	}
}

func approvalToMap(a *repository.ApprovalRecord) map[string]interface{} {
	m := map[string]interface{}{
		"id":                  a.ID,
		"requisition_id":      a.RequisitionID,
		"vessel_id":           a.VesselID,
		"level":               string(a.Level),
		"purpose":             string(a.Purpose),
		"tier":                a.Tier,
		"required_tiers":      levels(a.Chain),
		"assigned_to":         a.AssignedTo,
		"status":              string(a.Status),
		"reason":              a.Reason,
		"escalation_deadline": a.EscalationDeadline.Format(time.RFC3339),
		"created_at":          a.CreatedAt.Format(time.RFC3339),
	}
	optional(m, "delegated_to", a.DelegatedTo)
	optional(m, "original_approver_id", a.OriginalApproverID)
	optional(m, "escalated_from", a.EscalatedFrom)
	optional(m, "acted_by", a.ActedBy)
	optional(m, "notes", a.Notes)
	return m
}

func approvalsToMap(records []*repository.ApprovalRecord) map[string]interface{} {
	out := make([]interface{}, 0, len(records))
	for _, r := range records {
		out = append(out, approvalToMap(r))
	}
	return map[string]interface{}{"approvals": out}
}

func auditToMap(entries []*repository.AuditEntry) map[string]interface{} {
	out := make([]interface{}, 0, len(entries))
	for _, e := range entries {
		m := map[string]interface{}{
			"id":           e.ID,
			"action":       e.Action,
			"performed_by": e.PerformedBy,
			"performed_at": e.PerformedAt.Format(time.RFC3339),
		}
		optional(m, "approval_id", e.ApprovalID)
		if e.StatusBefore != nil {
			m["status_before"] = string(*e.StatusBefore)
		}
		if e.StatusAfter != nil {
			m["status_after"] = string(*e.StatusAfter)
		}
		out = append(out, m)
	}
	return map[string]interface{}{"history": out}
}

func levels(ls []repository.ApprovalLevel) []interface{} {
	out := make([]interface{}, len(ls))
	for i, l := range ls {
		out[i] = string(l)
	}
	return out
}

func optional(m map[string]interface{}, key string, v *string) {
	if v != nil {
		m[key] = *v
	}
}
