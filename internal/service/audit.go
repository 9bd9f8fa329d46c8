package service

import (
	"context"

	"github.com/pesio-ai/be-proc-requisitions/internal/platform/logger"
	"github.com/pesio-ai/be-proc-requisitions/internal/repository"
)

// Audit actions.
const (
	auditRouted             = "routed"
	auditAutoApproved       = "auto_approved"
	auditRuleRejected       = "rule_rejected"
	auditApproved           = "approved"
	auditRejected           = "rejected"
	auditDelegated          = "delegated"
	auditEscalated          = "escalated"
	auditEmergencyOverride  = "emergency_override"
	auditOverrideDenied     = "emergency_override_denied"
	auditPostReviewApproved = "post_review_approved"
	auditPostReviewRejected = "post_review_rejected"
)

// appendAudit writes an audit entry and logs a warning on failure (never returns error).
func appendAudit(ctx context.Context, store ApprovalStore, log *logger.Logger, entry *repository.AuditEntry) {
	if err := store.AppendAudit(ctx, entry); err != nil {
		log.Warn().Err(err).
			Str("requisition_id", entry.RequisitionID).
			Str("action", entry.Action).
			Msg("Failed to write audit log entry")
	}
}

func statusPtr(s repository.RequisitionStatus) *repository.RequisitionStatus {
	return &s
}

func strPtr(s string) *string {
	return &s
}

// requisitionUpdate starts a compare-and-swap update from the snapshot's current
// status, carrying over every field the caller does not change.
func requisitionUpdate(req *repository.Requisition, status repository.RequisitionStatus) *repository.RequisitionUpdate {
	return &repository.RequisitionUpdate{
		ID:                   req.ID,
		ExpectedStatuses:     []repository.RequisitionStatus{req.Status},
		Status:               status,
		ApprovalLevel:        req.ApprovalLevel,
		Expedited:            req.Expedited,
		EmergencyOverride:    req.EmergencyOverride,
		RequiresPostApproval: req.RequiresPostApproval,
		OverriddenBy:         req.OverriddenBy,
		OverrideReason:       req.OverrideReason,
	}
}
