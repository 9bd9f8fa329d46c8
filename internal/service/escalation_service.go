package service

import (
	"context"

	"go.opentelemetry.io/otel/attribute"

	"github.com/pesio-ai/be-proc-requisitions/internal/platform/clock"
	"github.com/pesio-ai/be-proc-requisitions/internal/platform/errors"
	"github.com/pesio-ai/be-proc-requisitions/internal/platform/idgen"
	"github.com/pesio-ai/be-proc-requisitions/internal/platform/logger"
	"github.com/pesio-ai/be-proc-requisitions/internal/platform/metrics"
	"github.com/pesio-ai/be-proc-requisitions/internal/platform/tracing"
	"github.com/pesio-ai/be-proc-requisitions/internal/repository"
)

const (
	reasonOverdue   = "Approval overdue"
	defaultBatch    = 200
	skipTopOfLadder = "already at highest authority"
)

// EscalatedApproval is one reassignment made by a pass.
type EscalatedApproval struct {
	RequisitionID    string
	FromApprovalID   string
	ToApprovalID     string
	FromLevel        repository.ApprovalLevel
	ToLevel          repository.ApprovalLevel
	OriginalApprover string
	NewApprover      string
	Notified         bool
}

// SkippedApproval is an overdue record a pass left alone.
type SkippedApproval struct {
	ApprovalID string
	Reason     string
}

// EscalationReport summarises one scheduler pass.
type EscalationReport struct {
	EscalatedApprovals []EscalatedApproval
	Skipped            []SkippedApproval
}

// EscalationService reassigns overdue approvals one authority level up.
type EscalationService struct {
	store     ApprovalStore
	resolver  *DelegationResolver
	notifier  EscalationNotifier
	deadlines Deadlines
	batchSize int
	clock     clock.Clock
	ids       idgen.Generator
	metrics   *metrics.Metrics
	log       *logger.Logger
}

// NewEscalationService creates a new EscalationService. notifier may be nil.
func NewEscalationService(
	store ApprovalStore,
	resolver *DelegationResolver,
	notifier EscalationNotifier,
	deadlines Deadlines,
	batchSize int,
	clk clock.Clock,
	ids idgen.Generator,
	m *metrics.Metrics,
	log *logger.Logger,
) *EscalationService {
	if batchSize <= 0 {
		batchSize = defaultBatch
	}
	return &EscalationService{
		store:     store,
		resolver:  resolver,
		notifier:  notifier,
		deadlines: deadlines,
		batchSize: batchSize,
		clock:     clk,
		ids:       ids,
		metrics:   m,
		log:       log,
	}
}

// ProcessEscalations runs one pass. Each overdue record moves at most one level;
// a record that changed state since it was read is skipped, so re-running a
// pass never escalates the same record twice.
func (s *EscalationService) ProcessEscalations(ctx context.Context) (report *EscalationReport, err error) {
	ctx, span := tracing.StartSpan(ctx, "escalation.process")
	defer func() { tracing.EndSpan(span, err) }()

	now := s.clock.Now()
	overdue, err := s.store.ListOverdueApprovals(ctx, now, s.batchSize)
	if err != nil {
		return nil, err
	}

	report = &EscalationReport{}
	for _, rec := range overdue {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		escalated, skip := s.escalate(ctx, rec)
		if skip != nil {
			report.Skipped = append(report.Skipped, *skip)
			continue
		}
		report.EscalatedApprovals = append(report.EscalatedApprovals, *escalated)
	}

	span.SetAttributes(
		attribute.Int("escalation.overdue", len(overdue)),
		attribute.Int("escalation.escalated", len(report.EscalatedApprovals)),
	)
	if len(overdue) > 0 {
		s.log.Info().
			Int("overdue", len(overdue)).
			Int("escalated", len(report.EscalatedApprovals)).
			Int("skipped", len(report.Skipped)).
			Msg("Escalation pass complete")
	}
	return report, nil
}

func (s *EscalationService) escalate(ctx context.Context, rec *repository.ApprovalRecord) (*EscalatedApproval, *SkippedApproval) {
	next, ok := rec.Level.NextAuthority()
	if !ok {
		s.log.Warn().
			Str("approval_id", rec.ID).
			Str("level", string(rec.Level)).
			Msg("Overdue approval is already at the highest authority; not escalated")
		return nil, &SkippedApproval{ApprovalID: rec.ID, Reason: skipTopOfLadder}
	}

	now := s.clock.Now()
	resolution, err := s.resolver.ResolveApprover(ctx, next.Role(), rec.VesselID, now)
	if err != nil {
		s.log.Warn().Err(err).
			Str("approval_id", rec.ID).
			Str("next_level", string(next)).
			Msg("Cannot resolve approver for escalation")
		return nil, &SkippedApproval{ApprovalID: rec.ID, Reason: err.Error()}
	}

	// Keep the record's original window so expedited approvals stay expedited.
	window := rec.EscalationDeadline.Sub(rec.CreatedAt)
	if window <= 0 {
		window = s.deadlines.window(repository.UrgencyRoutine, false)
	}

	escalatedFrom := rec.ID
	newRec := &repository.ApprovalRecord{
		ID:                 s.ids.NewID(),
		RequisitionID:      rec.RequisitionID,
		VesselID:           rec.VesselID,
		Level:              next,
		Purpose:            rec.Purpose,
		Chain:              rec.Chain,
		Tier:               rec.Tier,
		AssignedTo:         resolution.ApproverID,
		Status:             repository.ApprovalPending,
		Reason:             reasonOverdue,
		EscalatedFrom:      &escalatedFrom,
		EscalationDeadline: now.Add(window),
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if resolution.Delegated {
		newRec.OriginalApproverID = strPtr(resolution.OriginalApproverID)
	}

	err = s.store.ApplyTransition(ctx, &repository.Transition{
		Approval: &repository.ApprovalUpdate{
			ID:             rec.ID,
			ExpectedStatus: rec.Status,
			Status:         repository.ApprovalEscalated,
			Notes:          strPtr(reasonOverdue),
			UpdatedAt:      now,
		},
		Create: newRec,
	})
	if err != nil {
		if errors.IsConflict(err) {
			s.metrics.Conflict("escalate")
		}
		s.log.Warn().Err(err).Str("approval_id", rec.ID).Msg("Escalation not applied")
		return nil, &SkippedApproval{ApprovalID: rec.ID, Reason: err.Error()}
	}

	original := rec.AssignedTo
	if rec.DelegatedTo != nil {
		original = *rec.DelegatedTo
	}
	out := &EscalatedApproval{
		RequisitionID:    rec.RequisitionID,
		FromApprovalID:   rec.ID,
		ToApprovalID:     newRec.ID,
		FromLevel:        rec.Level,
		ToLevel:          next,
		OriginalApprover: original,
		NewApprover:      newRec.AssignedTo,
	}

	s.metrics.Escalated(string(rec.Level), string(next))
	s.log.Info().
		Str("requisition_id", rec.RequisitionID).
		Str("from_approval_id", rec.ID).
		Str("to_approval_id", newRec.ID).
		Str("from_level", string(rec.Level)).
		Str("to_level", string(next)).
		Str("new_approver", newRec.AssignedTo).
		Msg("Overdue approval escalated")

	// Delivery failure is logged only: the record has already moved.
	if s.notifier != nil {
		if err := s.notifier.PublishApprovalEscalated(ctx, newRec.ID, rec.RequisitionID, original, newRec.AssignedTo, reasonOverdue, now); err != nil {
			s.log.Warn().Err(err).
				Str("approval_id", newRec.ID).
				Msg("Failed to publish escalation notification (non-fatal)")
		} else {
			out.Notified = true
		}
	}

	appendAudit(ctx, s.store, s.log, &repository.AuditEntry{
		RequisitionID: rec.RequisitionID,
		ApprovalID:    &newRec.ID,
		Action:        auditEscalated,
		PerformedBy:   "system",
		PerformedAt:   now,
		Metadata: map[string]interface{}{
			"escalated_from":    rec.ID,
			"from_level":        string(rec.Level),
			"to_level":          string(next),
			"original_approver": original,
			"new_approver":      newRec.AssignedTo,
			"reason":            reasonOverdue,
			"notified":          out.Notified,
		},
	})
	return out, nil
}
