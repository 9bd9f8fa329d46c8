package rules

import (
	"slices"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/pesio-ai/be-proc-requisitions/internal/platform/errors"
	"github.com/pesio-ai/be-proc-requisitions/internal/repository"
)

var (
	autoThreshold               = decimal.NewFromInt(500)
	superintendentThreshold     = decimal.NewFromInt(5000)
	procurementManagerThreshold = decimal.NewFromInt(25000)
)

// Evaluator applies a validated rule set. It is immutable and safe for
// concurrent use.
type Evaluator struct {
	rules      []WorkflowRule
	diagnostic string
}

// NewEvaluator validates set and returns an evaluator over it. An invalid set
// yields an evaluator that rejects everything; Err reports why.
func NewEvaluator(set []WorkflowRule) *Evaluator {
	if err := Validate(set); err != nil {
		return FailClosed(err.Error())
	}
	sorted := slices.Clone(set)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Priority < sorted[j].Priority })
	return &Evaluator{rules: sorted}
}

// FailClosed returns an evaluator that rejects every requisition with diagnostic.
func FailClosed(diagnostic string) *Evaluator {
	return &Evaluator{diagnostic: diagnostic}
}

// Err returns the load or validation problem that put the evaluator in
// fail-closed mode, or nil.
func (e *Evaluator) Err() error {
	if e.diagnostic == "" {
		return nil
	}
	return errors.Configuration(e.diagnostic)
}

// Rules returns the active rules in evaluation order.
func (e *Evaluator) Rules() []WorkflowRule {
	return slices.Clone(e.rules)
}

// Evaluate walks the rules in priority order; the first match wins. Without a
// match the amount table decides, with safety-critical items forcing CAPTAIN.
func (e *Evaluator) Evaluate(req *repository.Requisition) Decision {
	if e.diagnostic != "" {
		return Decision{Action: ActionReject, Diagnostic: e.diagnostic}
	}

	safetyCritical := req.HasSafetyCriticalItem()
	expedited := safetyCritical ||
		req.Urgency == repository.UrgencyUrgent ||
		req.Urgency == repository.UrgencyEmergency

	for _, r := range e.rules {
		if !matches(&r.Condition, req) {
			continue
		}
		d := Decision{Action: r.Action.Type, MatchedRule: r.ID, Expedited: expedited}
		switch r.Action.Type {
		case ActionAutoApprove:
			d.Level = repository.LevelAuto
		case ActionRoute:
			d.Level = r.Action.Level
		}
		return d
	}

	if safetyCritical {
		return Decision{Action: ActionRoute, Level: repository.LevelCaptain, Expedited: true}
	}

	level := DefaultLevel(req.Amount)
	if level == repository.LevelAuto {
		return Decision{Action: ActionAutoApprove, Level: level, Expedited: expedited}
	}
	return Decision{Action: ActionRoute, Level: level, Expedited: expedited}
}

// DefaultLevel is the amount-banded table used when no rule matches.
func DefaultLevel(amount decimal.Decimal) repository.ApprovalLevel {
	switch {
	case amount.LessThan(autoThreshold):
		return repository.LevelAuto
	case amount.LessThan(superintendentThreshold):
		return repository.LevelSuperintendent
	case amount.LessThan(procurementManagerThreshold):
		return repository.LevelProcurementManager
	default:
		return repository.LevelSeniorManagement
	}
}

func matches(c *Condition, req *repository.Requisition) bool {
	switch c.Kind {
	case KindAll:
		for i := range c.Conditions {
			if !matches(&c.Conditions[i], req) {
				return false
			}
		}
		return true
	case KindAny:
		for i := range c.Conditions {
			if matches(&c.Conditions[i], req) {
				return true
			}
		}
		return false
	case KindNot:
		return !matches(c.Condition, req)
	case KindAmount:
		cmp := req.Amount.Cmp(*c.Value)
		switch c.Op {
		case OpLT:
			return cmp < 0
		case OpLTE:
			return cmp <= 0
		case OpGT:
			return cmp > 0
		case OpGTE:
			return cmp >= 0
		case OpEQ:
			return cmp == 0
		}
	case KindUrgency:
		return req.Urgency == c.Urgency
	case KindCriticality:
		for _, item := range req.Items {
			if item.Criticality == c.Criticality {
				return true
			}
		}
		return false
	case KindVessel:
		return slices.Contains(c.Vessels, req.VesselID)
	}
	return false
}
