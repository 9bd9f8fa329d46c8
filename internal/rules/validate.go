package rules

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/pesio-ai/be-proc-requisitions/internal/platform/errors"
	"github.com/pesio-ai/be-proc-requisitions/internal/repository"
)

// Validate checks a rule set once, before it is used. All problems are reported
// together as a single configuration error.
func Validate(set []WorkflowRule) error {
	var problems []string
	seenIDs := make(map[string]bool)
	byPriority := make(map[int]WorkflowRule)

	for _, r := range set {
		label := r.ID
		if label == "" {
			label = fmt.Sprintf("priority %d", r.Priority)
			problems = append(problems, label+": missing id")
		} else if seenIDs[r.ID] {
			problems = append(problems, label+": duplicate id")
		}
		seenIDs[r.ID] = true

		if prev, ok := byPriority[r.Priority]; ok && prev.Action != r.Action {
			problems = append(problems, fmt.Sprintf("%s: priority %d already used by %s with a different action", label, r.Priority, prev.ID))
		} else if !ok {
			byPriority[r.Priority] = r
		}

		problems = append(problems, validateAction(label, r.Action)...)
		problems = append(problems, validateCondition(label, "when", &r.Condition)...)
	}

	if len(problems) > 0 {
		return errors.Configuration("invalid rule set: " + strings.Join(problems, "; "))
	}
	return nil
}

func validateAction(label string, a Action) []string {
	switch a.Type {
	case ActionAutoApprove, ActionReject:
		return nil
	case ActionRoute:
		if !a.Level.Valid() || a.Level == repository.LevelAuto {
			return []string{fmt.Sprintf("%s: ROUTE needs a level, got %q", label, a.Level)}
		}
		return nil
	}
	return []string{fmt.Sprintf("%s: unknown action %q", label, a.Type)}
}

func validateCondition(label, path string, c *Condition) []string {
	var problems []string
	bad := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf("%s: %s: ", label, path)+fmt.Sprintf(format, args...))
	}

	switch c.Kind {
	case KindAll, KindAny:
		if len(c.Conditions) == 0 {
			bad("%s needs at least one condition", c.Kind)
		}
		for i := range c.Conditions {
			problems = append(problems, validateCondition(label, fmt.Sprintf("%s.%s[%d]", path, c.Kind, i), &c.Conditions[i])...)
		}
		if c.Kind == KindAll && !amountBoundsSatisfiable(c.Conditions) {
			bad("amount bounds can never all hold")
		}
	case KindNot:
		if c.Condition == nil {
			bad("not needs a condition")
		} else {
			problems = append(problems, validateCondition(label, path+".not", c.Condition)...)
		}
	case KindAmount:
		switch c.Op {
		case OpLT, OpLTE, OpGT, OpGTE, OpEQ:
		default:
			bad("unknown amount operator %q", c.Op)
		}
		if c.Value == nil {
			bad("amount needs a value")
		}
	case KindUrgency:
		if !c.Urgency.Valid() {
			bad("unknown urgency %q", c.Urgency)
		}
	case KindCriticality:
		if c.Criticality != repository.CriticalityStandard && c.Criticality != repository.CriticalitySafetyCritical {
			bad("unknown criticality %q", c.Criticality)
		}
	case KindVessel:
		if len(c.Vessels) == 0 {
			bad("vessel needs at least one id")
		}
	default:
		bad("unknown condition kind %q", c.Kind)
	}
	return problems
}

// amountBoundsSatisfiable intersects the direct amount comparisons of an all
// node and reports whether some amount can satisfy all of them.
func amountBoundsSatisfiable(conds []Condition) bool {
	var (
		lower, upper         *decimal.Decimal
		lowerOpen, upperOpen bool
	)
	atLeast := func(v decimal.Decimal, open bool) {
		if lower == nil || v.GreaterThan(*lower) || (v.Equal(*lower) && open) {
			lower, lowerOpen = &v, open
		}
	}
	atMost := func(v decimal.Decimal, open bool) {
		if upper == nil || v.LessThan(*upper) || (v.Equal(*upper) && open) {
			upper, upperOpen = &v, open
		}
	}

	for _, c := range conds {
		if c.Kind != KindAmount || c.Value == nil {
			continue
		}
		v := *c.Value
		switch c.Op {
		case OpGT:
			atLeast(v, true)
		case OpGTE:
			atLeast(v, false)
		case OpLT:
			atMost(v, true)
		case OpLTE:
			atMost(v, false)
		case OpEQ:
			atLeast(v, false)
			atMost(v, false)
		}
	}

	if lower == nil || upper == nil {
		return true
	}
	if lower.GreaterThan(*upper) {
		return false
	}
	if lower.Equal(*upper) && (lowerOpen || upperOpen) {
		return false
	}
	return true
}
