// Package rules evaluates the prioritised workflow rule set that decides how a
// requisition is routed.
package rules

import (
	"github.com/shopspring/decimal"

	"github.com/pesio-ai/be-proc-requisitions/internal/repository"
)

// ConditionKind tags a node of the predicate tree.
type ConditionKind string

const (
	KindAll         ConditionKind = "all"
	KindAny         ConditionKind = "any"
	KindNot         ConditionKind = "not"
	KindAmount      ConditionKind = "amount"
	KindUrgency     ConditionKind = "urgency"
	KindCriticality ConditionKind = "criticality"
	KindVessel      ConditionKind = "vessel"
)

// Operator compares the requisition amount with a threshold.
type Operator string

const (
	OpLT  Operator = "lt"
	OpLTE Operator = "lte"
	OpGT  Operator = "gt"
	OpGTE Operator = "gte"
	OpEQ  Operator = "eq"
)

// Condition is one node of a rule's predicate tree. Which fields are read
// depends on Kind.
type Condition struct {
	Kind        ConditionKind          `yaml:"kind" json:"kind"`
	Conditions  []Condition            `yaml:"conditions,omitempty" json:"conditions,omitempty"` // all, any
	Condition   *Condition             `yaml:"condition,omitempty" json:"condition,omitempty"`   // not
	Op          Operator               `yaml:"op,omitempty" json:"op,omitempty"`
	Value       *decimal.Decimal       `yaml:"value,omitempty" json:"value,omitempty"`
	Urgency     repository.Urgency     `yaml:"urgency,omitempty" json:"urgency,omitempty"`
	Criticality repository.Criticality `yaml:"criticality,omitempty" json:"criticality,omitempty"`
	Vessels     []string               `yaml:"vessels,omitempty" json:"vessels,omitempty"`
}

// ActionType is what a matching rule does with the requisition.
type ActionType string

const (
	ActionAutoApprove ActionType = "AUTO_APPROVE"
	ActionRoute       ActionType = "ROUTE"
	ActionReject      ActionType = "REJECT"
)

// Action is the outcome attached to a rule. Level is only read for ROUTE.
type Action struct {
	Type  ActionType               `yaml:"type" json:"type"`
	Level repository.ApprovalLevel `yaml:"level,omitempty" json:"level,omitempty"`
}

// WorkflowRule is a priority-ordered condition/action pair. Lower priority
// values are evaluated first.
type WorkflowRule struct {
	ID        string    `yaml:"id" json:"id"`
	Name      string    `yaml:"name" json:"name"`
	Priority  int       `yaml:"priority" json:"priority"`
	Condition Condition `yaml:"when" json:"when"`
	Action    Action    `yaml:"then" json:"then"`
}

// Decision is the evaluator's verdict for one requisition.
type Decision struct {
	Action      ActionType
	Level       repository.ApprovalLevel
	MatchedRule string // empty when the default table decided
	Expedited   bool
	Diagnostic  string // set when the rule set is unusable
}
