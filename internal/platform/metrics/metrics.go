package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the approval-core counters. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	requisitionsRouted *prometheus.CounterVec
	approvalDecisions  *prometheus.CounterVec
	escalations        *prometheus.CounterVec
	overrides          *prometheus.CounterVec
	conflicts          *prometheus.CounterVec
	budgetCommits      *prometheus.CounterVec
}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requisitionsRouted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "requisitions_routed_total",
			Help: "Requisitions processed by the approval router, by outcome and level",
		}, []string{"outcome", "level"}),
		approvalDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "approval_decisions_total",
			Help: "Approval decisions applied, by level and decision",
		}, []string{"level", "decision"}),
		escalations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "approval_escalations_total",
			Help: "Overdue approvals escalated, by source and target level",
		}, []string{"from", "to"}),
		overrides: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "emergency_overrides_total",
			Help: "Emergency override attempts, by result",
		}, []string{"result"}),
		conflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "approval_conflicts_total",
			Help: "Optimistic-concurrency conflicts, by operation",
		}, []string{"operation"}),
		budgetCommits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "budget_commits_total",
			Help: "Budget commitments on final approval, by budget scope",
		}, []string{"scope"}),
	}

	m.registry.MustRegister(
		m.requisitionsRouted,
		m.approvalDecisions,
		m.escalations,
		m.overrides,
		m.conflicts,
		m.budgetCommits,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) RequisitionRouted(outcome, level string) {
	if m == nil {
		return
	}
	m.requisitionsRouted.WithLabelValues(outcome, level).Inc()
}

func (m *Metrics) ApprovalDecided(level, decision string) {
	if m == nil {
		return
	}
	m.approvalDecisions.WithLabelValues(level, decision).Inc()
}

func (m *Metrics) Escalated(from, to string) {
	if m == nil {
		return
	}
	m.escalations.WithLabelValues(from, to).Inc()
}

func (m *Metrics) Override(result string) {
	if m == nil {
		return
	}
	m.overrides.WithLabelValues(result).Inc()
}

func (m *Metrics) Conflict(operation string) {
	if m == nil {
		return
	}
	m.conflicts.WithLabelValues(operation).Inc()
}

func (m *Metrics) BudgetCommitted(scope string) {
	if m == nil {
		return
	}
	m.budgetCommits.WithLabelValues(scope).Inc()
}
