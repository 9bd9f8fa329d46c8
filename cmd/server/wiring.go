package main

import (
	"context"

	"github.com/pesio-ai/be-proc-requisitions/internal/platform/clock"
	"github.com/pesio-ai/be-proc-requisitions/internal/platform/config"
	"github.com/pesio-ai/be-proc-requisitions/internal/platform/database"
	"github.com/pesio-ai/be-proc-requisitions/internal/platform/idgen"
	"github.com/pesio-ai/be-proc-requisitions/internal/platform/logger"
	"github.com/pesio-ai/be-proc-requisitions/internal/platform/metrics"
	"github.com/pesio-ai/be-proc-requisitions/internal/repository"
	"github.com/pesio-ai/be-proc-requisitions/internal/rules"
	"github.com/pesio-ai/be-proc-requisitions/internal/service"
)

// core holds the approval services built on one store.
type core struct {
	router     *service.ApprovalRouter
	escalation *service.EscalationService
	override   *service.OverrideService
}

func openDatabase(ctx context.Context, cfg config.DatabaseConfig) (*database.DB, error) {
	return database.New(ctx, database.Config{
		DSN:         cfg.DSN(),
		MaxConns:    cfg.MaxConns,
		MinConns:    cfg.MinConns,
		MaxConnTime: cfg.MaxConnTime,
		MaxIdleTime: cfg.MaxIdleTime,
		HealthCheck: cfg.HealthCheck,
	})
}

// ruleSource picks the configured rule source. The database source needs the
// postgres store; in memory mode it falls back to the file source.
func ruleSource(cfg config.RulesConfig, store *repository.Store) rules.Source {
	if cfg.Source == "database" && store != nil {
		return rules.DatabaseSource{Repo: store.Rules}
	}
	return rules.FileSource{Path: cfg.Path}
}

func buildCore(
	ctx context.Context,
	cfg *config.Config,
	store service.ApprovalStore,
	src rules.Source,
	notifier service.EscalationNotifier,
	m *metrics.Metrics,
	log *logger.Logger,
) *core {
	evaluator := rules.Load(ctx, src, log.Component("rules"))

	deadlines := service.Deadlines{
		Default:   cfg.Escalation.DefaultWindow,
		Expedited: cfg.Escalation.ExpeditedWindow,
		Emergency: cfg.Escalation.EmergencyWindow,
	}
	clk := clock.System{}
	ids := idgen.UUID{}

	budgets := service.NewBudgetValidator(store, clk, log.Component("budget"))
	resolver := service.NewDelegationResolver(store, log.Component("delegation"))

	return &core{
		router: service.NewApprovalRouter(store, evaluator, budgets, resolver, deadlines, clk, ids, m, log.Component("router")),
		escalation: service.NewEscalationService(store, resolver, notifier, deadlines, cfg.Escalation.BatchSize,
			clk, ids, m, log.Component("escalation")),
		override: service.NewOverrideService(store, budgets, resolver, deadlines, clk, ids, m, log.Component("override")),
	}
}

func validateRulesFile(ctx context.Context, path string) (int, error) {
	set, err := rules.FileSource{Path: path}.Load(ctx)
	if err != nil {
		return 0, err
	}
	return len(set), rules.Validate(set)
}
