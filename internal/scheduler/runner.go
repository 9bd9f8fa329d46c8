// Package scheduler runs the escalation pass on a fixed interval.
package scheduler

import (
	"context"
	"time"

	"github.com/pesio-ai/be-proc-requisitions/internal/platform/logger"
	"github.com/pesio-ai/be-proc-requisitions/internal/service"
)

// Escalator is implemented by service.EscalationService.
type Escalator interface {
	ProcessEscalations(ctx context.Context) (*service.EscalationReport, error)
}

// Runner invokes the escalator every interval while holding the lease.
type Runner struct {
	escalator Escalator
	lease     Lease
	interval  time.Duration
	log       *logger.Logger
}

// NewRunner creates a Runner. A nil lease means every tick runs.
func NewRunner(escalator Escalator, lease Lease, interval time.Duration, log *logger.Logger) *Runner {
	if lease == nil {
		lease = AlwaysLease{}
	}
	return &Runner{escalator: escalator, lease: lease, interval: interval, log: log}
}

// Run blocks until ctx is cancelled. The first pass runs immediately.
func (r *Runner) Run(ctx context.Context) {
	r.log.Info().Dur("interval", r.interval).Msg("Escalation scheduler started")

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		r.RunOnce(ctx)
		select {
		case <-ctx.Done():
			r.log.Info().Msg("Escalation scheduler stopped")
			return
		case <-ticker.C:
		}
	}
}

// RunOnce performs a single pass if the lease is granted and reports whether it ran.
func (r *Runner) RunOnce(ctx context.Context) bool {
	ok, err := r.lease.Acquire(ctx)
	if err != nil {
		r.log.Warn().Err(err).Msg("Escalation lease unavailable; skipping pass")
		return false
	}
	if !ok {
		r.log.Debug().Msg("Escalation lease held by another replica")
		return false
	}

	report, err := r.escalator.ProcessEscalations(ctx)
	if err != nil {
		r.log.Error().Err(err).Msg("Escalation pass failed")
		return true
	}
	if n := len(report.EscalatedApprovals); n > 0 || len(report.Skipped) > 0 {
		r.log.Info().
			Int("escalated", n).
			Int("skipped", len(report.Skipped)).
			Msg("Escalation pass finished")
	}
	return true
}
