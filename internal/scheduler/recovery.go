package scheduler

import (
	"context"
	"fmt"

	"github.com/ErlanBelekov/homebase/internal/domain"
	ctxlog "github.com/ErlanBelekov/homebase/internal/log"
	"github.com/ErlanBelekov/homebase/internal/metrics"
)

// Recover re-installs timers for persisted definitions after a restart and returns how many
// definitions got at least one timer. Past-due one-shots stay pending and unscheduled; they
// are never fired retroactively. A definition that fails to schedule is logged and skipped.
func (s *Scheduler) Recover(ctx context.Context, defs []*domain.Definition) int {
	scheduled := 0
	for _, d := range defs {
		switch s.recoverOne(ctx, d) {
		case "scheduled":
			scheduled++
			metrics.RecoveryTotal.WithLabelValues("scheduled").Inc()
		case "skipped":
			metrics.RecoveryTotal.WithLabelValues("skipped").Inc()
		default:
			metrics.RecoveryTotal.WithLabelValues("failed").Inc()
		}
	}
	s.logger.InfoContext(ctx, "recovery finished", "definitions", len(defs), "scheduled", scheduled)
	return scheduled
}

func (s *Scheduler) recoverOne(ctx context.Context, d *domain.Definition) (outcome string) {
	ctx = ctxlog.WithDefinitionID(ctx, d.ID)
	defer func() {
		if r := recover(); r != nil {
			s.logger.ErrorContext(ctx, "recover definition panicked", "panic", fmt.Sprint(r))
			outcome = "failed"
		}
	}()

	switch {
	case d.Kind == domain.KindOneShot && d.Status != domain.StatusPending:
		return "skipped"
	case d.Kind == domain.KindCron && !d.Enabled:
		return "skipped"
	}

	ok, err := s.Schedule(ctx, d)
	if err != nil {
		s.logger.ErrorContext(ctx, "recover definition", "kind", d.Kind, "error", err)
		return "failed"
	}
	if !ok {
		return "skipped"
	}
	return "scheduled"
}
