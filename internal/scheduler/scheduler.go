package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ErlanBelekov/homebase/internal/clock"
	"github.com/ErlanBelekov/homebase/internal/domain"
	ctxlog "github.com/ErlanBelekov/homebase/internal/log"
	"github.com/ErlanBelekov/homebase/internal/metrics"
	"github.com/ErlanBelekov/homebase/internal/repository"
	"github.com/robfig/cron/v3"
)

// Dispatcher executes the action carried by a definition's payload.
type Dispatcher interface {
	Dispatch(ctx context.Context, d *domain.Definition) error
}

// CronRunner is satisfied by *cron.Cron.
type CronRunner interface {
	Schedule(schedule cron.Schedule, job cron.Job) cron.EntryID
	Remove(id cron.EntryID)
}

type afterFuncTimer struct {
	t clock.Timer
}

func (a afterFuncTimer) Cancel() { a.t.Stop() }

type cronEntryTimer struct {
	runner CronRunner
	id     cron.EntryID
}

func (c cronEntryTimer) Cancel() { c.runner.Remove(c.id) }

// Scheduler keeps the Registry consistent with persisted definitions and runs
// the dispatch for every timer that fires.
type Scheduler struct {
	repo       repository.DefinitionRepository
	dispatcher Dispatcher
	runner     CronRunner
	clock      clock.Clock
	loc        *time.Location
	logger     *slog.Logger
	registry   *Registry

	// mu serialises every Registry mutation, including fire-time deregistration.
	mu       sync.Mutex
	closed   bool
	inFlight map[*Handle]struct{}
	wg       sync.WaitGroup
}

func NewScheduler(
	repo repository.DefinitionRepository,
	dispatcher Dispatcher,
	runner CronRunner,
	clk clock.Clock,
	loc *time.Location,
	logger *slog.Logger,
) *Scheduler {
	if loc == nil {
		loc = time.Local
	}
	return &Scheduler{
		repo:       repo,
		dispatcher: dispatcher,
		runner:     runner,
		clock:      clk,
		loc:        loc,
		logger:     logger.With("component", "scheduler"),
		registry:   NewRegistry(),
		inFlight:   make(map[*Handle]struct{}),
	}
}

// Schedule installs the timers d calls for. It reports whether any timer was installed.
// A one-shot whose instant is not in the future is logged and left unscheduled.
func (s *Scheduler) Schedule(ctx context.Context, d *domain.Definition) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.updateGauge()

	return s.schedule(ctx, d)
}

// Reschedule cancels every timer for d.ID and schedules d again, as one Registry mutation.
func (s *Scheduler) Reschedule(ctx context.Context, d *domain.Definition) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.updateGauge()

	s.registry.Cancel(d.ID)
	return s.schedule(ctx, d)
}

// Cancel stops future firings of id. Dispatches already running are not affected and
// the persisted definition is left alone. Unknown ids are a no-op.
func (s *Scheduler) Cancel(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.updateGauge()

	return s.registry.Cancel(id)
}

func (s *Scheduler) ListActiveJobIDs() []string {
	return s.registry.List()
}

func (s *Scheduler) ActiveJobs() []ActiveJob {
	return s.registry.Snapshot(s.clock.Now().In(s.loc))
}

// ErrStopped is returned by Ping once Shutdown has begun.
var ErrStopped = errors.New("scheduler stopped")

// Ping satisfies health.Pinger.
func (s *Scheduler) Ping(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStopped
	}
	return nil
}

// Shutdown stops accepting fires and waits for in-flight dispatches to finish.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	for _, id := range s.registry.List() {
		s.registry.Cancel(id)
	}
	s.updateGauge()
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for in-flight dispatches: %w", ctx.Err())
	}
}

// schedule must be called with s.mu held.
func (s *Scheduler) schedule(ctx context.Context, d *domain.Definition) (bool, error) {
	if s.closed {
		return false, nil
	}
	ctx = ctxlog.WithDefinitionID(ctx, d.ID)

	switch d.Kind {
	case domain.KindOneShot:
		return s.scheduleOneShot(ctx, d)
	case domain.KindCron:
		return s.scheduleCron(ctx, d)
	default:
		return false, fmt.Errorf("%w: unknown kind %q", domain.ErrValidation, d.Kind)
	}
}

func (s *Scheduler) scheduleOneShot(ctx context.Context, d *domain.Definition) (bool, error) {
	if d.Trigger.At == nil {
		return false, fmt.Errorf("%w: one_shot definition has no trigger instant", domain.ErrValidation)
	}
	if d.Status != domain.StatusPending {
		s.logger.DebugContext(ctx, "definition not pending, not scheduling", "status", d.Status)
		return false, nil
	}

	now := s.clock.Now()
	at, ok := FixedInstant(*d.Trigger.At).NextFireTime(now)
	if !ok {
		s.logger.WarnContext(ctx, "trigger instant already passed, not scheduling", "at", *d.Trigger.At)
		return false, nil
	}

	id := d.ID
	h := &Handle{Trigger: FixedInstant(at), Label: at.Format(time.RFC3339)}
	t := s.clock.AfterFunc(at.Sub(now), func() { s.fireOneShot(id, h, at) })
	h.Timer = afterFuncTimer{t: t}

	s.registry.Set(id, domain.KindOneShot, []*Handle{h})
	s.logger.InfoContext(ctx, "one-shot scheduled", "at", at)
	return true, nil
}

func (s *Scheduler) scheduleCron(ctx context.Context, d *domain.Definition) (bool, error) {
	if !d.Enabled {
		s.registry.Cancel(d.ID)
		s.logger.DebugContext(ctx, "cron definition disabled, no timers")
		return false, nil
	}

	triggers, err := cronTriggers(d.Trigger, s.loc)
	if err != nil {
		return false, err
	}

	id := d.ID
	handles := make([]*Handle, 0, len(triggers))
	for _, c := range triggers {
		h := &Handle{Trigger: c, Label: c.Expr}
		entryID := s.runner.Schedule(c.schedule, cron.FuncJob(func() { s.fireCron(id, h) }))
		h.Timer = cronEntryTimer{runner: s.runner, id: entryID}
		handles = append(handles, h)
	}

	s.registry.Set(id, domain.KindCron, handles)
	s.logger.InfoContext(ctx, "cron scheduled", "expressions", d.Trigger.Expressions)
	return true, nil
}

// fireOneShot runs when a fixed-instant timer fires. intended is the instant the timer was
// armed for; recurrence is derived from it, not from the actual fire time.
func (s *Scheduler) fireOneShot(id string, h *Handle, intended time.Time) {
	s.mu.Lock()
	if s.closed || !s.registry.Take(id, h) {
		s.mu.Unlock()
		return
	}
	s.wg.Add(1)
	s.updateGauge()
	s.mu.Unlock()
	defer s.wg.Done()

	ctx := ctxlog.WithDefinitionID(context.Background(), id)

	d, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrDefinitionNotFound) {
			s.logger.InfoContext(ctx, "fired definition no longer exists, dropping")
			return
		}
		s.logger.ErrorContext(ctx, "load fired definition", "error", err)
		return
	}
	if d.Status != domain.StatusPending {
		s.logger.InfoContext(ctx, "fired definition no longer pending, dropping", "status", d.Status)
		return
	}

	if err := s.dispatcher.Dispatch(ctx, d); err != nil {
		s.logger.ErrorContext(ctx, "dispatch failed, definition left pending", "error", err)
		s.recordFailure(ctx, id, err)
		return
	}

	firedAt := s.clock.Now()
	sent := false
	updated, err := s.repo.Update(ctx, id, func(cur *domain.Definition) error {
		cur.LastFiredAt = &firedAt
		cur.LastError = nil
		if cur.Trigger.At == nil || !cur.Trigger.At.Equal(intended) {
			// moved while dispatching; the newer timer owns the definition
			return nil
		}
		cur.Status = domain.StatusSent
		sent = true
		return nil
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "mark definition sent", "error", err)
		return
	}
	if !sent {
		s.logger.InfoContext(ctx, "trigger changed during dispatch, leaving pending")
		return
	}
	s.logger.InfoContext(ctx, "definition sent", "fired_at", firedAt)

	if updated.Recurrence != nil {
		s.spawnNext(ctx, updated, intended)
	}
}

func (s *Scheduler) spawnNext(ctx context.Context, prev *domain.Definition, intended time.Time) {
	last := intended.In(s.loc)
	next, ok := NextOccurrence(last, *prev.Recurrence)
	if !ok {
		s.logger.InfoContext(ctx, "recurrence finished", "occurrence", prev.Recurrence.CurrentOccurrence)
		return
	}

	rec := *prev.Recurrence
	rec.CurrentOccurrence++
	if rec.DayOfMonth == 0 {
		rec.DayOfMonth = last.Day()
	}

	created, err := s.repo.Create(ctx, &domain.Definition{
		Kind:       domain.KindOneShot,
		Trigger:    domain.FixedTrigger(next),
		Payload:    prev.Payload,
		Enabled:    prev.Enabled,
		Status:     domain.StatusPending,
		Recurrence: &rec,
		PreviousID: prev.ID,
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "create next occurrence", "error", err)
		return
	}
	metrics.OccurrencesSpawnedTotal.Inc()
	s.logger.InfoContext(ctx, "next occurrence created",
		"next_id", created.ID,
		"at", next,
		"occurrence", rec.CurrentOccurrence,
	)

	if _, err := s.Schedule(ctx, created); err != nil {
		s.logger.ErrorContext(ctx, "schedule next occurrence", "next_id", created.ID, "error", err)
	}
}

// fireCron runs on every tick of one cron handle. A tick that arrives while the previous
// tick of the same handle is still dispatching is skipped.
func (s *Scheduler) fireCron(id string, h *Handle) {
	s.mu.Lock()
	if s.closed || !s.registry.Has(id, h) {
		s.mu.Unlock()
		return
	}
	if _, busy := s.inFlight[h]; busy {
		s.mu.Unlock()
		s.logger.Warn("previous run still in flight, skipping tick", "definition_id", id, "expression", h.Label)
		return
	}
	s.inFlight[h] = struct{}{}
	s.wg.Add(1)
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.inFlight, h)
		s.mu.Unlock()
		s.wg.Done()
	}()

	ctx := ctxlog.WithDefinitionID(context.Background(), id)

	d, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrDefinitionNotFound) {
			s.logger.InfoContext(ctx, "fired definition no longer exists, dropping")
			return
		}
		s.logger.ErrorContext(ctx, "load fired definition", "error", err)
		return
	}
	if !d.Enabled {
		s.logger.InfoContext(ctx, "fired definition disabled, dropping")
		return
	}

	if err := s.dispatcher.Dispatch(ctx, d); err != nil {
		s.logger.ErrorContext(ctx, "dispatch failed", "expression", h.Label, "error", err)
		s.recordFailure(ctx, id, err)
		return
	}

	firedAt := s.clock.Now()
	if _, err := s.repo.Update(ctx, id, func(cur *domain.Definition) error {
		cur.LastFiredAt = &firedAt
		cur.LastError = nil
		return nil
	}); err != nil {
		s.logger.ErrorContext(ctx, "record cron fire", "error", err)
		return
	}
	s.logger.InfoContext(ctx, "cron fired", "expression", h.Label)
}

func (s *Scheduler) recordFailure(ctx context.Context, id string, dispatchErr error) {
	msg := dispatchErr.Error()
	if _, err := s.repo.Update(ctx, id, func(cur *domain.Definition) error {
		cur.LastError = &msg
		return nil
	}); err != nil {
		s.logger.ErrorContext(ctx, "record dispatch failure", "error", err)
	}
}

func (s *Scheduler) updateGauge() {
	metrics.ActiveTimers.Set(float64(s.registry.HandleCount()))
}
