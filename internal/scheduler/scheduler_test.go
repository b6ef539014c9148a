package scheduler_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ErlanBelekov/homebase/internal/clock"
	"github.com/ErlanBelekov/homebase/internal/domain"
	"github.com/ErlanBelekov/homebase/internal/notify"
	"github.com/ErlanBelekov/homebase/internal/repository"
	"github.com/ErlanBelekov/homebase/internal/scheduler"
	"github.com/robfig/cron/v3"
)

var t0 = time.Date(2025, 1, 6, 8, 0, 0, 0, time.UTC)

// ---- in-memory store ----

type memRepo struct {
	mu    sync.Mutex
	items map[string]domain.Definition
	seq   int
}

func newMemRepo(defs ...*domain.Definition) *memRepo {
	r := &memRepo{items: make(map[string]domain.Definition)}
	for _, d := range defs {
		r.items[d.ID] = *d
	}
	return r
}

func (r *memRepo) Create(_ context.Context, d *domain.Definition) (*domain.Definition, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := *d
	if c.ID == "" {
		r.seq++
		c.ID = fmt.Sprintf("gen-%d", r.seq)
	}
	if _, ok := r.items[c.ID]; ok {
		return nil, domain.ErrDefinitionExists
	}
	r.items[c.ID] = c
	return &c, nil
}

func (r *memRepo) GetByID(_ context.Context, id string) (*domain.Definition, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.items[id]
	if !ok {
		return nil, domain.ErrDefinitionNotFound
	}
	return &d, nil
}

func (r *memRepo) List(_ context.Context, _ repository.ListDefinitionsInput) ([]*domain.Definition, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*domain.Definition, 0, len(r.items))
	for _, d := range r.items {
		out = append(out, &d)
	}
	return out, nil
}

func (r *memRepo) Update(_ context.Context, id string, fn func(d *domain.Definition) error) (*domain.Definition, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.items[id]
	if !ok {
		return nil, domain.ErrDefinitionNotFound
	}
	if err := fn(&d); err != nil {
		return nil, err
	}
	r.items[id] = d
	return &d, nil
}

func (r *memRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[id]; !ok {
		return domain.ErrDefinitionNotFound
	}
	delete(r.items, id)
	return nil
}

func (r *memRepo) get(t *testing.T, id string) domain.Definition {
	t.Helper()
	d, err := r.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("get %s: %v", id, err)
	}
	return *d
}

// ---- fakes ----

type fakeDispatcher struct {
	calls      atomic.Int32
	dispatchFn func(ctx context.Context, d *domain.Definition) error
}

func (f *fakeDispatcher) Dispatch(ctx context.Context, d *domain.Definition) error {
	f.calls.Add(1)
	if f.dispatchFn == nil {
		return nil
	}
	return f.dispatchFn(ctx, d)
}

type fakeRunner struct {
	mu      sync.Mutex
	next    cron.EntryID
	entries map[cron.EntryID]cron.Job
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{entries: make(map[cron.EntryID]cron.Job)}
}

func (f *fakeRunner) Schedule(_ cron.Schedule, job cron.Job) cron.EntryID {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	f.entries[f.next] = job
	return f.next
}

func (f *fakeRunner) Remove(id cron.EntryID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.entries, id)
}

func (f *fakeRunner) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.entries)
}

// tickAll runs every live entry once, like the cron runner would on a matching minute.
func (f *fakeRunner) tickAll() {
	f.mu.Lock()
	jobs := make([]cron.Job, 0, len(f.entries))
	for _, j := range f.entries {
		jobs = append(jobs, j)
	}
	f.mu.Unlock()
	for _, j := range jobs {
		j.Run()
	}
}

type harness struct {
	repo       *memRepo
	dispatcher *fakeDispatcher
	runner     *fakeRunner
	clock      *clock.Fake
	sched      *scheduler.Scheduler
}

func newHarness(defs ...*domain.Definition) *harness {
	h := &harness{
		repo:       newMemRepo(defs...),
		dispatcher: &fakeDispatcher{},
		runner:     newFakeRunner(),
		clock:      clock.NewFake(t0),
	}
	h.sched = scheduler.NewScheduler(h.repo, h.dispatcher, h.runner, h.clock, time.UTC, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return h
}

func reminder(id string, at time.Time) *domain.Definition {
	return &domain.Definition{
		ID:      id,
		Kind:    domain.KindOneShot,
		Trigger: domain.FixedTrigger(at),
		Payload: domain.Payload{Notification: &domain.NotificationPayload{
			Title:   "Stand up",
			Message: "Stretch",
			Channel: domain.ChannelWebhook,
		}},
		Enabled: true,
		Status:  domain.StatusPending,
	}
}

func cronPrompt(id string, enabled bool, exprs ...string) *domain.Definition {
	return &domain.Definition{
		ID:      id,
		Kind:    domain.KindCron,
		Trigger: domain.CronTrigger(exprs...),
		Payload: domain.Payload{Prompt: &domain.PromptPayload{Prompt: "give me a health tip", Category: "health"}},
		Enabled: enabled,
	}
}

func handleCount(s *scheduler.Scheduler, id string) int {
	for _, j := range s.ActiveJobs() {
		if j.DefinitionID == id {
			return len(j.Triggers)
		}
	}
	return 0
}

// ---- tests ----

func TestSchedule_PastOneShotLeavesRegistryUnchanged(t *testing.T) {
	for _, at := range []time.Time{t0, t0.Add(-time.Minute)} {
		d := reminder("r1", at)
		h := newHarness(d)

		ok, err := h.sched.Schedule(context.Background(), d)
		if err != nil {
			t.Fatalf("Schedule: %v", err)
		}
		if ok {
			t.Errorf("at=%v: expected not scheduled", at)
		}
		if ids := h.sched.ListActiveJobIDs(); len(ids) != 0 {
			t.Errorf("at=%v: registry = %v, want empty", at, ids)
		}
		if h.clock.Pending() != 0 {
			t.Errorf("at=%v: timers armed = %d", at, h.clock.Pending())
		}
	}
}

func TestSchedule_SentOneShotNotInstalled(t *testing.T) {
	d := reminder("r1", t0.Add(time.Hour))
	d.Status = domain.StatusSent
	h := newHarness(d)

	if ok, _ := h.sched.Schedule(context.Background(), d); ok {
		t.Fatal("sent definition should not be scheduled")
	}
}

func TestWebhookReminder_FiresOnce(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.URL.Query().Get("title") != "Stand up" {
			t.Errorf("query = %v", r.URL.Query())
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := reminder("r1", t0.Add(time.Hour))
	repo := newMemRepo(d)
	clk := clock.NewFake(t0)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	dispatcher := scheduler.NewDispatcher(scheduler.DispatcherConfig{
		Notifiers: map[domain.Channel]scheduler.Notifier{
			domain.ChannelWebhook: notify.NewWebhookNotifier(srv.URL, 100),
		},
		Clock:  clk,
		Logger: logger,
	})
	s := scheduler.NewScheduler(repo, dispatcher, newFakeRunner(), clk, time.UTC, logger)

	if ok, err := s.Schedule(context.Background(), d); err != nil || !ok {
		t.Fatalf("Schedule = %v, %v", ok, err)
	}
	if got := s.ListActiveJobIDs(); !slices.Equal(got, []string{"r1"}) {
		t.Fatalf("registry = %v", got)
	}

	clk.Advance(time.Hour)

	if got := hits.Load(); got != 1 {
		t.Errorf("webhook calls = %d, want 1", got)
	}
	stored := repo.get(t, "r1")
	if stored.Status != domain.StatusSent {
		t.Errorf("status = %s, want sent", stored.Status)
	}
	if stored.LastFiredAt == nil {
		t.Error("lastFiredAt not set")
	}
	if got := s.ListActiveJobIDs(); len(got) != 0 {
		t.Errorf("registry = %v, want empty", got)
	}

	clk.Advance(24 * time.Hour)
	if got := hits.Load(); got != 1 {
		t.Errorf("webhook calls after more time = %d, want 1", got)
	}
}

func TestFire_DispatchFailureLeavesPending(t *testing.T) {
	d := reminder("r1", t0.Add(time.Hour))
	d.Recurrence = &domain.Recurrence{Interval: domain.IntervalDaily, CurrentOccurrence: 1}
	h := newHarness(d)
	h.dispatcher.dispatchFn = func(context.Context, *domain.Definition) error {
		return fmt.Errorf("%w: webhook responded 500", domain.ErrDelivery)
	}

	if _, err := h.sched.Schedule(context.Background(), d); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	h.clock.Advance(48 * time.Hour)

	if got := h.dispatcher.calls.Load(); got != 1 {
		t.Errorf("dispatch calls = %d, want 1 (no retry)", got)
	}
	stored := h.repo.get(t, "r1")
	if stored.Status != domain.StatusPending {
		t.Errorf("status = %s, want pending", stored.Status)
	}
	if stored.LastError == nil {
		t.Error("lastError not recorded")
	}
	if stored.LastFiredAt != nil {
		t.Error("lastFiredAt must stay unset after failure")
	}
	if len(h.repo.items) != 1 {
		t.Errorf("definitions = %d, want no spawned occurrence", len(h.repo.items))
	}
	if len(h.sched.ListActiveJobIDs()) != 0 {
		t.Error("failed definition must not be rescheduled")
	}
}

func TestFire_RecurrenceSpawnsUntilMax(t *testing.T) {
	maxOcc := 2
	first := t0.Add(time.Hour)
	d := reminder("r1", first)
	d.Recurrence = &domain.Recurrence{Interval: domain.IntervalWeekly, MaxOccurrences: &maxOcc, CurrentOccurrence: 1}
	h := newHarness(d)

	if _, err := h.sched.Schedule(context.Background(), d); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	h.clock.Advance(time.Hour)

	if got := h.repo.get(t, "r1").Status; got != domain.StatusSent {
		t.Fatalf("first status = %s, want sent", got)
	}
	next := h.repo.get(t, "gen-1")
	if next.Status != domain.StatusPending || next.PreviousID != "r1" {
		t.Errorf("next = %+v", next)
	}
	if !next.Trigger.At.Equal(first.Add(7 * 24 * time.Hour)) {
		t.Errorf("next at = %v", next.Trigger.At)
	}
	if next.Recurrence.CurrentOccurrence != 2 {
		t.Errorf("currentOccurrence = %d, want 2", next.Recurrence.CurrentOccurrence)
	}
	if got := h.sched.ListActiveJobIDs(); !slices.Equal(got, []string{"gen-1"}) {
		t.Fatalf("registry = %v, want [gen-1]", got)
	}

	h.clock.Advance(7 * 24 * time.Hour)

	if got := h.repo.get(t, "gen-1").Status; got != domain.StatusSent {
		t.Errorf("second status = %s, want sent", got)
	}
	if len(h.repo.items) != 2 {
		t.Errorf("definitions = %d, want 2 (max reached)", len(h.repo.items))
	}
	if got := h.dispatcher.calls.Load(); got != 2 {
		t.Errorf("dispatch calls = %d, want 2", got)
	}
}

func TestFire_DeletedDefinitionDropped(t *testing.T) {
	d := reminder("r1", t0.Add(time.Hour))
	h := newHarness(d)

	if _, err := h.sched.Schedule(context.Background(), d); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	_ = h.repo.Delete(context.Background(), "r1")
	h.clock.Advance(time.Hour)

	if got := h.dispatcher.calls.Load(); got != 0 {
		t.Errorf("dispatch calls = %d, want 0", got)
	}
}

func TestReschedule_ReplacesTimer(t *testing.T) {
	d := reminder("r1", t0.Add(time.Hour))
	h := newHarness(d)

	if _, err := h.sched.Schedule(context.Background(), d); err != nil {
		t.Fatalf("Schedule: %v", err)
	}

	moved := t0.Add(3 * time.Hour)
	_, _ = h.repo.Update(context.Background(), "r1", func(cur *domain.Definition) error {
		cur.Trigger = domain.FixedTrigger(moved)
		return nil
	})
	d.Trigger = domain.FixedTrigger(moved)
	if ok, err := h.sched.Reschedule(context.Background(), d); err != nil || !ok {
		t.Fatalf("Reschedule = %v, %v", ok, err)
	}
	if h.clock.Pending() != 1 {
		t.Errorf("armed timers = %d, want 1", h.clock.Pending())
	}

	h.clock.Advance(2 * time.Hour)
	if got := h.dispatcher.calls.Load(); got != 0 {
		t.Fatalf("old timer fired: calls = %d", got)
	}
	h.clock.Advance(time.Hour)
	if got := h.dispatcher.calls.Load(); got != 1 {
		t.Errorf("dispatch calls = %d, want 1", got)
	}
}

func TestCron_HandlesFollowEnabled(t *testing.T) {
	d := cronPrompt("p1", true, "0 9 * * *", "0 18 * * *")
	h := newHarness(d)

	if _, err := h.sched.Schedule(context.Background(), d); err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if got := handleCount(h.sched, "p1"); got != 2 {
		t.Fatalf("handles = %d, want 2", got)
	}
	if got := h.runner.count(); got != 2 {
		t.Fatalf("runner entries = %d, want 2", got)
	}

	d.Enabled = false
	if _, err := h.sched.Reschedule(context.Background(), d); err != nil {
		t.Fatalf("Reschedule: %v", err)
	}
	if got := handleCount(h.sched, "p1"); got != 0 {
		t.Errorf("handles = %d, want 0", got)
	}
	if got := h.runner.count(); got != 0 {
		t.Errorf("runner entries = %d, want 0", got)
	}
	if _, err := h.repo.GetByID(context.Background(), "p1"); err != nil {
		t.Errorf("definition should remain stored: %v", err)
	}
}

func TestCron_NextFireTimes(t *testing.T) {
	d := cronPrompt("p1", true, "0 9 * * *", "0 18 * * *")
	h := newHarness(d)
	if _, err := h.sched.Schedule(context.Background(), d); err != nil {
		t.Fatalf("Schedule: %v", err)
	}

	jobs := h.sched.ActiveJobs()
	if len(jobs) != 1 {
		t.Fatalf("active jobs = %d", len(jobs))
	}
	want := []time.Time{
		time.Date(2025, 1, 6, 9, 0, 0, 0, time.UTC),
		time.Date(2025, 1, 6, 18, 0, 0, 0, time.UTC),
	}
	if !slices.EqualFunc(jobs[0].NextFireTimes, want, time.Time.Equal) {
		t.Errorf("next fire times = %v, want %v", jobs[0].NextFireTimes, want)
	}
}

func TestCron_FireRecordsOutcome(t *testing.T) {
	d := cronPrompt("p1", true, "0 9 * * *")
	h := newHarness(d)
	if _, err := h.sched.Schedule(context.Background(), d); err != nil {
		t.Fatalf("Schedule: %v", err)
	}

	h.runner.tickAll()
	stored := h.repo.get(t, "p1")
	if stored.LastFiredAt == nil || stored.LastError != nil {
		t.Errorf("after success: lastFiredAt=%v lastError=%v", stored.LastFiredAt, stored.LastError)
	}

	h.dispatcher.dispatchFn = func(context.Context, *domain.Definition) error { return errors.New("timeout") }
	h.runner.tickAll()
	stored = h.repo.get(t, "p1")
	if stored.LastError == nil {
		t.Error("lastError not recorded")
	}
	if got := handleCount(h.sched, "p1"); got != 1 {
		t.Errorf("cron handle must survive failures, got %d", got)
	}
}

func TestCron_InvalidExpressionRejected(t *testing.T) {
	d := cronPrompt("p1", true, "0 9 * *")
	h := newHarness(d)

	_, err := h.sched.Schedule(context.Background(), d)
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if len(h.sched.ListActiveJobIDs()) != 0 {
		t.Error("registry must stay empty")
	}
}

func TestCancel_Idempotent(t *testing.T) {
	d := cronPrompt("p1", true, "0 9 * * *", "0 18 * * *")
	h := newHarness(d)
	if _, err := h.sched.Schedule(context.Background(), d); err != nil {
		t.Fatalf("Schedule: %v", err)
	}

	if !h.sched.Cancel("p1") {
		t.Error("first cancel should remove the entry")
	}
	if h.sched.Cancel("p1") {
		t.Error("second cancel should be a no-op")
	}
	if h.sched.Cancel("unknown") {
		t.Error("unknown id should be a no-op")
	}
	if len(h.sched.ListActiveJobIDs()) != 0 || h.runner.count() != 0 {
		t.Error("expected no live timers")
	}
}

func TestShutdown_DropsLaterFires(t *testing.T) {
	d := reminder("r1", t0.Add(time.Hour))
	h := newHarness(d)
	if _, err := h.sched.Schedule(context.Background(), d); err != nil {
		t.Fatalf("Schedule: %v", err)
	}

	if err := h.sched.Ping(context.Background()); err != nil {
		t.Fatalf("Ping before shutdown: %v", err)
	}
	if err := h.sched.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if err := h.sched.Ping(context.Background()); !errors.Is(err, scheduler.ErrStopped) {
		t.Errorf("Ping after shutdown = %v, want ErrStopped", err)
	}
	h.clock.Advance(time.Hour)
	if got := h.dispatcher.calls.Load(); got != 0 {
		t.Errorf("dispatch calls = %d, want 0", got)
	}
}
