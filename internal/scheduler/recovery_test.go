package scheduler_test

import (
	"context"
	"slices"
	"testing"
	"time"

	"github.com/ErlanBelekov/homebase/internal/domain"
)

func TestRecover_SchedulesOnlyFuturePending(t *testing.T) {
	past := reminder("past", t0.Add(-time.Hour))
	future := reminder("future", t0.Add(time.Hour))
	h := newHarness(past, future)

	n := h.sched.Recover(context.Background(), []*domain.Definition{past, future})

	if n != 1 {
		t.Errorf("scheduled = %d, want 1", n)
	}
	if got := h.sched.ListActiveJobIDs(); !slices.Equal(got, []string{"future"}) {
		t.Errorf("registry = %v, want [future]", got)
	}
	if got := h.repo.get(t, "past").Status; got != domain.StatusPending {
		t.Errorf("past-due status = %s, want pending", got)
	}

	h.clock.Advance(2 * time.Hour)
	if got := h.dispatcher.calls.Load(); got != 1 {
		t.Errorf("dispatch calls = %d, want 1 (past-due never fires)", got)
	}
	if got := h.repo.get(t, "past").Status; got != domain.StatusPending {
		t.Errorf("past-due status after advance = %s, want pending", got)
	}
}

func TestRecover_IsolatesFailures(t *testing.T) {
	broken := cronPrompt("broken", true, "not a cron")
	disabled := cronPrompt("disabled", false, "0 9 * * *")
	sent := reminder("sent", t0.Add(time.Hour))
	sent.Status = domain.StatusSent
	good := cronPrompt("good", true, "0 9 * * *", "0 18 * * *")
	h := newHarness(broken, disabled, sent, good)

	n := h.sched.Recover(context.Background(), []*domain.Definition{broken, disabled, sent, good})

	if n != 1 {
		t.Errorf("scheduled = %d, want 1", n)
	}
	if got := h.sched.ListActiveJobIDs(); !slices.Equal(got, []string{"good"}) {
		t.Errorf("registry = %v, want [good]", got)
	}
	if got := handleCount(h.sched, "good"); got != 2 {
		t.Errorf("good handles = %d, want 2", got)
	}
}
