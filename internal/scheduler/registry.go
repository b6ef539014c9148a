package scheduler

import (
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/ErlanBelekov/homebase/internal/domain"
)

// CancellableTimer is one live timer. Cancel only affects future firings.
type CancellableTimer interface {
	Cancel()
}

// Handle is a registry slot entry: the live timer plus the trigger it was armed from.
type Handle struct {
	Timer   CancellableTimer
	Trigger Trigger
	Label   string // cron expression or RFC3339 instant
}

type activeJob struct {
	kind    domain.Kind
	handles []*Handle
}

// ActiveJob is an introspection snapshot of one registry entry.
type ActiveJob struct {
	DefinitionID  string      `json:"definitionId"`
	Kind          domain.Kind `json:"kind"`
	Triggers      []string    `json:"triggers"`
	NextFireTimes []time.Time `json:"nextFireTimes"`
}

// Registry maps a definition id to the timers currently representing it. Set on an id
// replaces its entry atomically with respect to every other Registry call.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*activeJob
}

func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*activeJob)}
}

// Set cancels any handles already installed for id, then installs handles.
func (r *Registry) Set(id string, kind domain.Kind, handles []*Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.entries[id]; ok {
		cancelAll(old.handles)
	}
	if len(handles) == 0 {
		delete(r.entries, id)
		return
	}
	r.entries[id] = &activeJob{kind: kind, handles: handles}
}

// Cancel is a no-op for unknown ids. It reports whether an entry was removed.
func (r *Registry) Cancel(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	old, ok := r.entries[id]
	if !ok {
		return false
	}
	cancelAll(old.handles)
	delete(r.entries, id)
	return true
}

// Take removes h from id's entry without cancelling it, used by a timer that is firing.
// It reports false when h is no longer installed (replaced or cancelled meanwhile).
func (r *Registry) Take(id string, h *Handle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[id]
	if !ok {
		return false
	}
	i := slices.Index(entry.handles, h)
	if i < 0 {
		return false
	}
	entry.handles = slices.Delete(entry.handles, i, i+1)
	if len(entry.handles) == 0 {
		delete(r.entries, id)
	}
	return true
}

// Has reports whether h is still installed under id.
func (r *Registry) Has(id string, h *Handle) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.entries[id]
	return ok && slices.Contains(entry.handles, h)
}

func (r *Registry) Get(id string) ([]*Handle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.entries[id]
	if !ok {
		return nil, false
	}
	return slices.Clone(entry.handles), true
}

// List returns the ids with live timers, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// HandleCount is the total number of live timers across all entries.
func (r *Registry) HandleCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, e := range r.entries {
		n += len(e.handles)
	}
	return n
}

func (r *Registry) Snapshot(now time.Time) []ActiveJob {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]ActiveJob, 0, len(r.entries))
	for id, e := range r.entries {
		job := ActiveJob{DefinitionID: id, Kind: e.kind}
		for _, h := range e.handles {
			job.Triggers = append(job.Triggers, h.Label)
			if next, ok := h.Trigger.NextFireTime(now); ok {
				job.NextFireTimes = append(job.NextFireTimes, next)
			}
		}
		out = append(out, job)
	}
	slices.SortFunc(out, func(a, b ActiveJob) int {
		return strings.Compare(a.DefinitionID, b.DefinitionID)
	})
	return out
}

func cancelAll(handles []*Handle) {
	for _, h := range handles {
		h.Timer.Cancel()
	}
}
