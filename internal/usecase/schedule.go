package usecase

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/ErlanBelekov/homebase/internal/domain"
	"github.com/ErlanBelekov/homebase/internal/repository"
	"github.com/ErlanBelekov/homebase/internal/scheduler"
)

// engine is satisfied by *scheduler.Scheduler.
type engine interface {
	Schedule(ctx context.Context, d *domain.Definition) (bool, error)
	Reschedule(ctx context.Context, d *domain.Definition) (bool, error)
	Cancel(id string) bool
	ListActiveJobIDs() []string
	ActiveJobs() []scheduler.ActiveJob
	Recover(ctx context.Context, defs []*domain.Definition) int
}

// ScheduleUsecase persists definitions and keeps the scheduler in step with them.
type ScheduleUsecase struct {
	repo   repository.DefinitionRepository
	engine engine
	logger *slog.Logger

	// mu orders store writes and the registry changes that follow them.
	mu sync.Mutex
}

func NewScheduleUsecase(repo repository.DefinitionRepository, engine engine, logger *slog.Logger) *ScheduleUsecase {
	return &ScheduleUsecase{
		repo:   repo,
		engine: engine,
		logger: logger.With("component", "schedule_usecase"),
	}
}

type CreateDefinitionInput struct {
	ID         string // optional; generated when empty
	Kind       domain.Kind
	Trigger    domain.Trigger
	Payload    domain.Payload
	Enabled    *bool // defaults to true
	Recurrence *domain.Recurrence
}

func (u *ScheduleUsecase) CreateDefinition(ctx context.Context, input CreateDefinitionInput) (*domain.Definition, error) {
	kind := input.Kind
	if kind == "" {
		kind = kindFor(input.Trigger)
	}
	enabled := true
	if input.Enabled != nil {
		enabled = *input.Enabled
	}

	d := &domain.Definition{
		ID:      input.ID,
		Kind:    kind,
		Trigger: input.Trigger,
		Payload: input.Payload,
		Enabled: enabled,
	}
	if kind == domain.KindOneShot {
		d.Status = domain.StatusPending
	}
	if input.Recurrence != nil {
		rec := *input.Recurrence
		d.Recurrence = &rec
		normaliseRecurrence(d, nil)
	}

	if err := validate(d); err != nil {
		return nil, err
	}

	u.mu.Lock()
	defer u.mu.Unlock()

	created, err := u.repo.Create(ctx, d)
	if err != nil {
		return nil, fmt.Errorf("create definition: %w", err)
	}
	if _, err := u.engine.Schedule(ctx, created); err != nil {
		// validated above, so only a store/engine fault lands here; the record stays
		u.logger.ErrorContext(ctx, "schedule created definition", "definition_id", created.ID, "error", err)
	}
	return created, nil
}

type UpdateDefinitionInput struct {
	Trigger         *domain.Trigger
	Payload         *domain.Payload
	Enabled         *bool
	Recurrence      *domain.Recurrence
	ClearRecurrence bool
	Status          *domain.Status
}

// UpdateDefinition merges input into the stored record in one read-modify-write and
// reschedules when a timer-affecting field changed. Moving a one-shot trigger makes it
// pending again unless a status is given explicitly.
func (u *ScheduleUsecase) UpdateDefinition(ctx context.Context, id string, input UpdateDefinitionInput) (*domain.Definition, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	var affectsTimers bool
	updated, err := u.repo.Update(ctx, id, func(d *domain.Definition) error {
		before := *d

		if input.Trigger != nil {
			d.Trigger = *input.Trigger
		}
		if input.Payload != nil {
			d.Payload = *input.Payload
		}
		if input.Enabled != nil {
			d.Enabled = *input.Enabled
		}
		if input.ClearRecurrence {
			d.Recurrence = nil
		} else if input.Recurrence != nil {
			rec := *input.Recurrence
			d.Recurrence = &rec
			normaliseRecurrence(d, before.Recurrence)
		}

		triggerChanged := !sameTrigger(before.Trigger, d.Trigger)
		if input.Status != nil {
			d.Status = *input.Status
		} else if triggerChanged && d.Kind == domain.KindOneShot {
			d.Status = domain.StatusPending
		}

		if err := validate(d); err != nil {
			return err
		}

		affectsTimers = triggerChanged ||
			before.Enabled != d.Enabled ||
			before.Status != d.Status ||
			!sameRecurrence(before.Recurrence, d.Recurrence)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("update definition: %w", err)
	}

	if affectsTimers {
		if _, err := u.engine.Reschedule(ctx, updated); err != nil {
			u.logger.ErrorContext(ctx, "reschedule updated definition", "definition_id", id, "error", err)
		}
	}
	return updated, nil
}

// DeleteDefinition cancels timers then removes the record. It reports false for unknown ids.
func (u *ScheduleUsecase) DeleteDefinition(ctx context.Context, id string) (bool, error) {
	u.mu.Lock()
	defer u.mu.Unlock()

	u.engine.Cancel(id)
	if err := u.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, domain.ErrDefinitionNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("delete definition: %w", err)
	}
	return true, nil
}

func (u *ScheduleUsecase) GetDefinition(ctx context.Context, id string) (*domain.Definition, error) {
	d, err := u.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get definition: %w", err)
	}
	return d, nil
}

type ListDefinitionsInput struct {
	Kind   domain.Kind
	Status domain.Status
	Cursor string
	Limit  int
}

type ListDefinitionsResult struct {
	Definitions []*domain.Definition
	NextCursor  *string
}

type definitionCursor struct {
	CreatedAt time.Time `json:"c"`
	ID        string    `json:"i"`
}

func decodeCursor(s string) (*time.Time, string, error) {
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, "", fmt.Errorf("decode cursor: %w", err)
	}
	var c definitionCursor
	if err := json.Unmarshal(b, &c); err != nil {
		return nil, "", fmt.Errorf("unmarshal cursor: %w", err)
	}
	return &c.CreatedAt, c.ID, nil
}

func encodeCursor(createdAt time.Time, id string) string {
	b, _ := json.Marshal(definitionCursor{CreatedAt: createdAt, ID: id})
	return base64.RawURLEncoding.EncodeToString(b)
}

func (u *ScheduleUsecase) ListDefinitions(ctx context.Context, input ListDefinitionsInput) (ListDefinitionsResult, error) {
	limit := clampLimit(input.Limit)

	repoInput := repository.ListDefinitionsInput{
		Kind:   input.Kind,
		Status: input.Status,
		Limit:  limit + 1,
	}

	if input.Cursor != "" {
		cursorTime, cursorID, err := decodeCursor(input.Cursor)
		if err != nil {
			return ListDefinitionsResult{}, domain.ErrInvalidCursor
		}
		repoInput.CursorTime = cursorTime
		repoInput.CursorID = cursorID
	}

	defs, err := u.repo.List(ctx, repoInput)
	if err != nil {
		return ListDefinitionsResult{}, fmt.Errorf("list definitions: %w", err)
	}

	var nextCursor *string
	if len(defs) == limit+1 {
		last := defs[limit-1]
		s := encodeCursor(last.CreatedAt, last.ID)
		nextCursor = &s
		defs = defs[:limit]
	}

	return ListDefinitionsResult{Definitions: defs, NextCursor: nextCursor}, nil
}

func (u *ScheduleUsecase) ListActiveJobIDs() []string {
	return u.engine.ListActiveJobIDs()
}

func (u *ScheduleUsecase) ActiveJobs() []scheduler.ActiveJob {
	return u.engine.ActiveJobs()
}

// IsActive reports whether id currently has live timers.
func (u *ScheduleUsecase) IsActive(id string) bool {
	return slices.Contains(u.engine.ListActiveJobIDs(), id)
}

// Recover loads every stored definition and re-installs its timers.
func (u *ScheduleUsecase) Recover(ctx context.Context) (int, error) {
	defs, err := u.repo.List(ctx, repository.ListDefinitionsInput{})
	if err != nil {
		return 0, fmt.Errorf("list definitions: %w", err)
	}
	return u.engine.Recover(ctx, defs), nil
}

// EnsureDefinition creates d under its fixed id, or brings the stored trigger and payload in
// line with d while keeping the stored enabled flag and history.
func (u *ScheduleUsecase) EnsureDefinition(ctx context.Context, d *domain.Definition) (*domain.Definition, error) {
	if err := validate(d); err != nil {
		return nil, err
	}

	u.mu.Lock()
	defer u.mu.Unlock()

	stored, err := u.repo.Update(ctx, d.ID, func(cur *domain.Definition) error {
		cur.Trigger = d.Trigger
		cur.Payload = d.Payload
		return validate(cur)
	})
	if errors.Is(err, domain.ErrDefinitionNotFound) {
		stored, err = u.repo.Create(ctx, d)
	}
	if err != nil {
		return nil, fmt.Errorf("ensure definition: %w", err)
	}

	if _, err := u.engine.Reschedule(ctx, stored); err != nil {
		return nil, fmt.Errorf("schedule definition: %w", err)
	}
	return stored, nil
}

func validate(d *domain.Definition) error {
	if err := d.Validate(); err != nil {
		return err
	}
	return scheduler.ValidateTrigger(d.Trigger)
}

func kindFor(t domain.Trigger) domain.Kind {
	if t.Type == domain.TriggerCron {
		return domain.KindCron
	}
	return domain.KindOneShot
}

// normaliseRecurrence fills currentOccurrence and the monthly anchor day, carrying them over
// from prev when the caller did not set them.
func normaliseRecurrence(d *domain.Definition, prev *domain.Recurrence) {
	rec := d.Recurrence
	if rec.CurrentOccurrence == 0 {
		rec.CurrentOccurrence = 1
		if prev != nil && prev.CurrentOccurrence > 0 {
			rec.CurrentOccurrence = prev.CurrentOccurrence
		}
	}
	if rec.DayOfMonth == 0 {
		switch {
		case prev != nil && prev.DayOfMonth > 0:
			rec.DayOfMonth = prev.DayOfMonth
		case d.Trigger.At != nil:
			rec.DayOfMonth = d.Trigger.At.Day()
		}
	}
}

func sameTrigger(a, b domain.Trigger) bool {
	if a.Type != b.Type || !slices.Equal(a.Expressions, b.Expressions) {
		return false
	}
	if a.At == nil || b.At == nil {
		return a.At == b.At
	}
	return a.At.Equal(*b.At)
}

func sameRecurrence(a, b *domain.Recurrence) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Interval == b.Interval &&
		a.CurrentOccurrence == b.CurrentOccurrence &&
		a.DayOfMonth == b.DayOfMonth &&
		equalPtr(a.MaxOccurrences, b.MaxOccurrences) &&
		equalTimePtr(a.EndDate, b.EndDate)
}

func equalPtr(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func equalTimePtr(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return 20
	}
	return min(limit, 100)
}
