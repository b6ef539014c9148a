package jsonfile

import (
	"context"
	"log/slog"
	"slices"
	"time"

	"github.com/ErlanBelekov/homebase/internal/domain"
	"github.com/ErlanBelekov/homebase/internal/repository"
	"github.com/google/uuid"
)

type DefinitionRepository struct {
	items  *collection[domain.Definition]
	logger *slog.Logger
}

func NewDefinitionRepository(s *Store, logger *slog.Logger) *DefinitionRepository {
	return &DefinitionRepository{
		items:  newCollection[domain.Definition](s.path("definitions")),
		logger: logger.With("component", "definition_repo"),
	}
}

func (r *DefinitionRepository) Create(_ context.Context, d *domain.Definition) (*domain.Definition, error) {
	created := *d
	if created.ID == "" {
		created.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if created.CreatedAt.IsZero() {
		created.CreatedAt = now
	}
	created.UpdatedAt = now

	err := r.items.mutate(func(items []domain.Definition) ([]domain.Definition, error) {
		if slices.ContainsFunc(items, func(x domain.Definition) bool { return x.ID == created.ID }) {
			return nil, domain.ErrDefinitionExists
		}
		return append(items, created), nil
	})
	if err != nil {
		return nil, err
	}
	return &created, nil
}

func (r *DefinitionRepository) GetByID(_ context.Context, id string) (*domain.Definition, error) {
	items, err := r.items.read()
	if err != nil {
		return nil, err
	}
	for i := range items {
		if items[i].ID == id {
			return &items[i], nil
		}
	}
	return nil, domain.ErrDefinitionNotFound
}

func (r *DefinitionRepository) List(_ context.Context, input repository.ListDefinitionsInput) ([]*domain.Definition, error) {
	items, err := r.items.read()
	if err != nil {
		return nil, err
	}

	slices.SortFunc(items, func(a, b domain.Definition) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		switch {
		case a.ID > b.ID:
			return -1
		case a.ID < b.ID:
			return 1
		}
		return 0
	})

	var out []*domain.Definition
	for i := range items {
		d := &items[i]
		if input.Kind != "" && d.Kind != input.Kind {
			continue
		}
		if input.Status != "" && d.Status != input.Status {
			continue
		}
		if input.CursorTime != nil && !beforeCursor(d, *input.CursorTime, input.CursorID) {
			continue
		}
		out = append(out, d)
		if input.Limit > 0 && len(out) == input.Limit {
			break
		}
	}
	return out, nil
}

// beforeCursor reports whether (created_at, id) < (t, id) in DESC ordering.
func beforeCursor(d *domain.Definition, t time.Time, id string) bool {
	if d.CreatedAt.Equal(t) {
		return d.ID < id
	}
	return d.CreatedAt.Before(t)
}

func (r *DefinitionRepository) Update(_ context.Context, id string, fn func(d *domain.Definition) error) (*domain.Definition, error) {
	var updated domain.Definition

	err := r.items.mutate(func(items []domain.Definition) ([]domain.Definition, error) {
		i := slices.IndexFunc(items, func(x domain.Definition) bool { return x.ID == id })
		if i < 0 {
			return nil, domain.ErrDefinitionNotFound
		}
		updated = items[i]
		if err := fn(&updated); err != nil {
			return nil, err
		}
		updated.ID = id
		updated.CreatedAt = items[i].CreatedAt
		updated.UpdatedAt = time.Now().UTC()
		items[i] = updated
		return items, nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

func (r *DefinitionRepository) Delete(_ context.Context, id string) error {
	return r.items.mutate(func(items []domain.Definition) ([]domain.Definition, error) {
		i := slices.IndexFunc(items, func(x domain.Definition) bool { return x.ID == id })
		if i < 0 {
			return nil, domain.ErrDefinitionNotFound
		}
		r.logger.Debug("definition removed", "definition_id", id)
		return slices.Delete(items, i, i+1), nil
	})
}
