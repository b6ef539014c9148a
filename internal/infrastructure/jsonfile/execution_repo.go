package jsonfile

import (
	"context"
	"slices"
	"time"

	"github.com/ErlanBelekov/homebase/internal/domain"
	"github.com/google/uuid"
)

// maxWeatherSnapshots bounds weather.json; older snapshots are dropped on write.
const maxWeatherSnapshots = 500

type ExecutionRepository struct {
	items *collection[domain.ExecutionResult]
}

func NewExecutionRepository(s *Store) *ExecutionRepository {
	return &ExecutionRepository{items: newCollection[domain.ExecutionResult](s.path("executions"))}
}

func (r *ExecutionRepository) Create(_ context.Context, res *domain.ExecutionResult) (*domain.ExecutionResult, error) {
	created := *res
	if created.ID == "" {
		created.ID = uuid.NewString()
	}
	if created.ExecutedAt.IsZero() {
		created.ExecutedAt = time.Now().UTC()
	}

	err := r.items.mutate(func(items []domain.ExecutionResult) ([]domain.ExecutionResult, error) {
		return append(items, created), nil
	})
	if err != nil {
		return nil, err
	}
	return &created, nil
}

func (r *ExecutionRepository) ListByDefinitionID(_ context.Context, definitionID string, limit int) ([]*domain.ExecutionResult, error) {
	items, err := r.items.read()
	if err != nil {
		return nil, err
	}
	slices.SortStableFunc(items, func(a, b domain.ExecutionResult) int {
		return b.ExecutedAt.Compare(a.ExecutedAt)
	})

	var out []*domain.ExecutionResult
	for i := range items {
		if items[i].DefinitionID != definitionID {
			continue
		}
		out = append(out, &items[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

type WeatherRepository struct {
	items *collection[domain.WeatherSnapshot]
}

func NewWeatherRepository(s *Store) *WeatherRepository {
	return &WeatherRepository{items: newCollection[domain.WeatherSnapshot](s.path("weather"))}
}

func (r *WeatherRepository) Create(_ context.Context, snap *domain.WeatherSnapshot) (*domain.WeatherSnapshot, error) {
	created := *snap
	if created.ID == "" {
		created.ID = uuid.NewString()
	}
	if created.FetchedAt.IsZero() {
		created.FetchedAt = time.Now().UTC()
	}

	err := r.items.mutate(func(items []domain.WeatherSnapshot) ([]domain.WeatherSnapshot, error) {
		items = append(items, created)
		if over := len(items) - maxWeatherSnapshots; over > 0 {
			items = items[over:]
		}
		return items, nil
	})
	if err != nil {
		return nil, err
	}
	return &created, nil
}

func (r *WeatherRepository) Latest(_ context.Context, limit int) ([]*domain.WeatherSnapshot, error) {
	items, err := r.items.read()
	if err != nil {
		return nil, err
	}
	slices.SortStableFunc(items, func(a, b domain.WeatherSnapshot) int {
		return b.FetchedAt.Compare(a.FetchedAt)
	})
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}

	out := make([]*domain.WeatherSnapshot, len(items))
	for i := range items {
		out[i] = &items[i]
	}
	return out, nil
}
