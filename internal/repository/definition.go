package repository

import (
	"context"
	"time"

	"github.com/ErlanBelekov/homebase/internal/domain"
)

type ListDefinitionsInput struct {
	Kind       domain.Kind   // empty = all kinds
	Status     domain.Status // empty = all statuses
	CursorTime *time.Time    // cursor on (created_at DESC, id DESC)
	CursorID   string
	Limit      int // 0 = no limit
}

// DefinitionRepository is the Job Store.
type DefinitionRepository interface {
	Create(ctx context.Context, d *domain.Definition) (*domain.Definition, error)
	GetByID(ctx context.Context, id string) (*domain.Definition, error)
	List(ctx context.Context, input ListDefinitionsInput) ([]*domain.Definition, error)
	// Update is one read-modify-write: fn receives the current record and the whole record is
	// persisted only if fn returns nil. fn's error is returned unchanged.
	Update(ctx context.Context, id string, fn func(d *domain.Definition) error) (*domain.Definition, error)
	Delete(ctx context.Context, id string) error
}
