package repository

import (
	"context"

	"github.com/ErlanBelekov/homebase/internal/domain"
)

type ExecutionRepository interface {
	Create(ctx context.Context, r *domain.ExecutionResult) (*domain.ExecutionResult, error)
	// ListByDefinitionID returns results newest first.
	ListByDefinitionID(ctx context.Context, definitionID string, limit int) ([]*domain.ExecutionResult, error)
}

type WeatherRepository interface {
	Create(ctx context.Context, s *domain.WeatherSnapshot) (*domain.WeatherSnapshot, error)
	// Latest returns snapshots newest first.
	Latest(ctx context.Context, limit int) ([]*domain.WeatherSnapshot, error)
}
