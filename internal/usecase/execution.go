package usecase

import (
	"context"
	"fmt"

	"github.com/ErlanBelekov/homebase/internal/domain"
	"github.com/ErlanBelekov/homebase/internal/repository"
)

// ExecutionUsecase serves the records dispatches leave behind.
type ExecutionUsecase struct {
	defs       repository.DefinitionRepository
	executions repository.ExecutionRepository
	weather    repository.WeatherRepository
}

func NewExecutionUsecase(
	defs repository.DefinitionRepository,
	executions repository.ExecutionRepository,
	weather repository.WeatherRepository,
) *ExecutionUsecase {
	return &ExecutionUsecase{defs: defs, executions: executions, weather: weather}
}

func (u *ExecutionUsecase) ListExecutions(ctx context.Context, definitionID string, limit int) ([]*domain.ExecutionResult, error) {
	if _, err := u.defs.GetByID(ctx, definitionID); err != nil {
		return nil, fmt.Errorf("get definition: %w", err)
	}

	results, err := u.executions.ListByDefinitionID(ctx, definitionID, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list executions: %w", err)
	}
	return results, nil
}

func (u *ExecutionUsecase) LatestWeather(ctx context.Context, limit int) ([]*domain.WeatherSnapshot, error) {
	snaps, err := u.weather.Latest(ctx, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("latest weather: %w", err)
	}
	return snaps, nil
}
