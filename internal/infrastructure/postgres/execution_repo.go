package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/ErlanBelekov/homebase/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type ExecutionRepository struct {
	pool *pgxpool.Pool
}

func NewExecutionRepository(pool *pgxpool.Pool) *ExecutionRepository {
	return &ExecutionRepository{pool: pool}
}

func (r *ExecutionRepository) Create(ctx context.Context, res *domain.ExecutionResult) (*domain.ExecutionResult, error) {
	created := *res
	if created.ID == "" {
		created.ID = uuid.NewString()
	}
	if created.ExecutedAt.IsZero() {
		created.ExecutedAt = time.Now().UTC()
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO executions (
			id, definition_id, prompt, category, tags, model,
			response, error, usage, duration_ms, executed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		created.ID, created.DefinitionID, created.Prompt, created.Category, created.Tags, created.Model,
		created.Response, created.Error, created.Usage, created.DurationMS, created.ExecutedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert execution: %w", err)
	}
	return &created, nil
}

func (r *ExecutionRepository) ListByDefinitionID(ctx context.Context, definitionID string, limit int) ([]*domain.ExecutionResult, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, definition_id, prompt, category, tags, model,
		       response, error, usage, duration_ms, executed_at
		FROM executions
		WHERE definition_id = $1
		ORDER BY executed_at DESC
		LIMIT $2`,
		definitionID, limit)
	if err != nil {
		return nil, fmt.Errorf("list executions: %w", err)
	}
	defer rows.Close()

	var results []*domain.ExecutionResult
	for rows.Next() {
		var e domain.ExecutionResult
		if err := rows.Scan(
			&e.ID, &e.DefinitionID, &e.Prompt, &e.Category, &e.Tags, &e.Model,
			&e.Response, &e.Error, &e.Usage, &e.DurationMS, &e.ExecutedAt,
		); err != nil {
			return nil, fmt.Errorf("scan execution: %w", err)
		}
		results = append(results, &e)
	}
	return results, rows.Err()
}

type WeatherRepository struct {
	pool *pgxpool.Pool
}

func NewWeatherRepository(pool *pgxpool.Pool) *WeatherRepository {
	return &WeatherRepository{pool: pool}
}

func (r *WeatherRepository) Create(ctx context.Context, s *domain.WeatherSnapshot) (*domain.WeatherSnapshot, error) {
	created := *s
	if created.ID == "" {
		created.ID = uuid.NewString()
	}
	if created.FetchedAt.IsZero() {
		created.FetchedAt = time.Now().UTC()
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO weather_snapshots (
			id, definition_id, location, latitude, longitude,
			temperature_c, wind_speed, weather_code, observed_at, fetched_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		created.ID, created.DefinitionID, created.Location, created.Latitude, created.Longitude,
		created.TemperatureC, created.WindSpeedKmh, created.WeatherCode, created.ObservedAt, created.FetchedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert weather snapshot: %w", err)
	}
	return &created, nil
}

func (r *WeatherRepository) Latest(ctx context.Context, limit int) ([]*domain.WeatherSnapshot, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, definition_id, location, latitude, longitude,
		       temperature_c, wind_speed, weather_code, observed_at, fetched_at
		FROM weather_snapshots
		ORDER BY fetched_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("latest weather: %w", err)
	}
	defer rows.Close()

	var snaps []*domain.WeatherSnapshot
	for rows.Next() {
		var s domain.WeatherSnapshot
		if err := rows.Scan(
			&s.ID, &s.DefinitionID, &s.Location, &s.Latitude, &s.Longitude,
			&s.TemperatureC, &s.WindSpeedKmh, &s.WeatherCode, &s.ObservedAt, &s.FetchedAt,
		); err != nil {
			return nil, fmt.Errorf("scan weather snapshot: %w", err)
		}
		snaps = append(snaps, &s)
	}
	return snaps, rows.Err()
}
