package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ErlanBelekov/homebase/internal/domain"
	"github.com/ErlanBelekov/homebase/internal/repository"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const definitionColumns = `id, kind, trigger, payload, enabled, status, recurrence,
	last_fired_at, last_error, previous_id, created_at, updated_at`

type DefinitionRepository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

func NewDefinitionRepository(pool *pgxpool.Pool, logger *slog.Logger) *DefinitionRepository {
	return &DefinitionRepository{pool: pool, logger: logger.With("component", "definition_repo")}
}

func (r *DefinitionRepository) Create(ctx context.Context, d *domain.Definition) (*domain.Definition, error) {
	id := d.ID
	if id == "" {
		id = uuid.NewString()
	}

	query := `
		INSERT INTO definitions (
			id, kind, trigger, payload, enabled, status, recurrence,
			last_fired_at, last_error, previous_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING ` + definitionColumns

	row := r.pool.QueryRow(ctx, query,
		id, d.Kind, d.Trigger, d.Payload, d.Enabled, d.Status, d.Recurrence,
		d.LastFiredAt, d.LastError, d.PreviousID,
	)

	created, err := scanDefinition(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, domain.ErrDefinitionExists
		}
		return nil, err
	}
	return created, nil
}

func (r *DefinitionRepository) GetByID(ctx context.Context, id string) (*domain.Definition, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+definitionColumns+` FROM definitions WHERE id = $1`, id)
	return scanDefinition(row)
}

func (r *DefinitionRepository) List(ctx context.Context, input repository.ListDefinitionsInput) ([]*domain.Definition, error) {
	var (
		args  []any
		where = []string{"TRUE"}
	)

	if input.Kind != "" {
		args = append(args, input.Kind)
		where = append(where, fmt.Sprintf("kind = $%d", len(args)))
	}
	if input.Status != "" {
		args = append(args, input.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if input.CursorTime != nil {
		args = append(args, *input.CursorTime, input.CursorID)
		where = append(where, fmt.Sprintf("(created_at, id) < ($%d, $%d)", len(args)-1, len(args)))
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM definitions
		WHERE %s
		ORDER BY created_at DESC, id DESC`,
		definitionColumns, strings.Join(where, " AND "))
	if input.Limit > 0 {
		args = append(args, input.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list definitions: %w", err)
	}
	defer rows.Close()

	var defs []*domain.Definition
	for rows.Next() {
		d, err := scanDefinition(rows)
		if err != nil {
			return nil, err
		}
		defs = append(defs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate definitions: %w", err)
	}
	return defs, nil
}

// Update locks the row for the duration of fn so concurrent updates serialise.
func (r *DefinitionRepository) Update(ctx context.Context, id string, fn func(d *domain.Definition) error) (*domain.Definition, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	current, err := scanDefinition(tx.QueryRow(ctx,
		`SELECT `+definitionColumns+` FROM definitions WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, err
	}

	if err := fn(current); err != nil {
		return nil, err
	}

	updated, err := scanDefinition(tx.QueryRow(ctx, `
		UPDATE definitions
		SET trigger = $2, payload = $3, enabled = $4, status = $5, recurrence = $6,
		    last_fired_at = $7, last_error = $8, previous_id = $9, updated_at = NOW()
		WHERE id = $1
		RETURNING `+definitionColumns,
		id, current.Trigger, current.Payload, current.Enabled, current.Status, current.Recurrence,
		current.LastFiredAt, current.LastError, current.PreviousID,
	))
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return updated, nil
}

func (r *DefinitionRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM definitions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete definition: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrDefinitionNotFound
	}
	return nil
}

func scanDefinition(row rowScanner) (*domain.Definition, error) {
	var d domain.Definition
	err := row.Scan(
		&d.ID, &d.Kind, &d.Trigger, &d.Payload, &d.Enabled, &d.Status, &d.Recurrence,
		&d.LastFiredAt, &d.LastError, &d.PreviousID, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrDefinitionNotFound
		}
		return nil, fmt.Errorf("scan definition: %w", err)
	}
	return &d, nil
}
