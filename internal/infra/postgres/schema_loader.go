package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"negopro-questionnaire/internal/domain"
	"negopro-questionnaire/internal/schema"
)

// SchemaLoader loads questionnaire JSONB from Postgres. Sources look like "db:<id>".
type SchemaLoader struct {
	pool *pgxpool.Pool
}

func NewSchemaLoader(pool *pgxpool.Pool) *SchemaLoader {
	return &SchemaLoader{pool: pool}
}

func (l *SchemaLoader) LoadSchema(ctx context.Context, source string) (domain.Schema, error) {
	id := schema.Strip(source, "db")
	var raw []byte
	err := l.pool.QueryRow(ctx, `SELECT data FROM questionnaires WHERE id=$1`, id).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Schema{}, &domain.SchemaError{Source: source, Reason: "no such questionnaire", Err: domain.ErrSchemaNotFound}
	}
	if err != nil {
		return domain.Schema{}, &domain.SchemaError{Source: source, Reason: "unreachable", Err: fmt.Errorf("load questionnaire: %w", err)}
	}
	s, err := schema.Parse(raw, schema.FormatJSON)
	if err != nil {
		var serr *domain.SchemaError
		if errors.As(err, &serr) {
			serr.Source = source
		}
		return domain.Schema{}, err
	}
	if s.ID == "" {
		s.ID = id
	}
	return s, nil
}

// SaveSchema upserts a questionnaire document under id.
func (l *SchemaLoader) SaveSchema(ctx context.Context, id string, data []byte) error {
	_, err := l.pool.Exec(ctx, `
		INSERT INTO questionnaires (id, data, updated_at) VALUES ($1, $2::jsonb, now())
		ON CONFLICT (id) DO UPDATE SET data = EXCLUDED.data, updated_at = now()`, id, string(data))
	if err != nil {
		return fmt.Errorf("save questionnaire %s: %w", id, err)
	}
	return nil
}
