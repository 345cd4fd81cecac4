package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS chat_inference (
    id UUID PRIMARY KEY,
    function_name TEXT NOT NULL,
    variant_name TEXT NOT NULL,
    episode_id UUID NOT NULL,
    input TEXT NOT NULL,
    output TEXT NOT NULL,
    tags TEXT NOT NULL,
    processing_time_ms BIGINT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE TABLE IF NOT EXISTS model_inference (
    id UUID PRIMARY KEY,
    inference_id UUID NOT NULL,
    raw_request TEXT NOT NULL,
    raw_response TEXT NOT NULL,
    model_name TEXT NOT NULL,
    model_provider_name TEXT NOT NULL,
    input_tokens INTEGER NOT NULL,
    output_tokens INTEGER NOT NULL,
    response_time_ms BIGINT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);`

type Postgres struct {
	Pool *pgxpool.Pool
}

func OpenPostgres(ctx context.Context, connString string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create postgres schema: %w", err)
	}
	return &Postgres{Pool: pool}, nil
}

func (p *Postgres) WriteChatInference(ctx context.Context, row ChatInference) error {
	query := `
        INSERT INTO chat_inference (id, function_name, variant_name, episode_id, input, output, tags, processing_time_ms, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
    `
	_, err := p.Pool.Exec(ctx, query,
		row.ID.String(), row.FunctionName, row.VariantName, row.EpisodeID.String(),
		row.Input, row.Output, encodeTags(row.Tags), row.ProcessingTime.Milliseconds(), createdAt(row.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert chat inference: %w", err)
	}
	return nil
}

func (p *Postgres) WriteModelInference(ctx context.Context, row ModelInference) error {
	query := `
        INSERT INTO model_inference (id, inference_id, raw_request, raw_response, model_name, model_provider_name, input_tokens, output_tokens, response_time_ms, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
    `
	_, err := p.Pool.Exec(ctx, query,
		row.ID.String(), row.InferenceID.String(), row.RawRequest, row.RawResponse,
		row.ModelName, row.ModelProviderName, row.InputTokens, row.OutputTokens,
		row.ResponseTime.Milliseconds(), createdAt(row.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert model inference: %w", err)
	}
	return nil
}

func (p *Postgres) Ping(ctx context.Context) error {
	return p.Pool.Ping(ctx)
}

func (p *Postgres) Close() error {
	p.Pool.Close()
	return nil
}
