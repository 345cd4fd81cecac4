package store

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"

	_ "github.com/glebarez/go-sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS chat_inference (
    id TEXT PRIMARY KEY,
    function_name TEXT NOT NULL,
    variant_name TEXT NOT NULL,
    episode_id TEXT NOT NULL,
    input TEXT NOT NULL,
    output TEXT NOT NULL,
    tags TEXT NOT NULL,
    processing_time_ms INTEGER NOT NULL,
    created_at DATETIME NOT NULL
);
CREATE TABLE IF NOT EXISTS model_inference (
    id TEXT PRIMARY KEY,
    inference_id TEXT NOT NULL,
    raw_request TEXT NOT NULL,
    raw_response TEXT NOT NULL,
    model_name TEXT NOT NULL,
    model_provider_name TEXT NOT NULL,
    input_tokens INTEGER NOT NULL,
    output_tokens INTEGER NOT NULL,
    response_time_ms INTEGER NOT NULL,
    created_at DATETIME NOT NULL
);`

type SQLite struct {
	db *sql.DB
}

func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	db, err := sql.Open("sqlite", "file:"+path+"?_pragma=busy_timeout(10000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create sqlite schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) WriteChatInference(ctx context.Context, row ChatInference) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chat_inference (id, function_name, variant_name, episode_id, input, output, tags, processing_time_ms, created_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		row.ID.String(), row.FunctionName, row.VariantName, row.EpisodeID.String(),
		row.Input, row.Output, encodeTags(row.Tags), row.ProcessingTime.Milliseconds(), createdAt(row.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert chat inference: %w", err)
	}
	return nil
}

func (s *SQLite) WriteModelInference(ctx context.Context, row ModelInference) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO model_inference (id, inference_id, raw_request, raw_response, model_name, model_provider_name, input_tokens, output_tokens, response_time_ms, created_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		row.ID.String(), row.InferenceID.String(), row.RawRequest, row.RawResponse,
		row.ModelName, row.ModelProviderName, row.InputTokens, row.OutputTokens,
		row.ResponseTime.Milliseconds(), createdAt(row.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert model inference: %w", err)
	}
	return nil
}

func (s *SQLite) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func sqlitePath(u *url.URL) string {
	if u.Opaque != "" {
		return u.Opaque
	}
	return u.Host + u.Path
}
