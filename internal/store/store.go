// Package store persists inference records for observability. The backend is
// chosen from the scheme of the storage URL.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

var ErrUnsupportedScheme = errors.New("unsupported storage url scheme")

// ChatInference is one function call as seen by the caller.
type ChatInference struct {
	ID             uuid.UUID
	FunctionName   string
	VariantName    string
	EpisodeID      uuid.UUID
	Input          string
	Output         string
	Tags           map[string]string
	ProcessingTime time.Duration
	CreatedAt      time.Time
}

// ModelInference is the provider request behind a ChatInference.
type ModelInference struct {
	ID                uuid.UUID
	InferenceID       uuid.UUID
	RawRequest        string
	RawResponse       string
	ModelName         string
	ModelProviderName string
	InputTokens       int
	OutputTokens      int
	ResponseTime      time.Duration
	CreatedAt         time.Time
}

type Store interface {
	WriteChatInference(ctx context.Context, row ChatInference) error
	WriteModelInference(ctx context.Context, row ModelInference) error
	Ping(ctx context.Context) error
	Close() error
}

// Open connects to the store named by rawURL:
// http, https and clickhouse schemes select ClickHouse, postgres and
// postgresql select PostgreSQL, sqlite and file select SQLite.
// An empty URL returns a Nop store.
func Open(ctx context.Context, rawURL string) (Store, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return Nop{}, nil
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse storage url: %w", err)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https", "clickhouse":
		return OpenClickHouse(ctx, u)
	case "postgres", "postgresql":
		return OpenPostgres(ctx, rawURL)
	case "sqlite", "file":
		return OpenSQLite(ctx, sqlitePath(u))
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}
}

// Redact hides the password of a storage URL for logging.
func Redact(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "<invalid url>"
	}
	return u.Redacted()
}

// Nop discards every row.
type Nop struct{}

func (Nop) WriteChatInference(context.Context, ChatInference) error   { return nil }
func (Nop) WriteModelInference(context.Context, ModelInference) error { return nil }
func (Nop) Ping(context.Context) error                                { return nil }
func (Nop) Close() error                                              { return nil }

func encodeTags(tags map[string]string) string {
	if len(tags) == 0 {
		return "{}"
	}
	data, err := json.Marshal(tags)
	if err != nil {
		return "{}"
	}
	return string(data)
}

func createdAt(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t.UTC()
}
