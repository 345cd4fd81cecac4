package store

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

const clickHouseDefaultDatabase = "default"

var clickHouseSchema = []string{
	`CREATE TABLE IF NOT EXISTS ChatInference (
        id UUID,
        function_name LowCardinality(String),
        variant_name LowCardinality(String),
        episode_id UUID,
        input String,
        output String,
        tags String,
        processing_time_ms UInt32,
        timestamp DateTime64(3) DEFAULT now64(3)
    ) ENGINE = MergeTree()
    ORDER BY (function_name, variant_name, id)`,
	`CREATE TABLE IF NOT EXISTS ModelInference (
        id UUID,
        inference_id UUID,
        raw_request String,
        raw_response String,
        model_name LowCardinality(String),
        model_provider_name LowCardinality(String),
        input_tokens UInt32,
        output_tokens UInt32,
        response_time_ms UInt32,
        timestamp DateTime64(3) DEFAULT now64(3)
    ) ENGINE = MergeTree()
    ORDER BY inference_id`,
}

type ClickHouse struct {
	conn driver.Conn
}

func OpenClickHouse(ctx context.Context, u *url.URL) (*ClickHouse, error) {
	opts, err := clickHouseOptions(u)
	if err != nil {
		return nil, err
	}
	if err := ensureClickHouseDatabase(ctx, *opts); err != nil {
		return nil, err
	}
	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open clickhouse: %w", err)
	}
	for _, stmt := range clickHouseSchema {
		if err := conn.Exec(ctx, stmt); err != nil {
			conn.Close()
			return nil, fmt.Errorf("create clickhouse schema in %q: %w", opts.Auth.Database, err)
		}
	}
	return &ClickHouse{conn: conn}, nil
}

func clickHouseOptions(u *url.URL) (*clickhouse.Options, error) {
	opts := &clickhouse.Options{
		DialTimeout: 10 * time.Second,
	}
	defaultPort := "9000"
	switch strings.ToLower(u.Scheme) {
	case "http":
		opts.Protocol = clickhouse.HTTP
		defaultPort = "8123"
	case "https":
		opts.Protocol = clickhouse.HTTP
		opts.TLS = &tls.Config{}
		defaultPort = "8443"
	case "clickhouse":
		opts.Protocol = clickhouse.Native
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}

	host := u.Hostname()
	if host == "" {
		return nil, fmt.Errorf("clickhouse url has no host")
	}
	port := u.Port()
	if port == "" {
		port = defaultPort
	}
	opts.Addr = []string{net.JoinHostPort(host, port)}

	database := strings.Trim(u.Path, "/")
	if database == "" {
		database = clickHouseDefaultDatabase
	}
	opts.Auth = clickhouse.Auth{Database: database}
	if u.User != nil {
		opts.Auth.Username = u.User.Username()
		opts.Auth.Password, _ = u.User.Password()
	}
	return opts, nil
}

// ensureClickHouseDatabase creates the database named in opts through the
// default database, which always exists.
func ensureClickHouseDatabase(ctx context.Context, opts clickhouse.Options) error {
	database := opts.Auth.Database
	if database == clickHouseDefaultDatabase {
		return nil
	}
	opts.Auth.Database = clickHouseDefaultDatabase
	conn, err := clickhouse.Open(&opts)
	if err != nil {
		return fmt.Errorf("open clickhouse: %w", err)
	}
	defer conn.Close()
	if err := conn.Exec(ctx, createDatabaseStatement(database)); err != nil {
		return fmt.Errorf("create clickhouse database %q: %w", database, err)
	}
	return nil
}

func createDatabaseStatement(database string) string {
	return "CREATE DATABASE IF NOT EXISTS `" + strings.ReplaceAll(database, "`", "``") + "`"
}

func (c *ClickHouse) WriteChatInference(ctx context.Context, row ChatInference) error {
	err := c.conn.Exec(ctx,
		`INSERT INTO ChatInference (id, function_name, variant_name, episode_id, input, output, tags, processing_time_ms)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		row.ID.String(), row.FunctionName, row.VariantName, row.EpisodeID.String(),
		row.Input, row.Output, encodeTags(row.Tags), uint32(row.ProcessingTime.Milliseconds()),
	)
	if err != nil {
		return fmt.Errorf("insert chat inference: %w", err)
	}
	return nil
}

func (c *ClickHouse) WriteModelInference(ctx context.Context, row ModelInference) error {
	err := c.conn.Exec(ctx,
		`INSERT INTO ModelInference (id, inference_id, raw_request, raw_response, model_name, model_provider_name, input_tokens, output_tokens, response_time_ms)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		row.ID.String(), row.InferenceID.String(), row.RawRequest, row.RawResponse,
		row.ModelName, row.ModelProviderName, uint32(row.InputTokens), uint32(row.OutputTokens),
		uint32(row.ResponseTime.Milliseconds()),
	)
	if err != nil {
		return fmt.Errorf("insert model inference: %w", err)
	}
	return nil
}

func (c *ClickHouse) Ping(ctx context.Context) error {
	return c.conn.Ping(ctx)
}

func (c *ClickHouse) Close() error {
	return c.conn.Close()
}
