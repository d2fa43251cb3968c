// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package warehouse copies activity events into ClickHouse for long-range
// analysis. It is optional and enabled by PULSE_CLICKHOUSE_DSN.
package warehouse

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/olegiv/pulse/internal/model"
)

const tableName = "activity_events"

const createTableSQL = `CREATE TABLE IF NOT EXISTS ` + tableName + ` (
	id              String,
	session_id      String,
	user_id         String,
	activity_type   LowCardinality(String),
	activity_name   String,
	page_url        String,
	referrer        String,
	template_id     String,
	template_name   String,
	template_type   LowCardinality(String),
	download_format LowCardinality(String),
	search_query    String,
	search_results  Int32,
	error_code      String,
	feature_name    String,
	user_tier       LowCardinality(String),
	country         LowCardinality(String),
	device_type     LowCardinality(String),
	browser         LowCardinality(String),
	os              LowCardinality(String),
	metadata        String,
	timestamp       DateTime64(3, 'UTC')
) ENGINE = MergeTree
PARTITION BY toYYYYMM(timestamp)
ORDER BY (activity_type, timestamp, id)`

const insertSQL = `INSERT INTO ` + tableName

// Sink appends every event to the ClickHouse activity table.
type Sink struct {
	conn driver.Conn
}

// Open connects using a clickhouse:// DSN, pings the server and creates the
// activity table if needed. appVersion is reported to the server as client
// info.
func Open(ctx context.Context, dsn, appVersion string) (*Sink, error) {
	opts, err := clickhouse.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing ClickHouse DSN: %w", err)
	}
	opts.ClientInfo = clickhouse.ClientInfo{
		Products: []struct {
			Name    string
			Version string
		}{{Name: "pulse", Version: appVersion}},
	}
	if opts.Compression == nil {
		opts.Compression = &clickhouse.Compression{Method: clickhouse.CompressionLZ4}
	}
	if opts.DialTimeout == 0 {
		opts.DialTimeout = 5 * time.Second
	}

	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("connecting to ClickHouse: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("pinging ClickHouse: %w", err)
	}

	s := &Sink{conn: conn}
	if err := s.EnsureTable(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return s, nil
}

// EnsureTable creates the activity table if it does not exist.
func (s *Sink) EnsureTable(ctx context.Context) error {
	if err := s.conn.Exec(ctx, createTableSQL); err != nil {
		return fmt.Errorf("creating %s: %w", tableName, err)
	}
	return nil
}

// Name implements ingest.Sink.
func (s *Sink) Name() string { return "warehouse" }

// Deliver inserts one row.
func (s *Sink) Deliver(ctx context.Context, ev model.ActivityEvent) error {
	values, err := row(ev)
	if err != nil {
		return err
	}

	batch, err := s.conn.PrepareBatch(ctx, insertSQL)
	if err != nil {
		return fmt.Errorf("preparing batch: %w", err)
	}
	if err := batch.Append(values...); err != nil {
		_ = batch.Abort()
		return fmt.Errorf("appending row: %w", err)
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("sending batch: %w", err)
	}
	return nil
}

// Close closes the connection.
func (s *Sink) Close() error {
	return s.conn.Close()
}

// row flattens ev in table column order.
func row(ev model.ActivityEvent) ([]any, error) {
	meta := "{}"
	if len(ev.Metadata) > 0 {
		b, err := json.Marshal(ev.Metadata)
		if err != nil {
			return nil, fmt.Errorf("encoding metadata: %w", err)
		}
		meta = string(b)
	}

	return []any{
		ev.ID,
		ev.SessionID,
		ev.UserID,
		string(ev.Type),
		ev.Name,
		ev.PageURL,
		ev.Referrer,
		ev.TemplateID,
		ev.TemplateName,
		string(ev.TemplateType),
		ev.DownloadFormat,
		ev.SearchQuery,
		int32(ev.SearchResults),
		ev.ErrorCode,
		ev.FeatureName,
		ev.UserTier,
		ev.Country,
		ev.DeviceType,
		ev.Browser,
		ev.OS,
		meta,
		ev.Timestamp.UTC(),
	}, nil
}
