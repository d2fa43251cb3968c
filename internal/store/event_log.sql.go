// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package store

import (
	"context"
	"time"
)

const createLogEntry = `-- name: CreateLogEntry :one
INSERT INTO event_log (level, category, message, metadata, created_at)
VALUES (?, ?, ?, ?, ?)
RETURNING id, level, category, message, metadata, created_at
`

// CreateLogEntryParams holds a persisted log record.
type CreateLogEntryParams struct {
	Level     string
	Category  string
	Message   string
	Metadata  string
	CreatedAt time.Time
}

func (q *Queries) CreateLogEntry(ctx context.Context, arg CreateLogEntryParams) (EventLog, error) {
	row := q.db.QueryRowContext(ctx, createLogEntry,
		arg.Level,
		arg.Category,
		arg.Message,
		arg.Metadata,
		arg.CreatedAt.UTC(),
	)
	var i EventLog
	err := row.Scan(
		&i.ID,
		&i.Level,
		&i.Category,
		&i.Message,
		&i.Metadata,
		&i.CreatedAt,
	)
	return i, err
}

const listLogEntries = `-- name: ListLogEntries :many
SELECT id, level, category, message, metadata, created_at
FROM event_log
ORDER BY created_at DESC, id DESC
LIMIT ?
`

func (q *Queries) ListLogEntries(ctx context.Context, limit int64) ([]EventLog, error) {
	rows, err := q.db.QueryContext(ctx, listLogEntries, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	items := []EventLog{}
	for rows.Next() {
		var i EventLog
		if err := rows.Scan(
			&i.ID,
			&i.Level,
			&i.Category,
			&i.Message,
			&i.Metadata,
			&i.CreatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const deleteLogEntriesBefore = `-- name: DeleteLogEntriesBefore :execrows
DELETE FROM event_log WHERE created_at < ?
`

func (q *Queries) DeleteLogEntriesBefore(ctx context.Context, before time.Time) (int64, error) {
	result, err := q.db.ExecContext(ctx, deleteLogEntriesBefore, before.UTC())
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
