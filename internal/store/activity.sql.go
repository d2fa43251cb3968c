// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package store

import (
	"context"
	"time"
)

const insertActivityEvent = `-- name: InsertActivityEvent :execrows
INSERT OR IGNORE INTO activity_events (
    id, session_id, user_id, activity_type, activity_name,
    page_url, page_title, referrer,
    template_id, template_name, template_type, download_format,
    search_query, search_results, error_message, error_code,
    feature_name, metadata, user_tier, country, device_type, browser, os,
    created_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

// InsertActivityEventParams holds the columns of a new activity row.
type InsertActivityEventParams struct {
	ID             string
	SessionID      string
	UserID         string
	ActivityType   string
	ActivityName   string
	PageUrl        string
	PageTitle      string
	Referrer       string
	TemplateID     string
	TemplateName   string
	TemplateType   string
	DownloadFormat string
	SearchQuery    string
	SearchResults  int64
	ErrorMessage   string
	ErrorCode      string
	FeatureName    string
	Metadata       string
	UserTier       string
	Country        string
	DeviceType     string
	Browser        string
	Os             string
	CreatedAt      time.Time
}

// InsertActivityEvent appends one activity. Re-inserting an existing id is a
// no-op and reports 0 rows.
func (q *Queries) InsertActivityEvent(ctx context.Context, arg InsertActivityEventParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, insertActivityEvent,
		arg.ID,
		arg.SessionID,
		arg.UserID,
		arg.ActivityType,
		arg.ActivityName,
		arg.PageUrl,
		arg.PageTitle,
		arg.Referrer,
		arg.TemplateID,
		arg.TemplateName,
		arg.TemplateType,
		arg.DownloadFormat,
		arg.SearchQuery,
		arg.SearchResults,
		arg.ErrorMessage,
		arg.ErrorCode,
		arg.FeatureName,
		arg.Metadata,
		arg.UserTier,
		arg.Country,
		arg.DeviceType,
		arg.Browser,
		arg.Os,
		arg.CreatedAt.UTC(),
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const getActivityEvent = `-- name: GetActivityEvent :one
SELECT id, session_id, user_id, activity_type, activity_name,
    page_url, page_title, referrer,
    template_id, template_name, template_type, download_format,
    search_query, search_results, error_message, error_code,
    feature_name, metadata, user_tier, country, device_type, browser, os,
    created_at
FROM activity_events
WHERE id = ?
`

func (q *Queries) GetActivityEvent(ctx context.Context, id string) (ActivityEvent, error) {
	row := q.db.QueryRowContext(ctx, getActivityEvent, id)
	var i ActivityEvent
	err := row.Scan(
		&i.ID,
		&i.SessionID,
		&i.UserID,
		&i.ActivityType,
		&i.ActivityName,
		&i.PageUrl,
		&i.PageTitle,
		&i.Referrer,
		&i.TemplateID,
		&i.TemplateName,
		&i.TemplateType,
		&i.DownloadFormat,
		&i.SearchQuery,
		&i.SearchResults,
		&i.ErrorMessage,
		&i.ErrorCode,
		&i.FeatureName,
		&i.Metadata,
		&i.UserTier,
		&i.Country,
		&i.DeviceType,
		&i.Browser,
		&i.Os,
		&i.CreatedAt,
	)
	return i, err
}

const countActivityEvents = `-- name: CountActivityEvents :one
SELECT COUNT(*) FROM activity_events
`

func (q *Queries) CountActivityEvents(ctx context.Context) (int64, error) {
	row := q.db.QueryRowContext(ctx, countActivityEvents)
	var count int64
	err := row.Scan(&count)
	return count, err
}

const countActivityEventsBySession = `-- name: CountActivityEventsBySession :one
SELECT COUNT(*) FROM activity_events WHERE session_id = ?
`

func (q *Queries) CountActivityEventsBySession(ctx context.Context, sessionID string) (int64, error) {
	row := q.db.QueryRowContext(ctx, countActivityEventsBySession, sessionID)
	var count int64
	err := row.Scan(&count)
	return count, err
}

const deleteActivityEventsBefore = `-- name: DeleteActivityEventsBefore :execrows
DELETE FROM activity_events WHERE created_at < ?
`

// DeleteActivityEventsBefore removes durable activity rows older than before.
func (q *Queries) DeleteActivityEventsBefore(ctx context.Context, before time.Time) (int64, error) {
	result, err := q.db.ExecContext(ctx, deleteActivityEventsBefore, before.UTC())
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
