// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package store

import (
	"context"
	"time"
)

const upsertVisitorSession = `-- name: UpsertVisitorSession :exec
INSERT INTO visitor_sessions (
    session_id, user_id, user_tier, country, device_type, browser, os,
    language, landing_page, referrer, is_registered, page_views,
    first_seen, last_seen
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(session_id) DO UPDATE SET
    user_id = CASE WHEN excluded.user_id != '' THEN excluded.user_id ELSE visitor_sessions.user_id END,
    user_tier = CASE WHEN excluded.user_tier != '' THEN excluded.user_tier ELSE visitor_sessions.user_tier END,
    country = CASE WHEN excluded.country != '' THEN excluded.country ELSE visitor_sessions.country END,
    device_type = CASE WHEN excluded.device_type != '' THEN excluded.device_type ELSE visitor_sessions.device_type END,
    browser = CASE WHEN excluded.browser != '' THEN excluded.browser ELSE visitor_sessions.browser END,
    os = CASE WHEN excluded.os != '' THEN excluded.os ELSE visitor_sessions.os END,
    language = CASE WHEN excluded.language != '' THEN excluded.language ELSE visitor_sessions.language END,
    is_registered = MAX(visitor_sessions.is_registered, excluded.is_registered),
    page_views = visitor_sessions.page_views + excluded.page_views,
    last_seen = CASE WHEN excluded.last_seen > visitor_sessions.last_seen THEN excluded.last_seen ELSE visitor_sessions.last_seen END
`

// UpsertVisitorSessionParams describes one sighting of a visitor. Empty
// strings leave the stored value untouched; PageViews is added to the count.
type UpsertVisitorSessionParams struct {
	SessionID    string
	UserID       string
	UserTier     string
	Country      string
	DeviceType   string
	Browser      string
	Os           string
	Language     string
	LandingPage  string
	Referrer     string
	IsRegistered bool
	PageViews    int64
	SeenAt       time.Time
}

func (q *Queries) UpsertVisitorSession(ctx context.Context, arg UpsertVisitorSessionParams) error {
	seen := arg.SeenAt.UTC()
	_, err := q.db.ExecContext(ctx, upsertVisitorSession,
		arg.SessionID,
		arg.UserID,
		arg.UserTier,
		arg.Country,
		arg.DeviceType,
		arg.Browser,
		arg.Os,
		arg.Language,
		arg.LandingPage,
		arg.Referrer,
		arg.IsRegistered,
		arg.PageViews,
		seen,
		seen,
	)
	return err
}

const insertVisitorSessionIfAbsent = `-- name: InsertVisitorSessionIfAbsent :execrows
INSERT INTO visitor_sessions (
    session_id, user_id, user_tier, country, device_type, browser, os,
    language, landing_page, referrer, is_registered, page_views,
    first_seen, last_seen
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(session_id) DO NOTHING
`

// InsertVisitorSessionIfAbsent creates the session row and reports whether it
// did; an existing row is left alone.
func (q *Queries) InsertVisitorSessionIfAbsent(ctx context.Context, arg UpsertVisitorSessionParams) (bool, error) {
	seen := arg.SeenAt.UTC()
	result, err := q.db.ExecContext(ctx, insertVisitorSessionIfAbsent,
		arg.SessionID,
		arg.UserID,
		arg.UserTier,
		arg.Country,
		arg.DeviceType,
		arg.Browser,
		arg.Os,
		arg.Language,
		arg.LandingPage,
		arg.Referrer,
		arg.IsRegistered,
		arg.PageViews,
		seen,
		seen,
	)
	if err != nil {
		return false, err
	}
	n, err := result.RowsAffected()
	return n > 0, err
}

const getVisitorSession = `-- name: GetVisitorSession :one
SELECT session_id, user_id, user_tier, country, device_type, browser, os,
    language, landing_page, referrer, is_registered, page_views,
    first_seen, last_seen
FROM visitor_sessions
WHERE session_id = ?
`

func (q *Queries) GetVisitorSession(ctx context.Context, sessionID string) (VisitorSession, error) {
	row := q.db.QueryRowContext(ctx, getVisitorSession, sessionID)
	var i VisitorSession
	err := row.Scan(
		&i.SessionID,
		&i.UserID,
		&i.UserTier,
		&i.Country,
		&i.DeviceType,
		&i.Browser,
		&i.Os,
		&i.Language,
		&i.LandingPage,
		&i.Referrer,
		&i.IsRegistered,
		&i.PageViews,
		&i.FirstSeen,
		&i.LastSeen,
	)
	return i, err
}

const getSessionContext = `-- name: GetSessionContext :one
SELECT user_id, user_tier, country, device_type
FROM visitor_sessions
WHERE session_id = ?
`

// GetSessionContextRow is the enrichment subset of a visitor session.
type GetSessionContextRow struct {
	UserID     string
	UserTier   string
	Country    string
	DeviceType string
}

func (q *Queries) GetSessionContext(ctx context.Context, sessionID string) (GetSessionContextRow, error) {
	row := q.db.QueryRowContext(ctx, getSessionContext, sessionID)
	var i GetSessionContextRow
	err := row.Scan(
		&i.UserID,
		&i.UserTier,
		&i.Country,
		&i.DeviceType,
	)
	return i, err
}

const countVisitorSessions = `-- name: CountVisitorSessions :one
SELECT COUNT(*) FROM visitor_sessions
`

func (q *Queries) CountVisitorSessions(ctx context.Context) (int64, error) {
	row := q.db.QueryRowContext(ctx, countVisitorSessions)
	var count int64
	err := row.Scan(&count)
	return count, err
}
