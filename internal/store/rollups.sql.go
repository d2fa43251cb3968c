// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package store

import (
	"context"
	"time"
)

const upsertTemplateRollup = `-- name: UpsertTemplateRollup :exec
INSERT INTO template_rollups (template_id, template_type, template_name, views, downloads, last_activity)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(template_id, template_type) DO UPDATE SET
    template_name = CASE WHEN template_rollups.template_name = '' THEN excluded.template_name ELSE template_rollups.template_name END,
    views = template_rollups.views + excluded.views,
    downloads = template_rollups.downloads + excluded.downloads,
    last_activity = CASE WHEN excluded.last_activity > template_rollups.last_activity THEN excluded.last_activity ELSE template_rollups.last_activity END
`

// UpsertTemplateRollupParams carries increments for one template.
type UpsertTemplateRollupParams struct {
	TemplateID   string
	TemplateType string
	TemplateName string
	Views        int64
	Downloads    int64
	LastActivity time.Time
}

func (q *Queries) UpsertTemplateRollup(ctx context.Context, arg UpsertTemplateRollupParams) error {
	_, err := q.db.ExecContext(ctx, upsertTemplateRollup,
		arg.TemplateID,
		arg.TemplateType,
		arg.TemplateName,
		arg.Views,
		arg.Downloads,
		arg.LastActivity.UTC(),
	)
	return err
}

const getTemplateRollup = `-- name: GetTemplateRollup :one
SELECT template_id, template_type, template_name, views, downloads, last_activity
FROM template_rollups
WHERE template_id = ? AND template_type = ?
`

func (q *Queries) GetTemplateRollup(ctx context.Context, templateID, templateType string) (TemplateRollup, error) {
	row := q.db.QueryRowContext(ctx, getTemplateRollup, templateID, templateType)
	var i TemplateRollup
	err := row.Scan(
		&i.TemplateID,
		&i.TemplateType,
		&i.TemplateName,
		&i.Views,
		&i.Downloads,
		&i.LastActivity,
	)
	return i, err
}

const listTemplateRollups = `-- name: ListTemplateRollups :many
SELECT template_id, template_type, template_name, views, downloads, last_activity
FROM template_rollups
ORDER BY downloads DESC, views DESC, template_id
LIMIT ?
`

func (q *Queries) ListTemplateRollups(ctx context.Context, limit int64) ([]TemplateRollup, error) {
	rows, err := q.db.QueryContext(ctx, listTemplateRollups, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	items := []TemplateRollup{}
	for rows.Next() {
		var i TemplateRollup
		if err := rows.Scan(
			&i.TemplateID,
			&i.TemplateType,
			&i.TemplateName,
			&i.Views,
			&i.Downloads,
			&i.LastActivity,
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

const upsertCountryRollup = `-- name: UpsertCountryRollup :exec
INSERT INTO country_rollups (country, visitors, registered_users, total_downloads, snap_downloads, pro_downloads, last_activity)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(country) DO UPDATE SET
    visitors = country_rollups.visitors + excluded.visitors,
    registered_users = country_rollups.registered_users + excluded.registered_users,
    total_downloads = country_rollups.total_downloads + excluded.total_downloads,
    snap_downloads = country_rollups.snap_downloads + excluded.snap_downloads,
    pro_downloads = country_rollups.pro_downloads + excluded.pro_downloads,
    last_activity = CASE WHEN excluded.last_activity > country_rollups.last_activity THEN excluded.last_activity ELSE country_rollups.last_activity END
`

// UpsertCountryRollupParams carries increments for one country.
type UpsertCountryRollupParams struct {
	Country         string
	Visitors        int64
	RegisteredUsers int64
	TotalDownloads  int64
	SnapDownloads   int64
	ProDownloads    int64
	LastActivity    time.Time
}

func (q *Queries) UpsertCountryRollup(ctx context.Context, arg UpsertCountryRollupParams) error {
	_, err := q.db.ExecContext(ctx, upsertCountryRollup,
		arg.Country,
		arg.Visitors,
		arg.RegisteredUsers,
		arg.TotalDownloads,
		arg.SnapDownloads,
		arg.ProDownloads,
		arg.LastActivity.UTC(),
	)
	return err
}

const getCountryRollup = `-- name: GetCountryRollup :one
SELECT country, visitors, registered_users, total_downloads, snap_downloads, pro_downloads, last_activity
FROM country_rollups
WHERE country = ?
`

func (q *Queries) GetCountryRollup(ctx context.Context, country string) (CountryRollup, error) {
	row := q.db.QueryRowContext(ctx, getCountryRollup, country)
	var i CountryRollup
	err := row.Scan(
		&i.Country,
		&i.Visitors,
		&i.RegisteredUsers,
		&i.TotalDownloads,
		&i.SnapDownloads,
		&i.ProDownloads,
		&i.LastActivity,
	)
	return i, err
}

const listCountryRollups = `-- name: ListCountryRollups :many
SELECT country, visitors, registered_users, total_downloads, snap_downloads, pro_downloads, last_activity
FROM country_rollups
ORDER BY visitors DESC, country
LIMIT ?
`

func (q *Queries) ListCountryRollups(ctx context.Context, limit int64) ([]CountryRollup, error) {
	rows, err := q.db.QueryContext(ctx, listCountryRollups, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	items := []CountryRollup{}
	for rows.Next() {
		var i CountryRollup
		if err := rows.Scan(
			&i.Country,
			&i.Visitors,
			&i.RegisteredUsers,
			&i.TotalDownloads,
			&i.SnapDownloads,
			&i.ProDownloads,
			&i.LastActivity,
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
