// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/olegiv/pulse/internal/model"
)

// ActivitySink persists each event as an activity row and folds it into the
// visitor session record.
type ActivitySink struct {
	db *sql.DB
}

// NewActivitySink creates the durable activity sink.
func NewActivitySink(db *sql.DB) *ActivitySink {
	return &ActivitySink{db: db}
}

// Name identifies the sink in logs.
func (s *ActivitySink) Name() string { return "durable" }

// Deliver writes ev. Redelivering an event already stored changes nothing.
func (s *ActivitySink) Deliver(ctx context.Context, ev model.ActivityEvent) error {
	metadata, err := encodeMetadata(ev.Metadata)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	q := New(tx)
	inserted, err := q.InsertActivityEvent(ctx, InsertActivityEventParams{
		ID:             ev.ID,
		SessionID:      ev.SessionID,
		UserID:         ev.UserID,
		ActivityType:   string(ev.Type),
		ActivityName:   ev.Name,
		PageUrl:        ev.PageURL,
		PageTitle:      ev.PageTitle,
		Referrer:       ev.Referrer,
		TemplateID:     ev.TemplateID,
		TemplateName:   ev.TemplateName,
		TemplateType:   string(ev.TemplateType),
		DownloadFormat: ev.DownloadFormat,
		SearchQuery:    ev.SearchQuery,
		SearchResults:  int64(ev.SearchResults),
		ErrorMessage:   ev.ErrorMessage,
		ErrorCode:      ev.ErrorCode,
		FeatureName:    ev.FeatureName,
		Metadata:       metadata,
		UserTier:       ev.UserTier,
		Country:        ev.Country,
		DeviceType:     ev.DeviceType,
		Browser:        ev.Browser,
		Os:             ev.OS,
		CreatedAt:      ev.Timestamp,
	})
	if err != nil {
		return fmt.Errorf("inserting activity %s: %w", ev.ID, err)
	}
	if inserted == 0 {
		return nil
	}

	var pageViews int64
	if ev.Type == model.ActivityPageView {
		pageViews = 1
	}
	if _, err := touchSession(ctx, q, UpsertVisitorSessionParams{
		SessionID:    ev.SessionID,
		UserID:       ev.UserID,
		UserTier:     ev.UserTier,
		Country:      ev.Country,
		DeviceType:   ev.DeviceType,
		Browser:      ev.Browser,
		Os:           ev.OS,
		LandingPage:  ev.PageURL,
		Referrer:     ev.Referrer,
		IsRegistered: ev.UserID != "",
		PageViews:    pageViews,
		SeenAt:       ev.Timestamp,
	}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing activity %s: %w", ev.ID, err)
	}
	return nil
}

func encodeMetadata(m map[string]any) (string, error) {
	if len(m) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("encoding metadata: %w", err)
	}
	return string(b), nil
}

// RollupSink maintains the all-time template and country rollups.
type RollupSink struct {
	queries *Queries
}

// NewRollupSink creates the durable rollup sink.
func NewRollupSink(db *sql.DB) *RollupSink {
	return &RollupSink{queries: New(db)}
}

// Name identifies the sink in logs.
func (s *RollupSink) Name() string { return "rollups" }

// Deliver applies ev's template and download increments. Events that touch
// neither rollup are ignored.
func (s *RollupSink) Deliver(ctx context.Context, ev model.ActivityEvent) error {
	isView := ev.Type == model.ActivityTemplateView
	isDownload := ev.Type == model.ActivityTemplateDownload

	if ev.HasTemplate() && (isView || isDownload) {
		p := UpsertTemplateRollupParams{
			TemplateID:   ev.TemplateID,
			TemplateType: string(ev.TemplateType),
			TemplateName: ev.TemplateName,
			LastActivity: ev.Timestamp,
		}
		if isView {
			p.Views = 1
		} else {
			p.Downloads = 1
		}
		if err := s.queries.UpsertTemplateRollup(ctx, p); err != nil {
			return fmt.Errorf("updating template rollup %s: %w", ev.TemplateID, err)
		}
	}

	if ev.Country != "" && isDownload && ev.TemplateType.Recognized() {
		p := UpsertCountryRollupParams{
			Country:        ev.Country,
			TotalDownloads: 1,
			LastActivity:   ev.Timestamp,
		}
		if ev.TemplateType == model.TemplateSnap {
			p.SnapDownloads = 1
		} else {
			p.ProDownloads = 1
		}
		if err := s.queries.UpsertCountryRollup(ctx, p); err != nil {
			return fmt.Errorf("updating country rollup %s: %w", ev.Country, err)
		}
	}

	return nil
}

// VisitRecorder stores visitor sightings from the session resolver.
type VisitRecorder struct {
	db *sql.DB
}

// NewVisitRecorder creates a VisitRecorder.
func NewVisitRecorder(db *sql.DB) *VisitRecorder {
	return &VisitRecorder{db: db}
}

// Record upserts the visitor session and reports whether it was new.
func (r *VisitRecorder) Record(ctx context.Context, arg UpsertVisitorSessionParams) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	created, err := touchSession(ctx, New(tx), arg)
	if err != nil {
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("committing visit %s: %w", arg.SessionID, err)
	}
	return created, nil
}

// touchSession inserts or updates the visitor session. Whichever writer
// creates the row also counts the visitor in the country rollup.
func touchSession(ctx context.Context, q *Queries, arg UpsertVisitorSessionParams) (bool, error) {
	// Write first so the transaction takes the write lock up front.
	created, err := q.InsertVisitorSessionIfAbsent(ctx, arg)
	if err != nil {
		return false, fmt.Errorf("inserting session %s: %w", arg.SessionID, err)
	}
	if !created {
		if err := q.UpsertVisitorSession(ctx, arg); err != nil {
			return false, fmt.Errorf("updating session %s: %w", arg.SessionID, err)
		}
		return false, nil
	}

	if arg.Country != "" {
		p := UpsertCountryRollupParams{
			Country:      arg.Country,
			Visitors:     1,
			LastActivity: arg.SeenAt,
		}
		if arg.IsRegistered {
			p.RegisteredUsers = 1
		}
		if err := q.UpsertCountryRollup(ctx, p); err != nil {
			return false, fmt.Errorf("counting visitor for %s: %w", arg.Country, err)
		}
	}
	return true, nil
}

// SessionContext loads the enrichment fields of a durable visitor session.
// It returns sql.ErrNoRows for unknown sessions.
func (q *Queries) SessionContext(ctx context.Context, sessionID string) (model.SessionContext, error) {
	row, err := q.GetSessionContext(ctx, sessionID)
	if err != nil {
		return model.SessionContext{}, err
	}
	return model.SessionContext{
		UserID:     row.UserID,
		UserTier:   row.UserTier,
		Country:    row.Country,
		DeviceType: row.DeviceType,
	}, nil
}
