// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package logging provides a slog handler that also persists warnings and
// errors to the durable event log, so dropped deliveries and failed sweeps
// can be audited after the fact.
package logging

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/olegiv/pulse/internal/model"
	"github.com/olegiv/pulse/internal/store"
)

// EventLogHandler wraps another handler and writes records at or above its
// level to the event_log table.
type EventLogHandler struct {
	inner   slog.Handler
	queries *store.Queries
	level   slog.Level
}

// NewEventLogHandler persists WARN and above.
func NewEventLogHandler(inner slog.Handler, db *sql.DB) *EventLogHandler {
	return NewEventLogHandlerWithLevel(inner, db, slog.LevelWarn)
}

// NewEventLogHandlerWithLevel persists records at level and above.
func NewEventLogHandlerWithLevel(inner slog.Handler, db *sql.DB, level slog.Level) *EventLogHandler {
	return &EventLogHandler{
		inner:   inner,
		queries: store.New(db),
		level:   level,
	}
}

// Enabled implements slog.Handler.
func (h *EventLogHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// Handle implements slog.Handler.
func (h *EventLogHandler) Handle(ctx context.Context, r slog.Record) error {
	if err := h.inner.Handle(ctx, r); err != nil {
		return err
	}

	if r.Level >= h.level {
		h.persist(r)
	}
	return nil
}

// WithAttrs implements slog.Handler.
func (h *EventLogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &EventLogHandler{
		inner:   h.inner.WithAttrs(attrs),
		queries: h.queries,
		level:   h.level,
	}
}

// WithGroup implements slog.Handler.
func (h *EventLogHandler) WithGroup(name string) slog.Handler {
	return &EventLogHandler{
		inner:   h.inner.WithGroup(name),
		queries: h.queries,
		level:   h.level,
	}
}

func (h *EventLogHandler) persist(r slog.Record) {
	// Background context: the entry is written even if the caller's request
	// has already been cancelled.
	_, _ = h.queries.CreateLogEntry(context.Background(), store.CreateLogEntryParams{
		Level:     levelName(r.Level),
		Category:  category(r),
		Message:   r.Message,
		Metadata:  metadata(r),
		CreatedAt: r.Time,
	})
}

func levelName(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return model.LogLevelError
	case level >= slog.LevelWarn:
		return model.LogLevelWarning
	default:
		return model.LogLevelInfo
	}
}

// category uses an explicit "category" attribute, or guesses from the message.
func category(r slog.Record) string {
	var cat string
	r.Attrs(func(a slog.Attr) bool {
		if a.Key == "category" {
			cat = a.Value.String()
			return false
		}
		return true
	})
	if cat != "" {
		return cat
	}

	msg := strings.ToLower(r.Message)
	switch {
	case strings.Contains(msg, "sink") || strings.Contains(msg, "deliver") || strings.Contains(msg, "dispatch"):
		return model.LogCategoryFanout
	case strings.Contains(msg, "sweep") || strings.Contains(msg, "evict"):
		return model.LogCategoryEviction
	case strings.Contains(msg, "geoip"):
		return model.LogCategoryGeoIP
	case strings.Contains(msg, "cache"):
		return model.LogCategoryCache
	case strings.Contains(msg, "track") || strings.Contains(msg, "ingest"):
		return model.LogCategoryIngest
	default:
		return model.LogCategorySystem
	}
}

// metadata renders the record's attributes, except category, as a JSON object.
func metadata(r slog.Record) string {
	fields := make(map[string]string, r.NumAttrs())
	r.Attrs(func(a slog.Attr) bool {
		if a.Key != "category" {
			fields[a.Key] = a.Value.String()
		}
		return true
	})
	if len(fields) == 0 {
		return "{}"
	}

	b, err := json.Marshal(fields)
	if err != nil {
		return "{}"
	}
	return string(b)
}

// ParseLevel maps a configured level name to a slog.Level. Unknown names
// fall back to info.
func ParseLevel(name string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
