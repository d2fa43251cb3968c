// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package ingest is the entry point for activity events. Track applies an
// event to the in-memory aggregate synchronously and then hands it to the
// fan-out dispatcher for the durable store and external sinks.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/olegiv/pulse/internal/model"
)

// timeNow stamps ingested events; tests replace it.
var timeNow = time.Now

// Recorder is the in-memory aggregate.
type Recorder interface {
	Record(ev model.ActivityEvent) bool
}

// Publisher forwards events to sinks asynchronously.
type Publisher interface {
	Enqueue(ev model.ActivityEvent)
}

// Service accepts activity from producers.
type Service struct {
	recorder  Recorder
	publisher Publisher
	logger    *slog.Logger
}

// NewService creates the ingest service.
func NewService(recorder Recorder, publisher Publisher, logger *slog.Logger) *Service {
	return &Service{
		recorder:  recorder,
		publisher: publisher,
		logger:    logger,
	}
}

// Track validates in, assigns an id and the ingestion timestamp, records the
// event in memory and enqueues it for fan-out. The returned event is what
// was recorded. Validation failures are returned as *model.ValidationError.
func (s *Service) Track(ctx context.Context, in model.TrackInput) (model.ActivityEvent, error) {
	if err := ctx.Err(); err != nil {
		return model.ActivityEvent{}, err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return model.ActivityEvent{}, fmt.Errorf("generating event id: %w", err)
	}

	ev, err := model.NewActivityEvent(in, id.String(), timeNow().UTC())
	if err != nil {
		return model.ActivityEvent{}, err
	}

	if !s.recorder.Record(ev) {
		// Only possible on an id collision; the first copy wins.
		s.logger.Warn("duplicate event id ignored", "event_id", ev.ID)
		return ev, nil
	}
	s.publisher.Enqueue(ev)

	s.logger.Debug("activity tracked",
		"event_id", ev.ID,
		"session_id", ev.SessionID,
		"activity_type", string(ev.Type))
	return ev, nil
}
