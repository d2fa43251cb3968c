// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/olegiv/pulse/internal/model"
	"github.com/olegiv/pulse/internal/visitor"
)

// maxTrackBody bounds the size of a track request body.
const maxTrackBody = 64 << 10

// Tracker ingests one activity.
type Tracker interface {
	Track(ctx context.Context, in model.TrackInput) (model.ActivityEvent, error)
}

// Identifier resolves the visitor behind a request.
type Identifier interface {
	Identify(w http.ResponseWriter, r *http.Request) visitor.Identity
}

// TrackHandler serves POST /api/track.
type TrackHandler struct {
	tracker  Tracker
	identity Identifier
	logger   *slog.Logger
}

// NewTrackHandler creates a track handler. identity may be nil, in which case
// every request must carry its own session id.
func NewTrackHandler(tracker Tracker, identity Identifier, logger *slog.Logger) *TrackHandler {
	return &TrackHandler{tracker: tracker, identity: identity, logger: logger}
}

// TrackResponse acknowledges an accepted activity.
type TrackResponse struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Timestamp time.Time `json:"timestamp"`
}

// Track handles POST /api/track.
func (h *TrackHandler) Track(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxTrackBody)

	var in model.TrackInput
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(&in); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			WriteError(w, http.StatusRequestEntityTooLarge, "payload_too_large", "Request body too large", nil)
			return
		}
		WriteBadRequest(w, "Invalid JSON body", nil)
		return
	}

	if strings.TrimSpace(in.SessionID) == "" && h.identity != nil {
		applyIdentity(&in, h.identity.Identify(w, r))
	}

	ev, err := h.tracker.Track(r.Context(), in)
	if err != nil {
		var verr *model.ValidationError
		switch {
		case errors.As(err, &verr):
			WriteValidationError(w, verr.Fields)
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			WriteError(w, http.StatusServiceUnavailable, "unavailable", "Request cancelled", nil)
		default:
			h.logger.Error("track request failed", "error", err)
			WriteInternalError(w, "Failed to record activity")
		}
		return
	}

	WriteAccepted(w, TrackResponse{
		ID:        ev.ID,
		SessionID: ev.SessionID,
		Timestamp: ev.Timestamp,
	})
}

// applyIdentity fills the fields the body left empty from the resolved
// visitor.
func applyIdentity(in *model.TrackInput, id visitor.Identity) {
	in.SessionID = id.SessionID
	fill := func(dst *string, v string) {
		if *dst == "" {
			*dst = v
		}
	}
	fill(&in.UserID, id.UserID)
	fill(&in.UserTier, id.UserTier)
	fill(&in.Country, id.Country)
	fill(&in.DeviceType, id.DeviceType)
	fill(&in.Browser, id.Browser)
	fill(&in.OS, id.OS)
}
