// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package ingest

import (
	"context"

	"github.com/olegiv/pulse/internal/model"
)

// Sink receives a copy of every tracked event. Deliver runs on a dispatcher
// worker under the fan-out timeout; a returned error is logged and the event
// is dropped for that sink.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, ev model.ActivityEvent) error
}

// SessionLookup returns the durable context of a session.
type SessionLookup interface {
	SessionContext(ctx context.Context, sessionID string) (model.SessionContext, error)
}

// Enrich wraps sink so that events missing user tier, country or device type
// are completed from the durable session record before delivery. A failed
// lookup delivers the event as it is.
func Enrich(sink Sink, lookup SessionLookup) Sink {
	return &enrichedSink{next: sink, lookup: lookup}
}

type enrichedSink struct {
	next   Sink
	lookup SessionLookup
}

func (s *enrichedSink) Name() string { return s.next.Name() }

func (s *enrichedSink) Deliver(ctx context.Context, ev model.ActivityEvent) error {
	if model.NeedsEnrichment(ev) {
		if sc, err := s.lookup.SessionContext(ctx, ev.SessionID); err == nil {
			ev = sc.Apply(ev)
			if ev.UserID == "" {
				ev.UserID = sc.UserID
			}
		}
	}
	return s.next.Deliver(ctx, ev)
}
