// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package realtime

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/olegiv/pulse/internal/model"
)

// SweepReport describes what one eviction pass removed.
type SweepReport struct {
	Cutoff     time.Time     `json:"cutoff"`
	Activities int           `json:"activities"`
	Sessions   int           `json:"sessions"`
	Templates  int           `json:"templates"`
	Countries  int           `json:"countries"`
	Capped     int           `json:"capped"`
	Recent     int           `json:"recent"`
	Failed     []string      `json:"failed,omitempty"`
	Duration   time.Duration `json:"duration"`
}

// Removed returns the total number of entries dropped.
func (r SweepReport) Removed() int {
	return r.Activities + r.Sessions + r.Templates + r.Countries + r.Capped + r.Recent
}

// sweepStep evicts from one index and returns the number of entries removed.
type sweepStep struct {
	name  string
	count *int
	run   func(cutoff time.Time) int
}

// Sweep drops everything whose recency timestamp is older than the retention
// window, then trims events to the hard cap. Each index is swept in its own
// step: a failing step is logged and the rest still run. Cancelling ctx stops
// the pass before the next step.
func (s *Store) Sweep(ctx context.Context) (SweepReport, error) {
	start := timeNow()
	report := SweepReport{Cutoff: start.Add(-s.cfg.Retention)}

	steps := []sweepStep{
		{name: "activities", count: &report.Activities, run: s.sweepEvents},
		{name: "cap", count: &report.Capped, run: s.enforceCap},
		{name: "sessions", count: &report.Sessions, run: s.sweepSessions},
		{name: "templates", count: &report.Templates, run: s.sweepTemplates},
		{name: "countries", count: &report.Countries, run: s.sweepCountries},
		{name: "recent", count: &report.Recent, run: s.compactRecent},
	}

	err := s.runSweep(ctx, &report, steps)
	report.Duration = timeNow().Sub(start)

	if report.Removed() > 0 || err != nil {
		s.logger.Info("realtime sweep completed",
			"category", model.LogCategoryEviction,
			"cutoff", report.Cutoff,
			"activities", report.Activities,
			"sessions", report.Sessions,
			"templates", report.Templates,
			"countries", report.Countries,
			"capped", report.Capped,
			"failed", len(report.Failed),
			"duration", report.Duration,
		)
	}
	return report, err
}

func (s *Store) runSweep(ctx context.Context, report *SweepReport, steps []sweepStep) error {
	var errs []error

	for i, step := range steps {
		if err := ctx.Err(); err != nil {
			for _, skipped := range steps[i:] {
				report.Failed = append(report.Failed, skipped.name)
			}
			errs = append(errs, fmt.Errorf("sweep stopped before %s: %w", step.name, err))
			break
		}

		n, err := runStep(step, report.Cutoff)
		if err != nil {
			s.logger.Error("realtime sweep step failed",
				"category", model.LogCategoryEviction,
				"step", step.name,
				"error", err,
			)
			report.Failed = append(report.Failed, step.name)
			errs = append(errs, err)
			continue
		}
		if step.count != nil {
			*step.count = n
		}
	}

	return errors.Join(errs...)
}

// runStep isolates a panicking step from the rest of the sweep.
func runStep(step sweepStep, cutoff time.Time) (n int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sweeping %s: panic: %v", step.name, r)
		}
	}()
	return step.run(cutoff), nil
}

func (s *Store) sweepEvents(cutoff time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, ev := range s.events {
		if ev.Timestamp.Before(cutoff) {
			delete(s.events, id)
			removed++
		}
	}
	return removed
}

// sweepSessions also drops references to events that are gone from
// surviving sessions.
func (s *Store) sweepSessions(cutoff time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, sess := range s.sessions {
		if sess.LastSeen.Before(cutoff) {
			delete(s.sessions, id)
			removed++
			continue
		}
		sess.ActivityIDs = slices.DeleteFunc(sess.ActivityIDs, func(eventID string) bool {
			_, ok := s.events[eventID]
			return !ok
		})
	}
	return removed
}

func (s *Store) sweepTemplates(cutoff time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, entry := range s.templates {
		if entry.stats.LastActivity.Before(cutoff) {
			delete(s.templates, id)
			removed++
		}
	}
	return removed
}

func (s *Store) sweepCountries(cutoff time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for country, st := range s.countries {
		if st.LastActivity.Before(cutoff) {
			delete(s.countries, country)
			removed++
		}
	}
	return removed
}

// enforceCap keeps only the newest MaxEvents events.
func (s *Store) enforceCap(time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	excess := len(s.events) - s.cfg.MaxEvents
	if excess <= 0 {
		return 0
	}

	type stamp struct {
		id string
		ts time.Time
	}
	stamps := make([]stamp, 0, len(s.events))
	for id, ev := range s.events {
		stamps = append(stamps, stamp{id: id, ts: ev.Timestamp})
	}
	// Oldest first.
	slices.SortFunc(stamps, func(a, b stamp) int {
		if c := a.ts.Compare(b.ts); c != 0 {
			return c
		}
		return strings.Compare(a.id, b.id)
	})

	for _, st := range stamps[:excess] {
		delete(s.events, st.id)
	}
	return excess
}

// compactRecent drops ring entries whose events are gone.
func (s *Store) compactRecent(time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.recent.retain(func(id string) bool {
		_, ok := s.events[id]
		return ok
	})
}
