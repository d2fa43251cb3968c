// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package realtime

import (
	"cmp"
	"slices"
	"strings"
	"time"

	"github.com/olegiv/pulse/internal/model"
)

// Snapshot builds the dashboard view as of now.
func (s *Store) Snapshot() model.RealtimeStats {
	now := timeNow()
	activeSince := now.Add(-s.cfg.ActiveWindow)
	hourAgo := now.Add(-time.Hour)
	dayAgo := now.Add(-24 * time.Hour)

	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := model.RealtimeStats{
		GeneratedAt:     now,
		TotalActivities: len(s.events),
		UniqueCountries: len(s.countries),
		TotalTemplates:  len(s.templates),
	}

	for _, ev := range s.events {
		if ev.Timestamp.After(hourAgo) {
			stats.ActivitiesLastHour++
		}
		if ev.Timestamp.After(dayAgo) {
			stats.ActivitiesLast24Hours++
		}
	}

	active := make([]model.VisitorSession, 0)
	for _, sess := range s.sessions {
		if sess.FirstSeen.After(dayAgo) {
			stats.SessionsLast24Hours++
		}
		if !sess.LastSeen.After(activeSince) {
			continue
		}
		if sess.IsRegistered {
			stats.ActiveRegisteredUsers++
		} else {
			stats.ActiveUnregisteredUsers++
		}
		active = append(active, sess.Clone())
	}
	sortSessions(active)
	stats.ActiveSessions = len(active)
	stats.ActiveSessionList = active

	stats.RecentActivities = s.recentLocked(snapshotRecentLimit)
	stats.TopTemplates = s.templatesLocked(snapshotTopLimit)
	stats.TopCountries = s.countriesLocked(snapshotTopLimit)

	return stats
}

// RecentActivities returns up to limit of the newest events, newest first.
// limit <= 0 returns the whole recent list.
func (s *Store) RecentActivities(limit int) []model.ActivityEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.recentLocked(limit)
}

// Caller must hold s.mu.
func (s *Store) recentLocked(limit int) []model.ActivityEvent {
	ids := s.recent.newest(0)
	out := make([]model.ActivityEvent, 0, min(len(ids), max(limit, 0)))
	for _, id := range ids {
		if limit > 0 && len(out) >= limit {
			break
		}
		// Evicted ids are skipped until the next sweep compacts the ring.
		if ev, ok := s.events[id]; ok {
			out = append(out, ev.Clone())
		}
	}
	return out
}

// Activity returns a single event by id.
func (s *Store) Activity(id string) (model.ActivityEvent, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ev, ok := s.events[id]
	if !ok {
		return model.ActivityEvent{}, false
	}
	return ev.Clone(), true
}

// ActivitiesByType returns events of one type, newest first.
func (s *Store) ActivitiesByType(t model.ActivityType, limit int) []model.ActivityEvent {
	return s.filterEvents(limit, func(ev model.ActivityEvent) bool {
		return ev.Type == t
	})
}

// ActivitiesBySession returns a session's events, newest first.
func (s *Store) ActivitiesBySession(sessionID string, limit int) []model.ActivityEvent {
	return s.filterEvents(limit, func(ev model.ActivityEvent) bool {
		return ev.SessionID == sessionID
	})
}

// ActivitiesByUser returns a user's events across sessions, newest first.
func (s *Store) ActivitiesByUser(userID string, limit int) []model.ActivityEvent {
	return s.filterEvents(limit, func(ev model.ActivityEvent) bool {
		return ev.UserID == userID
	})
}

func (s *Store) filterEvents(limit int, match func(model.ActivityEvent) bool) []model.ActivityEvent {
	s.mu.RLock()
	out := make([]model.ActivityEvent, 0)
	for _, ev := range s.events {
		if match(ev) {
			out = append(out, ev.Clone())
		}
	}
	s.mu.RUnlock()

	sortEventsNewestFirst(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Session returns one session aggregate.
func (s *Store) Session(sessionID string) (model.VisitorSession, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return model.VisitorSession{}, false
	}
	return sess.Clone(), true
}

// ActiveSessions returns sessions seen within the active window, most
// recently seen first.
func (s *Store) ActiveSessions() []model.VisitorSession {
	activeSince := timeNow().Add(-s.cfg.ActiveWindow)

	s.mu.RLock()
	out := make([]model.VisitorSession, 0)
	for _, sess := range s.sessions {
		if sess.LastSeen.After(activeSince) {
			out = append(out, sess.Clone())
		}
	}
	s.mu.RUnlock()

	sortSessions(out)
	return out
}

// TemplateStats returns every template entry, ranked.
func (s *Store) TemplateStats() []model.TemplateStats {
	return s.TopTemplates(0)
}

// TopTemplates returns the limit highest-ranked templates: most downloads,
// then most views. limit <= 0 returns all.
func (s *Store) TopTemplates(limit int) []model.TemplateStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.templatesLocked(limit)
}

// Caller must hold s.mu.
func (s *Store) templatesLocked(limit int) []model.TemplateStats {
	out := make([]model.TemplateStats, 0, len(s.templates))
	for _, entry := range s.templates {
		st := entry.stats
		if st.TemplateName == "" {
			st.TemplateName = "Template " + st.TemplateID
		}
		st.UniqueVisitors = len(entry.visitors)
		st.ConversionRate = model.ConversionRate(st.Views, st.Downloads)
		out = append(out, st)
	}

	slices.SortFunc(out, func(a, b model.TemplateStats) int {
		if c := cmp.Compare(b.Downloads, a.Downloads); c != 0 {
			return c
		}
		if c := cmp.Compare(b.Views, a.Views); c != 0 {
			return c
		}
		return strings.Compare(a.TemplateID, b.TemplateID)
	})

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// CountryStats returns every country entry, ranked.
func (s *Store) CountryStats() []model.CountryStats {
	return s.TopCountries(0)
}

// TopCountries returns the limit countries with the most visitors.
// limit <= 0 returns all.
func (s *Store) TopCountries(limit int) []model.CountryStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.countriesLocked(limit)
}

// Caller must hold s.mu.
func (s *Store) countriesLocked(limit int) []model.CountryStats {
	out := make([]model.CountryStats, 0, len(s.countries))
	for _, st := range s.countries {
		out = append(out, *st)
	}

	slices.SortFunc(out, func(a, b model.CountryStats) int {
		if c := cmp.Compare(b.Visitors, a.Visitors); c != 0 {
			return c
		}
		return strings.Compare(a.Country, b.Country)
	})

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// sortEventsNewestFirst orders by timestamp, then id, both descending.
// Ids are UUIDv7, so the tie-break follows ingestion order.
func sortEventsNewestFirst(events []model.ActivityEvent) {
	slices.SortFunc(events, func(a, b model.ActivityEvent) int {
		if c := b.Timestamp.Compare(a.Timestamp); c != 0 {
			return c
		}
		return strings.Compare(b.ID, a.ID)
	})
}

func sortSessions(sessions []model.VisitorSession) {
	slices.SortFunc(sessions, func(a, b model.VisitorSession) int {
		if c := b.LastSeen.Compare(a.LastSeen); c != 0 {
			return c
		}
		return strings.Compare(a.SessionID, b.SessionID)
	})
}
