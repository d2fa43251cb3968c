// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package realtime keeps the in-memory, time-bounded view of recent activity:
// raw events, per-session aggregates, per-template and per-country stats and
// a fixed-size list of the newest events.
//
// A single Store is created at startup and shared by the ingestion path, the
// query handlers and the eviction job. All mutation for one event happens
// under one write lock, so readers never see a partially applied event.
package realtime

import (
	"log/slog"
	"sync"
	"time"

	"github.com/olegiv/pulse/internal/model"
)

// Defaults
const (
	DefaultRecentCapacity = 100
	DefaultMaxEvents      = 10000
	DefaultRetention      = 24 * time.Hour
	DefaultActiveWindow   = 30 * time.Minute
)

// Dashboard defaults
const (
	snapshotRecentLimit = 20
	snapshotTopLimit    = 10
)

// timeNow is used for testing to mock the current time.
var timeNow = time.Now

// Config controls the store's bounds.
type Config struct {
	RecentCapacity int           // size of the recent-activity ring
	MaxEvents      int           // hard cap on retained events, applied on each sweep
	Retention      time.Duration // events older than this are evicted
	ActiveWindow   time.Duration // a session is active if seen within this window
}

// DefaultConfig returns the production bounds.
func DefaultConfig() Config {
	return Config{
		RecentCapacity: DefaultRecentCapacity,
		MaxEvents:      DefaultMaxEvents,
		Retention:      DefaultRetention,
		ActiveWindow:   DefaultActiveWindow,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.RecentCapacity <= 0 {
		c.RecentCapacity = d.RecentCapacity
	}
	if c.MaxEvents <= 0 {
		c.MaxEvents = d.MaxEvents
	}
	if c.Retention <= 0 {
		c.Retention = d.Retention
	}
	if c.ActiveWindow <= 0 {
		c.ActiveWindow = d.ActiveWindow
	}
	return c
}

// templateEntry is the mutable aggregate behind model.TemplateStats.
type templateEntry struct {
	stats    model.TemplateStats
	visitors map[string]struct{}
}

// Store is the in-memory activity aggregate.
type Store struct {
	cfg    Config
	logger *slog.Logger

	mu        sync.RWMutex
	events    map[string]model.ActivityEvent
	sessions  map[string]*model.VisitorSession
	templates map[string]*templateEntry
	countries map[string]*model.CountryStats
	recent    *ring
}

// New creates an empty store.
func New(cfg Config, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()

	return &Store{
		cfg:       cfg,
		logger:    logger,
		events:    make(map[string]model.ActivityEvent),
		sessions:  make(map[string]*model.VisitorSession),
		templates: make(map[string]*templateEntry),
		countries: make(map[string]*model.CountryStats),
		recent:    newRing(cfg.RecentCapacity),
	}
}

// Config returns the effective bounds.
func (s *Store) Config() Config {
	return s.cfg
}

// Record applies one event to every index. It reports false if an event with
// the same id was already recorded, in which case nothing changes.
func (s *Store) Record(ev model.ActivityEvent) bool {
	ev = ev.Clone()

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, dup := s.events[ev.ID]; dup {
		return false
	}

	s.events[ev.ID] = ev
	s.recent.push(ev.ID)

	inaugural := s.applySession(ev)
	s.applyTemplate(ev)
	s.applyCountry(ev, inaugural)

	return true
}

// applySession updates the session aggregate. It reports whether ev is the
// session's inaugural event, i.e. the one that now defines FirstSeen.
// Caller must hold s.mu write lock.
func (s *Store) applySession(ev model.ActivityEvent) bool {
	sess, ok := s.sessions[ev.SessionID]
	inaugural := false

	if !ok {
		sess = &model.VisitorSession{
			SessionID: ev.SessionID,
			FirstSeen: ev.Timestamp,
			LastSeen:  ev.Timestamp,
		}
		s.sessions[ev.SessionID] = sess
		inaugural = true
	} else {
		// Out-of-order arrival can move FirstSeen back; that event then
		// counts as inaugural again.
		if ev.Timestamp.Before(sess.FirstSeen) {
			sess.FirstSeen = ev.Timestamp
			inaugural = true
		}
		if ev.Timestamp.After(sess.LastSeen) {
			sess.LastSeen = ev.Timestamp
		}
	}

	sess.ActivityIDs = append(sess.ActivityIDs, ev.ID)

	if ev.UserID != "" {
		sess.UserID = ev.UserID
		sess.IsRegistered = true
	}
	if ev.UserTier != "" {
		sess.UserTier = ev.UserTier
	}
	if ev.Country != "" {
		sess.Country = ev.Country
	}
	if ev.DeviceType != "" {
		sess.DeviceType = ev.DeviceType
	}
	if ev.Browser != "" {
		sess.Browser = ev.Browser
	}
	if ev.OS != "" {
		sess.OS = ev.OS
	}
	if ev.Type == model.ActivityPageView {
		sess.PageViews++
	}

	return inaugural
}

// Caller must hold s.mu write lock.
func (s *Store) applyTemplate(ev model.ActivityEvent) {
	if !ev.HasTemplate() {
		return
	}

	entry, ok := s.templates[ev.TemplateID]
	if !ok {
		entry = &templateEntry{
			stats: model.TemplateStats{
				TemplateID:   ev.TemplateID,
				TemplateName: ev.TemplateName,
				TemplateType: ev.TemplateType,
				LastActivity: ev.Timestamp,
			},
			visitors: make(map[string]struct{}),
		}
		s.templates[ev.TemplateID] = entry
	}

	// The first name seen sticks.
	if entry.stats.TemplateName == "" {
		entry.stats.TemplateName = ev.TemplateName
	}

	switch ev.Type {
	case model.ActivityTemplateView:
		entry.stats.Views++
	case model.ActivityTemplateDownload:
		entry.stats.Downloads++
	}

	entry.visitors[ev.SessionID] = struct{}{}
	if ev.Timestamp.After(entry.stats.LastActivity) {
		entry.stats.LastActivity = ev.Timestamp
	}
}

// Caller must hold s.mu write lock.
func (s *Store) applyCountry(ev model.ActivityEvent, inaugural bool) {
	if ev.Country == "" {
		return
	}

	stats, ok := s.countries[ev.Country]
	if !ok {
		stats = &model.CountryStats{
			Country:      ev.Country,
			LastActivity: ev.Timestamp,
		}
		s.countries[ev.Country] = stats
	}

	if inaugural {
		stats.Visitors++
		if ev.UserID != "" {
			stats.RegisteredUsers++
		}
	}

	if ev.Type == model.ActivityTemplateDownload {
		switch ev.TemplateType {
		case model.TemplateSnap:
			stats.SnapDownloads++
			stats.TotalDownloads++
		case model.TemplatePro:
			stats.ProDownloads++
			stats.TotalDownloads++
		}
	}

	if ev.Timestamp.After(stats.LastActivity) {
		stats.LastActivity = ev.Timestamp
	}
}

// Clear drops everything held in memory.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	clear(s.events)
	clear(s.sessions)
	clear(s.templates)
	clear(s.countries)
	s.recent.reset()

	s.logger.Info("realtime store cleared")
}

// Usage reports how many entries each index holds.
func (s *Store) Usage() model.MemoryUsage {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return model.MemoryUsage{
		Activities:       len(s.events),
		Sessions:         len(s.sessions),
		Templates:        len(s.templates),
		Countries:        len(s.countries),
		RecentActivities: s.recent.len(),
		MaxActivities:    s.cfg.MaxEvents,
		RecentCapacity:   s.recent.capacity(),
	}
}
