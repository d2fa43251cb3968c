// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package model

import (
	"slices"
	"time"
)

// VisitorSession is a read-only view of one visitor's session aggregate.
type VisitorSession struct {
	SessionID    string    `json:"session_id"`
	UserID       string    `json:"user_id,omitempty"`
	UserTier     string    `json:"user_tier,omitempty"`
	FirstSeen    time.Time `json:"first_seen"`
	LastSeen     time.Time `json:"last_seen"`
	PageViews    int       `json:"page_views"`
	ActivityIDs  []string  `json:"activity_ids"`
	Country      string    `json:"country,omitempty"`
	DeviceType   string    `json:"device_type,omitempty"`
	Browser      string    `json:"browser,omitempty"`
	OS           string    `json:"os,omitempty"`
	IsRegistered bool      `json:"is_registered"`
}

// Clone returns a copy that shares no mutable state with s.
func (s VisitorSession) Clone() VisitorSession {
	s.ActivityIDs = slices.Clone(s.ActivityIDs)
	return s
}

// SessionContext is the subset of a durable visitor record used to enrich
// outbound events.
type SessionContext struct {
	UserID     string `json:"user_id,omitempty"`
	UserTier   string `json:"user_tier,omitempty"`
	Country    string `json:"country,omitempty"`
	DeviceType string `json:"device_type,omitempty"`
}

// Apply fills the empty enrichment fields of ev from c.
func (c SessionContext) Apply(ev ActivityEvent) ActivityEvent {
	if ev.UserTier == "" {
		ev.UserTier = c.UserTier
	}
	if ev.Country == "" {
		ev.Country = c.Country
	}
	if ev.DeviceType == "" {
		ev.DeviceType = c.DeviceType
	}
	return ev
}

// NeedsEnrichment reports whether any enrichable field of ev is empty.
func NeedsEnrichment(ev ActivityEvent) bool {
	return ev.UserTier == "" || ev.Country == "" || ev.DeviceType == ""
}
