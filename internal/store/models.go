// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package store

import (
	"time"
)

// ActivityEvent is a row of activity_events.
type ActivityEvent struct {
	ID             string    `json:"id"`
	SessionID      string    `json:"session_id"`
	UserID         string    `json:"user_id"`
	ActivityType   string    `json:"activity_type"`
	ActivityName   string    `json:"activity_name"`
	PageUrl        string    `json:"page_url"`
	PageTitle      string    `json:"page_title"`
	Referrer       string    `json:"referrer"`
	TemplateID     string    `json:"template_id"`
	TemplateName   string    `json:"template_name"`
	TemplateType   string    `json:"template_type"`
	DownloadFormat string    `json:"download_format"`
	SearchQuery    string    `json:"search_query"`
	SearchResults  int64     `json:"search_results"`
	ErrorMessage   string    `json:"error_message"`
	ErrorCode      string    `json:"error_code"`
	FeatureName    string    `json:"feature_name"`
	Metadata       string    `json:"metadata"`
	UserTier       string    `json:"user_tier"`
	Country        string    `json:"country"`
	DeviceType     string    `json:"device_type"`
	Browser        string    `json:"browser"`
	Os             string    `json:"os"`
	CreatedAt      time.Time `json:"created_at"`
}

// VisitorSession is a row of visitor_sessions.
type VisitorSession struct {
	SessionID    string    `json:"session_id"`
	UserID       string    `json:"user_id"`
	UserTier     string    `json:"user_tier"`
	Country      string    `json:"country"`
	DeviceType   string    `json:"device_type"`
	Browser      string    `json:"browser"`
	Os           string    `json:"os"`
	Language     string    `json:"language"`
	LandingPage  string    `json:"landing_page"`
	Referrer     string    `json:"referrer"`
	IsRegistered bool      `json:"is_registered"`
	PageViews    int64     `json:"page_views"`
	FirstSeen    time.Time `json:"first_seen"`
	LastSeen     time.Time `json:"last_seen"`
}

// TemplateRollup is a row of template_rollups.
type TemplateRollup struct {
	TemplateID   string    `json:"template_id"`
	TemplateType string    `json:"template_type"`
	TemplateName string    `json:"template_name"`
	Views        int64     `json:"views"`
	Downloads    int64     `json:"downloads"`
	LastActivity time.Time `json:"last_activity"`
}

// CountryRollup is a row of country_rollups.
type CountryRollup struct {
	Country         string    `json:"country"`
	Visitors        int64     `json:"visitors"`
	RegisteredUsers int64     `json:"registered_users"`
	TotalDownloads  int64     `json:"total_downloads"`
	SnapDownloads   int64     `json:"snap_downloads"`
	ProDownloads    int64     `json:"pro_downloads"`
	LastActivity    time.Time `json:"last_activity"`
}

// EventLog is a row of event_log.
type EventLog struct {
	ID        int64     `json:"id"`
	Level     string    `json:"level"`
	Category  string    `json:"category"`
	Message   string    `json:"message"`
	Metadata  string    `json:"metadata"`
	CreatedAt time.Time `json:"created_at"`
}
