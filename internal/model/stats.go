// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package model

import "time"

// TemplateStats summarizes interest in one template.
type TemplateStats struct {
	TemplateID     string       `json:"template_id"`
	TemplateName   string       `json:"template_name"`
	TemplateType   TemplateType `json:"template_type"`
	Views          int          `json:"views"`
	Downloads      int          `json:"downloads"`
	UniqueVisitors int          `json:"unique_visitors"`
	ConversionRate float64      `json:"conversion_rate"`
	LastActivity   time.Time    `json:"last_activity"`
}

// CountryStats summarizes activity attributed to one country.
type CountryStats struct {
	Country         string    `json:"country"`
	Visitors        int       `json:"visitors"`
	RegisteredUsers int       `json:"registered_users"`
	TotalDownloads  int       `json:"total_downloads"`
	SnapDownloads   int       `json:"snap_downloads"`
	ProDownloads    int       `json:"pro_downloads"`
	LastActivity    time.Time `json:"last_activity"`
}

// ConversionRate returns downloads as a percentage of views, 0 when there are
// no views.
func ConversionRate(views, downloads int) float64 {
	if views <= 0 {
		return 0
	}
	return float64(downloads) / float64(views) * 100
}

// RealtimeStats is a point-in-time dashboard snapshot.
type RealtimeStats struct {
	GeneratedAt             time.Time        `json:"generated_at"`
	ActiveSessions          int              `json:"active_sessions"`
	ActiveRegisteredUsers   int              `json:"active_registered_users"`
	ActiveUnregisteredUsers int              `json:"active_unregistered_users"`
	TotalActivities         int              `json:"total_activities"`
	ActivitiesLastHour      int              `json:"activities_last_hour"`
	ActivitiesLast24Hours   int              `json:"activities_last_24_hours"`
	SessionsLast24Hours     int              `json:"sessions_last_24_hours"`
	UniqueCountries         int              `json:"unique_countries"`
	TotalTemplates          int              `json:"total_templates"`
	RecentActivities        []ActivityEvent  `json:"recent_activities"`
	TopTemplates            []TemplateStats  `json:"top_templates"`
	TopCountries            []CountryStats   `json:"top_countries"`
	ActiveSessionList       []VisitorSession `json:"active_session_list"`
}

// MemoryUsage reports the number of entries held in memory.
type MemoryUsage struct {
	Activities       int `json:"activities"`
	Sessions         int `json:"sessions"`
	Templates        int `json:"templates"`
	Countries        int `json:"countries"`
	RecentActivities int `json:"recent_activities"`
	MaxActivities    int `json:"max_activities"`
	RecentCapacity   int `json:"recent_capacity"`
}
