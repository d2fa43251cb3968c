// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package model

import "time"

// Log entry levels
const (
	LogLevelInfo    = "info"
	LogLevelWarning = "warning"
	LogLevelError   = "error"
)

// Log entry categories
const (
	LogCategoryIngest   = "ingest"
	LogCategoryFanout   = "fanout"
	LogCategoryEviction = "eviction"
	LogCategoryGeoIP    = "geoip"
	LogCategoryCache    = "cache"
	LogCategorySystem   = "system"
)

// LogEntry is a persisted warning or error from the service log.
type LogEntry struct {
	ID        int64
	Level     string
	Category  string
	Message   string
	Metadata  string // JSON object
	CreatedAt time.Time
}
