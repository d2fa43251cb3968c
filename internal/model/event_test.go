// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package model

import (
	"testing"
)

func TestLogLevelConstants(t *testing.T) {
	tests := []struct {
		name     string
		constant string
		expected string
	}{
		{"info level", LogLevelInfo, "info"},
		{"warning level", LogLevelWarning, "warning"},
		{"error level", LogLevelError, "error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.constant != tt.expected {
				t.Errorf("constant = %q, want %q", tt.constant, tt.expected)
			}
		})
	}
}

func TestLogCategoryConstants(t *testing.T) {
	tests := []struct {
		name     string
		constant string
		expected string
	}{
		{"ingest category", LogCategoryIngest, "ingest"},
		{"fanout category", LogCategoryFanout, "fanout"},
		{"eviction category", LogCategoryEviction, "eviction"},
		{"geoip category", LogCategoryGeoIP, "geoip"},
		{"cache category", LogCategoryCache, "cache"},
		{"system category", LogCategorySystem, "system"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.constant != tt.expected {
				t.Errorf("constant = %q, want %q", tt.constant, tt.expected)
			}
		})
	}
}
