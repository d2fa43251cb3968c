// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package handler

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/olegiv/pulse/internal/ingest"
	"github.com/olegiv/pulse/internal/model"
	"github.com/olegiv/pulse/internal/scheduler"
	"github.com/olegiv/pulse/internal/version"
)

// Status values.
const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
	StatusDegraded  = "degraded"
)

// dbPingTimeout bounds the database check.
const dbPingTimeout = 2 * time.Second

// JobLister lists scheduled jobs.
type JobLister interface {
	Jobs() []scheduler.JobInfo
}

// FanoutStats reports per-sink delivery counters.
type FanoutStats interface {
	Stats() []ingest.LaneStats
}

// UsageReporter reports in-memory index sizes.
type UsageReporter interface {
	Usage() model.MemoryUsage
}

// HealthHandler handles health check requests.
type HealthHandler struct {
	db        *sql.DB
	version   version.Info
	jobs      JobLister
	fanout    FanoutStats
	usage     UsageReporter
	startTime time.Time
}

// NewHealthHandler creates a new health handler. jobs, fanout and usage may
// be nil.
func NewHealthHandler(db *sql.DB, info version.Info, jobs JobLister, fanout FanoutStats, usage UsageReporter) *HealthHandler {
	return &HealthHandler{
		db:        db,
		version:   info,
		jobs:      jobs,
		fanout:    fanout,
		usage:     usage,
		startTime: time.Now(),
	}
}

// HealthStatus represents the overall health status.
type HealthStatus struct {
	Status    string              `json:"status"`
	Timestamp time.Time           `json:"timestamp"`
	Uptime    string              `json:"uptime"`
	Version   string              `json:"version"`
	Checks    map[string]Check    `json:"checks"`
	Jobs      []scheduler.JobInfo `json:"jobs,omitempty"`
	Fanout    []ingest.LaneStats  `json:"fanout,omitempty"`
	Memory    *model.MemoryUsage  `json:"memory,omitempty"`
}

// Check represents a single health check result.
type Check struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Latency string `json:"latency,omitempty"`
}

// Health handles GET /health.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	dbCheck := h.checkDatabase(r.Context())

	status := HealthStatus{
		Status:    StatusHealthy,
		Timestamp: time.Now().UTC(),
		Uptime:    time.Since(h.startTime).Round(time.Second).String(),
		Version:   h.version.String(),
		Checks:    map[string]Check{"database": dbCheck},
	}
	if dbCheck.Status != StatusHealthy {
		status.Status = StatusDegraded
	}

	if h.jobs != nil {
		status.Jobs = h.jobs.Jobs()
	}
	if h.fanout != nil {
		status.Fanout = h.fanout.Stats()
	}
	if h.usage != nil {
		u := h.usage.Usage()
		status.Memory = &u
	}

	code := http.StatusOK
	if status.Status != StatusHealthy {
		code = http.StatusServiceUnavailable
	}
	WriteJSON(w, code, status)
}

// Liveness handles GET /health/live.
func (h *HealthHandler) Liveness(w http.ResponseWriter, _ *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

// Readiness handles GET /health/ready.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	if check := h.checkDatabase(r.Context()); check.Status != StatusHealthy {
		WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not_ready"})
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (h *HealthHandler) checkDatabase(ctx context.Context) Check {
	ctx, cancel := context.WithTimeout(ctx, dbPingTimeout)
	defer cancel()

	start := time.Now()
	err := h.db.PingContext(ctx)
	latency := time.Since(start)

	if err != nil {
		return Check{
			Status:  StatusUnhealthy,
			Message: err.Error(),
			Latency: latency.String(),
		}
	}
	return Check{
		Status:  StatusHealthy,
		Message: "Connected",
		Latency: latency.String(),
	}
}
