// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/olegiv/pulse/internal/model"
	"github.com/olegiv/pulse/internal/realtime"
	"github.com/olegiv/pulse/internal/scheduler"
)

// EvictionJob is the scheduler job that sweeps the realtime store.
const EvictionJob = "realtime_eviction"

// Query limits.
const (
	defaultListLimit = 50
	maxListLimit     = 1000
	defaultTopLimit  = 10
	maxTopLimit      = 100
)

// JobRunner triggers a scheduled job out of band.
type JobRunner interface {
	RunNow(ctx context.Context, name string) error
}

// RealtimeHandler serves the realtime query and admin endpoints.
type RealtimeHandler struct {
	store  *realtime.Store
	jobs   JobRunner
	logger *slog.Logger
}

// NewRealtimeHandler creates a realtime handler.
func NewRealtimeHandler(store *realtime.Store, jobs JobRunner, logger *slog.Logger) *RealtimeHandler {
	return &RealtimeHandler{store: store, jobs: jobs, logger: logger}
}

// Routes registers the read endpoints on r and the destructive ones behind
// admin.
func (h *RealtimeHandler) Routes(r chi.Router, admin func(http.Handler) http.Handler) {
	r.Get("/dashboard", h.Dashboard)
	r.Get("/activities", h.Activities)
	r.Get("/activities/{id}", h.Activity)
	r.Get("/templates", h.Templates)
	r.Get("/countries", h.Countries)
	r.Get("/top-templates", h.TopTemplates)
	r.Get("/top-countries", h.TopCountries)
	r.Get("/sessions/{id}", h.Session)
	r.Get("/sessions/{id}/activities", h.SessionActivities)
	r.Get("/users/{id}/activities", h.UserActivities)
	r.Get("/memory-usage", h.MemoryUsage)

	r.Group(func(r chi.Router) {
		r.Use(admin)
		r.Delete("/clear", h.Clear)
		r.Post("/evict", h.Evict)
	})
}

// Dashboard handles GET /api/realtime/dashboard.
func (h *RealtimeHandler) Dashboard(w http.ResponseWriter, _ *http.Request) {
	WriteSuccess(w, h.store.Snapshot(), nil)
}

// Activities handles GET /api/realtime/activities?limit=&type=. Without a
// type it returns the recent list.
func (h *RealtimeHandler) Activities(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r, defaultListLimit, maxListLimit)
	if !ok {
		return
	}

	raw := r.URL.Query().Get("type")
	if raw == "" {
		listResponse(w, h.store.RecentActivities(limit), limit)
		return
	}

	t, err := model.ParseActivityType(raw)
	if err != nil {
		WriteBadRequest(w, "Unknown activity type", map[string]string{"type": raw})
		return
	}
	listResponse(w, h.store.ActivitiesByType(t, limit), limit)
}

// Activity handles GET /api/realtime/activities/{id}.
func (h *RealtimeHandler) Activity(w http.ResponseWriter, r *http.Request) {
	ev, ok := h.store.Activity(chi.URLParam(r, "id"))
	if !ok {
		WriteNotFound(w, "Activity not found")
		return
	}
	WriteSuccess(w, ev, nil)
}

// Templates handles GET /api/realtime/templates.
func (h *RealtimeHandler) Templates(w http.ResponseWriter, _ *http.Request) {
	listResponse(w, h.store.TemplateStats(), 0)
}

// Countries handles GET /api/realtime/countries.
func (h *RealtimeHandler) Countries(w http.ResponseWriter, _ *http.Request) {
	listResponse(w, h.store.CountryStats(), 0)
}

// TopTemplates handles GET /api/realtime/top-templates?limit=.
func (h *RealtimeHandler) TopTemplates(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r, defaultTopLimit, maxTopLimit)
	if !ok {
		return
	}
	listResponse(w, h.store.TopTemplates(limit), limit)
}

// TopCountries handles GET /api/realtime/top-countries?limit=.
func (h *RealtimeHandler) TopCountries(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r, defaultTopLimit, maxTopLimit)
	if !ok {
		return
	}
	listResponse(w, h.store.TopCountries(limit), limit)
}

// Session handles GET /api/realtime/sessions/{id}.
func (h *RealtimeHandler) Session(w http.ResponseWriter, r *http.Request) {
	s, ok := h.store.Session(chi.URLParam(r, "id"))
	if !ok {
		WriteNotFound(w, "Session not found")
		return
	}
	WriteSuccess(w, s, nil)
}

// SessionActivities handles GET /api/realtime/sessions/{id}/activities.
func (h *RealtimeHandler) SessionActivities(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r, defaultListLimit, maxListLimit)
	if !ok {
		return
	}
	listResponse(w, h.store.ActivitiesBySession(chi.URLParam(r, "id"), limit), limit)
}

// UserActivities handles GET /api/realtime/users/{id}/activities.
func (h *RealtimeHandler) UserActivities(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r, defaultListLimit, maxListLimit)
	if !ok {
		return
	}
	listResponse(w, h.store.ActivitiesByUser(chi.URLParam(r, "id"), limit), limit)
}

// MemoryUsage handles GET /api/realtime/memory-usage.
func (h *RealtimeHandler) MemoryUsage(w http.ResponseWriter, _ *http.Request) {
	WriteSuccess(w, h.store.Usage(), nil)
}

// Clear handles DELETE /api/realtime/clear.
func (h *RealtimeHandler) Clear(w http.ResponseWriter, _ *http.Request) {
	before := h.store.Usage()
	h.store.Clear()
	h.logger.Warn("realtime store cleared", "category", model.LogCategoryEviction,
		"activities", before.Activities, "sessions", before.Sessions)
	WriteSuccess(w, map[string]any{"cleared": true, "before": before}, nil)
}

// Evict handles POST /api/realtime/evict by running the eviction job now.
func (h *RealtimeHandler) Evict(w http.ResponseWriter, r *http.Request) {
	if h.jobs == nil {
		WriteError(w, http.StatusServiceUnavailable, "unavailable", "Scheduler is not running", nil)
		return
	}

	err := h.jobs.RunNow(r.Context(), EvictionJob)
	switch {
	case err == nil:
		WriteSuccess(w, map[string]any{"job": EvictionJob, "usage": h.store.Usage()}, nil)
	case errors.Is(err, scheduler.ErrJobRunning):
		WriteError(w, http.StatusConflict, "conflict", "Eviction is already running", nil)
	case errors.Is(err, scheduler.ErrTriggerRateLimited):
		WriteError(w, http.StatusTooManyRequests, "rate_limit_exceeded", "Eviction was triggered too recently", nil)
	case errors.Is(err, scheduler.ErrJobNotFound):
		WriteNotFound(w, "Eviction job is not registered")
	default:
		h.logger.Error("manual eviction failed", "error", err)
		WriteInternalError(w, "Eviction failed")
	}
}
