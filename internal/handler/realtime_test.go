// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package handler

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/olegiv/pulse/internal/model"
	"github.com/olegiv/pulse/internal/scheduler"
	"github.com/olegiv/pulse/internal/testutil"
)

func TestDashboard(t *testing.T) {
	f := newAPIFixture(t)
	f.record(t, testutil.Event("a1", "s1", model.ActivityPageView, baseTime))
	f.record(t, download("a2", "s1", "t1", "Germany", baseTime.Add(time.Second)))

	w := f.do(t, http.MethodGet, "/api/realtime/dashboard", nil)
	require.Equal(t, http.StatusOK, w.Code)

	stats, _ := decodeData[model.RealtimeStats](t, w)
	assert.Equal(t, 2, stats.TotalActivities)
	require.Len(t, stats.RecentActivities, 2)
	assert.Equal(t, "a2", stats.RecentActivities[0].ID)
	require.Len(t, stats.TopTemplates, 1)
	assert.Equal(t, "t1", stats.TopTemplates[0].TemplateID)
}

func TestActivities(t *testing.T) {
	f := newAPIFixture(t)
	f.record(t, testutil.Event("a1", "s1", model.ActivityPageView, baseTime))
	f.record(t, testutil.Event("a2", "s1", model.ActivitySearchQuery, baseTime.Add(time.Second)))
	f.record(t, testutil.Event("a3", "s2", model.ActivityPageView, baseTime.Add(2*time.Second)))

	t.Run("recent", func(t *testing.T) {
		w := f.do(t, http.MethodGet, "/api/realtime/activities?limit=2", nil)
		require.Equal(t, http.StatusOK, w.Code)
		events, meta := decodeData[[]model.ActivityEvent](t, w)
		require.Len(t, events, 2)
		assert.Equal(t, "a3", events[0].ID)
		assert.Equal(t, "a2", events[1].ID)
		assert.Equal(t, 2, meta.Count)
		assert.Equal(t, 2, meta.Limit)
	})

	t.Run("by type", func(t *testing.T) {
		w := f.do(t, http.MethodGet, "/api/realtime/activities?type=page_view", nil)
		require.Equal(t, http.StatusOK, w.Code)
		events, _ := decodeData[[]model.ActivityEvent](t, w)
		require.Len(t, events, 2)
		assert.Equal(t, "a3", events[0].ID)
		assert.Equal(t, "a1", events[1].ID)
	})

	t.Run("unknown type", func(t *testing.T) {
		w := f.do(t, http.MethodGet, "/api/realtime/activities?type=nope", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "bad_request", decodeError(t, w).Code)
	})

	t.Run("bad limit", func(t *testing.T) {
		for _, q := range []string{"0", "-3", "ten"} {
			w := f.do(t, http.MethodGet, "/api/realtime/activities?limit="+q, nil)
			assert.Equal(t, http.StatusBadRequest, w.Code, "limit=%s", q)
		}
	})

	t.Run("single", func(t *testing.T) {
		w := f.do(t, http.MethodGet, "/api/realtime/activities/a2", nil)
		require.Equal(t, http.StatusOK, w.Code)
		ev, _ := decodeData[model.ActivityEvent](t, w)
		assert.Equal(t, model.ActivitySearchQuery, ev.Type)

		w = f.do(t, http.MethodGet, "/api/realtime/activities/missing", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestEmptyListsAreArrays(t *testing.T) {
	f := newAPIFixture(t)

	for _, path := range []string{
		"/api/realtime/activities",
		"/api/realtime/templates",
		"/api/realtime/countries",
		"/api/realtime/top-templates",
		"/api/realtime/top-countries",
		"/api/realtime/sessions/none/activities",
		"/api/realtime/users/none/activities",
	} {
		w := f.do(t, http.MethodGet, path, nil)
		require.Equal(t, http.StatusOK, w.Code, path)
		assert.Contains(t, w.Body.String(), `"data":[]`, path)
	}
}

func TestTopTemplatesAndCountries(t *testing.T) {
	f := newAPIFixture(t)
	f.record(t, download("d1", "s1", "t1", "Germany", baseTime))
	f.record(t, download("d2", "s2", "t2", "Germany", baseTime.Add(time.Second)))
	f.record(t, download("d3", "s3", "t2", "Spain", baseTime.Add(2*time.Second)))

	w := f.do(t, http.MethodGet, "/api/realtime/top-templates?limit=1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	templates, _ := decodeData[[]model.TemplateStats](t, w)
	require.Len(t, templates, 1)
	assert.Equal(t, "t2", templates[0].TemplateID)
	assert.Equal(t, 2, templates[0].Downloads)

	w = f.do(t, http.MethodGet, "/api/realtime/top-countries", nil)
	require.Equal(t, http.StatusOK, w.Code)
	countries, _ := decodeData[[]model.CountryStats](t, w)
	require.Len(t, countries, 2)
	assert.Equal(t, "Germany", countries[0].Country)
	assert.Equal(t, 2, countries[0].Visitors)

	w = f.do(t, http.MethodGet, "/api/realtime/templates", nil)
	all, meta := decodeData[[]model.TemplateStats](t, w)
	assert.Len(t, all, 2)
	assert.Equal(t, 2, meta.Count)
}

func TestSessionAndUserActivities(t *testing.T) {
	f := newAPIFixture(t)
	ev := testutil.Event("a1", "s1", model.ActivityUserLogin, baseTime)
	ev.UserID = "u1"
	f.record(t, ev)
	ev2 := testutil.Event("a2", "s2", model.ActivityPageView, baseTime.Add(time.Second))
	ev2.UserID = "u1"
	f.record(t, ev2)

	w := f.do(t, http.MethodGet, "/api/realtime/sessions/s1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	sess, _ := decodeData[model.VisitorSession](t, w)
	assert.Equal(t, "u1", sess.UserID)
	assert.True(t, sess.IsRegistered)

	w = f.do(t, http.MethodGet, "/api/realtime/sessions/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(t, http.MethodGet, "/api/realtime/sessions/s1/activities", nil)
	events, _ := decodeData[[]model.ActivityEvent](t, w)
	require.Len(t, events, 1)
	assert.Equal(t, "a1", events[0].ID)

	w = f.do(t, http.MethodGet, "/api/realtime/users/u1/activities?limit=5", nil)
	events, _ = decodeData[[]model.ActivityEvent](t, w)
	require.Len(t, events, 2)
	assert.Equal(t, "a2", events[0].ID)
}

func TestMemoryUsage(t *testing.T) {
	f := newAPIFixture(t)
	f.record(t, download("d1", "s1", "t1", "Germany", baseTime))

	w := f.do(t, http.MethodGet, "/api/realtime/memory-usage", nil)
	require.Equal(t, http.StatusOK, w.Code)
	usage, _ := decodeData[model.MemoryUsage](t, w)
	assert.Equal(t, 1, usage.Activities)
	assert.Equal(t, 1, usage.Sessions)
	assert.Equal(t, 1, usage.Templates)
	assert.Equal(t, 1, usage.Countries)
	assert.Equal(t, 100, usage.RecentCapacity)
}

func TestClear(t *testing.T) {
	f := newAPIFixture(t)
	f.record(t, download("d1", "s1", "t1", "Germany", baseTime))

	w := f.do(t, http.MethodDelete, "/api/realtime/clear", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, 1, f.store.Usage().Activities)

	w = f.do(t, http.MethodDelete, "/api/realtime/clear", nil, bearer("wrong")...)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = f.do(t, http.MethodDelete, "/api/realtime/clear", nil, bearer(testAdminToken)...)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Zero(t, f.store.Usage().Activities)
	assert.Zero(t, f.store.Usage().Templates)
}

func TestEvict(t *testing.T) {
	f := newAPIFixture(t)

	w := f.do(t, http.MethodPost, "/api/realtime/evict", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Empty(t, f.jobs.calls)

	w = f.do(t, http.MethodPost, "/api/realtime/evict", nil, bearer(testAdminToken)...)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{EvictionJob}, f.jobs.calls)

	tests := []struct {
		err  error
		want int
	}{
		{scheduler.ErrJobRunning, http.StatusConflict},
		{scheduler.ErrTriggerRateLimited, http.StatusTooManyRequests},
		{scheduler.ErrJobNotFound, http.StatusNotFound},
		{assert.AnError, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		f.jobs.err = tt.err
		w := f.do(t, http.MethodPost, "/api/realtime/evict", nil, bearer(testAdminToken)...)
		assert.Equal(t, tt.want, w.Code, "err %v", tt.err)
	}
}
