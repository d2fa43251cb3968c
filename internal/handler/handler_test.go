// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/olegiv/pulse/internal/ingest"
	"github.com/olegiv/pulse/internal/middleware"
	"github.com/olegiv/pulse/internal/model"
	"github.com/olegiv/pulse/internal/realtime"
	"github.com/olegiv/pulse/internal/testutil"
	"github.com/olegiv/pulse/internal/visitor"
)

const testAdminToken = "0123456789abcdef"

type fakeJobs struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (f *fakeJobs) RunNow(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name)
	return f.err
}

type capturePublisher struct {
	mu     sync.Mutex
	events []model.ActivityEvent
}

func (p *capturePublisher) Enqueue(ev model.ActivityEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
}

type fixedIdentity struct {
	id    visitor.Identity
	calls int
}

func (f *fixedIdentity) Identify(http.ResponseWriter, *http.Request) visitor.Identity {
	f.calls++
	return f.id
}

type apiFixture struct {
	store     *realtime.Store
	jobs      *fakeJobs
	publisher *capturePublisher
	identity  *fixedIdentity
	router    chi.Router
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	return newAPIFixtureWith(t, true)
}

// newAPIFixtureWith builds the API router; withIdentity controls whether
// the track endpoint can fall back to a resolved visitor.
func newAPIFixtureWith(t *testing.T, withIdentity bool) *apiFixture {
	t.Helper()
	logger := testutil.TestLoggerSilent()

	f := &apiFixture{
		store:     realtime.New(realtime.DefaultConfig(), logger),
		jobs:      &fakeJobs{},
		publisher: &capturePublisher{},
		identity: &fixedIdentity{id: visitor.Identity{
			SessionID:  "cookie-session",
			Country:    "France",
			DeviceType: "desktop",
			Browser:    "Firefox",
			OS:         "Linux",
		}},
	}

	svc := ingest.NewService(f.store, f.publisher, logger)
	rt := NewRealtimeHandler(f.store, f.jobs, logger)
	var identity Identifier
	if withIdentity {
		identity = f.identity
	}
	track := NewTrackHandler(svc, identity, logger)

	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		r.Post("/track", track.Track)
		r.Route("/realtime", func(r chi.Router) {
			rt.Routes(r, middleware.AdminToken(testAdminToken, logger))
		})
	})
	f.router = r
	return f
}

func (f *apiFixture) do(t *testing.T, method, target string, body any, header ...string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(t, json.NewEncoder(&buf).Encode(b))
		}
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}

	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func (f *apiFixture) record(t *testing.T, ev model.ActivityEvent) {
	t.Helper()
	require.True(t, f.store.Record(ev))
}

func decodeData[T any](t *testing.T, w *httptest.ResponseRecorder) (T, *Meta) {
	t.Helper()
	var resp struct {
		Data T     `json:"data"`
		Meta *Meta `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp.Data, resp.Meta
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorDetail {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp.Error
}

func bearer(token string) []string {
	return []string{"Authorization", "Bearer " + token}
}

var baseTime = time.Now().UTC().Add(-10 * time.Minute).Truncate(time.Second)

func download(id, session, templateID, country string, ts time.Time) model.ActivityEvent {
	ev := testutil.Event(id, session, model.ActivityTemplateDownload, ts)
	ev.TemplateID = templateID
	ev.TemplateType = model.TemplateSnap
	ev.Country = country
	return ev
}
