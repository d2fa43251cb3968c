// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package realtime

import (
	"fmt"
	"io"
	"log/slog"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/olegiv/pulse/internal/model"
)

var baseTime = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// setClock pins timeNow for the duration of the test.
func setClock(t *testing.T, now time.Time) {
	t.Helper()
	orig := timeNow
	timeNow = func() time.Time { return now }
	t.Cleanup(func() { timeNow = orig })
}

func newTestStore(t *testing.T, cfg Config) *Store {
	t.Helper()
	return New(cfg, testLogger())
}

type eventOpt func(*model.ActivityEvent)

func withUser(id string) eventOpt {
	return func(e *model.ActivityEvent) { e.UserID = id }
}

func withCountry(c string) eventOpt {
	return func(e *model.ActivityEvent) { e.Country = c }
}

func withTemplate(id, name string, tt model.TemplateType) eventOpt {
	return func(e *model.ActivityEvent) {
		e.TemplateID = id
		e.TemplateName = name
		e.TemplateType = tt
	}
}

func event(id, session string, typ model.ActivityType, ts time.Time, opts ...eventOpt) model.ActivityEvent {
	ev := model.ActivityEvent{
		ID:        id,
		SessionID: session,
		Type:      typ,
		Name:      string(typ),
		Timestamp: ts,
	}
	for _, opt := range opts {
		opt(&ev)
	}
	return ev
}

func TestRecord_AnonymousVisitorJourney(t *testing.T) {
	setClock(t, baseTime.Add(time.Minute))
	s := newTestStore(t, DefaultConfig())

	s.Record(event("e1", "S", model.ActivityPageView, baseTime, withCountry("US")))
	s.Record(event("e2", "S", model.ActivityTemplateView, baseTime.Add(5*time.Second),
		withCountry("US"), withTemplate("T1", "Resume", model.TemplateSnap)))
	s.Record(event("e3", "S", model.ActivityPageView, baseTime.Add(10*time.Second), withCountry("US")))

	sess, ok := s.Session("S")
	if !ok {
		t.Fatal("session S not found")
	}
	if sess.PageViews != 2 {
		t.Errorf("PageViews = %d, want 2", sess.PageViews)
	}
	if len(sess.ActivityIDs) != 3 {
		t.Errorf("len(ActivityIDs) = %d, want 3", len(sess.ActivityIDs))
	}
	if sess.IsRegistered {
		t.Error("IsRegistered = true for anonymous visitor")
	}
	if !sess.FirstSeen.Equal(baseTime) || !sess.LastSeen.Equal(baseTime.Add(10*time.Second)) {
		t.Errorf("FirstSeen/LastSeen = %v/%v", sess.FirstSeen, sess.LastSeen)
	}

	countries := s.CountryStats()
	if len(countries) != 1 || countries[0].Country != "US" || countries[0].Visitors != 1 {
		t.Fatalf("countries = %+v, want US with 1 visitor", countries)
	}

	templates := s.TemplateStats()
	if len(templates) != 1 {
		t.Fatalf("len(templates) = %d, want 1", len(templates))
	}
	tpl := templates[0]
	if tpl.Views != 1 || tpl.Downloads != 0 || tpl.ConversionRate != 0 || tpl.UniqueVisitors != 1 {
		t.Errorf("template = %+v", tpl)
	}

	recent := s.RecentActivities(0)
	if len(recent) != 3 || recent[0].ID != "e3" || recent[2].ID != "e1" {
		t.Errorf("recent order = %v, want newest first", ids(recent))
	}
}

func TestRecord_UpgradeToRegistered(t *testing.T) {
	setClock(t, baseTime.Add(time.Minute))
	s := newTestStore(t, DefaultConfig())

	s.Record(event("e1", "S", model.ActivityPageView, baseTime, withCountry("DE")))
	s.Record(event("e2", "S", model.ActivityUserLogin, baseTime.Add(time.Second), withCountry("DE"), withUser("u1")))
	s.Record(event("e3", "S", model.ActivityPageView, baseTime.Add(2*time.Second), withCountry("DE")))

	sess, _ := s.Session("S")
	if !sess.IsRegistered || sess.UserID != "u1" {
		t.Errorf("IsRegistered/UserID = %v/%q, want true/u1", sess.IsRegistered, sess.UserID)
	}

	c := s.CountryStats()[0]
	if c.Visitors != 1 {
		t.Errorf("Visitors = %d, want 1", c.Visitors)
	}
	// Registration is only counted on the inaugural event.
	if c.RegisteredUsers != 0 {
		t.Errorf("RegisteredUsers = %d, want 0", c.RegisteredUsers)
	}
}

func TestRecord_RegisteredOnInauguralEvent(t *testing.T) {
	setClock(t, baseTime)
	s := newTestStore(t, DefaultConfig())

	s.Record(event("e1", "S", model.ActivityPageView, baseTime, withCountry("FR"), withUser("u1")))

	c := s.CountryStats()[0]
	if c.Visitors != 1 || c.RegisteredUsers != 1 {
		t.Errorf("Visitors/RegisteredUsers = %d/%d, want 1/1", c.Visitors, c.RegisteredUsers)
	}
}

func TestRecord_DownloadsAndConversion(t *testing.T) {
	setClock(t, baseTime.Add(time.Minute))
	s := newTestStore(t, DefaultConfig())

	tpl := withTemplate("T1", "Invoice", model.TemplateSnap)
	s.Record(event("e1", "A", model.ActivityTemplateView, baseTime, tpl, withCountry("US")))
	s.Record(event("e2", "B", model.ActivityTemplateView, baseTime.Add(time.Second), tpl, withCountry("US")))
	s.Record(event("e3", "C", model.ActivityTemplateView, baseTime.Add(2*time.Second), tpl, withCountry("US")))
	s.Record(event("e4", "A", model.ActivityTemplateDownload, baseTime.Add(3*time.Second), tpl, withCountry("US")))

	st := s.TemplateStats()[0]
	if st.Views != 3 || st.Downloads != 1 {
		t.Fatalf("Views/Downloads = %d/%d, want 3/1", st.Views, st.Downloads)
	}
	if math.Abs(st.ConversionRate-33.33) > 0.01 {
		t.Errorf("ConversionRate = %v, want ~33.33", st.ConversionRate)
	}
	if st.UniqueVisitors != 3 {
		t.Errorf("UniqueVisitors = %d, want 3", st.UniqueVisitors)
	}

	c := s.CountryStats()[0]
	if c.Visitors != 3 {
		t.Errorf("Visitors = %d, want 3", c.Visitors)
	}
	if c.TotalDownloads != 1 || c.SnapDownloads != 1 || c.ProDownloads != 0 {
		t.Errorf("downloads total/snap/pro = %d/%d/%d, want 1/1/0", c.TotalDownloads, c.SnapDownloads, c.ProDownloads)
	}
}

func TestRecord_UnrecognizedTemplateTypeNotInSplit(t *testing.T) {
	setClock(t, baseTime)
	s := newTestStore(t, DefaultConfig())

	s.Record(event("e1", "S", model.ActivityTemplateDownload, baseTime,
		withCountry("US"), withTemplate("T9", "", model.TemplateType("enterprise"))))

	c := s.CountryStats()[0]
	if c.TotalDownloads != 0 || c.SnapDownloads != 0 || c.ProDownloads != 0 {
		t.Errorf("downloads = %+v, want none counted", c)
	}
	// The template itself is still tracked.
	st := s.TemplateStats()[0]
	if st.Downloads != 1 {
		t.Errorf("template Downloads = %d, want 1", st.Downloads)
	}
	if st.TemplateName != "Template T9" {
		t.Errorf("TemplateName = %q, want fallback %q", st.TemplateName, "Template T9")
	}
}

func TestRecord_TemplateNameFirstSeenWins(t *testing.T) {
	setClock(t, baseTime)
	s := newTestStore(t, DefaultConfig())

	s.Record(event("e1", "S", model.ActivityTemplateView, baseTime, withTemplate("T1", "", model.TemplatePro)))
	s.Record(event("e2", "S", model.ActivityTemplateView, baseTime, withTemplate("T1", "First", model.TemplatePro)))
	s.Record(event("e3", "S", model.ActivityTemplateView, baseTime, withTemplate("T1", "Second", model.TemplatePro)))

	if got := s.TemplateStats()[0].TemplateName; got != "First" {
		t.Errorf("TemplateName = %q, want %q", got, "First")
	}
}

func TestRecord_NoTemplateWithoutType(t *testing.T) {
	setClock(t, baseTime)
	s := newTestStore(t, DefaultConfig())

	s.Record(event("e1", "S", model.ActivityTemplateView, baseTime, withTemplate("T1", "x", "")))

	if n := len(s.TemplateStats()); n != 0 {
		t.Errorf("len(TemplateStats) = %d, want 0", n)
	}
}

func TestRecord_OutOfOrderTimestamps(t *testing.T) {
	setClock(t, baseTime)
	s := newTestStore(t, DefaultConfig())

	s.Record(event("e1", "S", model.ActivityPageView, baseTime))
	s.Record(event("e2", "S", model.ActivityPageView, baseTime.Add(-time.Minute)))
	s.Record(event("e3", "S", model.ActivityPageView, baseTime.Add(time.Minute)))

	sess, _ := s.Session("S")
	if !sess.FirstSeen.Equal(baseTime.Add(-time.Minute)) {
		t.Errorf("FirstSeen = %v, want min timestamp", sess.FirstSeen)
	}
	if !sess.LastSeen.Equal(baseTime.Add(time.Minute)) {
		t.Errorf("LastSeen = %v, want max timestamp", sess.LastSeen)
	}
	if sess.PageViews != 3 {
		t.Errorf("PageViews = %d, want 3", sess.PageViews)
	}
}

func TestRecord_DuplicateID(t *testing.T) {
	setClock(t, baseTime)
	s := newTestStore(t, DefaultConfig())

	if !s.Record(event("e1", "S", model.ActivityPageView, baseTime)) {
		t.Fatal("first Record returned false")
	}
	if s.Record(event("e1", "S", model.ActivityPageView, baseTime)) {
		t.Fatal("duplicate Record returned true")
	}

	sess, _ := s.Session("S")
	if sess.PageViews != 1 {
		t.Errorf("PageViews = %d, want 1", sess.PageViews)
	}
}

func TestRecentRing_Capacity(t *testing.T) {
	setClock(t, baseTime)
	s := newTestStore(t, DefaultConfig())

	for i := range 150 {
		s.Record(event(fmt.Sprintf("e%03d", i), "S", model.ActivityPageView, baseTime.Add(time.Duration(i)*time.Second)))
	}

	recent := s.RecentActivities(0)
	if len(recent) != DefaultRecentCapacity {
		t.Fatalf("len(recent) = %d, want %d", len(recent), DefaultRecentCapacity)
	}
	if recent[0].ID != "e149" || recent[len(recent)-1].ID != "e050" {
		t.Errorf("recent range = %s..%s, want e149..e050", recent[0].ID, recent[len(recent)-1].ID)
	}

	if got := len(s.RecentActivities(5)); got != 5 {
		t.Errorf("RecentActivities(5) len = %d, want 5", got)
	}
	if u := s.Usage(); u.Activities != 150 || u.RecentActivities != DefaultRecentCapacity {
		t.Errorf("Usage = %+v", u)
	}
}

func TestActivityLists(t *testing.T) {
	setClock(t, baseTime)
	s := newTestStore(t, DefaultConfig())

	s.Record(event("e1", "A", model.ActivityPageView, baseTime, withUser("u1")))
	s.Record(event("e2", "B", model.ActivitySearchQuery, baseTime.Add(time.Second), withUser("u1")))
	s.Record(event("e3", "A", model.ActivityPageView, baseTime.Add(2*time.Second)))

	if got := ids(s.ActivitiesBySession("A", 0)); !equalIDs(got, "e3", "e1") {
		t.Errorf("ActivitiesBySession = %v", got)
	}
	if got := ids(s.ActivitiesByUser("u1", 0)); !equalIDs(got, "e2", "e1") {
		t.Errorf("ActivitiesByUser = %v", got)
	}
	if got := ids(s.ActivitiesByType(model.ActivityPageView, 1)); !equalIDs(got, "e3") {
		t.Errorf("ActivitiesByType limit 1 = %v", got)
	}
	if got := s.ActivitiesBySession("missing", 0); len(got) != 0 {
		t.Errorf("ActivitiesBySession(missing) = %v, want empty", ids(got))
	}

	ev, ok := s.Activity("e2")
	if !ok || ev.Type != model.ActivitySearchQuery {
		t.Errorf("Activity(e2) = %+v, %v", ev, ok)
	}
	if _, ok := s.Activity("nope"); ok {
		t.Error("Activity(nope) found")
	}
}

func TestQueriesReturnCopies(t *testing.T) {
	setClock(t, baseTime)
	s := newTestStore(t, DefaultConfig())

	s.Record(event("e1", "S", model.ActivityPageView, baseTime))

	sess, _ := s.Session("S")
	sess.ActivityIDs[0] = "mutated"
	sess.PageViews = 99

	again, _ := s.Session("S")
	if again.ActivityIDs[0] != "e1" || again.PageViews != 1 {
		t.Errorf("store state changed through a query result: %+v", again)
	}
}

func TestSnapshot(t *testing.T) {
	now := baseTime
	setClock(t, now)
	s := newTestStore(t, DefaultConfig())

	// Active registered session.
	s.Record(event("e1", "A", model.ActivityPageView, now.Add(-5*time.Minute), withUser("u1"), withCountry("US")))
	// Active anonymous session.
	s.Record(event("e2", "B", model.ActivityPageView, now.Add(-10*time.Minute), withCountry("DE")))
	// Inactive session, within the day.
	s.Record(event("e3", "C", model.ActivityPageView, now.Add(-2*time.Hour), withCountry("DE")))
	// Template activity.
	s.Record(event("e4", "B", model.ActivityTemplateDownload, now.Add(-time.Minute),
		withCountry("DE"), withTemplate("T1", "CV", model.TemplatePro)))

	stats := s.Snapshot()

	if stats.ActiveSessions != 2 {
		t.Errorf("ActiveSessions = %d, want 2", stats.ActiveSessions)
	}
	if stats.ActiveRegisteredUsers != 1 || stats.ActiveUnregisteredUsers != 1 {
		t.Errorf("registered/unregistered = %d/%d, want 1/1", stats.ActiveRegisteredUsers, stats.ActiveUnregisteredUsers)
	}
	if stats.TotalActivities != 4 {
		t.Errorf("TotalActivities = %d, want 4", stats.TotalActivities)
	}
	if stats.ActivitiesLastHour != 3 {
		t.Errorf("ActivitiesLastHour = %d, want 3", stats.ActivitiesLastHour)
	}
	if stats.ActivitiesLast24Hours != 4 {
		t.Errorf("ActivitiesLast24Hours = %d, want 4", stats.ActivitiesLast24Hours)
	}
	if stats.SessionsLast24Hours != 3 {
		t.Errorf("SessionsLast24Hours = %d, want 3", stats.SessionsLast24Hours)
	}
	if stats.UniqueCountries != 2 || stats.TotalTemplates != 1 {
		t.Errorf("UniqueCountries/TotalTemplates = %d/%d, want 2/1", stats.UniqueCountries, stats.TotalTemplates)
	}
	if len(stats.RecentActivities) != 4 || len(stats.TopTemplates) != 1 || len(stats.TopCountries) != 2 {
		t.Errorf("list lengths = %d/%d/%d", len(stats.RecentActivities), len(stats.TopTemplates), len(stats.TopCountries))
	}
	if stats.TopCountries[0].Country != "DE" {
		t.Errorf("top country = %q, want DE", stats.TopCountries[0].Country)
	}
	if len(stats.ActiveSessionList) != 2 || stats.ActiveSessionList[0].SessionID != "B" {
		t.Errorf("ActiveSessionList not ordered by last seen: %+v", stats.ActiveSessionList)
	}
}

func TestSnapshot_Empty(t *testing.T) {
	setClock(t, baseTime)
	s := newTestStore(t, DefaultConfig())

	stats := s.Snapshot()
	if stats.ActiveSessions != 0 || stats.TotalActivities != 0 || len(stats.RecentActivities) != 0 {
		t.Errorf("empty snapshot = %+v", stats)
	}
	if stats.TopTemplates == nil || stats.TopCountries == nil || stats.ActiveSessionList == nil {
		t.Error("empty snapshot lists must be non-nil")
	}
}

func TestTopTemplates_Ranking(t *testing.T) {
	setClock(t, baseTime)
	s := newTestStore(t, DefaultConfig())

	record := func(id, tpl string, typ model.ActivityType) {
		s.Record(event(id, "S", typ, baseTime, withTemplate(tpl, tpl, model.TemplateSnap)))
	}
	record("1", "A", model.ActivityTemplateView)
	record("2", "A", model.ActivityTemplateView)
	record("3", "B", model.ActivityTemplateDownload)
	record("4", "C", model.ActivityTemplateView)
	record("5", "C", model.ActivityTemplateView)
	record("6", "C", model.ActivityTemplateView)
	record("7", "D", model.ActivityTemplateView)
	record("8", "D", model.ActivityTemplateView)

	got := s.TopTemplates(0)
	want := []string{"B", "C", "A", "D"}
	for i, w := range want {
		if got[i].TemplateID != w {
			t.Fatalf("rank %d = %s, want %s (all: %+v)", i, got[i].TemplateID, w, got)
		}
	}

	if n := len(s.TopTemplates(2)); n != 2 {
		t.Errorf("TopTemplates(2) len = %d, want 2", n)
	}
}

func TestClear(t *testing.T) {
	setClock(t, baseTime)
	s := newTestStore(t, DefaultConfig())

	s.Record(event("e1", "S", model.ActivityTemplateView, baseTime, withCountry("US"), withTemplate("T", "T", model.TemplatePro)))
	s.Clear()

	u := s.Usage()
	if u.Activities+u.Sessions+u.Templates+u.Countries+u.RecentActivities != 0 {
		t.Errorf("Usage after Clear = %+v, want all zero", u)
	}
	if stats := s.Snapshot(); stats.TotalActivities != 0 || stats.ActiveSessions != 0 {
		t.Errorf("Snapshot after Clear = %+v", stats)
	}
}

func TestConcurrentRecordAndQuery(t *testing.T) {
	s := newTestStore(t, DefaultConfig())

	var wg sync.WaitGroup
	for w := range 4 {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := range 200 {
				s.Record(event(fmt.Sprintf("w%d-%d", w, i), fmt.Sprintf("s%d", i%10), model.ActivityTemplateView,
					time.Now(), withCountry("US"), withTemplate("T", "T", model.TemplateSnap)))
			}
		}(w)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for range 200 {
			_ = s.Snapshot()
			_ = s.TopTemplates(5)
			_ = s.RecentActivities(10)
		}
	}()
	wg.Wait()

	st := s.TemplateStats()[0]
	if st.Views != 800 {
		t.Errorf("Views = %d, want 800", st.Views)
	}
	if u := s.Usage(); u.Activities != 800 || u.Sessions != 10 {
		t.Errorf("Usage = %+v", u)
	}
}

func TestNew_Defaults(t *testing.T) {
	s := New(Config{}, nil)
	cfg := s.Config()
	if cfg != DefaultConfig() {
		t.Errorf("Config = %+v, want defaults", cfg)
	}
}

func ids(events []model.ActivityEvent) []string {
	out := make([]string, len(events))
	for i, ev := range events {
		out[i] = ev.ID
	}
	return out
}

func equalIDs(got []string, want ...string) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}
