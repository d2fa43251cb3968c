// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestAddJob_Validation(t *testing.T) {
	s := New(testLogger())
	noop := func(context.Context) error { return nil }

	if err := s.AddJob("bad", "", "not a schedule", 0, noop); err == nil {
		t.Error("AddJob() should reject an invalid cron expression")
	}
	if err := s.AddJob("evict", "", "@every 1h", time.Minute, noop); err != nil {
		t.Fatalf("AddJob() error: %v", err)
	}
	if err := s.AddJob("evict", "", "@hourly", time.Minute, noop); err == nil {
		t.Error("AddJob() should reject a duplicate name")
	}
	if err := s.AddJob("retention", "", "30 0 * * *", 0, noop); err != nil {
		t.Errorf("AddJob() with a five-field expression: %v", err)
	}
}

func TestRunNow(t *testing.T) {
	s := New(testLogger())

	var gotDeadline bool
	_ = s.AddJob("evict", "sweep", "@every 1h", time.Minute, func(ctx context.Context) error {
		_, gotDeadline = ctx.Deadline()
		return nil
	})

	if err := s.RunNow(context.Background(), "evict"); err != nil {
		t.Fatalf("RunNow() error: %v", err)
	}
	if !gotDeadline {
		t.Error("job context must carry the job timeout")
	}

	jobs := s.Jobs()
	if len(jobs) != 1 || jobs[0].Runs != 1 || jobs[0].LastRun.IsZero() {
		t.Errorf("Jobs() = %+v", jobs)
	}

	if err := s.RunNow(context.Background(), "evict"); !errors.Is(err, ErrTriggerRateLimited) {
		t.Errorf("second RunNow() err = %v, want ErrTriggerRateLimited", err)
	}
	if err := s.RunNow(context.Background(), "missing"); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("RunNow(missing) err = %v, want ErrJobNotFound", err)
	}
}

func TestRun_RecordsError(t *testing.T) {
	s := New(testLogger())
	boom := errors.New("boom")
	_ = s.AddJob("geoip", "", "@hourly", 0, func(context.Context) error { return boom })

	if err := s.RunNow(context.Background(), "geoip"); !errors.Is(err, boom) {
		t.Fatalf("RunNow() err = %v, want boom", err)
	}
	if got := s.Jobs()[0].LastError; got != "boom" {
		t.Errorf("LastError = %q, want boom", got)
	}
}

func TestRun_NoOverlap(t *testing.T) {
	s := New(testLogger())

	started := make(chan struct{})
	release := make(chan struct{})
	_ = s.AddJob("evict", "", "@every 1h", 0, func(context.Context) error {
		close(started)
		<-release
		return nil
	})

	j := s.jobs["evict"]
	done := make(chan error, 1)
	go func() { done <- s.run(context.Background(), j) }()
	<-started

	if err := s.run(context.Background(), j); !errors.Is(err, ErrJobRunning) {
		t.Errorf("overlapping run err = %v, want ErrJobRunning", err)
	}
	if !s.Jobs()[0].Running {
		t.Error("Running = false during a run")
	}

	close(release)
	if err := <-done; err != nil {
		t.Errorf("first run err = %v", err)
	}
	if s.Jobs()[0].Running {
		t.Error("Running = true after the run finished")
	}
}

func TestScheduler_StartStop(t *testing.T) {
	s := New(testLogger())
	_ = s.AddJob("evict", "", "@every 1h", 0, func(context.Context) error { return nil })

	s.Start()
	jobs := s.Jobs()
	if len(jobs) != 1 || jobs[0].NextRun.IsZero() {
		t.Errorf("NextRun should be set after Start, got %+v", jobs)
	}
	s.Stop()
}
