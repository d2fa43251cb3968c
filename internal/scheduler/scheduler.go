// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package scheduler runs the periodic maintenance jobs: realtime eviction,
// GeoIP reloads and durable retention. Runs of the same job never overlap.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/time/rate"
)

var (
	// ErrJobNotFound is returned by RunNow for an unknown job name.
	ErrJobNotFound = errors.New("job not found")
	// ErrJobRunning is returned by RunNow while a run is in progress.
	ErrJobRunning = errors.New("job already running")
	// ErrTriggerRateLimited is returned when manual triggers arrive too fast.
	ErrTriggerRateLimited = errors.New("manual trigger rate limited")
)

// manualTriggerInterval bounds how often RunNow may start a given job.
const manualTriggerInterval = 10 * time.Second

// JobFunc is the body of a job. ctx carries the job's timeout.
type JobFunc func(ctx context.Context) error

type job struct {
	name        string
	description string
	schedule    string
	timeout     time.Duration
	fn          JobFunc
	entryID     cron.EntryID
	trigger     *rate.Limiter

	running atomic.Bool

	mu       sync.Mutex
	lastRun  time.Time
	lastErr  string
	duration time.Duration
	runs     int64
}

// JobInfo is the public view of a registered job.
type JobInfo struct {
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Schedule    string        `json:"schedule"`
	Running     bool          `json:"running"`
	Runs        int64         `json:"runs"`
	LastRun     time.Time     `json:"last_run,omitzero"`
	LastError   string        `json:"last_error,omitempty"`
	Duration    time.Duration `json:"last_duration"`
	NextRun     time.Time     `json:"next_run,omitzero"`
}

// Scheduler wraps a cron instance with named, timeout-bounded jobs.
type Scheduler struct {
	cron   *cron.Cron
	logger *slog.Logger

	mu   sync.RWMutex
	jobs map[string]*job
}

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// New creates a scheduler. Jobs are added with AddJob before Start.
func New(logger *slog.Logger) *Scheduler {
	cl := cronLogger{logger: logger}
	return &Scheduler{
		cron: cron.New(
			cron.WithParser(parser),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		logger: logger,
		jobs:   make(map[string]*job),
	}
}

// AddJob registers fn under name. A timeout of zero means no deadline.
func (s *Scheduler) AddJob(name, description, schedule string, timeout time.Duration, fn JobFunc) error {
	if _, err := parser.Parse(schedule); err != nil {
		return fmt.Errorf("invalid cron expression %q for %s: %w", schedule, name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("job %s already registered", name)
	}

	j := &job{
		name:        name,
		description: description,
		schedule:    schedule,
		timeout:     timeout,
		fn:          fn,
		trigger:     rate.NewLimiter(rate.Every(manualTriggerInterval), 1),
	}

	id, err := s.cron.AddFunc(schedule, func() {
		if err := s.run(context.Background(), j); err != nil && !errors.Is(err, ErrJobRunning) {
			s.logger.Error("scheduled job failed", "job", j.name, "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("scheduling %s: %w", name, err)
	}
	j.entryID = id
	s.jobs[name] = j

	s.logger.Debug("registered scheduled job", "job", name, "schedule", schedule)
	return nil
}

// Start begins running registered jobs on their schedules.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("scheduler started", "jobs", len(s.cron.Entries()))
}

// Stop stops scheduling new runs and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("scheduler stopped")
}

// RunNow runs a job synchronously outside its schedule. It fails with
// ErrJobRunning instead of overlapping a scheduled run.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.RLock()
	j, ok := s.jobs[name]
	s.mu.RUnlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrJobNotFound, name)
	}
	if !j.trigger.Allow() {
		return fmt.Errorf("%w: %s", ErrTriggerRateLimited, name)
	}

	s.logger.Info("manually triggering job", "job", name)
	return s.run(ctx, j)
}

// run executes one guarded, timeout-bounded run of j.
func (s *Scheduler) run(parent context.Context, j *job) error {
	if !j.running.CompareAndSwap(false, true) {
		return ErrJobRunning
	}
	defer j.running.Store(false)

	ctx := parent
	if j.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(parent, j.timeout)
		defer cancel()
	}

	start := time.Now()
	err := j.fn(ctx)
	elapsed := time.Since(start)

	j.mu.Lock()
	j.lastRun = start
	j.duration = elapsed
	j.runs++
	j.lastErr = ""
	if err != nil {
		j.lastErr = err.Error()
	}
	j.mu.Unlock()

	return err
}

// Jobs returns all registered jobs sorted by name.
func (s *Scheduler) Jobs() []JobInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]JobInfo, 0, len(s.jobs))
	for _, j := range s.jobs {
		j.mu.Lock()
		info := JobInfo{
			Name:        j.name,
			Description: j.description,
			Schedule:    j.schedule,
			Running:     j.running.Load(),
			Runs:        j.runs,
			LastRun:     j.lastRun,
			LastError:   j.lastErr,
			Duration:    j.duration,
		}
		j.mu.Unlock()
		info.NextRun = s.cron.Entry(j.entryID).Next
		result = append(result, info)
	}

	sort.Slice(result, func(a, b int) bool { return result[a].Name < result[b].Name })
	return result
}
