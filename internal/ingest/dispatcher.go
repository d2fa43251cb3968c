// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/olegiv/pulse/internal/model"
)

// DispatcherConfig sizes each sink lane.
type DispatcherConfig struct {
	Workers   int           // workers per sink
	QueueSize int           // buffered events per sink
	Timeout   time.Duration // per delivery
}

// DefaultDispatcherConfig returns default dispatcher configuration.
func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		Workers:   4,
		QueueSize: 1024,
		Timeout:   5 * time.Second,
	}
}

// LaneStats reports delivery counters for one sink.
type LaneStats struct {
	Sink      string `json:"sink"`
	Queued    int    `json:"queued"`
	Delivered int64  `json:"delivered"`
	Failed    int64  `json:"failed"`
	Dropped   int64  `json:"dropped"`
}

type lane struct {
	sink  Sink
	queue chan model.ActivityEvent

	delivered atomic.Int64
	failed    atomic.Int64
	dropped   atomic.Int64
}

// Dispatcher fans events out to sinks. Every sink has its own queue and
// workers, so a slow or failing sink never delays the others. Enqueue never
// blocks: when a lane is full the event is dropped for that sink.
type Dispatcher struct {
	cfg    DispatcherConfig
	logger *slog.Logger
	lanes  []*lane
	wg     sync.WaitGroup

	mu      sync.RWMutex
	running bool
	stopped bool
}

// NewDispatcher creates a dispatcher for sinks. Call Start before Enqueue.
func NewDispatcher(logger *slog.Logger, cfg DispatcherConfig, sinks ...Sink) *Dispatcher {
	def := DefaultDispatcherConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	if logger == nil {
		logger = slog.Default()
	}

	d := &Dispatcher{cfg: cfg, logger: logger}
	for _, s := range sinks {
		d.lanes = append(d.lanes, &lane{
			sink:  s,
			queue: make(chan model.ActivityEvent, cfg.QueueSize),
		})
	}
	return d
}

// Start launches the lane workers.
func (d *Dispatcher) Start() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running || d.stopped {
		return
	}
	d.running = true

	for _, l := range d.lanes {
		for i := 0; i < d.cfg.Workers; i++ {
			d.wg.Add(1)
			go d.worker(l)
		}
	}
	d.logger.Info("fan-out dispatcher started", "sinks", len(d.lanes), "workers_per_sink", d.cfg.Workers)
}

// Stop closes the lanes and waits until queued events have been delivered.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return
	}
	d.running = false
	d.stopped = true
	for _, l := range d.lanes {
		close(l.queue)
	}
	d.mu.Unlock()

	d.wg.Wait()
	d.logger.Info("fan-out dispatcher stopped")
}

// Enqueue hands ev to every sink lane without blocking.
func (d *Dispatcher) Enqueue(ev model.ActivityEvent) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if !d.running {
		d.logger.Warn("dispatcher not running, dropping event", "event_id", ev.ID)
		return
	}

	for _, l := range d.lanes {
		select {
		case l.queue <- ev.Clone():
		default:
			l.dropped.Add(1)
			d.logger.Warn("dispatch queue full, dropping event", "sink", l.sink.Name(), "event_id", ev.ID)
		}
	}
}

// Stats returns per-sink counters.
func (d *Dispatcher) Stats() []LaneStats {
	out := make([]LaneStats, 0, len(d.lanes))
	for _, l := range d.lanes {
		out = append(out, LaneStats{
			Sink:      l.sink.Name(),
			Queued:    len(l.queue),
			Delivered: l.delivered.Load(),
			Failed:    l.failed.Load(),
			Dropped:   l.dropped.Load(),
		})
	}
	return out
}

func (d *Dispatcher) worker(l *lane) {
	defer d.wg.Done()
	for ev := range l.queue {
		if err := d.deliver(l.sink, ev); err != nil {
			l.failed.Add(1)
			d.logger.Warn("sink delivery failed",
				"sink", l.sink.Name(),
				"event_id", ev.ID,
				"activity_type", string(ev.Type),
				"error", err)
			continue
		}
		l.delivered.Add(1)
	}
}

// deliver runs one bounded delivery. Panics become errors.
func (d *Dispatcher) deliver(sink Sink, ev model.ActivityEvent) (err error) {
	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.Timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	return sink.Deliver(ctx, ev)
}
