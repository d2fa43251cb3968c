// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"

	"github.com/olegiv/pulse/internal/cache"
	"github.com/olegiv/pulse/internal/config"
	"github.com/olegiv/pulse/internal/ga4"
	"github.com/olegiv/pulse/internal/geoip"
	"github.com/olegiv/pulse/internal/handler"
	"github.com/olegiv/pulse/internal/ingest"
	"github.com/olegiv/pulse/internal/logging"
	"github.com/olegiv/pulse/internal/middleware"
	"github.com/olegiv/pulse/internal/model"
	"github.com/olegiv/pulse/internal/realtime"
	"github.com/olegiv/pulse/internal/scheduler"
	"github.com/olegiv/pulse/internal/store"
	"github.com/olegiv/pulse/internal/version"
	"github.com/olegiv/pulse/internal/visitor"
	"github.com/olegiv/pulse/internal/warehouse"
	"github.com/olegiv/pulse/internal/webhook"
)

// Version information - injected at build time via ldflags
var (
	appVersion   = "dev"
	appGitCommit = "unknown"
	appBuildTime = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "Show version information")
	flag.BoolVar(showVersion, "v", false, "Show version information (shorthand)")
	showHelp := flag.Bool("help", false, "Show help information")
	flag.BoolVar(showHelp, "h", false, "Show help information (shorthand)")

	flag.Usage = func() {
		_, _ = fmt.Fprintf(os.Stderr, "pulse - real-time activity ingestion and aggregation\n\n")
		_, _ = fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", os.Args[0])
		_, _ = fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		_, _ = fmt.Fprintf(os.Stderr, "\nEnvironment Variables:\n")
		_, _ = fmt.Fprintf(os.Stderr, "  PULSE_DB_PATH              SQLite database path (default: ./data/pulse.db)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  PULSE_SERVER_PORT          Server port (default: 8080)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  PULSE_ENV                  Environment: development|production (default: development)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  PULSE_ADMIN_TOKEN          Bearer token for clear/evict (required outside development)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  PULSE_REDIS_URL            Redis URL for the session-context cache (optional)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  PULSE_GEOIP_DB_PATH        GeoLite2-Country database (optional)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  PULSE_GA4_MEASUREMENT_ID   GA4 measurement id (optional, with PULSE_GA4_API_SECRET)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  PULSE_CLICKHOUSE_DSN       ClickHouse warehouse DSN (optional)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  PULSE_WEBHOOK_URL          Signed webhook endpoint (optional, with PULSE_WEBHOOK_SECRET)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  PULSE_EVICTION_SCHEDULE    Realtime eviction schedule (default: @every 1h)\n")
	}

	flag.Parse()

	if *showHelp {
		flag.Usage()
		os.Exit(0)
	}

	if *showVersion {
		_, _ = fmt.Printf("pulse %s (commit: %s, built: %s)\n", appVersion, appGitCommit, appBuildTime)
		os.Exit(0)
	}

	if err := run(); err != nil {
		slog.Error("application error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// Load .env files if present (development)
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	versionInfo := version.Info{
		Version:   appVersion,
		GitCommit: appGitCommit,
		BuildTime: appBuildTime,
	}

	logLevel := logging.ParseLevel(cfg.LogLevel)
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	slog.Info("initializing database", "path", cfg.DBPath)
	db, err := store.NewDB(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("initializing database: %w", err)
	}
	defer func(db *sql.DB) {
		if err := db.Close(); err != nil {
			slog.Error("error closing database connection", "error", err)
		}
	}(db)

	slog.Info("running database migrations")
	if err := store.Migrate(db); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	// Upgrade logger to also write WARN and ERROR logs to the event log
	textHandler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	logger = slog.New(logging.NewEventLogHandler(textHandler, db))
	slog.SetDefault(logger)
	slog.Info("event log integration enabled", "min_level", "warn")

	sessionCache := cache.New(cache.Config{
		RedisURL:   cfg.RedisURL,
		Prefix:     cfg.CachePrefix,
		DefaultTTL: cfg.CacheTTL,
		MaxSize:    cfg.CacheMaxSize,
	}, logger)
	defer func() {
		if err := sessionCache.Close(); err != nil {
			slog.Error("error closing session cache", "error", err)
		}
	}()

	rt := realtime.New(realtime.Config{
		RecentCapacity: cfg.RecentCapacity,
		MaxEvents:      cfg.MaxEvents,
		Retention:      cfg.Retention,
		ActiveWindow:   cfg.ActiveWindow,
	}, logger)

	queries := store.New(db)
	contextSource := visitor.NewContextSource(queries, sessionCache, cfg.CacheTTL, logger)

	sinks := []ingest.Sink{
		store.NewActivitySink(db),
		store.NewRollupSink(db),
	}
	if cfg.GA4Enabled() {
		client := ga4.NewClient(ga4.Config{
			MeasurementID: cfg.GA4MeasurementID,
			APISecret:     cfg.GA4APISecret,
			Endpoint:      cfg.GA4Endpoint,
			Timeout:       cfg.FanoutTimeout,
		})
		sinks = append(sinks, ingest.Enrich(ga4.NewSink(client), contextSource))
		slog.Info("GA4 sink enabled", "measurement_id", cfg.GA4MeasurementID)
	}
	if cfg.WarehouseEnabled() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		wh, err := warehouse.Open(ctx, cfg.ClickHouseDSN, appVersion)
		cancel()
		if err != nil {
			slog.Warn("warehouse sink disabled", "category", model.LogCategoryFanout, "error", err)
		} else {
			defer func() {
				if err := wh.Close(); err != nil {
					slog.Error("error closing warehouse connection", "error", err)
				}
			}()
			sinks = append(sinks, wh)
			slog.Info("warehouse sink enabled")
		}
	}

	if cfg.WebhookEnabled() {
		hook, err := webhook.NewSink(webhook.Config{
			URL:     cfg.WebhookURL,
			Secret:  cfg.WebhookSecret,
			Timeout: cfg.FanoutTimeout,
		})
		if err != nil {
			return fmt.Errorf("configuring webhook sink: %w", err)
		}
		sinks = append(sinks, hook)
		slog.Info("webhook sink enabled")
	}

	dispatcher := ingest.NewDispatcher(logger, ingest.DispatcherConfig{
		Workers:   cfg.FanoutWorkers,
		QueueSize: cfg.FanoutQueue,
		Timeout:   cfg.FanoutTimeout,
	}, sinks...)
	dispatcher.Start()
	defer dispatcher.Stop()

	ingestService := ingest.NewService(rt, dispatcher, logger)

	geo, err := geoip.Open(cfg.GeoIPDBPath)
	if err != nil {
		slog.Warn("GeoIP database unavailable, countries will be Unknown", "path", cfg.GeoIPDBPath, "error", err)
	}
	defer func() { _ = geo.Close() }()

	resolver := visitor.NewResolver(visitor.Config{
		CookieName: cfg.SessionCookie,
		Secure:     !cfg.IsDevelopment(),
	}, store.NewVisitRecorder(db), geo, ingestService, logger, visitor.WithContextSource(contextSource))
	defer resolver.Wait()

	sched := scheduler.New(logger)
	if err := registerJobs(sched, cfg, rt, geo, queries, logger); err != nil {
		return err
	}
	sched.Start()
	defer sched.Stop()

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.GetHead)
	r.Use(chimw.StripSlashes)

	healthHandler := handler.NewHealthHandler(db, versionInfo, sched, dispatcher, rt)
	r.Get("/health", healthHandler.Health)
	r.Get("/health/live", healthHandler.Liveness)
	r.Get("/health/ready", healthHandler.Readiness)

	trackLimiter := middleware.NewClientRateLimiter(cfg.TrackRate, cfg.TrackBurst, logger)
	trackHandler := handler.NewTrackHandler(ingestService, resolver, logger)
	realtimeHandler := handler.NewRealtimeHandler(rt, sched, logger)

	r.Route("/api", func(r chi.Router) {
		r.With(trackLimiter.Middleware()).Post("/track", trackHandler.Track)
		r.Route("/realtime", func(r chi.Router) {
			realtimeHandler.Routes(r, middleware.AdminToken(cfg.AdminToken, logger))
		})
	})

	// Any other GET is a page-view beacon for its path.
	r.Group(func(r chi.Router) {
		r.Use(resolver.Middleware)
		r.Get("/*", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		})
	})

	srv := &http.Server{
		Addr:              cfg.ServerAddr(),
		Handler:           r,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("starting server", "addr", cfg.ServerAddr(), "env", cfg.Env, "version", versionInfo.String())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-serverErr:
		return fmt.Errorf("server error: %w", err)
	}

	slog.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	// Deferred in reverse: scheduler, visitor upserts, GeoIP, dispatcher
	// drain, warehouse, cache, database.
	slog.Info("server stopped")
	return nil
}

// registerJobs adds the realtime eviction, GeoIP reload and durable retention
// jobs.
func registerJobs(sched *scheduler.Scheduler, cfg *config.Config, rt *realtime.Store, geo *geoip.Lookup, queries *store.Queries, logger *slog.Logger) error {
	err := sched.AddJob(handler.EvictionJob, "Evict realtime activity older than the retention window",
		cfg.EvictionSchedule, cfg.EvictionTimeout, func(ctx context.Context) error {
			report, err := rt.Sweep(ctx)
			logger.Info("realtime sweep finished",
				"removed", report.Removed(),
				"activities", report.Activities,
				"sessions", report.Sessions,
				"capped", report.Capped,
				"duration", report.Duration)
			return err
		})
	if err != nil {
		return fmt.Errorf("registering eviction job: %w", err)
	}

	if geo.Enabled() {
		err := sched.AddJob("geoip_reload", "Reload the GeoIP database when the file changes",
			"@hourly", time.Minute, func(context.Context) error {
				return geo.Reload()
			})
		if err != nil {
			return fmt.Errorf("registering GeoIP job: %w", err)
		}
	}

	err = sched.AddJob("durable_retention", "Delete durable activity and log entries past retention",
		"30 0 * * *", 10*time.Minute, func(ctx context.Context) error {
			cutoff := time.Now().UTC().Add(-cfg.DurableRetention())
			events, err := queries.DeleteActivityEventsBefore(ctx, cutoff)
			if err != nil {
				return fmt.Errorf("deleting activity events: %w", err)
			}
			entries, err := queries.DeleteLogEntriesBefore(ctx, cutoff)
			if err != nil {
				return fmt.Errorf("deleting log entries: %w", err)
			}
			logger.Info("durable retention applied", "cutoff", cutoff, "activities", events, "log_entries", entries)
			return nil
		})
	if err != nil {
		return fmt.Errorf("registering retention job: %w", err)
	}
	return nil
}
