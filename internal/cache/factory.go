// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package cache

import (
	"log/slog"
	"time"
)

// Config selects and sizes a cache backend.
type Config struct {
	RedisURL        string // empty selects the memory backend
	Prefix          string
	DefaultTTL      time.Duration
	MaxSize         int
	CleanupInterval time.Duration
}

// New returns a Redis cache when RedisURL is set and reachable, otherwise a
// memory cache. A Redis failure is logged and does not stop startup.
func New(cfg Config, logger *slog.Logger) Cache {
	if cfg.RedisURL != "" {
		rc, err := NewRedisCache(RedisOptions{
			URL:        cfg.RedisURL,
			Prefix:     cfg.Prefix,
			DefaultTTL: cfg.DefaultTTL,
		})
		if err == nil {
			logger.Info("session cache using redis", "prefix", cfg.Prefix)
			return rc
		}
		logger.Warn("redis cache unavailable, falling back to memory", "error", err)
	}

	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = time.Minute
	}
	return NewMemoryCache(MemoryOptions{
		DefaultTTL:      cfg.DefaultTTL,
		MaxSize:         cfg.MaxSize,
		CleanupInterval: cfg.CleanupInterval,
	})
}
