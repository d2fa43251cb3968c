// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package visitor

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/olegiv/pulse/internal/cache"
	"github.com/olegiv/pulse/internal/model"
)

// ErrUnknownSession is returned when no durable record exists for a session.
var ErrUnknownSession = errors.New("unknown session")

// ContextLoader reads session context from the durable store.
type ContextLoader interface {
	SessionContext(ctx context.Context, sessionID string) (model.SessionContext, error)
}

// ContextSource serves durable session context through a cache. Unknown
// sessions are not cached, so a visitor recorded a moment later is found on
// the next lookup.
type ContextSource struct {
	loader ContextLoader
	cache  cache.Cache
	ttl    time.Duration
	logger *slog.Logger
}

// NewContextSource creates a cached session context source.
func NewContextSource(loader ContextLoader, c cache.Cache, ttl time.Duration, logger *slog.Logger) *ContextSource {
	return &ContextSource{loader: loader, cache: c, ttl: ttl, logger: logger}
}

func cacheKey(sessionID string) string {
	return "session:" + sessionID
}

// SessionContext implements ingest.SessionLookup.
func (s *ContextSource) SessionContext(ctx context.Context, sessionID string) (model.SessionContext, error) {
	key := cacheKey(sessionID)

	if raw, err := s.cache.Get(ctx, key); err == nil {
		var sc model.SessionContext
		if err := json.Unmarshal(raw, &sc); err == nil {
			return sc, nil
		}
		_ = s.cache.Delete(ctx, key)
	} else if !errors.Is(err, cache.ErrCacheMiss) {
		s.logger.Warn("session cache read failed", "session_id", sessionID, "error", err)
	}

	sc, err := s.loader.SessionContext(ctx, sessionID)
	if errors.Is(err, sql.ErrNoRows) {
		return model.SessionContext{}, ErrUnknownSession
	}
	if err != nil {
		return model.SessionContext{}, fmt.Errorf("loading session %s: %w", sessionID, err)
	}

	if raw, err := json.Marshal(sc); err == nil {
		if err := s.cache.Set(ctx, key, raw, s.ttl); err != nil {
			s.logger.Warn("session cache write failed", "session_id", sessionID, "error", err)
		}
	}
	return sc, nil
}

// Invalidate drops the cached context of a session after its durable record
// changed.
func (s *ContextSource) Invalidate(ctx context.Context, sessionID string) {
	if err := s.cache.Delete(ctx, cacheKey(sessionID)); err != nil {
		s.logger.Warn("session cache invalidate failed", "session_id", sessionID, "error", err)
	}
}
