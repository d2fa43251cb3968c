// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package middleware

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"github.com/olegiv/pulse/internal/model"
)

// AdminToken guards destructive endpoints with a static Bearer token. An
// empty token disables the endpoints entirely.
func AdminToken(token string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				WriteAPIError(w, http.StatusForbidden, "forbidden", "Admin endpoints are disabled", nil)
				return
			}

			presented, ok := bearerToken(r)
			if !ok {
				WriteAPIError(w, http.StatusUnauthorized, "unauthorized", "Missing or malformed Authorization header", nil)
				return
			}
			if subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
				logger.Warn("admin token rejected", "category", model.LogCategorySystem, "ip", clientIP(r), "path", r.URL.Path)
				WriteAPIError(w, http.StatusUnauthorized, "unauthorized", "Invalid admin token", nil)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || parts[1] == "" {
		return "", false
	}
	return strings.TrimSpace(parts[1]), true
}
