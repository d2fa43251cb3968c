// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package visitor resolves who is behind a request: session cookie, country,
// device and language. It owns the durable visitor upsert; the realtime
// engine only consumes the resulting Identity.
package visitor

import (
	"context"
	"net/http"
)

type contextKey string

const identityKey contextKey = "visitor_identity"

// Identity is the resolved visitor context of a request.
type Identity struct {
	SessionID  string `json:"session_id"`
	UserID     string `json:"user_id,omitempty"`
	UserTier   string `json:"user_tier,omitempty"`
	Country    string `json:"country,omitempty"`
	DeviceType string `json:"device_type,omitempty"`
	Browser    string `json:"browser,omitempty"`
	OS         string `json:"os,omitempty"`
	Language   string `json:"language,omitempty"`
	NewSession bool   `json:"new_session"`
}

// Registered reports whether an upstream user id is known.
func (id Identity) Registered() bool {
	return id.UserID != ""
}

// WithIdentity returns a copy of ctx carrying id.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// FromContext returns the identity stored by the resolver middleware.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok
}

// FromRequest is FromContext for r.Context().
func FromRequest(r *http.Request) (Identity, bool) {
	return FromContext(r.Context())
}
