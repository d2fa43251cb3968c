// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package ga4 forwards activity to Google Analytics 4 through the
// Measurement Protocol.
package ga4

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// DefaultEndpoint is the Measurement Protocol collection URL.
const DefaultEndpoint = "https://www.google-analytics.com/mp/collect"

const (
	userAgent      = "pulse-ga4/1.0"
	maxResponseLen = 1024
)

// ErrDisabled is returned when the client has no measurement id or secret.
var ErrDisabled = errors.New("ga4: measurement id or api secret not configured")

// Config holds Measurement Protocol credentials.
type Config struct {
	MeasurementID string
	APISecret     string
	Endpoint      string
	Timeout       time.Duration // HTTP client timeout; deliveries also carry a context deadline
}

// Event is one Measurement Protocol event.
type Event struct {
	Name   string         `json:"name"`
	Params map[string]any `json:"params"`
}

// UserProperty wraps a user property value as the protocol expects.
type UserProperty struct {
	Value string `json:"value"`
}

// Payload is the request body sent to the collect endpoint.
type Payload struct {
	ClientID        string                  `json:"client_id"`
	UserID          string                  `json:"user_id,omitempty"`
	TimestampMicros int64                   `json:"timestamp_micros,omitempty"`
	UserProperties  map[string]UserProperty `json:"user_properties,omitempty"`
	Events          []Event                 `json:"events"`
}

// Client posts payloads to the collect endpoint.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// NewClient creates a client. A missing measurement id or secret yields a
// client whose Send returns ErrDisabled.
func NewClient(cfg Config) *Client {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// Enabled reports whether credentials are configured.
func (c *Client) Enabled() bool {
	return c.cfg.MeasurementID != "" && c.cfg.APISecret != ""
}

// Send posts p. Any non-2xx response is an error.
func (c *Client) Send(ctx context.Context, p Payload) error {
	if !c.Enabled() {
		return ErrDisabled
	}

	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encoding payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.collectURL(), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseLen))
		return fmt.Errorf("HTTP %d: %s: %s", resp.StatusCode, http.StatusText(resp.StatusCode), bytes.TrimSpace(snippet))
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseLen))
	return nil
}

func (c *Client) collectURL() string {
	q := url.Values{}
	q.Set("measurement_id", c.cfg.MeasurementID)
	q.Set("api_secret", c.cfg.APISecret)
	return c.cfg.Endpoint + "?" + q.Encode()
}
