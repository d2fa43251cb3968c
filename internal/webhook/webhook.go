// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package webhook forwards activity events to an HTTP endpoint, signed with
// HMAC-SHA256 so the receiver can verify them.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/olegiv/pulse/internal/model"
)

// Delivery constants
const (
	RequestTimeout = 10 * time.Second
	MaxResponseLen = 1024
	UserAgent      = "pulse-webhook/1.0"
	EventName      = "activity.recorded"
)

// Header names
const (
	HeaderSignature = "X-Webhook-Signature"
	HeaderEvent     = "X-Webhook-Event"
	HeaderDelivery  = "X-Webhook-Delivery-ID"
)

// Config configures a Sink.
type Config struct {
	URL     string
	Secret  string
	Headers map[string]string
	Timeout time.Duration
}

// Sink posts each event as JSON to a single URL. It never retries; a failed
// delivery is reported to the dispatcher, which logs it.
type Sink struct {
	cfg    Config
	client *http.Client
}

// NewSink validates the URL and creates the sink.
func NewSink(cfg Config) (*Sink, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid webhook URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, errors.New("webhook URL must use http or https scheme")
	}
	if u.Host == "" {
		return nil, errors.New("webhook URL has no host")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = RequestTimeout
	}

	return &Sink{
		cfg: cfg,
		client: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}, nil
}

// Name identifies the sink in logs.
func (s *Sink) Name() string { return "webhook" }

// Payload is the JSON body of a delivery.
type Payload struct {
	Event     string              `json:"event"`
	Timestamp time.Time           `json:"timestamp"`
	Data      model.ActivityEvent `json:"data"`
}

// Deliver posts ev. Any non-2xx response is an error.
func (s *Sink) Deliver(ctx context.Context, ev model.ActivityEvent) error {
	body, err := json.Marshal(Payload{
		Event:     EventName,
		Timestamp: ev.Timestamp,
		Data:      ev,
	})
	if err != nil {
		return fmt.Errorf("encoding payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set(HeaderEvent, EventName)
	req.Header.Set(HeaderDelivery, ev.ID)
	if s.cfg.Secret != "" {
		req.Header.Set(HeaderSignature, GenerateSignature(body, s.cfg.Secret))
	}
	for key, value := range s.cfg.Headers {
		req.Header.Set(key, value)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, MaxResponseLen))
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, bytes.TrimSpace(snippet))
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, MaxResponseLen))
	return nil
}

// GenerateSignature returns the hex HMAC-SHA256 of payload.
func GenerateSignature(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature verifies an HMAC-SHA256 signature.
func VerifySignature(payload []byte, signature, secret string) bool {
	expectedSig := GenerateSignature(payload, secret)
	return hmac.Equal([]byte(signature), []byte(expectedSig))
}
