// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package model defines the domain types shared by the ingestion pipeline,
// the real-time aggregate and the durable store.
package model

import (
	"errors"
	"fmt"
	"maps"
	"strings"
	"time"
)

// ActivityType is the closed set of activity kinds accepted by the pipeline.
type ActivityType string

// Activity types
const (
	ActivityPageView          ActivityType = "page_view"
	ActivityTemplateView      ActivityType = "template_view"
	ActivityTemplateDownload  ActivityType = "template_download"
	ActivityUserRegistration  ActivityType = "user_registration"
	ActivityUserLogin         ActivityType = "user_login"
	ActivitySubscriptionStart ActivityType = "subscription_start"
	ActivitySearchQuery       ActivityType = "search_query"
	ActivityErrorOccurred     ActivityType = "error_occurred"
	ActivityFeatureUsed       ActivityType = "feature_used"
	ActivityCustom            ActivityType = "custom"
)

// ActivityTypes lists every accepted activity type.
var ActivityTypes = []ActivityType{
	ActivityPageView,
	ActivityTemplateView,
	ActivityTemplateDownload,
	ActivityUserRegistration,
	ActivityUserLogin,
	ActivitySubscriptionStart,
	ActivitySearchQuery,
	ActivityErrorOccurred,
	ActivityFeatureUsed,
	ActivityCustom,
}

// Valid reports whether t is one of the accepted activity types.
func (t ActivityType) Valid() bool {
	for _, known := range ActivityTypes {
		if t == known {
			return true
		}
	}
	return false
}

// ParseActivityType normalizes s (case-insensitive, surrounding space ignored)
// into an ActivityType. Producers send both "page_view" and "PAGE_VIEW".
func ParseActivityType(s string) (ActivityType, error) {
	t := ActivityType(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownActivityType, s)
	}
	return t, nil
}

// TemplateType identifies a template product line.
type TemplateType string

// Template types counted in the per-country download split.
const (
	TemplateSnap TemplateType = "snap"
	TemplatePro  TemplateType = "pro"
)

// Recognized reports whether the template type takes part in the download split.
func (t TemplateType) Recognized() bool {
	return t == TemplateSnap || t == TemplatePro
}

// Download formats
const (
	DownloadFormatPDF  = "pdf"
	DownloadFormatDOCX = "docx"
	DownloadFormatTXT  = "txt"
)

// MaxSessionIDLength bounds the session identifier accepted at ingestion.
const MaxSessionIDLength = 128

// Validation errors
var (
	ErrMissingSessionID    = errors.New("session id is required")
	ErrSessionIDTooLong    = errors.New("session id is too long")
	ErrUnknownActivityType = errors.New("unknown activity type")
	ErrMissingActivityName = errors.New("activity name is required")
)

// ActivityEvent is a single user-initiated occurrence. It is fully determined
// at creation; nothing edits it after ingestion.
type ActivityEvent struct {
	ID        string       `json:"id"`
	SessionID string       `json:"session_id"`
	UserID    string       `json:"user_id,omitempty"`
	Type      ActivityType `json:"activity_type"`
	Name      string       `json:"activity_name"`

	PageURL   string `json:"page_url,omitempty"`
	PageTitle string `json:"page_title,omitempty"`
	Referrer  string `json:"referrer,omitempty"`

	TemplateID     string       `json:"template_id,omitempty"`
	TemplateName   string       `json:"template_name,omitempty"`
	TemplateType   TemplateType `json:"template_type,omitempty"`
	DownloadFormat string       `json:"download_format,omitempty"`

	SearchQuery   string `json:"search_query,omitempty"`
	SearchResults int    `json:"search_results,omitempty"`

	ErrorMessage string `json:"error_message,omitempty"`
	ErrorCode    string `json:"error_code,omitempty"`

	FeatureName string         `json:"feature_name,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`

	UserTier   string `json:"user_tier,omitempty"`
	Country    string `json:"country,omitempty"`
	DeviceType string `json:"device_type,omitempty"`
	Browser    string `json:"browser,omitempty"`
	OS         string `json:"os,omitempty"`

	Timestamp time.Time `json:"timestamp"`
}

// HasTemplate reports whether the event references a template.
func (e ActivityEvent) HasTemplate() bool {
	return e.TemplateID != "" && e.TemplateType != ""
}

// Clone returns a copy that shares no mutable state with e.
func (e ActivityEvent) Clone() ActivityEvent {
	if e.Metadata != nil {
		e.Metadata = maps.Clone(e.Metadata)
	}
	return e
}

// TrackInput is the producer-supplied shape of an activity before it is
// assigned an id and timestamp.
type TrackInput struct {
	SessionID    string `json:"session_id"`
	UserID       string `json:"user_id,omitempty"`
	ActivityType string `json:"activity_type"`
	ActivityName string `json:"activity_name"`

	PageURL   string `json:"page_url,omitempty"`
	PageTitle string `json:"page_title,omitempty"`
	Referrer  string `json:"referrer,omitempty"`

	TemplateID     string `json:"template_id,omitempty"`
	TemplateName   string `json:"template_name,omitempty"`
	TemplateType   string `json:"template_type,omitempty"`
	DownloadFormat string `json:"download_format,omitempty"`

	SearchQuery   string `json:"search_query,omitempty"`
	SearchResults int    `json:"search_results,omitempty"`

	ErrorMessage string `json:"error_message,omitempty"`
	ErrorCode    string `json:"error_code,omitempty"`

	FeatureName string         `json:"feature_name,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`

	UserTier   string `json:"user_tier,omitempty"`
	Country    string `json:"country,omitempty"`
	DeviceType string `json:"device_type,omitempty"`
	Browser    string `json:"browser,omitempty"`
	OS         string `json:"os,omitempty"`
}

// ValidationError collects every problem found in a TrackInput.
type ValidationError struct {
	Fields map[string]string
	errs   []error
}

func (e *ValidationError) add(field string, err error) {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	e.Fields[field] = err.Error()
	e.errs = append(e.errs, err)
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.errs))
	for _, err := range e.errs {
		parts = append(parts, err.Error())
	}
	return "invalid activity: " + strings.Join(parts, "; ")
}

// Unwrap exposes the individual sentinel errors to errors.Is.
func (e *ValidationError) Unwrap() []error {
	return e.errs
}

// Validate checks the required fields. It returns a *ValidationError or nil.
func (in TrackInput) Validate() error {
	var verr ValidationError

	sessionID := strings.TrimSpace(in.SessionID)
	switch {
	case sessionID == "":
		verr.add("session_id", ErrMissingSessionID)
	case len(sessionID) > MaxSessionIDLength:
		verr.add("session_id", ErrSessionIDTooLong)
	}

	if _, err := ParseActivityType(in.ActivityType); err != nil {
		verr.add("activity_type", err)
	}

	if strings.TrimSpace(in.ActivityName) == "" {
		verr.add("activity_name", ErrMissingActivityName)
	}

	if len(verr.errs) > 0 {
		return &verr
	}
	return nil
}

// NewActivityEvent validates in and builds the immutable event carrying the
// given id and timestamp.
func NewActivityEvent(in TrackInput, id string, ts time.Time) (ActivityEvent, error) {
	if err := in.Validate(); err != nil {
		return ActivityEvent{}, err
	}
	activityType, _ := ParseActivityType(in.ActivityType)

	ev := ActivityEvent{
		ID:             id,
		SessionID:      strings.TrimSpace(in.SessionID),
		UserID:         strings.TrimSpace(in.UserID),
		Type:           activityType,
		Name:           strings.TrimSpace(in.ActivityName),
		PageURL:        in.PageURL,
		PageTitle:      in.PageTitle,
		Referrer:       in.Referrer,
		TemplateID:     strings.TrimSpace(in.TemplateID),
		TemplateName:   strings.TrimSpace(in.TemplateName),
		TemplateType:   TemplateType(strings.ToLower(strings.TrimSpace(in.TemplateType))),
		DownloadFormat: strings.ToLower(strings.TrimSpace(in.DownloadFormat)),
		SearchQuery:    in.SearchQuery,
		SearchResults:  in.SearchResults,
		ErrorMessage:   in.ErrorMessage,
		ErrorCode:      in.ErrorCode,
		FeatureName:    in.FeatureName,
		UserTier:       in.UserTier,
		Country:        in.Country,
		DeviceType:     in.DeviceType,
		Browser:        in.Browser,
		OS:             in.OS,
		Timestamp:      ts,
	}
	if len(in.Metadata) > 0 {
		ev.Metadata = maps.Clone(in.Metadata)
	}
	return ev, nil
}
