// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package model

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestParseActivityType(t *testing.T) {
	tests := []struct {
		in      string
		want    ActivityType
		wantErr bool
	}{
		{"page_view", ActivityPageView, false},
		{"PAGE_VIEW", ActivityPageView, false},
		{"  Template_Download ", ActivityTemplateDownload, false},
		{"custom", ActivityCustom, false},
		{"", "", true},
		{"click", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseActivityType(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrUnknownActivityType) {
					t.Fatalf("ParseActivityType(%q) error = %v, want ErrUnknownActivityType", tt.in, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseActivityType(%q) error: %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("ParseActivityType(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestTemplateTypeRecognized(t *testing.T) {
	if !TemplateSnap.Recognized() || !TemplatePro.Recognized() {
		t.Error("snap and pro must be recognized")
	}
	if TemplateType("enterprise").Recognized() {
		t.Error("enterprise must not be recognized")
	}
}

func TestTrackInputValidate(t *testing.T) {
	valid := TrackInput{SessionID: "s1", ActivityType: "page_view", ActivityName: "Home"}
	if err := valid.Validate(); err != nil {
		t.Fatalf("Validate() on valid input: %v", err)
	}

	tests := []struct {
		name    string
		in      TrackInput
		wantErr error
		field   string
	}{
		{"missing session", TrackInput{ActivityType: "page_view", ActivityName: "Home"}, ErrMissingSessionID, "session_id"},
		{"blank session", TrackInput{SessionID: "   ", ActivityType: "page_view", ActivityName: "Home"}, ErrMissingSessionID, "session_id"},
		{"long session", TrackInput{SessionID: strings.Repeat("x", MaxSessionIDLength+1), ActivityType: "page_view", ActivityName: "Home"}, ErrSessionIDTooLong, "session_id"},
		{"unknown type", TrackInput{SessionID: "s1", ActivityType: "click", ActivityName: "Home"}, ErrUnknownActivityType, "activity_type"},
		{"missing name", TrackInput{SessionID: "s1", ActivityType: "page_view"}, ErrMissingActivityName, "activity_name"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.in.Validate()
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Validate() = %v, want %v", err, tt.wantErr)
			}
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("Validate() error is %T, want *ValidationError", err)
			}
			if _, ok := verr.Fields[tt.field]; !ok {
				t.Errorf("Fields = %v, want key %q", verr.Fields, tt.field)
			}
		})
	}
}

func TestTrackInputValidate_CollectsAllErrors(t *testing.T) {
	err := TrackInput{}.Validate()

	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("Validate() error is %T, want *ValidationError", err)
	}
	if len(verr.Fields) != 3 {
		t.Errorf("len(Fields) = %d, want 3 (%v)", len(verr.Fields), verr.Fields)
	}
	for _, want := range []error{ErrMissingSessionID, ErrUnknownActivityType, ErrMissingActivityName} {
		if !errors.Is(err, want) {
			t.Errorf("errors.Is(err, %v) = false", want)
		}
	}
}

func TestNewActivityEvent(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	in := TrackInput{
		SessionID:    " s1 ",
		UserID:       "u1",
		ActivityType: "TEMPLATE_DOWNLOAD",
		ActivityName: "Download",
		TemplateID:   "t1",
		TemplateType: "Snap",
		Metadata:     map[string]any{"k": "v"},
	}

	ev, err := NewActivityEvent(in, "id-1", ts)
	if err != nil {
		t.Fatalf("NewActivityEvent: %v", err)
	}

	if ev.ID != "id-1" || !ev.Timestamp.Equal(ts) {
		t.Errorf("id/timestamp = %q/%v", ev.ID, ev.Timestamp)
	}
	if ev.SessionID != "s1" {
		t.Errorf("SessionID = %q, want trimmed %q", ev.SessionID, "s1")
	}
	if ev.Type != ActivityTemplateDownload {
		t.Errorf("Type = %q, want %q", ev.Type, ActivityTemplateDownload)
	}
	if ev.TemplateType != TemplateSnap {
		t.Errorf("TemplateType = %q, want %q", ev.TemplateType, TemplateSnap)
	}
	if !ev.HasTemplate() {
		t.Error("HasTemplate() = false, want true")
	}

	in.Metadata["k"] = "changed"
	if ev.Metadata["k"] != "v" {
		t.Error("event metadata must not alias the input map")
	}
}

func TestNewActivityEvent_Invalid(t *testing.T) {
	_, err := NewActivityEvent(TrackInput{ActivityType: "page_view", ActivityName: "x"}, "id", time.Now())
	if !errors.Is(err, ErrMissingSessionID) {
		t.Fatalf("error = %v, want ErrMissingSessionID", err)
	}
}

func TestActivityEventClone(t *testing.T) {
	ev := ActivityEvent{ID: "a", Metadata: map[string]any{"k": 1}}
	c := ev.Clone()
	c.Metadata["k"] = 2
	if ev.Metadata["k"] != 1 {
		t.Error("Clone must copy metadata")
	}
}

func TestConversionRate(t *testing.T) {
	tests := []struct {
		views, downloads int
		want             float64
	}{
		{0, 0, 0},
		{0, 5, 0},
		{4, 1, 25},
		{2, 2, 100},
	}
	for _, tt := range tests {
		if got := ConversionRate(tt.views, tt.downloads); got != tt.want {
			t.Errorf("ConversionRate(%d, %d) = %v, want %v", tt.views, tt.downloads, got, tt.want)
		}
	}
}

func TestSessionContextApply(t *testing.T) {
	ctx := SessionContext{UserTier: "pro", Country: "Germany", DeviceType: "mobile"}

	ev := ctx.Apply(ActivityEvent{Country: "France"})
	if ev.Country != "France" {
		t.Errorf("Country = %q, present values must win", ev.Country)
	}
	if ev.UserTier != "pro" || ev.DeviceType != "mobile" {
		t.Errorf("enriched = %q/%q", ev.UserTier, ev.DeviceType)
	}
	if NeedsEnrichment(ev) {
		t.Error("NeedsEnrichment after Apply = true")
	}
}
