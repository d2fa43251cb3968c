// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package ga4

import (
	"context"
	"fmt"
	"strings"

	"github.com/olegiv/pulse/internal/model"
)

// maxEventNameLen is the protocol's limit on event names.
const maxEventNameLen = 40

// Sink adapts a Client to the fan-out dispatcher.
type Sink struct {
	client *Client
}

// NewSink creates the external analytics sink.
func NewSink(client *Client) *Sink {
	return &Sink{client: client}
}

// Name implements ingest.Sink.
func (s *Sink) Name() string { return "ga4" }

// Deliver sends the event mapped by BuildPayload.
func (s *Sink) Deliver(ctx context.Context, ev model.ActivityEvent) error {
	return s.client.Send(ctx, BuildPayload(ev))
}

// BuildPayload maps an activity to its Measurement Protocol payload.
func BuildPayload(ev model.ActivityEvent) Payload {
	p := Payload{
		ClientID:        ev.SessionID,
		UserID:          ev.UserID,
		TimestampMicros: ev.Timestamp.UnixMicro(),
		Events:          []Event{mapEvent(ev)},
	}
	if ev.UserTier != "" {
		p.UserProperties = map[string]UserProperty{"user_tier": {Value: ev.UserTier}}
	}
	return p
}

// params drops empty strings so that unset fields are omitted, matching how
// the collect endpoint treats absent parameters.
type params map[string]any

func (p params) set(key string, value any) params {
	if s, ok := value.(string); ok && s == "" {
		return p
	}
	if value == nil {
		return p
	}
	p[key] = value
	return p
}

func tierOrFree(tier string) string {
	if tier == "" {
		return "free"
	}
	return tier
}

func metaString(ev model.ActivityEvent, key, fallback string) string {
	if v, ok := ev.Metadata[key]; ok && v != nil {
		if s := fmt.Sprint(v); s != "" {
			return s
		}
	}
	return fallback
}

func mapEvent(ev model.ActivityEvent) Event {
	p := params{}

	switch ev.Type {
	case model.ActivityPageView:
		visitor := "anonymous"
		if ev.UserID != "" {
			visitor = "registered"
		}
		title := ev.PageTitle
		if title == "" {
			title = "Unknown"
		}
		p.set("page_location", ev.PageURL).
			set("page_title", title).
			set("page_referrer", ev.Referrer).
			set("country", ev.Country).
			set("device_type", ev.DeviceType).
			set("visitor_type", visitor)
		return Event{Name: "page_view", Params: p}

	case model.ActivityTemplateDownload:
		p.set("template_id", ev.TemplateID).
			set("template_name", ev.TemplateName).
			set("template_type", string(ev.TemplateType)).
			set("download_type", ev.DownloadFormat).
			set("user_tier", tierOrFree(ev.UserTier)).
			set("success", true).
			set("event_category", "downloads").
			set("event_label", string(ev.TemplateType)+"_"+ev.DownloadFormat)
		return Event{Name: "template_download", Params: p}

	case model.ActivityTemplateView:
		p.set("item_id", ev.TemplateID).
			set("item_name", ev.TemplateName).
			set("item_category", "template").
			set("item_variant", string(ev.TemplateType)).
			set("template_type", string(ev.TemplateType)).
			set("user_tier", tierOrFree(ev.UserTier)).
			set("event_category", "engagement").
			set("event_label", "template_view")
		return Event{Name: "view_item", Params: p}

	case model.ActivityUserRegistration:
		p.set("method", metaString(ev, "method", "email")).
			set("user_tier", ev.UserTier).
			set("event_category", "user_lifecycle").
			set("event_label", "registration")
		return Event{Name: "sign_up", Params: p}

	case model.ActivityUserLogin:
		p.set("method", metaString(ev, "method", "email")).
			set("user_tier", ev.UserTier).
			set("event_category", "user_lifecycle").
			set("event_label", "login")
		return Event{Name: "login", Params: p}

	case model.ActivitySubscriptionStart:
		from := metaString(ev, "from_tier", "free")
		to := metaString(ev, "to_tier", ev.UserTier)
		value := 0.0
		if v, ok := ev.Metadata["value"].(float64); ok {
			value = v
		}
		p.set("subscription_type", metaString(ev, "subscription_type", "")).
			set("from_tier", from).
			set("to_tier", to).
			set("value", value).
			set("event_category", "conversion").
			set("event_label", from+"_to_"+to)
		return Event{Name: "subscription_start", Params: p}

	case model.ActivitySearchQuery:
		p.set("search_term", ev.SearchQuery).
			set("search_category", metaString(ev, "category", "")).
			set("search_results", ev.SearchResults).
			set("event_category", "search").
			set("event_label", ev.SearchQuery)
		return Event{Name: "search", Params: p}

	case model.ActivityErrorOccurred:
		errType := ev.ErrorCode
		if errType == "" {
			errType = "unknown"
		}
		p.set("description", ev.ErrorMessage).
			set("error_type", errType).
			set("page_location", ev.PageURL).
			set("fatal", false).
			set("event_category", "errors").
			set("event_label", errType)
		return Event{Name: "exception", Params: p}

	case model.ActivityFeatureUsed:
		feature := ev.FeatureName
		if feature == "" {
			feature = ev.Name
		}
		p.set("feature_name", feature).
			set("user_tier", ev.UserTier).
			set("event_category", "features").
			set("event_label", feature)
		return Event{Name: "feature_use", Params: p}

	default:
		for k, v := range ev.Metadata {
			p.set(k, v)
		}
		p.set("user_tier", tierOrFree(ev.UserTier))
		return Event{Name: EventName(ev.Name), Params: p}
	}
}

// EventName turns a free-form activity name into a valid event name:
// lower case letters, digits and underscores, starting with a letter, at
// most 40 characters.
func EventName(name string) string {
	var b strings.Builder
	lastUnderscore := false
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastUnderscore = false
		case !lastUnderscore && b.Len() > 0:
			b.WriteByte('_')
			lastUnderscore = true
		}
	}

	out := strings.TrimRight(b.String(), "_")
	if out == "" || out[0] < 'a' || out[0] > 'z' {
		out = "custom_" + out
		out = strings.TrimRight(out, "_")
	}
	if len(out) > maxEventNameLen {
		out = strings.TrimRight(out[:maxEventNameLen], "_")
	}
	return out
}
