// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package visitor

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"path"
	"strings"
	"sync"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"golang.org/x/text/language"

	"github.com/olegiv/pulse/internal/geoip"
	"github.com/olegiv/pulse/internal/model"
	"github.com/olegiv/pulse/internal/store"
)

// VisitStore performs the durable visitor upsert.
type VisitStore interface {
	Record(ctx context.Context, arg store.UpsertVisitorSessionParams) (bool, error)
}

// CountryLookup resolves a client IP to a country.
type CountryLookup interface {
	Country(ip string) geoip.Country
}

// Tracker ingests the page view recorded after a successful response.
type Tracker interface {
	Track(ctx context.Context, in model.TrackInput) (model.ActivityEvent, error)
}

// UserFunc returns the authenticated user id and tier for a request, or
// empty strings for anonymous visitors.
type UserFunc func(r *http.Request) (userID, tier string)

// Config configures the resolver.
type Config struct {
	CookieName    string
	CookieMaxAge  time.Duration
	Secure        bool
	RecordTimeout time.Duration
}

// DefaultConfig returns default resolver configuration.
func DefaultConfig() Config {
	return Config{
		CookieName:    "pulse_sid",
		CookieMaxAge:  24 * time.Hour,
		RecordTimeout: 5 * time.Second,
	}
}

// Resolver is the identity middleware.
type Resolver struct {
	cfg     Config
	visits  VisitStore
	geo     CountryLookup
	tracker Tracker
	users   UserFunc
	source  *ContextSource
	logger  *slog.Logger

	wg sync.WaitGroup
}

// Option customises a Resolver.
type Option func(*Resolver)

// WithUserFunc sets the upstream user resolver.
func WithUserFunc(fn UserFunc) Option {
	return func(r *Resolver) { r.users = fn }
}

// WithContextSource makes the resolver invalidate cached session context
// after each durable upsert.
func WithContextSource(s *ContextSource) Option {
	return func(r *Resolver) { r.source = s }
}

// NewResolver creates the identity middleware. tracker may be nil to skip
// page view recording.
func NewResolver(cfg Config, visits VisitStore, geo CountryLookup, tracker Tracker, logger *slog.Logger, opts ...Option) *Resolver {
	def := DefaultConfig()
	if cfg.CookieName == "" {
		cfg.CookieName = def.CookieName
	}
	if cfg.CookieMaxAge <= 0 {
		cfg.CookieMaxAge = def.CookieMaxAge
	}
	if cfg.RecordTimeout <= 0 {
		cfg.RecordTimeout = def.RecordTimeout
	}

	r := &Resolver{
		cfg:     cfg,
		visits:  visits,
		geo:     geo,
		tracker: tracker,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

var skipPrefixes = []string{"/api/", "/admin", "/health", "/static/", "/assets/"}

var staticExtensions = map[string]bool{
	".css": true, ".js": true, ".map": true, ".png": true, ".jpg": true,
	".jpeg": true, ".gif": true, ".svg": true, ".webp": true, ".ico": true,
	".woff": true, ".woff2": true, ".ttf": true, ".txt": true, ".xml": true,
}

func skip(r *http.Request) bool {
	if r.Method != http.MethodGet {
		return true
	}
	p := r.URL.Path
	for _, prefix := range skipPrefixes {
		if strings.HasPrefix(p, prefix) {
			return true
		}
	}
	return staticExtensions[strings.ToLower(path.Ext(p))]
}

// Middleware resolves the visitor, stores the Identity in the request
// context and, after a 200 response, records a page view.
func (rs *Resolver) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if skip(r) {
			next.ServeHTTP(w, r)
			return
		}

		ua := parseUserAgent(r.UserAgent())
		if ua.Bot {
			next.ServeHTTP(w, r)
			return
		}

		id := rs.resolve(w, r, ua)
		r = r.WithContext(WithIdentity(r.Context(), id))

		rs.recordVisit(id, r)

		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		if status := ww.Status(); status == 0 || status == http.StatusOK {
			rs.trackPageView(r, id)
		}
	})
}

// Identify resolves the visitor of a request the middleware does not cover,
// such as a beacon POST to the track endpoint. It issues the cookie and
// records the visit like the middleware, but never tracks a page view.
func (rs *Resolver) Identify(w http.ResponseWriter, r *http.Request) Identity {
	id := rs.resolve(w, r, parseUserAgent(r.UserAgent()))
	rs.recordVisit(id, r)
	return id
}

func (rs *Resolver) resolve(w http.ResponseWriter, r *http.Request, ua parsedUA) Identity {
	id := Identity{
		DeviceType: ua.DeviceType,
		Browser:    ua.Browser,
		OS:         ua.OS,
		Country:    geoip.UnknownCountry,
		Language:   primaryLanguage(r.Header.Get("Accept-Language")),
	}

	if c, err := r.Cookie(rs.cfg.CookieName); err == nil && validSessionID(c.Value) {
		id.SessionID = c.Value
	} else {
		id.SessionID = newSessionID()
		id.NewSession = true
		rs.setCookie(w, id.SessionID)
	}

	if rs.geo != nil {
		id.Country = rs.geo.Country(clientIP(r)).Name
	}
	if rs.users != nil {
		id.UserID, id.UserTier = rs.users(r)
	}
	return id
}

func (rs *Resolver) setCookie(w http.ResponseWriter, sessionID string) {
	http.SetCookie(w, &http.Cookie{
		Name:     rs.cfg.CookieName,
		Value:    sessionID,
		Path:     "/",
		MaxAge:   int(rs.cfg.CookieMaxAge.Seconds()),
		HttpOnly: true,
		Secure:   rs.cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// recordVisit upserts the durable session in the background.
func (rs *Resolver) recordVisit(id Identity, r *http.Request) {
	arg := store.UpsertVisitorSessionParams{
		SessionID:    id.SessionID,
		UserID:       id.UserID,
		UserTier:     id.UserTier,
		Country:      id.Country,
		DeviceType:   id.DeviceType,
		Browser:      id.Browser,
		Os:           id.OS,
		Language:     id.Language,
		LandingPage:  r.URL.Path,
		Referrer:     r.Referer(),
		IsRegistered: id.Registered(),
		SeenAt:       time.Now().UTC(),
	}

	rs.wg.Add(1)
	go func() {
		defer rs.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), rs.cfg.RecordTimeout)
		defer cancel()

		created, err := rs.visits.Record(ctx, arg)
		if err != nil {
			rs.logger.Warn("visitor session upsert failed", "category", model.LogCategoryIngest,
				"session_id", arg.SessionID, "error", err)
			return
		}
		if rs.source != nil {
			rs.source.Invalidate(ctx, arg.SessionID)
		}
		if created {
			rs.logger.Debug("visitor session created", "session_id", arg.SessionID, "country", arg.Country)
		}
	}()
}

func (rs *Resolver) trackPageView(r *http.Request, id Identity) {
	if rs.tracker == nil {
		return
	}

	_, err := rs.tracker.Track(context.WithoutCancel(r.Context()), model.TrackInput{
		SessionID:    id.SessionID,
		UserID:       id.UserID,
		ActivityType: string(model.ActivityPageView),
		ActivityName: r.URL.Path,
		PageURL:      r.URL.String(),
		Referrer:     r.Referer(),
		UserTier:     id.UserTier,
		Country:      id.Country,
		DeviceType:   id.DeviceType,
		Browser:      id.Browser,
		OS:           id.OS,
	})
	if err != nil {
		rs.logger.Warn("page view track failed", "session_id", id.SessionID, "error", err)
	}
}

// Wait blocks until background visitor upserts have finished.
func (rs *Resolver) Wait() {
	rs.wg.Wait()
}

func validSessionID(v string) bool {
	if v == "" || len(v) > model.MaxSessionIDLength {
		return false
	}
	for _, c := range v {
		if !(c == '-' || c == '_' || c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z') {
			return false
		}
	}
	return true
}

func newSessionID() string {
	if id, err := uuid.NewV7(); err == nil {
		return id.String()
	}
	return uuid.NewString()
}

// primaryLanguage returns the base language of the highest-weighted tag, or
// an empty string.
func primaryLanguage(header string) string {
	if header == "" {
		return ""
	}
	tags, _, err := language.ParseAcceptLanguage(header)
	if err != nil || len(tags) == 0 {
		return ""
	}
	base, conf := tags[0].Base()
	if conf == language.No {
		return ""
	}
	return base.String()
}

// clientIP reads RemoteAddr, which chi's RealIP middleware has already
// replaced with the proxy-reported address.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
