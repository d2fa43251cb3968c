// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package geoip resolves client IPs to countries using a MaxMind
// GeoLite2-Country database. Lookups degrade to Unknown when no database is
// configured.
package geoip

import (
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/oschwald/maxminddb-golang"
)

// Names reported for addresses that cannot be resolved to a real country.
const (
	UnknownCountry = "Unknown"
	LocalNetwork   = "Local Network"
	localCode      = "LOCAL"
)

var privateCIDRs []*net.IPNet

func init() {
	for _, block := range []string{
		"10.0.0.0/8",
		"172.16.0.0/12",
		"192.168.0.0/16",
		"100.64.0.0/10", // carrier-grade NAT
		"fc00::/7",
		"fe80::/10",
	} {
		if _, cidr, err := net.ParseCIDR(block); err == nil {
			privateCIDRs = append(privateCIDRs, cidr)
		}
	}
}

// Country is the result of a lookup.
type Country struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// Unknown reports whether the lookup produced no usable country.
func (c Country) Unknown() bool {
	return c.Name == "" || c.Name == UnknownCountry
}

type geoRecord struct {
	Country struct {
		ISOCode string            `maxminddb:"iso_code"`
		Names   map[string]string `maxminddb:"names"`
	} `maxminddb:"country"`
}

// Lookup holds the open database. It is safe for concurrent use; Reload swaps
// the reader under a write lock.
type Lookup struct {
	mu      sync.RWMutex
	db      *maxminddb.Reader
	path    string
	modTime time.Time
}

// Open loads the database at path. An empty path returns a Lookup that
// reports every public address as Unknown.
func Open(path string) (*Lookup, error) {
	g := &Lookup{path: path}
	if path == "" {
		return g, nil
	}
	if err := g.load(); err != nil {
		return g, err
	}
	return g, nil
}

// load opens or reopens the database when the file changed. Caller holds mu
// for writing, or owns g exclusively.
func (g *Lookup) load() error {
	info, err := os.Stat(g.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("GeoIP database not found: %s", g.path)
		}
		return fmt.Errorf("GeoIP database stat: %w", err)
	}

	if g.db != nil && info.ModTime().Equal(g.modTime) {
		return nil
	}

	db, err := maxminddb.Open(g.path)
	if err != nil {
		return fmt.Errorf("opening GeoIP database: %w", err)
	}

	if g.db != nil {
		_ = g.db.Close()
	}
	g.db = db
	g.modTime = info.ModTime()
	return nil
}

// Reload reopens the database if the file on disk has been replaced. The
// previous reader stays active when the new file cannot be opened.
func (g *Lookup) Reload() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.path == "" {
		return nil
	}
	return g.load()
}

// Enabled reports whether a database is loaded.
func (g *Lookup) Enabled() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.db != nil
}

// Country resolves ip. Private and loopback addresses map to LocalNetwork;
// anything unresolvable maps to UnknownCountry.
func (g *Lookup) Country(ip string) Country {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return Country{Name: UnknownCountry}
	}
	if parsed.IsLoopback() || isPrivate(parsed) {
		return Country{Code: localCode, Name: LocalNetwork}
	}

	g.mu.RLock()
	defer g.mu.RUnlock()

	if g.db == nil {
		return Country{Name: UnknownCountry}
	}

	var rec geoRecord
	if err := g.db.Lookup(parsed, &rec); err != nil || rec.Country.ISOCode == "" {
		return Country{Name: UnknownCountry}
	}

	name := rec.Country.Names["en"]
	if name == "" {
		name = rec.Country.ISOCode
	}
	return Country{Code: rec.Country.ISOCode, Name: name}
}

// Close closes the database.
func (g *Lookup) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.db == nil {
		return nil
	}
	err := g.db.Close()
	g.db = nil
	return err
}

func isPrivate(ip net.IP) bool {
	for _, cidr := range privateCIDRs {
		if cidr.Contains(ip) {
			return true
		}
	}
	return false
}
