// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package realtime

// ring is a fixed-capacity buffer of event ids. Pushing onto a full ring
// overwrites the oldest id.
type ring struct {
	buf  []string
	head int // next write position
	size int
}

func newRing(capacity int) *ring {
	if capacity <= 0 {
		capacity = DefaultRecentCapacity
	}
	return &ring{buf: make([]string, capacity)}
}

func (r *ring) push(id string) {
	r.buf[r.head] = id
	r.head = (r.head + 1) % len(r.buf)
	if r.size < len(r.buf) {
		r.size++
	}
}

func (r *ring) len() int { return r.size }

func (r *ring) capacity() int { return len(r.buf) }

// newest returns up to limit ids, newest first. limit <= 0 returns all.
func (r *ring) newest(limit int) []string {
	n := r.size
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]string, 0, n)
	idx := r.head
	for range n {
		idx = (idx - 1 + len(r.buf)) % len(r.buf)
		out = append(out, r.buf[idx])
	}
	return out
}

// retain drops every id for which keep returns false, preserving order.
// It returns the number of ids removed.
func (r *ring) retain(keep func(id string) bool) int {
	ids := r.newest(0)
	r.reset()

	removed := 0
	for i := len(ids) - 1; i >= 0; i-- {
		if !keep(ids[i]) {
			removed++
			continue
		}
		r.push(ids[i])
	}
	return removed
}

func (r *ring) reset() {
	clear(r.buf)
	r.head = 0
	r.size = 0
}
