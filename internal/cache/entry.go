package cache

import (
	"time"

	"github.com/dreamware/shardmap/internal/model"
)

// Entry is the cache's value type: a cached Mapping plus the bookkeeping
// needed to decide staleness. The zero value is not meaningful; entries
// are created by Insert.
type Entry struct {
	Mapping   model.Mapping
	createdAt time.Time
	ttl       time.Duration
}

func newEntry(m model.Mapping, ttl time.Duration, now time.Time) *Entry {
	return &Entry{Mapping: m, createdAt: now, ttl: ttl}
}

// HasExpired reports whether the entry's TTL has elapsed as of now. Per
// spec §4.C this is advisory: callers decide what to do with an expired
// entry (the mapper revalidates against the GSM before trusting it; it
// does not simply drop the entry).
func (e *Entry) HasExpired(now time.Time) bool {
	if e.ttl <= 0 {
		return false
	}
	return now.Sub(e.createdAt) >= e.ttl
}

// ResetTTL restarts the entry's freshness window from now, used after a
// successful revalidation against the GSM so the same entry is not
// immediately reported stale again.
func (e *Entry) ResetTTL(now time.Time) {
	e.createdAt = now
}
