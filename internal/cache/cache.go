package cache

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dreamware/shardmap/internal/metrics"
	"github.com/dreamware/shardmap/internal/model"
)

// InsertPolicy controls how Insert behaves when an entry already covers
// the incoming mapping's key/range.
type InsertPolicy int

const (
	// OverwriteExisting replaces the existing entry unconditionally.
	OverwriteExisting InsertPolicy = iota
	// UpdateTimeToLive replaces an existing entry's Mapping value with the
	// incoming one and resets its TTL window, used by the mapper after
	// revalidating a stale hit.
	UpdateTimeToLive
	// NeverOverwrite leaves an existing entry untouched.
	NeverOverwrite
)

// Counter names the observability hooks increment_counter records,
// per spec §4.C.
type Counter int

const (
	CounterHit Counter = iota
	CounterMiss
	CounterEviction
)

// Cache is the mapper's process-local mapping cache: one mapShard per
// shard map id, created lazily, so unrelated shard maps never contend for
// the same lock (spec §4.C: "SHOULD NOT serialize against the whole
// cache").
type Cache struct {
	mu         sync.RWMutex
	shards     map[uuid.UUID]*mapShard
	defaultTTL time.Duration
	metrics    metrics.Sink
	now        func() time.Time
}

// Option configures a Cache at construction.
type Option func(*Cache)

// WithDefaultTTL overrides the TTL applied to entries inserted without an
// explicit one.
func WithDefaultTTL(ttl time.Duration) Option {
	return func(c *Cache) { c.defaultTTL = ttl }
}

// WithMetrics wires a metrics.Sink for increment_counter observations.
func WithMetrics(sink metrics.Sink) Option {
	return func(c *Cache) { c.metrics = sink }
}

// WithClock overrides the time source, for deterministic tests of
// TTL-expiry behavior.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// New constructs an empty Cache. Default TTL is five minutes, matching the
// client library default a ShardMapManager ships with absent explicit
// configuration (see internal/config).
func New(opts ...Option) *Cache {
	c := &Cache{
		shards:     make(map[uuid.UUID]*mapShard),
		defaultTTL: 5 * time.Minute,
		metrics:    metrics.New(nil),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Cache) shardFor(shardMapID uuid.UUID, kind model.MapKind) *mapShard {
	c.mu.RLock()
	s, ok := c.shards[shardMapID]
	c.mu.RUnlock()
	if ok {
		return s
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok = c.shards[shardMapID]; ok {
		return s
	}
	s = newMapShard(kind)
	c.shards[shardMapID] = s
	return s
}

// Lookup returns the cached entry covering key in shardMapID, if any. A
// returned entry may already have expired its TTL (Entry.HasExpired);
// Lookup reports that via the bool return but still returns the entry, so
// the caller can choose to use it speculatively while revalidating.
func (c *Cache) Lookup(shardMapID uuid.UUID, mapKind model.MapKind, key model.Key) (entry *Entry, fresh bool, found bool) {
	c.mu.RLock()
	s, ok := c.shards[shardMapID]
	c.mu.RUnlock()
	if !ok {
		c.metrics.CacheMiss(shardMapID.String())
		return nil, false, false
	}
	e, ok := s.lookup(key)
	if !ok {
		c.metrics.CacheMiss(shardMapID.String())
		return nil, false, false
	}
	c.metrics.CacheHit(shardMapID.String())
	return e, !e.HasExpired(c.now()), true
}

// Insert stores m in shardMapID's segment under policy. ttl of zero uses
// the cache's default TTL.
func (c *Cache) Insert(shardMapID uuid.UUID, mapKind model.MapKind, m model.Mapping, ttl time.Duration, policy InsertPolicy) {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	s := c.shardFor(shardMapID, mapKind)

	s.mu.Lock()
	defer s.mu.Unlock()

	if policy != OverwriteExisting {
		if existing, ok := lockedLookup(s, m.Range.Low); ok {
			if policy == NeverOverwrite {
				return
			}
			// UpdateTimeToLive: store the incoming mapping value in the
			// existing entry and refresh its freshness window.
			existing.Mapping = m
			existing.ResetTTL(c.now())
			return
		}
	}

	e := newEntry(m, ttl, c.now())
	var evicted int
	if mapKind == model.MapKindList {
		evicted = s.insertPoint(e)
	} else {
		evicted = s.insertRange(e)
	}
	for i := 0; i < evicted; i++ {
		c.metrics.CacheEviction(shardMapID.String())
	}
}

// lockedLookup is lookup's logic without re-acquiring s.mu, for callers
// that already hold it (Insert).
func lockedLookup(s *mapShard, key model.Key) (*Entry, bool) {
	if s.kind == model.MapKindList {
		if s.points == nil {
			return nil, false
		}
		return s.points.Get(pointKey(key))
	}
	for _, e := range s.ranges {
		if e.Mapping.Range.Contains(key) {
			return e, true
		}
	}
	return nil, false
}

// DeleteMapping removes mappingID from shardMapID's segment, if present.
func (c *Cache) DeleteMapping(shardMapID uuid.UUID, mappingID uuid.UUID) {
	c.mu.RLock()
	s, ok := c.shards[shardMapID]
	c.mu.RUnlock()
	if !ok {
		return
	}
	if s.deleteMapping(mappingID) {
		c.metrics.CacheEviction(shardMapID.String())
	}
}

// DeleteShardMap drops shardMapID's entire segment, used when a shard map
// itself is deleted or the coordinator detects a store-version mismatch
// serious enough to distrust every cached entry for it.
func (c *Cache) DeleteShardMap(shardMapID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.shards, shardMapID)
}

// IncrementCounter records an observability-only counter not already
// implied by Lookup/Insert/Delete, e.g. a mapper-initiated revalidation.
func (c *Cache) IncrementCounter(shardMapID uuid.UUID, counter Counter) {
	switch counter {
	case CounterHit:
		c.metrics.CacheHit(shardMapID.String())
	case CounterMiss:
		c.metrics.CacheMiss(shardMapID.String())
	case CounterEviction:
		c.metrics.CacheEviction(shardMapID.String())
	}
}
