package cache

import (
	"sort"
	"sync"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/dreamware/shardmap/internal/model"
)

// pointCacheCapacity bounds the LRU backing a list (point-mapping) shard
// map: unlike a range shard map, where the number of distinct entries is
// bounded by the number of ranges actually carved out, a point-mapping
// shard map can in principle see a distinct key on every lookup over a
// long process lifetime, so its cache needs a capacity bound independent
// of TTL (TTL staleness and LRU capacity eviction are orthogonal; see
// DESIGN.md).
const pointCacheCapacity = 8192

// mapShard is the cache's per-shard-map-id segment. A range shard map
// keeps a sorted slice of entries (mirroring model.Snapshot.MappingForKey's
// binary search); a list shard map keeps a capacity-bounded LRU keyed by
// normalized key bytes. Either way byID lets delete_mapping locate an
// entry by id alone without knowing its range.
type mapShard struct {
	mu   sync.RWMutex
	kind model.MapKind

	ranges []*Entry // sorted by Mapping.Range.Low; used when kind == MapKindRange
	points *lru.Cache[string, *Entry]

	byID map[uuid.UUID]*Entry
}

func newMapShard(kind model.MapKind) *mapShard {
	s := &mapShard{kind: kind, byID: make(map[uuid.UUID]*Entry)}
	if kind == model.MapKindList {
		c, _ := lru.New[string, *Entry](pointCacheCapacity)
		s.points = c
	}
	return s
}

func pointKey(k model.Key) string { return string(k.Raw()) }

// lookup returns the entry covering key, if present.
func (s *mapShard) lookup(key model.Key) (*Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.kind == model.MapKindList {
		if s.points == nil {
			return nil, false
		}
		return s.points.Get(pointKey(key))
	}
	idx := sort.Search(len(s.ranges), func(i int) bool {
		cmp, _ := s.ranges[i].Mapping.Range.Low.Compare(key)
		return cmp > 0
	})
	if idx == 0 {
		return nil, false
	}
	e := s.ranges[idx-1]
	if e.Mapping.Range.Contains(key) {
		return e, true
	}
	return nil, false
}

// insertRange inserts into the sorted slice, first evicting every entry
// whose range intersects m's, per spec §4.C's overlap-eviction invariant.
// Returns the number of entries evicted.
func (s *mapShard) insertRange(e *Entry) (evicted int) {
	kept := s.ranges[:0:0]
	for _, existing := range s.ranges {
		if existing.Mapping.Range.Intersects(e.Mapping.Range) {
			delete(s.byID, existing.Mapping.ID)
			evicted++
			continue
		}
		kept = append(kept, existing)
	}
	kept = append(kept, e)
	sort.Slice(kept, func(i, j int) bool {
		cmp, _ := kept[i].Mapping.Range.Low.Compare(kept[j].Mapping.Range.Low)
		return cmp < 0
	})
	s.ranges = kept
	s.byID[e.Mapping.ID] = e
	return evicted
}

// insertPoint inserts into the LRU, evicting any existing entry for the
// same exact key (spec's "equal key" eviction rule for list maps).
func (s *mapShard) insertPoint(e *Entry) (evicted int) {
	key := pointKey(e.Mapping.Range.Low)
	if old, ok := s.points.Get(key); ok {
		delete(s.byID, old.Mapping.ID)
		evicted = 1
	}
	s.points.Add(key, e)
	s.byID[e.Mapping.ID] = e
	return evicted
}

func (s *mapShard) deleteMapping(mappingID uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.byID[mappingID]
	if !ok {
		return false
	}
	delete(s.byID, mappingID)
	if s.kind == model.MapKindList {
		s.points.Remove(pointKey(e.Mapping.Range.Low))
		return true
	}
	for i, existing := range s.ranges {
		if existing.Mapping.ID == mappingID {
			s.ranges = append(s.ranges[:i], s.ranges[i+1:]...)
			break
		}
	}
	return true
}
