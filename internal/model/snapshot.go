package model

import (
	"sort"

	"github.com/google/uuid"

	"github.com/dreamware/shardmap/internal/errs"
)

// Snapshot is a read-only, self-consistent view of one shard map's shards
// and mappings, as fetched from GSM (or, during LSM-side validation, from
// an LSM) at a point in time. A store builds Snapshots from its rows with
// NewSnapshot; the cache and mapper only ever see Snapshots, never the live
// store.
//
// A Snapshot's mappings do not overlap because the store rejects an
// overlapping mapping when it is written; NewSnapshot does not check this
// itself (ValidateNoOverlap does, on demand). Every mapping's target shard
// is present in the same Snapshot.
type Snapshot struct {
	ShardMap ShardMap
	shards   []Shard
	mappings []Mapping
}

// NewSnapshot builds a Snapshot from shard and mapping rows, deep-copying
// both slices so later mutation of the caller's slices cannot affect the
// Snapshot.
func NewSnapshot(sm ShardMap, shards []Shard, mappings []Mapping) Snapshot {
	s := Snapshot{
		ShardMap: sm,
		shards:   append([]Shard(nil), shards...),
		mappings: append([]Mapping(nil), mappings...),
	}
	sort.Slice(s.mappings, func(i, j int) bool {
		cmp, _ := s.mappings[i].Range.Low.Compare(s.mappings[j].Range.Low)
		return cmp < 0
	})
	return s
}

// Shards returns a copy of every shard in the snapshot.
func (s Snapshot) Shards() []Shard {
	return append([]Shard(nil), s.shards...)
}

// Mappings returns a copy of every mapping in the snapshot, ordered by
// range low endpoint.
func (s Snapshot) Mappings() []Mapping {
	return append([]Mapping(nil), s.mappings...)
}

// ShardByID returns the shard with the given id.
func (s Snapshot) ShardByID(id uuid.UUID) (Shard, bool) {
	for _, sh := range s.shards {
		if sh.ID == id {
			return sh, true
		}
	}
	return Shard{}, false
}

// ShardByLocation returns the shard at the given location.
func (s Snapshot) ShardByLocation(loc Location) (Shard, bool) {
	for _, sh := range s.shards {
		if sh.Location.Equals(loc) {
			return sh, true
		}
	}
	return Shard{}, false
}

// MappingByID returns the mapping with the given id.
func (s Snapshot) MappingByID(id uuid.UUID) (Mapping, bool) {
	for _, m := range s.mappings {
		if m.ID == id {
			return m, true
		}
	}
	return Mapping{}, false
}

// MappingForKey returns the mapping whose range contains key, implementing
// the directory's point-lookup semantics: exactly zero or one mapping can
// ever contain a given key, because mappings in a snapshot never overlap.
func (s Snapshot) MappingForKey(key Key) (Mapping, bool) {
	// Mappings are sorted by Low; binary search for the last mapping whose
	// Low is <= key, then check containment.
	idx := sort.Search(len(s.mappings), func(i int) bool {
		cmp, _ := s.mappings[i].Range.Low.Compare(key)
		return cmp > 0
	})
	if idx == 0 {
		return Mapping{}, false
	}
	m := s.mappings[idx-1]
	if m.Range.Contains(key) {
		return m, true
	}
	return Mapping{}, false
}

// MappingsForRange returns every mapping intersecting r, in Low order.
func (s Snapshot) MappingsForRange(r Range) []Mapping {
	var out []Mapping
	for _, m := range s.mappings {
		if m.Range.Intersects(r) {
			out = append(out, m)
		}
	}
	return out
}

// ShardsWithMappings returns the set of shard ids that are the target of at
// least one mapping, used by RemoveShard's ShardHasMappings precondition.
func (s Snapshot) ShardsWithMappings() map[uuid.UUID]struct{} {
	out := make(map[uuid.UUID]struct{})
	for _, m := range s.mappings {
		out[m.Shard.ID] = struct{}{}
	}
	return out
}

// ValidateNoOverlap checks invariant 1 (no two mappings in a shard map
// overlap) and invariant 2 (every mapping's target shard belongs to the
// same shard map). It is a defense-in-depth check a caller can run on a
// Snapshot built from store rows; nothing in this module runs it
// automatically. The primary enforcement is the store's ApplyMappingStep,
// which rejects an overlapping mapping when it is written.
func (s Snapshot) ValidateNoOverlap() error {
	for i, m := range s.mappings {
		if m.ShardMapID != s.ShardMap.ID {
			return errs.New(errs.CategoryValidation, errs.CodeUnexpectedError, "mapping belongs to a different shard map")
		}
		if m.Shard.ShardMapID != s.ShardMap.ID {
			return errs.New(errs.CategoryValidation, errs.CodeUnexpectedError, "mapping's target shard belongs to a different shard map")
		}
		if i > 0 {
			prev := s.mappings[i-1]
			if prev.Range.Intersects(m.Range) {
				return errs.New(errs.CategoryValidation, errs.CodeUnexpectedError, "overlapping mappings in shard map")
			}
		}
	}
	return nil
}
