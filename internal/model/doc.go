// Package model defines the mapping directory's entity types -- Shard,
// Mapping, ShardMap, and the Location they reference -- together with the
// Snapshot read-only view used to query a consistent set of them.
//
// Entities in this package are immutable value types: nothing here mutates
// a Shard or Mapping in place. The coordinator package is the only place
// shards and mappings are created, updated, or removed; every update it
// performs produces a new entity with a fresh version, matching the
// directory's "destroyed and recreated, never mutated on the wire"
// lifecycle. This package owns identity and invariant checks (no two
// mappings in a shard map may overlap, every mapping's target shard must
// belong to the same shard map) so the coordinator and mapper share a
// single definition of what a valid directory looks like.
package model
