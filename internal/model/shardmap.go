package model

import (
	"github.com/google/uuid"

	"github.com/dreamware/shardmap/internal/shardkey"
)

// MapKind distinguishes the three shapes a ShardMap can hold mappings in.
// A shard map may have at most one mapper instance active for its Kind;
// list and range maps hold Mapping entities, a "none" map holds shards with
// no mapping layer at all (used for single-shard or manually routed
// deployments).
type MapKind int

const (
	MapKindList MapKind = iota
	MapKindRange
	MapKindNone
)

func (k MapKind) String() string {
	switch k {
	case MapKindList:
		return "list"
	case MapKindRange:
		return "range"
	default:
		return "none"
	}
}

// ShardMap is the catalogue entry describing one named collection of
// mappings over one key type. The mappings and shards themselves are
// queried separately via Snapshot; ShardMap only carries the catalogue
// metadata.
type ShardMap struct {
	ID      uuid.UUID
	Name    string
	Kind    MapKind
	KeyKind shardkey.Kind
}
