package model

import "github.com/google/uuid"

// ShardStatus is the operational status of a Shard.
type ShardStatus int

const (
	ShardOnline ShardStatus = iota
	ShardOffline
)

func (s ShardStatus) String() string {
	if s == ShardOffline {
		return "offline"
	}
	return "online"
}

// Shard is a physical database instance hosting a subset of a shard map's
// mapped rows.
//
// Identity is ID alone; Version changes on every coordinator mutation and
// is used to detect stale cached references. Equals intentionally compares
// both ID and Version -- a stale cached Shard must not equal its refreshed
// counterpart, even though they describe "the same" shard -- so staleness
// checks can use plain equality instead of a separate comparison. Use
// IDEquals when identity alone (ignoring version) is what's being tested.
type Shard struct {
	ID         uuid.UUID
	Version    uuid.UUID
	ShardMapID uuid.UUID
	Location   Location
	Status     ShardStatus
}

// IDEquals reports whether s and other identify the same shard, regardless
// of version.
func (s Shard) IDEquals(other Shard) bool {
	return s.ID == other.ID
}

// Equals reports whether s and other are the same shard at the same
// version. See the type doc for why version participates in equality.
func (s Shard) Equals(other Shard) bool {
	return s.ID == other.ID && s.Version == other.Version
}

// WithNewVersion returns a copy of s with a freshly generated Version,
// used by the coordinator whenever a shard is mutated.
func (s Shard) WithNewVersion() Shard {
	s.Version = uuid.New()
	return s
}
