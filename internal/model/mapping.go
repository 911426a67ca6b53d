package model

import (
	"github.com/google/uuid"

	"github.com/dreamware/shardmap/internal/errs"
	"github.com/dreamware/shardmap/internal/shardkey"
)

// MappingStatus is the operational status of a point or range Mapping.
// An offline mapping refuses data-plane connections even though its row
// range is otherwise valid (invariant 4 of the mapping directory).
type MappingStatus int

const (
	MappingOnline MappingStatus = iota
	MappingOffline
)

func (s MappingStatus) String() string {
	if s == MappingOffline {
		return "offline"
	}
	return "online"
}

// ZeroLockOwner is the sentinel lock-owner id meaning "unlocked".
var ZeroLockOwner = uuid.Nil

// ForceUnlockToken is the sentinel all-ones GUID that unlocks any mapping
// regardless of current owner. It must never be accepted as a lock owner
// for Lock itself.
var ForceUnlockToken = uuid.UUID{
	0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
	0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
}

// Mapping is either a point mapping (Range.IsPoint()) or a range mapping,
// associating a half-open key range with the Shard that holds it.
//
// Identity is ID alone; Equals compares only ID, unlike Shard, because a
// Mapping's own fields (not its target Shard's version) are what change on
// mutation, and the mapping itself gets a fresh ID on every update rather
// than a bumped version field.
type Mapping struct {
	ID          uuid.UUID
	ShardMapID  uuid.UUID
	Range       shardkey.Range
	Status      MappingStatus
	LockOwnerID uuid.UUID
	Shard       Shard
}

// IsPoint reports whether m is a point mapping (its range covers exactly
// one key).
func (m Mapping) IsPoint() bool { return m.Range.IsPoint() }

// IsLocked reports whether m currently has a non-zero lock owner.
func (m Mapping) IsLocked() bool { return m.LockOwnerID != ZeroLockOwner }

// Equals reports whether m and other are the same mapping by id.
func (m Mapping) Equals(other Mapping) bool { return m.ID == other.ID }

// Validate checks the invariants a single Mapping must satisfy in
// isolation (not yet considering other mappings in its shard map):
//   - its Shard.ShardMapID matches its own ShardMapID (invariant 2)
//   - LockOwnerID is never the force-unlock token (that value is only
//     meaningful as an argument to Unlock, never as stored state)
func (m Mapping) Validate() error {
	if m.Shard.ShardMapID != m.ShardMapID {
		return errs.New(errs.CategoryValidation, errs.CodeUnexpectedError,
			"mapping's target shard belongs to a different shard map")
	}
	if m.LockOwnerID == ForceUnlockToken {
		return errs.New(errs.CategoryValidation, errs.CodeUnexpectedError,
			"lock owner id must not be the force-unlock token")
	}
	return nil
}
