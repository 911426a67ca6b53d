package model

import (
	"testing"

	"github.com/google/uuid"

	"github.com/dreamware/shardmap/internal/shardkey"
)

func mustRange(t *testing.T, lo, hi int32) Range {
	t.Helper()
	l, err := shardkey.FromValue(shardkey.KindInt32, lo)
	if err != nil {
		t.Fatal(err)
	}
	h, err := shardkey.FromValue(shardkey.KindInt32, hi)
	if err != nil {
		t.Fatal(err)
	}
	r, err := shardkey.NewRange(l, h)
	if err != nil {
		t.Fatal(err)
	}
	return r
}

func mustKey(t *testing.T, v int32) Key {
	t.Helper()
	k, err := shardkey.FromValue(shardkey.KindInt32, v)
	if err != nil {
		t.Fatal(err)
	}
	return k
}

func TestSnapshotMappingForKey(t *testing.T) {
	smID := uuid.New()
	shardA := Shard{ID: uuid.New(), ShardMapID: smID, Status: ShardOnline}
	shardB := Shard{ID: uuid.New(), ShardMapID: smID, Status: ShardOnline}

	mA := Mapping{ID: uuid.New(), ShardMapID: smID, Range: mustRange(t, 10, 20), Shard: shardA}
	mB := Mapping{ID: uuid.New(), ShardMapID: smID, Range: mustRange(t, 20, 30), Shard: shardB}

	snap := NewSnapshot(ShardMap{ID: smID, Kind: MapKindRange, KeyKind: shardkey.KindInt32}, []Shard{shardA, shardB}, []Mapping{mB, mA})

	if err := snap.ValidateNoOverlap(); err != nil {
		t.Fatalf("unexpected overlap error: %v", err)
	}

	got, ok := snap.MappingForKey(mustKey(t, 15))
	if !ok || got.ID != mA.ID {
		t.Fatalf("expected key 15 to map to mA, got %v ok=%v", got, ok)
	}
	got, ok = snap.MappingForKey(mustKey(t, 20))
	if !ok || got.ID != mB.ID {
		t.Fatalf("expected key 20 to map to mB, got %v ok=%v", got, ok)
	}
	if _, ok := snap.MappingForKey(mustKey(t, 30)); ok {
		t.Fatal("expected key 30 to have no mapping (half-open upper bound)")
	}
	if _, ok := snap.MappingForKey(mustKey(t, 5)); ok {
		t.Fatal("expected key 5 to have no mapping (below lowest range)")
	}
}

func TestSnapshotDetectsOverlap(t *testing.T) {
	smID := uuid.New()
	shardA := Shard{ID: uuid.New(), ShardMapID: smID}

	mA := Mapping{ID: uuid.New(), ShardMapID: smID, Range: mustRange(t, 10, 25), Shard: shardA}
	mB := Mapping{ID: uuid.New(), ShardMapID: smID, Range: mustRange(t, 20, 30), Shard: shardA}

	snap := NewSnapshot(ShardMap{ID: smID}, []Shard{shardA}, []Mapping{mA, mB})
	if err := snap.ValidateNoOverlap(); err == nil {
		t.Fatal("expected overlap to be detected")
	}
}

func TestSnapshotShardsWithMappings(t *testing.T) {
	smID := uuid.New()
	shardA := Shard{ID: uuid.New(), ShardMapID: smID}
	shardB := Shard{ID: uuid.New(), ShardMapID: smID}
	mA := Mapping{ID: uuid.New(), ShardMapID: smID, Range: mustRange(t, 0, 10), Shard: shardA}

	snap := NewSnapshot(ShardMap{ID: smID}, []Shard{shardA, shardB}, []Mapping{mA})
	used := snap.ShardsWithMappings()
	if _, ok := used[shardA.ID]; !ok {
		t.Error("expected shardA to have mappings")
	}
	if _, ok := used[shardB.ID]; ok {
		t.Error("expected shardB to have no mappings")
	}
}

func TestShardEqualsComparesVersion(t *testing.T) {
	id := uuid.New()
	s1 := Shard{ID: id, Version: uuid.New()}
	s2 := s1.WithNewVersion()

	if s1.Equals(s2) {
		t.Fatal("a shard and its refreshed copy must not be Equals (version changed)")
	}
	if !s1.IDEquals(s2) {
		t.Fatal("IDEquals should ignore version")
	}
}

func TestLockOwnerSentinels(t *testing.T) {
	m := Mapping{LockOwnerID: ZeroLockOwner}
	if m.IsLocked() {
		t.Fatal("zero lock owner should not be locked")
	}
	m.LockOwnerID = ForceUnlockToken
	if err := m.Validate(); err == nil {
		t.Fatal("force-unlock token must never validate as a stored lock owner")
	}
}
