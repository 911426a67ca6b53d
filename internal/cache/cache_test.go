package cache

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/shardmap/internal/model"
	"github.com/dreamware/shardmap/internal/shardkey"
)

func int32Key(t *testing.T, v int32) model.Key {
	t.Helper()
	k, err := shardkey.FromValue(shardkey.KindInt32, v)
	require.NoError(t, err)
	return k
}

func rangeMapping(t *testing.T, shardMapID uuid.UUID, low, high int32) model.Mapping {
	t.Helper()
	rng, err := shardkey.NewRange(int32Key(t, low), int32Key(t, high))
	require.NoError(t, err)
	return model.Mapping{ID: uuid.New(), ShardMapID: shardMapID, Range: rng, Status: model.MappingOnline}
}

func TestCacheLookupMissOnEmptyShardMap(t *testing.T) {
	c := New()
	_, _, found := c.Lookup(uuid.New(), model.MapKindRange, int32Key(t, 5))
	assert.False(t, found)
}

func TestCacheInsertAndLookupRange(t *testing.T) {
	c := New()
	shardMapID := uuid.New()
	m := rangeMapping(t, shardMapID, 0, 100)

	c.Insert(shardMapID, model.MapKindRange, m, 0, OverwriteExisting)

	entry, fresh, found := c.Lookup(shardMapID, model.MapKindRange, int32Key(t, 42))
	require.True(t, found)
	assert.True(t, fresh)
	assert.Equal(t, m.ID, entry.Mapping.ID)

	_, _, found = c.Lookup(shardMapID, model.MapKindRange, int32Key(t, 200))
	assert.False(t, found)
}

func TestCacheInsertEvictsOverlappingRange(t *testing.T) {
	c := New()
	shardMapID := uuid.New()
	first := rangeMapping(t, shardMapID, 0, 100)
	c.Insert(shardMapID, model.MapKindRange, first, 0, OverwriteExisting)

	second := rangeMapping(t, shardMapID, 50, 150)
	c.Insert(shardMapID, model.MapKindRange, second, 0, OverwriteExisting)

	_, _, found := c.Lookup(shardMapID, model.MapKindRange, int32Key(t, 10))
	assert.False(t, found, "the overlapping insert must evict the original [0,100) entry")

	entry, _, found := c.Lookup(shardMapID, model.MapKindRange, int32Key(t, 60))
	require.True(t, found)
	assert.Equal(t, second.ID, entry.Mapping.ID)
}

func TestCacheNeverOverwritePolicy(t *testing.T) {
	c := New()
	shardMapID := uuid.New()
	first := rangeMapping(t, shardMapID, 0, 100)
	c.Insert(shardMapID, model.MapKindRange, first, 0, OverwriteExisting)

	other := first
	other.Status = model.MappingOffline
	c.Insert(shardMapID, model.MapKindRange, other, 0, NeverOverwrite)

	entry, _, found := c.Lookup(shardMapID, model.MapKindRange, int32Key(t, 5))
	require.True(t, found)
	assert.Equal(t, model.MappingOnline, entry.Mapping.Status, "NeverOverwrite must leave the existing entry untouched")
}

func TestCacheUpdateTimeToLivePolicyRefreshesTTL(t *testing.T) {
	clockT := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := New(WithClock(func() time.Time { return clockT }), WithDefaultTTL(time.Minute))
	shardMapID := uuid.New()
	m := rangeMapping(t, shardMapID, 0, 100)
	c.Insert(shardMapID, model.MapKindRange, m, 0, OverwriteExisting)

	clockT = clockT.Add(2 * time.Minute)
	entry, fresh, found := c.Lookup(shardMapID, model.MapKindRange, int32Key(t, 5))
	require.True(t, found)
	assert.False(t, fresh, "entry should report stale once TTL has elapsed")

	c.Insert(shardMapID, model.MapKindRange, m, 0, UpdateTimeToLive)
	_, fresh, found = c.Lookup(shardMapID, model.MapKindRange, int32Key(t, 5))
	require.True(t, found)
	assert.True(t, fresh, "UpdateTimeToLive must reset the freshness window")
}

func TestCacheDeleteMapping(t *testing.T) {
	c := New()
	shardMapID := uuid.New()
	m := rangeMapping(t, shardMapID, 0, 100)
	c.Insert(shardMapID, model.MapKindRange, m, 0, OverwriteExisting)

	c.DeleteMapping(shardMapID, m.ID)
	_, _, found := c.Lookup(shardMapID, model.MapKindRange, int32Key(t, 5))
	assert.False(t, found)
}

func TestCacheDeleteShardMap(t *testing.T) {
	c := New()
	shardMapID := uuid.New()
	m := rangeMapping(t, shardMapID, 0, 100)
	c.Insert(shardMapID, model.MapKindRange, m, 0, OverwriteExisting)

	c.DeleteShardMap(shardMapID)
	_, _, found := c.Lookup(shardMapID, model.MapKindRange, int32Key(t, 5))
	assert.False(t, found)
}

func TestCacheListKindEvictsOnEqualKey(t *testing.T) {
	c := New()
	shardMapID := uuid.New()

	k := int32Key(t, 7)
	rng, err := shardkey.NewRange(k, k.Successor())
	require.NoError(t, err)
	first := model.Mapping{ID: uuid.New(), ShardMapID: shardMapID, Range: rng, Status: model.MappingOnline}
	c.Insert(shardMapID, model.MapKindList, first, 0, OverwriteExisting)

	second := first
	second.ID = uuid.New()
	second.Status = model.MappingOffline
	c.Insert(shardMapID, model.MapKindList, second, 0, OverwriteExisting)

	entry, _, found := c.Lookup(shardMapID, model.MapKindList, k)
	require.True(t, found)
	assert.Equal(t, second.ID, entry.Mapping.ID)
}
