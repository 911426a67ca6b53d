package mapper

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/shardmap/internal/coordinator"
	"github.com/dreamware/shardmap/internal/errs"
	"github.com/dreamware/shardmap/internal/model"
)

func newLockController(f *fixture) *LockController {
	engine := coordinator.New(f.gsm, f.lsm)
	return NewLockController(engine, f.gsm)
}

func TestLockControllerLockThenUnlock(t *testing.T) {
	f := newFixture(t)
	lc := newLockController(f)
	owner := uuid.New()

	locked, err := lc.Lock(context.Background(), f.shardMapID, f.mapping, owner)
	require.NoError(t, err)
	assert.Equal(t, owner, locked.LockOwnerID)

	unlocked, err := lc.Unlock(context.Background(), f.shardMapID, locked, owner)
	require.NoError(t, err)
	assert.Equal(t, model.ZeroLockOwner, unlocked.LockOwnerID)
}

func TestLockControllerLockRejectsForceToken(t *testing.T) {
	f := newFixture(t)
	lc := newLockController(f)

	_, err := lc.Lock(context.Background(), f.shardMapID, f.mapping, model.ForceUnlockToken)
	require.Error(t, err, "the force-unlock token must never be accepted as a lock owner")
}

func TestLockControllerUnlockWrongOwnerFails(t *testing.T) {
	f := newFixture(t)
	lc := newLockController(f)
	owner := uuid.New()

	locked, err := lc.Lock(context.Background(), f.shardMapID, f.mapping, owner)
	require.NoError(t, err)

	_, err = lc.Unlock(context.Background(), f.shardMapID, locked, uuid.New())
	require.Error(t, err)
}

func TestLockControllerUnlockWithForceTokenAlwaysSucceeds(t *testing.T) {
	f := newFixture(t)
	lc := newLockController(f)
	owner := uuid.New()

	locked, err := lc.Lock(context.Background(), f.shardMapID, f.mapping, owner)
	require.NoError(t, err)

	unlocked, err := lc.Unlock(context.Background(), f.shardMapID, locked, model.ForceUnlockToken)
	require.NoError(t, err, "the force-unlock token must release a lock regardless of its current owner")
	assert.Equal(t, model.ZeroLockOwner, unlocked.LockOwnerID)
}

func TestLockControllerUnlockAllForOwnerOnlyTouchesThatOwner(t *testing.T) {
	f := newFixture(t)
	lc := newLockController(f)
	owner := uuid.New()
	other := uuid.New()

	_, err := lc.Lock(context.Background(), f.shardMapID, f.mapping, owner)
	require.NoError(t, err)

	require.NoError(t, lc.UnlockAllForOwner(context.Background(), f.shardMapID, other),
		"unlocking for an owner holding nothing must be a no-op, not an error")

	require.NoError(t, lc.UnlockAllForOwner(context.Background(), f.shardMapID, owner))

	snap, err := lc.readSnapshot(context.Background(), f.shardMapID)
	require.NoError(t, err)
	m, ok := snap.MappingByID(f.mapping.ID)
	require.True(t, ok)
	assert.False(t, m.IsLocked())
}

func TestLockControllerUnlockAllForcesEveryLock(t *testing.T) {
	f := newFixture(t)
	lc := newLockController(f)
	owner := uuid.New()

	_, err := lc.Lock(context.Background(), f.shardMapID, f.mapping, owner)
	require.NoError(t, err)

	require.NoError(t, lc.UnlockAll(context.Background(), f.shardMapID))

	snap, err := lc.readSnapshot(context.Background(), f.shardMapID)
	require.NoError(t, err)
	m, ok := snap.MappingByID(f.mapping.ID)
	require.True(t, ok)
	assert.False(t, m.IsLocked())
}

func TestLockControllerUnlockAllOnUnknownShardMapFails(t *testing.T) {
	f := newFixture(t)
	lc := newLockController(f)

	err := lc.UnlockAll(context.Background(), uuid.New())
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.CodeShardMapDoesNotExist))
}
