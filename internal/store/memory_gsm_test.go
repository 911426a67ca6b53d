package store

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/shardmap/internal/model"
	"github.com/dreamware/shardmap/internal/shardkey"
)

func mustConnect(t *testing.T, s *MemoryGlobalStore) GlobalConn {
	t.Helper()
	conn, err := s.Connect(context.Background(), uuid.New())
	require.NoError(t, err)
	return conn
}

func TestMemoryGlobalStoreCreateAndListShardMaps(t *testing.T) {
	s := NewMemoryGlobalStore()
	conn := mustConnect(t, s)
	defer conn.Close()

	sm := model.ShardMap{ID: uuid.New(), Name: "customers", Kind: model.MapKindRange, KeyKind: shardkey.KindInt32}

	err := conn.WithTx(context.Background(), func(tx GlobalTx) error {
		assert.Equal(t, Success, tx.CreateShardMap(sm))
		return nil
	})
	require.NoError(t, err)

	err = conn.WithTx(context.Background(), func(tx GlobalTx) error {
		maps, lerr := tx.ListShardMaps()
		require.NoError(t, lerr)
		assert.Len(t, maps, 1)

		found, ok, gerr := tx.GetShardMapByName("customers")
		require.NoError(t, gerr)
		assert.True(t, ok)
		assert.Equal(t, sm.ID, found.ID)
		return nil
	})
	require.NoError(t, err)
}

func TestMemoryGlobalStoreCreateDuplicateNameFails(t *testing.T) {
	s := NewMemoryGlobalStore()
	conn := mustConnect(t, s)
	defer conn.Close()

	sm := model.ShardMap{ID: uuid.New(), Name: "customers", Kind: model.MapKindRange, KeyKind: shardkey.KindInt32}

	_ = conn.WithTx(context.Background(), func(tx GlobalTx) error {
		tx.CreateShardMap(sm)
		return nil
	})

	err := conn.WithTx(context.Background(), func(tx GlobalTx) error {
		code := tx.CreateShardMap(model.ShardMap{ID: uuid.New(), Name: "customers", Kind: model.MapKindRange, KeyKind: shardkey.KindInt32})
		assert.Equal(t, ResultShardMapAlreadyExists, code)
		return nil
	})
	require.NoError(t, err)
}

func TestMemoryGlobalStoreTxRollsBackOnError(t *testing.T) {
	s := NewMemoryGlobalStore()
	conn := mustConnect(t, s)
	defer conn.Close()

	sm := model.ShardMap{ID: uuid.New(), Name: "orders", Kind: model.MapKindRange, KeyKind: shardkey.KindInt32}

	wantErr := assert.AnError
	err := conn.WithTx(context.Background(), func(tx GlobalTx) error {
		assert.Equal(t, Success, tx.CreateShardMap(sm))
		return wantErr
	})
	assert.ErrorIs(t, err, wantErr)

	_ = conn.WithTx(context.Background(), func(tx GlobalTx) error {
		maps, lerr := tx.ListShardMaps()
		require.NoError(t, lerr)
		assert.Len(t, maps, 0, "shard map created inside a failed tx must not survive rollback")
		return nil
	})
}

func TestMemoryGlobalStoreApplyShardStepLifecycle(t *testing.T) {
	s := NewMemoryGlobalStore()
	conn := mustConnect(t, s)
	defer conn.Close()

	shardMapID := uuid.New()
	shard := model.Shard{
		ID:         uuid.New(),
		Version:    uuid.New(),
		ShardMapID: shardMapID,
		Location:   model.Location{Server: "sql1", Database: "shard0", Protocol: "tcp", Port: 1433},
		Status:     model.ShardOnline,
	}

	_ = conn.WithTx(context.Background(), func(tx GlobalTx) error {
		assert.Equal(t, Success, tx.ApplyShardStep(OpAddShard, Step{Shard: &shard}))
		dup := shard
		dup.ID = uuid.New()
		assert.Equal(t, ResultShardLocationAlreadyExists, tx.ApplyShardStep(OpAddShard, Step{Shard: &dup}))
		return nil
	})

	_ = conn.WithTx(context.Background(), func(tx GlobalTx) error {
		stale := shard
		assert.Equal(t, Success, tx.ApplyShardStep(OpRemoveShard, Step{Shard: &stale}))
		return nil
	})
}

func TestMemoryGlobalStoreLockOwnershipRoundTrip(t *testing.T) {
	s := NewMemoryGlobalStore()
	conn := mustConnect(t, s)
	defer conn.Close()

	shardMapID := uuid.New()
	k, err := shardkey.FromValue(shardkey.KindInt32, int32(42))
	require.NoError(t, err)
	rng, err := shardkey.NewRange(k, shardkey.Max(shardkey.KindInt32))
	require.NoError(t, err)

	mapping := model.Mapping{ID: uuid.New(), ShardMapID: shardMapID, Range: rng, Status: model.MappingOnline}

	_ = conn.WithTx(context.Background(), func(tx GlobalTx) error {
		m := mapping
		assert.Equal(t, Success, tx.ApplyMappingStep(OpAddMapping, Step{Mapping: &m}))
		return nil
	})

	owner := uuid.New()
	_ = conn.WithTx(context.Background(), func(tx GlobalTx) error {
		m := mapping
		assert.Equal(t, Success, tx.ApplyMappingStep(OpLockMapping, Step{Mapping: &m, LockOwnerID: owner}))
		again := mapping
		assert.Equal(t, ResultMappingIsAlreadyLocked, tx.ApplyMappingStep(OpLockMapping, Step{Mapping: &again, LockOwnerID: uuid.New()}))
		return nil
	})

	_ = conn.WithTx(context.Background(), func(tx GlobalTx) error {
		m := mapping
		wrongOwner := uuid.New()
		assert.Equal(t, ResultMappingLockOwnerIDDoesNotMatch, tx.ApplyMappingStep(OpUnlockMapping, Step{Mapping: &m, LockOwnerID: wrongOwner}))
		assert.Equal(t, Success, tx.ApplyMappingStep(OpUnlockMapping, Step{Mapping: &m, LockOwnerID: owner}))
		return nil
	})
}

func TestMemoryGlobalStoreAdvisoryLockSerializesSameOperation(t *testing.T) {
	s := NewMemoryGlobalStore()
	opID := uuid.New()

	conn1, err := s.Connect(context.Background(), opID)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.Connect(ctx, opID)
	assert.Error(t, err, "a second Connect with the same operation id must not proceed while the first holds the lock")

	require.NoError(t, conn1.Close())

	conn2, err := s.Connect(context.Background(), opID)
	require.NoError(t, err)
	require.NoError(t, conn2.Close())
}

func TestMemoryGlobalStorePendingOperationLifecycle(t *testing.T) {
	s := NewMemoryGlobalStore()
	conn := mustConnect(t, s)
	defer conn.Close()

	shardMapID := uuid.New()
	opID := uuid.New()

	_ = conn.WithTx(context.Background(), func(tx GlobalTx) error {
		entry := OperationLogEntry{OperationID: opID, OperationCode: OpAddMapping, ShardMapID: shardMapID}
		assert.Equal(t, Success, tx.InsertPendingOperation(entry))

		found, ok := tx.FindPendingOperation(shardMapID)
		assert.True(t, ok)
		assert.Equal(t, opID, found.OperationID)
		assert.False(t, found.Complete)

		assert.Equal(t, Success, tx.CompletePendingOperation(opID))
		_, stillPending := tx.FindPendingOperation(shardMapID)
		assert.False(t, stillPending, "a completed entry is no longer reported as pending")

		assert.Equal(t, Success, tx.DeletePendingOperation(opID))
		log, lerr := tx.ListOperationLog(shardMapID)
		require.NoError(t, lerr)
		assert.Len(t, log, 0)
		return nil
	})
}
