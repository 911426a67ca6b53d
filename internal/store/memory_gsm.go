package store

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/dreamware/shardmap/internal/model"
)

// MemoryGlobalStore is the in-memory reference implementation of
// GlobalStore described in the package doc. It is transactionally correct
// (WithTx fully commits or fully rolls back) but, unlike a real SQL store,
// takes a whole-store snapshot per transaction rather than locking at row
// granularity -- adequate for a reference/test backend, not a concurrency
// model to emulate in a production GlobalStore implementation.
type MemoryGlobalStore struct {
	mu sync.Mutex

	shardMaps map[uuid.UUID]model.ShardMap
	namesByID map[string]uuid.UUID
	shards    map[uuid.UUID]model.Shard
	mappings  map[uuid.UUID]model.Mapping
	opLog     map[uuid.UUID]OperationLogEntry

	locks opLockTable
}

// NewMemoryGlobalStore constructs an empty in-memory GSM.
func NewMemoryGlobalStore() *MemoryGlobalStore {
	return &MemoryGlobalStore{
		shardMaps: make(map[uuid.UUID]model.ShardMap),
		namesByID: make(map[string]uuid.UUID),
		shards:    make(map[uuid.UUID]model.Shard),
		mappings:  make(map[uuid.UUID]model.Mapping),
		opLog:     make(map[uuid.UUID]OperationLogEntry),
		locks:     newOpLockTable(),
	}
}

func (s *MemoryGlobalStore) Version() Version { return CurrentGSMVersion }

func (s *MemoryGlobalStore) Connect(ctx context.Context, operationID uuid.UUID) (GlobalConn, error) {
	if err := s.locks.acquire(ctx, operationID); err != nil {
		return nil, err
	}
	return &memoryGlobalConn{store: s, operationID: operationID}, nil
}

type memoryGlobalConn struct {
	store       *MemoryGlobalStore
	operationID uuid.UUID
	closed      bool
}

func (c *memoryGlobalConn) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	c.store.locks.release(c.operationID)
	return nil
}

func (c *memoryGlobalConn) WithTx(ctx context.Context, fn func(GlobalTx) error) error {
	s := c.store
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.clone()
	tx := &memoryGlobalTx{store: s}
	if err := fn(tx); err != nil {
		s.restore(snapshot)
		return err
	}
	return nil
}

type storeSnapshot struct {
	shardMaps map[uuid.UUID]model.ShardMap
	namesByID map[string]uuid.UUID
	shards    map[uuid.UUID]model.Shard
	mappings  map[uuid.UUID]model.Mapping
	opLog     map[uuid.UUID]OperationLogEntry
}

func (s *MemoryGlobalStore) clone() storeSnapshot {
	snap := storeSnapshot{
		shardMaps: make(map[uuid.UUID]model.ShardMap, len(s.shardMaps)),
		namesByID: make(map[string]uuid.UUID, len(s.namesByID)),
		shards:    make(map[uuid.UUID]model.Shard, len(s.shards)),
		mappings:  make(map[uuid.UUID]model.Mapping, len(s.mappings)),
		opLog:     make(map[uuid.UUID]OperationLogEntry, len(s.opLog)),
	}
	for k, v := range s.shardMaps {
		snap.shardMaps[k] = v
	}
	for k, v := range s.namesByID {
		snap.namesByID[k] = v
	}
	for k, v := range s.shards {
		snap.shards[k] = v
	}
	for k, v := range s.mappings {
		snap.mappings[k] = v
	}
	for k, v := range s.opLog {
		snap.opLog[k] = v
	}
	return snap
}

func (s *MemoryGlobalStore) restore(snap storeSnapshot) {
	s.shardMaps = snap.shardMaps
	s.namesByID = snap.namesByID
	s.shards = snap.shards
	s.mappings = snap.mappings
	s.opLog = snap.opLog
}

type memoryGlobalTx struct {
	store *MemoryGlobalStore
}

func (t *memoryGlobalTx) ListShardMaps() ([]model.ShardMap, error) {
	out := make([]model.ShardMap, 0, len(t.store.shardMaps))
	for _, sm := range t.store.shardMaps {
		out = append(out, sm)
	}
	return out, nil
}

func (t *memoryGlobalTx) GetShardMapByName(name string) (model.ShardMap, bool, error) {
	id, ok := t.store.namesByID[name]
	if !ok {
		return model.ShardMap{}, false, nil
	}
	sm, ok := t.store.shardMaps[id]
	return sm, ok, nil
}

func (t *memoryGlobalTx) CreateShardMap(sm model.ShardMap) ResultCode {
	if _, exists := t.store.namesByID[sm.Name]; exists {
		return ResultShardMapAlreadyExists
	}
	t.store.shardMaps[sm.ID] = sm
	t.store.namesByID[sm.Name] = sm.ID
	return Success
}

func (t *memoryGlobalTx) DeleteShardMap(id uuid.UUID) ResultCode {
	sm, ok := t.store.shardMaps[id]
	if !ok {
		return ResultShardMapDoesNotExist
	}
	for _, m := range t.store.mappings {
		if m.ShardMapID == id {
			delete(t.store.mappings, m.ID)
		}
	}
	for _, sh := range t.store.shards {
		if sh.ShardMapID == id {
			delete(t.store.shards, sh.ID)
		}
	}
	delete(t.store.shardMaps, id)
	delete(t.store.namesByID, sm.Name)
	return Success
}

func (t *memoryGlobalTx) Snapshot(shardMapID uuid.UUID) (model.Snapshot, ResultCode) {
	sm, ok := t.store.shardMaps[shardMapID]
	if !ok {
		return model.Snapshot{}, ResultShardMapDoesNotExist
	}
	var shards []model.Shard
	for _, sh := range t.store.shards {
		if sh.ShardMapID == shardMapID {
			shards = append(shards, sh)
		}
	}
	var mappings []model.Mapping
	for _, m := range t.store.mappings {
		if m.ShardMapID == shardMapID {
			mappings = append(mappings, m)
		}
	}
	return model.NewSnapshot(sm, shards, mappings), Success
}

func (t *memoryGlobalTx) GetShardByLocation(shardMapID uuid.UUID, loc model.Location) (model.Shard, bool) {
	for _, sh := range t.store.shards {
		if sh.ShardMapID == shardMapID && sh.Location.Equals(loc) {
			return sh, true
		}
	}
	return model.Shard{}, false
}

func (t *memoryGlobalTx) ApplyShardStep(op OpCode, step Step) ResultCode {
	if step.Shard == nil {
		return ResultUnexpectedError
	}
	shard := *step.Shard
	switch op {
	case OpAddShard:
		for _, sh := range t.store.shards {
			if sh.ShardMapID == shard.ShardMapID && sh.Location.Equals(shard.Location) {
				return ResultShardLocationAlreadyExists
			}
		}
		t.store.shards[shard.ID] = shard
	case OpRemoveShard:
		existing, ok := t.store.shards[shard.ID]
		if !ok {
			return ResultShardDoesNotExist
		}
		if existing.Version != shard.Version {
			return ResultShardVersionMismatch
		}
		for _, m := range t.store.mappings {
			if m.Shard.ID == shard.ID {
				return ResultShardHasMappings
			}
		}
		delete(t.store.shards, shard.ID)
	case OpUpdateShard:
		existing, ok := t.store.shards[shard.ID]
		if !ok {
			return ResultShardDoesNotExist
		}
		if existing.Version != shard.Version {
			return ResultShardVersionMismatch
		}
		t.store.shards[shard.ID] = shard
	default:
		return ResultUnexpectedError
	}
	return Success
}

func (t *memoryGlobalTx) ApplyMappingStep(op OpCode, step Step) ResultCode {
	switch op {
	case OpAddMapping, OpSplitMapping, OpMergeMapping:
		if step.Mapping == nil {
			return ResultUnexpectedError
		}
		m := *step.Mapping
		for _, existing := range t.store.mappings {
			if existing.ShardMapID != m.ShardMapID {
				continue
			}
			if existing.Range.Intersects(m.Range) {
				if m.IsPoint() {
					return ResultMappingPointAlreadyMapped
				}
				return ResultMappingRangeAlreadyMapped
			}
		}
		t.store.mappings[m.ID] = m
	case OpRemoveMapping:
		if step.Mapping == nil {
			return ResultUnexpectedError
		}
		if _, ok := t.store.mappings[step.Mapping.ID]; !ok {
			return ResultMappingDoesNotExist
		}
		delete(t.store.mappings, step.Mapping.ID)
	case OpUpdateMapping, OpMarkMappingOnline, OpMarkMappingOffline:
		if step.Mapping == nil {
			return ResultUnexpectedError
		}
		if _, ok := t.store.mappings[step.Mapping.ID]; !ok {
			return ResultMappingDoesNotExist
		}
		t.store.mappings[step.Mapping.ID] = *step.Mapping
	case OpLockMapping:
		if step.Mapping == nil {
			return ResultUnexpectedError
		}
		existing, ok := t.store.mappings[step.Mapping.ID]
		if !ok {
			return ResultMappingDoesNotExist
		}
		if existing.IsLocked() {
			return ResultMappingIsAlreadyLocked
		}
		existing.LockOwnerID = step.LockOwnerID
		t.store.mappings[existing.ID] = existing
	case OpUnlockMapping:
		if step.Mapping == nil {
			return ResultUnexpectedError
		}
		existing, ok := t.store.mappings[step.Mapping.ID]
		if !ok {
			return ResultMappingDoesNotExist
		}
		if existing.LockOwnerID != step.LockOwnerID && step.LockOwnerID != model.ForceUnlockToken {
			return ResultMappingLockOwnerIDDoesNotMatch
		}
		existing.LockOwnerID = model.ZeroLockOwner
		t.store.mappings[existing.ID] = existing
	default:
		return ResultUnexpectedError
	}
	return Success
}

func (t *memoryGlobalTx) InsertPendingOperation(entry OperationLogEntry) ResultCode {
	t.store.opLog[entry.OperationID] = entry
	return Success
}

func (t *memoryGlobalTx) CompletePendingOperation(operationID uuid.UUID) ResultCode {
	entry, ok := t.store.opLog[operationID]
	if !ok {
		return Success // idempotent: nothing pending is not an error
	}
	entry.Complete = true
	t.store.opLog[operationID] = entry
	return Success
}

func (t *memoryGlobalTx) DeletePendingOperation(operationID uuid.UUID) ResultCode {
	delete(t.store.opLog, operationID)
	return Success
}

func (t *memoryGlobalTx) FindPendingOperation(shardMapID uuid.UUID) (OperationLogEntry, bool) {
	for _, entry := range t.store.opLog {
		if entry.ShardMapID == shardMapID && !entry.Complete {
			return entry, true
		}
	}
	return OperationLogEntry{}, false
}

func (t *memoryGlobalTx) ListOperationLog(shardMapID uuid.UUID) ([]OperationLogEntry, error) {
	var out []OperationLogEntry
	for _, entry := range t.store.opLog {
		if entry.ShardMapID == shardMapID {
			out = append(out, entry)
		}
	}
	return out, nil
}
