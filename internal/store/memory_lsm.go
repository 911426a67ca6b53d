package store

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/dreamware/shardmap/internal/model"
)

// MemoryLocalStore is the in-memory reference implementation of
// LocalStore: one instance fronts every shard's LSM, keyed by
// model.Location, mirroring how a single LocalStore implementation in
// production dials whichever server/database a call names. The map key is
// an exact Location match, unlike Location.Equals which folds case on
// Server/Database; callers are expected to use one consistent casing, as
// a real SQL connection string would.
type MemoryLocalStore struct {
	mu     sync.Mutex
	shards map[model.Location]*memoryShardLSM

	locks opLockTable
}

type memoryShardLSM struct {
	mappings map[uuid.UUID]model.Mapping
}

// NewMemoryLocalStore constructs an empty in-memory LSM backend.
func NewMemoryLocalStore() *MemoryLocalStore {
	return &MemoryLocalStore{
		shards: make(map[model.Location]*memoryShardLSM),
		locks:  newOpLockTable(),
	}
}

func (s *MemoryLocalStore) Version() Version { return CurrentLSMVersion }

func (s *MemoryLocalStore) Connect(ctx context.Context, loc model.Location, operationID uuid.UUID) (LocalConn, error) {
	if err := s.locks.acquire(ctx, operationID); err != nil {
		return nil, err
	}
	s.mu.Lock()
	shard, ok := s.shards[loc]
	if !ok {
		shard = &memoryShardLSM{mappings: make(map[uuid.UUID]model.Mapping)}
		s.shards[loc] = shard
	}
	s.mu.Unlock()
	return &memoryLocalConn{store: s, shard: shard, operationID: operationID}, nil
}

type memoryLocalConn struct {
	store       *MemoryLocalStore
	shard       *memoryShardLSM
	operationID uuid.UUID
	closed      bool
}

func (c *memoryLocalConn) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	c.store.locks.release(c.operationID)
	return nil
}

func (c *memoryLocalConn) WithTx(ctx context.Context, fn func(LocalTx) error) error {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()

	snapshot := make(map[uuid.UUID]model.Mapping, len(c.shard.mappings))
	for k, v := range c.shard.mappings {
		snapshot[k] = v
	}
	tx := &memoryLocalTx{shard: c.shard}
	if err := fn(tx); err != nil {
		c.shard.mappings = snapshot
		return err
	}
	return nil
}

type memoryLocalTx struct {
	shard *memoryShardLSM
}

func (t *memoryLocalTx) ApplyMappingStep(op OpCode, step Step) ResultCode {
	if step.Mapping == nil {
		return ResultUnexpectedError
	}
	m := *step.Mapping
	switch op {
	case OpAddMapping, OpSplitMapping, OpMergeMapping:
		for _, existing := range t.shard.mappings {
			if existing.Range.Intersects(m.Range) {
				if m.IsPoint() {
					return ResultMappingPointAlreadyMapped
				}
				return ResultMappingRangeAlreadyMapped
			}
		}
		t.shard.mappings[m.ID] = m
	case OpRemoveMapping:
		if _, ok := t.shard.mappings[m.ID]; !ok {
			return ResultMappingDoesNotExist
		}
		delete(t.shard.mappings, m.ID)
	case OpUpdateMapping, OpMarkMappingOnline, OpMarkMappingOffline:
		if _, ok := t.shard.mappings[m.ID]; !ok {
			return ResultMappingDoesNotExist
		}
		t.shard.mappings[m.ID] = m
	case OpLockMapping:
		existing, ok := t.shard.mappings[m.ID]
		if !ok {
			return ResultMappingDoesNotExist
		}
		if existing.IsLocked() {
			return ResultMappingIsAlreadyLocked
		}
		existing.LockOwnerID = step.LockOwnerID
		t.shard.mappings[existing.ID] = existing
	case OpUnlockMapping:
		existing, ok := t.shard.mappings[m.ID]
		if !ok {
			return ResultMappingDoesNotExist
		}
		if existing.LockOwnerID != step.LockOwnerID && step.LockOwnerID != model.ForceUnlockToken {
			return ResultMappingLockOwnerIDDoesNotMatch
		}
		existing.LockOwnerID = model.ZeroLockOwner
		t.shard.mappings[existing.ID] = existing
	default:
		return ResultUnexpectedError
	}
	return Success
}

func (t *memoryLocalTx) ListMappings(shardID uuid.UUID) ([]model.Mapping, error) {
	var out []model.Mapping
	for _, m := range t.shard.mappings {
		if m.Shard.ID == shardID {
			out = append(out, m)
		}
	}
	return out, nil
}
