package mapper

import (
	"sync"

	"github.com/google/uuid"
)

// shardLockTable is the mapper's per-shard in-process advisory lock (spec
// §4.F/§5): a process-wide map keyed by shard id that serializes
// concurrent revalidation attempts against the same shard so they share
// one GSM round trip (the double-checked-locking refresh path in
// mapper.go's refreshAndOpen). It is distinct from internal/store's operation-id-keyed
// opLockTable, which serializes coordinator attempts against the store
// itself; this one never talks to a store at all.
//
// Unlike opLockTable, entries are refcounted and purged once uncontended
// (spec §5: "must purge entries when no longer contended"), since a
// long-lived ShardMapManager may route keys belonging to many thousands of
// shards over its lifetime and an ever-growing lock map would leak.
type shardLockTable struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*refMutex
}

type refMutex struct {
	mu   sync.Mutex
	refs int
}

func newShardLockTable() *shardLockTable {
	return &shardLockTable{locks: make(map[uuid.UUID]*refMutex)}
}

// acquire blocks until shardID's lock is held, returning a release
// function the caller must call exactly once.
func (t *shardLockTable) acquire(shardID uuid.UUID) func() {
	t.mu.Lock()
	rm, ok := t.locks[shardID]
	if !ok {
		rm = &refMutex{}
		t.locks[shardID] = rm
	}
	rm.refs++
	t.mu.Unlock()

	rm.mu.Lock()

	released := false
	return func() {
		if released {
			return
		}
		released = true
		rm.mu.Unlock()

		t.mu.Lock()
		rm.refs--
		if rm.refs == 0 {
			delete(t.locks, shardID)
		}
		t.mu.Unlock()
	}
}
