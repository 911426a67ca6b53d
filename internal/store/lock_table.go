package store

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// opLockTable is the advisory lock keyed by operation id shared by
// MemoryGlobalStore and MemoryLocalStore (spec §4.E.5 / §4.G): whoever
// connects with a given operationID first holds that id's lock until it
// closes its connection. Entries are created lazily and never removed,
// which is fine for a reference/test backend that lives for one process.
type opLockTable struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex
}

func newOpLockTable() opLockTable {
	return opLockTable{locks: make(map[uuid.UUID]*sync.Mutex)}
}

func (t *opLockTable) mutexFor(operationID uuid.UUID) *sync.Mutex {
	t.mu.Lock()
	defer t.mu.Unlock()
	m, ok := t.locks[operationID]
	if !ok {
		m = &sync.Mutex{}
		t.locks[operationID] = m
	}
	return m
}

// acquire blocks until the lock for operationID is held, or ctx is
// cancelled first. If ctx is cancelled while the background Lock() is still
// in flight, a settled flag hands the eventual acquisition off cleanly: the
// background goroutine releases it itself instead of leaving operationID
// wedged for whoever recovers it next (coordinator.Recover reconnects with
// the exact operationID from the WAL entry, so a leaked lock here would hang
// that reconnect forever).
func (t *opLockTable) acquire(ctx context.Context, operationID uuid.UUID) error {
	m := t.mutexFor(operationID)
	acquired := make(chan struct{})
	var settled atomic.Bool
	go func() {
		m.Lock()
		if !settled.CompareAndSwap(false, true) {
			// ctx was cancelled before we got here; nobody is waiting on
			// acquired, so give the lock back immediately.
			m.Unlock()
			return
		}
		close(acquired)
	}()
	select {
	case <-acquired:
		return nil
	case <-ctx.Done():
		if settled.CompareAndSwap(false, true) {
			// The background Lock() hasn't returned yet; it will see
			// settled already true and release on our behalf.
			return ctx.Err()
		}
		// Lost the race: the goroutine above already claimed the lock and
		// is about to close acquired. Take it and hand it straight back
		// since we're walking away.
		<-acquired
		t.release(operationID)
		return ctx.Err()
	}
}

func (t *opLockTable) release(operationID uuid.UUID) {
	t.mu.Lock()
	m, ok := t.locks[operationID]
	t.mu.Unlock()
	if ok {
		m.Unlock()
	}
}
