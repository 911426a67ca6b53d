package mapper

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dreamware/shardmap/internal/cache"
	"github.com/dreamware/shardmap/internal/errs"
	"github.com/dreamware/shardmap/internal/metrics"
	"github.com/dreamware/shardmap/internal/model"
	"github.com/dreamware/shardmap/internal/store"
)

// Options controls one OpenConnectionForKey call, matching spec §4.F.
type Options struct {
	// Validate, when true, makes every LSM open revalidate the mapping
	// against the shard's own authoritative copy (spec invariant 3) and
	// triggers the GSM-refresh-and-retry path on MappingDoesNotExist.
	Validate bool
	// KeepOffline, when true, allows opening a connection to a mapping
	// whose Status is Offline. Rare: spec calls this "rare".
	KeepOffline bool
}

// Mapper implements component F, the OpenConnectionForKey routing engine,
// and shares its GSM access with the lock-ownership controller (component
// G, see lock.go). One Mapper serves an entire ShardMapManager and is safe
// for concurrent use: all synchronization lives in Cache and locks, not on
// the Mapper value itself.
type Mapper struct {
	GSM     store.GlobalStore
	LSM     store.LocalStore
	Cache   *cache.Cache
	Metrics metrics.Sink
	Logger  *zap.Logger

	locks *shardLockTable
}

// Option configures a Mapper built with New.
type Option func(*Mapper)

func WithMetrics(sink metrics.Sink) Option { return func(m *Mapper) { m.Metrics = sink } }
func WithLogger(l *zap.Logger) Option      { return func(m *Mapper) { m.Logger = l } }

// New builds a Mapper over gsm/lsm/c.
func New(gsm store.GlobalStore, lsm store.LocalStore, c *cache.Cache, opts ...Option) *Mapper {
	m := &Mapper{
		GSM:     gsm,
		LSM:     lsm,
		Cache:   c,
		Metrics: metrics.New(nil),
		Logger:  zap.NewNop(),
		locks:   newShardLockTable(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// OpenConnectionForKey implements spec §4.F's state machine: it yields an
// LSM connection to the shard owning key within shardMapID, consulting the
// cache first and falling through to the GSM/LSM only on a miss or a
// validation failure. The returned Mapping is the one the connection was
// opened against, with its cache entry's TTL freshly reset on success.
func (m *Mapper) OpenConnectionForKey(ctx context.Context, shardMapID uuid.UUID, mapKind model.MapKind, key model.Key, opts Options) (store.LocalConn, model.Mapping, error) {
	entry, fresh, found := m.Cache.Lookup(shardMapID, mapKind, key)
	if !found {
		mapping, err := m.gsmLookup(ctx, shardMapID, mapKind, key, cache.OverwriteExisting)
		if err != nil {
			return nil, model.Mapping{}, err
		}
		return m.openAndTouch(ctx, shardMapID, mapKind, mapping, opts)
	}

	conn, err := m.openAtShard(ctx, mapKind, entry.Mapping, opts)
	if err == nil {
		m.touch(shardMapID, mapKind, entry.Mapping)
		return conn, entry.Mapping, nil
	}
	m.evictIfOffline(shardMapID, entry.Mapping.ID, err)

	if errs.Is(err, errs.CodeMappingDoesNotExist) && opts.Validate {
		mapping, lerr := m.gsmLookup(ctx, shardMapID, mapKind, key, cache.OverwriteExisting)
		if lerr != nil {
			return nil, model.Mapping{}, lerr
		}
		conn2, err2 := m.openAtShard(ctx, mapKind, mapping, opts)
		if err2 != nil {
			// Second attempt failed too: surface this error, not the first
			// (spec §4.F: "If the lookup-then-retry path also fails at
			// open, surface the second error"). If the refreshed copy came
			// back offline, the entry gsmLookup just (re)inserted must not
			// survive the call (§8's routing scenario: the second attempt's
			// MappingIsOffline evicts the cache entry).
			m.evictIfOffline(shardMapID, mapping.ID, err2)
			return nil, model.Mapping{}, err2
		}
		m.touch(shardMapID, mapKind, mapping)
		return conn2, mapping, nil
	}

	if isTransportFailure(err) && !fresh {
		return m.refreshAndOpen(ctx, shardMapID, mapKind, key, entry.Mapping.Shard.ID, opts)
	}

	return nil, model.Mapping{}, err
}

// evictIfOffline drops shardMapID/mappingID from the cache when err is a
// MappingIsOffline failure, so a stale entry for a mapping another process
// just took offline never answers a subsequent lookup (invariant 4; spec
// §8's routing scenario requires the evicted entry force a fresh GSM round
// trip next time).
func (m *Mapper) evictIfOffline(shardMapID, mappingID uuid.UUID, err error) {
	if errs.Is(err, errs.CodeMappingIsOffline) {
		m.Cache.DeleteMapping(shardMapID, mappingID)
	}
}

// refreshAndOpen is the double-checked-locking revalidation path: it
// serializes concurrent callers stale on the same shard behind one
// in-process lock so they share a single GSM round trip (spec §4.F: "a
// process-wide map keyed by shard_id that serializes revalidation
// attempts").
func (m *Mapper) refreshAndOpen(ctx context.Context, shardMapID uuid.UUID, mapKind model.MapKind, key model.Key, shardID uuid.UUID, opts Options) (store.LocalConn, model.Mapping, error) {
	release := m.locks.acquire(shardID)
	defer release()

	if entry, fresh, found := m.Cache.Lookup(shardMapID, mapKind, key); found && fresh {
		// Another waiter already refreshed this entry while we queued for
		// the lock; reuse its result instead of paying a second round trip.
		conn, err := m.openAtShard(ctx, mapKind, entry.Mapping, opts)
		if err != nil {
			m.evictIfOffline(shardMapID, entry.Mapping.ID, err)
			return nil, model.Mapping{}, err
		}
		return conn, entry.Mapping, nil
	}

	mapping, err := m.gsmLookup(ctx, shardMapID, mapKind, key, cache.UpdateTimeToLive)
	if err != nil {
		return nil, model.Mapping{}, err
	}
	conn, err := m.openAtShard(ctx, mapKind, mapping, opts)
	if err != nil {
		m.evictIfOffline(shardMapID, mapping.ID, err)
		return nil, model.Mapping{}, err
	}
	return conn, mapping, nil
}

func (m *Mapper) openAndTouch(ctx context.Context, shardMapID uuid.UUID, mapKind model.MapKind, mapping model.Mapping, opts Options) (store.LocalConn, model.Mapping, error) {
	conn, err := m.openAtShard(ctx, mapKind, mapping, opts)
	if err != nil {
		m.evictIfOffline(shardMapID, mapping.ID, err)
		return nil, model.Mapping{}, err
	}
	m.touch(shardMapID, mapKind, mapping)
	return conn, mapping, nil
}

// touch resets the cache entry's TTL after a successful open, per spec
// §4.F ("After any successful open, reset the cache entry's TTL"). It
// reuses Insert's UpdateTimeToLive policy rather than a dedicated method,
// since that policy already implements exactly this semantics.
func (m *Mapper) touch(shardMapID uuid.UUID, mapKind model.MapKind, mapping model.Mapping) {
	m.Cache.Insert(shardMapID, mapKind, mapping, 0, cache.UpdateTimeToLive)
}

// gsmLookup performs the GSM round trip of spec §4.F's "GSM lookup" boxes:
// fetch the shard map's snapshot, find the mapping covering key, cache it
// under policy, and return it. A key with no covering mapping fails with
// MappingNotFoundForKey, scoped to the shard map's list/range category.
func (m *Mapper) gsmLookup(ctx context.Context, shardMapID uuid.UUID, mapKind model.MapKind, key model.Key, policy cache.InsertPolicy) (model.Mapping, error) {
	m.Metrics.MapperRefresh(shardMapID.String())
	snap, err := m.readSnapshot(ctx, shardMapID, mapKind)
	if err != nil {
		return model.Mapping{}, err
	}
	mapping, ok := snap.MappingForKey(key)
	if !ok {
		return model.Mapping{}, errs.New(categoryFor(mapKind), errs.CodeMappingNotFoundForKey, "no mapping covers key")
	}
	m.Cache.Insert(shardMapID, mapKind, mapping, 0, policy)
	return mapping, nil
}

// readSnapshot opens a fresh, short-lived GSM connection and reads
// shardMapID's current snapshot. Every call uses its own operation id: a
// read has nothing to serialize against a live Do/Undo attempt the way a
// mutation's advisory lock does.
func (m *Mapper) readSnapshot(ctx context.Context, shardMapID uuid.UUID, mapKind model.MapKind) (model.Snapshot, error) {
	conn, err := m.GSM.Connect(ctx, uuid.New())
	if err != nil {
		return model.Snapshot{}, errs.Wrap(errs.CategoryGeneral, errs.CodeMappingsKillConnectionFailure, "connect GSM", err)
	}
	defer conn.Close()

	var (
		snap model.Snapshot
		code store.ResultCode
	)
	txErr := conn.WithTx(ctx, func(tx store.GlobalTx) error {
		snap, code = tx.Snapshot(shardMapID)
		return nil
	})
	if txErr != nil {
		return model.Snapshot{}, errs.Wrap(errs.CategoryGeneral, errs.CodeMappingsKillConnectionFailure, "read GSM snapshot", txErr)
	}
	if code != store.Success {
		// Snapshot's only non-Success outcome is a shard map that no
		// longer exists (see MemoryGlobalStore.Snapshot).
		return model.Snapshot{}, errs.New(categoryFor(mapKind), errs.CodeShardMapDoesNotExist, shardMapID.String())
	}
	return snap, nil
}

// openAtShard opens (and, if opts.Validate, revalidates) an LSM connection
// to mapping's target shard, matching spec §4.F's "open" box. An offline
// mapping refuses the connection unless opts.KeepOffline is set
// (invariant 4). That top-of-function check only catches a status the
// caller already knew about; Validate re-reads the shard's own
// authoritative LSM copy (invariant 3), which going online/offline
// replicates as a presence change rather than a status flip -- so a
// mapping some other process just took offline is caught as absent here
// even when the caller's own copy still says online, and a mapping the
// LSM itself still shows present-but-offline (a narrower race) is caught
// by this revalidation's own status check.
func (m *Mapper) openAtShard(ctx context.Context, mapKind model.MapKind, mapping model.Mapping, opts Options) (store.LocalConn, error) {
	if mapping.Status == model.MappingOffline && !opts.KeepOffline {
		return nil, errs.New(categoryFor(mapKind), errs.CodeMappingIsOffline, mapping.ID.String())
	}

	conn, err := m.LSM.Connect(ctx, mapping.Shard.Location, uuid.New())
	if err != nil {
		return nil, errs.Wrap(errs.CategoryGeneral, errs.CodeMappingsKillConnectionFailure, "connect LSM "+mapping.Shard.Location.String(), err)
	}

	if !opts.Validate {
		return conn, nil
	}

	var (
		present bool
		offline bool
	)
	txErr := conn.WithTx(ctx, func(tx store.LocalTx) error {
		mappings, lerr := tx.ListMappings(mapping.Shard.ID)
		if lerr != nil {
			return lerr
		}
		for _, candidate := range mappings {
			if candidate.ID == mapping.ID {
				present = true
				offline = candidate.Status == model.MappingOffline
				break
			}
		}
		return nil
	})
	if txErr != nil {
		_ = conn.Close()
		return nil, errs.Wrap(errs.CategoryGeneral, errs.CodeMappingsKillConnectionFailure, "validate LSM mapping", txErr)
	}
	if !present {
		_ = conn.Close()
		return nil, errs.New(categoryFor(mapKind), errs.CodeMappingDoesNotExist, mapping.ID.String())
	}
	if offline && !opts.KeepOffline {
		_ = conn.Close()
		return nil, errs.New(categoryFor(mapKind), errs.CodeMappingIsOffline, mapping.ID.String())
	}
	return conn, nil
}
