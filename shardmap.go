// Package shardmap is the root façade over the shard map manager: a
// distributed two-tier operation coordinator for a horizontally-sharded
// relational database control plane. ShardMapManager wires together the
// GSM/LSM backend contracts (internal/store), the four-phase operation
// coordinator (internal/coordinator), the cache-first connection router
// (internal/mapper), and the lock-ownership protocol (internal/mapper)
// into the single entry point a caller constructs and holds for the
// lifetime of a process.
package shardmap

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/exp/slices"

	"github.com/dreamware/shardmap/internal/cache"
	"github.com/dreamware/shardmap/internal/config"
	"github.com/dreamware/shardmap/internal/coordinator"
	"github.com/dreamware/shardmap/internal/errs"
	"github.com/dreamware/shardmap/internal/mapper"
	"github.com/dreamware/shardmap/internal/metrics"
	"github.com/dreamware/shardmap/internal/model"
	"github.com/dreamware/shardmap/internal/store"
)

// ShardMapManager is the library's single entry point. One instance owns
// an Engine, a Mapper, and a LockController sharing one GSM and one LSM;
// it is safe for concurrent use from multiple goroutines.
type ShardMapManager struct {
	gsm store.GlobalStore
	lsm store.LocalStore

	engine *coordinator.Engine
	mapper *mapper.Mapper
	locks  *mapper.LockController

	logger *zap.Logger
}

// Option configures a ShardMapManager built with New.
type Option func(*options)

type options struct {
	cfg     config.Config
	metrics metrics.Sink
	logger  *zap.Logger
}

// WithConfig overrides the programmatic default config (retry policy,
// cache TTL) with cfg, typically loaded via internal/config.Load.
func WithConfig(cfg config.Config) Option { return func(o *options) { o.cfg = cfg } }

// WithMetrics wires a metrics.Sink shared by the coordinator, cache, and
// mapper. Defaults to a no-op sink.
func WithMetrics(sink metrics.Sink) Option { return func(o *options) { o.metrics = sink } }

// WithLogger wires a *zap.Logger shared by the coordinator and mapper.
// Defaults to zap.NewNop().
func WithLogger(l *zap.Logger) Option { return func(o *options) { o.logger = l } }

// New builds a ShardMapManager over gsm/lsm.
func New(gsm store.GlobalStore, lsm store.LocalStore, opts ...Option) *ShardMapManager {
	o := &options{cfg: config.Default(), metrics: metrics.New(nil), logger: zap.NewNop()}
	for _, opt := range opts {
		opt(o)
	}

	engine := coordinator.New(gsm, lsm,
		coordinator.WithRetryPolicy(o.cfg.RetryPolicy()),
		coordinator.WithMetrics(o.metrics),
		coordinator.WithLogger(o.logger))

	c := cache.New(
		cache.WithDefaultTTL(o.cfg.Cache.DefaultTTL),
		cache.WithMetrics(o.metrics))

	m := mapper.New(gsm, lsm, c,
		mapper.WithMetrics(o.metrics),
		mapper.WithLogger(o.logger))

	return &ShardMapManager{
		gsm:    gsm,
		lsm:    lsm,
		engine: engine,
		mapper: m,
		locks:  mapper.NewLockController(engine, gsm),
		logger: o.logger,
	}
}

// Recover runs the crash-recovery probe (spec §4.E.3) for shardMapID,
// undoing any operation left pending by a prior process crash. Callers
// open a shard map (the first Do/OpenConnectionForKey against it in a
// fresh process) by calling this once beforehand.
func (s *ShardMapManager) Recover(ctx context.Context, shardMapID uuid.UUID) error {
	return s.engine.Recover(ctx, shardMapID)
}

// GetShardMaps lists every shard map in the catalogue.
func (s *ShardMapManager) GetShardMaps(ctx context.Context) ([]model.ShardMap, error) {
	conn, err := s.gsm.Connect(ctx, uuid.New())
	if err != nil {
		return nil, errs.Wrap(errs.CategoryShardMapManager, errs.CodeMappingsKillConnectionFailure, "connect GSM", err)
	}
	defer conn.Close()

	var maps []model.ShardMap
	txErr := conn.WithTx(ctx, func(tx store.GlobalTx) error {
		var lerr error
		maps, lerr = tx.ListShardMaps()
		return lerr
	})
	if txErr != nil {
		return nil, errs.Wrap(errs.CategoryShardMapManager, errs.CodeMappingsKillConnectionFailure, "list shard maps", txErr)
	}
	return maps, nil
}

// CreateShardMap creates a new, empty shard map in the catalogue.
func (s *ShardMapManager) CreateShardMap(ctx context.Context, sm model.ShardMap) error {
	conn, err := s.gsm.Connect(ctx, uuid.New())
	if err != nil {
		return errs.Wrap(errs.CategoryShardMapManager, errs.CodeMappingsKillConnectionFailure, "connect GSM", err)
	}
	defer conn.Close()

	var code store.ResultCode
	txErr := conn.WithTx(ctx, func(tx store.GlobalTx) error {
		code = tx.CreateShardMap(sm)
		return nil
	})
	if txErr != nil {
		return errs.Wrap(errs.CategoryShardMapManager, errs.CodeMappingsKillConnectionFailure, "create shard map", txErr)
	}
	if code != store.Success {
		return asShardMapManagerError(code, sm.Name)
	}
	return nil
}

// DeleteShardMap removes shardMapID from the catalogue and drops its
// cache segment.
func (s *ShardMapManager) DeleteShardMap(ctx context.Context, shardMapID uuid.UUID) error {
	conn, err := s.gsm.Connect(ctx, uuid.New())
	if err != nil {
		return errs.Wrap(errs.CategoryShardMapManager, errs.CodeMappingsKillConnectionFailure, "connect GSM", err)
	}
	defer conn.Close()

	var code store.ResultCode
	txErr := conn.WithTx(ctx, func(tx store.GlobalTx) error {
		code = tx.DeleteShardMap(shardMapID)
		return nil
	})
	if txErr != nil {
		return errs.Wrap(errs.CategoryShardMapManager, errs.CodeMappingsKillConnectionFailure, "delete shard map", txErr)
	}
	if code != store.Success {
		return asShardMapManagerError(code, shardMapID.String())
	}
	s.mapper.Cache.DeleteShardMap(shardMapID)
	return nil
}

// Snapshot returns shardMapID's current shards and mappings.
func (s *ShardMapManager) Snapshot(ctx context.Context, shardMapID uuid.UUID) (model.Snapshot, error) {
	conn, err := s.gsm.Connect(ctx, uuid.New())
	if err != nil {
		return model.Snapshot{}, errs.Wrap(errs.CategoryShardMapManager, errs.CodeMappingsKillConnectionFailure, "connect GSM", err)
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
		return model.Snapshot{}, errs.Wrap(errs.CategoryShardMapManager, errs.CodeMappingsKillConnectionFailure, "read snapshot", txErr)
	}
	if code != store.Success {
		return model.Snapshot{}, asShardMapManagerError(code, shardMapID.String())
	}
	return snap, nil
}

// GetMappingById fetches shardMapID's mapping identified by mappingID,
// used by recovery tooling and by lock operations that address mappings
// by id rather than by key.
func (s *ShardMapManager) GetMappingById(ctx context.Context, shardMapID, mappingID uuid.UUID) (model.Mapping, error) {
	snap, err := s.Snapshot(ctx, shardMapID)
	if err != nil {
		return model.Mapping{}, err
	}
	m, ok := snap.MappingByID(mappingID)
	if !ok {
		return model.Mapping{}, errs.New(errs.CategoryShardMapManager, errs.CodeMappingDoesNotExist, mappingID.String())
	}
	return m, nil
}

// GetMappingForRange returns the single mapping exactly matching r in
// shardMapID, if any.
func (s *ShardMapManager) GetMappingForRange(ctx context.Context, shardMapID uuid.UUID, r model.Range) (model.Mapping, bool, error) {
	snap, err := s.Snapshot(ctx, shardMapID)
	if err != nil {
		return model.Mapping{}, false, err
	}
	mappings := snap.Mappings()
	idx := slices.IndexFunc(mappings, func(m model.Mapping) bool { return m.Range.Equals(r) })
	if idx < 0 {
		return model.Mapping{}, false, nil
	}
	return mappings[idx], true, nil
}

// GetMappingsForRange returns every mapping in shardMapID intersecting r.
func (s *ShardMapManager) GetMappingsForRange(ctx context.Context, shardMapID uuid.UUID, r model.Range) ([]model.Mapping, error) {
	snap, err := s.Snapshot(ctx, shardMapID)
	if err != nil {
		return nil, err
	}
	return snap.MappingsForRange(r), nil
}

// ListPendingOperations lists every incomplete WAL entry scoped to
// shardMapID, an observability primitive over the coordinator's
// operation log.
func (s *ShardMapManager) ListPendingOperations(ctx context.Context, shardMapID uuid.UUID) ([]store.OperationLogEntry, error) {
	conn, err := s.gsm.Connect(ctx, uuid.New())
	if err != nil {
		return nil, errs.Wrap(errs.CategoryShardMapManager, errs.CodeMappingsKillConnectionFailure, "connect GSM", err)
	}
	defer conn.Close()

	var entries []store.OperationLogEntry
	txErr := conn.WithTx(ctx, func(tx store.GlobalTx) error {
		log, lerr := tx.ListOperationLog(shardMapID)
		if lerr != nil {
			return lerr
		}
		for _, e := range log {
			if !e.Complete {
				entries = append(entries, e)
			}
		}
		return nil
	})
	if txErr != nil {
		return nil, errs.Wrap(errs.CategoryShardMapManager, errs.CodeMappingsKillConnectionFailure, "list operation log", txErr)
	}
	return entries, nil
}

// AddShard adds shard to shardMapID.
func (s *ShardMapManager) AddShard(ctx context.Context, shardMapID uuid.UUID, shard model.Shard) error {
	return s.engine.Do(ctx, coordinator.NewAddShardOp(shardMapID, shard))
}

// RemoveShard removes shard from shardMapID. Fails with
// errs.CodeShardHasMappings if any mapping still targets it.
func (s *ShardMapManager) RemoveShard(ctx context.Context, shardMapID uuid.UUID, shard model.Shard) error {
	return s.engine.Do(ctx, coordinator.NewRemoveShardOp(shardMapID, shard))
}

// UpdateShard replaces oldShard with newShard (e.g. flipping its status).
func (s *ShardMapManager) UpdateShard(ctx context.Context, shardMapID uuid.UUID, oldShard, newShard model.Shard) error {
	return s.engine.Do(ctx, coordinator.NewUpdateShardOp(shardMapID, oldShard, newShard))
}

// AddMapping adds mapping, replicating it to both the GSM and its target
// shard's LSM, and primes the cache with the new entry.
func (s *ShardMapManager) AddMapping(ctx context.Context, shardMapID uuid.UUID, mapping model.Mapping) error {
	if err := s.engine.Do(ctx, coordinator.NewAddMappingOp(shardMapID, mapping)); err != nil {
		return err
	}
	s.mapper.Cache.Insert(shardMapID, mappingKindOf(mapping), mapping, 0, cache.OverwriteExisting)
	return nil
}

// RemoveMapping removes mapping from both the GSM and its shard's LSM,
// and evicts it from the cache.
func (s *ShardMapManager) RemoveMapping(ctx context.Context, shardMapID uuid.UUID, mapping model.Mapping) error {
	if err := s.engine.Do(ctx, coordinator.NewRemoveMappingOp(shardMapID, mapping)); err != nil {
		return err
	}
	s.mapper.Cache.DeleteMapping(shardMapID, mapping.ID)
	return nil
}

// UpdateMapping replaces oldMapping with newMapping, moving it between
// shards when their locations differ.
func (s *ShardMapManager) UpdateMapping(ctx context.Context, shardMapID uuid.UUID, oldMapping, newMapping model.Mapping) error {
	if err := s.engine.Do(ctx, coordinator.NewUpdateMappingOp(shardMapID, oldMapping, newMapping)); err != nil {
		return err
	}
	s.mapper.Cache.DeleteMapping(shardMapID, oldMapping.ID)
	s.mapper.Cache.Insert(shardMapID, mappingKindOf(newMapping), newMapping, 0, cache.OverwriteExisting)
	return nil
}

// SplitMapping replaces original with left and right, two mappings
// covering the same combined range on the same shard.
func (s *ShardMapManager) SplitMapping(ctx context.Context, shardMapID uuid.UUID, original, left, right model.Mapping) error {
	if err := s.engine.Do(ctx, coordinator.NewSplitMappingOp(shardMapID, original, left, right)); err != nil {
		return err
	}
	s.mapper.Cache.DeleteMapping(shardMapID, original.ID)
	return nil
}

// MergeMapping replaces the adjacent left and right with merged.
func (s *ShardMapManager) MergeMapping(ctx context.Context, shardMapID uuid.UUID, left, right, merged model.Mapping) error {
	if err := s.engine.Do(ctx, coordinator.NewMergeMappingOp(shardMapID, left, right, merged)); err != nil {
		return err
	}
	s.mapper.Cache.DeleteMapping(shardMapID, left.ID)
	s.mapper.Cache.DeleteMapping(shardMapID, right.ID)
	return nil
}

// MarkOnline flips mapping's status to online, re-enabling new data-plane
// connections to it.
func (s *ShardMapManager) MarkOnline(ctx context.Context, shardMapID uuid.UUID, mapping model.Mapping) error {
	if err := s.engine.Do(ctx, coordinator.NewMarkMappingOnlineOp(shardMapID, mapping)); err != nil {
		return err
	}
	s.mapper.Cache.DeleteMapping(shardMapID, mapping.ID)
	return nil
}

// MarkOffline flips mapping's status to offline, refusing new data-plane
// connections to it (invariant 4) until it is marked online again.
func (s *ShardMapManager) MarkOffline(ctx context.Context, shardMapID uuid.UUID, mapping model.Mapping) error {
	if err := s.engine.Do(ctx, coordinator.NewMarkMappingOfflineOp(shardMapID, mapping)); err != nil {
		return err
	}
	s.mapper.Cache.DeleteMapping(shardMapID, mapping.ID)
	return nil
}

// OpenConnectionForKey opens a connection to the shard owning key in
// shardMapID, per spec §4.F. See mapper.Options for Validate/KeepOffline.
func (s *ShardMapManager) OpenConnectionForKey(ctx context.Context, shardMapID uuid.UUID, mapKind model.MapKind, key model.Key, opts mapper.Options) (store.LocalConn, model.Mapping, error) {
	return s.mapper.OpenConnectionForKey(ctx, shardMapID, mapKind, key, opts)
}

// Lock acquires owner's lock on mapping.
func (s *ShardMapManager) Lock(ctx context.Context, shardMapID uuid.UUID, mapping model.Mapping, owner uuid.UUID) (model.Mapping, error) {
	return s.locks.Lock(ctx, shardMapID, mapping, owner)
}

// Unlock releases owner's lock on mapping. owner == model.ForceUnlockToken
// always succeeds regardless of current owner.
func (s *ShardMapManager) Unlock(ctx context.Context, shardMapID uuid.UUID, mapping model.Mapping, owner uuid.UUID) (model.Mapping, error) {
	return s.locks.Unlock(ctx, shardMapID, mapping, owner)
}

// UnlockAllForOwner releases every mapping in shardMapID currently locked
// by owner.
func (s *ShardMapManager) UnlockAllForOwner(ctx context.Context, shardMapID uuid.UUID, owner uuid.UUID) error {
	return s.locks.UnlockAllForOwner(ctx, shardMapID, owner)
}

// UnlockAll force-unlocks every currently locked mapping in shardMapID.
func (s *ShardMapManager) UnlockAll(ctx context.Context, shardMapID uuid.UUID) error {
	return s.locks.UnlockAll(ctx, shardMapID)
}

// MonitorShardHealth starts polling shardMapID's shards at interval and
// flips a shard's status (via UpdateShard) to Offline when its location
// stops answering health checks, and back to Online once it recovers. The
// returned stop function cancels the polling goroutine and blocks until it
// has exited; callers should defer it for the lifetime of the manager.
func (s *ShardMapManager) MonitorShardHealth(shardMapID uuid.UUID, interval time.Duration) func() {
	hm := coordinator.NewHealthMonitor(interval)
	hm.SetOnUnhealthy(func(shardID uuid.UUID) {
		s.flipShardStatus(context.Background(), shardMapID, shardID, model.ShardOffline)
	})
	hm.SetOnHealthy(func(shardID uuid.UUID) {
		s.flipShardStatus(context.Background(), shardMapID, shardID, model.ShardOnline)
	})

	ctx, cancel := context.WithCancel(context.Background())
	go hm.Start(ctx, func() []model.Shard {
		snap, err := s.Snapshot(context.Background(), shardMapID)
		if err != nil {
			return nil
		}
		return snap.Shards()
	})

	return func() {
		cancel()
		hm.Stop()
	}
}

func (s *ShardMapManager) flipShardStatus(ctx context.Context, shardMapID, shardID uuid.UUID, status model.ShardStatus) {
	snap, err := s.Snapshot(ctx, shardMapID)
	if err != nil {
		s.logger.Warn("shard health: snapshot failed", zap.Error(err))
		return
	}
	old, ok := snap.ShardByID(shardID)
	if !ok || old.Status == status {
		return
	}
	updated := old.WithNewVersion()
	updated.Status = status
	if err := s.UpdateShard(ctx, shardMapID, old, updated); err != nil {
		s.logger.Warn("shard health: update shard status failed", zap.Error(err))
	}
}

func mappingKindOf(m model.Mapping) model.MapKind {
	if m.IsPoint() {
		return model.MapKindList
	}
	return model.MapKindRange
}

func asShardMapManagerError(code store.ResultCode, context string) error {
	switch code {
	case store.ResultShardMapDoesNotExist:
		return errs.New(errs.CategoryShardMapManager, errs.CodeShardMapDoesNotExist, context)
	case store.ResultShardMapAlreadyExists:
		return errs.New(errs.CategoryShardMapManager, errs.CodeShardMapAlreadyExists, context)
	default:
		return errs.New(errs.CategoryShardMapManager, errs.CodeUnexpectedError, context)
	}
}
