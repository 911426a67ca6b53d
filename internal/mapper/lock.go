package mapper

import (
	"context"

	"github.com/google/uuid"

	"github.com/dreamware/shardmap/internal/coordinator"
	"github.com/dreamware/shardmap/internal/errs"
	"github.com/dreamware/shardmap/internal/model"
	"github.com/dreamware/shardmap/internal/store"
)

// LockController implements component G, the lock-ownership protocol.
// Lock operations have no LSM component (spec §4.G: "the mapping directory
// is the ground truth; no LSM component") but still run through the full
// four-phase coordinator so they get a WAL entry and crash-recoverable
// undo like any other mutation; LockController only adds the local
// validation spec §4.G requires before an operation is even attempted.
type LockController struct {
	Engine *coordinator.Engine
	GSM    store.GlobalStore
}

// NewLockController builds a LockController sharing engine and gsm with
// the rest of the ShardMapManager.
func NewLockController(engine *coordinator.Engine, gsm store.GlobalStore) *LockController {
	return &LockController{Engine: engine, GSM: gsm}
}

// Lock acquires owner's lock on mapping. owner must not be the
// force-unlock token (spec: "lock(m, force-token) always fails").
func (l *LockController) Lock(ctx context.Context, shardMapID uuid.UUID, mapping model.Mapping, owner uuid.UUID) (model.Mapping, error) {
	if owner == model.ForceUnlockToken {
		return model.Mapping{}, errs.New(errs.CategoryValidation, errs.CodeUnexpectedError,
			"the force-unlock token must not be used as a lock owner")
	}
	spec := coordinator.NewLockMappingOp(shardMapID, mapping, owner)
	if err := l.Engine.Do(ctx, spec); err != nil {
		return model.Mapping{}, err
	}
	locked := mapping
	locked.LockOwnerID = owner
	return locked, nil
}

// Unlock releases owner's lock on mapping. Fails with
// MappingLockOwnerIdDoesNotMatch if mapping is currently locked by someone
// else; owner == ForceUnlockToken always succeeds regardless of current
// owner.
func (l *LockController) Unlock(ctx context.Context, shardMapID uuid.UUID, mapping model.Mapping, owner uuid.UUID) (model.Mapping, error) {
	spec := coordinator.NewUnlockMappingOp(shardMapID, mapping, owner)
	if err := l.Engine.Do(ctx, spec); err != nil {
		return model.Mapping{}, err
	}
	unlocked := mapping
	unlocked.LockOwnerID = model.ZeroLockOwner
	return unlocked, nil
}

// UnlockAllForOwner releases every mapping in shardMapID currently locked
// by owner, in one coordinated operation.
func (l *LockController) UnlockAllForOwner(ctx context.Context, shardMapID uuid.UUID, owner uuid.UUID) error {
	snap, err := l.readSnapshot(ctx, shardMapID)
	if err != nil {
		return err
	}
	var locked []model.Mapping
	for _, m := range snap.Mappings() {
		if m.LockOwnerID == owner {
			locked = append(locked, m)
		}
	}
	if len(locked) == 0 {
		return nil
	}
	return l.Engine.Do(ctx, coordinator.NewUnlockAllForOwnerOp(shardMapID, locked, owner))
}

// UnlockAll force-unlocks every currently locked mapping in shardMapID,
// regardless of owner (spec: "unlock_all() — only via the force token").
func (l *LockController) UnlockAll(ctx context.Context, shardMapID uuid.UUID) error {
	snap, err := l.readSnapshot(ctx, shardMapID)
	if err != nil {
		return err
	}
	var locked []model.Mapping
	var priorOwners []uuid.UUID
	for _, m := range snap.Mappings() {
		if m.IsLocked() {
			locked = append(locked, m)
			priorOwners = append(priorOwners, m.LockOwnerID)
		}
	}
	if len(locked) == 0 {
		return nil
	}
	return l.Engine.Do(ctx, coordinator.NewUnlockAllOp(shardMapID, locked, priorOwners))
}

func (l *LockController) readSnapshot(ctx context.Context, shardMapID uuid.UUID) (model.Snapshot, error) {
	conn, err := l.GSM.Connect(ctx, uuid.New())
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
		return model.Snapshot{}, errs.New(errs.CategoryShardMapManager, errs.CodeShardMapDoesNotExist, shardMapID.String())
	}
	return snap, nil
}
