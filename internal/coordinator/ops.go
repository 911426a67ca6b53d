package coordinator

import (
	"github.com/google/uuid"

	"github.com/dreamware/shardmap/internal/model"
	"github.com/dreamware/shardmap/internal/store"
)

// opStep pairs a store.Step with the OpCode that should be used to apply
// it. A phase's batch can mix op codes -- e.g. split_mapping's GSM-pre
// batch removes the original mapping with OpRemoveMapping and inserts the
// two new ones with OpSplitMapping -- so a batch is a slice of these
// rather than one OpCode shared across every step.
type opStep struct {
	OpCode store.OpCode
	Step   store.Step
}

type stepBatch []opStep

func shardStep(code store.OpCode, s model.Shard) opStep {
	return opStep{OpCode: code, Step: store.Step{StepOp: code, Shard: &s}}
}

func mappingStep(code store.OpCode, m model.Mapping) opStep {
	return opStep{OpCode: code, Step: store.Step{StepOp: code, Mapping: &m}}
}

func lockStep(code store.OpCode, m model.Mapping, owner uuid.UUID) opStep {
	return opStep{OpCode: code, Step: store.Step{StepOp: code, Mapping: &m, LockOwnerID: owner}}
}

// locatedBatch is a stepBatch scoped to one LSM shard.
type locatedBatch struct {
	Location model.Location
	Batch    stepBatch
}

// OperationSpec is a declarative description of one coordinated mutation:
// the GSM-pre-local batch every operation has, an optional source and
// target LSM batch, a GSM-post-local batch, and the batches that undo
// each of those. Engine.Do drives a spec through the four-phase protocol;
// it never branches on which kind of operation it is running, because
// internal/store's ApplyShardStep/ApplyMappingStep already enforce every
// operation's preconditions and the OpCode embedded in each opStep tells
// the store which mutation to perform.
type OperationSpec struct {
	OpCode     store.OpCode
	ShardMapID uuid.UUID

	DoGSMPre  stepBatch
	DoSource  *locatedBatch
	DoTarget  *locatedBatch
	DoGSMPost stepBatch

	UndoGSMPost stepBatch
	UndoSource  *locatedBatch
	UndoTarget  *locatedBatch
}

// NewAddShardOp builds the spec for adding shard to shardMapID. GSM-only:
// a shard has no LSM presence of its own until it holds mappings.
func NewAddShardOp(shardMapID uuid.UUID, shard model.Shard) OperationSpec {
	return OperationSpec{
		OpCode:      store.OpAddShard,
		ShardMapID:  shardMapID,
		DoGSMPre:    stepBatch{shardStep(store.OpAddShard, shard)},
		UndoGSMPost: stepBatch{shardStep(store.OpRemoveShard, shard)},
	}
}

// NewRemoveShardOp builds the spec for removing shard. The store rejects
// this with ResultShardHasMappings if any mapping still targets it.
func NewRemoveShardOp(shardMapID uuid.UUID, shard model.Shard) OperationSpec {
	return OperationSpec{
		OpCode:      store.OpRemoveShard,
		ShardMapID:  shardMapID,
		DoGSMPre:    stepBatch{shardStep(store.OpRemoveShard, shard)},
		UndoGSMPost: stepBatch{shardStep(store.OpAddShard, shard)},
	}
}

// NewUpdateShardOp builds the spec for flipping a shard's status (or any
// other mutable shard field). oldShard must be the pre-image read under
// the same snapshot the caller validated newShard's Version against.
func NewUpdateShardOp(shardMapID uuid.UUID, oldShard, newShard model.Shard) OperationSpec {
	return OperationSpec{
		OpCode:      store.OpUpdateShard,
		ShardMapID:  shardMapID,
		DoGSMPre:    stepBatch{shardStep(store.OpUpdateShard, newShard)},
		UndoGSMPost: stepBatch{shardStep(store.OpUpdateShard, oldShard)},
	}
}

// NewAddMappingOp builds the spec for adding mapping, which writes the
// directory entry on the GSM and replicates the same row to the target
// shard's LSM.
func NewAddMappingOp(shardMapID uuid.UUID, mapping model.Mapping) OperationSpec {
	loc := mapping.Shard.Location
	return OperationSpec{
		OpCode:     store.OpAddMapping,
		ShardMapID: shardMapID,
		DoGSMPre:   stepBatch{mappingStep(store.OpAddMapping, mapping)},
		DoSource: &locatedBatch{Location: loc,
			Batch: stepBatch{mappingStep(store.OpAddMapping, mapping)}},
		UndoGSMPost: stepBatch{mappingStep(store.OpRemoveMapping, mapping)},
		UndoSource: &locatedBatch{Location: loc,
			Batch: stepBatch{mappingStep(store.OpRemoveMapping, mapping)}},
	}
}

// NewRemoveMappingOp builds the spec for removing mapping from both the
// GSM directory and its shard's LSM replica.
func NewRemoveMappingOp(shardMapID uuid.UUID, mapping model.Mapping) OperationSpec {
	loc := mapping.Shard.Location
	return OperationSpec{
		OpCode:     store.OpRemoveMapping,
		ShardMapID: shardMapID,
		DoGSMPre:   stepBatch{mappingStep(store.OpRemoveMapping, mapping)},
		DoSource: &locatedBatch{Location: loc,
			Batch: stepBatch{mappingStep(store.OpRemoveMapping, mapping)}},
		UndoGSMPost: stepBatch{mappingStep(store.OpAddMapping, mapping)},
		UndoSource: &locatedBatch{Location: loc,
			Batch: stepBatch{mappingStep(store.OpAddMapping, mapping)}},
	}
}

// NewUpdateMappingOp builds the spec for replacing oldMapping with
// newMapping. A successful update always produces a mapping with a fresh
// id (Mapping's identity is its id alone, and update is the one operation
// that retires the old one), so both the GSM directory and the LSM
// replica treat it as a remove-old-id-then-insert-new-id pair rather than
// an in-place rewrite keyed by id -- the same shape NewSplitMappingOp and
// NewMergeMappingOp already use for their own id-changing replacements.
// When oldMapping and newMapping disagree on target shard, the insert
// lands on the new shard's LSM instead of the old one.
func NewUpdateMappingOp(shardMapID uuid.UUID, oldMapping, newMapping model.Mapping) OperationSpec {
	spec := OperationSpec{
		OpCode:     store.OpUpdateMapping,
		ShardMapID: shardMapID,
		DoGSMPre: stepBatch{
			mappingStep(store.OpRemoveMapping, oldMapping),
			mappingStep(store.OpAddMapping, newMapping),
		},
		UndoGSMPost: stepBatch{
			mappingStep(store.OpRemoveMapping, newMapping),
			mappingStep(store.OpAddMapping, oldMapping),
		},
	}
	oldLoc, newLoc := oldMapping.Shard.Location, newMapping.Shard.Location
	if oldLoc.Equals(newLoc) {
		spec.DoSource = &locatedBatch{Location: oldLoc, Batch: stepBatch{
			mappingStep(store.OpRemoveMapping, oldMapping),
			mappingStep(store.OpAddMapping, newMapping),
		}}
		spec.UndoSource = &locatedBatch{Location: oldLoc, Batch: stepBatch{
			mappingStep(store.OpRemoveMapping, newMapping),
			mappingStep(store.OpAddMapping, oldMapping),
		}}
		return spec
	}
	spec.DoSource = &locatedBatch{Location: oldLoc,
		Batch: stepBatch{mappingStep(store.OpRemoveMapping, oldMapping)}}
	spec.DoTarget = &locatedBatch{Location: newLoc,
		Batch: stepBatch{mappingStep(store.OpAddMapping, newMapping)}}
	spec.UndoSource = &locatedBatch{Location: oldLoc,
		Batch: stepBatch{mappingStep(store.OpAddMapping, oldMapping)}}
	spec.UndoTarget = &locatedBatch{Location: newLoc,
		Batch: stepBatch{mappingStep(store.OpRemoveMapping, newMapping)}}
	return spec
}

// NewSplitMappingOp builds the spec for replacing original with left and
// right, two mappings covering the same combined range on the same shard.
func NewSplitMappingOp(shardMapID uuid.UUID, original, left, right model.Mapping) OperationSpec {
	loc := original.Shard.Location
	do := stepBatch{
		mappingStep(store.OpRemoveMapping, original),
		mappingStep(store.OpSplitMapping, left),
		mappingStep(store.OpSplitMapping, right),
	}
	undo := stepBatch{
		mappingStep(store.OpRemoveMapping, right),
		mappingStep(store.OpRemoveMapping, left),
		mappingStep(store.OpSplitMapping, original),
	}
	return OperationSpec{
		OpCode:      store.OpSplitMapping,
		ShardMapID:  shardMapID,
		DoGSMPre:    do,
		DoSource:    &locatedBatch{Location: loc, Batch: do},
		UndoGSMPost: undo,
		UndoSource:  &locatedBatch{Location: loc, Batch: undo},
	}
}

// NewMergeMappingOp builds the spec for replacing the adjacent left and
// right with merged, the inverse of NewSplitMappingOp.
func NewMergeMappingOp(shardMapID uuid.UUID, left, right, merged model.Mapping) OperationSpec {
	loc := merged.Shard.Location
	do := stepBatch{
		mappingStep(store.OpRemoveMapping, left),
		mappingStep(store.OpRemoveMapping, right),
		mappingStep(store.OpMergeMapping, merged),
	}
	undo := stepBatch{
		mappingStep(store.OpRemoveMapping, merged),
		mappingStep(store.OpMergeMapping, left),
		mappingStep(store.OpMergeMapping, right),
	}
	return OperationSpec{
		OpCode:      store.OpMergeMapping,
		ShardMapID:  shardMapID,
		DoGSMPre:    do,
		DoSource:    &locatedBatch{Location: loc, Batch: do},
		UndoGSMPost: undo,
		UndoSource:  &locatedBatch{Location: loc, Batch: undo},
	}
}

// NewMarkMappingOnlineOp and NewMarkMappingOfflineOp flip a mapping's
// online/offline status on the GSM, which is the durable owner of the
// status bit, and replicate the same transition to the mapping's shard
// LSM as a presence change rather than a status field: invariant 3 makes
// the LSM the routing authority, so a mapper validating a connection
// against the LSM's own copy must find an offline mapping simply absent,
// not present-but-offline. Going offline removes the LSM row; coming back
// online re-inserts it.
func NewMarkMappingOnlineOp(shardMapID uuid.UUID, mapping model.Mapping) OperationSpec {
	return markMappingOp(shardMapID, mapping, model.MappingOnline)
}

func NewMarkMappingOfflineOp(shardMapID uuid.UUID, mapping model.Mapping) OperationSpec {
	return markMappingOp(shardMapID, mapping, model.MappingOffline)
}

func markMappingOp(shardMapID uuid.UUID, mapping model.Mapping, target model.MappingStatus) OperationSpec {
	loc := mapping.Shard.Location
	after := mapping
	after.Status = target
	before := mapping
	if target == model.MappingOnline {
		before.Status = model.MappingOffline
	} else {
		before.Status = model.MappingOnline
	}

	doGSM, undoGSM := store.OpMarkMappingOnline, store.OpMarkMappingOffline
	if target == model.MappingOffline {
		doGSM, undoGSM = store.OpMarkMappingOffline, store.OpMarkMappingOnline
	}

	spec := OperationSpec{
		OpCode:      doGSM,
		ShardMapID:  shardMapID,
		DoGSMPre:    stepBatch{mappingStep(doGSM, after)},
		UndoGSMPost: stepBatch{mappingStep(undoGSM, before)},
	}
	if target == model.MappingOffline {
		spec.DoSource = &locatedBatch{Location: loc,
			Batch: stepBatch{mappingStep(store.OpRemoveMapping, before)}}
		spec.UndoSource = &locatedBatch{Location: loc,
			Batch: stepBatch{mappingStep(store.OpAddMapping, before)}}
		return spec
	}
	spec.DoSource = &locatedBatch{Location: loc,
		Batch: stepBatch{mappingStep(store.OpAddMapping, after)}}
	spec.UndoSource = &locatedBatch{Location: loc,
		Batch: stepBatch{mappingStep(store.OpRemoveMapping, after)}}
	return spec
}

// NewLockMappingOp builds the spec for acquiring owner's lock on mapping.
// Lock ownership (component G) has no LSM component.
func NewLockMappingOp(shardMapID uuid.UUID, mapping model.Mapping, owner uuid.UUID) OperationSpec {
	return OperationSpec{
		OpCode:      store.OpLockMapping,
		ShardMapID:  shardMapID,
		DoGSMPre:    stepBatch{lockStep(store.OpLockMapping, mapping, owner)},
		UndoGSMPost: stepBatch{lockStep(store.OpUnlockMapping, mapping, owner)},
	}
}

// NewUnlockMappingOp builds the spec for releasing owner's lock on
// mapping. Undo best-effort re-acquires it under the same owner.
func NewUnlockMappingOp(shardMapID uuid.UUID, mapping model.Mapping, owner uuid.UUID) OperationSpec {
	return OperationSpec{
		OpCode:      store.OpUnlockMapping,
		ShardMapID:  shardMapID,
		DoGSMPre:    stepBatch{lockStep(store.OpUnlockMapping, mapping, owner)},
		UndoGSMPost: stepBatch{lockStep(store.OpLockMapping, mapping, owner)},
	}
}

// NewUnlockAllForOwnerOp builds the spec for releasing every mapping in
// locked (all currently locked by owner) in one operation, matching spec
// §4.G's UnlockAllMappingsForOwner. Undo best-effort re-locks each under
// the same owner.
func NewUnlockAllForOwnerOp(shardMapID uuid.UUID, locked []model.Mapping, owner uuid.UUID) OperationSpec {
	do := make(stepBatch, 0, len(locked))
	undo := make(stepBatch, 0, len(locked))
	for _, m := range locked {
		do = append(do, lockStep(store.OpUnlockMapping, m, owner))
		undo = append(undo, lockStep(store.OpLockMapping, m, owner))
	}
	return OperationSpec{
		OpCode:      store.OpUnlockAllMappingsForOwner,
		ShardMapID:  shardMapID,
		DoGSMPre:    do,
		UndoGSMPost: undo,
	}
}

// NewUnlockAllOp builds the spec for force-unlocking every mapping in
// locked regardless of current owner, matching spec §4.G's
// UnlockAllMappings(force_unlock_token). Undo best-effort restores each
// mapping's prior owner, recorded by the caller in priorOwners (same
// length and order as locked).
func NewUnlockAllOp(shardMapID uuid.UUID, locked []model.Mapping, priorOwners []uuid.UUID) OperationSpec {
	do := make(stepBatch, 0, len(locked))
	undo := make(stepBatch, 0, len(locked))
	for i, m := range locked {
		do = append(do, lockStep(store.OpUnlockMapping, m, model.ForceUnlockToken))
		if i < len(priorOwners) {
			undo = append(undo, lockStep(store.OpLockMapping, m, priorOwners[i]))
		}
	}
	return OperationSpec{
		OpCode:      store.OpUnlockAllMappings,
		ShardMapID:  shardMapID,
		DoGSMPre:    do,
		UndoGSMPost: undo,
	}
}
