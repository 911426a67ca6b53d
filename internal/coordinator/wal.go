package coordinator

import (
	"time"

	"github.com/google/uuid"

	"github.com/dreamware/shardmap/internal/store"
)

// flatten drops the opStep wrapper down to the plain store.Step slice a
// Request or OperationLogEntry carries on the wire, preserving each
// step's StepOp so a later replay (undo, or crash recovery) still knows
// which ApplyMappingStep/ApplyShardStep verb to use.
func flatten(b stepBatch) []store.Step {
	steps := make([]store.Step, len(b))
	for i, s := range b {
		steps[i] = s.Step
	}
	return steps
}

// unflatten is flatten's inverse, used when replaying a batch read back
// from an OperationLogEntry (crash recovery) rather than built fresh from
// an OperationSpec.
func unflatten(steps []store.Step) stepBatch {
	batch := make(stepBatch, len(steps))
	for i, s := range steps {
		batch[i] = opStep{OpCode: s.StepOp, Step: s}
	}
	return batch
}

// undoStartStateFor reports the furthest State spec's Do side could
// possibly reach, used as the WAL entry's UndoStartState. Recovery reads
// this back and conservatively assumes that furthest state was reached,
// relying on undo's idempotent-result handling (see isIdempotentUndoResult
// in engine.go) to make replaying an undo batch against a phase that
// never actually committed a no-op rather than a spurious failure.
func undoStartStateFor(spec OperationSpec) State {
	switch {
	case spec.DoTarget != nil:
		return StateLocalTargetCommit
	case spec.DoSource != nil:
		return StateLocalSourceCommit
	default:
		return StateGlobalPreLocalCommit
	}
}

// buildLogEntry constructs the WAL row written during GSM-pre-local,
// carrying every undo batch the operation might need regardless of how
// far it actually gets -- see undoStartStateFor.
func buildLogEntry(operationID uuid.UUID, spec OperationSpec) store.OperationLogEntry {
	entry := store.OperationLogEntry{
		OperationID:    operationID,
		OperationCode:  spec.OpCode,
		ShardMapID:     spec.ShardMapID,
		UndoStartState: int(undoStartStateFor(spec)),
		Steps:          flatten(spec.DoGSMPre),
		UndoGSMSteps:   flatten(spec.UndoGSMPost),
		CreatedAt:      time.Now(),
	}
	if spec.DoSource != nil {
		loc := spec.DoSource.Location
		entry.SourceLocation = &loc
		entry.UndoSourceSteps = flatten(spec.UndoSource.Batch)
	}
	if spec.DoTarget != nil {
		loc := spec.DoTarget.Location
		entry.TargetLocation = &loc
		entry.UndoTargetSteps = flatten(spec.UndoTarget.Batch)
	}
	return entry
}
