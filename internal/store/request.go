package store

import (
	"time"

	"github.com/google/uuid"

	"github.com/dreamware/shardmap/internal/model"
)

// OpCode names one kind of coordinated operation. It is part of the wire
// payload (the "operation_code" field of spec §4.D) and is also the tag
// the coordinator's per-kind do/undo phase table dispatches on.
type OpCode int

const (
	OpAddShard OpCode = iota
	OpRemoveShard
	OpUpdateShard
	OpAddMapping
	OpRemoveMapping
	OpUpdateMapping
	OpSplitMapping
	OpMergeMapping
	OpMarkMappingOnline
	OpMarkMappingOffline
	OpLockMapping
	OpUnlockMapping
	OpUnlockAllMappingsForOwner
	OpUnlockAllMappings
)

func (c OpCode) String() string {
	switch c {
	case OpAddShard:
		return "AddShard"
	case OpRemoveShard:
		return "RemoveShard"
	case OpUpdateShard:
		return "UpdateShard"
	case OpAddMapping:
		return "AddMapping"
	case OpRemoveMapping:
		return "RemoveMapping"
	case OpUpdateMapping:
		return "UpdateMapping"
	case OpSplitMapping:
		return "SplitMapping"
	case OpMergeMapping:
		return "MergeMapping"
	case OpMarkMappingOnline:
		return "MarkMappingOnline"
	case OpMarkMappingOffline:
		return "MarkMappingOffline"
	case OpLockMapping:
		return "LockMapping"
	case OpUnlockMapping:
		return "UnlockMapping"
	case OpUnlockAllMappingsForOwner:
		return "UnlockAllMappingsForOwner"
	case OpUnlockAllMappings:
		return "UnlockAllMappings"
	default:
		return "Unknown"
	}
}

// Step is one unit of payload within a Request: the shard and/or mapping a
// single phase needs to act on, plus a lock token where relevant (spec
// §4.D: "step entries carrying mappings/shards and, where relevant, a lock
// token"). Most operations need only one or two steps; split/merge carry
// one step per resulting mapping.
//
// StepOp records which ApplyShardStep/ApplyMappingStep verb this step was
// (or should be, on undo) applied with. GlobalTx/LocalTx callers that
// already track the verb out of band (e.g. a single-opcode Request) are
// free to leave it zero; it exists so a mixed-opcode batch -- split and
// merge mappings apply a remove and two adds in one phase -- survives a
// round trip through OperationLogEntry for crash recovery.
type Step struct {
	StepOp      OpCode
	Shard       *model.Shard
	Mapping     *model.Mapping
	LockOwnerID uuid.UUID
}

// Request is the structured payload sent to a single GSM or LSM RPC call.
// Every mutating request carries an OperationID so the receiving store can
// record (GSM) or apply (LSM) it idempotently, and Undo so the same wire
// shape serves both the do and undo direction of a phase.
type Request struct {
	Version       Version
	OperationID   uuid.UUID
	OperationCode OpCode
	Undo          bool
	Steps         []Step
}

// StepsCount mirrors the wire field of the same name: a redundant count
// carried alongside Steps so a receiving store can validate the payload
// without trusting the slice length of a possibly-truncated message.
func (r Request) StepsCount() int { return len(r.Steps) }

// Result is the structured response from a single GSM or LSM RPC call: a
// result code plus zero or more row sets, matching spec §6 ("the procedure
// returns a result-code column plus zero or more row sets").
type Result struct {
	Code              ResultCode
	ShardMaps         []model.ShardMap
	Shards            []model.Shard
	Mappings          []model.Mapping
	PendingOperations []OperationLogEntry
	StoreVersion      Version
}

// OperationLogEntry is one row of the GSM operation log -- the write-ahead
// log entry that makes crash recovery possible. It is written (Complete =
// false) during GSM-pre-local and either marked Complete during
// GSM-post-local (and retained for audit/observability) or deleted once an
// undo of it completes.
//
// Alongside the do-side Steps, it carries the undo batch for every phase
// the operation might reach -- UndoGSMSteps plus, when the operation has
// an LSM component, the source/target locations and their own undo
// batches -- so that a coordinator recovering a pending entry in a fresh
// process (spec §4.E.3) has everything Undo needs without reconstructing
// the original OperationSpec.
type OperationLogEntry struct {
	OperationID    uuid.UUID
	OperationCode  OpCode
	ShardMapID     uuid.UUID
	UndoStartState int // coordinator.State ordinal; see coordinator.maxStateToUndoEntry
	Steps          []Step

	UndoGSMSteps    []Step
	SourceLocation  *model.Location
	UndoSourceSteps []Step
	TargetLocation  *model.Location
	UndoTargetSteps []Step

	Complete  bool
	CreatedAt time.Time
}
