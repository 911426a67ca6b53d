package store

import (
	"context"
	"io"

	"github.com/google/uuid"

	"github.com/dreamware/shardmap/internal/model"
)

// GlobalStore is the GSM backend contract. A production deployment
// implements this over a real SQL driver; internal/store ships only the
// in-memory reference implementation (see memory_gsm.go).
type GlobalStore interface {
	// Connect opens a GSM connection and acquires the advisory lock keyed
	// by operationID (spec §4.E.5): concurrent Do/Undo attempts sharing the
	// same operation id -- a retry of the same attempt, or a crash-recovery
	// undo racing a live attempt -- serialize here. Close releases both the
	// lock and the connection.
	Connect(ctx context.Context, operationID uuid.UUID) (GlobalConn, error)
	// Version reports the store's own {major,minor}, used for the
	// compatibility check every request performs.
	Version() Version
}

// GlobalConn is one open, advisory-locked GSM connection.
type GlobalConn interface {
	io.Closer
	// WithTx runs fn inside one GSM transaction: fn's effects either fully
	// commit (fn returns nil) or fully roll back (fn returns an error).
	WithTx(ctx context.Context, fn func(GlobalTx) error) error
}

// GlobalTx is the set of GSM-side RPCs available inside one transaction.
type GlobalTx interface {
	ListShardMaps() ([]model.ShardMap, error)
	GetShardMapByName(name string) (model.ShardMap, bool, error)
	CreateShardMap(sm model.ShardMap) ResultCode
	DeleteShardMap(id uuid.UUID) ResultCode

	// Snapshot returns the current shards+mappings for shardMapID.
	Snapshot(shardMapID uuid.UUID) (model.Snapshot, ResultCode)
	GetShardByLocation(shardMapID uuid.UUID, loc model.Location) (model.Shard, bool)

	// ApplyShardStep and ApplyMappingStep perform one GSM-side mutation
	// (add/remove/update a shard or mapping, or flip a mapping's lock
	// owner / status) as part of GSM-pre-local or GSM-post-local.
	ApplyShardStep(op OpCode, step Step) ResultCode
	ApplyMappingStep(op OpCode, step Step) ResultCode

	InsertPendingOperation(entry OperationLogEntry) ResultCode
	CompletePendingOperation(operationID uuid.UUID) ResultCode
	DeletePendingOperation(operationID uuid.UUID) ResultCode
	// FindPendingOperation returns the first incomplete log entry scoped to
	// shardMapID, used by the coordinator's crash-recovery probe.
	FindPendingOperation(shardMapID uuid.UUID) (OperationLogEntry, bool)
	ListOperationLog(shardMapID uuid.UUID) ([]OperationLogEntry, error)
}

// LocalStore is the LSM backend contract: one instance serves every shard,
// dialing whichever Location a call names.
type LocalStore interface {
	// Connect opens an LSM connection to loc and acquires the advisory
	// lock keyed by operationID on that shard, analogous to GlobalStore's.
	Connect(ctx context.Context, loc model.Location, operationID uuid.UUID) (LocalConn, error)
	Version() Version
}

// LocalConn is one open, advisory-locked LSM connection.
type LocalConn interface {
	io.Closer
	WithTx(ctx context.Context, fn func(LocalTx) error) error
}

// LocalTx is the set of LSM-side RPCs available inside one transaction.
type LocalTx interface {
	ApplyMappingStep(op OpCode, step Step) ResultCode
	ListMappings(shardID uuid.UUID) ([]model.Mapping, error)
}
