// Package coordinator implements the operation coordinator: the
// four-phase distributed operation protocol (GSM-pre-local, LSM-source,
// LSM-target, GSM-post-local) with write-ahead logging on the GSM, crash
// recovery from stored pending entries, and idempotent undo.
//
// Every mutating entry point on the root ShardMapManager funnels through
// Engine.Do, which drives one OperationSpec through the protocol wrapped
// in internal/retry's bounded backoff. Read-only entry points (snapshot
// fetches used by the cache and mapper) talk to internal/store directly
// and never touch this package.
//
// # Protocol state
//
// A State value tracks how far one Do attempt has progressed; the engine
// remembers the maximum state reached separately from the current state,
// because that maximum -- not the current state at the moment of failure
// -- determines where Undo must re-enter the reverse protocol (see
// maxStateToUndoEntry in state.go).
//
// # Shard health
//
// HealthMonitor (health_monitor.go) polls each shard's model.Location on an
// interval and reports online/offline transitions through a callback,
// letting a caller (see ShardMapManager.MonitorShardHealth) drive
// UpdateShard from observed reachability instead of only from operator
// action.
package coordinator
