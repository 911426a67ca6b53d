package coordinator

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dreamware/shardmap/internal/errs"
	"github.com/dreamware/shardmap/internal/metrics"
	"github.com/dreamware/shardmap/internal/retry"
	"github.com/dreamware/shardmap/internal/store"
)

// Engine drives OperationSpec values through the four-phase protocol. One
// Engine serves an entire ShardMapManager: it is safe for concurrent use,
// since all mutable state lives on the per-call attemptState rather than
// on the Engine itself.
type Engine struct {
	GSM     store.GlobalStore
	LSM     store.LocalStore
	Retry   retry.Policy
	Metrics metrics.Sink
	Logger  *zap.Logger
}

// Option configures an Engine built with New.
type Option func(*Engine)

func WithRetryPolicy(p retry.Policy) Option { return func(e *Engine) { e.Retry = p } }
func WithMetrics(sink metrics.Sink) Option  { return func(e *Engine) { e.Metrics = sink } }
func WithLogger(l *zap.Logger) Option       { return func(e *Engine) { e.Logger = l } }

// New builds an Engine over gsm/lsm with the default retry policy, a
// no-op metrics sink, and a no-op logger unless overridden by opts.
func New(gsm store.GlobalStore, lsm store.LocalStore, opts ...Option) *Engine {
	e := &Engine{
		GSM:     gsm,
		LSM:     lsm,
		Retry:   retry.DefaultPolicy(),
		Metrics: metrics.New(nil),
		Logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// attemptState is the state one Do call carries across every retried
// executeOnce attempt: a stable operationID (so a retry shares the same
// advisory lock and WAL entry as the attempt it is retrying) and the
// maximum State reached so far, which picks Undo's re-entry point.
type attemptState struct {
	operationID uuid.UUID
	maxState    State
}

// Do runs spec to completion, retrying transient failures per e.Retry and
// undoing (via maxStateToUndoEntry) whatever committed before a
// non-transient failure or a retry budget exhaustion.
func (e *Engine) Do(ctx context.Context, spec OperationSpec) error {
	st := &attemptState{operationID: uuid.New()}
	started := time.Now()
	err := retry.Do(ctx, e.Retry, func(ctx context.Context) error {
		return e.executeOnce(ctx, spec, st)
	})
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	e.Metrics.CoordinatorOutcome(spec.OpCode.String(), outcome)
	e.Metrics.CoordinatorPhase(spec.OpCode.String(), "total", time.Since(started).Seconds())
	return err
}

// executeOnce is one full do-or-undo pass of the protocol: spec §4.I's
// execute_once. It establishes whichever connections the operation needs,
// drives GSM-pre-local, LSM-source, LSM-target and GSM-post-local in
// order, and unwinds via undo on the first failure.
func (e *Engine) executeOnce(ctx context.Context, spec OperationSpec, st *attemptState) error {
	logger := e.Logger.With(
		zap.String("operation_id", st.operationID.String()),
		zap.Stringer("op_code", spec.OpCode),
	)
	conns := &connSet{}
	defer func() {
		if err := conns.teardown(); err != nil {
			logger.Warn("teardown error", zap.Error(err))
		}
	}()

	gsmConn, err := connectGSM(ctx, e.GSM, st.operationID)
	if err != nil {
		return err
	}
	conns.gsm = gsmConn

	phaseStart := time.Now()
	entry := buildLogEntry(st.operationID, spec)
	err = gsmConn.WithTx(ctx, func(tx store.GlobalTx) error {
		if err := applyBatch(tx, spec.DoGSMPre); err != nil {
			return err
		}
		if code := tx.InsertPendingOperation(entry); code != store.Success {
			return asDomainError(errs.CategoryShardMapManager, code, "insert pending operation")
		}
		return nil
	})
	e.Metrics.CoordinatorPhase(spec.OpCode.String(), "global_pre_local", time.Since(phaseStart).Seconds())
	if err != nil {
		// Nothing committed: the WAL row itself rolled back with the rest
		// of the transaction, so there is nothing for Undo to unwind.
		return err
	}
	st.maxState = StateGlobalPreLocalCommit

	if spec.DoSource != nil {
		phaseStart = time.Now()
		sourceConn, cErr := connectLSM(ctx, e.LSM, spec.DoSource.Location, st.operationID)
		if cErr != nil {
			e.undo(ctx, spec, st, conns, logger)
			return cErr
		}
		conns.source = sourceConn
		err = sourceConn.WithTx(ctx, func(tx store.LocalTx) error {
			return applyLocalBatch(tx, spec.DoSource.Batch)
		})
		e.Metrics.CoordinatorPhase(spec.OpCode.String(), "local_source", time.Since(phaseStart).Seconds())
		if err != nil {
			e.undo(ctx, spec, st, conns, logger)
			return err
		}
		st.maxState = StateLocalSourceCommit
	}

	if spec.DoTarget != nil {
		phaseStart = time.Now()
		targetConn, cErr := connectLSM(ctx, e.LSM, spec.DoTarget.Location, st.operationID)
		if cErr != nil {
			e.undo(ctx, spec, st, conns, logger)
			return cErr
		}
		conns.target = targetConn
		err = targetConn.WithTx(ctx, func(tx store.LocalTx) error {
			return applyLocalBatch(tx, spec.DoTarget.Batch)
		})
		e.Metrics.CoordinatorPhase(spec.OpCode.String(), "local_target", time.Since(phaseStart).Seconds())
		if err != nil {
			e.undo(ctx, spec, st, conns, logger)
			return err
		}
		st.maxState = StateLocalTargetCommit
	}

	phaseStart = time.Now()
	err = gsmConn.WithTx(ctx, func(tx store.GlobalTx) error {
		if err := applyBatch(tx, spec.DoGSMPost); err != nil {
			return err
		}
		if code := tx.CompletePendingOperation(st.operationID); code != store.Success {
			return asDomainError(errs.CategoryShardMapManager, code, "complete pending operation")
		}
		return nil
	})
	e.Metrics.CoordinatorPhase(spec.OpCode.String(), "global_post_local", time.Since(phaseStart).Seconds())
	if err != nil {
		e.undo(ctx, spec, st, conns, logger)
		return err
	}
	st.maxState = StateGlobalPostLocalCommit
	return nil
}

// applyBatch runs batch against a GlobalTx, translating the first
// non-Success ResultCode into a domain error and stopping there.
func applyBatch(tx store.GlobalTx, batch stepBatch) error {
	for _, s := range batch {
		code := applyGlobalStep(tx, s)
		if code != store.Success {
			return asDomainError(errs.CategoryShardMap, code, s.OpCode.String())
		}
	}
	return nil
}

func applyGlobalStep(tx store.GlobalTx, s opStep) store.ResultCode {
	if s.Step.Shard != nil {
		return tx.ApplyShardStep(s.OpCode, s.Step)
	}
	return tx.ApplyMappingStep(s.OpCode, s.Step)
}

// applyLocalBatch is applyBatch's LSM-side counterpart; every LSM step is
// a mapping step, never a shard step.
func applyLocalBatch(tx store.LocalTx, batch stepBatch) error {
	for _, s := range batch {
		code := tx.ApplyMappingStep(s.OpCode, s.Step)
		if code != store.Success {
			return asDomainError(errs.CategoryShardMap, code, s.OpCode.String())
		}
	}
	return nil
}

// undo reverts whatever executeOnce committed, entering the reverse
// protocol at maxStateToUndoEntry(st.maxState). Every step here is
// best-effort: a failure is logged, not propagated, since the caller is
// already returning the error that triggered the undo. isIdempotentUndoResult
// lets a retried undo (this attempt, or a later crash recovery) safely
// replay an undo batch against a phase that never actually committed.
func (e *Engine) undo(ctx context.Context, spec OperationSpec, st *attemptState, conns *connSet, logger *zap.Logger) {
	entryPoint := maxStateToUndoEntry(st.maxState)
	if entryPoint == UndoEnd {
		return
	}

	if entryPoint == UndoFromLocalTarget && spec.UndoTarget != nil {
		if err := e.undoLocal(ctx, conns, true, spec.UndoTarget, st.operationID); err != nil {
			logger.Error("undo local target failed", zap.Error(err))
		}
	}
	if entryPoint != UndoFromGlobalPostLocal && spec.UndoSource != nil {
		if err := e.undoLocal(ctx, conns, false, spec.UndoSource, st.operationID); err != nil {
			logger.Error("undo local source failed", zap.Error(err))
		}
	}
	if conns.gsm == nil {
		return
	}
	err := conns.gsm.WithTx(ctx, func(tx store.GlobalTx) error {
		if err := applyUndoBatch(tx, spec.UndoGSMPost); err != nil {
			return err
		}
		if code := tx.DeletePendingOperation(st.operationID); code != store.Success {
			return asDomainError(errs.CategoryShardMapManager, code, "delete pending operation")
		}
		return nil
	})
	if err != nil {
		logger.Error("undo global failed", zap.Error(err))
	}
}

// undoLocal applies batch's undo steps at the source or target LSM
// location, reusing the connection the corresponding do phase opened when
// one is already held, and opening a fresh one (under the same
// operationID, so it serializes against any live attempt) otherwise --
// the path crash recovery takes, since a recovering process never ran the
// do phases itself.
func (e *Engine) undoLocal(ctx context.Context, conns *connSet, isTarget bool, batch *locatedBatch, operationID uuid.UUID) error {
	conn := conns.source
	if isTarget {
		conn = conns.target
	}
	if conn == nil {
		var err error
		conn, err = connectLSM(ctx, e.LSM, batch.Location, operationID)
		if err != nil {
			return err
		}
		if isTarget {
			conns.target = conn
		} else {
			conns.source = conn
		}
	}
	return conn.WithTx(ctx, func(tx store.LocalTx) error {
		return applyLocalUndoBatch(tx, batch.Batch)
	})
}

// applyUndoBatch is applyBatch's undo-aware counterpart: a ResultCode that
// isIdempotentUndoResult recognizes as "already in the undone state" is
// treated as success instead of propagated.
func applyUndoBatch(tx store.GlobalTx, batch stepBatch) error {
	for _, s := range batch {
		code := applyGlobalStep(tx, s)
		if code != store.Success && !isIdempotentUndoResult(s.OpCode, code) {
			return asDomainError(errs.CategoryRecovery, code, s.OpCode.String())
		}
	}
	return nil
}

func applyLocalUndoBatch(tx store.LocalTx, batch stepBatch) error {
	for _, s := range batch {
		code := tx.ApplyMappingStep(s.OpCode, s.Step)
		if code != store.Success && !isIdempotentUndoResult(s.OpCode, code) {
			return asDomainError(errs.CategoryRecovery, code, s.OpCode.String())
		}
	}
	return nil
}

// isIdempotentUndoResult reports whether code, seen while applying op as
// part of an undo batch, means the object was already in the state the
// undo was trying to reach -- so a second undo attempt (this attempt's own
// retry, or a later crash recovery) is a no-op rather than a real failure.
func isIdempotentUndoResult(op store.OpCode, code store.ResultCode) bool {
	switch op {
	case store.OpRemoveShard:
		return code == store.ResultShardDoesNotExist
	case store.OpAddShard:
		return code == store.ResultShardLocationAlreadyExists
	case store.OpRemoveMapping:
		return code == store.ResultMappingDoesNotExist
	case store.OpAddMapping, store.OpSplitMapping, store.OpMergeMapping:
		return code == store.ResultMappingRangeAlreadyMapped || code == store.ResultMappingPointAlreadyMapped
	case store.OpUpdateMapping, store.OpMarkMappingOnline, store.OpMarkMappingOffline:
		return code == store.ResultMappingDoesNotExist
	case store.OpLockMapping:
		return code == store.ResultMappingIsAlreadyLocked || code == store.ResultMappingDoesNotExist
	case store.OpUnlockMapping:
		return code == store.ResultMappingLockOwnerIDDoesNotMatch || code == store.ResultMappingDoesNotExist
	default:
		return false
	}
}
