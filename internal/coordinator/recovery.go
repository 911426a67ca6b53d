package coordinator

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dreamware/shardmap/internal/store"
)

// Recover implements spec §4.E.3's crash-recovery probe for shardMapID: it
// looks for a pending (incomplete) GSM log entry and, if one exists, undoes
// it from the entry's recorded UndoStartState before returning. Callers
// run this once per shard map before issuing new Do calls against it --
// ShardMapManager does so when it opens a shard map (see the root façade)
// -- rather than on every single Do, since probing on every call would pay
// an extra GSM round trip for no benefit once a shard map is known clean.
//
// Recover is itself safe to call when nothing is pending: it is then a
// single read-only round trip.
func (e *Engine) Recover(ctx context.Context, shardMapID uuid.UUID) error {
	probeID := uuid.New()
	probeConn, err := connectGSM(ctx, e.GSM, probeID)
	if err != nil {
		return err
	}
	var (
		found store.OperationLogEntry
		ok    bool
	)
	txErr := probeConn.WithTx(ctx, func(tx store.GlobalTx) error {
		found, ok = tx.FindPendingOperation(shardMapID)
		return nil
	})
	closeErr := probeConn.Close()
	if txErr != nil {
		return txErr
	}
	if closeErr != nil {
		return closeErr
	}
	if !ok {
		return nil
	}

	logger := e.Logger.With(
		zap.String("operation_id", found.OperationID.String()),
		zap.Stringer("op_code", found.OperationCode),
		zap.String("phase", "recovery"),
	)
	logger.Info("recovering pending operation found on open")

	gsmConn, err := connectGSM(ctx, e.GSM, found.OperationID)
	if err != nil {
		return err
	}
	conns := &connSet{gsm: gsmConn}
	defer func() {
		if err := conns.teardown(); err != nil {
			logger.Warn("teardown error", zap.Error(err))
		}
	}()

	st := &attemptState{operationID: found.OperationID, maxState: State(found.UndoStartState)}
	spec := specFromLogEntry(found)
	e.undo(ctx, spec, st, conns, logger)
	return nil
}

// specFromLogEntry reconstructs just enough of an OperationSpec for undo
// to run from a stored OperationLogEntry: the undo batches and their
// locations. Do-side fields are left zero since recovery never re-runs
// the do phases, only undo.
func specFromLogEntry(entry store.OperationLogEntry) OperationSpec {
	spec := OperationSpec{
		OpCode:      entry.OperationCode,
		ShardMapID:  entry.ShardMapID,
		UndoGSMPost: unflatten(entry.UndoGSMSteps),
	}
	if entry.SourceLocation != nil {
		spec.UndoSource = &locatedBatch{
			Location: *entry.SourceLocation,
			Batch:    unflatten(entry.UndoSourceSteps),
		}
	}
	if entry.TargetLocation != nil {
		spec.UndoTarget = &locatedBatch{
			Location: *entry.TargetLocation,
			Batch:    unflatten(entry.UndoTargetSteps),
		}
	}
	return spec
}
