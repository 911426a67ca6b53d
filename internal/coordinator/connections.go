package coordinator

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/dreamware/shardmap/internal/errs"
	"github.com/dreamware/shardmap/internal/model"
	"github.com/dreamware/shardmap/internal/store"
)

// connSet is the set of connections one executeOnce attempt holds open at
// a given moment: the GSM connection always, plus whichever of the
// source/target LSM connections the operation's phases have reached.
// teardown closes every non-nil member in parallel (spec §4.E.5:
// "teardown_connections() releases locks and closes connections on every
// exit path") and folds the independent close errors into one error.
type connSet struct {
	gsm    store.GlobalConn
	source store.LocalConn
	target store.LocalConn
}

// teardown closes every open connection concurrently via errgroup,
// aggregating per-connection close failures with multierr rather than
// discarding all but the last. Close errors here never override the
// attempt's own result -- the caller logs and returns them as a secondary
// concern.
func (c *connSet) teardown() error {
	var g errgroup.Group
	var mu errAccumulator
	if c.gsm != nil {
		conn := c.gsm
		g.Go(func() error { mu.add(conn.Close()); return nil })
	}
	if c.source != nil {
		conn := c.source
		g.Go(func() error { mu.add(conn.Close()); return nil })
	}
	if c.target != nil {
		conn := c.target
		g.Go(func() error { mu.add(conn.Close()); return nil })
	}
	_ = g.Wait()
	return mu.err()
}

// errAccumulator collects errors from concurrent goroutines under a mutex;
// multierr.Combine builds the final aggregate from whatever was collected.
type errAccumulator struct {
	mu   sync.Mutex
	errs []error
}

func (a *errAccumulator) add(err error) {
	if err == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.errs = append(a.errs, err)
}

func (a *errAccumulator) err() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return multierr.Combine(a.errs...)
}

// connectGSM opens the GSM connection for operationID, wrapping a
// transport failure as a transient domain error.
func connectGSM(ctx context.Context, gsm store.GlobalStore, operationID uuid.UUID) (store.GlobalConn, error) {
	conn, err := gsm.Connect(ctx, operationID)
	if err != nil {
		return nil, asTransportError(errs.CategoryGeneral, "connect GSM", err)
	}
	return conn, nil
}

// connectLSM opens an LSM connection to loc for operationID.
func connectLSM(ctx context.Context, lsm store.LocalStore, loc model.Location, operationID uuid.UUID) (store.LocalConn, error) {
	conn, err := lsm.Connect(ctx, loc, operationID)
	if err != nil {
		return nil, asTransportError(errs.CategoryGeneral, "connect LSM "+loc.String(), err)
	}
	return conn, nil
}
