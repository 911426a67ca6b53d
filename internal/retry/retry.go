package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/dreamware/shardmap/internal/errs"
)

// TransientPredicate reports whether err is worth retrying. The default,
// DefaultTransient, retries the faults spec §4.I names as transient:
// connect timeouts, deadlock victims, and broken connections, which this
// module tags with errs.CodeMappingsKillConnectionFailure whatever the
// errs.Category. Anything else -- errs.CodeUnexpectedError, validation
// failures, conflicts, version mismatches the caller must react to -- is
// not transient and is returned on the first attempt.
type TransientPredicate func(err error) bool

// DefaultTransient is the transient-fault predicate used when Policy.IsTransient
// is nil: it retries errors tagged errs.CodeMappingsKillConnectionFailure
// (broken connection) in any errs.Category, and plain
// context deadline/cancellation is explicitly excluded, since a caller
// that cancelled its own context does not want retries to paper over it.
func DefaultTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return errs.Is(err, errs.CodeMappingsKillConnectionFailure)
}

// Policy configures the bounded exponential backoff wrapper. The zero
// Policy is usable: it fills in the same defaults backoff.NewExponentialBackOff
// would, capped at MaxElapsedTime to guarantee termination, and uses
// DefaultTransient.
type Policy struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxElapsedTime  time.Duration
	MaxAttempts     int // 0 means unlimited (bounded only by MaxElapsedTime)
	IsTransient     TransientPredicate
}

// DefaultPolicy matches the interval/elapsed-time defaults the coordinator
// uses when no explicit Policy is supplied.
func DefaultPolicy() Policy {
	return Policy{
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     5 * time.Second,
		MaxElapsedTime:  30 * time.Second,
		MaxAttempts:     8,
	}
}

func (p Policy) backoffFor(ctx context.Context) backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		eb.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		eb.MaxInterval = p.MaxInterval
	}
	eb.MaxElapsedTime = p.MaxElapsedTime
	if eb.MaxElapsedTime == 0 {
		eb.MaxElapsedTime = DefaultPolicy().MaxElapsedTime
	}

	var b backoff.BackOff = backoff.WithContext(eb, ctx)
	if p.MaxAttempts > 0 {
		b = backoff.WithMaxRetries(b, uint64(p.MaxAttempts-1))
	}
	return b
}

// Do runs attempt once, and again on each error attempt returns for which
// IsTransient (or DefaultTransient) reports true, waiting the backoff's
// computed interval between tries. It gives up and returns the last error
// once the policy's retry bound is reached, once attempt returns a
// non-transient error, or once ctx is done.
//
// attempt is spec §4.I's "execute_once": the coordinator's full phase
// state machine for one attempt, including any max-do-state it carries
// across retries in its own closure state -- Do does not reset that state
// between tries, it only decides whether to call attempt again.
func Do(ctx context.Context, policy Policy, attempt func(ctx context.Context) error) error {
	isTransient := policy.IsTransient
	if isTransient == nil {
		isTransient = DefaultTransient
	}

	var lastErr error
	op := func() error {
		err := attempt(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		if !isTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	if err := backoff.Retry(op, policy.backoffFor(ctx)); err != nil {
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			return perm.Err
		}
		if lastErr != nil {
			return lastErr
		}
		return err
	}
	return nil
}
