// Package retry wraps a single coordinator attempt (spec §4.I's
// "execute_once") with bounded exponential backoff and jitter over a
// transient-fault predicate, using github.com/cenkalti/backoff/v4.
package retry
