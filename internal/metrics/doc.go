// Package metrics is a thin Prometheus abstraction shared by the cache,
// coordinator, and mapper packages: callers get a typed Sink, backed by
// real prometheus collectors when a *prometheus.Registry is supplied to
// New, or a no-op sink otherwise so the hot path never pays for metric
// updates in tests or the demo CLI.
package metrics
