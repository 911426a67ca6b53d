package metrics

import "github.com/prometheus/client_golang/prometheus"

// Sink is the set of observations the rest of the module emits: cache
// hit/miss/eviction counters (component C's increment_counter), operation
// coordinator phase-duration histograms, and mapper cache-refresh
// counters. A nil *Registry at New yields a Sink whose methods are no-ops.
type Sink interface {
	CacheHit(shardMapID string)
	CacheMiss(shardMapID string)
	CacheEviction(shardMapID string)
	CoordinatorPhase(opCode string, phase string, seconds float64)
	CoordinatorOutcome(opCode string, outcome string)
	MapperRefresh(shardMapID string)
}

// New returns a Sink registered against reg, or a no-op Sink if reg is nil.
func New(reg *prometheus.Registry) Sink {
	if reg == nil {
		return noopSink{}
	}
	return newPromSink(reg)
}

type noopSink struct{}

func (noopSink) CacheHit(string)                          {}
func (noopSink) CacheMiss(string)                         {}
func (noopSink) CacheEviction(string)                     {}
func (noopSink) CoordinatorPhase(string, string, float64) {}
func (noopSink) CoordinatorOutcome(string, string)        {}
func (noopSink) MapperRefresh(string)                     {}

type promSink struct {
	cacheHits      *prometheus.CounterVec
	cacheMisses    *prometheus.CounterVec
	cacheEvictions *prometheus.CounterVec
	phaseDuration  *prometheus.HistogramVec
	outcomes       *prometheus.CounterVec
	mapperRefresh  *prometheus.CounterVec
}

func newPromSink(reg *prometheus.Registry) *promSink {
	shardMapLabel := []string{"shard_map"}

	s := &promSink{
		cacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shardmap",
			Subsystem: "cache",
			Name:      "hits_total",
			Help:      "Mapping cache lookups resolved from the in-process cache.",
		}, shardMapLabel),
		cacheMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shardmap",
			Subsystem: "cache",
			Name:      "misses_total",
			Help:      "Mapping cache lookups that fell through to the GSM/LSM.",
		}, shardMapLabel),
		cacheEvictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shardmap",
			Subsystem: "cache",
			Name:      "evictions_total",
			Help:      "Mapping cache entries evicted by an overlapping insert or explicit invalidation.",
		}, shardMapLabel),
		phaseDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "shardmap",
			Subsystem: "coordinator",
			Name:      "phase_duration_seconds",
			Help:      "Wall-clock duration of one operation coordinator phase.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op_code", "phase"}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shardmap",
			Subsystem: "coordinator",
			Name:      "operations_total",
			Help:      "Completed operations by op code and outcome (success, failure).",
		}, []string{"op_code", "outcome"}),
		mapperRefresh: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "shardmap",
			Subsystem: "mapper",
			Name:      "refresh_total",
			Help:      "GSM refreshes triggered by a stale or invalid cache entry during OpenConnectionForKey.",
		}, shardMapLabel),
	}

	reg.MustRegister(
		s.cacheHits, s.cacheMisses, s.cacheEvictions,
		s.phaseDuration, s.outcomes, s.mapperRefresh,
	)
	return s
}

func (s *promSink) CacheHit(shardMapID string)      { s.cacheHits.WithLabelValues(shardMapID).Inc() }
func (s *promSink) CacheMiss(shardMapID string)     { s.cacheMisses.WithLabelValues(shardMapID).Inc() }
func (s *promSink) CacheEviction(shardMapID string) { s.cacheEvictions.WithLabelValues(shardMapID).Inc() }

func (s *promSink) CoordinatorPhase(opCode, phase string, seconds float64) {
	s.phaseDuration.WithLabelValues(opCode, phase).Observe(seconds)
}

func (s *promSink) CoordinatorOutcome(opCode, outcome string) {
	s.outcomes.WithLabelValues(opCode, outcome).Inc()
}

func (s *promSink) MapperRefresh(shardMapID string) { s.mapperRefresh.WithLabelValues(shardMapID).Inc() }
