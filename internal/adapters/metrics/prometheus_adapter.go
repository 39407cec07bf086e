package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Cache lookup results.
const (
	ResultHit     = "hit"
	ResultMiss    = "miss"
	ResultExpired = "expired"
)

var (
	CacheLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shutterbug_cache_lookups_total",
			Help: "Interaction cache lookups by namespace and result (hit, miss, expired).",
		},
		[]string{"namespace", "result"},
	)

	CacheEntriesGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "shutterbug_cache_entries",
			Help: "Number of entries held by the interaction cache, expired ones included until evicted.",
		},
	)

	CacheInvalidationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shutterbug_cache_invalidations_total",
			Help: "Keys removed from the interaction cache by reason (clear, entity, flush).",
		},
		[]string{"reason"},
	)

	ForestMutationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shutterbug_comment_mutations_total",
			Help: "Local comment forest mutations by operation and outcome.",
		},
		[]string{"op", "outcome"},
	)

	OpenThreadsGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "shutterbug_open_threads",
			Help: "Number of comment threads currently held in memory.",
		},
	)

	UpstreamRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shutterbug_upstream_requests_total",
			Help: "Requests made to the remote REST API by operation and status class.",
		},
		[]string{"op", "status"},
	)

	InvalidationEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shutterbug_invalidation_events_total",
			Help: "Invalidation events received from the event bus by kind and outcome.",
		},
		[]string{"kind", "outcome"},
	)
)

// ObserveCacheLookup counts one cache lookup.
func ObserveCacheLookup(namespace, result string) {
	if namespace == "" {
		namespace = "none"
	}
	CacheLookupsTotal.WithLabelValues(namespace, result).Inc()
}

// SetCacheEntries records the current entry count.
func SetCacheEntries(n int) {
	CacheEntriesGauge.Set(float64(n))
}

// AddCacheInvalidations counts removed keys.
func AddCacheInvalidations(reason string, n int) {
	if n <= 0 {
		return
	}
	CacheInvalidationsTotal.WithLabelValues(reason).Add(float64(n))
}

// ObserveForestMutation counts one forest mutation.
func ObserveForestMutation(op, outcome string) {
	ForestMutationsTotal.WithLabelValues(op, outcome).Inc()
}

// IncrementOpenThreads increments the open threads gauge.
func IncrementOpenThreads() {
	OpenThreadsGauge.Inc()
}

// DecrementOpenThreads decrements the open threads gauge.
func DecrementOpenThreads() {
	OpenThreadsGauge.Dec()
}

// ObserveUpstreamRequest counts one REST API call; status is "2xx", "4xx", "5xx" or "error".
func ObserveUpstreamRequest(op, status string) {
	UpstreamRequestsTotal.WithLabelValues(op, status).Inc()
}

// ObserveInvalidationEvent counts one event bus message.
func ObserveInvalidationEvent(kind, outcome string) {
	InvalidationEventsTotal.WithLabelValues(kind, outcome).Inc()
}
