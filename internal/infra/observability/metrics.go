package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// Metrics holds all Prometheus metrics for the allocation and
// reconciliation core.
type Metrics struct {
	// Registry is the Prometheus registry that owns these metrics.
	// Exposed so the /metrics endpoint can use it.
	Registry *prometheus.Registry

	requestDuration  *prometheus.HistogramVec
	storeErrors      *prometheus.CounterVec
	cacheHits        *prometheus.CounterVec
	cacheMisses      *prometheus.CounterVec
	autoMatchItems   *prometheus.CounterVec
	allocationChecks *prometheus.CounterVec
}

// MatcherSnapshot is a point-in-time view of the matching counters,
// served by GET /v1/metrics/reconciliation.
type MatcherSnapshot struct {
	ItemsMatched        float64 `json:"items_matched"`
	ItemsUnmatched      float64 `json:"items_unmatched"`
	ItemsSkipped        float64 `json:"items_skipped"`
	MatchRate           float64 `json:"match_rate"`
	AllocationsAccepted float64 `json:"allocations_accepted"`
	AllocationsRejected float64 `json:"allocations_rejected"`
	CacheHitRate        float64 `json:"catalog_cache_hit_rate"`
}

// NewMetrics creates a dedicated Prometheus registry and registers all
// application metrics in it. Using a private registry avoids "duplicate
// collector" panics when NewMetrics is called more than once (e.g. in tests).
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "finbooks_request_duration_seconds",
				Help:    "Duration of requests by operation.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		storeErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finbooks_store_errors_total",
				Help: "Total errors from the backing store.",
			},
			[]string{"store"},
		),
		cacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finbooks_cache_hits_total",
				Help: "Total cache hits.",
			},
			[]string{"cache"},
		),
		cacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finbooks_cache_misses_total",
				Help: "Total cache misses.",
			},
			[]string{"cache"},
		),
		autoMatchItems: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finbooks_automatch_items_total",
				Help: "Line items processed by auto-match, by outcome.",
			},
			[]string{"outcome"},
		),
		allocationChecks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finbooks_allocation_checks_total",
				Help: "SetBreakdowns calls by validation result.",
			},
			[]string{"result"},
		),
	}
}

// RecordRequestDuration records the duration of an operation.
func (m *Metrics) RecordRequestDuration(operation string, d time.Duration) {
	m.requestDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// IncrStoreError increments the store error counter.
func (m *Metrics) IncrStoreError(store string) {
	m.storeErrors.WithLabelValues(store).Inc()
}

// IncrCacheHit increments the cache hit counter.
func (m *Metrics) IncrCacheHit(cache string) {
	m.cacheHits.WithLabelValues(cache).Inc()
}

// IncrCacheMiss increments the cache miss counter.
func (m *Metrics) IncrCacheMiss(cache string) {
	m.cacheMisses.WithLabelValues(cache).Inc()
}

// IncrAutoMatch records one line item processed by auto-match.
// Outcome is "matched", "unmatched" or "skipped".
func (m *Metrics) IncrAutoMatch(outcome string) {
	m.autoMatchItems.WithLabelValues(outcome).Inc()
}

// IncrAllocation records one SetBreakdowns call.
// Result is "accepted" or "rejected".
func (m *Metrics) IncrAllocation(result string) {
	m.allocationChecks.WithLabelValues(result).Inc()
}

// Snapshot gathers the current counter values for the reconciliation
// metrics endpoint. Prometheus counters are cumulative.
func (m *Metrics) Snapshot() *MatcherSnapshot {
	matched := getCounterValue(m.autoMatchItems, "matched")
	unmatched := getCounterValue(m.autoMatchItems, "unmatched")
	skipped := getCounterValue(m.autoMatchItems, "skipped")
	accepted := getCounterValue(m.allocationChecks, "accepted")
	rejected := getCounterValue(m.allocationChecks, "rejected")
	hits := getCounterValue(m.cacheHits, "catalog")
	misses := getCounterValue(m.cacheMisses, "catalog")

	matchRate := float64(0)
	if matched+unmatched > 0 {
		matchRate = matched / (matched + unmatched)
	}
	hitRate := float64(0)
	if hits+misses > 0 {
		hitRate = hits / (hits + misses)
	}

	return &MatcherSnapshot{
		ItemsMatched:        matched,
		ItemsUnmatched:      unmatched,
		ItemsSkipped:        skipped,
		MatchRate:           matchRate,
		AllocationsAccepted: accepted,
		AllocationsRejected: rejected,
		CacheHitRate:        hitRate,
	}
}

// getCounterValue extracts the current float64 value from a CounterVec for a given label.
func getCounterValue(cv *prometheus.CounterVec, label string) float64 {
	counter := cv.WithLabelValues(label)
	m := &dto.Metric{}
	if err := counter.(prometheus.Metric).Write(m); err != nil {
		return 0
	}
	if m.Counter != nil && m.Counter.Value != nil {
		return *m.Counter.Value
	}
	return 0
}
