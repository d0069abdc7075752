package metrics

import (
	"time"

	"github.com/krisalay/dashcache/ledger"
	"github.com/krisalay/dashcache/loader"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "dashcache"

// Collector records cache, loader and balance engine events in Prometheus.
// It satisfies types.Metrics, loader.Metrics and ledger.Metrics.
type Collector struct {
	hits        *prometheus.CounterVec
	misses      *prometheus.CounterVec
	expired     *prometheus.CounterVec
	refreshed   *prometheus.CounterVec
	invalidated prometheus.Counter

	scheduled  *prometheus.CounterVec
	completed  *prometheus.CounterVec
	failed     *prometheus.CounterVec
	superseded *prometheus.CounterVec
	waited     *prometheus.HistogramVec

	computed   *prometheus.CounterVec
	recomputed *prometheus.HistogramVec
}

// New builds a collector and registers it with reg. A nil reg skips registration.
func New(reg prometheus.Registerer) *Collector {
	c := &Collector{
		hits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Fresh cache reads by namespace",
		}, []string{"namespace"}),
		misses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Cache reads that found nothing fresh, by namespace",
		}, []string{"namespace"}),
		expired: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_expired_total",
			Help:      "Stale entries removed on read, by namespace",
		}, []string{"namespace"}),
		refreshed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_refreshes_total",
			Help:      "Values written by forced reloads, by namespace",
		}, []string{"namespace"}),
		invalidated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_invalidated_total",
			Help:      "Entries removed by Delete, Clear or InvalidateMatching",
		}),

		scheduled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "loader_scheduled_total",
			Help:      "Fetches queued by tier",
		}, []string{"tier"}),
		completed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "loader_completed_total",
			Help:      "Producer calls that succeeded, by tier",
		}, []string{"tier"}),
		failed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "loader_failed_total",
			Help:      "Producer calls that failed, by tier",
		}, []string{"tier"}),
		superseded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "loader_superseded_total",
			Help:      "Results discarded because a newer request for the key already published",
		}, []string{"tier"}),
		waited: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "loader_wait_seconds",
			Help:      "Time between queueing and dispatch, by tier",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8), // 1ms up to ~16s
		}, []string{"tier"}),

		computed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_computations_total",
			Help:      "Balance computations by how they were served",
		}, []string{"path"}),
		recomputed: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "ledger_recomputed_entries",
			Help:      "Entries whose balance was calculated per computation",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
		}, []string{"path"}),
	}

	if reg != nil {
		reg.MustRegister(c.collectors()...)
	}
	return c
}

func (c *Collector) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		c.hits, c.misses, c.expired, c.refreshed, c.invalidated,
		c.scheduled, c.completed, c.failed, c.superseded, c.waited,
		c.computed, c.recomputed,
	}
}

// Cache events
func (c *Collector) Hit(ns string)     { c.hits.WithLabelValues(ns).Inc() }
func (c *Collector) Miss(ns string)    { c.misses.WithLabelValues(ns).Inc() }
func (c *Collector) Expire(ns string)  { c.expired.WithLabelValues(ns).Inc() }
func (c *Collector) Refresh(ns string) { c.refreshed.WithLabelValues(ns).Inc() }
func (c *Collector) Invalidate(n int)  { c.invalidated.Add(float64(n)) }

// Loader events
func (c *Collector) Scheduled(tier loader.Priority) { c.scheduled.WithLabelValues(tier.String()).Inc() }

func (c *Collector) Dispatched(tier loader.Priority, waited time.Duration) {
	c.waited.WithLabelValues(tier.String()).Observe(waited.Seconds())
}

func (c *Collector) Completed(tier loader.Priority, err error) {
	if err != nil {
		c.failed.WithLabelValues(tier.String()).Inc()
		return
	}
	c.completed.WithLabelValues(tier.String()).Inc()
}

func (c *Collector) Superseded(tier loader.Priority) {
	c.superseded.WithLabelValues(tier.String()).Inc()
}

// Balance engine events
func (c *Collector) Computed(path ledger.Path, recomputed int) {
	c.computed.WithLabelValues(path.String()).Inc()
	c.recomputed.WithLabelValues(path.String()).Observe(float64(recomputed))
}
