// Package metrics exposes rescache stats as a Prometheus collector. The
// library starts no HTTP server; register the collector with the host's
// registry and scrape it however the host already does.
package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/bookvault/rescache"
)

// CacheCollector reads a StatsSource on every scrape and emits const
// metrics, so the cache keeps no Prometheus state of its own.
type CacheCollector struct {
	src rescache.StatsSource

	tierEntries  *prometheus.Desc
	tierBytes    *prometheus.Desc
	tierMaxBytes *prometheus.Desc
	hitsTotal    *prometheus.Desc
	fetchesTotal *prometheus.Desc
	missesTotal  *prometheus.Desc
	ownerCount   *prometheus.Desc
	degraded     *prometheus.Desc
}

var _ prometheus.Collector = (*CacheCollector)(nil)

func NewCacheCollector(src rescache.StatsSource) *CacheCollector {
	return &CacheCollector{
		src: src,
		tierEntries: prometheus.NewDesc("rescache_tier_entries",
			"Live entries per cache tier.", []string{"tier"}, nil),
		tierBytes: prometheus.NewDesc("rescache_tier_bytes",
			"Live bytes per cache tier.", []string{"tier"}, nil),
		tierMaxBytes: prometheus.NewDesc("rescache_tier_max_bytes",
			"Configured byte budget per cache tier.", []string{"tier"}, nil),
		hitsTotal: prometheus.NewDesc("rescache_hits_total",
			"Lookup hits by serving tier.", []string{"tier"}, nil),
		fetchesTotal: prometheus.NewDesc("rescache_remote_fetches_total",
			"Successful origin fetches.", nil, nil),
		missesTotal: prometheus.NewDesc("rescache_misses_total",
			"Lookups that ended without a value.", nil, nil),
		ownerCount: prometheus.NewDesc("rescache_owner_count",
			"Distinct owners in the persistent tier.", nil, nil),
		degraded: prometheus.NewDesc("rescache_persistent_degraded",
			"1 when the persistent tier is unavailable.", nil, nil),
	}
}

func (c *CacheCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.tierEntries
	ch <- c.tierBytes
	ch <- c.tierMaxBytes
	ch <- c.hitsTotal
	ch <- c.fetchesTotal
	ch <- c.missesTotal
	ch <- c.ownerCount
	ch <- c.degraded
}

func (c *CacheCollector) Collect(ch chan<- prometheus.Metric) {
	st := c.src.Stats(context.Background())

	gauge := func(d *prometheus.Desc, v float64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, v, labels...)
	}
	counter := func(d *prometheus.Desc, v float64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, v, labels...)
	}

	gauge(c.tierEntries, float64(st.L1.Entries), rescache.TierMemory)
	gauge(c.tierBytes, float64(st.L1.SizeBytes), rescache.TierMemory)
	gauge(c.tierMaxBytes, float64(st.L1.MaxSizeBytes), rescache.TierMemory)
	gauge(c.tierEntries, float64(st.L2.Entries), rescache.TierPersistent)
	gauge(c.tierBytes, float64(st.L2.SizeBytes), rescache.TierPersistent)
	gauge(c.tierMaxBytes, float64(st.L2.MaxSizeBytes), rescache.TierPersistent)

	counter(c.hitsTotal, float64(st.Counters.L1Hits), rescache.TierMemory)
	counter(c.hitsTotal, float64(st.Counters.L2Hits), rescache.TierPersistent)
	counter(c.fetchesTotal, float64(st.Counters.RemoteFetches))
	counter(c.missesTotal, float64(st.Counters.Misses))

	gauge(c.ownerCount, float64(st.OwnerCount))
	if st.L2Degraded {
		gauge(c.degraded, 1)
	} else {
		gauge(c.degraded, 0)
	}
}
