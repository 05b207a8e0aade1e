package cache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var scoreCacheHits = promauto.NewCounter(prometheus.CounterOpts{
	Name: "sentinel_score_cache_hits",
	Help: "Number of score lookups served from the cache",
})

var scoreCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
	Name: "sentinel_score_cache_misses",
	Help: "Number of score lookups that required a computation",
})

var scoreRequestsCoalesced = promauto.NewCounter(prometheus.CounterOpts{
	Name: "sentinel_score_requests_coalesced",
	Help: "Number of score requests that waited on an in-flight computation",
})

var scoreComputeDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "sentinel_score_compute_duration_seconds",
	Help:    "Time to fetch, extract and score one subject",
	Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
}, []string{"status"})

var cacheStoreErrors = promauto.NewCounter(prometheus.CounterOpts{
	Name: "sentinel_cache_store_errors",
	Help: "Number of failed cache store operations",
})

var cacheDegraded = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "sentinel_cache_degraded",
	Help: "1 while the cache store is unavailable",
})
