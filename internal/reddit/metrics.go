package reddit

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "sentinel_reddit_requests",
	Help: "Number of Reddit API requests, by endpoint and status",
}, []string{"endpoint", "status"})

var requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "sentinel_reddit_request_duration_seconds",
	Help:    "Latency of Reddit API requests",
	Buckets: prometheus.DefBuckets,
}, []string{"endpoint"})
