package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SnippetCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "snipvault_snippet_created_total",
		Help: "no. of snippets created",
	})
	SnippetRetrieved = promauto.NewCounter(prometheus.CounterOpts{
		Name: "snipvault_snippet_retrieved_total",
		Help: "no. of snippets retrieved",
	})
	SnippetDeleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "snipvault_snippet_deleted_total",
		Help: "no. of snippets deleted by their owner",
	})
	SnippetsReclaimed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "snipvault_snippets_reclaimed_total",
		Help: "no. of expired snippets removed by the reclaimer",
	})
	ReclaimCycles = promauto.NewCounter(prometheus.CounterOpts{
		Name: "snipvault_reclaim_cycles_total",
		Help: "no. of reclaimer sweep cycles",
	})
	CacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "snipvault_cache_hits_total",
		Help: "no. of cache hits",
	})
	CacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "snipvault_cache_misses_total",
		Help: "no. of cache misses",
	})
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "snipvault_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint", "status"},
	)
	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snipvault_rate_limit_hits_total",
			Help: "no. of rate limit violations",
		},
		[]string{"endpoint"},
	)
	EncryptionOps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snipvault_encryption_operations_total",
			Help: "no. of encryption/decryption operations",
		},
		[]string{"operation"},
	)
	RecentErrorRatePercent = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "snipvault_recent_error_rate_percent",
		Help: "5min rolling avg error rate percentage",
	})
)

func Init() {
}
