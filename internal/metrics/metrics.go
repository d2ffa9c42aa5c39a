package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	jobsEnqueued = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clipcast",
			Name:      "jobs_enqueued_total",
			Help:      "Publish jobs accepted by the planner.",
		},
		[]string{"platform"},
	)

	jobsPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clipcast",
			Name:      "jobs_published_total",
			Help:      "Publish jobs that reached published.",
		},
		[]string{"platform"},
	)

	jobsAbandoned = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clipcast",
			Name:      "jobs_abandoned_total",
			Help:      "Publish jobs abandoned after exhausting retries.",
		},
		[]string{"platform"},
	)

	jobsDeferred = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clipcast",
			Name:      "jobs_deferred_total",
			Help:      "Publish jobs returned to the queue by the rate limiter.",
		},
		[]string{"platform"},
	)

	claimMisses = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "clipcast",
			Name:      "claim_misses_total",
			Help:      "Claim attempts that found no due job.",
		},
	)

	checkbacksCompleted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clipcast",
			Name:      "checkbacks_completed_total",
			Help:      "Checkback tasks completed with a stored snapshot.",
		},
		[]string{"platform"},
	)

	checkbacksSkipped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clipcast",
			Name:      "checkbacks_skipped_total",
			Help:      "Checkback tasks skipped after exhausting fetch attempts.",
		},
		[]string{"platform"},
	)

	rollupRecomputes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "clipcast",
			Name:      "rollup_recomputes_total",
			Help:      "Rollup snapshot recomputations.",
		},
	)

	queueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "clipcast",
			Name:      "queue_depth",
			Help:      "Jobs currently in queued state.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clipcast",
			Name:      "http_requests_total",
			Help:      "HTTP API requests by endpoint.",
		},
		[]string{"endpoint"},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			jobsEnqueued,
			jobsPublished,
			jobsAbandoned,
			jobsDeferred,
			claimMisses,
			checkbacksCompleted,
			checkbacksSkipped,
			rollupRecomputes,
			queueDepth,
			httpRequests,
		)
	})
}

func IncEnqueued(platform string) { jobsEnqueued.WithLabelValues(platform).Inc() }
func IncPublished(platform string) { jobsPublished.WithLabelValues(platform).Inc() }
func IncAbandoned(platform string) { jobsAbandoned.WithLabelValues(platform).Inc() }
func IncDeferred(platform string) { jobsDeferred.WithLabelValues(platform).Inc() }

func IncClaimMiss() { claimMisses.Inc() }

func IncCheckbackCompleted(platform string) { checkbacksCompleted.WithLabelValues(platform).Inc() }
func IncCheckbackSkipped(platform string) { checkbacksSkipped.WithLabelValues(platform).Inc() }

func IncRollupRecompute() { rollupRecomputes.Inc() }

func SetQueueDepth(n int)     { queueDepth.Set(float64(n)) }
func IncHTTP(endpoint string) { httpRequests.WithLabelValues(endpoint).Inc() }
