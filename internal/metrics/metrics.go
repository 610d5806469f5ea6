// Package metrics registers the Prometheus metrics exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FetchRequests counts outbound requests that actually hit the network,
	// labelled by outcome ("ok", "timeout", "transport", "malformed").
	FetchRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eliwatch_fetch_requests_total",
			Help: "Outbound HTTP requests issued by the request cache.",
		},
		[]string{"outcome"},
	)

	// FetchCacheHits counts requests answered from the batch cache.
	FetchCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "eliwatch_fetch_cache_hits_total",
			Help: "Requests served from the per-run response cache.",
		},
	)

	// CheckResults counts aspect outcomes by aspect and status.
	CheckResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eliwatch_check_results_total",
			Help: "Checked aspects by aspect and resulting status.",
		},
		[]string{"aspect", "status"},
	)

	// BatchDuration observes wall-clock time of a full run.
	BatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "eliwatch_batch_duration_seconds",
			Help:    "Duration of a full validation run in seconds.",
			Buckets: []float64{10, 30, 60, 120, 300, 600, 1200, 1800, 3600, 7200},
		},
	)

	// BatchSources is the number of sources in the last run.
	BatchSources = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "eliwatch_batch_sources",
			Help: "Number of sources evaluated in the last run.",
		},
	)
)
