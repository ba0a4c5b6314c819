package recommend

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Engine metrics, exposed on the server's /metrics endpoint.
var (
	searchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "fitfeed_index_search_duration_seconds",
		Help:    "Latency of vector index similarity searches",
		Buckets: prometheus.ExponentialBuckets(0.0001, 2, 12),
	})

	rebuildDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "fitfeed_index_rebuild_duration_seconds",
		Help:    "Duration of full vector index rebuilds",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
	})

	trainDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "fitfeed_cf_train_duration_seconds",
		Help:    "Duration of collaborative-filter training runs",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
	})

	indexedItems = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fitfeed_index_items",
		Help: "Number of items in the published vector index snapshot",
	})

	modelUsers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fitfeed_cf_model_users",
		Help: "Number of users in the published factor model snapshot",
	})

	modelItems = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fitfeed_cf_model_items",
		Help: "Number of items in the published factor model snapshot",
	})

	rebuildFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fitfeed_index_rebuild_failures_total",
		Help: "Count of failed index rebuilds",
	})

	trainFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fitfeed_cf_train_failures_total",
		Help: "Count of failed training runs",
	})
)
