// Package metrics provides Prometheus metrics for the tether cache and the
// reference record source.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Invalidation kinds used as the "kind" label of CacheInvalidationsTotal.
const (
	InvalidateField     = "field"
	InvalidateModel     = "model"
	InvalidateLiveQuery = "live_query"
)

// Transform outcomes used as the "status" label of SourceTransformsTotal.
const (
	StatusApplied  = "applied"
	StatusRejected = "rejected"
	StatusInvalid  = "invalid"
)

var (
	// CacheModels tracks Models currently held in identity maps
	CacheModels = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "tether",
			Subsystem: "cache",
			Name:      "models",
			Help:      "Number of Models currently held in identity maps",
		},
	)

	// CacheInvalidationsTotal tracks invalidations fanned out from source changes
	CacheInvalidationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tether",
			Subsystem: "cache",
			Name:      "invalidations_total",
			Help:      "Total number of invalidations by granularity",
		},
		[]string{"kind"},
	)

	// CacheRecomputesTotal tracks property cache recomputations after invalidation
	CacheRecomputesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "tether",
			Subsystem: "cache",
			Name:      "recomputes_total",
			Help:      "Total number of property cache recomputations",
		},
	)

	// LiveQueriesActive tracks live queries that have not been disposed
	LiveQueriesActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "tether",
			Subsystem: "cache",
			Name:      "live_queries_active",
			Help:      "Number of live queries not yet disposed",
		},
	)

	// SourceTransformsTotal tracks transforms by outcome
	SourceTransformsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tether",
			Subsystem: "source",
			Name:      "transforms_total",
			Help:      "Total number of transforms by status",
		},
		[]string{"status"},
	)

	// SourceOperationsTotal tracks applied operations by name
	SourceOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tether",
			Subsystem: "source",
			Name:      "operations_total",
			Help:      "Total number of applied operations by operation name",
		},
		[]string{"op"},
	)

	// SourceQueueDepth tracks requests waiting in the source request queue
	SourceQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "tether",
			Subsystem: "source",
			Name:      "queue_depth",
			Help:      "Number of requests waiting in the source request queue",
		},
	)

	// SourceRecords tracks records held by the source snapshot
	SourceRecords = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "tether",
			Subsystem: "source",
			Name:      "records",
			Help:      "Number of records in the current source snapshot",
		},
	)
)
