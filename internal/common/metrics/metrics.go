// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ItemsEnqueued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "workqueue_items_enqueued_total",
			Help: "Citizens considered by the populator, by result",
		},
		[]string{"result"},
	)

	ItemsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "workqueue_items_processed_total",
			Help: "Work items processed, by outcome",
		},
		[]string{"outcome"},
	)

	ItemsFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "workqueue_items_failed_total",
			Help: "Work items failed, by error code",
		},
		[]string{"error_code", "category"},
	)

	ItemDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "workqueue_item_duration_seconds",
			Help: "Duration of work item processing in seconds",
		},
		[]string{"phase"},
	)

	ItemsActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "workqueue_items_active",
			Help: "Work items currently being processed",
		},
		[]string{"phase"},
	)
)

// Enqueue results.
const (
	ResultEnqueued              = "enqueued"
	ResultDuplicate             = "duplicate"
	ResultFailed                = "failed"
	ResultSkippedIdentifierType = "skipped_identifier_type"
	ResultSkippedExcluded       = "skipped_excluded"
)
