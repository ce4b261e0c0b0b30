package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Import pipeline metrics
var (
	// ImportPagesTotal counts result pages fetched by paged runs
	ImportPagesTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "import_pages_total",
			Help:      "Total number of result pages fetched",
		},
		[]string{"target"},
	)

	// ImportRecordsTotal counts records by outcome
	ImportRecordsTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "import_records_total",
			Help:      "Total number of fetched records by outcome",
		},
		[]string{"target", "outcome"}, // outcome: admitted|duplicate|rejected|inserted
	)

	// ImportRejectionsTotal counts rejected records by reason
	ImportRejectionsTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "import_rejections_total",
			Help:      "Total number of records rejected during normalization",
		},
		[]string{"reason"},
	)

	// ImportRunsTotal counts finished runs by terminal state
	ImportRunsTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "import_runs_total",
			Help:      "Total number of import runs by terminal state",
		},
		[]string{"target", "state"}, // state: done|failed
	)

	// ImportRunDuration records wall time of paged runs
	ImportRunDuration = promauto.With(Registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "import_run_duration_seconds",
			Help:      "Import run duration in seconds",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
		},
		[]string{"target"},
	)

	// IdentifierBatchFailuresTotal counts identifier batches skipped after a failure
	IdentifierBatchFailuresTotal = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "identifier_batch_failures_total",
			Help:      "Total number of identifier batches skipped after a fetch failure",
		},
	)

	// ReviewTransitionsTotal counts review decisions
	ReviewTransitionsTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "review_transitions_total",
			Help:      "Total number of staged records reviewed",
		},
		[]string{"status", "promoted"},
	)

	// StagedRecordsDeleted counts rejected staged rows removed by cleanup
	StagedRecordsDeleted = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "staged_records_deleted_total",
			Help:      "Total number of rejected staged records deleted by cleanup",
		},
	)
)

// Background queue metrics
var (
	// JobQueueDepth is the number of jobs waiting in the in-process queue
	JobQueueDepth = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "job_queue_depth",
			Help:      "Current number of jobs waiting in the background queue",
		},
	)

	// JobsProcessedTotal counts executed jobs by result
	JobsProcessedTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_processed_total",
			Help:      "Total number of background jobs executed",
		},
		[]string{"name", "result"}, // result: success|error|panic
	)

	// JobDuration records background job execution time
	JobDuration = promauto.With(Registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Background job execution duration in seconds",
			Buckets:   []float64{0.01, 0.1, 1, 5, 30, 60, 300, 900, 3600},
		},
		[]string{"name"},
	)
)
