package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "lexdrill"

// Drill inventory metrics.
var (
	InventoryPushTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inventory_push_total",
			Help:      "Drill inventory pushes by outcome",
		},
		[]string{"mode", "result"}, // accepted / rejected / error
	)

	InventoryPopTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inventory_pop_total",
			Help:      "Drill inventory pops by outcome",
		},
		[]string{"mode", "result"}, // hit / miss / error
	)

	ReplenishEnqueuedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "replenish_enqueued_total",
			Help:      "Replenishment jobs submitted to the queue",
		},
		[]string{"kind", "result"}, // kind: buffered / emergency / emergency_batch; result: enqueued / duplicate / error
	)

	ReplenishBufferSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "replenish_buffer_size",
			Help:      "Last observed size of the replenishment buffer",
		},
	)

	DrillsServedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "drills_served_total",
			Help:      "Drills served by content source",
		},
		[]string{"source"},
	)
)

// Candidate selection metrics.
var (
	SelectionCandidates = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "selection_candidates_total",
			Help:      "Selected candidates per bucket",
		},
		[]string{"bucket"},
	)

	SelectionBucketErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "selection_bucket_errors_total",
			Help:      "Bucket queries that failed and were treated as empty",
		},
		[]string{"bucket"},
	)

	SelectionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "selection_duration_seconds",
			Help:      "Candidate selection duration in seconds",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
	)
)

// Session aggregation metrics.
var (
	SessionEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_events_total",
			Help:      "Rating events recorded into session windows",
		},
		[]string{"rating"},
	)

	SessionWindowsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_windows_total",
			Help:      "Session windows processed during flush",
		},
		[]string{"result"}, // committed / skipped / stale / failed
	)

	SessionsSettledTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_settled_total",
			Help:      "Idle user sessions flushed by the settler",
		},
	)
)

// Job queue and generator metrics.
var (
	QueueJobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queue_jobs_total",
			Help:      "Processed queue jobs by outcome",
		},
		[]string{"type", "result"}, // completed / retried / failed
	)

	QueueJobDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "queue_job_duration_seconds",
			Help:      "Queue job handler duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"type"},
	)

	GeneratorRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generator_requests_total",
			Help:      "Drill generator requests",
		},
		[]string{"model", "status"},
	)

	GeneratorRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "generator_request_duration_seconds",
			Help:      "Drill generator request duration in seconds",
			Buckets:   []float64{0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"model"},
	)

	GeneratorTokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generator_tokens_total",
			Help:      "Tokens consumed by the drill generator",
		},
		[]string{"model", "type"},
	)

	GeneratorBudgetTokensRemaining = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "generator_budget_tokens_remaining",
			Help:      "Generator tokens left in the current budget period (-1 = unlimited)",
		},
		[]string{"period"}, // daily / monthly
	)
)

// Background task metrics.
var (
	BackgroundTasksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "background_tasks_total",
			Help:      "Fire-and-forget tasks by outcome",
		},
		[]string{"task", "result"}, // ok / error / dropped
	)
)

var registered bool

// Register registers the domain metrics. Must be called once from main.
func Register() {
	if registered {
		return
	}
	prometheus.MustRegister(
		InventoryPushTotal,
		InventoryPopTotal,
		ReplenishEnqueuedTotal,
		ReplenishBufferSize,
		DrillsServedTotal,
		SelectionCandidates,
		SelectionBucketErrorsTotal,
		SelectionDuration,
		SessionEventsTotal,
		SessionWindowsTotal,
		SessionsSettledTotal,
		QueueJobsTotal,
		QueueJobDuration,
		GeneratorRequestsTotal,
		GeneratorRequestDuration,
		GeneratorTokensTotal,
		GeneratorBudgetTokensRemaining,
		BackgroundTasksTotal,
	)
	registered = true
}
