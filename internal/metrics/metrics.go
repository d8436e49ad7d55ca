package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "loyaltybot"

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint.",
		},
		[]string{"endpoint"},
	)

	updatesProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "updates_processed_total",
			Help:      "Chat updates processed by kind.",
		},
		[]string{"kind"},
	)

	updateDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "update_processing_seconds",
			Help:      "Time spent processing one chat update.",
			Buckets:   prometheus.DefBuckets,
		},
	)

	panicsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handler_panics_total",
			Help:      "Recovered panics in update handlers.",
		},
	)

	applicationsCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "applications_created_total",
			Help:      "Submitted applications by card type and persistence outcome.",
		},
		[]string{"card_type", "outcome"},
	)

	decisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decisions_total",
			Help:      "Reviewer decisions by verdict.",
		},
		[]string{"verdict"},
	)

	sheetErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sheet_errors_total",
			Help:      "Failed remote sheet calls by operation.",
		},
		[]string{"op"},
	)

	syncTasks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_tasks_total",
			Help:      "Deferred sheet appends by outcome.",
		},
		[]string{"outcome"},
	)

	jobRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scheduler_job_runs_total",
			Help:      "Scheduler job runs by job and result.",
		},
		[]string{"job", "result"},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			updatesProcessed,
			updateDuration,
			panicsTotal,
			applicationsCreated,
			decisions,
			sheetErrors,
			syncTasks,
			jobRuns,
		)
	})
}

// IncHTTP increments the counter for an endpoint label.
func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}

func ObserveUpdate(kind string, d time.Duration) {
	updatesProcessed.WithLabelValues(kind).Inc()
	updateDuration.Observe(d.Seconds())
}

func IncPanic() {
	panicsTotal.Inc()
}

func IncApplication(cardType, outcome string) {
	applicationsCreated.WithLabelValues(cardType, outcome).Inc()
}

func IncDecision(verdict string) {
	decisions.WithLabelValues(verdict).Inc()
}

func IncSheetError(op string) {
	sheetErrors.WithLabelValues(op).Inc()
}

func IncSync(outcome string) {
	syncTasks.WithLabelValues(outcome).Inc()
}

func IncJob(job, result string) {
	jobRuns.WithLabelValues(job, result).Inc()
}
