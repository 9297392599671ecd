package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(jobsProcessedTotal, jobAttemptSeconds, jobRetriesTotal, jobsReapedTotal)
}

var jobsProcessedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "jobs_processed_total",
		Help: "Jobs that reached a terminal status, labeled by status and failure reason.",
	},
	[]string{"status", "reason"}, // reason is empty unless status='failed'
)

var jobAttemptSeconds = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Name:    "job_attempt_seconds",
		Help:    "Wall-clock duration of one dispatch attempt.",
		Buckets: []float64{1, 5, 15, 60, 180, 600, 1800, 3600},
	},
)

var jobRetriesTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "job_retries_total",
		Help: "Retry requeues, labeled by normalized failure code.",
	},
	[]string{"code"},
)

var jobsReapedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "jobs_reaped_total",
		Help: "Jobs the reaper acted on, labeled by kind (timeout/stale/approval).",
	},
	[]string{"kind"},
)

func IncJobProcessed(status, reason string) {
	jobsProcessedTotal.WithLabelValues(norm(status), norm(reason)).Inc()
}

func ObserveJobAttempt(seconds float64) {
	jobAttemptSeconds.Observe(seconds)
}

func IncJobRetry(code string) {
	jobRetriesTotal.WithLabelValues(norm(code)).Inc()
}

func IncJobReaped(kind string) {
	jobsReapedTotal.WithLabelValues(norm(kind)).Inc()
}
