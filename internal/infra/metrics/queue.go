package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(queueDepth, queueClaimsTotal, workersBusy, killSwitchOn)
}

var queueDepth = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "queue_depth",
		Help: "Jobs currently in each non-terminal status.",
	},
	[]string{"status"},
)

var queueClaimsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "queue_claims_total",
		Help: "Claim attempts by the dispatcher, labeled by result (claimed/empty/error).",
	},
	[]string{"result"},
)

var workersBusy = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "workers_busy",
		Help: "Workers currently executing a job.",
	},
)

var killSwitchOn = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "kill_switch_enabled",
		Help: "1 while agents are enabled, 0 while the kill switch is engaged.",
	},
)

func SetQueueDepth(status string, n int) {
	queueDepth.WithLabelValues(norm(status)).Set(float64(n))
}

func IncQueueClaim(result string) {
	queueClaimsTotal.WithLabelValues(norm(result)).Inc()
}

func WorkerStarted()  { workersBusy.Inc() }
func WorkerFinished() { workersBusy.Dec() }

func SetKillSwitch(enabled bool) {
	if enabled {
		killSwitchOn.Set(1)
		return
	}
	killSwitchOn.Set(0)
}
