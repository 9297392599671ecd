package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(spendWindowUSD, capBreachesTotal, incidentsTotal)
}

var spendWindowUSD = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "spend_window_usd",
		Help: "Ledger spend inside the current calendar window (daily/monthly, UTC).",
	},
	[]string{"window"},
)

var capBreachesTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "cap_breaches_total",
		Help: "Cap breaches observed, labeled by cap (cost/time/iterations/daily/monthly).",
	},
	[]string{"cap"},
)

var incidentsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "incidents_total",
		Help: "Incidents raised, labeled by type and severity.",
	},
	[]string{"type", "severity"},
)

func SetSpendWindow(window string, usd float64) {
	spendWindowUSD.WithLabelValues(norm(window)).Set(usd)
}

func IncCapBreach(cap string) {
	capBreachesTotal.WithLabelValues(norm(cap)).Inc()
}

func IncIncident(incidentType, severity string) {
	incidentsTotal.WithLabelValues(norm(incidentType), norm(severity)).Inc()
}
