package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(webhookDeliveriesTotal)
}

var webhookDeliveriesTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "webhook_deliveries_total",
		Help: "GitHub webhook deliveries, labeled by event and outcome (accepted/ignored/rejected/error).",
	},
	[]string{"event", "outcome"},
)

func IncWebhookDelivery(event, outcome string) {
	webhookDeliveriesTotal.WithLabelValues(norm(event), norm(outcome)).Inc()
}
