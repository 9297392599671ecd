package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(policyDecisionsTotal, approvalsTotal, policyReloadsTotal)
}

var policyDecisionsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "policy_decisions_total",
		Help: "Policy evaluations, labeled by rule and decision.",
	},
	[]string{"rule", "decision"},
)

var approvalsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "approvals_total",
		Help: "Operator approval resolutions, labeled by action kind and decision.",
	},
	[]string{"kind", "decision"},
)

var policyReloadsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "policy_reloads_total",
		Help: "Policy snapshot reload attempts, labeled by outcome.",
	},
	[]string{"outcome"},
)

func IncPolicyDecision(rule, decision string) {
	policyDecisionsTotal.WithLabelValues(norm(rule), norm(decision)).Inc()
}

func IncPolicyReload(outcome string) {
	policyReloadsTotal.WithLabelValues(norm(outcome)).Inc()
}

func IncApproval(kind, decision string) {
	approvalsTotal.WithLabelValues(norm(kind), norm(decision)).Inc()
}
