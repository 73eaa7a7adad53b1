// Package metrics exposes Prometheus instrumentation for the gating
// protocol. All collectors live on the default registry and are served
// from the /metrics endpoint.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	// ConsumeDecisions counts CHECK_AND_CONSUME_PAGE outcomes by kind:
	// unlimited, revisit, consumed, denied.
	ConsumeDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "classcatch",
			Subsystem: "quota",
			Name:      "consume_decisions_total",
			Help:      "Total page consume decisions by outcome",
		},
		[]string{"outcome"},
	)

	// VerifyResults counts license verification attempts by result:
	// success, invalid, transport_error, store_error.
	VerifyResults = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "classcatch",
			Subsystem: "license",
			Name:      "verify_results_total",
			Help:      "Total license verification attempts by result",
		},
		[]string{"result"},
	)

	// GateResolutions counts page gate outcomes on the client side:
	// granted, blocked, fail_open.
	GateResolutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "classcatch",
			Subsystem: "gate",
			Name:      "resolutions_total",
			Help:      "Total page gate resolutions by outcome",
		},
		[]string{"outcome"},
	)
)

func init() {
	prometheus.MustRegister(
		ConsumeDecisions,
		VerifyResults,
		GateResolutions,
	)
}
