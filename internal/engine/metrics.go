package engine

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "procflow"

var (
	// gateTransactionsTotal counts incoming transactions by outcome.
	gateTransactionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gate_transactions_total",
			Help:      "Total number of transactions handled by the process gate",
		},
		[]string{"outcome"}, // outcome: forwarded, bundled, rejected, error
	)

	// gateCompanionsTotal counts companion transactions queued by the gate.
	gateCompanionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gate_companions_total",
			Help:      "Total number of companion transactions bundled with originals",
		},
		[]string{"list"}, // list: before, after
	)

	// transitionsFiredTotal counts transitions executed by trigger kind.
	transitionsFiredTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transitions_fired_total",
			Help:      "Total number of transitions executed",
		},
		[]string{"trigger"},
	)

	// stepFaultsTotal counts abandoned steps.
	stepFaultsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "step_faults_total",
			Help:      "Total number of steps abandoned because an action failed",
		},
	)

	// gateDuration is a histogram of gate processing time, forwarding included.
	gateDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "gate_duration_seconds",
			Help:      "Histogram of process gate handling duration in seconds",
			Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
		},
	)

	// allMetrics is a list of all metrics for registration.
	allMetrics = []prometheus.Collector{
		gateTransactionsTotal,
		gateCompanionsTotal,
		transitionsFiredTotal,
		stepFaultsTotal,
		gateDuration,
	}
)

// RegisterMetrics registers the engine's collectors with reg.
func RegisterMetrics(reg prometheus.Registerer) error {
	for _, c := range allMetrics {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func recordOutcome(outcome string, seconds float64) {
	gateTransactionsTotal.WithLabelValues(outcome).Inc()
	gateDuration.Observe(seconds)
}

func recordCompanions(before, after int) {
	if before > 0 {
		gateCompanionsTotal.WithLabelValues("before").Add(float64(before))
	}
	if after > 0 {
		gateCompanionsTotal.WithLabelValues("after").Add(float64(after))
	}
}

func recordTransition(trigger string) {
	transitionsFiredTotal.WithLabelValues(trigger).Inc()
}

func recordStepFault() {
	stepFaultsTotal.Inc()
}
