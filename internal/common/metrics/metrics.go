// Package metrics exposes Prometheus collectors for payment orchestration.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	MetricPaymentOutcomesTotal   = "paygate_payment_outcomes_total"
	MetricGatewayRequestDuration = "paygate_gateway_request_duration_seconds"
	MetricGatewayErrorsTotal     = "paygate_gateway_errors_total"
	MetricLatchConflictsTotal    = "paygate_latch_conflicts_total"
)

// Metrics holds the collectors. All methods are safe for concurrent use.
type Metrics struct {
	outcomes        *prometheus.CounterVec
	gatewayDuration *prometheus.HistogramVec
	gatewayErrors   *prometheus.CounterVec
	latchConflicts  *prometheus.CounterVec
}

// New creates the collectors without registering them.
func New() *Metrics {
	return &Metrics{
		outcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricPaymentOutcomesTotal,
				Help: "Payment attempts by flow and terminal outcome",
			},
			[]string{"flow", "outcome"},
		),
		gatewayDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    MetricGatewayRequestDuration,
				Help:    "Latency of gateway API calls by operation",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"operation"},
		),
		gatewayErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricGatewayErrorsTotal,
				Help: "Gateway transport errors by operation",
			},
			[]string{"operation"},
		),
		latchConflicts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricLatchConflictsTotal,
				Help: "Compare-and-set losses on the paid/captured latches",
			},
			[]string{"latch"},
		),
	}
}

// Register registers all metrics with the given registry.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.Collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// IncOutcome counts a finished payment attempt.
func (m *Metrics) IncOutcome(flow, outcome string) {
	m.outcomes.WithLabelValues(flow, outcome).Inc()
}

// ObserveGatewayCall records one gateway call; failed calls also bump the error counter.
func (m *Metrics) ObserveGatewayCall(operation string, seconds float64, failed bool) {
	m.gatewayDuration.WithLabelValues(operation).Observe(seconds)
	if failed {
		m.gatewayErrors.WithLabelValues(operation).Inc()
	}
}

// IncLatchConflict counts a lost compare-and-set on latch.
func (m *Metrics) IncLatchConflict(latch string) {
	m.latchConflicts.WithLabelValues(latch).Inc()
}

// Collectors returns all Prometheus collectors.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.outcomes,
		m.gatewayDuration,
		m.gatewayErrors,
		m.latchConflicts,
	}
}
