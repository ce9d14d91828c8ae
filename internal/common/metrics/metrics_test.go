package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func findMetric(t *testing.T, families []*dto.MetricFamily, name string) *dto.MetricFamily {
	t.Helper()
	for _, f := range families {
		if f.GetName() == name {
			return f
		}
	}
	t.Fatalf("metric %s not gathered", name)
	return nil
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New()
	require.NoError(t, m.Register(reg))

	m.IncOutcome("hosted_session", "settled")
	m.IncOutcome("hosted_session", "settled")
	m.IncOutcome("hosted_checkout", "declined")
	m.ObserveGatewayCall("pay", 0.2, false)
	m.ObserveGatewayCall("pay", 1.5, true)
	m.IncLatchConflict("order_paid")

	families, err := reg.Gather()
	require.NoError(t, err)

	outcomes := findMetric(t, families, MetricPaymentOutcomesTotal)
	assert.Len(t, outcomes.GetMetric(), 2)

	errs := findMetric(t, families, MetricGatewayErrorsTotal)
	require.Len(t, errs.GetMetric(), 1)
	assert.Equal(t, 1.0, errs.GetMetric()[0].GetCounter().GetValue())

	hist := findMetric(t, families, MetricGatewayRequestDuration)
	assert.Equal(t, uint64(2), hist.GetMetric()[0].GetHistogram().GetSampleCount())

	latch := findMetric(t, families, MetricLatchConflictsTotal)
	assert.Equal(t, 1.0, latch.GetMetric()[0].GetCounter().GetValue())
}

func TestRegisterTwiceFails(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New()
	require.NoError(t, m.Register(reg))
	assert.Error(t, m.Register(reg))
}
