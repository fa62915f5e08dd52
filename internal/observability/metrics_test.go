package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetricsForTesting_Registrable(t *testing.T) {
	m := NewMetricsForTesting()
	reg := prometheus.NewPedanticRegistry()

	require.NoError(t, reg.Register(m.ObservationsConsumed))
	require.NoError(t, reg.Register(m.ReportsProduced))
	require.NoError(t, reg.Register(m.BatchesWritten))
	require.NoError(t, reg.Register(m.SourceRequests))

	// A second set must not collide with the first in its own registry.
	other := NewMetricsForTesting()
	require.NoError(t, prometheus.NewRegistry().Register(other.ObservationsConsumed))
}

func TestMetrics_Counting(t *testing.T) {
	m := NewMetricsForTesting()

	m.ObservationsConsumed.Add(20)
	m.ReportsProduced.Add(20)
	m.PressureIndeterminate.Inc()
	m.BatchesWritten.WithLabelValues("prepbufr").Add(3)
	m.SourceRequests.WithLabelValues("windborne", "retry").Inc()

	assert.InDelta(t, 20, counterValue(t, m.ObservationsConsumed), 0)
	assert.InDelta(t, 20, counterValue(t, m.ReportsProduced), 0)
	assert.InDelta(t, 1, counterValue(t, m.PressureIndeterminate), 0)
	assert.InDelta(t, 3, counterValue(t, m.BatchesWritten.WithLabelValues("prepbufr")), 0)
	assert.InDelta(t, 0, counterValue(t, m.BatchesWritten.WithLabelValues("sqlite")), 0)
	assert.InDelta(t, 1, counterValue(t, m.SourceRequests.WithLabelValues("windborne", "retry")), 0)
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var out dto.Metric
	require.NoError(t, c.Write(&out))
	return out.GetCounter().GetValue()
}
