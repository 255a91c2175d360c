package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, g.Write(&m))
	return m.GetGauge().GetValue()
}

func TestRecordProbe_CountsAttemptsAndProfitable(t *testing.T) {
	c := NewCollectorWithRegistry(prometheus.NewRegistry())

	c.RecordProbe(true)
	c.RecordProbe(false)

	assert.Equal(t, float64(2), counterValue(t, c.probesAttempted))
	assert.Equal(t, float64(1), counterValue(t, c.probesProfitable))
}

func TestRecordDispatch_SplitsSuccessAndFailure(t *testing.T) {
	c := NewCollectorWithRegistry(prometheus.NewRegistry())

	c.RecordDispatch(true, 2e17)
	c.RecordDispatch(false, 0)

	assert.Equal(t, float64(1), counterValue(t, c.bundlesDispatched))
	assert.Equal(t, float64(1), counterValue(t, c.dispatchFailures))
}

func TestSetLoopState_UpdatesGauges(t *testing.T) {
	c := NewCollectorWithRegistry(prometheus.NewRegistry())

	c.SetLoopState(12345, 7, 2)

	assert.Equal(t, float64(12345), gaugeValue(t, c.currentBlockGauge))
	assert.Equal(t, float64(7), gaugeValue(t, c.pendingTxGauge))
	assert.Equal(t, float64(2), gaugeValue(t, c.promisingGauge))
}

func TestObserveSimulation_DoesNotPanic(t *testing.T) {
	c := NewCollectorWithRegistry(prometheus.NewRegistry())
	c.ObserveSimulation("probe", 5*time.Millisecond)
}
