package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dhoini/parking-payments/pkg/logger"
)

func TestBillingMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewBillingMetrics(reg, logger.NewNop())

	m.IncOrderCreated()
	m.IncOrderCreated()
	m.IncPaymentStatus("confirmed")
	m.IncGatewayError("Init", "no_result")
	m.ObserveSweepDuration("generate_orders_and_pay", 10*time.Millisecond)

	bm := m.(*billingMetrics)
	assert.Equal(t, 2.0, testutil.ToFloat64(bm.ordersCreated))
	assert.Equal(t, 1.0, testutil.ToFloat64(bm.paymentsStatus.WithLabelValues("confirmed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(bm.gatewayErrors.WithLabelValues("Init", "no_result")))

	n, err := testutil.GatherAndCount(reg, "parking_payments_sweep_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSystemMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	queue := 3.0
	m := NewSystemMetrics(reg, map[string]Probe{
		"dispatcher_pending": func() float64 { return queue },
		"scheduler_running":  BoolProbe(func() bool { return true }),
	}, logger.NewNop())
	m.Record()

	sm := m.(*systemMetrics)
	assert.Equal(t, 3.0, testutil.ToFloat64(sm.state.WithLabelValues("dispatcher_pending")))
	assert.Equal(t, 1.0, testutil.ToFloat64(sm.state.WithLabelValues("scheduler_running")))

	queue = 0
	m.StartRecording(time.Hour)
	assert.Equal(t, 0.0, testutil.ToFloat64(sm.state.WithLabelValues("dispatcher_pending")), "first sample is taken on start")
	m.Stop()
	m.Stop()
}
