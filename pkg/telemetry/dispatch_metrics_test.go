package telemetry

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatchMetricsTracksInflightAndOutcome(t *testing.T) {
	m := NewDispatchMetrics()

	m.DeliveryStarted()
	m.DeliveryStarted()
	assert.Equal(t, 2.0, testutil.ToFloat64(m.inflight))

	m.DeliveryFinished(ModeDetached, OutcomeDelivered, 10*time.Millisecond)
	m.DeliveryFinished(ModeAwaited, OutcomeFailed, 20*time.Millisecond)

	assert.Equal(t, 0.0, testutil.ToFloat64(m.inflight))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.deliveriesTotal.WithLabelValues(ModeDetached, OutcomeDelivered)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.deliveriesTotal.WithLabelValues(ModeAwaited, OutcomeFailed)))
}

func TestDispatchMetricsNilReceiverIsSafe(t *testing.T) {
	var m *DispatchMetrics
	m.DeliveryStarted()
	m.DeliveryFinished(ModeDetached, OutcomeFailed, time.Second)
	m.RecordRouted("step-one", "fan-out")
	m.RecordConfigReload("success")
}

func TestDispatchMetricsHandlerExposesSeries(t *testing.T) {
	m := NewDispatchMetrics()
	m.RecordRouted("step-one", "fan-out")

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `polis_chain_routed_events_total{policy="fan-out",source="step-one"} 1`)
}
