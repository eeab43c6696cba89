package metrics

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusHandleRecordsCounters(t *testing.T) {
	h := NewPrometheus().(*promHandle)

	h.RPCRequestCount("READ")
	h.RPCRequestCount("READ")
	h.RPCErrorCount("READ")
	h.RPCTimeoutCount("WRITE")

	assert.Equal(t, float64(2), testutil.ToFloat64(h.rpcRequestCount.WithLabelValues("READ")))
	assert.Equal(t, float64(1), testutil.ToFloat64(h.rpcErrorCount.WithLabelValues("READ")))
	assert.Equal(t, float64(1), testutil.ToFloat64(h.rpcTimeoutCount.WithLabelValues("WRITE")))
}

func TestPrometheusHandleRecordsGauges(t *testing.T) {
	h := NewPrometheus().(*promHandle)

	h.ConnActiveGauge(4)
	h.SchedulerWorkerCount(6)
	h.OpenHandleGauge(12)

	assert.Equal(t, float64(4), testutil.ToFloat64(h.connActive))
	assert.Equal(t, float64(6), testutil.ToFloat64(h.schedulerWorkers))
	assert.Equal(t, float64(12), testutil.ToFloat64(h.openHandleGauge))
}

func TestPrometheusHandleRecordsLatency(t *testing.T) {
	h := NewPrometheus().(*promHandle)

	h.RPCRequestLatency("STAT", 5*time.Millisecond)

	assert.Equal(t, 1, testutil.CollectAndCount(h.rpcRequestLatency))
}

func TestPrometheusHandleServesHTTP(t *testing.T) {
	h := NewPrometheus().(*promHandle)
	h.RPCRequestCount("READ")

	srv := httptest.NewServer(h.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, 200, resp.StatusCode)
}

func TestNoopHandleDiscardsEverything(t *testing.T) {
	h := NewNoop()
	h.RPCRequestCount("READ")
	h.RPCRequestLatency("READ", time.Millisecond)
	h.ConnSpeedProbe("fast")
	h.SchedulerQueueDepth("fast", 3)
	h.ReconcileOutcome("update_file", "ok")
	h.IntervalRewriteCount("vol0")
	// No assertions: the point is that none of these panic or block.
}
