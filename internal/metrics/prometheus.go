package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// promHandle registers and records Prometheus collectors, mirroring
// gcsfuse's oc_metrics.go initOCMetrics shape (one Int64/Float64 measure per
// event, registered once at construction) translated to the prometheus
// client's CounterVec/HistogramVec/GaugeVec idiom.
type promHandle struct {
	registry *prometheus.Registry

	rpcRequestCount   *prometheus.CounterVec
	rpcRequestLatency *prometheus.HistogramVec
	rpcErrorCount     *prometheus.CounterVec
	rpcTimeoutCount   *prometheus.CounterVec

	connSpeedProbe       *prometheus.CounterVec
	connViscosityDelay   prometheus.Histogram
	connSocketEvictions  prometheus.Counter
	connActive           prometheus.Gauge

	schedulerQueueDepth *prometheus.GaugeVec
	schedulerWorkers    prometheus.Gauge
	schedulerJobLatency *prometheus.HistogramVec

	reconcileOutcome      *prometheus.CounterVec
	reconcileConflicts    *prometheus.CounterVec

	intervalRewrites    *prometheus.CounterVec
	openHandleEvictions prometheus.Counter
	openHandleGauge     prometheus.Gauge
}

// NewPrometheus builds a Handle backed by a fresh prometheus.Registry and
// registers every collector; use Handler to expose it over HTTP.
func NewPrometheus() Handle {
	reg := prometheus.NewRegistry()
	h := &promHandle{
		registry: reg,
		rpcRequestCount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "zfsd_rpc_request_total",
			Help: "Number of RPC requests dispatched, by function.",
		}, []string{"fn"}),
		rpcRequestLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "zfsd_rpc_request_latency_seconds",
			Help:    "RPC request latency, by function.",
			Buckets: prometheus.DefBuckets,
		}, []string{"fn"}),
		rpcErrorCount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "zfsd_rpc_error_total",
			Help: "Number of RPC requests that returned an error, by function.",
		}, []string{"fn"}),
		rpcTimeoutCount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "zfsd_rpc_timeout_total",
			Help: "Number of RPC requests that timed out waiting for a reply, by function.",
		}, []string{"fn"}),
		connSpeedProbe: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "zfsd_conn_speed_probe_total",
			Help: "Outcomes of the fast/slow link speed probe.",
		}, []string{"speed"}),
		connViscosityDelay: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "zfsd_conn_viscosity_delay_seconds",
			Help:    "Connect-viscosity cooldown delay actually applied.",
			Buckets: prometheus.DefBuckets,
		}),
		connSocketEvictions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "zfsd_conn_socket_eviction_total",
			Help: "Number of sockets evicted from the LRU socket table.",
		}),
		connActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "zfsd_conn_active",
			Help: "Number of currently open peer connections.",
		}),
		schedulerQueueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "zfsd_scheduler_queue_depth",
			Help: "Depth of the fast/slow scheduler queues.",
		}, []string{"queue"}),
		schedulerWorkers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "zfsd_scheduler_workers",
			Help: "Number of live scheduler worker goroutines.",
		}),
		schedulerJobLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "zfsd_scheduler_job_latency_seconds",
			Help:    "Time a scheduled update/reintegration job took to run, by queue.",
			Buckets: prometheus.DefBuckets,
		}, []string{"queue"}),
		reconcileOutcome: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "zfsd_reconcile_outcome_total",
			Help: "Outcomes of update/reintegration operations, by op and outcome.",
		}, []string{"op", "outcome"}),
		reconcileConflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "zfsd_reconcile_conflict_total",
			Help: "Number of modify-modify conflicts detected, by op.",
		}, []string{"op"}),
		intervalRewrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "zfsd_interval_rewrite_total",
			Help: "Number of interval-tree append-log rewrites, by volume.",
		}, []string{"volume"}),
		openHandleEvictions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "zfsd_open_handle_eviction_total",
			Help: "Number of open file descriptors evicted from the LRU.",
		}),
		openHandleGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "zfsd_open_handle_count",
			Help: "Number of currently open file descriptors.",
		}),
	}

	reg.MustRegister(
		h.rpcRequestCount, h.rpcRequestLatency, h.rpcErrorCount, h.rpcTimeoutCount,
		h.connSpeedProbe, h.connViscosityDelay, h.connSocketEvictions, h.connActive,
		h.schedulerQueueDepth, h.schedulerWorkers, h.schedulerJobLatency,
		h.reconcileOutcome, h.reconcileConflicts,
		h.intervalRewrites, h.openHandleEvictions, h.openHandleGauge,
	)
	return h
}

// Handler returns an http.Handler serving this Handle's registry in the
// Prometheus text exposition format.
func (h *promHandle) Handler() http.Handler {
	return promhttp.HandlerFor(h.registry, promhttp.HandlerOpts{})
}

func (h *promHandle) RPCRequestCount(fn string, _ ...Attr) {
	h.rpcRequestCount.WithLabelValues(fn).Inc()
}
func (h *promHandle) RPCRequestLatency(fn string, latency time.Duration, _ ...Attr) {
	h.rpcRequestLatency.WithLabelValues(fn).Observe(latency.Seconds())
}
func (h *promHandle) RPCErrorCount(fn string, _ ...Attr) { h.rpcErrorCount.WithLabelValues(fn).Inc() }
func (h *promHandle) RPCTimeoutCount(fn string)          { h.rpcTimeoutCount.WithLabelValues(fn).Inc() }

func (h *promHandle) ConnSpeedProbe(speed string) { h.connSpeedProbe.WithLabelValues(speed).Inc() }
func (h *promHandle) ConnViscosityDelay(d time.Duration) { h.connViscosityDelay.Observe(d.Seconds()) }
func (h *promHandle) ConnSocketEvictionCount()           { h.connSocketEvictions.Inc() }
func (h *promHandle) ConnActiveGauge(n int)              { h.connActive.Set(float64(n)) }

func (h *promHandle) SchedulerQueueDepth(queue string, depth int) {
	h.schedulerQueueDepth.WithLabelValues(queue).Set(float64(depth))
}
func (h *promHandle) SchedulerWorkerCount(n int) { h.schedulerWorkers.Set(float64(n)) }
func (h *promHandle) SchedulerJobLatency(queue string, latency time.Duration) {
	h.schedulerJobLatency.WithLabelValues(queue).Observe(latency.Seconds())
}

func (h *promHandle) ReconcileOutcome(op, outcome string) {
	h.reconcileOutcome.WithLabelValues(op, outcome).Inc()
}
func (h *promHandle) ReconcileConflictCount(op string) {
	h.reconcileConflicts.WithLabelValues(op).Inc()
}

func (h *promHandle) IntervalRewriteCount(volume string) {
	h.intervalRewrites.WithLabelValues(volume).Inc()
}
func (h *promHandle) OpenHandleEvictionCount() { h.openHandleEvictions.Inc() }
func (h *promHandle) OpenHandleGauge(n int)    { h.openHandleGauge.Set(float64(n)) }
