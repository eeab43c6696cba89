// Package metrics defines the Handle interface through which every other
// package reports counters and latencies, plus the two implementations of
// it: a Prometheus-backed one for production and a no-op one for tests,
// mirroring gcsfuse's common.MetricHandle / noop_metrics.go split.
package metrics

import "time"

// Attr is a single label attached to a metric observation.
type Attr struct {
	Key, Value string
}

// RPCHandle covers the wire-protocol dispatcher: request/reply counts,
// oneway vs. two-way traffic, and per-function latency.
type RPCHandle interface {
	RPCRequestCount(fn string, attrs ...Attr)
	RPCRequestLatency(fn string, latency time.Duration, attrs ...Attr)
	RPCErrorCount(fn string, attrs ...Attr)
	RPCTimeoutCount(fn string)
}

// ConnHandle covers the per-peer connection manager: speed-probe outcomes,
// connect-viscosity throttling, and socket-table eviction.
type ConnHandle interface {
	ConnSpeedProbe(speed string)
	ConnViscosityDelay(d time.Duration)
	ConnSocketEvictionCount()
	ConnActiveGauge(n int)
}

// SchedulerHandle covers the fast/slow worker pool.
type SchedulerHandle interface {
	SchedulerQueueDepth(queue string, depth int)
	SchedulerWorkerCount(n int)
	SchedulerJobLatency(queue string, latency time.Duration)
}

// ReconcileHandle covers update/reintegration outcomes.
type ReconcileHandle interface {
	ReconcileOutcome(op, outcome string)
	ReconcileConflictCount(op string)
}

// MetadataHandle covers the interval-tree rewrite log and open-handle LRU.
type MetadataHandle interface {
	IntervalRewriteCount(volume string)
	OpenHandleEvictionCount()
	OpenHandleGauge(n int)
}

// Handle is the full metric surface wired into every component.
type Handle interface {
	RPCHandle
	ConnHandle
	SchedulerHandle
	ReconcileHandle
	MetadataHandle
}
