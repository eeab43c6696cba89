package metrics

import "time"

// NewNoop returns a Handle whose methods discard every observation,
// mirroring gcsfuse's NewNoopMetrics — used by unit tests and any
// component wired up without a registry.
func NewNoop() Handle { return noopHandle{} }

type noopHandle struct{}

func (noopHandle) RPCRequestCount(string, ...Attr)                {}
func (noopHandle) RPCRequestLatency(string, time.Duration, ...Attr) {}
func (noopHandle) RPCErrorCount(string, ...Attr)                  {}
func (noopHandle) RPCTimeoutCount(string)                         {}

func (noopHandle) ConnSpeedProbe(string)         {}
func (noopHandle) ConnViscosityDelay(time.Duration) {}
func (noopHandle) ConnSocketEvictionCount()       {}
func (noopHandle) ConnActiveGauge(int)            {}

func (noopHandle) SchedulerQueueDepth(string, int)          {}
func (noopHandle) SchedulerWorkerCount(int)                 {}
func (noopHandle) SchedulerJobLatency(string, time.Duration) {}

func (noopHandle) ReconcileOutcome(string, string)   {}
func (noopHandle) ReconcileConflictCount(string)      {}

func (noopHandle) IntervalRewriteCount(string) {}
func (noopHandle) OpenHandleEvictionCount()    {}
func (noopHandle) OpenHandleGauge(int)         {}
