package runtime

import (
	"sync/atomic"
	"time"

	"github.com/warden-run/warden/internal/protocol"
)

// Metrics tracks dispatch-level counters using atomic operations for
// lock-free concurrency.
type Metrics struct {
	dispatched   atomic.Int64
	completed    atomic.Int64
	failed       atomic.Int64
	denied       atomic.Int64
	exceeded     atomic.Int64
	totalLatency atomic.Int64 // nanoseconds
}

// RecordDispatch records an inbound tool call, well-formed or not.
func (m *Metrics) RecordDispatch() {
	m.dispatched.Add(1)
}

// RecordCompletion records a successful invocation.
func (m *Metrics) RecordCompletion(latency time.Duration) {
	m.completed.Add(1)
	m.totalLatency.Add(int64(latency))
}

// RecordFailure records a failed invocation, classified by kind.
func (m *Metrics) RecordFailure(kind protocol.FailureKind) {
	m.failed.Add(1)
	switch kind {
	case protocol.FailCapabilityDenied, protocol.FailPathDenied:
		m.denied.Add(1)
	case protocol.FailResourceExceeded, protocol.FailQuotaExceeded:
		m.exceeded.Add(1)
	}
}

// Snapshot returns a consistent point-in-time view of the counters.
func (m *Metrics) Snapshot() MetricsSnapshot {
	completed := m.completed.Load()
	snap := MetricsSnapshot{
		Dispatched: m.dispatched.Load(),
		Completed:  completed,
		Failed:     m.failed.Load(),
		Denied:     m.denied.Load(),
		Exceeded:   m.exceeded.Load(),
	}
	if completed > 0 {
		snap.AvgLatency = time.Duration(m.totalLatency.Load() / completed)
	}
	return snap
}

// MetricsSnapshot is a serializable point-in-time metrics view.
type MetricsSnapshot struct {
	Dispatched int64         `json:"dispatched"`
	Completed  int64         `json:"completed"`
	Failed     int64         `json:"failed"`
	Denied     int64         `json:"denied"`
	Exceeded   int64         `json:"exceeded"`
	AvgLatency time.Duration `json:"avg_latency_ns"`
}
