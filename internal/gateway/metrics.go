package gateway

import (
	"sync/atomic"
	"time"
)

// Metrics tracks gateway-level counters using atomic operations for lock-free
// concurrency.
type Metrics struct {
	inferences   atomic.Int64
	denials      atomic.Int64
	errors       atomic.Int64
	totalTokens  atomic.Int64
	totalLatency atomic.Int64 // nanoseconds
}

// RecordInference records a successful completion.
func (m *Metrics) RecordInference(tokens int, latency time.Duration) {
	m.inferences.Add(1)
	m.totalTokens.Add(int64(tokens))
	m.totalLatency.Add(int64(latency))
}

// RecordDenial records a request rejected for a missing model_access grant.
func (m *Metrics) RecordDenial() {
	m.denials.Add(1)
}

// RecordError records a provider failure.
func (m *Metrics) RecordError() {
	m.errors.Add(1)
}

// Snapshot returns a consistent point-in-time view of the counters.
func (m *Metrics) Snapshot() MetricsSnapshot {
	inferences := m.inferences.Load()
	snap := MetricsSnapshot{
		Inferences:  inferences,
		Denials:     m.denials.Load(),
		Errors:      m.errors.Load(),
		TotalTokens: m.totalTokens.Load(),
	}
	if inferences > 0 {
		snap.AvgLatency = time.Duration(m.totalLatency.Load() / inferences)
	}
	return snap
}

// MetricsSnapshot is a serializable point-in-time metrics view.
type MetricsSnapshot struct {
	Inferences  int64         `json:"inferences"`
	Denials     int64         `json:"denials"`
	Errors      int64         `json:"errors"`
	TotalTokens int64         `json:"total_tokens"`
	AvgLatency  time.Duration `json:"avg_latency_ns"`
}
