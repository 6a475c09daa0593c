package protocol

import (
	"encoding/json"
	"time"
)

// Meta is execution metadata attached to every result, success or failure.
type Meta struct {
	// WallTime is total wall-clock duration, gateway wait included.
	WallTime time.Duration `json:"wall_time_ns"`

	// StepsUsed is the fuel consumed, when the runner accounts for it.
	StepsUsed int64 `json:"steps_used,omitempty"`

	// MemoryPeakBytes is the peak memory attributed to the tool, when the
	// runner accounts for it.
	MemoryPeakBytes int64 `json:"memory_peak_bytes,omitempty"`

	// Exit is the terminal lifecycle state the invocation reached.
	Exit State `json:"exit"`
}

// Result is the normalized outcome of a tool invocation, identical in shape
// across runner strategies. Exactly one of Payload or Failure is set.
type Result struct {
	Payload json.RawMessage `json:"payload,omitempty"`
	Failure *Failure        `json:"failure,omitempty"`
	Meta    Meta            `json:"meta"`
}

// OK reports whether the invocation completed successfully.
func (r Result) OK() bool {
	return r.Failure == nil
}

// Success builds a completed result carrying the given payload.
func Success(payload json.RawMessage, meta Meta) Result {
	meta.Exit = StateCompleted
	return Result{Payload: payload, Meta: meta}
}

// Fail builds a failure result, deriving the exit classification from the
// failure kind.
func Fail(f *Failure, meta Meta) Result {
	meta.Exit = StateForFailure(f)
	return Result{Failure: f, Meta: meta}
}
