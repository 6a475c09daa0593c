package protocol

import (
	"encoding/json"
	"time"

	"github.com/warden-run/warden/internal/capability"
)

// Limits are the resource bounds enforced on one invocation. All three are
// enforced by the host regardless of runner strategy.
type Limits struct {
	// Timeout bounds wall-clock execution, gateway wait included.
	Timeout time.Duration `json:"timeout"`

	// MemoryBytes is the ceiling on memory attributable to the tool.
	MemoryBytes int64 `json:"memory_bytes"`

	// StepBudget bounds execution steps (fuel), a platform-independent
	// proxy for CPU time. Gateway wait does not consume steps.
	StepBudget int64 `json:"step_budget"`
}

// Min returns the pairwise minimum of two limit sets, treating zero as
// "unset". Effective invocation limits are min(manifest, policy override).
func (l Limits) Min(other Limits) Limits {
	return Limits{
		Timeout:     minNonZero(l.Timeout, other.Timeout),
		MemoryBytes: minNonZero(l.MemoryBytes, other.MemoryBytes),
		StepBudget:  minNonZero(l.StepBudget, other.StepBudget),
	}
}

func minNonZero[T int64 | time.Duration](a, b T) T {
	switch {
	case a == 0:
		return b
	case b == 0:
		return a
	case a < b:
		return a
	default:
		return b
	}
}

// Invocation is a validated, authorized tool call ready for a runner.
// The grant is immutable and resolved before the runner ever sees it:
// an invocation cannot reach a runner without passing authorization.
type Invocation struct {
	// ID uniquely identifies this invocation for audit and tracing.
	ID string

	// Name and Version identify the manifest the call validated against.
	Name    string
	Version string

	// Args is the validated argument object. Never nil after validation;
	// legacy calls carry the empty object.
	Args json.RawMessage

	// Source is the tool program for sandboxed strategies. Empty for
	// trusted tools, which dispatch to a registered handler instead.
	Source string

	// Grant is the capability subset authorized for this invocation.
	Grant capability.Grant

	// Limits are the effective resource limits.
	Limits Limits
}

// State is one phase of the per-invocation lifecycle.
type State string

// Invocation lifecycle states. No transition skips Authorized: a tool never
// runs without a resolved grant.
const (
	StateValidated        State = "validated"
	StateAuthorized       State = "authorized"
	StateRunning          State = "running"
	StateCompleted        State = "completed"
	StateFailed           State = "failed"
	StateResourceExceeded State = "resource_exceeded"
	StateCapabilityDenied State = "capability_denied"
)

// Terminal reports whether the state ends the lifecycle.
func (s State) Terminal() bool {
	switch s {
	case StateCompleted, StateFailed, StateResourceExceeded, StateCapabilityDenied:
		return true
	default:
		return false
	}
}

// CanTransition reports whether moving from s to next is a legal lifecycle
// step.
func (s State) CanTransition(next State) bool {
	switch s {
	case StateValidated:
		return next == StateAuthorized || next == StateCapabilityDenied
	case StateAuthorized:
		return next == StateRunning
	case StateRunning:
		return next.Terminal()
	default:
		return false
	}
}

// StateForFailure maps a failure to its terminal lifecycle state.
func StateForFailure(f *Failure) State {
	switch f.Kind {
	case FailResourceExceeded:
		return StateResourceExceeded
	case FailCapabilityDenied:
		return StateCapabilityDenied
	default:
		return StateFailed
	}
}
