package protocol

import (
	"testing"
	"time"
)

func TestLimitsMin(t *testing.T) {
	t.Parallel()

	manifest := Limits{Timeout: 30 * time.Second, MemoryBytes: 256 << 20, StepBudget: 1_000_000}
	override := Limits{Timeout: 2 * time.Second, StepBudget: 2_000_000}

	got := manifest.Min(override)
	if got.Timeout != 2*time.Second {
		t.Errorf("timeout = %v, want 2s", got.Timeout)
	}
	if got.MemoryBytes != 256<<20 {
		t.Errorf("memory = %d, want manifest value when override unset", got.MemoryBytes)
	}
	if got.StepBudget != 1_000_000 {
		t.Errorf("steps = %d, want the smaller budget", got.StepBudget)
	}
}

func TestStateMachine_NoPathSkipsAuthorized(t *testing.T) {
	t.Parallel()

	if StateValidated.CanTransition(StateRunning) {
		t.Error("validated must not jump straight to running")
	}
	if !StateValidated.CanTransition(StateAuthorized) {
		t.Error("validated → authorized should be legal")
	}
	if !StateAuthorized.CanTransition(StateRunning) {
		t.Error("authorized → running should be legal")
	}
	if StateAuthorized.CanTransition(StateCompleted) {
		t.Error("authorized must pass through running before completing")
	}
}

func TestStateMachine_TerminalStatesAreFinal(t *testing.T) {
	t.Parallel()

	terminals := []State{StateCompleted, StateFailed, StateResourceExceeded, StateCapabilityDenied}
	for _, s := range terminals {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
		if s.CanTransition(StateRunning) {
			t.Errorf("%s must not transition anywhere", s)
		}
	}
}

func TestStateForFailure(t *testing.T) {
	t.Parallel()

	cases := []struct {
		failure *Failure
		want    State
	}{
		{ResourceExceeded(ResourceTimeout, "t"), StateResourceExceeded},
		{CapabilityDenied("c"), StateCapabilityDenied},
		{InvalidArguments("a"), StateFailed},
		{GatewayError("g"), StateFailed},
		{ToolError("e"), StateFailed},
	}
	for _, tc := range cases {
		if got := StateForFailure(tc.failure); got != tc.want {
			t.Errorf("%s: exit = %s, want %s", tc.failure.Kind, got, tc.want)
		}
	}
}

func TestFailureRetryable(t *testing.T) {
	t.Parallel()

	retryable := []*Failure{
		{Kind: FailBackendUnavailable, Message: "down"},
		{Kind: FailConflictingBase, Message: "stale"},
	}
	for _, f := range retryable {
		if !f.Retryable() {
			t.Errorf("%s should be retryable", f.Kind)
		}
	}

	for _, f := range []*Failure{CapabilityDenied("no"), InvalidArguments("bad"), ResourceExceeded(ResourceMemory, "oom")} {
		if f.Retryable() {
			t.Errorf("%s must not be retryable", f.Kind)
		}
	}
}
