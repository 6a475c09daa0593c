package protocol

import "fmt"

// FailureKind classifies a tool failure. Every failure a runner produces is
// one of these; nothing inside a tool may crash the host process.
type FailureKind string

// FailureKind values, one per failure class an agent can react to.
const (
	// FailInvalidArguments: the call did not validate against the
	// manifest's input schema. Recoverable by rephrasing.
	FailInvalidArguments FailureKind = "invalid_arguments"

	// FailCapabilityDenied: policy refused a capability, or sandboxed code
	// attempted one it was not granted. Never retried automatically.
	FailCapabilityDenied FailureKind = "capability_denied"

	// FailPathDenied: a workspace path escaped the session mount root.
	FailPathDenied FailureKind = "path_denied"

	// FailQuotaExceeded: a workspace write exceeded the session quota.
	FailQuotaExceeded FailureKind = "quota_exceeded"

	// FailResourceExceeded: the tool hit its timeout, memory ceiling, or
	// step budget. Resource says which.
	FailResourceExceeded FailureKind = "resource_exceeded"

	// FailBackendUnavailable: a workspace backend could not be reached.
	// The caller may retry once with backoff.
	FailBackendUnavailable FailureKind = "backend_unavailable"

	// FailConflictingBase: a commit lost the race against another commit
	// on the same base. The caller may retry once with backoff.
	FailConflictingBase FailureKind = "conflicting_base"

	// FailGatewayError: the model provider call failed.
	FailGatewayError FailureKind = "gateway_error"

	// FailToolError: the tool itself faulted (exception, panic, bad
	// result shape). Converted to a typed result, never propagated.
	FailToolError FailureKind = "tool_error"
)

// ResourceKind discriminates which resource limit a FailResourceExceeded hit.
type ResourceKind string

// ResourceKind values.
const (
	ResourceTimeout ResourceKind = "timeout"
	ResourceMemory  ResourceKind = "memory"
	ResourceSteps   ResourceKind = "steps"
)

// Failure is a typed tool failure with enough detail for the agent to
// decide whether to retry, rephrase, or abandon the call.
type Failure struct {
	Kind     FailureKind  `json:"kind"`
	Message  string       `json:"message"`
	Resource ResourceKind `json:"resource,omitempty"`
}

// Error implements the error interface so failures can travel through
// error-returning plumbing inside the runner.
func (f *Failure) Error() string {
	if f.Resource != "" {
		return fmt.Sprintf("%s (%s): %s", f.Kind, f.Resource, f.Message)
	}
	return fmt.Sprintf("%s: %s", f.Kind, f.Message)
}

// Retryable reports whether the caller may retry the invocation once with
// backoff. Only infrastructure-level failures qualify.
func (f *Failure) Retryable() bool {
	return f.Kind == FailBackendUnavailable || f.Kind == FailConflictingBase
}

// InvalidArguments builds a schema-mismatch failure.
func InvalidArguments(format string, args ...any) *Failure {
	return &Failure{Kind: FailInvalidArguments, Message: fmt.Sprintf(format, args...)}
}

// CapabilityDenied builds a policy-refusal failure.
func CapabilityDenied(format string, args ...any) *Failure {
	return &Failure{Kind: FailCapabilityDenied, Message: fmt.Sprintf(format, args...)}
}

// PathDenied builds a mount-escape failure.
func PathDenied(format string, args ...any) *Failure {
	return &Failure{Kind: FailPathDenied, Message: fmt.Sprintf(format, args...)}
}

// QuotaExceeded builds a session-quota failure.
func QuotaExceeded(format string, args ...any) *Failure {
	return &Failure{Kind: FailQuotaExceeded, Message: fmt.Sprintf(format, args...)}
}

// BackendUnavailable builds a backend-reachability failure.
func BackendUnavailable(format string, args ...any) *Failure {
	return &Failure{Kind: FailBackendUnavailable, Message: fmt.Sprintf(format, args...)}
}

// ConflictingBase builds a commit-race failure.
func ConflictingBase(format string, args ...any) *Failure {
	return &Failure{Kind: FailConflictingBase, Message: fmt.Sprintf(format, args...)}
}

// ResourceExceeded builds a resource-limit failure for the given resource.
func ResourceExceeded(resource ResourceKind, format string, args ...any) *Failure {
	return &Failure{
		Kind:     FailResourceExceeded,
		Resource: resource,
		Message:  fmt.Sprintf(format, args...),
	}
}

// GatewayError builds a provider-failure result carrying provider detail.
func GatewayError(format string, args ...any) *Failure {
	return &Failure{Kind: FailGatewayError, Message: fmt.Sprintf(format, args...)}
}

// ToolError builds a generic tool-fault failure.
func ToolError(format string, args ...any) *Failure {
	return &Failure{Kind: FailToolError, Message: fmt.Sprintf(format, args...)}
}
