// Package runner executes tool invocations. Two strategies implement the
// same contract: Trusted runs registered Go handlers in-process, Sandbox runs
// untrusted JavaScript inside an interpreter with capability-gated host
// bindings. Results are identical in shape across strategies; the caller
// cannot tell which one ran the tool.
package runner

import (
	"context"
	"errors"

	"github.com/warden-run/warden/internal/gateway"
	"github.com/warden-run/warden/internal/protocol"
	"github.com/warden-run/warden/internal/workspace"
)

// Env is the per-invocation runtime surface a tool may touch. Everything a
// tool reaches goes through here; there is no ambient authority.
type Env struct {
	// FS and Session scope all filesystem access. Nil when the invocation
	// carries no filesystem grant.
	FS      workspace.FS
	Session *workspace.Session

	// Gateway mediates model access. The gateway re-checks the grant.
	Gateway *gateway.Gateway

	// Vars are the host environment values already filtered through the
	// runtime allowlist. The env grant's scope narrows them further.
	Vars map[string]string
}

// Runner executes one authorized invocation to a normalized result. Execute
// never returns an error and never panics: every fault becomes a typed
// failure inside the result.
type Runner interface {
	Execute(ctx context.Context, inv protocol.Invocation, env Env) protocol.Result
}

// failureFrom converts an error from a host operation into a typed failure.
// Typed failures pass through; workspace sentinels map onto their protocol
// kinds; anything else is a tool fault.
func failureFrom(err error) *protocol.Failure {
	var f *protocol.Failure
	if errors.As(err, &f) {
		return f
	}
	switch {
	case errors.Is(err, workspace.ErrPathDenied):
		return protocol.PathDenied("%s", err)
	case errors.Is(err, workspace.ErrQuotaExceeded):
		return protocol.QuotaExceeded("%s", err)
	case errors.Is(err, workspace.ErrBackendUnavailable):
		return protocol.BackendUnavailable("%s", err)
	case errors.Is(err, workspace.ErrConflictingBase):
		return protocol.ConflictingBase("%s", err)
	default:
		return protocol.ToolError("%s", err)
	}
}
