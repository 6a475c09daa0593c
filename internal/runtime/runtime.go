// Package runtime wires the dispatch pipeline: parse, validate, authorize,
// run, record. It is the only package that sees a tool call end to end; the
// stages below it are independent and testable on their own.
package runtime

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/warden-run/warden/internal/capability"
	"github.com/warden-run/warden/internal/gateway"
	"github.com/warden-run/warden/internal/manifest"
	"github.com/warden-run/warden/internal/protocol"
	"github.com/warden-run/warden/internal/runner"
	"github.com/warden-run/warden/internal/security"
	"github.com/warden-run/warden/internal/workspace"
)

// Options configures a Runtime. Registry, Trusted, and Sandbox are required;
// the rest degrade gracefully when absent.
type Options struct {
	Registry *manifest.Registry
	Policy   capability.Policy

	// Limits is the policy-side ceiling. Effective invocation limits are
	// the pairwise minimum of these and the manifest's.
	Limits protocol.Limits

	Trusted *runner.Trusted
	Sandbox *runner.Sandbox

	FS      workspace.FS
	Gateway *gateway.Gateway

	Audit   *security.AuditLogger
	Limiter *security.RateLimiter

	// EnvVars is the allowlist-filtered host environment tools may see,
	// subject to per-grant narrowing.
	EnvVars map[string]string

	Logger *slog.Logger
}

// Runtime dispatches tool calls. Safe for concurrent use.
type Runtime struct {
	registry *manifest.Registry
	policy   capability.Policy
	limits   protocol.Limits
	trusted  *runner.Trusted
	sandbox  *runner.Sandbox
	fs       workspace.FS
	gateway  *gateway.Gateway
	audit    *security.AuditLogger
	limiter  *security.RateLimiter
	envVars  map[string]string
	logger   *slog.Logger
	metrics  *Metrics
	tracer   trace.Tracer
}

// New creates a Runtime from options.
func New(opts Options) *Runtime {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Runtime{
		registry: opts.Registry,
		policy:   opts.Policy,
		limits:   opts.Limits,
		trusted:  opts.Trusted,
		sandbox:  opts.Sandbox,
		fs:       opts.FS,
		gateway:  opts.Gateway,
		audit:    opts.Audit,
		limiter:  opts.Limiter,
		envVars:  opts.EnvVars,
		logger:   logger,
		metrics:  &Metrics{},
		tracer:   otel.Tracer("warden/runtime"),
	}
}

// Metrics returns the runtime's counters.
func (r *Runtime) Metrics() *Metrics {
	return r.metrics
}

// Dispatch runs one raw tool-call payload against the given session and
// returns a normalized result. It never returns an error and never panics;
// every fault is a typed failure in the result.
func (r *Runtime) Dispatch(ctx context.Context, raw []byte, session *workspace.Session) protocol.Result {
	start := time.Now()
	r.metrics.RecordDispatch()

	fail := func(f *protocol.Failure) protocol.Result {
		r.metrics.RecordFailure(f.Kind)
		return protocol.Fail(f, protocol.Meta{WallTime: time.Since(start)})
	}

	if r.limiter != nil {
		if err := r.limiter.Allow("invocation"); err != nil {
			r.auditEvent(security.AuditEvent{Type: security.EventRateLimit, Detail: err.Error()})
			return fail(protocol.ToolError("%s", err))
		}
	}

	call, err := protocol.ParseCall(raw)
	if err != nil {
		return fail(protocol.InvalidArguments("%s", err))
	}

	m, err := r.registry.Get(call.Name)
	if err != nil {
		return fail(protocol.InvalidArguments("unknown tool %q", call.Name))
	}

	if err := protocol.ValidateArgs(m.InputSchema, call.Arguments); err != nil {
		return fail(protocol.InvalidArguments("%s", err))
	}
	state := protocol.StateValidated

	// Authorization narrows, it does not reject: a capability the policy
	// withholds is simply absent from the grant and the tool fails at the
	// point of use.
	grant := capability.Authorize(m.Capabilities, r.policy, capability.Context{Tool: m.Name})
	state = r.transition(state, protocol.StateAuthorized, m.Name)

	args := call.Arguments
	if len(args) == 0 {
		args = []byte(`{}`)
	}
	inv := protocol.Invocation{
		ID:      uuid.NewString(),
		Name:    m.Name,
		Version: m.Version,
		Args:    args,
		Source:  m.Source,
		Grant:   grant,
		Limits:  m.Limits.Protocol().Min(r.limits),
	}

	sessionID := ""
	if session != nil {
		sessionID = session.ID
	}
	r.auditEvent(security.AuditEvent{
		Type:         security.EventInvocation,
		InvocationID: inv.ID,
		Tool:         inv.Name,
		SessionID:    sessionID,
		Detail:       string(args),
	})

	state = r.transition(state, protocol.StateRunning, m.Name)

	ctx, span := r.tracer.Start(ctx, "tool.invoke", trace.WithAttributes(
		attribute.String("tool.name", inv.Name),
		attribute.String("tool.version", inv.Version),
		attribute.String("invocation.id", inv.ID),
		attribute.Bool("tool.trusted", m.Trusted),
	))
	defer span.End()

	env := runner.Env{
		FS:      r.fs,
		Session: session,
		Gateway: r.gateway,
		Vars:    r.envVars,
	}

	var res protocol.Result
	if m.Trusted {
		res = r.trusted.Execute(ctx, inv, env)
	} else {
		res = r.sandbox.Execute(ctx, inv, env)
	}

	r.transition(state, res.Meta.Exit, m.Name)
	r.recordOutcome(span, inv, sessionID, res)
	return res
}

// transition asserts a lifecycle step. Illegal transitions indicate a
// runtime bug; they are logged, never silently accepted.
func (r *Runtime) transition(from, to protocol.State, tool string) protocol.State {
	if !from.CanTransition(to) {
		r.logger.Error("illegal invocation state transition",
			"tool", tool, "from", from, "to", to)
	}
	return to
}

func (r *Runtime) recordOutcome(span trace.Span, inv protocol.Invocation, sessionID string, res protocol.Result) {
	event := security.AuditEvent{
		Type:         security.EventResult,
		InvocationID: inv.ID,
		Tool:         inv.Name,
		SessionID:    sessionID,
		Exit:         string(res.Meta.Exit),
	}

	if res.OK() {
		r.metrics.RecordCompletion(res.Meta.WallTime)
		event.Detail = string(res.Payload)
		span.SetStatus(codes.Ok, "")
	} else {
		r.metrics.RecordFailure(res.Failure.Kind)
		event.Detail = res.Failure.Error()
		if res.Failure.Kind == protocol.FailCapabilityDenied {
			event.Type = security.EventDenied
		}
		span.SetStatus(codes.Error, string(res.Failure.Kind))
		r.logger.Warn("invocation failed",
			"tool", inv.Name,
			"invocation", inv.ID,
			"kind", res.Failure.Kind,
			"error", res.Failure.Message)
	}
	span.SetAttributes(
		attribute.Int64("invocation.steps_used", res.Meta.StepsUsed),
		attribute.Int64("invocation.wall_time_ms", res.Meta.WallTime.Milliseconds()),
	)

	r.auditEvent(event)
}

func (r *Runtime) auditEvent(event security.AuditEvent) {
	if r.audit != nil {
		r.audit.Log(event)
	}
}
