package runner

import (
	"context"
	"encoding/json"
	"log/slog"
	"slices"
	"sync/atomic"
	"time"

	"github.com/dop251/goja"

	"github.com/warden-run/warden/internal/capability"
	"github.com/warden-run/warden/internal/gateway"
	"github.com/warden-run/warden/internal/protocol"
	"github.com/warden-run/warden/internal/provider"
	"github.com/warden-run/warden/internal/workspace"
)

// Default resource limits for sandboxed tools whose effective limits leave a
// dimension unset.
const (
	DefaultTimeout     = 30 * time.Second
	DefaultMemoryBytes = 256 << 20
	DefaultStepBudget  = 5_000_000
)

// Fuel accounting. The interpreter has no native instruction counter, so the
// host charges steps on a fixed cadence while the VM runs and a flat fee per
// host-binding call. Gateway wait is excluded from the cadence.
const (
	stepTick         = 10 * time.Millisecond
	stepsPerTick     = 1_000
	stepsPerHostCall = 100
)

// Sandbox runs untrusted JavaScript in an embedded interpreter. The script
// must define a global function run(args); its return value becomes the
// result payload. Host access happens only through capability-gated
// bindings, so an ungranted capability is unreachable rather than merely
// forbidden.
type Sandbox struct {
	logger *slog.Logger
}

// NewSandbox creates a sandboxed runner.
func NewSandbox(logger *slog.Logger) *Sandbox {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sandbox{logger: logger}
}

// hostFailure carries a typed failure out of a host binding as a panic. Only
// the sandbox's own run goroutine recovers it; the interpreter propagates
// foreign panics unchanged.
type hostFailure struct {
	f *protocol.Failure
}

// sandboxRun is the mutable state of one sandboxed invocation.
type sandboxRun struct {
	vm  *goja.Runtime
	inv protocol.Invocation
	env Env

	stepBudget  int64
	memoryLimit int64

	steps     atomic.Int64
	memory    atomic.Int64
	inGateway atomic.Bool

	// interrupted is set by the watchdog before it stops the VM so the
	// interruption can be classified after the fact.
	interrupted atomic.Pointer[protocol.Failure]
}

// chargeSteps charges binding fuel on the VM goroutine.
func (r *sandboxRun) chargeSteps(n int64) {
	if r.steps.Add(n) > r.stepBudget {
		panic(hostFailure{protocol.ResourceExceeded(protocol.ResourceSteps,
			"step budget of %d exhausted", r.stepBudget)})
	}
}

// chargeMemory attributes bytes moved through the sandbox boundary to the
// tool. It is a conservative proxy for the interpreter's working set.
func (r *sandboxRun) chargeMemory(n int64) {
	if r.memory.Add(n) > r.memoryLimit {
		panic(hostFailure{protocol.ResourceExceeded(protocol.ResourceMemory,
			"memory ceiling of %d bytes exceeded", r.memoryLimit)})
	}
}

// fail aborts the run from inside a binding with a typed failure.
func (r *sandboxRun) fail(err error) {
	panic(hostFailure{failureFrom(err)})
}

// Execute implements Runner.
func (s *Sandbox) Execute(ctx context.Context, inv protocol.Invocation, env Env) protocol.Result {
	limits := inv.Limits.Min(protocol.Limits{
		Timeout:     DefaultTimeout,
		MemoryBytes: DefaultMemoryBytes,
		StepBudget:  DefaultStepBudget,
	})

	ctx, cancel := context.WithTimeout(ctx, limits.Timeout)
	defer cancel()

	run := &sandboxRun{
		vm:          goja.New(),
		inv:         inv,
		env:         env,
		stepBudget:  limits.StepBudget,
		memoryLimit: limits.MemoryBytes,
	}
	s.bind(ctx, run)

	start := time.Now()
	type outcome struct {
		payload json.RawMessage
		failure *protocol.Failure
	}
	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				if hf, ok := rec.(hostFailure); ok {
					done <- outcome{failure: hf.f}
					return
				}
				s.logger.Error("sandbox panicked", "tool", inv.Name, "panic", rec)
				done <- outcome{failure: protocol.ToolError("panic: %v", rec)}
			}
		}()
		payload, failure := run.execute()
		done <- outcome{payload: payload, failure: failure}
	}()

	// The watchdog owns wall time and cadence-based fuel. It never charges
	// while the tool is parked in the gateway.
	watchdogDone := make(chan struct{})
	var out outcome
	func() {
		defer close(watchdogDone)
		deadline := time.NewTimer(limits.Timeout)
		defer deadline.Stop()
		ticker := time.NewTicker(stepTick)
		defer ticker.Stop()
		ctxDone := ctx.Done()

		for {
			select {
			case out = <-done:
				return
			case <-deadline.C:
				run.interrupt(protocol.ResourceExceeded(protocol.ResourceTimeout,
					"tool exceeded %v", limits.Timeout))
			case <-ctxDone:
				if ctx.Err() == context.DeadlineExceeded {
					run.interrupt(protocol.ResourceExceeded(protocol.ResourceTimeout,
						"tool exceeded %v", limits.Timeout))
				} else {
					run.interrupt(protocol.ToolError("invocation canceled: %v", ctx.Err()))
				}
				ctxDone = nil
			case <-ticker.C:
				if run.inGateway.Load() {
					continue
				}
				if run.steps.Add(stepsPerTick) > run.stepBudget {
					run.interrupt(protocol.ResourceExceeded(protocol.ResourceSteps,
						"step budget of %d exhausted", run.stepBudget))
				}
			}
		}
	}()
	<-watchdogDone

	meta := protocol.Meta{
		WallTime:        time.Since(start),
		StepsUsed:       min(run.steps.Load(), run.stepBudget),
		MemoryPeakBytes: run.memory.Load(),
	}
	if out.failure != nil {
		return protocol.Fail(out.failure, meta)
	}
	return protocol.Success(out.payload, meta)
}

// interrupt records the classification, then stops the VM. Idempotent: only
// the first failure sticks.
func (r *sandboxRun) interrupt(f *protocol.Failure) {
	if r.interrupted.CompareAndSwap(nil, f) {
		r.vm.Interrupt(f.Kind)
	}
}

// execute runs on the VM goroutine: evaluate the source, call run(args),
// serialize the result.
func (r *sandboxRun) execute() (json.RawMessage, *protocol.Failure) {
	r.chargeMemory(int64(len(r.inv.Source) + len(r.inv.Args)))

	if _, err := r.vm.RunString(r.inv.Source); err != nil {
		return nil, r.classify(err)
	}

	fn, ok := goja.AssertFunction(r.vm.Get("run"))
	if !ok {
		return nil, protocol.ToolError("source does not define a run(args) function")
	}

	args := map[string]any{}
	if len(r.inv.Args) > 0 {
		if err := json.Unmarshal(r.inv.Args, &args); err != nil {
			return nil, protocol.InvalidArguments("arguments are not an object: %v", err)
		}
	}

	value, err := fn(goja.Undefined(), r.vm.ToValue(args))
	if err != nil {
		return nil, r.classify(err)
	}

	payload, err := json.Marshal(value.Export())
	if err != nil {
		return nil, protocol.ToolError("result is not serializable: %v", err)
	}
	r.chargeMemory(int64(len(payload)))
	return payload, nil
}

// classify maps an interpreter error to a typed failure. An interruption
// reports whatever the watchdog recorded; a JS exception is a tool fault.
func (r *sandboxRun) classify(err error) *protocol.Failure {
	if _, ok := err.(*goja.InterruptedError); ok {
		if f := r.interrupted.Load(); f != nil {
			return f
		}
		return protocol.ToolError("execution interrupted")
	}
	if ex, ok := err.(*goja.Exception); ok {
		return protocol.ToolError("uncaught exception: %s", ex.Value().String())
	}
	return protocol.ToolError("%s", err)
}

// bind installs host bindings according to the grant. Every known binding
// name exists either as the real operation or as a denial stub, so an
// ungranted access fails with capability_denied instead of a bare
// ReferenceError the tool cannot distinguish from a typo.
func (s *Sandbox) bind(ctx context.Context, run *sandboxRun) {
	if fsCap, ok := run.inv.Grant.Get(capability.KindFilesystem); ok && run.env.FS != nil {
		s.bindFilesystem(ctx, run, fsCap)
	} else {
		denyAll(run, "filesystem", "ws_read", "ws_write", "ws_remove", "ws_list", "ws_diff")
	}

	if run.inv.Grant.Has(capability.KindModelAccess) && run.env.Gateway != nil {
		s.bindModel(ctx, run)
	} else {
		denyAll(run, "model_access", "model_infer")
	}

	if envCap, ok := run.inv.Grant.Get(capability.KindEnv); ok {
		s.bindEnv(run, envCap)
	} else {
		denyAll(run, "env", "env_get")
	}
}

func denyAll(run *sandboxRun, kind string, names ...string) {
	for _, name := range names {
		name := name
		run.vm.Set(name, func(goja.FunctionCall) goja.Value {
			panic(hostFailure{protocol.CapabilityDenied(
				"%s requires the %s capability, which was not granted", name, kind)})
		})
	}
}

// resolvePath cleans a tool-supplied path and checks it against the grant's
// mount scope. Escapes fail, they are never clamped.
func (run *sandboxRun) resolvePath(raw string, mounts []string) string {
	cleaned, err := workspace.CleanPath(raw)
	if err != nil {
		run.fail(err)
	}
	if len(mounts) > 0 && !workspace.WithinMounts(cleaned, mounts) {
		run.fail(protocol.PathDenied("path %q is outside the granted mounts", cleaned))
	}
	return cleaned
}

func (s *Sandbox) bindFilesystem(ctx context.Context, run *sandboxRun, fsCap capability.Capability) {
	vm := run.vm

	vm.Set("ws_read", func(path string) string {
		run.chargeSteps(stepsPerHostCall)
		data, err := run.env.FS.Read(ctx, run.env.Session, run.resolvePath(path, fsCap.Mounts))
		if err != nil {
			run.fail(err)
		}
		run.chargeMemory(int64(len(data)))
		return string(data)
	})

	vm.Set("ws_write", func(path, data string) {
		run.chargeSteps(stepsPerHostCall)
		run.chargeMemory(int64(len(data)))
		if err := run.env.FS.Write(ctx, run.env.Session, run.resolvePath(path, fsCap.Mounts), []byte(data)); err != nil {
			run.fail(err)
		}
	})

	vm.Set("ws_remove", func(path string) {
		run.chargeSteps(stepsPerHostCall)
		if err := run.env.FS.Remove(ctx, run.env.Session, run.resolvePath(path, fsCap.Mounts)); err != nil {
			run.fail(err)
		}
	})

	vm.Set("ws_list", func(path string) []map[string]any {
		run.chargeSteps(stepsPerHostCall)
		entries, err := run.env.FS.List(ctx, run.env.Session, run.resolvePath(path, fsCap.Mounts))
		if err != nil {
			run.fail(err)
		}
		out := make([]map[string]any, 0, len(entries))
		for _, e := range entries {
			out = append(out, map[string]any{"name": e.Name, "dir": e.Dir})
		}
		return out
	})

	vm.Set("ws_diff", func() []map[string]any {
		run.chargeSteps(stepsPerHostCall)
		changes, err := run.env.FS.Diff(ctx, run.env.Session)
		if err != nil {
			run.fail(err)
		}
		out := make([]map[string]any, 0, len(changes))
		for _, c := range changes {
			out = append(out, map[string]any{"path": c.Path, "kind": string(c.Kind)})
		}
		return out
	})
}

func (s *Sandbox) bindModel(ctx context.Context, run *sandboxRun) {
	run.vm.Set("model_infer", func(prompt string) string {
		run.chargeSteps(stepsPerHostCall)
		run.chargeMemory(int64(len(prompt)))

		run.inGateway.Store(true)
		resp, err := run.env.Gateway.Infer(ctx, run.inv.Grant, gateway.ModelRequest{
			Messages: []provider.Message{{Role: provider.MessageRoleUser, Content: prompt}},
		})
		run.inGateway.Store(false)

		if err != nil {
			run.fail(err)
		}
		run.chargeMemory(int64(len(resp.Content)))
		return resp.Content
	})
}

func (s *Sandbox) bindEnv(run *sandboxRun, envCap capability.Capability) {
	run.vm.Set("env_get", func(name string) goja.Value {
		run.chargeSteps(stepsPerHostCall)
		if len(envCap.Vars) > 0 && !slices.Contains(envCap.Vars, name) {
			run.fail(protocol.CapabilityDenied("env var %q is outside the granted scope", name))
		}
		value, ok := run.env.Vars[name]
		if !ok {
			return goja.Undefined()
		}
		return run.vm.ToValue(value)
	})
}
