package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/warden-run/warden/internal/protocol"
)

// HandlerFunc is a trusted tool implementation. Handlers run in-process with
// the invocation's grant and must do their own capability checks for
// anything beyond argument handling.
type HandlerFunc func(ctx context.Context, inv protocol.Invocation, env Env) (json.RawMessage, error)

// Trusted runs registered Go handlers directly. Panics are recovered and
// reported as tool_error results; timeouts are enforced by the host even
// when a handler ignores its context.
type Trusted struct {
	mu       sync.RWMutex
	handlers map[string]HandlerFunc
	logger   *slog.Logger
}

// NewTrusted creates an empty trusted runner.
func NewTrusted(logger *slog.Logger) *Trusted {
	if logger == nil {
		logger = slog.Default()
	}
	return &Trusted{
		handlers: make(map[string]HandlerFunc),
		logger:   logger,
	}
}

// Register binds a handler to a tool name.
func (t *Trusted) Register(name string, fn HandlerFunc) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("trusted runner: empty handler name")
	}
	if fn == nil {
		return fmt.Errorf("trusted runner: nil handler for %s", name)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.handlers[name]; exists {
		return fmt.Errorf("trusted runner: duplicate handler %s", name)
	}
	t.handlers[name] = fn
	return nil
}

// Execute implements Runner.
func (t *Trusted) Execute(ctx context.Context, inv protocol.Invocation, env Env) protocol.Result {
	start := time.Now()
	meta := func() protocol.Meta {
		return protocol.Meta{WallTime: time.Since(start)}
	}

	t.mu.RLock()
	fn, ok := t.handlers[inv.Name]
	t.mu.RUnlock()
	if !ok {
		return protocol.Fail(protocol.ToolError("no trusted handler for %s", inv.Name), meta())
	}

	timeout := inv.Limits.Timeout
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	type outcome struct {
		payload json.RawMessage
		err     error
	}
	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				t.logger.Error("trusted handler panicked", "tool", inv.Name, "panic", r)
				done <- outcome{err: protocol.ToolError("panic: %v", r)}
			}
		}()
		payload, err := fn(ctx, inv, env)
		done <- outcome{payload: payload, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			return protocol.Fail(failureFrom(out.err), meta())
		}
		payload := out.payload
		if len(payload) == 0 {
			payload = json.RawMessage(`null`)
		}
		return protocol.Success(payload, meta())

	case <-ctx.Done():
		// The handler goroutine is abandoned; it holds no locks the host
		// needs and its buffered send cannot block.
		if timeout > 0 && ctx.Err() == context.DeadlineExceeded {
			return protocol.Fail(
				protocol.ResourceExceeded(protocol.ResourceTimeout, "tool exceeded %v", timeout),
				meta())
		}
		return protocol.Fail(protocol.ToolError("invocation canceled: %v", ctx.Err()), meta())
	}
}
