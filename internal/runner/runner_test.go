package runner

import (
	"context"
	"log/slog"
	"testing"

	"github.com/warden-run/warden/internal/capability"
	"github.com/warden-run/warden/internal/gateway"
	"github.com/warden-run/warden/internal/protocol"
	"github.com/warden-run/warden/internal/provider"
	"github.com/warden-run/warden/internal/provider/providertest"
	"github.com/warden-run/warden/internal/workspace"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// grantFor authorizes the requested capabilities against a policy that
// enables exactly the requested kinds, unscoped.
func grantFor(t *testing.T, requested ...capability.Capability) capability.Grant {
	t.Helper()
	rules := make(map[capability.Kind]capability.Rule)
	for _, c := range requested {
		rules[c.Kind] = capability.Rule{Enabled: true}
	}
	pol := capability.Policy{Rules: rules}
	return capability.Authorize(requested, pol, capability.Context{Tool: "test"})
}

// testWorkspace opens an overlay session over an in-memory base.
func testWorkspace(t *testing.T, seed map[string][]byte) (workspace.FS, *workspace.Session) {
	t.Helper()
	store := workspace.NewMemStore()
	base, err := store.CreateBase(seed)
	if err != nil {
		t.Fatalf("create base: %v", err)
	}
	fs := workspace.NewOverlay(store, 0)
	session, err := fs.CreateSession(context.Background(), base)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	return fs, session
}

func testGateway(content string) *gateway.Gateway {
	mock := &providertest.MockProvider{
		CompleteFunc: func(context.Context, provider.CompletionRequest) (provider.CompletionResponse, error) {
			return provider.CompletionResponse{Content: content}, nil
		},
	}
	return gateway.New(mock, 0, discardLogger())
}

func TestFailureFromMapsWorkspaceSentinels(t *testing.T) {
	t.Parallel()

	cases := map[error]protocol.FailureKind{
		workspace.ErrPathDenied:         protocol.FailPathDenied,
		workspace.ErrQuotaExceeded:      protocol.FailQuotaExceeded,
		workspace.ErrBackendUnavailable: protocol.FailBackendUnavailable,
		workspace.ErrConflictingBase:    protocol.FailConflictingBase,
		workspace.ErrNotFound:           protocol.FailToolError,
		context.Canceled:                protocol.FailToolError,
	}
	for err, want := range cases {
		if got := failureFrom(err); got.Kind != want {
			t.Errorf("failureFrom(%v).Kind = %s, want %s", err, got.Kind, want)
		}
	}

	typed := protocol.CapabilityDenied("already typed")
	if got := failureFrom(typed); got != typed {
		t.Errorf("typed failure was rewrapped: %v", got)
	}
}
