package workspace_test

import (
	"context"
	"errors"
	"testing"

	"github.com/warden-run/warden/internal/workspace"
	"github.com/warden-run/warden/internal/workspace/workspacetest"
)

func overlayFactory(quota int64) workspacetest.Factory {
	return func(t *testing.T, seed map[string][]byte) workspacetest.Env {
		t.Helper()
		store := workspace.NewMemStore()
		base, err := store.CreateBase(seed)
		if err != nil {
			t.Fatalf("create base: %v", err)
		}
		return workspacetest.Env{FS: workspace.NewOverlay(store, quota), Base: base}
	}
}

func TestOverlay_Contract(t *testing.T) {
	t.Parallel()
	workspacetest.RunContract(t, overlayFactory(0))
}

func TestOverlay_Isolation(t *testing.T) {
	t.Parallel()
	workspacetest.RunIsolation(t, overlayFactory(0))
}

func TestOverlay_QuotaExceeded(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	env := overlayFactory(16)(t, map[string][]byte{"seed.txt": []byte("s")})
	s, err := env.FS.CreateSession(ctx, env.Base)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	if err := env.FS.Write(ctx, s, "a.txt", make([]byte, 10)); err != nil {
		t.Fatalf("write under quota: %v", err)
	}
	if err := env.FS.Write(ctx, s, "b.txt", make([]byte, 10)); !errors.Is(err, workspace.ErrQuotaExceeded) {
		t.Fatalf("write over quota: got %v, want ErrQuotaExceeded", err)
	}

	// Rewriting a delta file counts its old size out first.
	if err := env.FS.Write(ctx, s, "a.txt", make([]byte, 16)); err != nil {
		t.Errorf("rewrite inside quota: %v", err)
	}
}

func TestOverlay_RemoveThenReadIsNotFound(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	env := overlayFactory(0)(t, map[string][]byte{"doomed.txt": []byte("x")})
	s, err := env.FS.CreateSession(ctx, env.Base)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	if err := env.FS.Remove(ctx, s, "doomed.txt"); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, err := env.FS.Read(ctx, s, "doomed.txt"); !errors.Is(err, workspace.ErrNotFound) {
		t.Errorf("read removed: got %v, want ErrNotFound", err)
	}
	if err := env.FS.Remove(ctx, s, "doomed.txt"); !errors.Is(err, workspace.ErrNotFound) {
		t.Errorf("double remove: got %v, want ErrNotFound", err)
	}

	// Write after remove resurrects the path.
	if err := env.FS.Write(ctx, s, "doomed.txt", []byte("back")); err != nil {
		t.Fatalf("write after remove: %v", err)
	}
	data, err := env.FS.Read(ctx, s, "doomed.txt")
	if err != nil || string(data) != "back" {
		t.Errorf("resurrected read = %q, %v", data, err)
	}
}

func TestOverlay_CommitChainPreservesHistory(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	store := workspace.NewMemStore()
	base, err := store.CreateBase(map[string][]byte{"v.txt": []byte("v1")})
	if err != nil {
		t.Fatalf("create base: %v", err)
	}
	fs := workspace.NewOverlay(store, 0)

	head := base
	for _, content := range []string{"v2", "v3", "v4"} {
		s, err := fs.CreateSession(ctx, head)
		if err != nil {
			t.Fatalf("create session: %v", err)
		}
		if err := fs.Write(ctx, s, "v.txt", []byte(content)); err != nil {
			t.Fatalf("write: %v", err)
		}
		head, err = fs.Commit(ctx, s)
		if err != nil {
			t.Fatalf("commit %s: %v", content, err)
		}
	}

	// The original base still resolves to its own content.
	data, ok, err := store.ReadFile(base, "v.txt")
	if err != nil || !ok || string(data) != "v1" {
		t.Errorf("root base read = %q, %v, %v; want v1", data, ok, err)
	}
	data, ok, err = store.ReadFile(head, "v.txt")
	if err != nil || !ok || string(data) != "v4" {
		t.Errorf("head read = %q, %v, %v; want v4", data, ok, err)
	}
}
