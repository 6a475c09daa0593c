package wsserver

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/warden-run/warden/internal/workspace"
	"github.com/warden-run/warden/internal/workspace/workspacetest"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func startServer(t *testing.T, opts Options) (*Server, *workspace.Remote) {
	t.Helper()
	if opts.Logger == nil {
		opts.Logger = discardLogger()
	}
	srv := New(opts)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return srv, workspace.NewRemote(ts.URL, ts.Client())
}

func remoteFactory(store func(t *testing.T) workspace.SnapshotStore) workspacetest.Factory {
	return func(t *testing.T, seed map[string][]byte) workspacetest.Env {
		t.Helper()
		_, remote := startServer(t, Options{Store: store(t)})
		base, err := remote.CreateBase(context.Background(), seed)
		if err != nil {
			t.Fatalf("create base: %v", err)
		}
		return workspacetest.Env{FS: remote, Base: base}
	}
}

func memStore(t *testing.T) workspace.SnapshotStore {
	return workspace.NewMemStore()
}

func boltStore(t *testing.T) workspace.SnapshotStore {
	store, err := workspace.OpenBoltStore(filepath.Join(t.TempDir(), "workspace.db"))
	if err != nil {
		t.Fatalf("open bolt store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestRemoteOverMemStoreContract(t *testing.T) {
	workspacetest.RunContract(t, remoteFactory(memStore))
	workspacetest.RunIsolation(t, remoteFactory(memStore))
}

func TestRemoteOverBoltStoreContract(t *testing.T) {
	workspacetest.RunContract(t, remoteFactory(boltStore))
	workspacetest.RunIsolation(t, remoteFactory(boltStore))
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	srv := New(Options{Store: workspace.NewMemStore(), Logger: discardLogger()})
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := ts.Client().Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

func TestUnknownSessionMapsToNotFound(t *testing.T) {
	t.Parallel()

	_, remote := startServer(t, Options{Store: workspace.NewMemStore()})
	ghost := workspace.NewSession("no-such-session", "no-such-base", workspace.BackendRemote)

	_, err := remote.Read(context.Background(), ghost, "a.txt")
	if !errors.Is(err, workspace.ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}

func TestQuotaMapsToQuotaExceeded(t *testing.T) {
	t.Parallel()

	_, remote := startServer(t, Options{Store: workspace.NewMemStore(), Quota: 16})
	base, err := remote.CreateBase(context.Background(), nil)
	if err != nil {
		t.Fatalf("create base: %v", err)
	}
	s, err := remote.CreateSession(context.Background(), base)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	err = remote.Write(context.Background(), s, "big.bin", make([]byte, 64))
	if !errors.Is(err, workspace.ErrQuotaExceeded) {
		t.Errorf("got %v, want ErrQuotaExceeded", err)
	}
}

func TestStatusForCoversSentinelSet(t *testing.T) {
	t.Parallel()

	cases := []struct {
		err  error
		want int
	}{
		{workspace.ErrNotFound, http.StatusNotFound},
		{workspace.ErrPathDenied, http.StatusForbidden},
		{workspace.ErrQuotaExceeded, http.StatusRequestEntityTooLarge},
		{workspace.ErrConflictingBase, http.StatusConflict},
		{workspace.ErrSessionClosed, http.StatusGone},
		{workspace.ErrUnknownBase, http.StatusBadRequest},
		{errors.New("disk on fire"), http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		if got := statusFor(tc.err); got != tc.want {
			t.Errorf("statusFor(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}

func TestReaperDiscardsIdleSessions(t *testing.T) {
	t.Parallel()

	srv, remote := startServer(t, Options{
		Store:     workspace.NewMemStore(),
		ReapAfter: time.Minute,
	})
	base, err := remote.CreateBase(context.Background(), map[string][]byte{"a.txt": []byte("a")})
	if err != nil {
		t.Fatalf("create base: %v", err)
	}
	idle, err := remote.CreateSession(context.Background(), base)
	if err != nil {
		t.Fatalf("create idle session: %v", err)
	}
	busy, err := remote.CreateSession(context.Background(), base)
	if err != nil {
		t.Fatalf("create busy session: %v", err)
	}

	// The busy session is touched after the idle one went stale.
	srv.mu.Lock()
	srv.sessions[idle.ID].lastUsed = time.Now().Add(-2 * time.Minute)
	srv.mu.Unlock()
	if _, err := remote.Read(context.Background(), busy, "a.txt"); err != nil {
		t.Fatalf("read: %v", err)
	}

	srv.reap(time.Now())

	if _, err := remote.Read(context.Background(), idle, "a.txt"); !errors.Is(err, workspace.ErrNotFound) {
		t.Errorf("reaped session read: got %v, want ErrNotFound", err)
	}
	if _, err := remote.Read(context.Background(), busy, "a.txt"); err != nil {
		t.Errorf("busy session reaped: %v", err)
	}
}

func TestReaperDisabledWithoutInterval(t *testing.T) {
	t.Parallel()

	srv := New(Options{Store: workspace.NewMemStore(), Logger: discardLogger()})
	stop, err := srv.StartReaper()
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	stop()
}
