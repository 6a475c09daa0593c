// Package workspacetest provides the shared contract suite every workspace
// backend must pass. Behavioral parity across backends is a verified
// property: each backend's tests call RunContract, and isolating backends
// additionally call RunIsolation.
package workspacetest

import (
	"context"
	"errors"
	"testing"

	"github.com/warden-run/warden/internal/workspace"
)

// Env is one backend under test: an FS plus a fresh base reference holding
// the seed files the factory was given.
type Env struct {
	FS   workspace.FS
	Base string
}

// Factory builds a fresh backend environment seeded with the given files.
type Factory func(t *testing.T, seed map[string][]byte) Env

var seedFiles = map[string][]byte{
	"README.md":    []byte("hello\n"),
	"src/main.go":  []byte("package main\n"),
	"src/util.go":  []byte("package main // util\n"),
	"docs/faq.txt": []byte("faq\n"),
}

// RunContract exercises the behavior every backend implements identically:
// session lifecycle, path confinement, read/write/list/remove, diff
// determinism, and closed-session semantics.
func RunContract(t *testing.T, factory Factory) {
	t.Helper()
	ctx := context.Background()

	t.Run("ReadSeedFile", func(t *testing.T) {
		env := factory(t, seedFiles)
		s := mustSession(t, env)
		defer discard(t, env, s)

		data, err := env.FS.Read(ctx, s, "README.md")
		if err != nil {
			t.Fatalf("read seed file: %v", err)
		}
		if string(data) != "hello\n" {
			t.Errorf("read %q, want seed content", data)
		}
	})

	t.Run("ReadMissingFileIsNotFound", func(t *testing.T) {
		env := factory(t, seedFiles)
		s := mustSession(t, env)
		defer discard(t, env, s)

		_, err := env.FS.Read(ctx, s, "nope.txt")
		if !errors.Is(err, workspace.ErrNotFound) {
			t.Errorf("missing file: got %v, want ErrNotFound", err)
		}
	})

	t.Run("WriteThenReadBack", func(t *testing.T) {
		env := factory(t, seedFiles)
		s := mustSession(t, env)
		defer discard(t, env, s)

		if err := env.FS.Write(ctx, s, "out/result.txt", []byte("done")); err != nil {
			t.Fatalf("write: %v", err)
		}
		data, err := env.FS.Read(ctx, s, "out/result.txt")
		if err != nil {
			t.Fatalf("read back: %v", err)
		}
		if string(data) != "done" {
			t.Errorf("read back %q, want %q", data, "done")
		}
	})

	t.Run("TraversalFailsWithPathDenied", func(t *testing.T) {
		env := factory(t, seedFiles)
		s := mustSession(t, env)
		defer discard(t, env, s)

		escapes := []string{"../outside.txt", "src/../../etc/passwd", "/etc/passwd", ".."}
		for _, p := range escapes {
			if _, err := env.FS.Read(ctx, s, p); !errors.Is(err, workspace.ErrPathDenied) {
				t.Errorf("read %q: got %v, want ErrPathDenied", p, err)
			}
			if err := env.FS.Write(ctx, s, p, []byte("x")); !errors.Is(err, workspace.ErrPathDenied) {
				t.Errorf("write %q: got %v, want ErrPathDenied", p, err)
			}
		}
	})

	t.Run("InternalDotDotIsNotEscape", func(t *testing.T) {
		env := factory(t, seedFiles)
		s := mustSession(t, env)
		defer discard(t, env, s)

		// Resolves to src/main.go, inside the root.
		if _, err := env.FS.Read(ctx, s, "docs/../src/main.go"); err != nil {
			t.Errorf("internal traversal should resolve: %v", err)
		}
	})

	t.Run("ListRootAndSubdir", func(t *testing.T) {
		env := factory(t, seedFiles)
		s := mustSession(t, env)
		defer discard(t, env, s)

		root, err := env.FS.List(ctx, s, "")
		if err != nil {
			t.Fatalf("list root: %v", err)
		}
		assertEntries(t, root, map[string]bool{"README.md": false, "src": true, "docs": true})

		src, err := env.FS.List(ctx, s, "src")
		if err != nil {
			t.Fatalf("list src: %v", err)
		}
		assertEntries(t, src, map[string]bool{"main.go": false, "util.go": false})
	})

	t.Run("DiffReportsExactlyTheDelta", func(t *testing.T) {
		env := factory(t, seedFiles)
		s := mustSession(t, env)
		defer discard(t, env, s)

		if err := env.FS.Write(ctx, s, "new.txt", []byte("new")); err != nil {
			t.Fatalf("write new: %v", err)
		}
		if err := env.FS.Write(ctx, s, "README.md", []byte("changed\n")); err != nil {
			t.Fatalf("write modified: %v", err)
		}
		if err := env.FS.Remove(ctx, s, "docs/faq.txt"); err != nil {
			t.Fatalf("remove: %v", err)
		}

		changes, err := env.FS.Diff(ctx, s)
		if err != nil {
			t.Fatalf("diff: %v", err)
		}
		want := []workspace.Change{
			{Path: "README.md", Kind: workspace.ChangeModified},
			{Path: "docs/faq.txt", Kind: workspace.ChangeDeleted},
			{Path: "new.txt", Kind: workspace.ChangeAdded},
		}
		if len(changes) != len(want) {
			t.Fatalf("diff = %+v, want %+v", changes, want)
		}
		for i := range want {
			if changes[i] != want[i] {
				t.Errorf("diff[%d] = %+v, want %+v (ordering must be by path)", i, changes[i], want[i])
			}
		}
	})

	t.Run("RewriteWithSameContentIsNotReported", func(t *testing.T) {
		env := factory(t, seedFiles)
		s := mustSession(t, env)
		defer discard(t, env, s)

		if err := env.FS.Write(ctx, s, "README.md", []byte("hello\n")); err != nil {
			t.Fatalf("write: %v", err)
		}
		changes, err := env.FS.Diff(ctx, s)
		if err != nil {
			t.Fatalf("diff: %v", err)
		}
		for _, c := range changes {
			if c.Path == "README.md" {
				t.Errorf("identical rewrite reported as %s", c.Kind)
			}
		}
	})

	t.Run("SessionUnusableAfterDiscard", func(t *testing.T) {
		env := factory(t, seedFiles)
		s := mustSession(t, env)

		if err := env.FS.Discard(ctx, s); err != nil {
			t.Fatalf("discard: %v", err)
		}
		if s.Status() != workspace.StatusDiscarded {
			t.Errorf("status = %s, want discarded", s.Status())
		}
		if _, err := env.FS.Read(ctx, s, "README.md"); !errors.Is(err, workspace.ErrSessionClosed) {
			t.Errorf("read after discard: got %v, want ErrSessionClosed", err)
		}
		if err := env.FS.Discard(ctx, s); !errors.Is(err, workspace.ErrSessionClosed) {
			t.Errorf("double discard: got %v, want ErrSessionClosed", err)
		}
	})

	t.Run("SessionUnusableAfterCommit", func(t *testing.T) {
		env := factory(t, seedFiles)
		s := mustSession(t, env)

		if err := env.FS.Write(ctx, s, "a.txt", []byte("a")); err != nil {
			t.Fatalf("write: %v", err)
		}
		ref, err := env.FS.Commit(ctx, s)
		if err != nil {
			t.Fatalf("commit: %v", err)
		}
		if ref == "" {
			t.Error("commit should return a new base reference")
		}
		if s.Status() != workspace.StatusCommitted {
			t.Errorf("status = %s, want committed", s.Status())
		}
		if err := env.FS.Write(ctx, s, "b.txt", []byte("b")); !errors.Is(err, workspace.ErrSessionClosed) {
			t.Errorf("write after commit: got %v, want ErrSessionClosed", err)
		}
	})

	t.Run("UnknownBaseRejected", func(t *testing.T) {
		env := factory(t, seedFiles)
		_, err := env.FS.CreateSession(ctx, "no-such-base-ref")
		if err == nil {
			t.Fatal("creating a session over an unknown base should fail")
		}
	})
}

// RunIsolation exercises copy-on-write semantics: delta invisibility before
// commit, discard leaving the base untouched, session independence, and
// conflicting commits. Only isolating backends (overlay, remote) run it.
func RunIsolation(t *testing.T, factory Factory) {
	t.Helper()
	ctx := context.Background()

	t.Run("DeltaInvisibleOutsideSessionUntilCommit", func(t *testing.T) {
		env := factory(t, seedFiles)
		writer := mustSession(t, env)
		observer := mustSession(t, env)

		if err := env.FS.Write(ctx, writer, "README.md", []byte("draft\n")); err != nil {
			t.Fatalf("write: %v", err)
		}

		data, err := env.FS.Read(ctx, observer, "README.md")
		if err != nil {
			t.Fatalf("observer read: %v", err)
		}
		if string(data) != "hello\n" {
			t.Errorf("observer sees %q before commit, want base content", data)
		}

		if _, err := env.FS.Commit(ctx, writer); err != nil {
			t.Fatalf("commit: %v", err)
		}

		// The observer's base is unchanged even after the commit: commit
		// creates a new base, it does not mutate the old one.
		data, err = env.FS.Read(ctx, observer, "README.md")
		if err != nil {
			t.Fatalf("observer read after commit: %v", err)
		}
		if string(data) != "hello\n" {
			t.Errorf("old base mutated by commit: %q", data)
		}
	})

	t.Run("CommittedDeltaVisibleFromNewBase", func(t *testing.T) {
		env := factory(t, seedFiles)
		s := mustSession(t, env)

		if err := env.FS.Write(ctx, s, "out.txt", []byte("result")); err != nil {
			t.Fatalf("write: %v", err)
		}
		ref, err := env.FS.Commit(ctx, s)
		if err != nil {
			t.Fatalf("commit: %v", err)
		}

		next := mustSessionOver(t, env, ref)
		defer discard(t, env, next)

		data, err := env.FS.Read(ctx, next, "out.txt")
		if err != nil {
			t.Fatalf("read from new base: %v", err)
		}
		if string(data) != "result" {
			t.Errorf("new base content = %q, want %q", data, "result")
		}
		// Seed content is still reachable through the chain.
		if _, err := env.FS.Read(ctx, next, "src/main.go"); err != nil {
			t.Errorf("seed content lost after commit: %v", err)
		}
	})

	t.Run("DiscardLeavesBaseUnchanged", func(t *testing.T) {
		env := factory(t, seedFiles)
		s := mustSession(t, env)

		if err := env.FS.Write(ctx, s, "scratch.txt", []byte("tmp")); err != nil {
			t.Fatalf("write: %v", err)
		}
		if err := env.FS.Write(ctx, s, "README.md", []byte("mutated\n")); err != nil {
			t.Fatalf("write: %v", err)
		}
		if err := env.FS.Discard(ctx, s); err != nil {
			t.Fatalf("discard: %v", err)
		}

		check := mustSession(t, env)
		defer discard(t, env, check)

		if _, err := env.FS.Read(ctx, check, "scratch.txt"); !errors.Is(err, workspace.ErrNotFound) {
			t.Errorf("discarded write persisted: %v", err)
		}
		data, err := env.FS.Read(ctx, check, "README.md")
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if string(data) != "hello\n" {
			t.Errorf("base content = %q after discard, want original", data)
		}
	})

	t.Run("ConcurrentSessionsAreIsolated", func(t *testing.T) {
		env := factory(t, seedFiles)
		a := mustSession(t, env)
		b := mustSession(t, env)
		defer discard(t, env, a)
		defer discard(t, env, b)

		if err := env.FS.Write(ctx, a, "shared.txt", []byte("from-a")); err != nil {
			t.Fatalf("write a: %v", err)
		}
		if err := env.FS.Write(ctx, b, "shared.txt", []byte("from-b")); err != nil {
			t.Fatalf("write b: %v", err)
		}

		dataA, err := env.FS.Read(ctx, a, "shared.txt")
		if err != nil {
			t.Fatalf("read a: %v", err)
		}
		dataB, err := env.FS.Read(ctx, b, "shared.txt")
		if err != nil {
			t.Fatalf("read b: %v", err)
		}
		if string(dataA) != "from-a" || string(dataB) != "from-b" {
			t.Errorf("sessions share state: a=%q b=%q", dataA, dataB)
		}
	})

	t.Run("SecondCommitAgainstStaleBaseConflicts", func(t *testing.T) {
		env := factory(t, seedFiles)
		first := mustSession(t, env)
		second := mustSession(t, env)

		if err := env.FS.Write(ctx, first, "a.txt", []byte("one")); err != nil {
			t.Fatalf("write first: %v", err)
		}
		if err := env.FS.Write(ctx, second, "a.txt", []byte("two")); err != nil {
			t.Fatalf("write second: %v", err)
		}

		if _, err := env.FS.Commit(ctx, first); err != nil {
			t.Fatalf("first commit: %v", err)
		}

		_, err := env.FS.Commit(ctx, second)
		if !errors.Is(err, workspace.ErrConflictingBase) {
			t.Fatalf("second commit: got %v, want ErrConflictingBase", err)
		}

		// The losing session stays open so the caller can diff or discard.
		if second.Status() != workspace.StatusOpen {
			t.Errorf("losing session status = %s, want open", second.Status())
		}
		if err := env.FS.Discard(ctx, second); err != nil {
			t.Errorf("discard after conflict: %v", err)
		}
	})
}

func mustSession(t *testing.T, env Env) *workspace.Session {
	t.Helper()
	return mustSessionOver(t, env, env.Base)
}

func mustSessionOver(t *testing.T, env Env, base string) *workspace.Session {
	t.Helper()
	s, err := env.FS.CreateSession(context.Background(), base)
	if err != nil {
		t.Fatalf("create session over %s: %v", base, err)
	}
	return s
}

func discard(t *testing.T, env Env, s *workspace.Session) {
	t.Helper()
	if s.Status() == workspace.StatusOpen {
		if err := env.FS.Discard(context.Background(), s); err != nil {
			t.Errorf("cleanup discard: %v", err)
		}
	}
}

func assertEntries(t *testing.T, got []workspace.Entry, want map[string]bool) {
	t.Helper()
	if len(got) != len(want) {
		t.Errorf("entries = %+v, want names %v", got, want)
		return
	}
	for i, e := range got {
		dir, ok := want[e.Name]
		if !ok {
			t.Errorf("unexpected entry %q", e.Name)
			continue
		}
		if e.Dir != dir {
			t.Errorf("entry %q dir = %v, want %v", e.Name, e.Dir, dir)
		}
		if i > 0 && got[i-1].Name > e.Name {
			t.Errorf("entries not sorted: %q before %q", got[i-1].Name, e.Name)
		}
	}
}
