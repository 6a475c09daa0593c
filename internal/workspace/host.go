package workspace

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// BackendHost names the pass-through host backend.
const BackendHost = "host"

// Host is the pass-through backend: sessions operate directly on a host
// directory named by the base reference. It provides path confinement and
// quota enforcement but no write isolation; Diff is computed against a
// content snapshot taken at session creation. Intended for trusted local
// work only.
type Host struct {
	quota int64

	mu       sync.Mutex
	sessions map[string]*hostState
}

type hostState struct {
	root     string
	snapshot map[string][32]byte
	written  int64
}

// NewHost creates a host backend.
func NewHost(quota int64) *Host {
	return &Host{quota: quota, sessions: make(map[string]*hostState)}
}

// CreateSession opens a session over the host directory named by base.
func (h *Host) CreateSession(_ context.Context, base string) (*Session, error) {
	info, err := os.Stat(base)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownBase, base)
		}
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", ErrUnknownBase, base)
	}

	snapshot, err := snapshotDir(base)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	s := NewSession(uuid.NewString(), base, BackendHost)
	h.mu.Lock()
	h.sessions[s.ID] = &hostState{root: base, snapshot: snapshot}
	h.mu.Unlock()
	return s, nil
}

// Read returns the file content at path.
func (h *Host) Read(_ context.Context, s *Session, path string) ([]byte, error) {
	_, full, _, err := h.resolve(s, path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(full)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, err
	}
	return data, nil
}

// Write stores data at path, creating parent directories as needed.
func (h *Host) Write(_ context.Context, s *Session, path string, data []byte) error {
	state, full, cleaned, err := h.resolve(s, path)
	if err != nil {
		return err
	}
	if cleaned == "" {
		return fmt.Errorf("%w: cannot write the session root", ErrPathDenied)
	}

	h.mu.Lock()
	next := state.written + int64(len(data))
	if h.quota > 0 && next > h.quota {
		h.mu.Unlock()
		return fmt.Errorf("%w: session has written %d bytes (quota %d)", ErrQuotaExceeded, next, h.quota)
	}
	state.written = next
	h.mu.Unlock()

	if dir := filepath.Dir(full); dir != state.root {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(full, data, 0o644)
}

// Remove deletes the file at path.
func (h *Host) Remove(_ context.Context, s *Session, path string) error {
	_, full, _, err := h.resolve(s, path)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return err
	}
	return nil
}

// List returns the sorted entries of the directory at path.
func (h *Host) List(_ context.Context, s *Session, path string) ([]Entry, error) {
	_, full, _, err := h.resolve(s, path)
	if err != nil {
		return nil, err
	}

	dirents, err := os.ReadDir(full)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, err
	}

	entries := make([]Entry, 0, len(dirents))
	for _, de := range dirents {
		entries = append(entries, Entry{Name: de.Name(), Dir: de.IsDir()})
	}
	slices.SortFunc(entries, func(a, b Entry) int {
		return strings.Compare(a.Name, b.Name)
	})
	return entries, nil
}

// Diff compares the directory against the snapshot taken at CreateSession.
func (h *Host) Diff(_ context.Context, s *Session) ([]Change, error) {
	state, _, _, err := h.resolve(s, "")
	if err != nil {
		return nil, err
	}

	current, err := snapshotDir(state.root)
	if err != nil {
		return nil, err
	}

	var changes []Change
	for p, sum := range current {
		was, existed := state.snapshot[p]
		switch {
		case !existed:
			changes = append(changes, Change{Path: p, Kind: ChangeAdded})
		case was != sum:
			changes = append(changes, Change{Path: p, Kind: ChangeModified})
		}
	}
	for p := range state.snapshot {
		if _, still := current[p]; !still {
			changes = append(changes, Change{Path: p, Kind: ChangeDeleted})
		}
	}

	slices.SortFunc(changes, func(a, b Change) int {
		return strings.Compare(a.Path, b.Path)
	})
	return changes, nil
}

// Commit closes the session. Writes have already landed on the host, so the
// base directory itself is the new base reference.
func (h *Host) Commit(_ context.Context, s *Session) (string, error) {
	state, _, _, err := h.resolve(s, "")
	if err != nil {
		return "", err
	}
	if err := s.close(StatusCommitted); err != nil {
		return "", err
	}
	h.drop(s.ID)
	return state.root, nil
}

// Discard closes the session. Pass-through writes are not rolled back.
func (h *Host) Discard(_ context.Context, s *Session) error {
	if _, _, _, err := h.resolve(s, ""); err != nil {
		return err
	}
	if err := s.close(StatusDiscarded); err != nil {
		return err
	}
	h.drop(s.ID)
	return nil
}

// resolve validates the session and confines path to the session root.
func (h *Host) resolve(s *Session, path string) (*hostState, string, string, error) {
	if err := s.ensureOpen(); err != nil {
		return nil, "", "", err
	}
	cleaned, err := CleanPath(path)
	if err != nil {
		return nil, "", "", err
	}

	h.mu.Lock()
	state, ok := h.sessions[s.ID]
	h.mu.Unlock()
	if !ok {
		return nil, "", "", fmt.Errorf("%w: session %s has no state", ErrSessionClosed, s.ID)
	}

	full := filepath.Join(state.root, filepath.FromSlash(cleaned))
	if full != state.root && !strings.HasPrefix(full, state.root+string(filepath.Separator)) {
		return nil, "", "", fmt.Errorf("%w: %q resolves outside the session root", ErrPathDenied, path)
	}
	return state, full, cleaned, nil
}

func (h *Host) drop(id string) {
	h.mu.Lock()
	delete(h.sessions, id)
	h.mu.Unlock()
}

// snapshotDir hashes every regular file under root, keyed by slash-separated
// relative path.
func snapshotDir(root string) (map[string][32]byte, error) {
	out := make(map[string][32]byte)
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		out[filepath.ToSlash(rel)] = sha256.Sum256(data)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
