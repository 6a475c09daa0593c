package workspace

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// BackendOverlay names the copy-on-write overlay backend.
const BackendOverlay = "overlay"

// Overlay is the copy-on-write backend: every session keeps a private delta
// map over an immutable base snapshot. Writes are visible only inside the
// issuing session until commit; concurrent sessions over the same base never
// share mutable state.
type Overlay struct {
	store SnapshotStore
	quota int64 // per-session delta byte ceiling; 0 means unlimited

	mu       sync.Mutex
	sessions map[string]*overlayDelta
}

type overlayDelta struct {
	mu      sync.Mutex
	files   map[string][]byte
	deleted map[string]bool
	written int64
}

// NewOverlay creates an overlay backend over the given snapshot store.
func NewOverlay(store SnapshotStore, quota int64) *Overlay {
	return &Overlay{
		store:    store,
		quota:    quota,
		sessions: make(map[string]*overlayDelta),
	}
}

// CreateSession establishes an isolated writable view over base.
func (o *Overlay) CreateSession(_ context.Context, base string) (*Session, error) {
	ok, err := o.store.Exists(base)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownBase, base)
	}

	s := NewSession(uuid.NewString(), base, BackendOverlay)
	o.mu.Lock()
	o.sessions[s.ID] = &overlayDelta{
		files:   make(map[string][]byte),
		deleted: make(map[string]bool),
	}
	o.mu.Unlock()
	return s, nil
}

// Read returns the session view of path: delta first, then the base chain.
func (o *Overlay) Read(_ context.Context, s *Session, path string) ([]byte, error) {
	delta, cleaned, err := o.use(s, path)
	if err != nil {
		return nil, err
	}

	delta.mu.Lock()
	defer delta.mu.Unlock()

	if data, ok := delta.files[cleaned]; ok {
		return slices.Clone(data), nil
	}
	if delta.deleted[cleaned] {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, cleaned)
	}

	data, ok, err := o.store.ReadFile(s.Base, cleaned)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, cleaned)
	}
	return data, nil
}

// Write stores data at path in the session delta, subject to the quota.
func (o *Overlay) Write(_ context.Context, s *Session, path string, data []byte) error {
	delta, cleaned, err := o.use(s, path)
	if err != nil {
		return err
	}
	if cleaned == "" {
		return fmt.Errorf("%w: cannot write the session root", ErrPathDenied)
	}

	delta.mu.Lock()
	defer delta.mu.Unlock()

	next := delta.written - int64(len(delta.files[cleaned])) + int64(len(data))
	if o.quota > 0 && next > o.quota {
		return fmt.Errorf("%w: session delta would reach %d bytes (quota %d)", ErrQuotaExceeded, next, o.quota)
	}

	delta.files[cleaned] = slices.Clone(data)
	delete(delta.deleted, cleaned)
	delta.written = next
	return nil
}

// Remove marks path deleted in the session delta.
func (o *Overlay) Remove(_ context.Context, s *Session, path string) error {
	delta, cleaned, err := o.use(s, path)
	if err != nil {
		return err
	}

	delta.mu.Lock()
	defer delta.mu.Unlock()

	if _, ok := delta.files[cleaned]; ok {
		delta.written -= int64(len(delta.files[cleaned]))
		delete(delta.files, cleaned)
		delta.deleted[cleaned] = true
		return nil
	}

	_, ok, err := o.store.ReadFile(s.Base, cleaned)
	if err != nil {
		return err
	}
	if !ok || delta.deleted[cleaned] {
		return fmt.Errorf("%w: %s", ErrNotFound, cleaned)
	}
	delta.deleted[cleaned] = true
	return nil
}

// List returns the sorted immediate children of path in the session view.
func (o *Overlay) List(_ context.Context, s *Session, path string) ([]Entry, error) {
	delta, cleaned, err := o.use(s, path)
	if err != nil {
		return nil, err
	}

	basePaths, err := o.store.Paths(s.Base)
	if err != nil {
		return nil, err
	}

	delta.mu.Lock()
	defer delta.mu.Unlock()

	live := make(map[string]bool, len(basePaths)+len(delta.files))
	for _, p := range basePaths {
		if !delta.deleted[p] {
			live[p] = true
		}
	}
	for p := range delta.files {
		live[p] = true
	}

	return listChildren(live, cleaned), nil
}

// Diff reports the session delta relative to the base, ordered by path.
func (o *Overlay) Diff(_ context.Context, s *Session) ([]Change, error) {
	delta, _, err := o.use(s, "")
	if err != nil {
		return nil, err
	}

	delta.mu.Lock()
	defer delta.mu.Unlock()

	var changes []Change
	for p, data := range delta.files {
		baseData, existed, err := o.store.ReadFile(s.Base, p)
		if err != nil {
			return nil, err
		}
		switch {
		case !existed:
			changes = append(changes, Change{Path: p, Kind: ChangeAdded})
		case !slices.Equal(baseData, data):
			changes = append(changes, Change{Path: p, Kind: ChangeModified})
		}
	}
	for p := range delta.deleted {
		if _, existed, err := o.store.ReadFile(s.Base, p); err != nil {
			return nil, err
		} else if existed {
			changes = append(changes, Change{Path: p, Kind: ChangeDeleted})
		}
	}

	slices.SortFunc(changes, func(a, b Change) int {
		return strings.Compare(a.Path, b.Path)
	})
	return changes, nil
}

// Commit atomically folds the session delta into a new base. On success the
// session becomes committed and unusable; on ErrConflictingBase it stays
// open so the caller can inspect or discard it.
func (o *Overlay) Commit(_ context.Context, s *Session) (string, error) {
	delta, _, err := o.use(s, "")
	if err != nil {
		return "", err
	}

	delta.mu.Lock()
	files := cloneFiles(delta.files)
	deleted := make([]string, 0, len(delta.deleted))
	for p := range delta.deleted {
		deleted = append(deleted, p)
	}
	slices.Sort(deleted)
	delta.mu.Unlock()

	ref, err := o.store.CommitDelta(s.Base, files, deleted)
	if err != nil {
		return "", err
	}

	if err := s.close(StatusCommitted); err != nil {
		return "", err
	}
	o.drop(s.ID)
	return ref, nil
}

// Discard drops the session delta. Destructive and irreversible.
func (o *Overlay) Discard(_ context.Context, s *Session) error {
	if _, _, err := o.use(s, ""); err != nil {
		return err
	}
	if err := s.close(StatusDiscarded); err != nil {
		return err
	}
	o.drop(s.ID)
	return nil
}

// use validates the session and path and returns the session delta.
func (o *Overlay) use(s *Session, path string) (*overlayDelta, string, error) {
	if err := s.ensureOpen(); err != nil {
		return nil, "", err
	}
	cleaned, err := CleanPath(path)
	if err != nil {
		return nil, "", err
	}

	o.mu.Lock()
	delta, ok := o.sessions[s.ID]
	o.mu.Unlock()
	if !ok {
		return nil, "", fmt.Errorf("%w: session %s has no delta", ErrSessionClosed, s.ID)
	}
	return delta, cleaned, nil
}

func (o *Overlay) drop(id string) {
	o.mu.Lock()
	delete(o.sessions, id)
	o.mu.Unlock()
}

// listChildren derives the immediate children of dir from a flat path set.
func listChildren(live map[string]bool, dir string) []Entry {
	prefix := ""
	if dir != "" {
		prefix = dir + "/"
	}

	seen := make(map[string]Entry)
	for p := range live {
		if !strings.HasPrefix(p, prefix) {
			continue
		}
		rest := strings.TrimPrefix(p, prefix)
		if rest == "" {
			continue
		}
		name, _, nested := strings.Cut(rest, "/")
		seen[name] = Entry{Name: name, Dir: nested}
	}

	entries := make([]Entry, 0, len(seen))
	for _, e := range seen {
		entries = append(entries, e)
	}
	slices.SortFunc(entries, func(a, b Entry) int {
		return strings.Compare(a.Name, b.Name)
	})
	return entries
}
