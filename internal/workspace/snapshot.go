package workspace

import (
	"fmt"
	"slices"
	"sync"

	"github.com/google/uuid"
)

// Snapshot is one immutable layer of a base lineage. A committed base is
// represented as a delta over its parent rather than a full copy, so commit
// cost is proportional to the delta, never to the base.
type Snapshot struct {
	// Ref is the snapshot's base reference.
	Ref string

	// Lineage is the ref of the lineage's root snapshot. Commit races are
	// resolved per lineage: only the current head can be committed over.
	Lineage string

	// Parent is the ref this snapshot layers over; empty at the root.
	Parent string

	// Files holds content added or modified relative to the parent.
	Files map[string][]byte

	// Deleted lists paths removed relative to the parent.
	Deleted []string
}

// SnapshotStore stores immutable base snapshots and serializes commits per
// lineage. The overlay backend and the workspace service both build on it.
type SnapshotStore interface {
	// CreateBase stores a new root snapshot and returns its reference.
	CreateBase(files map[string][]byte) (string, error)

	// Exists reports whether the reference names a known snapshot.
	Exists(ref string) (bool, error)

	// ReadFile resolves a path through the snapshot chain. The second
	// return is false when the path does not exist at that ref.
	ReadFile(ref, path string) ([]byte, bool, error)

	// Paths returns the sorted live paths at a ref.
	Paths(ref string) ([]string, error)

	// CommitDelta atomically folds a delta over base into a new snapshot
	// and advances the lineage head. If base is no longer the head, the
	// commit fails with ErrConflictingBase and nothing changes.
	CommitDelta(base string, files map[string][]byte, deleted []string) (string, error)
}

// MemStore is the in-process SnapshotStore used by the overlay backend.
type MemStore struct {
	mu    sync.Mutex
	snaps map[string]*Snapshot
	heads map[string]string // lineage root ref → current head ref
}

// NewMemStore creates an empty in-memory snapshot store.
func NewMemStore() *MemStore {
	return &MemStore{
		snaps: make(map[string]*Snapshot),
		heads: make(map[string]string),
	}
}

// CreateBase stores a new root snapshot.
func (m *MemStore) CreateBase(files map[string][]byte) (string, error) {
	ref := uuid.NewString()
	snap := &Snapshot{
		Ref:     ref,
		Lineage: ref,
		Files:   cloneFiles(files),
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.snaps[ref] = snap
	m.heads[ref] = ref
	return ref, nil
}

// Exists reports whether ref names a known snapshot.
func (m *MemStore) Exists(ref string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.snaps[ref]
	return ok, nil
}

// ReadFile resolves path through the snapshot chain rooted at ref.
func (m *MemStore) ReadFile(ref, path string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for ref != "" {
		snap, ok := m.snaps[ref]
		if !ok {
			return nil, false, fmt.Errorf("%w: %s", ErrUnknownBase, ref)
		}
		if data, ok := snap.Files[path]; ok {
			return slices.Clone(data), true, nil
		}
		if slices.Contains(snap.Deleted, path) {
			return nil, false, nil
		}
		ref = snap.Parent
	}
	return nil, false, nil
}

// Paths returns the sorted live paths at ref.
func (m *MemStore) Paths(ref string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	chain, err := m.chain(ref)
	if err != nil {
		return nil, err
	}
	return livePaths(chain), nil
}

// CommitDelta folds a delta into a new snapshot, advancing the lineage head.
func (m *MemStore) CommitDelta(base string, files map[string][]byte, deleted []string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	parent, ok := m.snaps[base]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownBase, base)
	}
	if m.heads[parent.Lineage] != base {
		return "", fmt.Errorf("%w: %s is no longer the head of its lineage", ErrConflictingBase, base)
	}

	ref := uuid.NewString()
	m.snaps[ref] = &Snapshot{
		Ref:     ref,
		Lineage: parent.Lineage,
		Parent:  base,
		Files:   cloneFiles(files),
		Deleted: slices.Clone(deleted),
	}
	m.heads[parent.Lineage] = ref
	return ref, nil
}

// chain returns the snapshot chain leaf-first, ref down to the root.
func (m *MemStore) chain(ref string) ([]*Snapshot, error) {
	var out []*Snapshot
	for ref != "" {
		snap, ok := m.snaps[ref]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownBase, ref)
		}
		out = append(out, snap)
		ref = snap.Parent
	}
	return out, nil
}

func cloneFiles(files map[string][]byte) map[string][]byte {
	out := make(map[string][]byte, len(files))
	for p, data := range files {
		out[p] = slices.Clone(data)
	}
	return out
}
