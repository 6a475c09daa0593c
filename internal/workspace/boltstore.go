package workspace

import (
	"encoding/json"
	"fmt"
	"slices"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
)

var (
	bucketSnapshots = []byte("snapshots")
	bucketHeads     = []byte("heads")
)

// BoltStore is a SnapshotStore persisted to a bbolt file. Each commit runs
// in a single write transaction, so a crash mid-commit leaves either the old
// head or the new one, never a partial merge. Write transactions are
// serialized by bbolt itself, which also serializes commits per lineage.
type BoltStore struct {
	db *bolt.DB
}

// OpenBoltStore opens (or creates) a snapshot store at path. Failure to
// open maps to ErrBackendUnavailable.
func OpenBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketSnapshots); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(bucketHeads)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	return &BoltStore{db: db}, nil
}

// Close releases the underlying database.
func (b *BoltStore) Close() error {
	return b.db.Close()
}

// CreateBase stores a new root snapshot.
func (b *BoltStore) CreateBase(files map[string][]byte) (string, error) {
	ref := uuid.NewString()
	snap := Snapshot{Ref: ref, Lineage: ref, Files: cloneFiles(files)}

	err := b.db.Update(func(tx *bolt.Tx) error {
		if err := putSnapshot(tx, &snap); err != nil {
			return err
		}
		return tx.Bucket(bucketHeads).Put([]byte(ref), []byte(ref))
	})
	if err != nil {
		return "", err
	}
	return ref, nil
}

// Exists reports whether ref names a stored snapshot.
func (b *BoltStore) Exists(ref string) (bool, error) {
	var ok bool
	err := b.db.View(func(tx *bolt.Tx) error {
		ok = tx.Bucket(bucketSnapshots).Get([]byte(ref)) != nil
		return nil
	})
	return ok, err
}

// ReadFile resolves path through the stored snapshot chain.
func (b *BoltStore) ReadFile(ref, path string) ([]byte, bool, error) {
	var (
		data  []byte
		found bool
	)
	err := b.db.View(func(tx *bolt.Tx) error {
		for ref != "" {
			snap, err := getSnapshot(tx, ref)
			if err != nil {
				return err
			}
			if d, ok := snap.Files[path]; ok {
				data, found = d, true
				return nil
			}
			for _, del := range snap.Deleted {
				if del == path {
					return nil
				}
			}
			ref = snap.Parent
		}
		return nil
	})
	return data, found, err
}

// Paths returns the sorted live paths at ref.
func (b *BoltStore) Paths(ref string) ([]string, error) {
	var chain []*Snapshot
	err := b.db.View(func(tx *bolt.Tx) error {
		for ref != "" {
			snap, err := getSnapshot(tx, ref)
			if err != nil {
				return err
			}
			chain = append(chain, snap)
			ref = snap.Parent
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return livePaths(chain), nil
}

// CommitDelta folds a delta over base into a new snapshot inside one write
// transaction, advancing the lineage head only if base still holds it.
func (b *BoltStore) CommitDelta(base string, files map[string][]byte, deleted []string) (string, error) {
	ref := uuid.NewString()

	err := b.db.Update(func(tx *bolt.Tx) error {
		parent, err := getSnapshot(tx, base)
		if err != nil {
			return err
		}

		heads := tx.Bucket(bucketHeads)
		if head := heads.Get([]byte(parent.Lineage)); string(head) != base {
			return fmt.Errorf("%w: %s is no longer the head of its lineage", ErrConflictingBase, base)
		}

		snap := Snapshot{
			Ref:     ref,
			Lineage: parent.Lineage,
			Parent:  base,
			Files:   files,
			Deleted: deleted,
		}
		if err := putSnapshot(tx, &snap); err != nil {
			return err
		}
		return heads.Put([]byte(parent.Lineage), []byte(ref))
	})
	if err != nil {
		return "", err
	}
	return ref, nil
}

func putSnapshot(tx *bolt.Tx, snap *Snapshot) error {
	raw, err := json.Marshal(snapshotRecord{
		Ref:     snap.Ref,
		Lineage: snap.Lineage,
		Parent:  snap.Parent,
		Files:   snap.Files,
		Deleted: snap.Deleted,
	})
	if err != nil {
		return err
	}
	return tx.Bucket(bucketSnapshots).Put([]byte(snap.Ref), raw)
}

func getSnapshot(tx *bolt.Tx, ref string) (*Snapshot, error) {
	raw := tx.Bucket(bucketSnapshots).Get([]byte(ref))
	if raw == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownBase, ref)
	}
	var rec snapshotRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, err
	}
	return &Snapshot{
		Ref:     rec.Ref,
		Lineage: rec.Lineage,
		Parent:  rec.Parent,
		Files:   rec.Files,
		Deleted: rec.Deleted,
	}, nil
}

// snapshotRecord is the serialized snapshot form. File content is base64 via
// encoding/json's []byte handling.
type snapshotRecord struct {
	Ref     string            `json:"ref"`
	Lineage string            `json:"lineage"`
	Parent  string            `json:"parent,omitempty"`
	Files   map[string][]byte `json:"files,omitempty"`
	Deleted []string          `json:"deleted,omitempty"`
}

// livePaths folds a leaf-first snapshot chain into the sorted set of paths
// that exist at the leaf.
func livePaths(chain []*Snapshot) []string {
	live := make(map[string]bool)
	for i := len(chain) - 1; i >= 0; i-- {
		for _, p := range chain[i].Deleted {
			delete(live, p)
		}
		for p := range chain[i].Files {
			live[p] = true
		}
	}
	paths := make([]string, 0, len(live))
	for p := range live {
		paths = append(paths, p)
	}
	slices.Sort(paths)
	return paths
}
