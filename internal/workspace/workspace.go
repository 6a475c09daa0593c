// Package workspace provides the session-scoped virtual filesystem tools run
// against. A session is an isolated writable view over an immutable base;
// every backend implements the same FS contract, and behavioral parity is
// checked by the shared suite in workspacetest.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Sentinel errors shared by all backends.
var (
	// ErrNotFound is returned when a path does not exist in the session view.
	ErrNotFound = errors.New("workspace: path not found")

	// ErrPathDenied is returned when a path would escape the session's
	// mount root. Escaping paths fail, they are never silently clamped.
	ErrPathDenied = errors.New("workspace: path denied")

	// ErrQuotaExceeded is returned when a write would exceed the session's
	// byte quota.
	ErrQuotaExceeded = errors.New("workspace: quota exceeded")

	// ErrBackendUnavailable is returned when the backend cannot be
	// initialized or reached.
	ErrBackendUnavailable = errors.New("workspace: backend unavailable")

	// ErrConflictingBase is returned when a commit loses the race against
	// another commit on the same base.
	ErrConflictingBase = errors.New("workspace: conflicting base")

	// ErrSessionClosed is returned when operating on a committed or
	// discarded session.
	ErrSessionClosed = errors.New("workspace: session closed")

	// ErrUnknownBase is returned when a session is created over a base
	// reference the backend does not know.
	ErrUnknownBase = errors.New("workspace: unknown base reference")
)

// Status is the lifecycle state of a session.
type Status string

// Session lifecycle states. Committed and discarded sessions are dead:
// they are never reusable.
const (
	StatusOpen      Status = "open"
	StatusCommitted Status = "committed"
	StatusDiscarded Status = "discarded"
)

// Session is an opaque handle over a base reference plus an isolated delta.
// All mutation goes through FS operations scoped to the session; the base
// itself is read-only.
type Session struct {
	// ID uniquely identifies the session.
	ID string

	// Base is the base reference the session was created from.
	Base string

	// Backend names the backend kind that owns the session.
	Backend string

	mu     sync.Mutex
	status Status
}

// NewSession constructs an open session handle. Backends call this from
// CreateSession; nothing else should.
func NewSession(id, base, backend string) *Session {
	return &Session{ID: id, Base: base, Backend: backend, status: StatusOpen}
}

// Status returns the session's lifecycle state.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// ensureOpen fails with ErrSessionClosed unless the session is open.
func (s *Session) ensureOpen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusOpen {
		return fmt.Errorf("%w: session %s is %s", ErrSessionClosed, s.ID, s.status)
	}
	return nil
}

// close transitions an open session to the given terminal status.
func (s *Session) close(to Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusOpen {
		return fmt.Errorf("%w: session %s is %s", ErrSessionClosed, s.ID, s.status)
	}
	s.status = to
	return nil
}

// Entry is one name in a directory listing.
type Entry struct {
	Name string `json:"name"`
	Dir  bool   `json:"dir"`
}

// ChangeKind classifies one entry of a session diff.
type ChangeKind string

// ChangeKind values.
const (
	ChangeAdded    ChangeKind = "added"
	ChangeModified ChangeKind = "modified"
	ChangeDeleted  ChangeKind = "deleted"
)

// Change is one session-relative path and how it differs from the base.
type Change struct {
	Path string     `json:"path"`
	Kind ChangeKind `json:"kind"`
}

// FS is the contract every workspace backend implements identically.
// Diff output is ordered deterministically by path. Commit atomically folds
// the delta into a new immutable base and returns its reference; commits
// against the same base are serialized, the loser gets ErrConflictingBase.
type FS interface {
	CreateSession(ctx context.Context, base string) (*Session, error)
	Read(ctx context.Context, s *Session, path string) ([]byte, error)
	Write(ctx context.Context, s *Session, path string, data []byte) error
	Remove(ctx context.Context, s *Session, path string) error
	List(ctx context.Context, s *Session, path string) ([]Entry, error)
	Diff(ctx context.Context, s *Session) ([]Change, error)
	Commit(ctx context.Context, s *Session) (string, error)
	Discard(ctx context.Context, s *Session) error
}
