// Package manifest defines tool manifests: the static declaration of a
// tool's name, input schema, requested capabilities, and resource limits.
// Tools are the primary security boundary; nothing runs without a manifest.
package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/warden-run/warden/internal/capability"
	"github.com/warden-run/warden/internal/protocol"
)

// Sentinel errors for manifest validation and lookup.
var (
	ErrEmptyName   = errors.New("manifest has no name")
	ErrNoVersion   = errors.New("manifest has no version")
	ErrNoSource    = errors.New("sandboxed manifest has no source")
	ErrDuplicate   = errors.New("duplicate manifest")
	ErrNotFound    = errors.New("tool not found")
	ErrBadManifest = errors.New("invalid manifest")
)

// Limits declares a tool's resource ceilings in manifest units. Zero values
// mean "use the runtime default"; the policy may clamp them further.
type Limits struct {
	TimeoutSec int   `json:"timeout_sec,omitempty"`
	MemoryMB   int   `json:"memory_mb,omitempty"`
	StepBudget int64 `json:"step_budget,omitempty"`
}

// Protocol converts manifest units into wire limits.
func (l Limits) Protocol() protocol.Limits {
	return protocol.Limits{
		Timeout:     time.Duration(l.TimeoutSec) * time.Second,
		MemoryBytes: int64(l.MemoryMB) * 1024 * 1024,
		StepBudget:  l.StepBudget,
	}
}

// Manifest is one tool's static declaration.
type Manifest struct {
	Name         string                  `json:"name"`
	Version      string                  `json:"version"`
	Description  string                  `json:"description,omitempty"`
	InputSchema  json.RawMessage         `json:"input_schema,omitempty"`
	Capabilities []capability.Capability `json:"capabilities,omitempty"`
	Limits       Limits                  `json:"limits,omitempty"`

	// Trusted tools run in-process, dispatching to the Go handler registered
	// under the tool's name; their Source stays empty. Untrusted tools carry
	// JavaScript in Source and run sandboxed.
	Trusted bool   `json:"trusted,omitempty"`
	Source  string `json:"source,omitempty"`
}

// Key identifies a manifest by name and version.
func (m Manifest) Key() string {
	return m.Name + "@" + m.Version
}

// Validate checks the manifest's internal consistency.
func (m Manifest) Validate() error {
	if strings.TrimSpace(m.Name) == "" {
		return ErrEmptyName
	}
	if strings.TrimSpace(m.Version) == "" {
		return fmt.Errorf("%w: %s", ErrNoVersion, m.Name)
	}
	if !m.Trusted && strings.TrimSpace(m.Source) == "" {
		return fmt.Errorf("%w: %s", ErrNoSource, m.Name)
	}
	if err := protocol.CheckSchema(m.InputSchema); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrBadManifest, m.Name, err)
	}
	for _, c := range m.Capabilities {
		if c.Kind == capability.KindUnknown {
			return fmt.Errorf("%w: %s requests an unknown capability", ErrBadManifest, m.Name)
		}
	}
	if m.Limits.TimeoutSec < 0 || m.Limits.MemoryMB < 0 || m.Limits.StepBudget < 0 {
		return fmt.Errorf("%w: %s has negative limits", ErrBadManifest, m.Name)
	}
	return nil
}
