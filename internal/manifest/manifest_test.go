package manifest

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/warden-run/warden/internal/capability"
)

func validSandboxed() Manifest {
	return Manifest{
		Name:    "word.count",
		Version: "1.0.0",
		Source:  `function run(args) { return {count: args.text.split(/\s+/).length}; }`,
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {"text": {"type": "string"}},
			"required": ["text"],
			"additionalProperties": false
		}`),
		Capabilities: []capability.Capability{
			{Kind: capability.KindFilesystem, Mounts: []string{"src"}},
		},
		Limits: Limits{TimeoutSec: 5, MemoryMB: 64, StepBudget: 100000},
	}
}

func TestManifestValidate(t *testing.T) {
	t.Parallel()

	if err := validSandboxed().Validate(); err != nil {
		t.Fatalf("valid manifest rejected: %v", err)
	}

	cases := []struct {
		name    string
		mutate  func(*Manifest)
		wantErr error
	}{
		{"empty name", func(m *Manifest) { m.Name = "  " }, ErrEmptyName},
		{"missing version", func(m *Manifest) { m.Version = "" }, ErrNoVersion},
		{"sandboxed without source", func(m *Manifest) { m.Source = "" }, ErrNoSource},
		{"unknown capability", func(m *Manifest) {
			m.Capabilities = append(m.Capabilities, capability.Capability{Kind: capability.KindUnknown})
		}, ErrBadManifest},
		{"negative timeout", func(m *Manifest) { m.Limits.TimeoutSec = -1 }, ErrBadManifest},
		{"non-object schema", func(m *Manifest) {
			m.InputSchema = json.RawMessage(`{"type": "array"}`)
		}, ErrBadManifest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			m := validSandboxed()
			tc.mutate(&m)
			if err := m.Validate(); !errors.Is(err, tc.wantErr) {
				t.Errorf("got %v, want %v", err, tc.wantErr)
			}
		})
	}
}

func TestTrustedManifestNeedsNoSource(t *testing.T) {
	t.Parallel()

	m := Manifest{Name: "time.now", Version: "1.0.0", Trusted: true}
	if err := m.Validate(); err != nil {
		t.Fatalf("trusted manifest rejected: %v", err)
	}
}

func TestLimitsProtocol(t *testing.T) {
	t.Parallel()

	l := Limits{TimeoutSec: 30, MemoryMB: 256, StepBudget: 5000}
	p := l.Protocol()
	if p.Timeout != 30*time.Second {
		t.Errorf("timeout = %v", p.Timeout)
	}
	if p.MemoryBytes != 256<<20 {
		t.Errorf("memory = %d", p.MemoryBytes)
	}
	if p.StepBudget != 5000 {
		t.Errorf("steps = %d", p.StepBudget)
	}

	zero := Limits{}.Protocol()
	if zero.Timeout != 0 || zero.MemoryBytes != 0 || zero.StepBudget != 0 {
		t.Errorf("zero limits should convert to zero values, got %+v", zero)
	}
}

func TestRegistryRegisterAndGet(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	if err := r.Register(validSandboxed()); err != nil {
		t.Fatalf("register: %v", err)
	}

	got, err := r.Get("word.count")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Version != "1.0.0" {
		t.Errorf("version = %q", got.Version)
	}

	if _, err := r.Get("missing.tool"); !errors.Is(err, ErrNotFound) {
		t.Errorf("get missing: got %v, want ErrNotFound", err)
	}
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	if err := r.Register(validSandboxed()); err != nil {
		t.Fatalf("register: %v", err)
	}

	if err := r.Register(validSandboxed()); !errors.Is(err, ErrDuplicate) {
		t.Errorf("same name+version: got %v, want ErrDuplicate", err)
	}

	other := validSandboxed()
	other.Version = "2.0.0"
	if err := r.Register(other); !errors.Is(err, ErrDuplicate) {
		t.Errorf("same name, new version: got %v, want ErrDuplicate", err)
	}
}

func TestRegistryListSorted(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	for _, name := range []string{"zeta.tool", "alpha.tool", "mid.tool"} {
		m := validSandboxed()
		m.Name = name
		if err := r.Register(m); err != nil {
			t.Fatalf("register %s: %v", name, err)
		}
	}

	names := r.Names()
	want := []string{"alpha.tool", "mid.tool", "zeta.tool"}
	for i, n := range want {
		if names[i] != n {
			t.Fatalf("names = %v, want %v", names, want)
		}
	}

	list := r.List()
	if len(list) != 3 || list[0].Name != "alpha.tool" {
		t.Errorf("list = %+v", list)
	}
}
