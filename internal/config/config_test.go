package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/warden-run/warden/internal/capability"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "warden.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load(writeConfig(t, `version: "1"`))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.Workspace.Backend != "overlay" {
		t.Errorf("backend = %q", cfg.Workspace.Backend)
	}
	if cfg.Provider.Kind != "ollama" || cfg.Provider.Model != "qwen2.5:3b" {
		t.Errorf("provider = %+v", cfg.Provider)
	}
	if cfg.Provider.BaseURL != "http://localhost:11434" {
		t.Errorf("base_url = %q", cfg.Provider.BaseURL)
	}
	if cfg.Limits.TimeoutSec != 30 || cfg.Limits.MemoryMB != 256 {
		t.Errorf("limits = %+v", cfg.Limits)
	}
	if err := Validate(cfg); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}

func TestLoadExpandsEnv(t *testing.T) {
	t.Setenv("WARDEN_TEST_MODEL", "llama3:8b")

	cfg, err := Load(writeConfig(t, `
version: "1"
provider:
  model: ${WARDEN_TEST_MODEL}
  base_url: ${WARDEN_TEST_BASE_URL:-http://localhost:11434}
`))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Provider.Model != "llama3:8b" {
		t.Errorf("model = %q", cfg.Provider.Model)
	}
	if cfg.Provider.BaseURL != "http://localhost:11434" {
		t.Errorf("base_url = %q (default not applied)", cfg.Provider.BaseURL)
	}
}

func TestLoadRejectsUnresolvedVars(t *testing.T) {
	t.Parallel()

	_, err := Load(writeConfig(t, `
version: "1"
provider:
  model: ${WARDEN_TEST_DEFINITELY_UNSET}
`))
	if err == nil || !strings.Contains(err.Error(), "WARDEN_TEST_DEFINITELY_UNSET") {
		t.Errorf("got %v, want unresolved variable error", err)
	}
}

func TestLoadParsesPolicy(t *testing.T) {
	t.Parallel()

	cfg, err := Load(writeConfig(t, `
version: "1"
policy:
  allow_direct_network: true
  env_allowlist: [HOME, LANG]
  rules:
    filesystem:
      enabled: true
      mounts: [src, docs]
    model_access:
      enabled: true
  per_tool:
    fs.read:
      filesystem:
        enabled: true
        mounts: [src]
`))
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	pol := cfg.Policy.Capability()
	if !pol.AllowDirectNetwork {
		t.Error("allow_direct_network not parsed")
	}
	rule, ok := pol.Rules[capability.KindFilesystem]
	if !ok || !rule.Enabled || len(rule.Mounts) != 2 {
		t.Errorf("filesystem rule = %+v", rule)
	}
	if _, ok := pol.PerTool["fs.read"][capability.KindFilesystem]; !ok {
		t.Errorf("per-tool rule missing: %+v", pol.PerTool)
	}
	if err := Validate(cfg); err != nil {
		t.Errorf("policy config invalid: %v", err)
	}
}

func TestValidateCatchesProblems(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		yaml   string
		substr string
	}{
		{"missing version", `log: {level: info}`, "version field is required"},
		{"bad version", `version: "7"`, "unsupported version"},
		{"bad backend", "version: \"1\"\nworkspace:\n  backend: floppy", "workspace.backend"},
		{"host needs path", "version: \"1\"\nworkspace:\n  backend: host", "workspace.path is required"},
		{"remote needs url", "version: \"1\"\nworkspace:\n  backend: remote\n  path: not-a-url", "not a valid base URL"},
		{"bad provider", "version: \"1\"\nprovider:\n  kind: openai", "provider.kind"},
		{"unknown rule kind", "version: \"1\"\npolicy:\n  rules:\n    teleport:\n      enabled: true", "unknown capability kind"},
		{"bad bind", "version: \"1\"\nserver:\n  bind: '[[['", "server.bind"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg, err := Load(writeConfig(t, tc.yaml))
			if err != nil {
				t.Fatalf("load: %v", err)
			}
			err = Validate(cfg)
			if err == nil || !strings.Contains(err.Error(), tc.substr) {
				t.Errorf("got %v, want error containing %q", err, tc.substr)
			}
		})
	}
}

func TestValidateReportsAllErrorsAtOnce(t *testing.T) {
	t.Parallel()

	cfg, err := Load(writeConfig(t, `
version: "7"
workspace:
  backend: floppy
provider:
  kind: openai
`))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	err = Validate(cfg)
	if err == nil {
		t.Fatal("invalid config accepted")
	}
	for _, want := range []string{"unsupported version", "workspace.backend", "provider.kind"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q missing %q", err, want)
		}
	}
}
