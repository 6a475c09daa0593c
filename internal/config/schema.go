// Package config handles YAML configuration loading, environment variable
// expansion, and structural validation for warden.
package config

import (
	"time"

	"github.com/warden-run/warden/internal/capability"
	"github.com/warden-run/warden/internal/security"
)

// Config is the top-level configuration structure.
type Config struct {
	// Version is the config format version. Currently only "1" is
	// supported.
	Version string `yaml:"version"`

	Log       LogConfig       `yaml:"log,omitempty"`
	Workspace WorkspaceConfig `yaml:"workspace,omitempty"`
	Policy    PolicyConfig    `yaml:"policy,omitempty"`
	Limits    LimitsConfig    `yaml:"limits,omitempty"`
	Provider  ProviderConfig  `yaml:"provider,omitempty"`
	Tools     ToolsConfig     `yaml:"tools,omitempty"`
	Server    ServerConfig    `yaml:"server,omitempty"`
	Audit     AuditConfig     `yaml:"audit,omitempty"`
}

// LogConfig controls structured logging output.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`

	// Format is "text" or "json".
	Format string `yaml:"format"`
}

// WorkspaceConfig selects and tunes the workspace backend.
type WorkspaceConfig struct {
	// Backend is one of overlay, host, remote.
	Backend string `yaml:"backend"`

	// QuotaBytes bounds the per-session delta footprint. Zero disables
	// the quota.
	QuotaBytes int64 `yaml:"quota_bytes"`

	// Path is backend-specific: the bbolt database file for the overlay
	// backend (empty selects the in-memory store), the workspace root for
	// the host backend, or the base URL for the remote backend.
	Path string `yaml:"path"`

	// ReapAfterMin discards sessions left open longer than this many
	// minutes. Zero disables the reaper.
	ReapAfterMin int `yaml:"reap_after_min"`
}

// PolicyConfig is the operator-controlled capability policy plus the
// runtime-wide security knobs that ride along with it.
type PolicyConfig struct {
	// AllowDirectNetwork permits granting raw network access. Off by
	// default: network-requesting tools are granted gateway-only access.
	AllowDirectNetwork bool `yaml:"allow_direct_network"`

	// EnvAllowlist names the host env vars tools may ever see.
	EnvAllowlist []string `yaml:"env_allowlist"`

	// Rules maps capability kinds to their global rules.
	Rules map[capability.Kind]capability.Rule `yaml:"rules"`

	// PerTool overrides Rules for specific tools.
	PerTool map[string]map[capability.Kind]capability.Rule `yaml:"per_tool"`

	// RateLimits bounds dispatch throughput.
	RateLimits security.RateLimitConfig `yaml:"rate_limits"`
}

// Capability builds the runtime policy from the config.
func (p PolicyConfig) Capability() capability.Policy {
	return capability.Policy{
		Rules:              p.Rules,
		PerTool:            p.PerTool,
		AllowDirectNetwork: p.AllowDirectNetwork,
	}
}

// LimitsConfig is the policy-side resource ceiling. Effective invocation
// limits are the pairwise minimum of these and the manifest's.
type LimitsConfig struct {
	TimeoutSec int   `yaml:"timeout_sec"`
	MemoryMB   int   `yaml:"memory_mb"`
	StepBudget int64 `yaml:"step_budget"`
}

// ProviderConfig selects the model provider behind the gateway.
type ProviderConfig struct {
	Kind       string `yaml:"kind"`
	Model      string `yaml:"model"`
	BaseURL    string `yaml:"base_url"`
	TimeoutSec int    `yaml:"timeout_sec"`

	// SystemPrompt is prepended by callers that build conversations; the
	// gateway itself passes messages through untouched.
	SystemPrompt string `yaml:"system_prompt"`
}

// Timeout returns the provider timeout as a duration.
func (p ProviderConfig) Timeout() time.Duration {
	return time.Duration(p.TimeoutSec) * time.Second
}

// ToolsConfig locates tool manifests.
type ToolsConfig struct {
	// Dir is a directory of manifest JSON files loaded at startup, in
	// addition to the builtins.
	Dir string `yaml:"dir"`
}

// ServerConfig tunes the workspace HTTP server (warden fsd).
type ServerConfig struct {
	Bind            string        `yaml:"bind"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// AuditConfig controls the JSONL audit stream.
type AuditConfig struct {
	// Path is the audit log file. Empty disables file output.
	Path string `yaml:"path"`
}

// Defaults fills unset fields with their defaults.
func (c *Config) Defaults() {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.Workspace.Backend == "" {
		c.Workspace.Backend = "overlay"
	}
	if c.Limits.TimeoutSec == 0 {
		c.Limits.TimeoutSec = 30
	}
	if c.Limits.MemoryMB == 0 {
		c.Limits.MemoryMB = 256
	}
	if c.Provider.Kind == "" {
		c.Provider.Kind = "ollama"
	}
	if c.Provider.Model == "" {
		c.Provider.Model = "qwen2.5:3b"
	}
	if c.Provider.BaseURL == "" {
		c.Provider.BaseURL = "http://localhost:11434"
	}
	if c.Provider.TimeoutSec == 0 {
		c.Provider.TimeoutSec = 60
	}
	if c.Server.Bind == "" {
		c.Server.Bind = "127.0.0.1:7600"
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 30 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 30 * time.Second
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
}
