package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"slices"

	"github.com/warden-run/warden/internal/capability"
)

var validBackends = []string{"overlay", "host", "remote"}
var validLogLevels = []string{"debug", "info", "warn", "error"}
var validLogFormats = []string{"text", "json"}

// Validate checks the structural validity of a Config. All problems are
// reported at once so the operator fixes the file in one pass.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Version == "" {
		errs = append(errs, errors.New("config: version field is required"))
	} else if cfg.Version != "1" {
		errs = append(errs, fmt.Errorf("config: unsupported version %q (supported: \"1\")", cfg.Version))
	}

	if !slices.Contains(validLogLevels, cfg.Log.Level) {
		errs = append(errs, fmt.Errorf("config: log.level %q (supported: %v)", cfg.Log.Level, validLogLevels))
	}
	if !slices.Contains(validLogFormats, cfg.Log.Format) {
		errs = append(errs, fmt.Errorf("config: log.format %q (supported: %v)", cfg.Log.Format, validLogFormats))
	}

	errs = append(errs, validateWorkspace(cfg.Workspace)...)
	errs = append(errs, validatePolicy(cfg.Policy)...)
	errs = append(errs, validateLimits(cfg.Limits)...)
	errs = append(errs, validateProvider(cfg.Provider)...)

	if _, err := net.ResolveTCPAddr("tcp", cfg.Server.Bind); err != nil {
		errs = append(errs, fmt.Errorf("config: server.bind %q: %w", cfg.Server.Bind, err))
	}

	return errors.Join(errs...)
}

func validateWorkspace(ws WorkspaceConfig) []error {
	var errs []error
	if !slices.Contains(validBackends, ws.Backend) {
		errs = append(errs, fmt.Errorf("config: workspace.backend %q (supported: %v)", ws.Backend, validBackends))
	}
	if ws.QuotaBytes < 0 {
		errs = append(errs, errors.New("config: workspace.quota_bytes must not be negative"))
	}
	if ws.ReapAfterMin < 0 {
		errs = append(errs, errors.New("config: workspace.reap_after_min must not be negative"))
	}
	switch ws.Backend {
	case "host":
		if ws.Path == "" {
			errs = append(errs, errors.New("config: workspace.path is required for the host backend"))
		}
	case "remote":
		if u, err := url.Parse(ws.Path); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("config: workspace.path %q is not a valid base URL", ws.Path))
		}
	}
	return errs
}

func validatePolicy(pol PolicyConfig) []error {
	var errs []error
	for kind := range pol.Rules {
		if capability.ParseKind(string(kind)) == capability.KindUnknown {
			errs = append(errs, fmt.Errorf("config: policy.rules: unknown capability kind %q", kind))
		}
	}
	for tool, rules := range pol.PerTool {
		if tool == "" {
			errs = append(errs, errors.New("config: policy.per_tool: empty tool name"))
		}
		for kind := range rules {
			if capability.ParseKind(string(kind)) == capability.KindUnknown {
				errs = append(errs, fmt.Errorf("config: policy.per_tool[%s]: unknown capability kind %q", tool, kind))
			}
		}
	}
	return errs
}

func validateLimits(l LimitsConfig) []error {
	var errs []error
	if l.TimeoutSec < 0 || l.MemoryMB < 0 || l.StepBudget < 0 {
		errs = append(errs, errors.New("config: limits must not be negative"))
	}
	return errs
}

func validateProvider(p ProviderConfig) []error {
	var errs []error
	if p.Kind != "ollama" {
		errs = append(errs, fmt.Errorf("config: provider.kind %q (supported: ollama)", p.Kind))
	}
	if u, err := url.Parse(p.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("config: provider.base_url %q is not a valid URL", p.BaseURL))
	}
	if p.Model == "" {
		errs = append(errs, errors.New("config: provider.model is required"))
	}
	if p.TimeoutSec < 0 {
		errs = append(errs, errors.New("config: provider.timeout_sec must not be negative"))
	}
	return errs
}
