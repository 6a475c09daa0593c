package main

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/warden-run/warden/internal/builtin"
	"github.com/warden-run/warden/internal/config"
	"github.com/warden-run/warden/internal/gateway"
	"github.com/warden-run/warden/internal/manifest"
	"github.com/warden-run/warden/internal/protocol"
	"github.com/warden-run/warden/internal/provider"
	"github.com/warden-run/warden/internal/runner"
	"github.com/warden-run/warden/internal/runtime"
	"github.com/warden-run/warden/internal/security"
	"github.com/warden-run/warden/internal/workspace"
)

// app is a fully wired runtime plus the handles needed to tear it down.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	runtime  *runtime.Runtime
	registry *manifest.Registry

	// store is set for the overlay backend; remote is set for the remote
	// backend. seedBase switches on whichever is present.
	store  workspace.SnapshotStore
	remote *workspace.Remote

	closers []func() error
}

// Close releases resources in reverse acquisition order.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("close failed", "error", err)
		}
	}
}

// buildApp loads configuration and wires every runtime component.
func buildApp(cfgPath string) (*app, error) {
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		return nil, err
	}

	logger, err := buildLogger(cfg)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger}

	audit, err := a.buildAudit(cfg)
	if err != nil {
		return nil, err
	}

	fsys, err := a.buildBackend(cfg)
	if err != nil {
		a.Close()
		return nil, err
	}

	prov, err := provider.New(cfg.Provider.Kind, cfg.Provider.BaseURL, cfg.Provider.Model, cfg.Provider.Timeout())
	if err != nil {
		a.Close()
		return nil, err
	}

	trusted := runner.NewTrusted(logger)
	manifests, err := builtin.Register(trusted)
	if err != nil {
		a.Close()
		return nil, err
	}
	registry := manifest.NewRegistry()
	for _, m := range manifests {
		if err := registry.Register(m); err != nil {
			a.Close()
			return nil, err
		}
	}
	if cfg.Tools.Dir != "" {
		if err := manifest.LoadDir(registry, cfg.Tools.Dir); err != nil {
			a.Close()
			return nil, err
		}
	}

	a.registry = registry
	a.runtime = runtime.New(runtime.Options{
		Registry: registry,
		Policy:   cfg.Policy.Capability(),
		Limits: protocol.Limits{
			Timeout:     time.Duration(cfg.Limits.TimeoutSec) * time.Second,
			MemoryBytes: int64(cfg.Limits.MemoryMB) << 20,
			StepBudget:  cfg.Limits.StepBudget,
		},
		Trusted: trusted,
		Sandbox: runner.NewSandbox(logger),
		FS:      fsys,
		Gateway: gateway.New(prov, cfg.Provider.Timeout(), logger),
		Audit:   audit,
		Limiter: security.NewRateLimiter(cfg.Policy.RateLimits),
		EnvVars: security.FilterEnv(cfg.Policy.EnvAllowlist),
		Logger:  logger,
	})
	return a, nil
}

func (a *app) buildAudit(cfg *config.Config) (*security.AuditLogger, error) {
	if cfg.Audit.Path == "" {
		return nil, nil
	}
	f, err := os.OpenFile(cfg.Audit.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	a.closers = append(a.closers, f.Close)
	return security.NewAuditLogger(security.AuditLoggerConfig{
		Writer:   f,
		Redactor: security.NewRedactor(),
	}), nil
}

func (a *app) buildBackend(cfg *config.Config) (workspace.FS, error) {
	switch cfg.Workspace.Backend {
	case workspace.BackendOverlay:
		store, closeStore, err := buildStore(cfg)
		if err != nil {
			return nil, err
		}
		a.store = store
		a.closers = append(a.closers, closeStore)
		return workspace.NewOverlay(store, cfg.Workspace.QuotaBytes), nil
	case workspace.BackendHost:
		return workspace.NewHost(cfg.Workspace.QuotaBytes), nil
	case workspace.BackendRemote:
		a.remote = workspace.NewRemote(cfg.Workspace.Path, nil)
		return a.remote, nil
	default:
		return nil, fmt.Errorf("unknown workspace backend %q", cfg.Workspace.Backend)
	}
}

// buildStore opens the snapshot store for the overlay backend: bbolt when a
// path is configured, in-memory otherwise.
func buildStore(cfg *config.Config) (workspace.SnapshotStore, func() error, error) {
	if cfg.Workspace.Path == "" {
		return workspace.NewMemStore(), func() error { return nil }, nil
	}
	store, err := workspace.OpenBoltStore(cfg.Workspace.Path)
	if err != nil {
		return nil, nil, err
	}
	return store, store.Close, nil
}

// seedBase turns a local directory into the session base for this run. For
// the host backend the directory is the base; for the others its contents are
// uploaded as a fresh snapshot.
func (a *app) seedBase(ctx context.Context, dir string) (string, error) {
	if a.cfg.Workspace.Backend == workspace.BackendHost {
		if dir == "" {
			return "", fmt.Errorf("the host backend requires --seed to name the workspace directory")
		}
		return dir, nil
	}

	files := map[string][]byte{}
	if dir != "" {
		var err error
		files, err = readTree(dir)
		if err != nil {
			return "", err
		}
	}

	if a.remote != nil {
		return a.remote.CreateBase(ctx, files)
	}
	return a.store.CreateBase(files)
}

// readTree loads every regular file under dir, keyed by slash-separated
// relative path.
func readTree(dir string) (map[string][]byte, error) {
	files := make(map[string][]byte)
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		files[filepath.ToSlash(rel)] = data
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read seed directory: %w", err)
	}
	return files, nil
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		resolved, err := resolveConfigPath()
		if err != nil {
			return nil, err
		}
		path = resolved
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// resolveConfigPath searches for a config file in standard locations.
// Search order: $XDG_CONFIG_HOME/warden/warden.yaml → ./warden.yaml
func resolveConfigPath() (string, error) {
	var candidates []string

	if xdg, ok := os.LookupEnv("XDG_CONFIG_HOME"); ok {
		candidates = append(candidates, filepath.Join(xdg, "warden", "warden.yaml"))
	} else if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "warden", "warden.yaml"))
	}

	candidates = append(candidates, "warden.yaml")

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	return "", fmt.Errorf("no configuration file found (searched: %v)", candidates)
}

// buildLogger builds the redacting slog logger the whole process shares.
func buildLogger(cfg *config.Config) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Log.Level)); err != nil {
		return nil, fmt.Errorf("log.level: %w", err)
	}

	opts := &slog.HandlerOptions{Level: level}
	var inner slog.Handler
	if cfg.Log.Format == "json" {
		inner = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		inner = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(security.NewRedactingHandler(inner, security.NewRedactor())), nil
}

func capabilityList(m manifest.Manifest) string {
	if len(m.Capabilities) == 0 {
		return "-"
	}
	kinds := make([]string, 0, len(m.Capabilities))
	for _, c := range m.Capabilities {
		kinds = append(kinds, string(c.Kind))
	}
	return strings.Join(kinds, ",")
}

func reapAfter(cfg *config.Config) time.Duration {
	return time.Duration(cfg.Workspace.ReapAfterMin) * time.Minute
}
