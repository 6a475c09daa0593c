package builtin

import (
	"context"
	"encoding/json"

	"github.com/warden-run/warden/internal/capability"
	"github.com/warden-run/warden/internal/manifest"
	"github.com/warden-run/warden/internal/protocol"
	"github.com/warden-run/warden/internal/runner"
	"github.com/warden-run/warden/internal/workspace"
)

var fsReadManifest = manifest.Manifest{
	Name:        "fs.read",
	Version:     "1.0.0",
	Description: "Reads a file from the session workspace.",
	Trusted:     true,
	InputSchema: json.RawMessage(`{
		"type": "object",
		"properties": {"path": {"type": "string"}},
		"required": ["path"],
		"additionalProperties": false
	}`),
	Capabilities: []capability.Capability{{Kind: capability.KindFilesystem}},
	Limits:       manifest.Limits{TimeoutSec: 10},
}

var fsWriteManifest = manifest.Manifest{
	Name:        "fs.write",
	Version:     "1.0.0",
	Description: "Writes a file into the session workspace.",
	Trusted:     true,
	InputSchema: json.RawMessage(`{
		"type": "object",
		"properties": {"path": {"type": "string"}, "data": {"type": "string"}},
		"required": ["path", "data"],
		"additionalProperties": false
	}`),
	Capabilities: []capability.Capability{{Kind: capability.KindFilesystem}},
	Limits:       manifest.Limits{TimeoutSec: 10},
}

var fsRemoveManifest = manifest.Manifest{
	Name:        "fs.remove",
	Version:     "1.0.0",
	Description: "Removes a file from the session workspace.",
	Trusted:     true,
	InputSchema: json.RawMessage(`{
		"type": "object",
		"properties": {"path": {"type": "string"}},
		"required": ["path"],
		"additionalProperties": false
	}`),
	Capabilities: []capability.Capability{{Kind: capability.KindFilesystem}},
	Limits:       manifest.Limits{TimeoutSec: 10},
}

var fsListManifest = manifest.Manifest{
	Name:        "fs.list",
	Version:     "1.0.0",
	Description: "Lists a directory in the session workspace.",
	Trusted:     true,
	InputSchema: json.RawMessage(`{
		"type": "object",
		"properties": {"path": {"type": "string"}},
		"additionalProperties": false
	}`),
	Capabilities: []capability.Capability{{Kind: capability.KindFilesystem}},
	Limits:       manifest.Limits{TimeoutSec: 10},
}

var fsDiffManifest = manifest.Manifest{
	Name:        "fs.diff",
	Version:     "1.0.0",
	Description: "Reports the session's changes against its base snapshot.",
	Trusted:     true,
	InputSchema: json.RawMessage(`{"type": "object", "additionalProperties": false}`),
	Capabilities: []capability.Capability{{Kind: capability.KindFilesystem}},
	Limits:       manifest.Limits{TimeoutSec: 10},
}

// fsAccess resolves the invocation's filesystem grant and checks the path
// against its mount scope. All fs builtins funnel through here so scope
// enforcement cannot be forgotten in one of them.
func fsAccess(inv protocol.Invocation, env runner.Env, raw string) (string, error) {
	fsCap, ok := inv.Grant.Get(capability.KindFilesystem)
	if !ok {
		return "", protocol.CapabilityDenied("filesystem capability not granted")
	}
	if env.FS == nil || env.Session == nil {
		return "", protocol.BackendUnavailable("no workspace session attached")
	}
	cleaned, err := workspace.CleanPath(raw)
	if err != nil {
		return "", err
	}
	if len(fsCap.Mounts) > 0 && !workspace.WithinMounts(cleaned, fsCap.Mounts) {
		return "", protocol.PathDenied("path %q is outside the granted mounts", cleaned)
	}
	return cleaned, nil
}

func fsRead(ctx context.Context, inv protocol.Invocation, env runner.Env) (json.RawMessage, error) {
	var args struct {
		Path string `json:"path"`
	}
	if err := json.Unmarshal(inv.Args, &args); err != nil {
		return nil, protocol.InvalidArguments("%s", err)
	}
	path, err := fsAccess(inv, env, args.Path)
	if err != nil {
		return nil, err
	}
	data, err := env.FS.Read(ctx, env.Session, path)
	if err != nil {
		return nil, err
	}
	return json.Marshal(map[string]string{"path": path, "data": string(data)})
}

func fsWrite(ctx context.Context, inv protocol.Invocation, env runner.Env) (json.RawMessage, error) {
	var args struct {
		Path string `json:"path"`
		Data string `json:"data"`
	}
	if err := json.Unmarshal(inv.Args, &args); err != nil {
		return nil, protocol.InvalidArguments("%s", err)
	}
	path, err := fsAccess(inv, env, args.Path)
	if err != nil {
		return nil, err
	}
	if err := env.FS.Write(ctx, env.Session, path, []byte(args.Data)); err != nil {
		return nil, err
	}
	return json.Marshal(map[string]any{"path": path, "bytes": len(args.Data)})
}

func fsRemove(ctx context.Context, inv protocol.Invocation, env runner.Env) (json.RawMessage, error) {
	var args struct {
		Path string `json:"path"`
	}
	if err := json.Unmarshal(inv.Args, &args); err != nil {
		return nil, protocol.InvalidArguments("%s", err)
	}
	path, err := fsAccess(inv, env, args.Path)
	if err != nil {
		return nil, err
	}
	if err := env.FS.Remove(ctx, env.Session, path); err != nil {
		return nil, err
	}
	return json.Marshal(map[string]string{"path": path})
}

func fsList(ctx context.Context, inv protocol.Invocation, env runner.Env) (json.RawMessage, error) {
	var args struct {
		Path string `json:"path"`
	}
	if len(inv.Args) > 0 {
		if err := json.Unmarshal(inv.Args, &args); err != nil {
			return nil, protocol.InvalidArguments("%s", err)
		}
	}
	path, err := fsAccess(inv, env, args.Path)
	if err != nil {
		return nil, err
	}
	entries, err := env.FS.List(ctx, env.Session, path)
	if err != nil {
		return nil, err
	}
	return json.Marshal(map[string]any{"path": path, "entries": entries})
}

func fsDiff(ctx context.Context, inv protocol.Invocation, env runner.Env) (json.RawMessage, error) {
	// Diff is not path-scoped: it reports the whole session delta, so only
	// the grant itself is required.
	if !inv.Grant.Has(capability.KindFilesystem) {
		return nil, protocol.CapabilityDenied("filesystem capability not granted")
	}
	if env.FS == nil || env.Session == nil {
		return nil, protocol.BackendUnavailable("no workspace session attached")
	}
	changes, err := env.FS.Diff(ctx, env.Session)
	if err != nil {
		return nil, err
	}
	return json.Marshal(map[string]any{"changes": changes})
}
