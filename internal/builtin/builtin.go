// Package builtin provides the trusted tools that ship with the runtime.
// Each builtin is a Go handler plus a manifest; they pass through the same
// authorization and limit enforcement as any sandboxed tool.
package builtin

import (
	"github.com/warden-run/warden/internal/manifest"
	"github.com/warden-run/warden/internal/runner"
)

// Register installs every builtin handler on the trusted runner and returns
// the matching manifests for registration.
func Register(tr *runner.Trusted) ([]manifest.Manifest, error) {
	handlers := []struct {
		manifest manifest.Manifest
		fn       runner.HandlerFunc
	}{
		{timeNowManifest, timeNow},
		{fsReadManifest, fsRead},
		{fsWriteManifest, fsWrite},
		{fsRemoveManifest, fsRemove},
		{fsListManifest, fsList},
		{fsDiffManifest, fsDiff},
		{modelCompleteManifest, modelComplete},
	}

	manifests := make([]manifest.Manifest, 0, len(handlers))
	for _, h := range handlers {
		if err := tr.Register(h.manifest.Name, h.fn); err != nil {
			return nil, err
		}
		manifests = append(manifests, h.manifest)
	}
	return manifests, nil
}
