package workspace

import (
	"fmt"
	"path"
	"strings"
)

// CleanPath normalizes a session-relative path and rejects anything that
// would resolve outside the session root. Escaping paths fail with
// ErrPathDenied rather than being clamped.
func CleanPath(p string) (string, error) {
	if strings.ContainsRune(p, 0) {
		return "", fmt.Errorf("%w: %q contains NUL", ErrPathDenied, p)
	}

	trimmed := strings.TrimSpace(p)
	if strings.HasPrefix(trimmed, "/") {
		return "", fmt.Errorf("%w: absolute path %q", ErrPathDenied, p)
	}

	cleaned := path.Clean(strings.ReplaceAll(trimmed, "\\", "/"))
	if cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("%w: %q escapes the session root", ErrPathDenied, p)
	}
	if cleaned == "." {
		return "", nil
	}
	return cleaned, nil
}

// WithinMounts reports whether a cleaned session-relative path falls inside
// one of the granted mount paths. An empty mount list means the whole
// session root is in scope.
func WithinMounts(cleaned string, mounts []string) bool {
	if len(mounts) == 0 {
		return true
	}
	for _, m := range mounts {
		mc, err := CleanPath(m)
		if err != nil {
			continue
		}
		if mc == "" || cleaned == mc || strings.HasPrefix(cleaned, mc+"/") {
			return true
		}
	}
	return false
}
