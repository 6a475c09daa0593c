// Package capability defines the closed set of capability kinds a tool may
// request and the pure policy evaluation that narrows requests into grants.
// Policy evaluation has no side effects and no dependencies on the runner,
// so it can be tested standalone.
package capability

import "strings"

// Kind identifies one capability family.
type Kind string

// Kind values for tool capability requests.
const (
	KindModelAccess Kind = "model_access"
	KindNetwork     Kind = "network"
	KindFilesystem  Kind = "filesystem"
	KindEnv         Kind = "env"

	// KindUnknown is the fallback for capability names that do not match
	// any known kind. It is never granted, so a typo in a manifest denies
	// rather than silently widening access.
	KindUnknown Kind = "unknown"
)

// ParseKind maps a manifest capability name to a Kind.
// Unrecognized names map to KindUnknown.
func ParseKind(name string) Kind {
	switch Kind(strings.TrimSpace(strings.ToLower(name))) {
	case KindModelAccess:
		return KindModelAccess
	case KindNetwork:
		return KindNetwork
	case KindFilesystem:
		return KindFilesystem
	case KindEnv:
		return KindEnv
	default:
		return KindUnknown
	}
}

// Capability is a kind plus its scope parameters. The meaning of each scope
// field depends on the kind; unused fields stay empty.
type Capability struct {
	Kind Kind `json:"kind"`

	// Mounts restricts filesystem access to the listed paths, relative to
	// the session root. Empty means the whole session root.
	Mounts []string `json:"mounts,omitempty"`

	// Vars restricts env access to the listed variable names.
	Vars []string `json:"vars,omitempty"`

	// Hosts restricts direct network egress to the listed hosts. Empty
	// means gateway-mediated access only.
	Hosts []string `json:"hosts,omitempty"`
}

// GatewayOnly reports whether a network capability permits only the
// gateway path and no direct egress.
func (c Capability) GatewayOnly() bool {
	return c.Kind == KindNetwork && len(c.Hosts) == 0
}
