package capability

import "slices"

// Grant is the immutable set of capabilities authorized for one invocation.
// It is resolved once by Authorize and passed by value into the runner;
// nothing looks capabilities up from global state during execution.
type Grant struct {
	caps map[Kind]Capability
}

// Has reports whether the grant includes the given kind.
func (g Grant) Has(kind Kind) bool {
	_, ok := g.caps[kind]
	return ok
}

// Get returns the granted capability for a kind, if present.
func (g Grant) Get(kind Kind) (Capability, bool) {
	c, ok := g.caps[kind]
	return c, ok
}

// Kinds returns the granted kinds in sorted order.
func (g Grant) Kinds() []Kind {
	kinds := make([]Kind, 0, len(g.caps))
	for k := range g.caps {
		kinds = append(kinds, k)
	}
	slices.Sort(kinds)
	return kinds
}

// Len returns the number of granted capabilities.
func (g Grant) Len() int {
	return len(g.caps)
}
