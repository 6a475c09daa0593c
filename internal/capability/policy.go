package capability

import "slices"

// Rule is the decision rule for one capability kind. The zero value denies.
type Rule struct {
	// Enabled permits the kind at all. Scope fields below narrow what an
	// enabled kind may be granted; an empty scope list places no further
	// restriction beyond what the tool requested.
	Enabled bool `yaml:"enabled"`

	// Mounts limits filesystem grants to these session-relative paths.
	Mounts []string `yaml:"mounts,omitempty"`

	// Vars limits env grants to these variable names.
	Vars []string `yaml:"vars,omitempty"`

	// Hosts limits direct network grants to these hosts.
	Hosts []string `yaml:"hosts,omitempty"`
}

// Policy maps capability kinds to decision rules. Kinds without a rule are
// denied, so the zero Policy denies everything.
type Policy struct {
	// Rules holds the globally effective rule per kind.
	Rules map[Kind]Rule `yaml:"rules,omitempty"`

	// PerTool overrides Rules for a specific tool name.
	PerTool map[string]map[Kind]Rule `yaml:"per_tool,omitempty"`

	// AllowDirectNetwork gates non-gateway egress. It is deliberately
	// separate from model_access: granting gateway-mediated inference
	// never implies arbitrary network, and vice versa.
	AllowDirectNetwork bool `yaml:"allow_direct_network"`
}

// Context carries the per-invocation inputs to policy evaluation.
type Context struct {
	// Tool is the invoked tool's name, used to resolve PerTool overrides.
	Tool string
}

// resolve returns the effective rule for a kind: per-tool override first,
// then the global rule, then deny.
func (p Policy) resolve(kind Kind, ctx Context) Rule {
	if overrides, ok := p.PerTool[ctx.Tool]; ok {
		if rule, ok := overrides[kind]; ok {
			return rule
		}
	}
	if rule, ok := p.Rules[kind]; ok {
		return rule
	}
	return Rule{}
}

// Authorize evaluates the requested capabilities against the policy and
// returns the granted subset, each possibly narrowed. The result is always
// a subset of the request: evaluation only removes or narrows, never adds.
func Authorize(requested []Capability, pol Policy, ctx Context) Grant {
	granted := make(map[Kind]Capability, len(requested))

	for _, req := range requested {
		if req.Kind == KindUnknown {
			continue
		}
		if _, dup := granted[req.Kind]; dup {
			continue
		}

		rule := pol.resolve(req.Kind, ctx)
		if !rule.Enabled {
			continue
		}

		cap := Capability{Kind: req.Kind}
		switch req.Kind {
		case KindFilesystem:
			mounts, ok := narrowScope(req.Mounts, rule.Mounts)
			if !ok {
				continue
			}
			cap.Mounts = mounts
		case KindEnv:
			vars, ok := narrowScope(req.Vars, rule.Vars)
			if !ok {
				continue
			}
			cap.Vars = vars
		case KindNetwork:
			if pol.AllowDirectNetwork {
				// A host request disjoint from the rule degrades to
				// empty Hosts, the explicit no-direct-egress state.
				cap.Hosts, _ = narrowScope(req.Hosts, rule.Hosts)
			}
			// Without the direct-network override the grant carries no
			// hosts: the gateway path is all that remains.
		}
		granted[req.Kind] = cap
	}

	return Grant{caps: granted}
}

// narrowScope intersects a requested scope with the rule's scope. An empty
// rule scope imposes no restriction beyond the request; an empty requested
// scope with a restricting rule yields the rule scope itself, since the
// grant must name what is allowed rather than stay open-ended. When both
// sides are non-empty and share nothing, the second return is false: an
// empty intersection withholds the capability, it never widens into an
// unscoped grant.
func narrowScope(requested, allowed []string) ([]string, bool) {
	if len(allowed) == 0 {
		return slices.Clone(requested), true
	}
	if len(requested) == 0 {
		return slices.Clone(allowed), true
	}
	var out []string
	for _, r := range requested {
		if slices.Contains(allowed, r) {
			out = append(out, r)
		}
	}
	return out, len(out) > 0
}
