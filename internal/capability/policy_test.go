package capability

import (
	"slices"
	"testing"
)

func TestAuthorize_DeniesAllByDefault(t *testing.T) {
	t.Parallel()

	requested := []Capability{
		{Kind: KindModelAccess},
		{Kind: KindNetwork},
		{Kind: KindFilesystem},
		{Kind: KindEnv},
	}

	grant := Authorize(requested, Policy{}, Context{Tool: "any"})
	if grant.Len() != 0 {
		t.Errorf("zero policy granted %v, want nothing", grant.Kinds())
	}
}

func TestAuthorize_GrantsOnlyEnabledKinds(t *testing.T) {
	t.Parallel()

	pol := Policy{
		Rules: map[Kind]Rule{
			KindModelAccess: {Enabled: true},
		},
	}
	requested := []Capability{
		{Kind: KindModelAccess},
		{Kind: KindFilesystem},
	}

	grant := Authorize(requested, pol, Context{Tool: "summarize"})
	if !grant.Has(KindModelAccess) {
		t.Error("model_access should be granted")
	}
	if grant.Has(KindFilesystem) {
		t.Error("filesystem should be denied without an explicit rule")
	}
}

func TestAuthorize_NeverGrantsUnrequestedKinds(t *testing.T) {
	t.Parallel()

	pol := Policy{
		Rules: map[Kind]Rule{
			KindModelAccess: {Enabled: true},
			KindFilesystem:  {Enabled: true},
			KindEnv:         {Enabled: true},
		},
	}

	grant := Authorize([]Capability{{Kind: KindEnv}}, pol, Context{})
	if got := grant.Kinds(); !slices.Equal(got, []Kind{KindEnv}) {
		t.Errorf("granted %v, want only [env]", got)
	}
}

func TestAuthorize_UnknownKindAlwaysDenied(t *testing.T) {
	t.Parallel()

	pol := Policy{
		Rules: map[Kind]Rule{
			KindUnknown: {Enabled: true},
		},
	}

	grant := Authorize([]Capability{{Kind: KindUnknown}}, pol, Context{})
	if grant.Len() != 0 {
		t.Error("unknown kind must never be granted, even if a rule enables it")
	}
}

func TestAuthorize_FilesystemScopeIntersection(t *testing.T) {
	t.Parallel()

	pol := Policy{
		Rules: map[Kind]Rule{
			KindFilesystem: {Enabled: true, Mounts: []string{"src", "docs"}},
		},
	}
	requested := []Capability{
		{Kind: KindFilesystem, Mounts: []string{"src", "secrets"}},
	}

	grant := Authorize(requested, pol, Context{})
	cap, ok := grant.Get(KindFilesystem)
	if !ok {
		t.Fatal("filesystem should be granted")
	}
	if !slices.Equal(cap.Mounts, []string{"src"}) {
		t.Errorf("granted mounts %v, want [src]", cap.Mounts)
	}
}

func TestAuthorize_DisjointScopeWithholdsCapability(t *testing.T) {
	t.Parallel()

	pol := Policy{
		Rules: map[Kind]Rule{
			KindFilesystem: {Enabled: true, Mounts: []string{"src"}},
			KindEnv:        {Enabled: true, Vars: []string{"LANG"}},
		},
	}
	requested := []Capability{
		{Kind: KindFilesystem, Mounts: []string{"secrets"}},
		{Kind: KindEnv, Vars: []string{"AWS_SECRET_ACCESS_KEY"}},
	}

	grant := Authorize(requested, pol, Context{})
	if grant.Has(KindFilesystem) {
		t.Error("a mount request disjoint from the rule must withhold filesystem, not widen to the session root")
	}
	if grant.Has(KindEnv) {
		t.Error("a var request disjoint from the rule must withhold env, not widen to the full allowlist")
	}
}

func TestAuthorize_DisjointHostsDegradeToGatewayOnly(t *testing.T) {
	t.Parallel()

	pol := Policy{
		Rules: map[Kind]Rule{
			KindNetwork: {Enabled: true, Hosts: []string{"example.com"}},
		},
		AllowDirectNetwork: true,
	}
	requested := []Capability{
		{Kind: KindNetwork, Hosts: []string{"evil.test"}},
	}

	grant := Authorize(requested, pol, Context{})
	cap, ok := grant.Get(KindNetwork)
	if !ok {
		t.Fatal("network should be granted")
	}
	if !cap.GatewayOnly() {
		t.Errorf("disjoint host request must lose direct egress, got hosts %v", cap.Hosts)
	}
}

func TestAuthorize_EnvScopeFromRuleWhenRequestUnscoped(t *testing.T) {
	t.Parallel()

	pol := Policy{
		Rules: map[Kind]Rule{
			KindEnv: {Enabled: true, Vars: []string{"LANG", "TZ"}},
		},
	}

	grant := Authorize([]Capability{{Kind: KindEnv}}, pol, Context{})
	cap, ok := grant.Get(KindEnv)
	if !ok {
		t.Fatal("env should be granted")
	}
	if !slices.Equal(cap.Vars, []string{"LANG", "TZ"}) {
		t.Errorf("granted vars %v, want the rule allowlist", cap.Vars)
	}
}

func TestAuthorize_NetworkWithoutDirectOverrideIsGatewayOnly(t *testing.T) {
	t.Parallel()

	pol := Policy{
		Rules: map[Kind]Rule{
			KindNetwork: {Enabled: true},
		},
	}
	requested := []Capability{
		{Kind: KindNetwork, Hosts: []string{"example.com"}},
	}

	grant := Authorize(requested, pol, Context{})
	cap, ok := grant.Get(KindNetwork)
	if !ok {
		t.Fatal("network should be granted")
	}
	if !cap.GatewayOnly() {
		t.Errorf("without AllowDirectNetwork the grant must be gateway-only, got hosts %v", cap.Hosts)
	}
}

func TestAuthorize_DirectNetworkRequiresSeparateOverride(t *testing.T) {
	t.Parallel()

	pol := Policy{
		Rules: map[Kind]Rule{
			KindNetwork: {Enabled: true, Hosts: []string{"example.com", "internal.test"}},
		},
		AllowDirectNetwork: true,
	}
	requested := []Capability{
		{Kind: KindNetwork, Hosts: []string{"example.com", "evil.test"}},
	}

	grant := Authorize(requested, pol, Context{})
	cap, ok := grant.Get(KindNetwork)
	if !ok {
		t.Fatal("network should be granted")
	}
	if !slices.Equal(cap.Hosts, []string{"example.com"}) {
		t.Errorf("granted hosts %v, want [example.com]", cap.Hosts)
	}
}

func TestAuthorize_ModelAccessDoesNotImplyDirectNetwork(t *testing.T) {
	t.Parallel()

	pol := Policy{
		Rules: map[Kind]Rule{
			KindModelAccess: {Enabled: true},
		},
	}
	requested := []Capability{
		{Kind: KindModelAccess},
		{Kind: KindNetwork, Hosts: []string{"example.com"}},
	}

	grant := Authorize(requested, pol, Context{})
	if !grant.Has(KindModelAccess) {
		t.Error("model_access should be granted")
	}
	if grant.Has(KindNetwork) {
		t.Error("network must not ride along with model_access")
	}
}

func TestAuthorize_PerToolOverrideWins(t *testing.T) {
	t.Parallel()

	pol := Policy{
		Rules: map[Kind]Rule{
			KindFilesystem: {Enabled: true},
		},
		PerTool: map[string]map[Kind]Rule{
			"fs.write": {KindFilesystem: {Enabled: false}},
		},
	}
	requested := []Capability{{Kind: KindFilesystem}}

	if g := Authorize(requested, pol, Context{Tool: "fs.write"}); g.Has(KindFilesystem) {
		t.Error("per-tool deny should override the global allow")
	}
	if g := Authorize(requested, pol, Context{Tool: "fs.read"}); !g.Has(KindFilesystem) {
		t.Error("other tools keep the global allow")
	}
}

func TestAuthorize_IdempotentAndMonotonic(t *testing.T) {
	t.Parallel()

	pol := Policy{
		Rules: map[Kind]Rule{
			KindModelAccess: {Enabled: true},
			KindFilesystem:  {Enabled: true, Mounts: []string{"src"}},
			KindEnv:         {Enabled: true, Vars: []string{"TZ"}},
		},
	}
	full := []Capability{
		{Kind: KindModelAccess},
		{Kind: KindFilesystem, Mounts: []string{"src", "docs"}},
		{Kind: KindEnv, Vars: []string{"TZ", "HOME"}},
		{Kind: KindNetwork},
	}

	first := Authorize(full, pol, Context{})
	second := Authorize(full, pol, Context{})
	if !slices.Equal(first.Kinds(), second.Kinds()) {
		t.Errorf("authorize is not idempotent: %v vs %v", first.Kinds(), second.Kinds())
	}

	// Narrowing the request can never increase the granted set.
	requestedKinds := make(map[Kind]bool, len(full))
	for _, c := range full {
		requestedKinds[c.Kind] = true
	}
	for _, k := range first.Kinds() {
		if !requestedKinds[k] {
			t.Errorf("granted kind %q was never requested", k)
		}
	}

	narrowed := full[:2]
	sub := Authorize(narrowed, pol, Context{})
	if sub.Len() > first.Len() {
		t.Errorf("narrowed request granted more (%d) than full request (%d)", sub.Len(), first.Len())
	}
	for _, k := range sub.Kinds() {
		if !first.Has(k) {
			t.Errorf("narrowed request granted %q which the full request did not", k)
		}
	}
}
