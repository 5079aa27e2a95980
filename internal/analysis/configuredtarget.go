package analysis

import (
	"slices"

	"github.com/anvilbuild/anvil/internal/buildopts"
	"github.com/anvilbuild/anvil/internal/collections"
	"github.com/anvilbuild/anvil/internal/label"
	"github.com/anvilbuild/anvil/internal/providerset"
	"github.com/anvilbuild/anvil/internal/target"
)

// Dependency is one resolved outgoing edge (spec.md §3 Dependency): a child
// label, the kind of edge, and the configuration(s) the configuration
// resolver produced for it. TransitionKey distinguishes the multiple
// entries a split transition emits for the same edge (spec.md §8 S3).
type Dependency struct {
	Kind          target.DependencyKind
	AttrName      string
	Child         label.Label
	Config        buildopts.ConfigurationKey
	TransitionKey string
}

// ConfigCondition is the evaluated result of one select() key (spec.md §3):
// the configured target the key names, and whether it reported a match via
// ConfigMatchingProviderID.
type ConfigCondition struct {
	Label    label.Label
	Matches  bool
	Resolved ConfiguredTarget
}

// IncompatibleReason names why a configured target was short-circuited to
// the incompatible state (SPEC_FULL.md supplemented feature 4: "record why
// ... because build systems in this family report this to users rather
// than silently dropping targets").
type IncompatibleReason struct {
	// DirectConstraint is set when the target's own target_compatible_with
	// (or a config condition) ruled it out directly (spec.md §4.D step 5).
	DirectConstraint label.Label

	// ViaDependency is set when the target is incompatible only because a
	// required dependency was (spec.md §4.D step 9, §8 property 8).
	ViaDependency label.Label
}

// String renders a short human-readable explanation.
func (r IncompatibleReason) String() string {
	if r.ViaDependency != (label.Label{}) {
		return "incompatible dependency " + r.ViaDependency.String()
	}
	if r.DirectConstraint != (label.Label{}) {
		return "incompatible with constraint " + r.DirectConstraint.String()
	}
	return "incompatible"
}

// ConfiguredTarget is the final node value of spec.md §3: "(Label,
// ConfigurationKey, ProviderSet, RegisteredActions, ExecGroupBindings,
// TransitivePackages)".
type ConfiguredTarget struct {
	Label         label.Label
	Configuration buildopts.ConfigurationKey

	Providers         providerset.Set
	RegisteredActions []RegisteredAction
	ExecGroupBindings map[string]label.Label // exec group name -> chosen execution platform

	// TransitivePackages is maintained only when storeTransitivePackages is
	// set (spec.md §3 invariant 3, §6 options table); nil otherwise.
	TransitivePackages *collections.NestedSet[string]

	// Empty marks the "configurability mismatch" short-circuit of spec.md
	// §4.D step 2: no providers, no actions, not incompatible, just inert.
	Empty bool

	// Incompatible marks a target ruled out by direct or transitive
	// incompatibility (spec.md §4.D steps 5 and 9).
	Incompatible       bool
	IncompatibleReason *IncompatibleReason

	// AliasRedirect is set when this target's rule class is an alias: its
	// "real" value is whatever the named label resolves to in the same
	// configuration (spec.md §4.D step 7's two-pass alias handling, §8
	// property 7). A rule implementation signals this by setting it on the
	// RuleOutput; stage 10 carries it through unchanged.
	AliasRedirect *label.Label
}

// EqualValue implements internal/evalgraph's early-cutoff hook: two
// ConfiguredTarget values compare equal when their externally-observable
// content (providers, actions, bindings, compatibility) matches, regardless
// of which activation produced them. Actions are compared by mnemonic,
// outputs and inputs; their Opaque payloads are not compared.
func (c ConfiguredTarget) EqualValue(other any) bool {
	o, ok := other.(ConfiguredTarget)
	if !ok {
		return false
	}
	if c.Label != o.Label || c.Configuration != o.Configuration {
		return false
	}
	if c.Empty != o.Empty || c.Incompatible != o.Incompatible {
		return false
	}
	if len(c.RegisteredActions) != len(o.RegisteredActions) {
		return false
	}
	for i, a := range c.RegisteredActions {
		b := o.RegisteredActions[i]
		if a.Mnemonic != b.Mnemonic || !slices.Equal(a.Outputs, b.Outputs) || !slices.Equal(a.Inputs, b.Inputs) {
			return false
		}
	}
	if len(c.ExecGroupBindings) != len(o.ExecGroupBindings) {
		return false
	}
	for k, v := range c.ExecGroupBindings {
		if ov, ok := o.ExecGroupBindings[k]; !ok || ov != v {
			return false
		}
	}
	return c.Providers.EqualValue(o.Providers)
}

// DebugString implements internal/evalgraph's optional debug hook so
// Graph.DebugRepr renders a configured target's providers and status instead
// of a raw struct dump.
func (c ConfiguredTarget) DebugString() string {
	switch {
	case c.Incompatible:
		return "incompatible(" + c.IncompatibleReason.String() + ")"
	case c.Empty:
		return "empty"
	case c.AliasRedirect != nil:
		return "alias -> " + c.AliasRedirect.String()
	default:
		return c.Providers.DebugString()
	}
}

// emptyConfiguredTarget builds the inert value spec.md §4.D step 2 returns.
func emptyConfiguredTarget(lbl label.Label, cfg buildopts.ConfigurationKey) ConfiguredTarget {
	return ConfiguredTarget{Label: lbl, Configuration: cfg, Empty: true}
}

// incompatibleConfiguredTarget builds the short-circuit value of steps 5/9.
func incompatibleConfiguredTarget(lbl label.Label, cfg buildopts.ConfigurationKey, reason IncompatibleReason) ConfiguredTarget {
	return ConfiguredTarget{
		Label:              lbl,
		Configuration:       cfg,
		Incompatible:       true,
		IncompatibleReason: &reason,
	}
}

// depKey identifies one resolved dependency edge uniquely within a single
// configured target's dependency map, distinguishing the multiple entries a
// split transition produces for the same (child, attr) pair by
// TransitionKey (spec.md §8 S3).
func depKey(d Dependency) string {
	return d.Child.String() + "|" + d.Config.String() + "|" + d.TransitionKey
}

// childKey builds the ConfiguredTargetKey for a resolved dependency edge.
func childKey(d Dependency, collabs *Collaborators) ConfiguredTargetKey {
	return ConfiguredTargetKey{Label: d.Child, Configuration: d.Config, Collabs: collabs}
}
