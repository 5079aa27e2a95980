package analysis

import (
	"context"

	"github.com/anvilbuild/anvil/internal/buildopts"
	"github.com/anvilbuild/anvil/internal/evalgraph"
	"github.com/anvilbuild/anvil/internal/label"
	"github.com/anvilbuild/anvil/internal/target"
	"github.com/anvilbuild/anvil/internal/toolchains"
	"github.com/anvilbuild/anvil/internal/transition"
)

// TransitionRegistry resolves a transition identifier named on a
// target.DeclaredDependency (spec.md §4.C step 1: "identify the transition
// attached by the rule definition") to the transition.Transition that
// implements it. The empty id always means "no transition attached" and is
// handled without consulting the registry.
type TransitionRegistry interface {
	Transition(id string) (transition.Transition, bool)
}

// AspectResolver is Component E (spec.md §4.E), consumed by Component D's
// step 8 as an injected collaborator rather than a concrete package import,
// so internal/analysis never has to import internal/aspect: the dependency
// runs the other way (internal/aspect's concrete resolver is placed in
// Collaborators.Aspects by whatever assembles the graph).
//
// childValues and the returned merged map are keyed by DependencyEdgeKey.
type AspectResolver interface {
	ResolveAndMerge(
		ctx context.Context,
		env *evalgraph.Env,
		parent *target.Target,
		edges map[target.DependencyKind][]Dependency,
		childValues map[string]ConfiguredTarget,
		aspectsToApply []string,
	) (merged map[string]ConfiguredTarget, failure *evalgraph.Failure, missing bool)
}

// Collaborators bundles every external capability the analysis pipeline
// consumes (spec.md §1 "Out of scope" list, §6 "External interfaces"),
// mirroring how internal/toolchains.ContextKey injects a single Registry
// rather than hard-wiring a concrete implementation.
type Collaborators struct {
	Packages    PackageLoader
	Toolchains  toolchains.Registry
	Transitions TransitionRegistry
	Rules       RuleRegistry

	// Interner and Resolver back stage 6's per-edge transition application
	// (internal/transition, spec.md §4.C). Interner also resolves a
	// ConfigurationKey back to its BuildOptions for stage 1 — spec.md §6's
	// "ConfigurationKey -> ConfigurationValue" contract is a plain
	// in-memory lookup here rather than its own graph node, since the
	// interner is already an authoritative, never-evicting table (no
	// suspension is ever needed to answer it).
	Interner *buildopts.Interner
	Resolver *transition.Resolver

	// Aspects is nil when this graph has no aspect support wired in; stage
	// 8 is then a no-op and child values pass through unmerged.
	Aspects AspectResolver

	// StoreTransitivePackages mirrors spec.md §6's option of the same name.
	StoreTransitivePackages bool

	// DebugToolchainResolution mirrors spec.md §6's
	// debugToolchainResolution(label) predicate (SPEC_FULL.md supplemented
	// feature 1): when it matches the target being analyzed, the
	// toolchain-context stage emits structured trace events instead of
	// just a pass/fail outcome.
	DebugToolchainResolution func(label.Label) bool
}

func (c *Collaborators) debugToolchain(l label.Label) bool {
	return c != nil && c.DebugToolchainResolution != nil && c.DebugToolchainResolution(l)
}
