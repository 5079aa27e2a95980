// Package aspect implements Component E (spec.md §4.E): given a set of
// aspect names to apply along dependency edges, it computes the aspect's own
// configured value for each qualifying edge and merges the result into the
// dependency's provider set. internal/analysis never imports this package —
// it only depends on the analysis.AspectResolver interface — so the
// dependency direction runs the other way, avoiding an import cycle while
// still letting internal/analysis's step 8 delegate here.
package aspect

import (
	"context"

	"github.com/anvilbuild/anvil/internal/analysis"
	"github.com/anvilbuild/anvil/internal/buildopts"
	"github.com/anvilbuild/anvil/internal/providerset"
	"github.com/anvilbuild/anvil/internal/target"
)

// Aspect is the rule-implementation-equivalent registration an aspect
// contributes (spec.md §3 "Aspect — an orthogonal computation attached to
// targets of matching shape to contribute extra providers along the
// graph").
type Aspect struct {
	Name string

	// RequiredProviders are the provider IDs a dependency's own ProviderSet
	// must already expose for this aspect to apply to that edge at all
	// (spec.md §4.E: "where the aspect's required_providers are satisfied
	// by the dep's providers").
	RequiredProviders []providerset.ID

	// RequiresAspects names other aspects this one also needs applied
	// alongside it (SPEC_FULL.md supplemented feature 5, "requires_aspects
	// ... aspects other than the ones the client explicitly requested can
	// ride along because a required aspect brings its own dependency
	// aspects"). Expanded into the applied set by Closure before the
	// required_providers filter runs.
	RequiresAspects []string

	Implementation Implementation
}

// Input is what an aspect implementation receives: the target it is being
// applied to (the dependency, not the requesting parent) and that target's
// own already-resolved providers, which the aspect may read but does not
// own.
type Input struct {
	Target        *target.Target
	Configuration buildopts.BuildOptions
	BaseProviders providerset.Set
}

// Output is what a successful aspect invocation contributes.
type Output struct {
	Providers providerset.Set
}

// Implementation is the opaque per-aspect capability this package invokes,
// mirroring analysis.RuleImplementation.
type Implementation interface {
	Analyze(ctx context.Context, renv *analysis.AnalysisEnvironment, input Input) (*Output, error)
}

// Registry resolves an aspect name to its registration, analogous to
// analysis.RuleRegistry.
type Registry interface {
	Lookup(name string) (Aspect, bool)
}

// Value is an AspectKey's computed result.
type Value struct {
	Providers providerset.Set
}
