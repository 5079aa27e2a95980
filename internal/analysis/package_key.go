package analysis

import (
	"context"

	"github.com/anvilbuild/anvil/internal/evalgraph"
	"github.com/anvilbuild/anvil/internal/target"
)

// PackageLoader is the collaborator contract of spec.md §6:
// "PackageKey(packageId) -> PackageValue: returns a parsed package". The
// package loader itself is out of scope for this core; it is injected here
// the same way internal/toolchains injects a Registry, so the analysis
// pipeline can request packages through the graph without knowing how they
// are parsed.
type PackageLoader interface {
	// Load parses (or returns an already-parsed, cached) package. A
	// collaborator-level error here becomes PackageValue.ContainsErrors /
	// FailureDetail rather than a Go error, matching spec.md §6's "Failure
	// kind: NoSuchPackage" being data carried on the value, not a panic out
	// of Compute.
	Load(ctx context.Context, repository, packageName string) PackageValue
}

// PackageValue is the result of loading one package (spec.md §6).
type PackageValue struct {
	Package *target.Package

	// ContainsErrors mirrors target.Package.ContainsErrors, surfaced at the
	// PackageKey layer so a failing parse doesn't require a fully-formed
	// (possibly nil) Package to be read just to notice the failure.
	ContainsErrors bool

	// FailureDetail is a human-readable description of the parse failure,
	// set only when ContainsErrors is true.
	FailureDetail string
}

// PackageKey is the evalgraph.Key for loading one package, keyed by
// repository+package name (spec.md §6 PackageKey).
type PackageKey struct {
	Repository string
	Package    string
	Loader     PackageLoader
}

func (k PackageKey) String() string {
	if k.Repository == "" {
		return "package(//" + k.Package + ")"
	}
	return "package(@" + k.Repository + "//" + k.Package + ")"
}

// Compute loads the package via the injected loader. A loader is expected
// to be cheap to call repeatedly (it owns its own caching); PackageKey adds
// no caching of its own beyond what the graph node memoization already
// provides.
func (k PackageKey) Compute(ctx context.Context, _ *evalgraph.Env) evalgraph.Result {
	v := k.Loader.Load(ctx, k.Repository, k.Package)
	return evalgraph.Done(v)
}
