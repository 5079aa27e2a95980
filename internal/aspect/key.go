package aspect

import (
	"context"
	"sort"
	"strings"

	"github.com/anvilbuild/anvil/internal/analysis"
	"github.com/anvilbuild/anvil/internal/buildopts"
	"github.com/anvilbuild/anvil/internal/evalgraph"
	"github.com/anvilbuild/anvil/internal/label"
	"github.com/anvilbuild/anvil/internal/providerset"
)

// Collaborators bundles this package's external capabilities, the same
// injected-interface discipline internal/analysis and internal/toolchains
// use.
type Collaborators struct {
	Packages analysis.PackageLoader
	Aspects  Registry
	Interner *buildopts.Interner
}

// kindAspectFailed is this package's own failure catalog entry, wrapped into
// analysis.KindAspectCreationFailed by Resolver before it ever reaches a
// ConfiguredTargetKey activation (spec.md §7 AspectCreationFailed).
const kindAspectFailed evalgraph.Kind = "aspect_failed"

// Key is spec.md §4.E's AspectKey(target, aspectStack): one aspect's
// computed contribution to one target's provider set, memoized by the
// (target, configuration, aspect name) triple so that two parents
// requesting the same aspect on the same dependency in the same
// configuration share one activation.
type Key struct {
	Target        label.Label
	Configuration buildopts.ConfigurationKey
	AspectName    string

	// BaseProviders is the dependency's own already-resolved ProviderSet,
	// passed in by the caller (internal/analysis's step 8 already has it
	// from step 7's child fetch) rather than re-requested through the
	// graph — an aspect never needs to redo the configured-target analysis
	// that produced it, only read the result.
	BaseProviders providerset.Set

	Collabs *Collaborators
}

func (k Key) String() string {
	var b strings.Builder
	b.WriteString("aspect(")
	b.WriteString(k.Target.String())
	b.WriteByte('|')
	b.WriteString(k.Configuration.String())
	b.WriteByte('|')
	b.WriteString(k.AspectName)
	b.WriteByte(')')
	return b.String()
}

// Compute loads the dependency's target and configuration, looks up the
// named aspect, and invokes its implementation.
func (k Key) Compute(ctx context.Context, env *evalgraph.Env) evalgraph.Result {
	asp, ok := k.Collabs.Aspects.Lookup(k.AspectName)
	if !ok {
		return evalgraph.Failed(evalgraph.NewFailure(kindAspectFailed, "no aspect registered with name "+k.AspectName, evalgraph.ExitAnalysisFailure, k.Target.String()))
	}

	pkgKey := analysis.PackageKey{Repository: k.Target.Repository, Package: k.Target.Package, Loader: k.Collabs.Packages}
	v, ok := env.GetValue(pkgKey)
	if !ok {
		return evalgraph.Pending()
	}
	pv := v.(analysis.PackageValue)
	if pv.ContainsErrors {
		return evalgraph.Failed(evalgraph.NewFailure(kindAspectFailed, "loading "+pkgKey.String()+": "+pv.FailureDetail, evalgraph.ExitLoadingFailure, k.Target.String()))
	}
	tgt, found := pv.Package.TargetNamed(k.Target.Name)
	if !found {
		return evalgraph.Failed(evalgraph.NewFailure(kindAspectFailed, "no such target "+k.Target.Name, evalgraph.ExitLoadingFailure, k.Target.String()))
	}

	var opts buildopts.BuildOptions
	if !k.Configuration.IsNull() {
		cfg, found := k.Collabs.Interner.Lookup(k.Configuration)
		if !found {
			return evalgraph.Failed(evalgraph.NewFailure(kindAspectFailed, "unknown configuration "+k.Configuration.String(), evalgraph.ExitAnalysisFailure, k.Target.String()))
		}
		opts = cfg.Options
	}

	renv := analysis.NewAnalysisEnvironment()
	output, err := asp.Implementation.Analyze(ctx, renv, Input{Target: tgt, Configuration: opts, BaseProviders: k.BaseProviders})
	if err != nil {
		return evalgraph.Failed(evalgraph.NewFailure(kindAspectFailed, err.Error(), evalgraph.ExitAnalysisFailure, k.Target.String()))
	}
	if errEvents := renv.ErrorEvents(); len(errEvents) > 0 {
		msgs := make([]string, 0, len(errEvents))
		for _, e := range errEvents {
			msgs = append(msgs, e.Message)
		}
		return evalgraph.Failed(evalgraph.NewFailure(kindAspectFailed, strings.Join(msgs, "; "), evalgraph.ExitAnalysisFailure, k.Target.String()))
	}

	for _, ev := range renv.Events() {
		env.Emit(evalgraph.EventInfo, ev.Message)
	}
	return evalgraph.Done(Value{Providers: output.Providers})
}

// closure expands names to include every aspect transitively required by
// one already in the set (SPEC_FULL.md supplemented feature 5), in a
// deterministic (sorted, deduplicated) order.
func closure(names []string, reg Registry) []string {
	seen := make(map[string]bool)
	var out []string
	var visit func(name string)
	visit = func(name string) {
		if seen[name] {
			return
		}
		seen[name] = true
		out = append(out, name)
		asp, ok := reg.Lookup(name)
		if !ok {
			return
		}
		for _, req := range asp.RequiresAspects {
			visit(req)
		}
	}
	for _, n := range names {
		visit(n)
	}
	sort.Strings(out)
	return out
}

// satisfies reports whether every provider an aspect requires is present in
// a dependency's own provider set (spec.md §4.E "where the aspect's
// required_providers are satisfied by the dep's providers").
func satisfies(asp Aspect, base providerset.Set) bool {
	for _, id := range asp.RequiredProviders {
		if !base.Has(id) {
			return false
		}
	}
	return true
}
