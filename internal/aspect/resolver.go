package aspect

import (
	"context"

	"github.com/anvilbuild/anvil/internal/analysis"
	"github.com/anvilbuild/anvil/internal/evalgraph"
	"github.com/anvilbuild/anvil/internal/providerset"
	"github.com/anvilbuild/anvil/internal/target"
)

// Resolver implements analysis.AspectResolver, the collaborator
// internal/analysis's step 8 delegates to (spec.md §4.E).
type Resolver struct {
	Collabs *Collaborators
}

// ResolveAndMerge applies every qualifying aspect to every dependency,
// merging each aspect's contributed providers into the dependency's own
// ProviderSet (spec.md §4.E: "Merges the resulting aspect providers into
// each dep's provider set, failing with DuplicateProvider if two aspects
// contribute the same provider id").
func (r *Resolver) ResolveAndMerge(
	ctx context.Context,
	env *evalgraph.Env,
	_ *target.Target,
	_ map[target.DependencyKind][]analysis.Dependency,
	childValues map[string]analysis.ConfiguredTarget,
	aspectsToApply []string,
) (map[string]analysis.ConfiguredTarget, *evalgraph.Failure, bool) {
	if len(aspectsToApply) == 0 {
		return childValues, nil, false
	}
	applied := closure(aspectsToApply, r.Collabs.Aspects)

	merged := make(map[string]analysis.ConfiguredTarget, len(childValues))
	var rootCauses []*evalgraph.Failure
	missing := false

	for dk, ct := range childValues {
		qualifying := make([]string, 0, len(applied))
		for _, name := range applied {
			asp, ok := r.Collabs.Aspects.Lookup(name)
			if !ok || !satisfies(asp, ct.Providers) {
				continue
			}
			qualifying = append(qualifying, name)
		}
		if len(qualifying) == 0 {
			merged[dk] = ct
			continue
		}

		b := providerset.NewBuilder()
		sawMissing := false
		for _, name := range qualifying {
			ak := Key{Target: ct.Label, Configuration: ct.Configuration, AspectName: name, BaseProviders: ct.Providers, Collabs: r.Collabs}
			v, ok := env.GetValue(ak)
			if !ok {
				if f, failed := env.GetFailure(ak); failed {
					rootCauses = append(rootCauses, newAspectCreationFailure(f))
					continue
				}
				missing = true
				sawMissing = true
				continue
			}
			av := v.(Value)
			for _, id := range av.Providers.IDs() {
				val, _ := av.Providers.Get(id)
				b.Put(id, val)
			}
		}
		if sawMissing {
			continue
		}
		aspectSet, dup := b.Build()
		if dup != "" {
			rootCauses = append(rootCauses, newDuplicateProviderFailure(ct.Label.String(), string(dup)))
			continue
		}
		ct.Providers = ct.Providers.Merge(aspectSet)
		merged[dk] = ct
	}

	if missing {
		return nil, nil, true
	}
	if len(rootCauses) > 0 {
		return nil, evalgraph.Merge(rootCauses), true
	}
	return merged, nil, false
}

// newAspectCreationFailure wraps an AspectKey failure into
// analysis.KindAspectCreationFailed (spec.md §7 AspectCreationFailed),
// keeping internal/analysis's failure catalog as the single vocabulary a
// ConfiguredTargetKey failure ever surfaces in, regardless of which
// collaborator produced the root cause.
func newAspectCreationFailure(cause *evalgraph.Failure) *evalgraph.Failure {
	wrapped := evalgraph.Propagate(cause)
	wrapped.Kind = analysis.KindAspectCreationFailed
	return wrapped
}

func newDuplicateProviderFailure(selfLabel, providerID string) *evalgraph.Failure {
	return evalgraph.NewFailure(analysis.KindDuplicateProvider, "duplicate provider "+providerID+" contributed by two aspects on "+selfLabel, evalgraph.ExitAnalysisFailure, selfLabel)
}
