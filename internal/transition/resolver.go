package transition

import (
	"context"
	"fmt"
	"sort"

	"github.com/anvilbuild/anvil/internal/buildopts"
)

// Resolver applies transitions to dependency edges and interns the results,
// implementing spec.md §4.C's per-edge algorithm end to end:
//  1. identify the transition for the edge (the caller already knows this —
//     it is a property of the edge, not something the resolver infers);
//  2. collect the fragments the transition and the dependency's own rule
//     class both require;
//  3. apply the transition to a trimmed, defensively-copied view of the
//     parent's options;
//  4. split into N child BuildOptions (1 for a pure transition);
//  5. intern each child into a canonical Configuration.
type Resolver struct {
	interner   *buildopts.Interner
	valueCache *buildopts.ValueCache
}

// NewResolver builds a Resolver backed by the given authoritative interner
// and an optional bounded ValueCache (nil disables the cache layer; the
// interner alone is still correct, just slower under heavy repeated-edge
// fan-out).
func NewResolver(interner *buildopts.Interner, valueCache *buildopts.ValueCache) *Resolver {
	return &Resolver{interner: interner, valueCache: valueCache}
}

// ResolveEdge computes the child Configuration(s) a dependency edge produces
// from parent under t, restricted to the fragments t and dependencyFragments
// jointly require.
func (r *Resolver) ResolveEdge(ctx context.Context, parent buildopts.Configuration, t Transition, dependencyFragments []buildopts.FragmentType) ([]buildopts.Configuration, error) {
	required := unionFragments(t.RequiredFragments(), dependencyFragments)

	trimmed := parent.Options.Project(required)
	input, err := deepCopyOptions(trimmed)
	if err != nil {
		return nil, fmt.Errorf("transition %s: copying parent options: %w", t, err)
	}

	outputs, err := t.Apply(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("transition %s: %w", t, err)
	}
	if len(outputs) == 0 {
		return nil, fmt.Errorf("transition %s: split produced zero outputs", t)
	}

	configs := make([]buildopts.Configuration, 0, len(outputs))
	for _, o := range outputs {
		configs = append(configs, r.intern(o))
	}
	return configs, nil
}

func (r *Resolver) intern(opts buildopts.BuildOptions) buildopts.Configuration {
	if r.valueCache == nil {
		return r.interner.Intern(opts)
	}
	key := buildopts.New(opts).Key()
	return r.valueCache.GetOrCompute(key, func() buildopts.Configuration {
		return r.interner.Intern(opts)
	})
}

// unionFragments merges and de-duplicates two fragment-type lists,
// returning them in a stable (sorted) order so repeated calls with the same
// inputs produce options with identical CanonicalString output regardless
// of the lists' original order (spec.md invariant 4: equal inputs MUST
// produce the same key).
func unionFragments(a, b []buildopts.FragmentType) []buildopts.FragmentType {
	seen := make(map[buildopts.FragmentType]struct{}, len(a)+len(b))
	out := make([]buildopts.FragmentType, 0, len(a)+len(b))
	for _, list := range [][]buildopts.FragmentType{a, b} {
		for _, t := range list {
			if _, ok := seen[t]; ok {
				continue
			}
			seen[t] = struct{}{}
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
