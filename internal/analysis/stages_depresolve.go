package analysis

import (
	"fmt"

	"github.com/zclconf/go-cty/cty"

	"github.com/anvilbuild/anvil/internal/buildopts"
	"github.com/anvilbuild/anvil/internal/evalgraph"
	"github.com/anvilbuild/anvil/internal/label"
	"github.com/anvilbuild/anvil/internal/target"
	"github.com/anvilbuild/anvil/internal/transition"
)

// stageDependencyResolution is spec.md §4.D step 6: "Using the rule's
// attribute schema and the resolved config conditions, enumerate outgoing
// edges with their kinds. Apply the configuration resolver per edge. Produce
// Map<DependencyKind, List<Dependency>>." The result is memoized in scratch
// (it interns configurations, which should happen once per version, not
// once per restart).
func (p *pipelineState) stageDependencyResolution() (evalgraph.Result, bool) {
	if p.scratch.edges != nil {
		return evalgraph.Result{}, false
	}

	tgt := p.scratch.loaded.Target
	edges := make(map[target.DependencyKind][]Dependency)

	for _, decl := range tgt.Dependencies {
		av, ok := tgt.Attr(decl.AttrName)
		if !ok {
			continue
		}
		val, resolvable := resolveAttr(av, p.configConditions)
		if !resolvable {
			// No default and no matching branch: SPEC_FULL.md's open-question
			// decision treats this as a loader-level concern, not something
			// this stage fails the build over.
			continue
		}
		childLabels, err := labelsFromValue(val)
		if err != nil {
			return evalgraph.Failed(evalgraph.NewFailure(KindLoadingFailed, "attribute "+decl.AttrName+": "+err.Error(), evalgraph.ExitAnalysisFailure, p.key.Label.String())), true
		}

		for _, child := range childLabels {
			deps, res, done := p.resolveOneEdge(decl, child)
			if done {
				return res, true
			}
			edges[decl.Kind] = append(edges[decl.Kind], deps...)
		}
	}

	p.scratch.edges = edges
	return evalgraph.Result{}, false
}

// resolveOneEdge runs the configuration resolver (internal/transition, spec.md
// §4.C) for a single (attribute, child label) pair, returning one Dependency
// per output configuration (more than one only for a split transition,
// spec.md §8 S3).
func (p *pipelineState) resolveOneEdge(decl target.DeclaredDependency, child label.Label) ([]Dependency, evalgraph.Result, bool) {
	// Null configurations propagate unchanged regardless of the declared
	// transition (spec.md §4.C: "Null configurations propagate unchanged:
	// edges to non-configurable targets keep the null key regardless of
	// transition").
	if p.key.Configuration.IsNull() {
		return []Dependency{{Kind: decl.Kind, AttrName: decl.AttrName, Child: child}}, evalgraph.Result{}, false
	}

	parentCfg, found := p.key.Collabs.Interner.Lookup(p.key.Configuration)
	if !found {
		return nil, evalgraph.Failed(newLoadingFailure(p.key.Label.String(), "unknown configuration "+p.key.Configuration.String())), true
	}

	childFragments, res, done := p.childRequiredFragments(child)
	if done {
		return nil, res, true
	}

	var t transition.Transition
	if decl.Transition == "" {
		t = transition.NewIdentityTransition(childFragments)
	} else {
		var ok bool
		t, ok = p.key.Collabs.Transitions.Transition(decl.Transition)
		if !ok {
			return nil, evalgraph.Failed(evalgraph.NewFailure(KindLoadingFailed, "unknown transition "+decl.Transition, evalgraph.ExitAnalysisFailure, p.key.Label.String())), true
		}
	}

	configs, err := p.key.Collabs.Resolver.ResolveEdge(p.ctx, parentCfg, t, childFragments)
	if err != nil {
		return nil, evalgraph.Failed(evalgraph.NewFailure(KindLoadingFailed, "resolving edge to "+child.String()+": "+err.Error(), evalgraph.ExitAnalysisFailure, p.key.Label.String())), true
	}

	deps := make([]Dependency, 0, len(configs))
	for i, cfg := range configs {
		tk := ""
		if len(configs) > 1 {
			tk = fmt.Sprintf("%d", i)
		}
		deps = append(deps, Dependency{Kind: decl.Kind, AttrName: decl.AttrName, Child: child, Config: cfg.Key(), TransitionKey: tk})
	}
	return deps, evalgraph.Result{}, false
}

// childRequiredFragments reads the fragments the dependency's own rule
// class declares (spec.md §4.C step 2: "the intersection of fragments
// declared by the child rule class with the parent's fragments"), loading
// the child's package just far enough to read its schema. Like any other
// missing dependency, an unloaded package suspends this activation rather
// than blocking synchronously.
func (p *pipelineState) childRequiredFragments(child label.Label) ([]buildopts.FragmentType, evalgraph.Result, bool) {
	pkgKey := PackageKey{Repository: child.Repository, Package: child.Package, Loader: p.key.Collabs.Packages}
	v, ok := p.env.GetValue(pkgKey)
	if !ok {
		if f, failed := p.env.GetFailure(pkgKey); failed {
			return nil, evalgraph.Failed(newDependencyEvaluationFailure(child.String(), f)), true
		}
		return nil, evalgraph.Pending(), true
	}
	pv := v.(PackageValue)
	if pv.ContainsErrors {
		return nil, evalgraph.Failed(newDependencyEvaluationFailure(child.String(), newLoadingFailure(pkgKey.String(), pv.FailureDetail))), true
	}
	childTgt, ok := pv.Package.TargetNamed(child.Name)
	if !ok {
		return nil, evalgraph.Failed(newDependencyEvaluationFailure(child.String(), newLoadingFailure(pkgKey.String(), "no such target "+child.Name))), true
	}
	return childTgt.RequiredFragments, evalgraph.Result{}, false
}

// labelsFromValue interprets a resolved attribute value as zero or more
// label strings: either a single string or any iterable (list/tuple/set) of
// strings. Dependency attributes carry labels as plain cty strings, the
// same representation every other attribute uses (spec.md §3's attribute
// map is uniformly cty.Value), so there is no separate "label value" type.
func labelsFromValue(val cty.Value) ([]label.Label, error) {
	if val == cty.NilVal || val.IsNull() {
		return nil, nil
	}
	if val.Type() == cty.String {
		l, err := label.Parse(val.AsString())
		if err != nil {
			return nil, err
		}
		return []label.Label{l}, nil
	}
	if !val.CanIterateElements() {
		return nil, fmt.Errorf("expected a label string or a list of label strings, got %s", val.Type().FriendlyName())
	}
	var out []label.Label
	it := val.ElementIterator()
	for it.Next() {
		_, ev := it.Element()
		if ev.IsNull() {
			continue
		}
		l, err := label.Parse(ev.AsString())
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, nil
}

// stageChildFetch is spec.md §4.D step 7: fetch every child dependency's
// ConfiguredTargetValue. Aliases are handled with a second pass once the
// first pass's results reveal which children redirect elsewhere (spec.md
// §8 property 7, §4.D step 7's "up to two passes").
func (p *pipelineState) stageChildFetch() (evalgraph.Result, bool) {
	firstPass := make(map[string]ConfiguredTarget, countDependencies(p.scratch.edges))
	var rootCauses []*evalgraph.Failure
	missing := false
	for _, deps := range p.scratch.edges {
		for _, d := range deps {
			ck := childKey(d, p.key.Collabs)
			v, ok := p.env.GetValue(ck)
			if !ok {
				if f, failed := p.env.GetFailure(ck); failed {
					rootCauses = append(rootCauses, newDependencyEvaluationFailure(d.Child.String(), f))
					continue
				}
				missing = true
				continue
			}
			firstPass[depKey(d)] = v.(ConfiguredTarget)
		}
	}
	if missing {
		return evalgraph.Pending(), true
	}

	childValues := make(map[string]ConfiguredTarget, len(firstPass))
	aliasMissing := false
	for dk, ct := range firstPass {
		if ct.AliasRedirect == nil {
			childValues[dk] = ct
			continue
		}
		ak := ConfiguredTargetKey{Label: *ct.AliasRedirect, Configuration: ct.Configuration, Collabs: p.key.Collabs}
		v, ok := p.env.GetValue(ak)
		if !ok {
			if f, failed := p.env.GetFailure(ak); failed {
				rootCauses = append(rootCauses, newDependencyEvaluationFailure(ct.AliasRedirect.String(), f))
				continue
			}
			aliasMissing = true
			continue
		}
		childValues[dk] = v.(ConfiguredTarget)
	}
	if aliasMissing {
		return evalgraph.Pending(), true
	}
	if len(rootCauses) > 0 {
		return evalgraph.Failed(evalgraph.Merge(rootCauses)), true
	}

	p.childValues = childValues
	return evalgraph.Result{}, false
}
