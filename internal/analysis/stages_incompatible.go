package analysis

import (
	"github.com/anvilbuild/anvil/internal/evalgraph"
	"github.com/anvilbuild/anvil/internal/target"
)

// stageDirectIncompatibility is spec.md §4.D step 5: "If
// target_compatible_with ... designate the target as incompatible with the
// selected platform, short-circuit to an incompatible configured target."
//
// Each constraint named in CompatibleWith is itself requested as a
// configured target in this target's own (already-resolved) configuration
// and must expose ConfigMatchingProviderID the same way a select() key
// does; this reuses stage 4's machinery rather than requiring a second,
// platform-constraint-specific resolution path.
func (p *pipelineState) stageDirectIncompatibility() (evalgraph.Result, bool) {
	tgt := p.scratch.loaded.Target
	if len(tgt.CompatibleWith) == 0 {
		return evalgraph.Result{}, false
	}

	var rootCauses []*evalgraph.Failure
	missing := false
	for _, c := range tgt.CompatibleWith {
		ck := ConfiguredTargetKey{Label: c, Configuration: p.key.Configuration, Collabs: p.key.Collabs}
		v, ok := p.env.GetValue(ck)
		if !ok {
			if f, failed := p.env.GetFailure(ck); failed {
				rootCauses = append(rootCauses, f)
				continue
			}
			missing = true
			continue
		}
		ct := v.(ConfiguredTarget)
		matchVal, has := ct.Providers.Get(ConfigMatchingProviderID)
		if has && !matchVal.True() {
			reason := IncompatibleReason{DirectConstraint: c}
			p.scratch.incompatible = &reason
			return evalgraph.Done(incompatibleConfiguredTarget(p.key.Label, p.key.Configuration, reason)), true
		}
	}
	if missing {
		return evalgraph.Pending(), true
	}
	if len(rootCauses) > 0 {
		return evalgraph.Failed(evalgraph.Merge(rootCauses)), true
	}
	return evalgraph.Result{}, false
}

// stageIndirectIncompatibility is spec.md §4.D step 9 / §8 property 8: "a
// target is incompatible iff (direct-incompatibility holds) or (any
// required dependency is incompatible)." Visibility edges are not
// dependency-compatibility carrying (they exist to let the loader check
// access, not to be built), so they are excluded from this check.
func (p *pipelineState) stageIndirectIncompatibility() (evalgraph.Result, bool) {
	for _, deps := range p.scratch.edges {
		for _, d := range deps {
			if d.Kind == target.DependencyVisibility {
				continue
			}
			ct, ok := p.merged[depKey(d)]
			if !ok || !ct.Incompatible {
				continue
			}
			reason := IncompatibleReason{ViaDependency: d.Child}
			p.scratch.incompatible = &reason
			return evalgraph.Done(incompatibleConfiguredTarget(p.key.Label, p.key.Configuration, reason)), true
		}
	}
	return evalgraph.Result{}, false
}
