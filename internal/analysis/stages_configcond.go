package analysis

import (
	"sort"

	"github.com/zclconf/go-cty/cty"

	"github.com/anvilbuild/anvil/internal/collections"
	"github.com/anvilbuild/anvil/internal/evalgraph"
	"github.com/anvilbuild/anvil/internal/label"
	"github.com/anvilbuild/anvil/internal/target"
)

// stageConfigConditions is spec.md §4.D step 4: "For each select() key
// attribute on the target, request its configured target in the parent's
// configuration and validate it exposes a ConfigMatchingProvider. If any
// root causes accumulated and config conditions are non-empty, abort with
// AnalysisFailed."
func (p *pipelineState) stageConfigConditions() (evalgraph.Result, bool) {
	conditionLabels := collectConditionLabels(p.scratch.loaded.Target)
	if len(conditionLabels) == 0 {
		p.configConditions = map[string]ConfigCondition{}
		return evalgraph.Result{}, false
	}

	result := make(map[string]ConfigCondition, len(conditionLabels))
	var rootCauses []*evalgraph.Failure
	missing := false
	for _, cl := range conditionLabels {
		ck := ConfiguredTargetKey{Label: cl, Configuration: p.key.Configuration, Collabs: p.key.Collabs}
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
		if !has {
			rootCauses = append(rootCauses, newConfigConditionsFailure(cl.String(), "configured target does not expose ConfigMatchingProvider"))
			continue
		}
		result[cl.String()] = ConfigCondition{Label: cl, Matches: matchVal.True(), Resolved: ct}
	}
	if missing {
		return evalgraph.Pending(), true
	}
	if len(rootCauses) > 0 {
		return evalgraph.Failed(evalgraph.Merge(rootCauses)), true
	}

	p.configConditions = result
	return evalgraph.Result{}, false
}

// collectConditionLabels gathers the distinct select() condition labels
// referenced anywhere in the target's attribute map, in a deterministic
// (attribute-name-sorted, then declared-branch) order so repeated calls
// within and across restarts always request the same keys in the same
// order. Per SPEC_FULL.md's open-question decision, an attribute whose own
// schema is itself conditional never reaches here (the loader is expected
// to reject that shape before handing the core a Target).
func collectConditionLabels(tgt *target.Target) []label.Label {
	names := make([]string, 0, len(tgt.Attrs))
	for name := range tgt.Attrs {
		names = append(names, name)
	}
	sort.Strings(names)

	seen := collections.NewSet[string]()
	var out []label.Label
	for _, name := range names {
		av := tgt.Attrs[name]
		if !av.IsSelect() {
			continue
		}
		for _, cl := range av.Select.ConditionLabels() {
			key := cl.String()
			if seen.Has(key) {
				continue
			}
			seen.Add(key)
			out = append(out, cl)
		}
	}
	return out
}

// resolveAttr resolves one attribute's value, given the conditions already
// evaluated by stageConfigConditions: a concrete value is returned as-is, a
// select() chain is resolved against which conditions matched.
func resolveAttr(av target.AttrValue, conditions map[string]ConfigCondition) (cty.Value, bool) {
	if !av.IsSelect() {
		return av.Concrete, true
	}
	return av.Select.Resolve(func(l label.Label) bool {
		c, ok := conditions[l.String()]
		return ok && c.Matches
	})
}
