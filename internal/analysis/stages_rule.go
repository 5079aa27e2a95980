package analysis

import (
	"errors"
	"strings"

	"github.com/anvilbuild/anvil/internal/collections"
	"github.com/anvilbuild/anvil/internal/evalgraph"
	"github.com/anvilbuild/anvil/internal/label"
)

// stageAspects is spec.md §4.D step 8: delegate to the injected
// AspectResolver (Component E) when the request carries AspectsToApply.
// With no resolver wired in, or no aspects requested, child values pass
// through unmerged.
func (p *pipelineState) stageAspects() (evalgraph.Result, bool) {
	if p.key.Collabs.Aspects == nil || len(p.key.AspectsToApply) == 0 {
		p.merged = p.childValues
		return evalgraph.Result{}, false
	}

	merged, failure, missing := p.key.Collabs.Aspects.ResolveAndMerge(
		p.ctx, p.env, p.scratch.loaded.Target, p.scratch.edges, p.childValues, p.key.AspectsToApply,
	)
	if missing {
		return evalgraph.Pending(), true
	}
	if failure != nil {
		return evalgraph.Failed(failure), true
	}
	p.merged = merged
	return evalgraph.Result{}, false
}

// stageRuleInvocation is spec.md §4.D step 10: look up the rule
// implementation, build its inputs, invoke it, and translate its outcome
// (success, a typed error, a generic error, error-level events, or a
// missing-dep signal) into this activation's evalgraph.Result.
func (p *pipelineState) stageRuleInvocation() evalgraph.Result {
	tgt := p.scratch.loaded.Target
	impl, ok := p.key.Collabs.Rules.Lookup(tgt.RuleClass)
	if !ok {
		return evalgraph.Failed(newRuleFailure(p.key.Label.String(), "no rule implementation registered for class "+tgt.RuleClass))
	}

	depValues := make(map[string][]ConfiguredTarget)
	for _, deps := range p.scratch.edges {
		for _, d := range deps {
			ct, ok := p.merged[depKey(d)]
			if !ok {
				continue
			}
			depValues[d.AttrName] = append(depValues[d.AttrName], ct)
		}
	}

	renv := NewAnalysisEnvironment()
	input := RuleInput{
		Target:            tgt,
		Configuration:     p.scratch.loaded.Options,
		DependencyValues:  depValues,
		ConfigConditions:  p.configConditions,
		ToolchainContexts: p.toolchainContexts,
	}

	output, err := impl.Analyze(p.ctx, renv, input)
	if err != nil {
		return p.translateRuleError(err)
	}

	if errEvents := renv.ErrorEvents(); len(errEvents) > 0 {
		msgs := make([]string, 0, len(errEvents))
		for _, e := range errEvents {
			msgs = append(msgs, e.Message)
		}
		return evalgraph.Failed(newRuleFailure(p.key.Label.String(), strings.Join(msgs, "; ")))
	}
	if output.DuplicateProvider != "" {
		return evalgraph.Failed(newDuplicateProviderFailure(p.key.Label.String(), string(output.DuplicateProvider)))
	}

	for _, ev := range renv.Events() {
		p.env.Emit(evalgraph.EventInfo, ev.Message)
	}

	return evalgraph.Done(ConfiguredTarget{
		Label:              p.key.Label,
		Configuration:      p.key.Configuration,
		Providers:          output.Providers,
		RegisteredActions:  renv.Actions(),
		ExecGroupBindings:  p.execGroupBindings(),
		TransitivePackages: p.transitivePackages(),
		AliasRedirect:      output.AliasRedirect,
	})
}

// translateRuleError maps a RuleImplementation.Analyze error to the result
// spec.md §4.D step 10 calls for: ErrMissingDep restarts the activation,
// each typed error gets its own failure kind, and anything else falls back
// to the generic rule-implementation failure.
func (p *pipelineState) translateRuleError(err error) evalgraph.Result {
	var conflict *ActionConflictError
	if errors.As(err, &conflict) {
		return evalgraph.Failed(newActionConflictFailure(p.key.Label.String(), conflict.Output))
	}
	var badGroup *InvalidExecGroupError
	if errors.As(err, &badGroup) {
		return evalgraph.Failed(newRuleFailure(p.key.Label.String(), "invalid exec group: "+badGroup.ExecGroup))
	}
	var propagated *AnalysisFailurePropagationError
	if errors.As(err, &propagated) {
		return evalgraph.Failed(evalgraph.Propagate(propagated.Failure))
	}
	if errors.Is(err, ErrMissingDep) {
		return evalgraph.Pending()
	}
	return evalgraph.Failed(newRuleFailure(p.key.Label.String(), err.Error()))
}

// execGroupBindings reports, per resolved exec group, which execution
// platform was chosen (spec.md §3 ConfiguredTarget "ExecGroupBindings").
func (p *pipelineState) execGroupBindings() map[string]label.Label {
	if len(p.toolchainContexts) == 0 {
		return nil
	}
	bindings := make(map[string]label.Label, len(p.toolchainContexts))
	for group, tctx := range p.toolchainContexts {
		bindings[group] = tctx.ExecPlatform
	}
	return bindings
}

// transitivePackages builds the running union of this target's own package
// plus every dependency's transitive set, maintained only when the
// collaborators request it (spec.md §3 invariant 3, §6 options table).
func (p *pipelineState) transitivePackages() *collections.NestedSet[string] {
	if !p.key.Collabs.StoreTransitivePackages {
		return nil
	}
	b := collections.NewNestedSetBuilder[string]()
	b.Add(p.key.Label.Package)
	for _, deps := range p.scratch.edges {
		for _, d := range deps {
			ct, ok := p.merged[depKey(d)]
			if !ok || ct.TransitivePackages == nil {
				continue
			}
			b.AddNested(ct.TransitivePackages)
		}
	}
	return b.Build()
}
