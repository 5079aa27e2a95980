package analysis

import (
	"context"

	"github.com/anvilbuild/anvil/internal/evalgraph"
	"github.com/anvilbuild/anvil/internal/target"
	"github.com/anvilbuild/anvil/internal/toolchains"
)

// pipelineState carries the per-activation working set of the configured-
// target function (spec.md §4.D) across its ten stages. scratch is the
// part that survives a restart (env.GetState); everything else here is
// rebuilt fresh on every activation, cheaply, by re-reading already-done
// dependency values (see scratchState's doc comment).
type pipelineState struct {
	ctx context.Context
	env *evalgraph.Env
	key ConfiguredTargetKey

	scratch *scratchState

	toolchainContexts map[string]toolchains.Context
	configConditions  map[string]ConfigCondition
	childValues       map[string]ConfiguredTarget
	merged            map[string]ConfiguredTarget
}

// runPipeline is ConfiguredTargetKey.Compute's body: a straight-line walk
// through spec.md §4.D's ten stages. Any stage may end the activation early
// (missing dependency, failure, or one of the short-circuit "empty" /
// "incompatible" results); the rest simply fall through to the next stage.
func runPipeline(ctx context.Context, env *evalgraph.Env, k ConfiguredTargetKey) evalgraph.Result {
	scratch, _ := env.GetState(func() any { return &scratchState{} }).(*scratchState)
	p := &pipelineState{ctx: ctx, env: env, key: k, scratch: scratch}

	if res, done := p.stageLoad(); done {
		return res
	}
	if res, done := p.stageConfigurability(); done {
		return res
	}
	if res, done := p.stageToolchain(); done {
		return res
	}
	if res, done := p.stageConfigConditions(); done {
		return res
	}
	if res, done := p.stageDirectIncompatibility(); done {
		return res
	}
	if res, done := p.stageDependencyResolution(); done {
		return res
	}
	if res, done := p.stageChildFetch(); done {
		return res
	}
	if res, done := p.stageAspects(); done {
		return res
	}
	if res, done := p.stageIndirectIncompatibility(); done {
		return res
	}
	return p.stageRuleInvocation()
}

// countDependencies returns the total number of resolved edges across every
// DependencyKind, used only to size a map allocation.
func countDependencies(edges map[target.DependencyKind][]Dependency) int {
	n := 0
	for _, deps := range edges {
		n += len(deps)
	}
	return n
}
