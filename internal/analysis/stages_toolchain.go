package analysis

import (
	"github.com/anvilbuild/anvil/internal/buildopts"
	"github.com/anvilbuild/anvil/internal/evalgraph"
	"github.com/anvilbuild/anvil/internal/label"
	"github.com/anvilbuild/anvil/internal/target"
	"github.com/anvilbuild/anvil/internal/toolchains"
	"github.com/anvilbuild/anvil/internal/transition"
)

// toolchainContextFragments lists the fragments execution-platform and
// toolchain-type matching actually reads (toolchains.ContextKey.Compute
// only ever consults Registry.AvailablePlatforms/Toolchains, never the
// configuration's option values directly — Config is carried purely for
// key identity/caching). Trimming to just "platform" before entering
// toolchain resolution means two targets differing only in an unrelated
// fragment share one ToolchainContextKey and therefore one resolution.
var toolchainContextFragments = []buildopts.FragmentType{"platform"}

// stageToolchain is spec.md §4.D step 3: build one ToolchainContextKey for
// the default execution group plus one per declared exec group, and
// request them all. A target that opts out of toolchain resolution
// (!UsesToolchainResolution) skips this entirely (spec.md §4.C "A target
// that opts out of toolchain resolution skips step (1)-(4) for toolchain
// edges").
func (p *pipelineState) stageToolchain() (evalgraph.Result, bool) {
	tgt := p.scratch.loaded.Target
	if !tgt.UsesToolchainResolution {
		p.toolchainContexts = map[string]toolchains.Context{}
		return evalgraph.Result{}, false
	}

	trimmedConfig := p.key.Configuration
	if !p.key.Configuration.IsNull() {
		parentCfg, found := p.key.Collabs.Interner.Lookup(p.key.Configuration)
		if !found {
			return evalgraph.Failed(newLoadingFailure(p.key.Label.String(), "unknown configuration "+p.key.Configuration.String())), true
		}
		trim := transition.NewToolchainTrimmingTransition(toolchainContextFragments)
		configs, err := p.key.Collabs.Resolver.ResolveEdge(p.ctx, parentCfg, trim, nil)
		if err != nil {
			return evalgraph.Failed(evalgraph.NewFailure(KindToolchainResolutionFailed, "trimming toolchain context: "+err.Error(), evalgraph.ExitAnalysisFailure, p.key.Label.String())), true
		}
		trimmedConfig = configs[0].Key()
	}

	groupReqs := buildExecGroups(tgt)
	debug := p.key.Collabs.debugToolchain(p.key.Label)

	resolved := make(map[string]toolchains.Context, len(groupReqs))
	missing := false
	for name, types := range groupReqs {
		ck := toolchains.ContextKey{
			RequiredTypes:      types,
			Config:             trimmedConfig,
			ForcedExecPlatform: p.key.ForcedExecPlatform,
			Registry:           p.key.Collabs.Toolchains,
		}
		if debug {
			p.env.Emit(evalgraph.EventInfo, "resolving toolchain context "+ck.String()+" for exec group "+name)
		}
		v, ok := p.env.GetValue(ck)
		if !ok {
			if f, failed := p.env.GetFailure(ck); failed {
				if debug {
					p.env.Emit(evalgraph.EventInfo, "exec group "+name+" failed: "+f.Message)
				}
				return evalgraph.Failed(wrapToolchainFailure(p.key.Label.String(), f)), true
			}
			missing = true
			continue
		}
		resolved[name] = v.(toolchains.Context)
	}
	if missing {
		return evalgraph.Pending(), true
	}

	p.toolchainContexts = resolved
	return evalgraph.Result{}, false
}

// buildExecGroups returns, per exec group name, the toolchain types that
// group must resolve: "default" always carries the target's own
// RequiredToolchainTypes, plus one entry per target.Target.ExecGroups
// (spec.md §4.D step 3).
func buildExecGroups(tgt *target.Target) map[string][]label.Label {
	groups := map[string][]label.Label{"default": tgt.RequiredToolchainTypes}
	for name, types := range tgt.ExecGroups {
		groups[name] = types
	}
	return groups
}

// wrapToolchainFailure turns a ToolchainContextKey failure into this
// function's own failure catalog (spec.md §4.D "Failure catalog ...
// ToolchainResolutionFailed (including NoMatchingExecutionPlatform)"),
// preserving the more specific toolchains.KindNoMatchingExecutionPlatform
// kind when that was the underlying cause rather than flattening it into
// the generic kind.
func wrapToolchainFailure(selfLabel string, f *evalgraph.Failure) *evalgraph.Failure {
	wrapped := evalgraph.Propagate(f)
	if f.Kind == toolchains.KindNoMatchingExecutionPlatform {
		wrapped.Kind = toolchains.KindNoMatchingExecutionPlatform
	} else {
		wrapped.Kind = KindToolchainResolutionFailed
	}
	return wrapped
}
