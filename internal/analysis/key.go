package analysis

import (
	"context"
	"strings"

	"github.com/anvilbuild/anvil/internal/buildopts"
	"github.com/anvilbuild/anvil/internal/evalgraph"
	"github.com/anvilbuild/anvil/internal/label"
)

// ConfiguredTargetKey is spec.md §3's
// "(Label, Optional<ConfigurationKey>, Optional<ExecutionPlatformLabel>)":
// the node identity of Component D. A zero-value Configuration denotes the
// "null configuration" case for non-configurable targets (source files).
type ConfiguredTargetKey struct {
	Label         label.Label
	Configuration buildopts.ConfigurationKey // IsNull() true => non-configurable target

	// ForcedExecPlatform is set when this target is itself being evaluated
	// as a toolchain implementation for some parent's toolchain resolution
	// (spec.md §4.D step 3: "if set by the caller, a forced execution
	// platform"); nil in the ordinary case.
	ForcedExecPlatform *label.Label

	// AspectsToApply names the aspects the client wants attached to this
	// target's dependency edges (spec.md §4.D step 8, delegated to
	// Component E); nil for an ordinary (non-aspect-requesting) request.
	AspectsToApply []string

	Collabs *Collaborators
}

func (k ConfiguredTargetKey) String() string {
	s := "configured_target(" + k.Label.String() + "|"
	if k.Configuration.IsNull() {
		s += "null"
	} else {
		s += k.Configuration.String()
	}
	if k.ForcedExecPlatform != nil {
		s += "|exec=" + k.ForcedExecPlatform.String()
	}
	if len(k.AspectsToApply) > 0 {
		s += "|aspects=" + strings.Join(k.AspectsToApply, ",")
	}
	return s + ")"
}

// Compute runs the linear, restartable analysis pipeline of spec.md §4.D.
func (k ConfiguredTargetKey) Compute(ctx context.Context, env *evalgraph.Env) evalgraph.Result {
	return runPipeline(ctx, env, k)
}
