package analysis

import (
	"github.com/anvilbuild/anvil/internal/buildopts"
	"github.com/anvilbuild/anvil/internal/target"
)

// targetAndConfiguration is stage 1's memoized result (spec.md §4.D
// "Between restarts this function remembers: the TargetAndConfiguration").
type targetAndConfiguration struct {
	Target  *target.Target
	Options buildopts.BuildOptions // resolved from the ConfigurationKey, empty for a null configuration
}

// scratchState is the per-node scratch object this function's stages read
// and write across restarts (spec.md §4.D "Scratch state"). Only the
// fields genuinely expensive to recompute are memoized here; stages that
// just re-read already-resolved graph values (package, toolchain context,
// config conditions, child configured targets) call env.GetValue again on
// every restart instead, since that is an O(1) map lookup once the
// dependency node is done and keeps this struct small.
type scratchState struct {
	loaded *targetAndConfiguration

	// edges is stage 6's dependency-resolution result: per spec.md §4.D
	// "the dependency-resolution sub-results (... post-transition
	// resolveConfigurations ...)", computed once (it applies transitions
	// and interns configurations) and not redone on every restart while
	// this node waits on child configured targets.
	edges map[target.DependencyKind][]Dependency

	// incompatible records the reason stage 5 or stage 9 decided on; the
	// activation returns its incompatible result right after setting it.
	incompatible *IncompatibleReason
}
