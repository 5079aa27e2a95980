package transition

import (
	"context"

	"github.com/anvilbuild/anvil/internal/buildopts"
)

// toolchainTrimmingTransition is applied exactly once, at the boundary where
// a configured target enters toolchain resolution (spec.md §6): execution
// platforms and toolchains are resolved against a configuration that has
// already been trimmed to the fragments toolchain matching actually reads
// (typically just the "platform" fragment), so that two targets which only
// differ in some unrelated fragment (say, a "test" fragment neither
// toolchain depends on) resolve to the identical ToolchainContextKey and can
// therefore share one toolchain resolution.
type toolchainTrimmingTransition struct {
	fragments []buildopts.FragmentType
}

// NewToolchainTrimmingTransition builds the transition applied at the
// toolchain-context boundary, keeping only the given fragment types (the
// fragments execution-platform and toolchain-type matching reads).
func NewToolchainTrimmingTransition(fragments []buildopts.FragmentType) Transition {
	return toolchainTrimmingTransition{fragments: fragments}
}

func (t toolchainTrimmingTransition) String() string { return "toolchain-trim" }

func (t toolchainTrimmingTransition) RequiredFragments() []buildopts.FragmentType {
	return t.fragments
}

func (t toolchainTrimmingTransition) Apply(_ context.Context, input buildopts.BuildOptions) ([]buildopts.BuildOptions, error) {
	return []buildopts.BuildOptions{input.Project(t.fragments)}, nil
}
