// Package transition implements spec.md §4.C's configuration resolver: the
// per-edge algorithm that turns a parent Configuration plus a declared
// Transition into one or more child Configurations.
package transition

import (
	"context"

	"github.com/mitchellh/copystructure"

	"github.com/anvilbuild/anvil/internal/buildopts"
)

// Transition is a pure or split function over BuildOptions (spec.md §4.C:
// "a transition is either a 1:1 pure function or a 1:N split"). Split
// transitions are how a single dependency edge can fan out into several
// configured targets — most commonly a multi-platform "apply to every
// requested target platform" transition.
type Transition interface {
	// String names the transition for debug dumps and cycle-free
	// identification in caches; it has no bearing on equality of the
	// Configurations it produces.
	String() string

	// RequiredFragments lists the fragment types this transition reads or
	// writes. The resolver trims the parent's options down to exactly this
	// set (plus whatever the target itself additionally requires) before
	// applying the transition, so a transition can never observe — or
	// accidentally depend on — a fragment outside its declared surface.
	RequiredFragments() []buildopts.FragmentType

	// Apply computes the child BuildOptions (one per output, in a stable
	// order) from a trimmed, defensively-copied view of the parent's
	// options. Returning more than one BuildOptions implements a split
	// transition; returning exactly one implements a pure transition.
	Apply(ctx context.Context, input buildopts.BuildOptions) ([]buildopts.BuildOptions, error)
}

// deepCopyOptions defends a transition against mutating the parent's
// BuildOptions in place: cty.Value is itself immutable, but a Fragment's
// Values map is not, so a transition implementation that (incorrectly)
// mutates what it was handed must not be able to corrupt the parent
// Configuration every other dependency edge also reads.
// mitchellh/copystructure walks BuildOptions' unexported fragment map field
// (it supports unexported struct fields via unsafe, unlike a naive
// reflection-based copier) and produces a fully independent clone; the
// cty.Value leaves it reaches are immutable already, so copying them is a
// cheap no-op in practice.
func deepCopyOptions(opts buildopts.BuildOptions) (buildopts.BuildOptions, error) {
	copied, err := copystructure.Copy(opts)
	if err != nil {
		return buildopts.BuildOptions{}, err
	}
	return copied.(buildopts.BuildOptions), nil
}
