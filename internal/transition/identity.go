package transition

import (
	"context"

	"github.com/anvilbuild/anvil/internal/buildopts"
)

// identityTransition is the "none" transition of spec.md §4.C step 1: an
// edge that declares no transition still goes through the same
// trim-and-intern algorithm as any other, it just leaves the projected
// options untouched.
type identityTransition struct {
	fragments []buildopts.FragmentType
}

// NewIdentityTransition builds the transition used for a dependency edge
// that attaches no transition function of its own, restricted to the given
// fragment types (normally the dependency's own declared required
// fragments, since an edge with no transition still only sees what the
// child rule reads).
func NewIdentityTransition(fragments []buildopts.FragmentType) Transition {
	return identityTransition{fragments: fragments}
}

func (t identityTransition) String() string { return "identity" }

func (t identityTransition) RequiredFragments() []buildopts.FragmentType {
	return t.fragments
}

func (t identityTransition) Apply(_ context.Context, input buildopts.BuildOptions) ([]buildopts.BuildOptions, error) {
	return []buildopts.BuildOptions{input}, nil
}
