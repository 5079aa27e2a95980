package buildopts

import (
	"sort"
	"strings"

	"github.com/zclconf/go-cty/cty"
)

// BuildOptions is an immutable mapping from fragment type to fragment value
// (spec.md §3). "Two BuildOptions are equal iff their fragment sets are
// equal element-wise" — equality and hashing both walk fragments in a
// canonical (sorted-by-type) order so that construction order never
// affects identity.
type BuildOptions struct {
	fragments map[FragmentType]Fragment
}

// NewBuildOptions constructs a BuildOptions from the given fragments. The
// caller must not mutate the Fragment values afterward; use WithFragment to
// derive a modified copy instead.
func NewBuildOptions(fragments ...Fragment) BuildOptions {
	m := make(map[FragmentType]Fragment, len(fragments))
	for _, f := range fragments {
		m[f.Type] = f
	}
	return BuildOptions{fragments: m}
}

// Fragment returns the named fragment and whether it is present in this
// BuildOptions.
func (o BuildOptions) Fragment(t FragmentType) (Fragment, bool) {
	f, ok := o.fragments[t]
	return f, ok
}

// FragmentTypes returns the set of fragment types present, sorted for
// deterministic iteration.
func (o BuildOptions) FragmentTypes() []FragmentType {
	out := make([]FragmentType, 0, len(o.fragments))
	for t := range o.fragments {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// WithFragment returns a new BuildOptions with the given fragment set or
// replaced, leaving the receiver untouched. This is how a transition
// (internal/transition) produces its output without mutating the parent's
// options, preserving spec.md §3 invariant 4.
func (o BuildOptions) WithFragment(f Fragment) BuildOptions {
	out := make(map[FragmentType]Fragment, len(o.fragments)+1)
	for k, v := range o.fragments {
		out[k] = v
	}
	out[f.Type] = f
	return BuildOptions{fragments: out}
}

// Project returns a new BuildOptions containing only the named fragment
// types, used by the configuration resolver's trimming step (spec.md §4.C
// step 2-3).
func (o BuildOptions) Project(types []FragmentType) BuildOptions {
	out := make(map[FragmentType]Fragment, len(types))
	for _, t := range types {
		if f, ok := o.fragments[t]; ok {
			out[t] = f
		}
	}
	return BuildOptions{fragments: out}
}

// Equal implements the "equal iff fragment sets equal element-wise" rule,
// comparing each fragment's values with cty.Value.RawEquals (structural
// equality, not the partial-unknown-aware cty.Value.Equals).
func (o BuildOptions) Equal(other BuildOptions) bool {
	if len(o.fragments) != len(other.fragments) {
		return false
	}
	for t, f := range o.fragments {
		of, ok := other.fragments[t]
		if !ok || len(f.Values) != len(of.Values) {
			return false
		}
		for k, v := range f.Values {
			ov, ok := of.Values[k]
			if !ok || !v.RawEquals(ov) {
				return false
			}
		}
	}
	return true
}

// CanonicalString renders a deterministic textual form used as the basis of
// the options hash (spec.md §3: "the configuration key is that hash").
// Field order is fixed by sorting fragment types and, within a fragment,
// option keys.
func (o BuildOptions) CanonicalString() string {
	var b strings.Builder
	for _, t := range o.FragmentTypes() {
		f := o.fragments[t]
		b.WriteString(string(t))
		b.WriteByte('{')
		keys := make([]string, 0, len(f.Values))
		for k := range f.Values {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			b.WriteString(k)
			b.WriteByte('=')
			b.WriteString(ctyCanonical(f.Values[k]))
			b.WriteByte(';')
		}
		b.WriteByte('}')
	}
	return b.String()
}

func ctyCanonical(v cty.Value) string {
	if v == cty.NilVal || v.IsNull() {
		return "<null>"
	}
	// GoString is stable and total over any cty.Value this core deals with
	// (concrete option/attribute values never contain unknowns, which the
	// loader/transition layer is responsible for rejecting before they
	// reach the graph).
	return v.GoString()
}
