// Package buildopts implements the data model of spec.md §3's BuildOptions
// and Configuration: an immutable, fragment-grouped option mapping, plus the
// interned, hashed Configuration wrapper around it.
package buildopts

import "github.com/zclconf/go-cty/cty"

// FragmentType names a group of related options (spec.md §3: "Options are
// grouped into fragments so that trimming is meaningful"). Typical
// fragments in this style of system are things like "platform", "java",
// "cpp", "test" — each rule class declares which fragments it reads, and
// the configuration resolver (internal/transition) trims a child's options
// down to just the fragments its rule class requires.
type FragmentType string

// Fragment is one named group of option values. The values themselves are
// cty.Value so that rule implementations (an opaque capability to this
// core) and select() condition matching can treat them uniformly with
// target attribute values (internal/target.AttrValue).
type Fragment struct {
	Type   FragmentType
	Values map[string]cty.Value
}

// Clone returns a deep-enough copy of the fragment for use as the basis of
// a transition's output (cty.Value is itself immutable, so only the map
// needs copying).
func (f Fragment) Clone() Fragment {
	values := make(map[string]cty.Value, len(f.Values))
	for k, v := range f.Values {
		values[k] = v
	}
	return Fragment{Type: f.Type, Values: values}
}

// Get returns a single option value within the fragment.
func (f Fragment) Get(key string) (cty.Value, bool) {
	v, ok := f.Values[key]
	return v, ok
}
