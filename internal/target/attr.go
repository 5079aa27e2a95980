package target

import (
	"github.com/zclconf/go-cty/cty"

	"github.com/anvilbuild/anvil/internal/label"
)

// AttrValue is an attribute value that is either a concrete, already-usable
// cty.Value, or an unresolved select() chain (spec.md §3: "attribute map
// (concrete values plus unresolved select() chains)"). Exactly one of
// Concrete or Select is populated.
type AttrValue struct {
	Concrete cty.Value
	Select   *SelectChain
}

// IsSelect reports whether this attribute value is conditional.
func (a AttrValue) IsSelect() bool { return a.Select != nil }

// ConcreteAttr wraps a resolved cty.Value.
func ConcreteAttr(v cty.Value) AttrValue {
	return AttrValue{Concrete: v}
}

// SelectAttr wraps an unresolved select() chain.
func SelectAttr(s *SelectChain) AttrValue {
	return AttrValue{Select: s}
}

// SelectChain is the data behind a select({...}) attribute expression:
// an ordered list of (condition label, value-if-matched) branches plus an
// optional default used when no condition matches. The default's absence
// is itself meaningful (spec.md §4.D step 4 considers "no default and no
// match" a configurability error the loader or this stage must surface).
type SelectChain struct {
	// Branches preserves the declared order; evaluation picks the *last*
	// matching branch deterministically when more than one condition
	// matches, mirroring how configurable attributes in this style of
	// system resolve ambiguity.
	Branches       []SelectBranch
	Default        *cty.Value
	ResultType     cty.Type
	ConditionLabel func(index int) label.Label
}

// SelectBranch is one (condition, value) pair of a select() chain.
type SelectBranch struct {
	Condition label.Label
	Value     cty.Value
}

// ConditionLabels returns the condition label of every branch, in declared
// order and with duplicates kept; stage 4 (spec.md §4.D) de-duplicates them
// before requesting each condition's configured target.
func (s *SelectChain) ConditionLabels() []label.Label {
	out := make([]label.Label, 0, len(s.Branches))
	for _, b := range s.Branches {
		out = append(out, b.Condition)
	}
	return out
}

// Resolve picks the branch whose condition is in matched (the set of
// conditions that evaluated true under the target's configuration),
// returning the chain's default if none match and ok=false if there is
// also no default.
func (s *SelectChain) Resolve(matched func(label.Label) bool) (value cty.Value, ok bool) {
	var chosen *cty.Value
	for i := range s.Branches {
		b := &s.Branches[i]
		if matched(b.Condition) {
			chosen = &b.Value
		}
	}
	if chosen != nil {
		return *chosen, true
	}
	if s.Default != nil {
		return *s.Default, true
	}
	return cty.NilVal, false
}
