// Package providerset implements spec.md §9's ProviderSet: the open
// providerId -> provider-struct mapping a configured target's analysis
// produces and its dependents read from.
package providerset

import (
	"sort"
	"strings"

	"github.com/zclconf/go-cty-debug/ctydebug"
	"github.com/zclconf/go-cty/cty"
)

// ID names a provider type. Rule implementations are an opaque capability to
// this core (spec.md §4.D), so a provider is identified purely by name
// rather than by a Go type — the same discipline spec.md §9 describes for
// the open, rule-extensible provider universe.
type ID string

// Set is the immutable collection of providers a configured target's
// analysis produced, keyed by ID. It is open in the sense that any rule
// implementation can contribute any ID; the core only requires every
// contributed value be representable as cty.Value so that downstream
// attribute resolution and select() matching can treat providers and plain
// attributes uniformly.
type Set struct {
	providers map[ID]cty.Value
}

// Builder accumulates providers before freezing them into a Set.
type Builder struct {
	providers map[ID]cty.Value
	duplicate ID
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{providers: make(map[ID]cty.Value)}
}

// Put records a provider, remembering (but not failing on) the first
// duplicate ID so Build can report it as spec.md §7's DuplicateProvider
// failure — a rule implementation contributing the same provider twice is a
// defect in the rule, not the core, but the core is still responsible for
// detecting and reporting it cleanly.
func (b *Builder) Put(id ID, value cty.Value) *Builder {
	if _, exists := b.providers[id]; exists && b.duplicate == "" {
		b.duplicate = id
	}
	b.providers[id] = value
	return b
}

// Build freezes the builder into a Set, returning the first duplicate ID
// observed (if any) so the caller can turn it into a DuplicateProvider
// failure.
func (b *Builder) Build() (Set, ID) {
	return Set{providers: b.providers}, b.duplicate
}

// Get retrieves a provider by ID.
func (s Set) Get(id ID) (cty.Value, bool) {
	v, ok := s.providers[id]
	return v, ok
}

// Has reports whether id is present.
func (s Set) Has(id ID) bool {
	_, ok := s.providers[id]
	return ok
}

// IDs returns the provider IDs present, sorted for deterministic iteration.
func (s Set) IDs() []ID {
	out := make([]ID, 0, len(s.providers))
	for id := range s.providers {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Merge combines this set with others, used when an aspect's providers are
// unioned onto a configured target's own (spec.md §4.E: "the aspect's
// ProviderSet is merged with the base configured target's, with the aspect's
// own providers taking precedence on ID collision"). Later sets in the
// argument list win on collision.
func (s Set) Merge(others ...Set) Set {
	out := make(map[ID]cty.Value, len(s.providers))
	for id, v := range s.providers {
		out[id] = v
	}
	for _, o := range others {
		for id, v := range o.providers {
			out[id] = v
		}
	}
	return Set{providers: out}
}

// DebugString renders every provider's value using go-cty-debug's
// structured formatter, for the graph debug dump (spec.md §9's open-ended
// provider universe is otherwise opaque to any generic printer).
func (s Set) DebugString() string {
	var b strings.Builder
	for _, id := range s.IDs() {
		b.WriteString(string(id))
		b.WriteString(" = ")
		b.WriteString(ctydebug.ValueString(s.providers[id]))
		b.WriteByte('\n')
	}
	return b.String()
}

// EqualValue implements internal/evalgraph's early-cutoff hook.
func (s Set) EqualValue(other any) bool {
	o, ok := other.(Set)
	if !ok || len(s.providers) != len(o.providers) {
		return false
	}
	for id, v := range s.providers {
		ov, ok := o.providers[id]
		if !ok || !v.RawEquals(ov) {
			return false
		}
	}
	return true
}
