// Package target holds the data types produced by the out-of-scope package
// loader (spec.md §1, §6 PackageKey): Target, Package, and the attribute
// value representation targets are described with. This core only ever
// reads these values; it never constructs or mutates a Target once the
// loader hands it over (spec.md §3 Lifecycles).
package target

import (
	"github.com/zclconf/go-cty/cty"

	"github.com/anvilbuild/anvil/internal/buildopts"
	"github.com/anvilbuild/anvil/internal/label"
)

// Visibility restricts which other packages may depend on a target. This
// core does not interpret visibility itself (that belongs to the
// loader/review tooling); the value is carried through verbatim so that a
// future check stage could consume it.
type Visibility struct {
	Public       bool
	AllowedPkgs  []string
	PackageGroup *label.Label
}

// SourceLocation is the location in the build-file text a Target came from,
// used only for diagnostics.
type SourceLocation struct {
	File string
	Line int
	Col  int
}

// Target is a parsed rule instance: spec.md §3 "label, rule class name,
// attribute map (concrete values plus unresolved select() chains), source
// location, visibility."
type Target struct {
	Label          label.Label
	RuleClass      string
	Attrs          map[string]AttrValue
	Visibility     Visibility
	Location       SourceLocation
	IsConfigurable bool

	// UsesToolchainResolution mirrors whether the rule class that produced
	// this target participates in toolchain resolution (spec.md §4.D step
	// 3); it is a property of the rule class, carried here because the core
	// has no other way to learn it without invoking the out-of-scope rule
	// registry.
	UsesToolchainResolution bool

	// RequiredToolchainTypes lists the toolchain type labels this target's
	// rule class requires when UsesToolchainResolution is true, for the
	// default execution group.
	RequiredToolchainTypes []label.Label

	// ExecGroups lists any additional named execution groups this rule
	// class declares, each resolving its own independent toolchain set
	// (spec.md §4.D step 3: "one for the default execution group plus one
	// per declared exec group").
	ExecGroups map[string][]label.Label

	// CompatibleWith lists target_compatible_with constraint labels used by
	// the direct-incompatibility check (spec.md §4.D step 5).
	CompatibleWith []label.Label

	// RequiredFragments lists the buildopts.FragmentType values this rule
	// class's own schema reads (spec.md §4.C step 2: "the intersection of
	// fragments declared by the child rule class with the parent's
	// fragments"). The out-of-scope package loader supplies this as part of
	// the rule class's schema, the same way it supplies Dependencies; a rule
	// class that declares none is projected down to an empty BuildOptions on
	// every incoming edge with no attached transition of its own.
	RequiredFragments []buildopts.FragmentType

	// Dependencies lists the rule class's declared dependency-bearing
	// attributes (spec.md §3 Dependency, §4.D step 6 "enumerate outgoing
	// edges with their kinds"). The attribute schema that identifies which
	// attributes carry labels, and with what edge kind and transition, is a
	// property of the rule class the out-of-scope loader already knows; the
	// core only consumes the result.
	Dependencies []DeclaredDependency
}

// DeclaredDependency is one attribute-level outgoing edge a rule class's
// schema declares (spec.md §3 Dependency: "child Label, requested
// configuration, the kind of edge ..., a list of transition keys").
type DeclaredDependency struct {
	// AttrName is the attribute carrying the child label(s); its value is
	// read via Target.Attr and resolved exactly like any other AttrValue,
	// including through a select() chain — dependency attributes are not a
	// special case of the attribute system, just a convention that their
	// resolved cty.Value is a list of label strings.
	AttrName string

	Kind DependencyKind

	// Transition names the transition to apply for this edge (spec.md
	// §4.C step 1); the empty string means no transition is attached
	// (still routed through the same trim-and-intern algorithm with an
	// identity transition).
	Transition string
}

// DependencyKind classifies an attribute-level dependency edge (spec.md §3:
// "the kind of edge (regular attribute, toolchain, implicit, visibility,
// exec-group tag)").
type DependencyKind string

const (
	DependencyRegular      DependencyKind = "regular"
	DependencyToolchain    DependencyKind = "toolchain"
	DependencyImplicit     DependencyKind = "implicit"
	DependencyVisibility   DependencyKind = "visibility"
	DependencyExecGroupTag DependencyKind = "exec_group_tag"
)

// Attr returns the named attribute and whether it was present.
func (t *Target) Attr(name string) (AttrValue, bool) {
	v, ok := t.Attrs[name]
	return v, ok
}

// Package is the read-only container a group of Targets were parsed from:
// spec.md §3 "Target, Package: created by package loader, immutable
// thereafter, garbage-collected when no reachable configured target depends
// on their package."
type Package struct {
	Name          string
	Repository    string
	BuildFilePath string
	Targets       map[string]*Target
	ContainsErrors bool
}

// TargetNamed returns the Target with the given name in this package, or
// nil plus false if there is none (spec.md §7 NoSuchTarget).
func (p *Package) TargetNamed(name string) (*Target, bool) {
	t, ok := p.Targets[name]
	return t, ok
}

// IsNullAttr reports whether a cty.Value represents "no value set" for an
// optional attribute.
func IsNullAttr(v cty.Value) bool {
	return v == cty.NilVal || v.IsNull()
}
