// Package toolchains implements spec.md §6's toolchain resolution: matching
// a configured target's required toolchain types against registered
// toolchains and execution platforms to produce a ToolchainContext.
package toolchains

import (
	"sort"
	"strings"

	"github.com/anvilbuild/anvil/internal/label"
)

// ExecutionPlatform is a candidate machine an action can run on, described
// by the constraint values it satisfies.
type ExecutionPlatform struct {
	Label       label.Label
	Constraints map[string]string // constraint_setting label string -> constraint_value label string
}

// Registration is one `toolchain()` declaration: an implementation available
// for a toolchain type, usable from a given execution platform, targeting a
// given set of target-platform constraints.
type Registration struct {
	ToolchainType  label.Label
	ExecPlatform   label.Label
	TargetConstraints map[string]string
	Impl           label.Label
}

// Registry is the collaborator interface this package depends on for the
// universe of registered toolchains and execution platforms — analogous to
// internal/analysis's PackageLoader, this is intentionally injected rather
// than hardcoded so tests (and, eventually, a real loader-backed
// implementation) can supply it.
type Registry interface {
	// AvailablePlatforms returns registered execution platforms in
	// preference order (spec.md §6: "the first execution platform
	// satisfying every required toolchain type wins").
	AvailablePlatforms() []ExecutionPlatform
	// Toolchains returns every registration for the given toolchain type.
	Toolchains(toolchainType label.Label) []Registration
}

// Context is the resolved outcome for one configured target's toolchain
// requirements: a chosen execution platform plus one resolved implementation
// label per required toolchain type.
type Context struct {
	ExecPlatform label.Label
	Toolchains   map[string]label.Label // toolchain type string -> resolved impl
}

// Toolchain looks up the resolved implementation for a toolchain type, for
// rule implementations to consume (spec.md §6: "rule implementations read
// resolved toolchains by type, not by which execution platform won").
func (c Context) Toolchain(toolchainType label.Label) (label.Label, bool) {
	impl, ok := c.Toolchains[toolchainType.String()]
	return impl, ok
}

// EqualValue implements the optional equality hook internal/evalgraph's
// early-cutoff check uses, so that re-resolving to an identical Context
// after an unrelated invalidation does not dirty every configured target
// that reads it.
func (c Context) EqualValue(other any) bool {
	o, ok := other.(Context)
	if !ok {
		return false
	}
	if c.ExecPlatform != o.ExecPlatform || len(c.Toolchains) != len(o.Toolchains) {
		return false
	}
	for k, v := range c.Toolchains {
		if ov, ok := o.Toolchains[k]; !ok || ov != v {
			return false
		}
	}
	return true
}

func sortedConstraintKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func constraintsString(m map[string]string) string {
	var b strings.Builder
	for _, k := range sortedConstraintKeys(m) {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(m[k])
		b.WriteByte(';')
	}
	return b.String()
}
