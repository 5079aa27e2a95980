package toolchains

import (
	"context"
	"sort"
	"strings"

	"github.com/anvilbuild/anvil/internal/buildopts"
	"github.com/anvilbuild/anvil/internal/evalgraph"
	"github.com/anvilbuild/anvil/internal/label"
)

// KindNoMatchingExecutionPlatform marks a failure where no registered
// execution platform satisfies every required toolchain type.
const KindNoMatchingExecutionPlatform evalgraph.Kind = "no_matching_execution_platform"

// ContextKey is the evalgraph.Key for resolving one configured target's
// toolchain requirements (spec.md §6). It is applied against a
// configuration already trimmed by
// transition.NewToolchainTrimmingTransition at the analysis boundary, so
// that two targets differing only in an unrelated fragment share one
// resolution.
type ContextKey struct {
	RequiredTypes     []label.Label
	TargetConstraints map[string]string
	Config            buildopts.ConfigurationKey

	// ForcedExecPlatform restricts resolution to a single execution
	// platform (spec.md §4.D step 3: "if set by the caller, a forced
	// execution platform — used when this target is itself being
	// evaluated as a toolchain for a parent"), instead of picking the
	// first Registry.AvailablePlatforms entry that matches. nil in the
	// ordinary case.
	ForcedExecPlatform *label.Label

	Registry Registry
}

func (k ContextKey) String() string {
	types := make([]string, len(k.RequiredTypes))
	for i, t := range k.RequiredTypes {
		types[i] = t.String()
	}
	sort.Strings(types)
	s := "toolchain_context(" + strings.Join(types, ",") + "|" + constraintsString(k.TargetConstraints) + "|" + k.Config.String()
	if k.ForcedExecPlatform != nil {
		s += "|exec=" + k.ForcedExecPlatform.String()
	}
	return s + ")"
}

// Compute picks the first execution platform (in Registry order) that has a
// matching registration for every required toolchain type, per spec.md §6.
// When ForcedExecPlatform is set, only that platform is considered.
func (k ContextKey) Compute(_ context.Context, _ *evalgraph.Env) evalgraph.Result {
	if len(k.RequiredTypes) == 0 {
		return evalgraph.Done(Context{Toolchains: map[string]label.Label{}})
	}

	candidates := k.Registry.AvailablePlatforms()
	if k.ForcedExecPlatform != nil {
		candidates = filterPlatform(candidates, *k.ForcedExecPlatform)
	}

	for _, exec := range candidates {
		resolved := make(map[string]label.Label, len(k.RequiredTypes))
		matched := true
		for _, tt := range k.RequiredTypes {
			reg, ok := bestMatch(k.Registry.Toolchains(tt), exec, k.TargetConstraints)
			if !ok {
				matched = false
				break
			}
			resolved[tt.String()] = reg.Impl
		}
		if matched {
			return evalgraph.Done(Context{ExecPlatform: exec.Label, Toolchains: resolved})
		}
	}

	names := make([]string, len(k.RequiredTypes))
	for i, t := range k.RequiredTypes {
		names[i] = t.String()
	}
	msg := "no execution platform satisfies required toolchain types: " + strings.Join(names, ", ")
	if k.ForcedExecPlatform != nil {
		msg += " on forced execution platform " + k.ForcedExecPlatform.String()
	}
	return evalgraph.Failed(evalgraph.NewFailure(KindNoMatchingExecutionPlatform, msg, evalgraph.ExitAnalysisFailure, ""))
}

// filterPlatform restricts a platform list to the one matching want, if
// present.
func filterPlatform(platforms []ExecutionPlatform, want label.Label) []ExecutionPlatform {
	for _, p := range platforms {
		if p.Label == want {
			return []ExecutionPlatform{p}
		}
	}
	return nil
}

// bestMatch finds a registration for toolchainType usable from exec and
// compatible with the target's constraints: the registration must name exec
// as its execution platform, and every target constraint it names must
// agree with targetConstraints. The execution platform's own constraint
// values are not consulted.
func bestMatch(regs []Registration, exec ExecutionPlatform, targetConstraints map[string]string) (Registration, bool) {
	for _, reg := range regs {
		if reg.ExecPlatform != exec.Label {
			continue
		}
		if constraintsSatisfy(reg.TargetConstraints, targetConstraints) {
			return reg, true
		}
	}
	return Registration{}, false
}

// constraintsSatisfy reports whether every constraint_setting named in want
// is present in have with the same value. An empty want matches anything
// (spec.md §6: a toolchain declaring no target_compatible_with constraints
// is usable for any target platform).
func constraintsSatisfy(want, have map[string]string) bool {
	for k, v := range want {
		if hv, ok := have[k]; !ok || hv != v {
			return false
		}
	}
	return true
}
