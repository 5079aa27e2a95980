package analysis

import (
	"context"
	"errors"

	"github.com/anvilbuild/anvil/internal/buildopts"
	"github.com/anvilbuild/anvil/internal/evalgraph"
	"github.com/anvilbuild/anvil/internal/label"
	"github.com/anvilbuild/anvil/internal/providerset"
	"github.com/anvilbuild/anvil/internal/target"
	"github.com/anvilbuild/anvil/internal/toolchains"
)

// ConfigMatchingProviderID is the well-known provider a ConfigCondition's
// configured target must expose (spec.md §3 ConfigCondition: "answers
// 'does this target's configuration match me?' via a provider interface").
// Its value is a plain cty.Bool (cty.True / cty.False) rather than a
// wrapped struct, so stage 4 can read it the same uniform way it reads
// every other provider.
const ConfigMatchingProviderID providerset.ID = "ConfigMatchingProvider"

// ErrMissingDep is the sentinel a RuleImplementation returns to signal that
// it tried to read a graph value mid-analysis that was not yet available
// (spec.md §4.D step 10: "Missing dep exception: return null (restart)").
// Analyze receives no *evalgraph.Env, so dependency resolution happens in
// the earlier stages; returning ErrMissingDep makes the enclosing
// ConfiguredTargetKey activation end as Pending so it runs again.
var ErrMissingDep = errors.New("analysis: rule implementation is missing a dependency")

// ActionConflictError reports that two actions registered by this rule's
// implementation collide on the same output (spec.md §4.D step 10, §7
// ActionConflict).
type ActionConflictError struct {
	Output string
}

func (e *ActionConflictError) Error() string {
	return "action conflict on output " + e.Output
}

// InvalidExecGroupError reports that the rule implementation referenced an
// exec group that was never resolved in the toolchain-context stage.
type InvalidExecGroupError struct {
	ExecGroup string
}

func (e *InvalidExecGroupError) Error() string {
	return "invalid exec group: " + e.ExecGroup
}

// AnalysisFailurePropagationError lets a rule implementation report that a
// dependency it inspected carried an analysis-time failure it wants
// propagated verbatim rather than wrapped (spec.md §6 "Rule implementation
// capability ... may throw ... AnalysisFailurePropagation").
type AnalysisFailurePropagationError struct {
	Failure *evalgraph.Failure
}

func (e *AnalysisFailurePropagationError) Error() string {
	if e.Failure == nil || e.Failure.Message == "" {
		return "analysis failure propagated from a dependency"
	}
	return e.Failure.Message
}

// RegisteredAction is an opaque build action a rule implementation
// produced; spec.md §1 explicitly places action *execution* out of scope,
// so this core only needs enough structure to detect conflicts (two actions
// claiming the same output) and to hand the list back to the out-of-scope
// execution engine untouched.
type RegisteredAction struct {
	Mnemonic string
	Outputs  []string
	Inputs   []string

	// Opaque carries whatever action-specific payload (argv, env,
	// sandboxing hints) the rule implementation produced; this core never
	// interprets it.
	Opaque any
}

// AnalysisEnvironment is the buffered event sink and action registrar
// passed into a rule implementation (spec.md §4.D step 10: "Build an
// AnalysisEnvironment (a buffered event sink + action registrar)").
// Registered actions and emitted events are collected here rather than
// written directly to the graph's Sink, so that a rule implementation which
// ultimately fails (step 10's "error events without an exception" case)
// does not leave partial, unreported side effects visible to callers.
type AnalysisEnvironment struct {
	events  []RuleEvent
	actions []RegisteredAction

	conflicts map[string]bool
}

// NewAnalysisEnvironment constructs an empty AnalysisEnvironment for one
// rule-implementation invocation.
func NewAnalysisEnvironment() *AnalysisEnvironment {
	return &AnalysisEnvironment{conflicts: make(map[string]bool)}
}

// RuleEvent is a diagnostic emitted by a rule implementation, independent
// of evalgraph.Event because a rule's events are scoped to one analysis
// invocation and only promoted to evalgraph events (via env.Emit) once the
// enclosing ConfiguredTargetKey decides the invocation succeeded.
type RuleEvent struct {
	Error   bool
	Message string
}

// Emit records a diagnostic. Error-level events with no accompanying Go
// error still fail the analysis (spec.md §4.D step 10: "Error events
// without an exception: collect them into root causes and fail").
func (e *AnalysisEnvironment) Emit(isError bool, message string) {
	e.events = append(e.events, RuleEvent{Error: isError, Message: message})
}

// RegisterAction records an action, returning an *ActionConflictError if any
// of its outputs were already claimed by a previously registered action in
// this same invocation.
func (e *AnalysisEnvironment) RegisterAction(a RegisteredAction) error {
	for _, out := range a.Outputs {
		if e.conflicts[out] {
			return &ActionConflictError{Output: out}
		}
	}
	for _, out := range a.Outputs {
		e.conflicts[out] = true
	}
	e.actions = append(e.actions, a)
	return nil
}

// Events returns every diagnostic emitted so far.
func (e *AnalysisEnvironment) Events() []RuleEvent { return e.events }

// Actions returns every action registered so far.
func (e *AnalysisEnvironment) Actions() []RegisteredAction { return e.actions }

// ErrorEvents returns the emitted events that are error-level, in emission
// order.
func (e *AnalysisEnvironment) ErrorEvents() []RuleEvent {
	var out []RuleEvent
	for _, ev := range e.events {
		if ev.Error {
			out = append(out, ev)
		}
	}
	return out
}

// RuleInput is the pack handed to a rule implementation (spec.md §4.D step
// 10: "(target, configuration, depValueMap, configConditions,
// toolchainContexts, execGroupBindings)").
type RuleInput struct {
	Target            *target.Target
	Configuration     buildopts.BuildOptions
	DependencyValues  map[string][]ConfiguredTarget // attribute name -> resolved dep values, in declared order
	ConfigConditions  map[string]ConfigCondition    // condition label string -> result
	ToolchainContexts map[string]toolchains.Context // exec group name -> resolved context
}

// RuleOutput is what a successful rule implementation invocation produces.
type RuleOutput struct {
	Providers providerset.Set

	// DuplicateProvider is set (by providerset.Builder.Build) when the rule
	// implementation contributed the same provider ID twice while
	// assembling Providers (spec.md §7 DuplicateProvider).
	DuplicateProvider providerset.ID

	// AliasRedirect is set by an alias rule's implementation to name the
	// label this target actually forwards to (spec.md §4.D step 7's
	// two-pass alias handling).
	AliasRedirect *label.Label
}

// RuleImplementation is the opaque capability this core invokes rule
// factories through (spec.md §1 Non-goals: "the embedded scripting language
// and its rule-implementation runtime" is out of scope; this interface is
// the boundary). internal/analysis/ruletest hosts a real
// go.starlark.net-backed implementation for integration tests.
type RuleImplementation interface {
	Analyze(ctx context.Context, renv *AnalysisEnvironment, input RuleInput) (*RuleOutput, error)
}

// RuleRegistry resolves a target's rule class name to the capability that
// analyzes it — analogous to internal/toolchains.Registry and
// PackageLoader, an injected external collaborator.
type RuleRegistry interface {
	Lookup(ruleClass string) (RuleImplementation, bool)
}
