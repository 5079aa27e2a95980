package analysis

import "github.com/anvilbuild/anvil/internal/evalgraph"

// Failure kinds this function can raise, beyond the graph-level KindCycle /
// KindDependencyFailed / KindInterrupted reserved by internal/evalgraph
// (spec.md §4.D "Failure catalog for this function").
const (
	KindLoadingFailed              evalgraph.Kind = "loading_failed"
	KindConfigConditionsFailed     evalgraph.Kind = "config_conditions_failed"
	KindDependencyEvaluationFailed evalgraph.Kind = "dependency_evaluation_failed"
	KindToolchainResolutionFailed  evalgraph.Kind = "toolchain_resolution_failed"
	KindAspectCreationFailed       evalgraph.Kind = "aspect_creation_failed"
	KindActionConflict             evalgraph.Kind = "action_conflict"
	KindDuplicateProvider          evalgraph.Kind = "duplicate_provider"
	KindRuleImplementationFailed   evalgraph.Kind = "rule_implementation_failed"
)

// newLoadingFailure wraps a failed package load (spec.md §7 NoSuchPackage /
// "LoadingFailure's exit code").
func newLoadingFailure(packageKey, detail string) *evalgraph.Failure {
	return evalgraph.NewFailure(KindLoadingFailed, "loading "+packageKey+": "+detail, evalgraph.ExitLoadingFailure, packageKey)
}

// newConfigConditionsFailure reports a select() key whose configured target
// did not expose ConfigMatchingProviderID (spec.md §7 ConfigConditionsFailed).
func newConfigConditionsFailure(conditionLabel, detail string) *evalgraph.Failure {
	return evalgraph.NewFailure(KindConfigConditionsFailed, "config condition "+conditionLabel+": "+detail, evalgraph.ExitAnalysisFailure, conditionLabel)
}

// newDependencyEvaluationFailure wraps a failed child dependency, matching
// spec.md §7's "merge into root-cause set, continue for more causes" policy
// via evalgraph.Merge upstream of this constructor. A child that failed
// because of a dependency cycle keeps evalgraph.KindCycle, so a cycle is
// reported as a cycle at every level above it.
func newDependencyEvaluationFailure(childLabel string, cause *evalgraph.Failure) *evalgraph.Failure {
	propagated := evalgraph.Propagate(cause)
	if cause.Kind == evalgraph.KindCycle {
		propagated.Kind = evalgraph.KindCycle
		return propagated
	}
	propagated.Kind = KindDependencyEvaluationFailed
	return propagated
}

// newAspectCreationFailure reports an aspect application or provider-merge
// failure surfaced by internal/aspect (spec.md §7 AspectCreationFailed).
func newAspectCreationFailure(detail, selfCause string) *evalgraph.Failure {
	return evalgraph.NewFailure(KindAspectCreationFailed, detail, evalgraph.ExitAnalysisFailure, selfCause)
}

// newActionConflictFailure reports two actions claiming the same output
// (spec.md §7 ActionConflict).
func newActionConflictFailure(selfLabel, output string) *evalgraph.Failure {
	return evalgraph.NewFailure(KindActionConflict, "action conflict on output "+output, evalgraph.ExitAnalysisFailure, selfLabel)
}

// newDuplicateProviderFailure reports a rule (or an aspect merge) producing
// the same provider id twice (spec.md §7 DuplicateProvider).
func newDuplicateProviderFailure(selfLabel, providerID string) *evalgraph.Failure {
	return evalgraph.NewFailure(KindDuplicateProvider, "duplicate provider "+providerID, evalgraph.ExitAnalysisFailure, selfLabel)
}

// newRuleFailure wraps a generic rule-implementation error — this is the
// catch-all ConfiguredValueCreationFailed case. Of the specifically-typed
// outcomes of spec.md §4.D step 10, only an action conflict has its own
// Kind above; an invalid exec group is reported through this constructor,
// and analysis-failure propagation re-exports the dependency's failure via
// evalgraph.Propagate.
func newRuleFailure(selfLabel, detail string) *evalgraph.Failure {
	return evalgraph.NewFailure(KindRuleImplementationFailed, detail, evalgraph.ExitAnalysisFailure, selfLabel)
}
