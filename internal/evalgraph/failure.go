package evalgraph

import (
	"sort"
	"strings"

	"github.com/hashicorp/go-multierror"

	"github.com/anvilbuild/anvil/internal/collections"
)

// Kind closes the enum of ways a node's computation can fail (spec.md §7:
// "failures form a closed set of kinds, not an open string"). Component D
// (internal/analysis) defines the concrete catalog of kinds it can produce;
// this package only reserves the handful that the graph itself can raise.
type Kind string

const (
	// KindCycle marks a failure synthesized by the graph's own cycle
	// detector (spec.md §4.A / §9), never by a Key's own Compute method.
	KindCycle Kind = "cycle"

	// KindDependencyFailed marks a failure a node picked up purely because
	// a dependency it read also failed, with no additional diagnosis of
	// its own to add (spec.md §7: "a node with no error of its own
	// re-exports the dependency's failure unchanged").
	KindDependencyFailed Kind = "dependency_failed"

	// KindInterrupted marks a failure raised because the evaluation's
	// context was canceled mid-computation.
	KindInterrupted Kind = "interrupted"
)

// ExitCode ranks failures by severity for spec.md §7's "the reported exit
// code is the maximum-severity cause across the whole evaluation, with ties
// broken by which failure was recorded first." Higher values are more
// severe; ExitSuccess is the zero value so a never-failed evaluation
// compares below every real failure.
type ExitCode int

const (
	ExitSuccess ExitCode = iota
	ExitDependencyFailure
	ExitAnalysisFailure
	ExitLoadingFailure
	ExitCycleFailure
	ExitInterrupted
)

// Failure is the node-level error type propagated through the graph
// (spec.md §7). RootCauses collects the leaf keys ultimately responsible,
// deduplicated and order-preserving via a NestedSet so that aggregating the
// same root cause through many paths costs no more than one entry.
type Failure struct {
	Kind       Kind
	Message    string
	ExitCode   ExitCode
	RootCauses *collections.NestedSet[string]

	// Reported marks a failure whose message has already been surfaced to
	// the user (directly or as part of an ancestor's diagnostics). A
	// re-exported dependency failure (KindDependencyFailed with an empty
	// Message) is always Reported, matching spec.md §7's "do not print the
	// same underlying cause twice just because it was observed through two
	// paths."
	Reported bool
}

// NewFailure builds a Failure whose only root cause is itself.
func NewFailure(kind Kind, message string, exitCode ExitCode, selfCause string) *Failure {
	b := collections.NewNestedSetBuilder[string]()
	if selfCause != "" {
		b.Add(selfCause)
	}
	return &Failure{
		Kind:       kind,
		Message:    message,
		ExitCode:   exitCode,
		RootCauses: b.Build(),
		Reported:   message == "",
	}
}

// Propagate wraps a dependency's Failure for re-export by a node with no
// diagnosis to add of its own, per spec.md §7.
func Propagate(dep *Failure) *Failure {
	return &Failure{
		Kind:       KindDependencyFailed,
		ExitCode:   dep.ExitCode,
		RootCauses: dep.RootCauses,
		Reported:   true,
	}
}

// CycleFailure builds the Failure the graph's own cycle detector raises
// (spec.md §4.A / §9), naming every key on the cycle.
func CycleFailure(participants []string) *Failure {
	b := collections.NewNestedSetBuilder[string]()
	for _, p := range participants {
		b.Add(p)
	}
	return &Failure{
		Kind:       KindCycle,
		Message:    "dependency cycle: " + strings.Join(participants, " -> "),
		ExitCode:   ExitCycleFailure,
		RootCauses: b.Build(),
	}
}

// Merge aggregates several Failures into one, used where a node depends on
// multiple keys that each failed independently (spec.md §7 "aggregate into
// the list of causes" option). The merged Failure's ExitCode is the maximum
// severity across inputs, tie-broken by order of appearance; its Message
// concatenates the unreported inputs' messages via go-multierror so a single
// top-level diagnostic lists every distinct underlying problem.
func Merge(failures []*Failure) *Failure {
	if len(failures) == 0 {
		return nil
	}
	if len(failures) == 1 {
		return failures[0]
	}

	causes := collections.NewNestedSetBuilder[string]()
	var merr *multierror.Error
	best := failures[0]
	for _, f := range failures {
		causes.AddNested(f.RootCauses)
		if f.ExitCode > best.ExitCode {
			best = f
		}
		if !f.Reported && f.Message != "" {
			merr = multierror.Append(merr, errorString(f.Message))
		}
	}

	msg := ""
	if merr != nil {
		merr.ErrorFormat = listErrorFormat
		msg = merr.Error()
	}

	return &Failure{
		Kind:       best.Kind,
		Message:    msg,
		ExitCode:   best.ExitCode,
		RootCauses: causes.Build(),
		Reported:   msg == "",
	}
}

type errorString string

func (e errorString) Error() string { return string(e) }

func listErrorFormat(errs []error) string {
	if len(errs) == 1 {
		return errs[0].Error()
	}
	msgs := make([]string, 0, len(errs))
	for _, e := range errs {
		msgs = append(msgs, e.Error())
	}
	sort.Strings(msgs)
	return strings.Join(msgs, "; ")
}
