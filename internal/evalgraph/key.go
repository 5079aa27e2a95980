// Package evalgraph implements the incremental evaluation graph and compute
// environment described in spec.md §4.A/§4.B: a memoizing, restart-driven
// graph of keyed computations where a function that finds a dependency
// missing returns early instead of blocking, and is re-invoked once that
// dependency resolves.
//
// This is deliberately NOT modeled as futures or async tasks (spec.md §9):
// a Key's Compute method is a plain function that returns a Result: either a
// finished value/failure, or a signal that it is waiting on further
// dependencies. The graph supplies the suspend/resume machinery; computations
// stay synchronous, restartable functions.
package evalgraph

import "context"

// Value is the untyped payload a node holds once computed. Callers downcast
// it to whatever concrete type their Key's Compute function is known to
// produce (label.Label-style external typing discipline keeps this safe in
// practice, same as spec.md's use of homogeneous per-key-type values).
type Value = any

// Key identifies one node of the evaluation graph and knows how to compute
// its own value. Every collaborator key type in this module —
// analysis.ConfiguredTargetKey, analysis.PackageKey, toolchains.ContextKey,
// and aspect.Key — implements this interface.
//
// Compute is called at least once per graph version a node is (re)built for,
// and possibly several times within that version: if it returns a Result
// with Missing set, the graph computes whatever dependencies env last
// reported absent and calls Compute again, carrying forward whatever scratch
// state the function asked the environment to remember (spec.md §4.B).
type Key interface {
	// String uniquely identifies this key across the whole graph; it is
	// used as the node table's lookup key and appears in cycle reports and
	// debug dumps, so it should be compact and stable.
	String() string

	// Compute evaluates this key's value, given an Environment scoped to
	// the node currently being computed. Compute MUST check
	// env.ValuesMissing() after reading dependencies and return a Missing
	// Result immediately if it is true, without attempting further work
	// that depends on the missing values.
	Compute(ctx context.Context, env *Env) Result
}
