package evalgraph

// Result is what a Key's Compute method returns on each invocation.
//
// A clean completion (Missing == false) ends the node's activation for the
// current graph version: Value and Failure (at most one meaningful) are
// recorded, and any buffered events are flushed. A Missing result tells the
// graph that this activation read at least one dependency that was not yet
// available; the graph will compute those dependencies and call Compute
// again with the same node's scratch state intact. Value and Failure are
// ignored when Missing is true.
type Result struct {
	Value   Value
	Failure *Failure
	Missing bool
}

// Done constructs a successful, clean-completion Result.
func Done(v Value) Result { return Result{Value: v} }

// Failed constructs a clean-completion Result carrying a Failure.
func Failed(f *Failure) Result { return Result{Failure: f} }

// Pending constructs a Result signaling that the activation must restart
// once its missing dependencies resolve. Compute functions normally arrive
// at this by calling env.ValuesMissing() rather than constructing it
// directly, but it is exposed for computations with unusual control flow.
func Pending() Result { return Result{Missing: true} }
