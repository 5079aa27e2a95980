package evalgraph

import "sync"

type nodeState int

const (
	stateNotStarted nodeState = iota
	stateRunning
	stateDone
	stateDirty
)

func (s nodeState) String() string {
	switch s {
	case stateNotStarted:
		return "not_started"
	case stateRunning:
		return "running"
	case stateDone:
		return "done"
	case stateDirty:
		return "dirty"
	default:
		return "unknown"
	}
}

// depRecord is one entry of a node's recorded dependency list: which key it
// read, and what value that key held at the time, kept so a later dirty
// pass can decide whether anything actually changed (spec.md §4.A's early
// cutoff: "a node whose direct dependencies were re-evaluated but produced
// identical values is not itself recomputed").
type depRecord struct {
	key   Key
	value Value
}

// node is one entry of the evaluation graph. Its mutex guards only direct
// field reads/writes; the actual serialization of "one activation pass at a
// time for this key" is provided by Graph.sf (a singleflight.Group), which
// is free to keep a caller parked across an activation's internal restarts
// and dependency waits without holding node.mu the whole time — matching
// spec.md §4.A's "a per-node lock is held for the duration of a single
// activation, never across a suspension," just implemented via singleflight
// rather than a bespoke lock so that node.mu can stay a plain, short-held
// field guard.
type node struct {
	mu sync.Mutex

	key     Key
	state   nodeState
	value   Value
	failure *Failure

	// version is the graph version this node's value/failure is valid for.
	version int64

	deps  []depRecord
	rdeps map[string]*node

	// forceRecompute marks a node that was named directly in an Invalidate
	// call, as opposed to one only reached transitively through rdeps: a
	// directly-invalidated node (typically a source/leaf with no recorded
	// dependencies of its own to re-validate) must always recompute, while a
	// transitively-dirty node first gets the early-cutoff chance to prove
	// its dependencies did not actually change.
	forceRecompute bool

	// scratch persists a computation's in-progress state across restarts
	// within one version (spec.md §4.B's getState/scratch slot); it is
	// cleared on every clean completion and whenever a dirty node is found
	// to need actual recomputation.
	scratch any

	// eventsBuffered accumulates Events across restarts of the current
	// version's activation; flushed to the Sink only on clean completion.
	eventsBuffered []Event
}
