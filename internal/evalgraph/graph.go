package evalgraph

import (
	"context"
	"log"
	"reflect"
	"runtime"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/anvilbuild/anvil/internal/collections"
)

// Options configures a Graph.
type Options struct {
	// Workers bounds concurrent Compute activations (spec.md §5). Defaults
	// to runtime.NumCPU() if zero or negative.
	Workers int
	// Sink receives events flushed on clean node completions. Defaults to a
	// discarding Sink.
	Sink Sink
	// Logger receives internal tracing, in the teacher's [TRACE] style.
	// Defaults to log.Default().
	Logger *log.Logger
}

// Graph is the incremental evaluation graph of spec.md §4.A: a memoizing,
// restart-driven map from Key to Value that supports invalidation and
// recomputation with early cutoff.
type Graph struct {
	nodes *collections.StripedMap[string, *node]
	sf    singleflight.Group
	sem   *cpuSemaphore
	sink  Sink
	log   *log.Logger

	version int64 // atomic

	rdepsMu sync.Mutex // guards node.rdeps map mutation across the whole graph
}

// New constructs a Graph ready to serve requests.
func New(opts Options) *Graph {
	workers := opts.Workers
	if workers < 1 {
		workers = runtime.NumCPU()
	}
	sink := opts.Sink
	if sink == nil {
		sink = discardSink{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Graph{
		nodes:   collections.NewStripedMap[string, *node](16, stringHash),
		sem:     newCPUSemaphore(workers, logger),
		sink:    sink,
		log:     logger,
		version: 1,
	}
}

func (g *Graph) currentVersion() int64 { return atomic.LoadInt64(&g.version) }

func (g *Graph) getOrCreateNode(k Key) *node {
	return g.nodes.GetOrCreate(k.String(), func() *node {
		return &node{key: k, state: stateNotStarted}
	})
}

// nodeOutcome is the result shared by singleflight.Do across concurrent
// callers requesting the same key.
type nodeOutcome struct {
	Value   Value
	Failure *Failure
}

// Request evaluates k to completion, blocking the caller's goroutine (this
// is the only place in the package real blocking happens on behalf of an
// external caller; internal dependency waits block only the goroutine that
// is restarting a specific node, per spec.md §4.A/§9).
func (g *Graph) Request(ctx context.Context, k Key) (Value, *Failure) {
	return g.computeNode(context.WithValue(ctx, stackKey{}, (*requestStack)(nil)), k)
}

func (g *Graph) computeNode(ctx context.Context, k Key) (Value, *Failure) {
	ks := k.String()

	nextCtx, participants, cyclic := pushStack(ctx, ks)
	if cyclic {
		return nil, CycleFailure(participants)
	}

	outcome, _, _ := g.sf.Do(ks, func() (any, error) {
		n := g.getOrCreateNode(k)
		return g.runActivations(nextCtx, n), nil
	})
	o := outcome.(nodeOutcome)
	return o.Value, o.Failure
}

// runActivations drives one node through however many Compute invocations it
// takes to reach a clean completion for the current graph version,
// including the dirty-recompute early-cutoff check when the node was marked
// dirty by Invalidate.
func (g *Graph) runActivations(ctx context.Context, n *node) nodeOutcome {
	version := g.currentVersion()

	n.mu.Lock()
	// A node's state, not the graph-wide version counter, is what gates
	// freshness: Invalidate is the only thing that moves a node out of
	// stateDone, so a node nobody invalidated (directly or transitively)
	// stays valid across version bumps that never touch it — recomputing
	// untouched nodes on every Invalidate would defeat incrementality
	// entirely.
	if n.state == stateDone {
		out := nodeOutcome{n.value, n.failure}
		n.mu.Unlock()
		return out
	}
	wasDirty := n.state == stateDirty
	forceRecompute := n.forceRecompute
	scratch := n.scratch
	n.state = stateRunning
	n.forceRecompute = false
	n.mu.Unlock()

	if wasDirty && !forceRecompute {
		if g.depsUnchanged(ctx, n) {
			n.mu.Lock()
			n.state = stateDone
			n.version = version
			out := nodeOutcome{n.value, n.failure}
			n.mu.Unlock()
			return out
		}
	}
	if wasDirty {
		scratch = nil
		n.mu.Lock()
		n.eventsBuffered = nil
		n.mu.Unlock()
	}

	for {
		if err := g.sem.acquire(ctx); err != nil {
			return nodeOutcome{nil, NewFailure(KindInterrupted, err.Error(), ExitInterrupted, n.key.String())}
		}
		env := newEnv(ctx, g, n, scratch)
		result := n.key.Compute(ctx, env)
		g.sem.release()
		scratch = env.scratch

		if result.Missing {
			n.mu.Lock()
			n.scratch = scratch
			n.eventsBuffered = append(n.eventsBuffered, env.events...)
			n.mu.Unlock()

			g.waitForMissing(ctx, env.missingKeys)
			continue
		}

		return g.finishClean(n, version, result, env)
	}
}

// waitForMissing resolves every key an activation reported missing, fanning
// out across goroutines bounded only by the CPU semaphore each recursive
// computeNode call acquires on its own. The calling goroutine holds no
// semaphore permit while waiting, matching spec.md §5's "released before any
// operation that waits on something other than CPU work."
func (g *Graph) waitForMissing(ctx context.Context, missing []Key) {
	if len(missing) == 0 {
		return
	}
	var wg sync.WaitGroup
	wg.Add(len(missing))
	for _, k := range missing {
		go func(k Key) {
			defer wg.Done()
			g.computeNode(ctx, k)
		}(k)
	}
	wg.Wait()
}

func (g *Graph) finishClean(n *node, version int64, result Result, env *Env) nodeOutcome {
	allEvents := append(n.eventsBuffered, env.events...)

	n.mu.Lock()
	n.state = stateDone
	n.value = result.Value
	n.failure = result.Failure
	n.version = version
	n.deps = env.deps
	n.scratch = nil
	n.eventsBuffered = nil
	n.mu.Unlock()

	g.updateRdeps(n, env.deps)
	for _, e := range allEvents {
		g.sink.Handle(e)
	}

	return nodeOutcome{result.Value, result.Failure}
}

func (g *Graph) updateRdeps(n *node, deps []depRecord) {
	if len(deps) == 0 {
		return
	}
	g.rdepsMu.Lock()
	defer g.rdepsMu.Unlock()
	for _, d := range deps {
		dn := g.getOrCreateNode(d.key)
		if dn.rdeps == nil {
			dn.rdeps = make(map[string]*node)
		}
		dn.rdeps[n.key.String()] = n
	}
}

// depsUnchanged re-validates a dirty node's recorded dependencies for the
// current version, recursing into each one (so transitively dirty
// dependencies are themselves brought up to date first), and reports
// whether every one of them still holds the value it held when this node
// last read it (spec.md §4.A's early cutoff).
func (g *Graph) depsUnchanged(ctx context.Context, n *node) bool {
	n.mu.Lock()
	deps := n.deps
	n.mu.Unlock()

	for _, d := range deps {
		v, f := g.computeNode(ctx, d.key)
		if f != nil || !valuesEqual(v, d.value) {
			return false
		}
	}
	return true
}

// Invalidate marks every node reachable via reverse-dependency edges from
// keys dirty, bumping the graph version once. A subsequent Request for any
// affected node (or one of its ancestors) will re-run the early-cutoff check
// before actually recomputing anything (spec.md §4.A). Invalidating an empty
// set is a no-op: no version bump, no node touched, so every cached value
// compares as the identical instance afterward (spec.md §8, scenario S6).
func (g *Graph) Invalidate(keys []Key) {
	if len(keys) == 0 {
		return
	}
	atomic.AddInt64(&g.version, 1)

	type entry struct {
		n      *node
		direct bool
	}

	seen := make(map[string]bool)
	queue := make([]entry, 0, len(keys))
	for _, k := range keys {
		if n, ok := g.nodes.Get(k.String()); ok {
			queue = append(queue, entry{n: n, direct: true})
		}
	}

	for len(queue) > 0 {
		e := queue[0]
		queue = queue[1:]
		ks := e.n.key.String()
		if seen[ks] {
			continue
		}
		seen[ks] = true

		e.n.mu.Lock()
		if e.n.state == stateDone || e.n.state == stateDirty {
			e.n.state = stateDirty
			if e.direct {
				e.n.forceRecompute = true
			}
		}
		rdeps := make([]*node, 0, len(e.n.rdeps))
		for _, rn := range e.n.rdeps {
			rdeps = append(rdeps, rn)
		}
		e.n.mu.Unlock()

		for _, rn := range rdeps {
			queue = append(queue, entry{n: rn, direct: false})
		}
	}
}

func valuesEqual(a, b Value) bool {
	if ae, ok := a.(interface{ EqualValue(Value) bool }); ok {
		return ae.EqualValue(b)
	}
	return reflect.DeepEqual(a, b)
}

func stringHash(s string) uint64 {
	var h uint64 = 14695981039346656037
	for i := 0; i < len(s); i++ {
		h ^= uint64(s[i])
		h *= 1099511628211
	}
	return h
}
