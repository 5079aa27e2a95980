package evalgraph

import "context"

// Env is the compute environment (spec.md §4.B) handed to a Key's Compute
// method for one activation. It is not safe for concurrent use by more than
// one goroutine at a time — a single Compute invocation runs on one
// goroutine, same as every example in spec.md §4.B/§8.
type Env struct {
	g    *Graph
	node *node
	ctx  context.Context

	scratch any

	values      map[string]Value
	failures    map[string]*Failure
	missingKeys []Key
	deps        []depRecord

	events []Event
}

func newEnv(ctx context.Context, g *Graph, n *node, scratch any) *Env {
	return &Env{
		g:        g,
		node:     n,
		ctx:      ctx,
		scratch:  scratch,
		values:   make(map[string]Value),
		failures: make(map[string]*Failure),
	}
}

// GetValue reads a single dependency. ok is false both when the dependency
// is not yet available (restart required) and when it failed (the Failure
// is retrievable via GetFailure); callers that need to distinguish those two
// cases should check ValuesMissing() and GetFailure together.
func (e *Env) GetValue(k Key) (Value, bool) {
	ks := k.String()
	if v, ok := e.values[ks]; ok {
		return v, e.failures[ks] == nil
	}

	// A dependency that is already one of this activation's own ancestors
	// closes a cycle right here: there is no point spawning a goroutine to
	// wait for it (it is, by construction, waiting on us). Detecting this
	// before ever entering the dependency — rather than discovering it only
	// once something downstream tries to recurse into it — is what lets the
	// cycle resolve without the ancestor node ever needing to reach a done
	// state of its own (spec.md §4.A / §9).
	if participants, found := cycleParticipants(stackFrom(e.ctx), ks); found {
		f := CycleFailure(participants)
		e.failures[ks] = f
		return nil, false
	}

	n := e.g.getOrCreateNode(k)
	n.mu.Lock()
	state, val, fail := n.state, n.value, n.failure
	n.mu.Unlock()

	if state == stateDone {
		e.values[ks] = val
		e.deps = append(e.deps, depRecord{key: k, value: val})
		if fail != nil {
			e.failures[ks] = fail
			return nil, false
		}
		return val, true
	}

	e.missingKeys = append(e.missingKeys, k)
	return nil, false
}

// GetValues reads several dependencies at once, returning the values present
// so far (keyed by Key.String()) and whether every one of them was present.
func (e *Env) GetValues(keys ...Key) (map[string]Value, bool) {
	out := make(map[string]Value, len(keys))
	allPresent := true
	for _, k := range keys {
		v, ok := e.GetValue(k)
		if ok {
			out[k.String()] = v
		} else {
			allPresent = false
		}
	}
	return out, allPresent
}

// GetValuesOrThrow behaves like GetValues but additionally tags any failures
// observed with exceptionKind, mirroring spec.md §4.B's note that some
// callers model dependency failures as typed exceptions rather than null
// reads; the tagged failure is available via GetFailure.
func (e *Env) GetValuesOrThrow(exceptionKind Kind, keys ...Key) (map[string]Value, bool) {
	values, ok := e.GetValues(keys...)
	for _, k := range keys {
		if f := e.failures[k.String()]; f != nil && f.Kind != exceptionKind {
			tagged := *f
			tagged.Kind = exceptionKind
			e.failures[k.String()] = &tagged
		}
	}
	return values, ok
}

// GetFailure returns the Failure recorded for a previously-read dependency,
// if it failed.
func (e *Env) GetFailure(k Key) (*Failure, bool) {
	f, ok := e.failures[k.String()]
	return f, ok
}

// ValuesMissing reports whether any GetValue/GetValues call so far in this
// activation found a dependency not yet available. Compute methods must
// check this after reading dependencies and return Pending() if true.
func (e *Env) ValuesMissing() bool {
	return len(e.missingKeys) > 0
}

// GetState returns the node's scratch slot, constructing it with factory on
// first use within this version (spec.md §4.B). The returned value persists
// across restarts until the activation completes cleanly.
func (e *Env) GetState(factory func() any) any {
	if e.scratch == nil {
		e.scratch = factory()
	}
	return e.scratch
}

// SetState explicitly replaces the scratch slot.
func (e *Env) SetState(v any) { e.scratch = v }

// Emit buffers a diagnostic event on the node; buffered events, including
// those from activations that ended in a restart, are flushed to the
// Graph's Sink once the node completes cleanly (spec.md §4.B).
func (e *Env) Emit(level EventLevel, message string) {
	e.events = append(e.events, Event{Level: level, Message: message, Source: e.node.key.String()})
}

// Context returns the evaluation context, carrying cancellation and the
// cycle-detection request stack.
func (e *Env) Context() context.Context { return e.ctx }

