// Package eventtest provides a harness for exercising the restart protocol's
// event-replay guarantee directly: a computation that emits events and is
// then forced to restart (by having one declared dependency appear missing
// on its first pass) must have those events flushed exactly once, on the
// eventual clean completion, never on the aborted pass.
package eventtest

import (
	"context"
	"sync"

	"github.com/anvilbuild/anvil/internal/evalgraph"
)

// RecordingSink is an evalgraph.Sink that remembers every event handed to
// it, safe for concurrent use.
type RecordingSink struct {
	mu     sync.Mutex
	events []evalgraph.Event
}

func (s *RecordingSink) Handle(e evalgraph.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

// Events returns a snapshot of everything recorded so far.
func (s *RecordingSink) Events() []evalgraph.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]evalgraph.Event, len(s.events))
	copy(out, s.events)
	return out
}

// simpleKey is a minimal evalgraph.Key whose Compute simply returns a fixed
// value, used as the dependency a restarting key waits on.
type simpleKey struct {
	name string
	val  evalgraph.Value
}

func (k simpleKey) String() string { return k.name }

func (k simpleKey) Compute(_ context.Context, _ *evalgraph.Env) evalgraph.Result {
	return evalgraph.Done(k.val)
}

// ForcedRestartKey is an evalgraph.Key that emits one Event per invocation
// and, on its first invocation only, reports depName as missing before any
// dependency has actually been requested from the graph — forcing the
// engine to restart it exactly once. It is the fixture
// internal/evalgraph's own tests use to prove the buffer-until-clean-
// completion rule without depending on goroutine scheduling timing.
type ForcedRestartKey struct {
	Name    string
	DepName string
	DepVal  evalgraph.Value

	mu       sync.Mutex
	attempts int
}

func (k *ForcedRestartKey) String() string { return k.Name }

func (k *ForcedRestartKey) Attempts() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.attempts
}

func (k *ForcedRestartKey) Compute(ctx context.Context, env *evalgraph.Env) evalgraph.Result {
	k.mu.Lock()
	k.attempts++
	k.mu.Unlock()

	// emitted is remembered in scratch so a restarted activation does not
	// re-emit the same event; the engine is responsible for delivering the
	// event buffered from the aborted first pass once this pass completes
	// cleanly, which is the behavior these tests exist to prove.
	emitted, _ := env.GetState(func() any { return false }).(bool)
	if !emitted {
		env.Emit(evalgraph.EventInfo, "computing "+k.Name)
		env.SetState(true)
	}

	dep := simpleKey{name: k.DepName, val: k.DepVal}
	v, ok := env.GetValue(dep)
	if !ok {
		return evalgraph.Pending()
	}
	return evalgraph.Done(v)
}
