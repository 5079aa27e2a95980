package evalgraph

import "context"

// stackKey is the context key under which the current goroutine's chain of
// in-progress node activations is carried. Cycle detection (spec.md §4.A /
// §9) walks this stack instead of relying on a separate promise/future
// library: because each dependency is computed via an ordinary (recursive)
// call to Graph.computeNode, the Go call stack already embodies the
// "request stack" the spec describes — we just need to carry the chain of
// key strings alongside it so a re-entrant request can recognize itself.
type stackKey struct{}

// requestStack is an immutable linked list so that pushing a frame for one
// branch of concurrent dependency fan-out never mutates the stack another
// branch is using.
type requestStack struct {
	key  string
	prev *requestStack
}

func stackFrom(ctx context.Context) *requestStack {
	s, _ := ctx.Value(stackKey{}).(*requestStack)
	return s
}

// pushStack returns a context carrying key pushed onto the current
// request stack, along with whether doing so closes a cycle and, if so, the
// ordered list of participants from the first occurrence of key to the end.
func pushStack(ctx context.Context, key string) (context.Context, []string, bool) {
	s := stackFrom(ctx)
	if participants, found := cycleParticipants(s, key); found {
		return ctx, participants, true
	}
	next := &requestStack{key: key, prev: s}
	return context.WithValue(ctx, stackKey{}, next), nil, false
}

func cycleParticipants(s *requestStack, key string) ([]string, bool) {
	var chain []string
	found := false
	for f := s; f != nil; f = f.prev {
		chain = append(chain, f.key)
		if f.key == key {
			found = true
			break
		}
	}
	if !found {
		return nil, false
	}
	// chain was collected innermost-first; reverse it and close the loop
	// by repeating key at the end so the report reads as an actual cycle.
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return append(chain, key), true
}
