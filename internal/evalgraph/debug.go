package evalgraph

import (
	"fmt"
	"sort"
	"strings"
)

// debugStringer is an optional hook a Value can implement to render itself
// more usefully than fmt's default verb in DebugRepr, the same convention
// providerset.Set.DebugString follows for the cty payloads it wraps.
type debugStringer interface {
	DebugString() string
}

// DebugRepr returns a concise, deterministically-ordered text dump of every
// node currently in the graph: its state, dependency edges, and value or
// failure, grounded on the teacher's own Graph.DebugRepr (one line per node
// plus its operands) rather than a dump of Go's internal representation.
// Intended for human consumption in tests and debugging; not a stable,
// parseable format.
func (g *Graph) DebugRepr() string {
	type row struct {
		key   string
		state string
		deps  []string
		body  string
	}
	var rows []row

	g.nodes.ForEach(func(key string, n *node) {
		n.mu.Lock()
		state := n.state.String()
		deps := make([]string, 0, len(n.deps))
		for _, d := range n.deps {
			deps = append(deps, d.key.String())
		}
		sort.Strings(deps)

		var body string
		switch {
		case n.failure != nil:
			body = "FAILED(" + string(n.failure.Kind) + ": " + n.failure.Message + ")"
		case n.state == stateDone:
			body = debugRepr(n.value)
		default:
			body = "<pending>"
		}
		n.mu.Unlock()

		rows = append(rows, row{key: key, state: state, deps: deps, body: body})
	})

	sort.Slice(rows, func(i, j int) bool { return rows[i].key < rows[j].key })

	var b strings.Builder
	for _, r := range rows {
		fmt.Fprintf(&b, "%s [%s] = %s", r.key, r.state, r.body)
		if len(r.deps) > 0 {
			b.WriteString(" <- ")
			b.WriteString(strings.Join(r.deps, ", "))
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// debugRepr renders a single node's value, preferring its DebugString hook
// when present.
func debugRepr(v Value) string {
	if v == nil {
		return "nil"
	}
	if ds, ok := v.(debugStringer); ok {
		return strings.TrimSpace(ds.DebugString())
	}
	return fmt.Sprintf("%#v", v)
}
