// Package label implements the core's notion of a target identifier:
// Label, an interned, totally-ordered (repository, package, name) triple
// (spec.md §3). Labels are produced by parsing a textual reference (as the
// out-of-scope package loader would encounter in a dependency attribute).
// Label values compare by their fields; handles obtained from an Interner
// can additionally be compared by pointer identity.
package label

import (
	"fmt"
	"hash/fnv"
	"strings"

	"github.com/anvilbuild/anvil/internal/collections"
)

// Label identifies a build target: "@repo//pkg/path:name". The empty
// repository denotes the main (root) repository, matching the convention
// that "//pkg:name" with no leading "@repo" refers to the invoking
// repository.
//
// Label values are comparable and safe to use as map keys directly; two
// Labels are equal iff their three fields are equal. Interning (via Intern)
// additionally guarantees pointer-identical *Interned values for equal
// Labels, which is what the hot paths described in spec.md §9 rely on.
type Label struct {
	Repository string
	Package    string
	Name       string
}

// String renders the canonical textual form of the label.
func (l Label) String() string {
	var b strings.Builder
	if l.Repository != "" {
		b.WriteByte('@')
		b.WriteString(l.Repository)
	}
	b.WriteString("//")
	b.WriteString(l.Package)
	b.WriteByte(':')
	b.WriteString(l.Name)
	return b.String()
}

// Less provides the total order spec.md §3 requires ("Immutable, interned,
// totally ordered"), ordering first by repository, then package, then name.
func (l Label) Less(other Label) bool {
	if l.Repository != other.Repository {
		return l.Repository < other.Repository
	}
	if l.Package != other.Package {
		return l.Package < other.Package
	}
	return l.Name < other.Name
}

// Parse parses a label in the canonical textual form. It is intentionally
// minimal: full label syntax (relative labels, ".." package paths, the
// various shorthand forms) is a concern of the out-of-scope package loader,
// which is expected to hand the core already-resolved Labels.
func Parse(s string) (Label, error) {
	var repo string
	rest := s
	if strings.HasPrefix(rest, "@") {
		idx := strings.Index(rest, "//")
		if idx < 0 {
			return Label{}, fmt.Errorf("label %q: expected // after repository name", s)
		}
		repo = rest[1:idx]
		rest = rest[idx:]
	}
	if !strings.HasPrefix(rest, "//") {
		return Label{}, fmt.Errorf("label %q: expected a // after the optional @repository", s)
	}
	rest = rest[2:]
	colon := strings.IndexByte(rest, ':')
	if colon < 0 {
		return Label{}, fmt.Errorf("label %q: missing :name component", s)
	}
	pkg := rest[:colon]
	name := rest[colon+1:]
	if name == "" {
		return Label{}, fmt.Errorf("label %q: empty target name", s)
	}
	return Label{Repository: repo, Package: pkg, Name: name}, nil
}

// Interned is a pointer-identity-comparable handle to a Label, returned by
// an Interner. Hot-path equality checks described in spec.md §9 ("Equality
// comparisons in hot paths use pointer identity") should compare *Interned
// pointers rather than the embedded Label.
type Interned struct {
	Label Label
	hash  uint64
}

// Hash returns the memoized hash computed at interning time.
func (i *Interned) Hash() uint64 { return i.hash }

func (i *Interned) String() string { return i.Label.String() }

// Interner hands out a single *Interned per distinct Label, in a
// lock-striped table (spec.md §9: "Labels ... are content-interned ...
// in lock-striped tables").
type Interner struct {
	table *collections.StripedMap[Label, *Interned]
}

// NewInterner constructs an empty Interner with shardCountHint shards
// (rounded up to a power of two).
func NewInterner(shardCountHint int) *Interner {
	return &Interner{
		table: collections.NewStripedMap[Label, *Interned](shardCountHint, hashLabel),
	}
}

// Intern returns the canonical *Interned for l, creating it on first use.
func (in *Interner) Intern(l Label) *Interned {
	return in.table.GetOrCreate(l, func() *Interned {
		return &Interned{Label: l, hash: hashLabel(l)}
	})
}

// Len reports how many distinct labels have been interned so far.
func (in *Interner) Len() int { return in.table.Len() }

func hashLabel(l Label) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(l.Repository))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(l.Package))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(l.Name))
	return h.Sum64()
}
