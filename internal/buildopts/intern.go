package buildopts

import (
	"hash/fnv"
	"sync"

	lru "github.com/hashicorp/golang-lru"
)

// Interner is the authoritative ConfigurationKey -> Configuration table.
// Spec.md invariant 4 requires that two equal results of transition
// application always produce the same ConfigurationKey and, by extension,
// resolve to the same interned Configuration; this table is never allowed
// to forget an entry once it exists; see ValueCache for the separate,
// evictable cache of the same data used purely as a performance layer.
type Interner struct {
	mu    sync.RWMutex
	table map[ConfigurationKey]Configuration
}

// NewInterner constructs an empty Interner.
func NewInterner() *Interner {
	return &Interner{table: make(map[ConfigurationKey]Configuration)}
}

// Intern computes (or reuses) the Configuration for opts, returning the
// single canonical instance for its content.
func (in *Interner) Intern(opts BuildOptions) Configuration {
	cfg := New(opts)

	in.mu.RLock()
	if existing, ok := in.table[cfg.key]; ok {
		in.mu.RUnlock()
		return existing
	}
	in.mu.RUnlock()

	in.mu.Lock()
	defer in.mu.Unlock()
	if existing, ok := in.table[cfg.key]; ok {
		return existing
	}
	in.table[cfg.key] = cfg
	return cfg
}

// Lookup returns the Configuration for an already-known key, if any.
func (in *Interner) Lookup(key ConfigurationKey) (Configuration, bool) {
	in.mu.RLock()
	defer in.mu.RUnlock()
	c, ok := in.table[key]
	return c, ok
}

// Len reports how many distinct configurations have been interned.
func (in *Interner) Len() int {
	in.mu.RLock()
	defer in.mu.RUnlock()
	return len(in.table)
}

// ValueCache is a bounded LRU in front of resolved-configuration lookups
// performed repeatedly during a single evaluation (for example, the
// configuration resolver re-deriving the same child configuration along
// many parallel edges). Unlike Interner, losing an entry here costs only a
// recompute — the entry is always reproducible from its hash — so a
// size-bounded cache is safe where an intern table would not be.
type ValueCache struct {
	cache *lru.Cache
}

// NewValueCache builds a ValueCache holding up to size entries.
func NewValueCache(size int) (*ValueCache, error) {
	c, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &ValueCache{cache: c}, nil
}

// GetOrCompute returns the cached Configuration for key, computing (and
// caching) it via compute if absent.
func (vc *ValueCache) GetOrCompute(key ConfigurationKey, compute func() Configuration) Configuration {
	if v, ok := vc.cache.Get(key); ok {
		return v.(Configuration)
	}
	cfg := compute()
	vc.cache.Add(key, cfg)
	return cfg
}

// hashKeyShard is a small helper so callers that want to stripe
// ConfigurationKeys across their own lock-striped structures can do so
// without re-deriving a hash from the hex string each time.
func hashKeyShard(k ConfigurationKey) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(k.hash))
	return h.Sum64()
}

// ShardHash exposes hashKeyShard for other packages in this module.
func ShardHash(k ConfigurationKey) uint64 { return hashKeyShard(k) }
