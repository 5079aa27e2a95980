package collections

import "sync"

// Map is a simple insertion-ordered map keyed by a comparable type, for
// callers that need to iterate keys in a deterministic order (matching
// insertion) without pulling in a sorted-map dependency: "remember
// everything, iterate it back out the way it went in."
type Map[K comparable, V any] struct {
	order []K
	items map[K]V
}

// NewMap constructs an empty Map.
func NewMap[K comparable, V any]() *Map[K, V] {
	return &Map[K, V]{items: make(map[K]V)}
}

// Set inserts or overwrites the value for key. Overwriting an existing key
// does not change its position in iteration order.
func (m *Map[K, V]) Set(key K, value V) {
	if m.items == nil {
		m.items = make(map[K]V)
	}
	if _, exists := m.items[key]; !exists {
		m.order = append(m.order, key)
	}
	m.items[key] = value
}

// Get returns the value for key and whether it was present.
func (m *Map[K, V]) Get(key K) (V, bool) {
	v, ok := m.items[key]
	return v, ok
}

// Has reports whether key is present.
func (m *Map[K, V]) Has(key K) bool {
	_, ok := m.items[key]
	return ok
}

// Len returns the number of entries.
func (m *Map[K, V]) Len() int {
	return len(m.items)
}

// Keys returns the keys in insertion order.
func (m *Map[K, V]) Keys() []K {
	ret := make([]K, len(m.order))
	copy(ret, m.order)
	return ret
}

// Values returns the values in key-insertion order.
func (m *Map[K, V]) Values() []V {
	ret := make([]V, 0, len(m.order))
	for _, k := range m.order {
		ret = append(ret, m.items[k])
	}
	return ret
}

// StripedMap is a fixed-width collection of locked map shards, used for the
// label intern table (label.Interner) and the evaluation graph's node table
// (evalgraph.Graph). Unlike Map, entries
// are never evicted: an intern table must keep returning the same identity
// for the lifetime of the process.
type StripedMap[K comparable, V any] struct {
	shards []stripedShard[K, V]
	mask   uint64
	hash   func(K) uint64
}

type stripedShard[K comparable, V any] struct {
	mu    sync.RWMutex
	items map[K]V
}

// NewStripedMap builds a striped intern table with the given shard count
// (rounded up to the next power of two) and hash function over keys.
func NewStripedMap[K comparable, V any](shardCountHint int, hash func(K) uint64) *StripedMap[K, V] {
	n := 1
	for n < shardCountHint {
		n <<= 1
	}
	if n < 1 {
		n = 1
	}
	shards := make([]stripedShard[K, V], n)
	for i := range shards {
		shards[i].items = make(map[K]V)
	}
	return &StripedMap[K, V]{shards: shards, mask: uint64(n - 1), hash: hash}
}

func (s *StripedMap[K, V]) shard(key K) *stripedShard[K, V] {
	return &s.shards[s.hash(key)&s.mask]
}

// GetOrCreate returns the existing value for key, or calls create and stores
// its result if key is not yet present. The create function may run more
// than once under contention on the same shard; only one result is kept.
func (s *StripedMap[K, V]) GetOrCreate(key K, create func() V) V {
	shard := s.shard(key)

	shard.mu.RLock()
	if v, ok := shard.items[key]; ok {
		shard.mu.RUnlock()
		return v
	}
	shard.mu.RUnlock()

	shard.mu.Lock()
	defer shard.mu.Unlock()
	if v, ok := shard.items[key]; ok {
		return v
	}
	v := create()
	shard.items[key] = v
	return v
}

// Get returns the value for key without creating it.
func (s *StripedMap[K, V]) Get(key K) (V, bool) {
	shard := s.shard(key)
	shard.mu.RLock()
	defer shard.mu.RUnlock()
	v, ok := shard.items[key]
	return v, ok
}

// Len returns the total number of interned entries across all shards. It
// takes a read lock on every shard in turn, so it is intended for debug
// dumps and tests, not hot paths.
func (s *StripedMap[K, V]) Len() int {
	total := 0
	for i := range s.shards {
		s.shards[i].mu.RLock()
		total += len(s.shards[i].items)
		s.shards[i].mu.RUnlock()
	}
	return total
}

// ForEach calls fn once per entry, shard by shard under that shard's read
// lock. Like Len, this is for debug dumps and tests: it gives no
// whole-table consistency snapshot across concurrent writers.
func (s *StripedMap[K, V]) ForEach(fn func(key K, value V)) {
	for i := range s.shards {
		s.shards[i].mu.RLock()
		for k, v := range s.shards[i].items {
			fn(k, v)
		}
		s.shards[i].mu.RUnlock()
	}
}
