// Package swiss provides the keyed-bucket container used by the
// deduplication resolver to partition per-file type definitions by tag
// name or structural hash before candidates are compared against each
// other.
//
// The upstream implementation this is adapted from is a SIMD-accelerated,
// arena-friendly open-addressing table restricted to integer keys. Our
// bucket keys are tag names and hex-encoded structural hashes (both strings), and our
// tables top out in the tens of thousands of entries for even a large
// overlay, so we keep the public shape of that table (New, Insert, Get,
// Iter, Len) but back it with a plain Go map: at this scale the SIMD
// control-byte table buys nothing and the unsafe layout tricks it requires
// aren't worth the risk for a one-shot dedup pass.
package swiss

// Key is any comparable bucket key: tag names and structural hashes both
// satisfy this.
type Key interface {
	comparable
}

// Map is an insertion-ordered keyed-bucket container.
//
// A zero Map is empty and ready to use.
type Map[K Key, V any] struct {
	index map[K]int
	keys  []K
	vals  []V
}

// New constructs a Map with room for at least capacity entries before it
// needs to grow.
func New[K Key, V any](capacity int) *Map[K, V] {
	return &Map[K, V]{index: make(map[K]int, capacity)}
}

// Len returns the number of entries in the map.
func (m *Map[K, V]) Len() int { return len(m.keys) }

// Get returns the value stored at k, if any.
func (m *Map[K, V]) Get(k K) (V, bool) {
	i, ok := m.index[k]
	if !ok {
		var z V
		return z, false
	}
	return m.vals[i], true
}

// Insert stores v at k, overwriting any previous value.
func (m *Map[K, V]) Insert(k K, v V) {
	if i, ok := m.index[k]; ok {
		m.vals[i] = v
		return
	}
	if m.index == nil {
		m.index = make(map[K]int)
	}
	m.index[k] = len(m.keys)
	m.keys = append(m.keys, k)
	m.vals = append(m.vals, v)
}

// GetOrInsert returns the value at k, inserting zero() if absent.
func (m *Map[K, V]) GetOrInsert(k K, zero func() V) (v V, inserted bool) {
	if i, ok := m.index[k]; ok {
		return m.vals[i], false
	}
	v = zero()
	m.Insert(k, v)
	return v, true
}

// Iter calls yield for every (key, value) pair in insertion order, stopping
// early if yield returns false. Insertion order is what makes bucket
// candidate comparison in the dedup resolver deterministic: its "first
// candidate's name wins" tie-break depends on a stable iteration order.
func (m *Map[K, V]) Iter(yield func(K, V) bool) {
	for i, k := range m.keys {
		if !yield(k, m.vals[i]) {
			return
		}
	}
}

// Keys returns the map's keys in insertion order.
func (m *Map[K, V]) Keys() []K {
	out := make([]K, len(m.keys))
	copy(out, m.keys)
	return out
}
