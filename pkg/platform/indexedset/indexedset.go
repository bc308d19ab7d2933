// Package indexedset provides an unordered set backed by a dense slice with
// an index map, giving O(1) membership, insertion and removal. Removal swaps
// the last element into the removed slot (swap-and-pop), so enumeration order
// is not stable across removals. All registries in this service enumerate
// through this type so the list and its index map cannot drift apart.
package indexedset

// Set holds comparable elements. The zero value is not usable; call New.
type Set[T comparable] struct {
	items []T
	index map[T]int
}

// New returns an empty set.
func New[T comparable]() *Set[T] {
	return &Set[T]{index: make(map[T]int)}
}

// Add inserts v. Returns false if v is already present.
func (s *Set[T]) Add(v T) bool {
	if _, ok := s.index[v]; ok {
		return false
	}
	s.index[v] = len(s.items)
	s.items = append(s.items, v)
	return true
}

// Remove deletes v via swap-and-pop. Returns false if v is absent.
func (s *Set[T]) Remove(v T) bool {
	i, ok := s.index[v]
	if !ok {
		return false
	}
	last := len(s.items) - 1
	if i != last {
		moved := s.items[last]
		s.items[i] = moved
		s.index[moved] = i
	}
	s.items = s.items[:last]
	delete(s.index, v)
	return true
}

// Contains reports membership.
func (s *Set[T]) Contains(v T) bool {
	_, ok := s.index[v]
	return ok
}

// Len returns the number of elements.
func (s *Set[T]) Len() int {
	return len(s.items)
}

// Values returns a copy of the elements. Order is arbitrary after removals.
func (s *Set[T]) Values() []T {
	out := make([]T, len(s.items))
	copy(out, s.items)
	return out
}
