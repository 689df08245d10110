// Package set provides a generic set datastructure.
package set

type Set[T comparable] map[T]struct{}

func New[T comparable]() Set[T] {
	return Set[T]{}
}

// From returns a new set containing all elements of sl.
func From[T comparable](sl []T) Set[T] {
	result := make(Set[T], len(sl))

	for _, elem := range sl {
		result[elem] = struct{}{}
	}

	return result
}

func (s Set[T]) Add(v T) {
	s[v] = struct{}{}
}

func (s Set[T]) Delete(v T) {
	delete(s, v)
}

func (s Set[T]) Contains(v T) bool {
	_, exists := s[v]
	return exists
}

func (s Set[T]) Len() int {
	return len(s)
}

// Slice returns the elements of the set in undefined order.
func (s Set[T]) Slice() []T {
	result := make([]T, 0, len(s))

	for k := range s {
		result = append(result, k)
	}

	return result
}
