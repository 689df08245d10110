// Package orderedmap provides a map that keeps the insertion order of its
// elements.
package orderedmap

import (
	"github.com/simplesurance/reviewflow/internal/linkedlist"
)

type entry[K comparable, V any] struct {
	key K
	val V
}

// Map is a map datastructure that allows accessing it's element in a
// fixed order.
type Map[K comparable, V any] struct {
	order   *linkedlist.List[*entry[K, V]]
	m       map[K]*linkedlist.Element[*entry[K, V]]
	zeroval V
}

func New[K comparable, V any]() *Map[K, V] {
	return &Map[K, V]{
		order: linkedlist.New[*entry[K, V]](),
		m:     map[K]*linkedlist.Element[*entry[K, V]]{},
	}
}

// EnqueueIfNotExist appends val to the map if key does not exist.
func (m *Map[K, V]) EnqueueIfNotExist(key K, val V) (isFirst, added bool) {
	if _, exist := m.m[key]; exist {
		return false, false
	}

	elem := m.order.PushBack(&entry[K, V]{key: key, val: val})
	m.m[key] = elem

	return m.order.Len() == 1, true
}

// Get returns the value for the given key.
// If the key does not exist, the zero value is returned
func (m *Map[K, V]) Get(key K) V {
	v, exist := m.m[key]
	if !exist {
		return m.zeroval
	}

	return v.Value.val
}

func (m *Map[K, V]) Contains(key K) bool {
	_, exist := m.m[key]
	return exist
}

// Dequeue removes the value with the key from the map and returns it.
// If the key does not exist in the map, the zero value is returned.
func (m *Map[K, V]) Dequeue(key K) (removedElem V) {
	v, exist := m.m[key]
	if !exist {
		return m.zeroval
	}
	delete(m.m, key)

	return m.order.Remove(v).val
}

// PopFirst removes the first element and returns it.
// ok is false when the map is empty.
func (m *Map[K, V]) PopFirst() (key K, val V, ok bool) {
	e := m.order.Front()
	if e == nil {
		var zeroKey K
		return zeroKey, m.zeroval, false
	}

	delete(m.m, e.Value.key)
	m.order.Remove(e)

	return e.Value.key, e.Value.val, true
}

// First returns the first element in the map.
// If the map is empty, the zero value is returned.
func (m *Map[K, V]) First() V {
	if e := m.order.Front(); e != nil {
		return e.Value.val
	}

	return m.zeroval
}

// Len returns the number of elements in the maps.
func (m *Map[K, V]) Len() int {
	return m.order.Len()
}

// Foreach iterates through the map in order.
// When fn returns false the iteration is aborted.
func (m *Map[K, V]) Foreach(fn func(V) bool) {
	for e := m.order.Front(); e != nil; e = e.Next() {
		if !fn(e.Value.val) {
			return
		}
	}
}

// AsSlice returns a new slice containing the elements of the orderedMap in
// order.
func (m *Map[K, V]) AsSlice() []V {
	result := make([]V, 0, m.order.Len())

	for e := m.order.Front(); e != nil; e = e.Next() {
		result = append(result, e.Value.val)
	}

	return result
}
