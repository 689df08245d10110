// Package linkedlist provides a generic doubly linked list.
package linkedlist

type Element[V any] struct {
	next, prev *Element[V]
	list       *List[V]

	Value V
}

// Next returns the next list element or nil.
func (e *Element[V]) Next() *Element[V] {
	if n := e.next; e.list != nil && n != &e.list.root {
		return n
	}

	return nil
}

// Prev returns the previous list element or nil.
func (e *Element[V]) Prev() *Element[V] {
	if p := e.prev; e.list != nil && p != &e.list.root {
		return p
	}

	return nil
}

// List is a doubly linked list, the zero value is not usable, lists must be
// created with New().
type List[V any] struct {
	root Element[V]
	len  int
}

func New[V any]() *List[V] {
	l := List[V]{}
	l.root.next = &l.root
	l.root.prev = &l.root

	return &l
}

func (l *List[V]) Len() int {
	return l.len
}

// Front returns the first element of the list or nil if it is empty.
func (l *List[V]) Front() *Element[V] {
	if l.len == 0 {
		return nil
	}

	return l.root.next
}

// Back returns the last element of the list or nil if it is empty.
func (l *List[V]) Back() *Element[V] {
	if l.len == 0 {
		return nil
	}

	return l.root.prev
}

func (l *List[V]) insertAfter(e, at *Element[V]) *Element[V] {
	e.prev = at
	e.next = at.next
	e.prev.next = e
	e.next.prev = e
	e.list = l
	l.len++

	return e
}

// PushBack appends v to the list and returns the new element.
func (l *List[V]) PushBack(v V) *Element[V] {
	return l.insertAfter(&Element[V]{Value: v}, l.root.prev)
}

// PushFront prepends v to the list and returns the new element.
func (l *List[V]) PushFront(v V) *Element[V] {
	return l.insertAfter(&Element[V]{Value: v}, &l.root)
}

// Remove removes e from l if it is an element of l and returns its value.
func (l *List[V]) Remove(e *Element[V]) V {
	if e.list == l {
		e.prev.next = e.next
		e.next.prev = e.prev
		e.next = nil
		e.prev = nil
		e.list = nil
		l.len--
	}

	return e.Value
}
