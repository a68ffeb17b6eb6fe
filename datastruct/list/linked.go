package list

import "errors"

// ErrDupFailed is returned by Dup when the duplicate method fails on a value
var ErrDupFailed = errors.New("list: value duplication failed")

// Direction of an Iterator
const (
	// StartHead iterates from head to tail
	StartHead = 0
	// StartTail iterates from tail to head
	StartTail = 1
)

// Expected check whether given item is equals to expected value
type Expected[T any] func(a T) bool

// Consumer traverses list.
// It receives index and value as params, returns true to continue traversal, while returns false to break
type Consumer[T any] func(i int, v T) bool

// Node is an element of LinkedList
type Node[T any] struct {
	prev  *Node[T]
	next  *Node[T]
	value T
}

// Prev returns the previous node or nil
func (n *Node[T]) Prev() *Node[T] {
	return n.prev
}

// Next returns the next node or nil
func (n *Node[T]) Next() *Node[T] {
	return n.next
}

// Value returns the value carried by node
func (n *Node[T]) Value() T {
	return n.value
}

// SetValue replaces the value carried by node, the free method is not called on the old value
func (n *Node[T]) SetValue(val T) {
	n.value = val
}

// LinkedList is a doubly linked list.
// Values are owned by the caller unless a free method is installed, then the list frees them
// when nodes are deleted or the list is released.
type LinkedList[T any] struct {
	head *Node[T]
	tail *Node[T]
	size int

	dup   func(val T) (T, error)
	free  func(val T)
	match func(val T, key T) bool
}

// Make creates a list holding vals in order
func Make[T any](vals ...T) *LinkedList[T] {
	list := &LinkedList[T]{}
	for _, v := range vals {
		list.AddNodeTail(v)
	}
	return list
}

// SetDupMethod sets the function used by Dup to copy values
func (list *LinkedList[T]) SetDupMethod(dup func(val T) (T, error)) {
	list.dup = dup
}

// SetFreeMethod sets the function called on values of deleted nodes
func (list *LinkedList[T]) SetFreeMethod(free func(val T)) {
	list.free = free
}

// SetMatchMethod sets the function used by SearchKey
func (list *LinkedList[T]) SetMatchMethod(match func(val T, key T) bool) {
	list.match = match
}

// Len returns the number of nodes
func (list *LinkedList[T]) Len() int {
	if list == nil {
		panic("list is nil")
	}
	return list.size
}

// First returns the head node or nil
func (list *LinkedList[T]) First() *Node[T] {
	return list.head
}

// Last returns the tail node or nil
func (list *LinkedList[T]) Last() *Node[T] {
	return list.tail
}

// Release removes every node, calling the free method on each value if installed
func (list *LinkedList[T]) Release() {
	n := list.head
	for n != nil {
		next := n.next
		if list.free != nil {
			list.free(n.value)
		}
		n.prev, n.next = nil, nil
		n = next
	}
	list.head = nil
	list.tail = nil
	list.size = 0
}

// AddNodeHead inserts val at the head
func (list *LinkedList[T]) AddNodeHead(val T) *Node[T] {
	n := &Node[T]{value: val}
	if list.head == nil {
		list.head = n
		list.tail = n
	} else {
		n.next = list.head
		list.head.prev = n
		list.head = n
	}
	list.size++
	return n
}

// AddNodeTail inserts val at the tail
func (list *LinkedList[T]) AddNodeTail(val T) *Node[T] {
	n := &Node[T]{value: val}
	if list.tail == nil {
		list.head = n
		list.tail = n
	} else {
		n.prev = list.tail
		list.tail.next = n
		list.tail = n
	}
	list.size++
	return n
}

// Add adds value to the tail
func (list *LinkedList[T]) Add(val T) {
	list.AddNodeTail(val)
}

// InsertNode inserts val next to old, after it if after is true, before it otherwise
func (list *LinkedList[T]) InsertNode(old *Node[T], val T, after bool) *Node[T] {
	n := &Node[T]{value: val}
	if after {
		n.prev = old
		n.next = old.next
		if list.tail == old {
			list.tail = n
		}
	} else {
		n.next = old
		n.prev = old.prev
		if list.head == old {
			list.head = n
		}
	}
	if n.prev != nil {
		n.prev.next = n
	}
	if n.next != nil {
		n.next.prev = n
	}
	list.size++
	return n
}

func (list *LinkedList[T]) unlink(n *Node[T]) {
	if n.prev == nil {
		list.head = n.next
	} else {
		n.prev.next = n.next
	}
	if n.next == nil {
		list.tail = n.prev
	} else {
		n.next.prev = n.prev
	}
	n.prev = nil
	n.next = nil
	list.size--
}

// DelNode unlinks n then calls the free method on its value if installed
func (list *LinkedList[T]) DelNode(n *Node[T]) {
	list.unlink(n)
	if list.free != nil {
		list.free(n.value)
	}
}

// PopHead removes the head node and returns its value without freeing it
func (list *LinkedList[T]) PopHead() (val T, ok bool) {
	n := list.head
	if n == nil {
		return val, false
	}
	list.unlink(n)
	return n.value, true
}

// PopTail removes the tail node and returns its value without freeing it
func (list *LinkedList[T]) PopTail() (val T, ok bool) {
	n := list.tail
	if n == nil {
		return val, false
	}
	list.unlink(n)
	return n.value, true
}

// Dup returns a copy of list with the same methods installed.
// Values are copied by the dup method if set, shared otherwise. On the first dup failure the
// partial copy is released and ErrDupFailed is returned.
func (list *LinkedList[T]) Dup() (*LinkedList[T], error) {
	cp := &LinkedList[T]{
		dup:   list.dup,
		free:  list.free,
		match: list.match,
	}
	for n := list.head; n != nil; n = n.next {
		val := n.value
		if list.dup != nil {
			var err error
			val, err = list.dup(n.value)
			if err != nil {
				cp.Release()
				return nil, errors.Join(ErrDupFailed, err)
			}
		}
		cp.AddNodeTail(val)
	}
	return cp, nil
}

// SearchKey returns the first node whose value matches key, using the match method if set
// and value identity otherwise. Identity comparison panics if T is not comparable.
func (list *LinkedList[T]) SearchKey(key T) *Node[T] {
	for n := list.head; n != nil; n = n.next {
		if list.match != nil {
			if list.match(n.value, key) {
				return n
			}
		} else if any(n.value) == any(key) {
			return n
		}
	}
	return nil
}

// Index returns the node at index, negative index counts from the tail (-1 is the last node).
// Returns nil if index is out of range.
func (list *LinkedList[T]) Index(index int) *Node[T] {
	var n *Node[T]
	if index < 0 {
		index = (-index) - 1
		n = list.tail
		for ; index > 0 && n != nil; index-- {
			n = n.prev
		}
	} else {
		n = list.head
		for ; index > 0 && n != nil; index-- {
			n = n.next
		}
	}
	return n
}

// Rotate moves the tail node to the head
func (list *LinkedList[T]) Rotate() {
	if list.size <= 1 {
		return
	}
	tail := list.tail
	list.tail = tail.prev
	list.tail.next = nil
	list.head.prev = tail
	tail.prev = nil
	tail.next = list.head
	list.head = tail
}

// Get returns value at the given index, negative index counts from the tail
func (list *LinkedList[T]) Get(index int) (val T) {
	n := list.Index(index)
	if n == nil {
		panic("index out of bound")
	}
	return n.value
}

// Set updates value at the given index, the free method is called on the old value
func (list *LinkedList[T]) Set(index int, val T) {
	n := list.Index(index)
	if n == nil {
		panic("index out of bound")
	}
	old := n.value
	n.value = val
	if list.free != nil {
		list.free(old)
	}
}

// Iterator walks a LinkedList, the node just returned may be deleted
type Iterator[T any] struct {
	next      *Node[T]
	direction int
}

// Iterator creates an iterator starting from head or tail
func (list *LinkedList[T]) Iterator(direction int) *Iterator[T] {
	it := &Iterator[T]{direction: direction}
	if direction == StartHead {
		it.next = list.head
	} else {
		it.next = list.tail
	}
	return it
}

// Next returns the next node or nil
func (it *Iterator[T]) Next() *Node[T] {
	current := it.next
	if current != nil {
		if it.direction == StartHead {
			it.next = current.next
		} else {
			it.next = current.prev
		}
	}
	return current
}

// ForEach visits each element in the list
// if the consumer returns false, the loop will be broken
func (list *LinkedList[T]) ForEach(consumer Consumer[T]) {
	i := 0
	for n := list.head; n != nil; n = n.next {
		if !consumer(i, n.value) {
			break
		}
		i++
	}
}

// Contains returns whether the given value exist in the list
func (list *LinkedList[T]) Contains(expected Expected[T]) bool {
	contains := false
	list.ForEach(func(i int, actual T) bool {
		if expected(actual) {
			contains = true
			return false
		}
		return true
	})
	return contains
}

// RemoveAllByVal removes all nodes matching expected and returns the number removed
func (list *LinkedList[T]) RemoveAllByVal(expected Expected[T]) int {
	removed := 0
	it := list.Iterator(StartHead)
	for n := it.Next(); n != nil; n = it.Next() {
		if expected(n.value) {
			list.DelNode(n)
			removed++
		}
	}
	return removed
}

// RemoveByVal removes at most count matching nodes from head to tail
func (list *LinkedList[T]) RemoveByVal(expected Expected[T], count int) int {
	removed := 0
	it := list.Iterator(StartHead)
	for n := it.Next(); n != nil && removed < count; n = it.Next() {
		if expected(n.value) {
			list.DelNode(n)
			removed++
		}
	}
	return removed
}

// ReverseRemoveByVal removes at most count matching nodes from tail to head
func (list *LinkedList[T]) ReverseRemoveByVal(expected Expected[T], count int) int {
	removed := 0
	it := list.Iterator(StartTail)
	for n := it.Next(); n != nil && removed < count; n = it.Next() {
		if expected(n.value) {
			list.DelNode(n)
			removed++
		}
	}
	return removed
}

// Range returns elements which index within [start, stop)
func (list *LinkedList[T]) Range(start int, stop int) []T {
	if start < 0 || start >= list.size {
		panic("`start` out of range")
	}
	if stop < start || stop > list.size {
		panic("`stop` out of range")
	}
	slice := make([]T, 0, stop-start)
	n := list.Index(start)
	for i := start; i < stop && n != nil; i++ {
		slice = append(slice, n.value)
		n = n.next
	}
	return slice
}
