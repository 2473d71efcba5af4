// Package queue provides the priority queues used for top-k selection and
// graph traversal.
//
// Ordering is total: items compare by distance first and by ordinal second,
// so equal distances always resolve to the earlier ordinal. This makes every
// search result deterministic.
package queue

import (
	"container/heap"
	"slices"

	"github.com/hupe1980/reviewdb/model"
)

// Compile time check to ensure PriorityQueue satisfies the heap interface.
var _ heap.Interface = (*PriorityQueue)(nil)

// Item represents an item in the priority queue.
type Item struct {
	Node     model.Ordinal
	Distance float32
}

// Closer reports whether a ranks before b: smaller distance, then lower ordinal.
func Closer(a, b Item) bool {
	if a.Distance != b.Distance {
		return a.Distance < b.Distance
	}
	return a.Node < b.Node
}

// PriorityQueue implements heap.Interface and holds Items by value.
//
// A max-heap keeps the worst item on top (used for bounded result sets);
// a min-heap keeps the best item on top (used for candidate expansion).
type PriorityQueue struct {
	isMaxHeap bool
	items     []Item
}

// NewPriorityQueue creates a new priority queue.
func NewPriorityQueue(isMaxHeap bool, capacity int) *PriorityQueue {
	return &PriorityQueue{
		isMaxHeap: isMaxHeap,
		items:     make([]Item, 0, max(capacity, 0)),
	}
}

// TopItem returns the top element of the heap.
func (pq *PriorityQueue) TopItem() (Item, bool) {
	if len(pq.items) == 0 {
		return Item{}, false
	}
	return pq.items[0], true
}

// PushItem inserts an item while maintaining the heap invariant.
func (pq *PriorityQueue) PushItem(item Item) {
	pq.items = append(pq.items, item)
	pq.siftUp(len(pq.items) - 1)
}

// PushItemBounded inserts an item into a bounded max-heap.
// If the heap is full and the new item is not closer than the top, it is
// skipped; otherwise the top is replaced. Reports whether the item was kept.
func (pq *PriorityQueue) PushItemBounded(item Item, capacity int) bool {
	if len(pq.items) < capacity {
		pq.PushItem(item)
		return true
	}
	if capacity <= 0 {
		return false
	}

	top := pq.items[0]
	if pq.isMaxHeap {
		if !Closer(item, top) {
			return false
		}
	} else if !Closer(top, item) {
		return false
	}
	pq.items[0] = item
	pq.siftDown(0)
	return true
}

// PopItem removes and returns the top element from the heap.
func (pq *PriorityQueue) PopItem() (Item, bool) {
	n := len(pq.items)
	if n == 0 {
		return Item{}, false
	}

	item := pq.items[0]
	pq.items[0] = pq.items[n-1]
	pq.items = pq.items[:n-1]

	if len(pq.items) > 0 {
		pq.siftDown(0)
	}

	return item, true
}

// Sorted returns the items closest first. The queue is left unchanged.
func (pq *PriorityQueue) Sorted() []Item {
	out := slices.Clone(pq.items)
	slices.SortFunc(out, func(a, b Item) int {
		switch {
		case Closer(a, b):
			return -1
		case Closer(b, a):
			return 1
		default:
			return 0
		}
	})
	return out
}

// Len returns the number of elements in the heap.
func (pq *PriorityQueue) Len() int {
	return len(pq.items)
}

// Less reports whether the element with index i should sort before the element with index j.
func (pq *PriorityQueue) Less(i, j int) bool {
	if pq.isMaxHeap {
		return Closer(pq.items[j], pq.items[i])
	}
	return Closer(pq.items[i], pq.items[j])
}

// Swap swaps the elements with indexes i and j.
func (pq *PriorityQueue) Swap(i, j int) {
	pq.items[i], pq.items[j] = pq.items[j], pq.items[i]
}

// Push pushes the element x onto the heap.
func (pq *PriorityQueue) Push(x any) {
	pq.items = append(pq.items, x.(Item))
}

// Pop removes and returns the last element of the backing slice.
func (pq *PriorityQueue) Pop() any {
	old := pq.items
	n := len(old)
	item := old[n-1]
	pq.items = old[0 : n-1]
	return item
}

// Reset clears the priority queue.
func (pq *PriorityQueue) Reset() {
	pq.items = pq.items[:0]
}

func (pq *PriorityQueue) siftUp(i int) {
	for i > 0 {
		parent := (i - 1) / 2
		if !pq.Less(i, parent) {
			break
		}
		pq.Swap(i, parent)
		i = parent
	}
}

func (pq *PriorityQueue) siftDown(i int) {
	n := len(pq.items)
	for {
		left := 2*i + 1
		if left >= n {
			break
		}
		child := left
		right := left + 1
		if right < n && pq.Less(right, left) {
			child = right
		}
		if !pq.Less(child, i) {
			break
		}
		pq.Swap(i, child)
		i = child
	}
}
