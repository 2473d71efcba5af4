package queue

import (
	"container/heap"
	"testing"

	"github.com/hupe1980/reviewdb/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPriorityQueue(t *testing.T) {
	t.Run("MinHeap", func(t *testing.T) {
		pq := NewPriorityQueue(false, 4)
		pq.PushItem(Item{Node: 1, Distance: 0.5})
		pq.PushItem(Item{Node: 2, Distance: 0.1})
		pq.PushItem(Item{Node: 3, Distance: 0.9})

		top, ok := pq.TopItem()
		require.True(t, ok)
		assert.Equal(t, model.Ordinal(2), top.Node)

		var got []model.Ordinal
		for pq.Len() > 0 {
			item, _ := pq.PopItem()
			got = append(got, item.Node)
		}
		assert.Equal(t, []model.Ordinal{2, 1, 3}, got)

		_, ok = pq.PopItem()
		assert.False(t, ok)
	})

	t.Run("MaxHeap", func(t *testing.T) {
		pq := NewPriorityQueue(true, 4)
		pq.PushItem(Item{Node: 1, Distance: 0.5})
		pq.PushItem(Item{Node: 2, Distance: 0.1})
		pq.PushItem(Item{Node: 3, Distance: 0.9})

		top, ok := pq.TopItem()
		require.True(t, ok)
		assert.Equal(t, model.Ordinal(3), top.Node)
	})

	t.Run("HeapInterface", func(t *testing.T) {
		pq := NewPriorityQueue(false, 0)
		heap.Init(pq)
		heap.Push(pq, Item{Node: 7, Distance: 3})
		heap.Push(pq, Item{Node: 8, Distance: 1})
		item := heap.Pop(pq).(Item)
		assert.Equal(t, model.Ordinal(8), item.Node)
		pq.Reset()
		assert.Equal(t, 0, pq.Len())
	})
}

func TestPushItemBounded(t *testing.T) {
	pq := NewPriorityQueue(true, 2)
	assert.True(t, pq.PushItemBounded(Item{Node: 0, Distance: 0.4}, 2))
	assert.True(t, pq.PushItemBounded(Item{Node: 1, Distance: 0.2}, 2))
	// Worse than the current worst: rejected.
	assert.False(t, pq.PushItemBounded(Item{Node: 2, Distance: 0.9}, 2))
	// Better: replaces 0.
	assert.True(t, pq.PushItemBounded(Item{Node: 3, Distance: 0.3}, 2))

	sorted := pq.Sorted()
	require.Len(t, sorted, 2)
	assert.Equal(t, model.Ordinal(1), sorted[0].Node)
	assert.Equal(t, model.Ordinal(3), sorted[1].Node)

	assert.False(t, NewPriorityQueue(true, 0).PushItemBounded(Item{}, 0))
}

func TestTieBreakByOrdinal(t *testing.T) {
	pq := NewPriorityQueue(true, 2)
	for _, n := range []model.Ordinal{5, 3, 9, 1} {
		pq.PushItemBounded(Item{Node: n, Distance: 1}, 2)
	}

	// All distances are equal, so the two lowest ordinals survive.
	sorted := pq.Sorted()
	require.Len(t, sorted, 2)
	assert.Equal(t, model.Ordinal(1), sorted[0].Node)
	assert.Equal(t, model.Ordinal(3), sorted[1].Node)
}
