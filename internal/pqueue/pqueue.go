// Package pqueue provides a stable max-priority queue used by the worker
// pool and the lazy-load scheduler. Items with equal priority come out in
// enqueue order.
package pqueue

import (
	"container/heap"
	"time"
)

// Item is a queued element. Value is owned by the caller; Priority and
// EnqueuedAt may be changed through Update only.
type Item struct {
	Value      any
	Priority   int64
	EnqueuedAt time.Time

	seq   uint64
	index int
}

// Queued reports whether the item is currently in a queue.
func (it *Item) Queued() bool { return it.index >= 0 }

type items []*Item

func (h items) Len() int { return len(h) }

func (h items) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority > h[j].Priority // higher priority first
	}
	if !h[i].EnqueuedAt.Equal(h[j].EnqueuedAt) {
		return h[i].EnqueuedAt.Before(h[j].EnqueuedAt) // FIFO for same priority
	}
	return h[i].seq < h[j].seq // clocks can collide; sequence cannot
}

func (h items) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *items) Push(x any) {
	it := x.(*Item)
	it.index = len(*h)
	*h = append(*h, it)
}

func (h *items) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	it.index = -1
	*h = old[:n-1]
	return it
}

// Queue is a non-concurrent priority queue. Callers are expected to hold
// their own lock around it.
type Queue struct {
	h   items
	seq uint64
}

// New creates an empty queue.
func New() *Queue { return &Queue{} }

// Len returns the number of queued items.
func (q *Queue) Len() int { return len(q.h) }

// Push enqueues a value with the given priority and enqueue time and returns
// the item handle for later Update/Remove.
func (q *Queue) Push(value any, priority int64, enqueuedAt time.Time) *Item {
	q.seq++
	it := &Item{Value: value, Priority: priority, EnqueuedAt: enqueuedAt, seq: q.seq}
	heap.Push(&q.h, it)
	return it
}

// Pop removes and returns the highest-priority item, or nil when empty.
func (q *Queue) Pop() *Item {
	if len(q.h) == 0 {
		return nil
	}
	return heap.Pop(&q.h).(*Item)
}

// Peek returns the highest-priority item without removing it, or nil.
func (q *Queue) Peek() *Item {
	if len(q.h) == 0 {
		return nil
	}
	return q.h[0]
}

// Update changes an item's priority and enqueue time and restores heap order.
// It is a no-op for items no longer queued.
func (q *Queue) Update(it *Item, priority int64, enqueuedAt time.Time) {
	if !it.Queued() {
		return
	}
	it.Priority = priority
	it.EnqueuedAt = enqueuedAt
	heap.Fix(&q.h, it.index)
}

// Remove takes an item out of the queue. It is a no-op for items no longer
// queued.
func (q *Queue) Remove(it *Item) {
	if !it.Queued() {
		return
	}
	heap.Remove(&q.h, it.index)
}

// Clear drops every queued item and returns how many were dropped.
func (q *Queue) Clear() int {
	n := len(q.h)
	for _, it := range q.h {
		it.index = -1
	}
	q.h = q.h[:0]
	return n
}
