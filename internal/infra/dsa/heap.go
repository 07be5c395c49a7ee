// Package dsa provides the small, generic concurrency-safe data structures
// the rest of StellarOps builds on: a starvation-aware priority queue (used
// by the command queue's per-satellite dispatch ordering), a consistent hash
// ring (ground-station affinity, sharded process-wide tables), and a Bloom
// filter (alarm de-duplication).
package dsa

import (
	"container/heap"
	"sync"
	"time"
)

// HeapItem is a single entry in a PriorityQueue. Lower Priority values are
// dequeued first (a min-heap) so callers map urgency to small integers —
// e.g. negative dispatch priority, so "priority 100" commands sort before
// "priority 25" ones.
type HeapItem struct {
	Key         string
	Priority    int
	SubmittedAt time.Time
	Value       any
}

// PriorityQueueConfig configures starvation prevention: an item's effective
// priority improves by one level every BoostInterval it waits, capped at
// MaxBoost levels.
type PriorityQueueConfig struct {
	BoostInterval time.Duration
	MaxBoost      int
}

// DefaultPriorityQueueConfig disables starvation boosting (MaxBoost 0),
// giving pure (priority, FIFO) ordering — the command queue's dispatcher
// wants exactly this (spec.md §4.4: "primary sort key is priority
// descending; tie-break by insertion time ascending").
func DefaultPriorityQueueConfig() PriorityQueueConfig {
	return PriorityQueueConfig{BoostInterval: time.Minute, MaxBoost: 0}
}

type innerHeap struct {
	items []HeapItem
	boost time.Duration
	max   int
	now   func() time.Time
}

func (h innerHeap) effectivePriority(it HeapItem) int {
	if h.max <= 0 || h.boost <= 0 {
		return it.Priority
	}
	age := h.now().Sub(it.SubmittedAt)
	b := int(age / h.boost)
	if b > h.max {
		b = h.max
	}
	return it.Priority - b
}

func (h innerHeap) Len() int { return len(h.items) }

func (h innerHeap) Less(i, j int) bool {
	pi, pj := h.effectivePriority(h.items[i]), h.effectivePriority(h.items[j])
	if pi != pj {
		return pi < pj
	}
	return h.items[i].SubmittedAt.Before(h.items[j].SubmittedAt)
}

func (h innerHeap) Swap(i, j int) { h.items[i], h.items[j] = h.items[j], h.items[i] }

func (h *innerHeap) Push(x any) { h.items = append(h.items, x.(HeapItem)) }

func (h *innerHeap) Pop() any {
	old := h.items
	n := len(old)
	it := old[n-1]
	h.items = old[:n-1]
	return it
}

// PriorityQueue is a concurrency-safe min-heap of HeapItems with optional
// age-based starvation prevention. O(log n) push/pop.
type PriorityQueue struct {
	mu   sync.Mutex
	heap *innerHeap
	now  func() time.Time
}

// NewPriorityQueue creates a priority queue with the given starvation
// prevention configuration.
func NewPriorityQueue(cfg PriorityQueueConfig) *PriorityQueue {
	pq := &PriorityQueue{now: time.Now}
	pq.heap = &innerHeap{boost: cfg.BoostInterval, max: cfg.MaxBoost, now: pq.now}
	heap.Init(pq.heap)
	return pq
}

// Push adds an item to the queue.
func (pq *PriorityQueue) Push(item HeapItem) {
	pq.mu.Lock()
	defer pq.mu.Unlock()
	pq.heap.now = pq.now
	heap.Push(pq.heap, item)
}

// Pop removes and returns the highest-priority item, or (zero, false) if the
// queue is empty.
func (pq *PriorityQueue) Pop() (HeapItem, bool) {
	pq.mu.Lock()
	defer pq.mu.Unlock()
	if pq.heap.Len() == 0 {
		return HeapItem{}, false
	}
	pq.heap.now = pq.now
	heap.Init(pq.heap)
	return heap.Pop(pq.heap).(HeapItem), true
}

// Peek returns the highest-priority item without removing it.
func (pq *PriorityQueue) Peek() (HeapItem, bool) {
	pq.mu.Lock()
	defer pq.mu.Unlock()
	if pq.heap.Len() == 0 {
		return HeapItem{}, false
	}
	pq.heap.now = pq.now
	// heap[0] is the min element per container/heap's invariant, but only
	// after Fix/Init ran against the current effective priorities.
	heap.Init(pq.heap)
	return pq.heap.items[0], true
}

// Len returns the number of items currently queued.
func (pq *PriorityQueue) Len() int {
	pq.mu.Lock()
	defer pq.mu.Unlock()
	return pq.heap.Len()
}

// Remove deletes the first queued item matching key, if any. Used by the
// command queue's cancel() to drop a still-queued command.
func (pq *PriorityQueue) Remove(key string) bool {
	pq.mu.Lock()
	defer pq.mu.Unlock()
	for i, it := range pq.heap.items {
		if it.Key == key {
			heap.Remove(pq.heap, i)
			return true
		}
	}
	return false
}

// Items returns a snapshot of all queued items, heap order (not sorted).
func (pq *PriorityQueue) Items() []HeapItem {
	pq.mu.Lock()
	defer pq.mu.Unlock()
	out := make([]HeapItem, len(pq.heap.items))
	copy(out, pq.heap.items)
	return out
}
