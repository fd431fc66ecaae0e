// Package util
//
// This file provides a priority queue with key based access that is used to track
// the recency of cached rows.
//
// The implementation combines a binary heap with a hash map to provide both
// efficient priority-based operations and key-based access. The row cache uses it
// as a least-recently-used index: every access re-inserts the row with a
// monotonically increasing tick as priority, the minimum is the eviction candidate.
//
// Time Complexity:
//   - O(log n) for Set, PopMin and Remove
//   - O(1) for Peek, Contains and Priority
//
// Concurrency: MapHeap is not thread-safe, callers must synchronize access.
//
// Example usage:
//
//	lru := NewMapHeap[uint32]()
//	lru.Set(7, 1)  // row 7 accessed at tick 1
//	lru.Set(3, 2)  // row 3 accessed at tick 2
//	lru.Set(7, 3)  // row 7 accessed again
//
//	key, _, _ := lru.Peek() // 3, the least recently used row
package util

import (
	"container/heap"
	"fmt"
)

// item is a single heap entry
type item[K comparable] struct {
	key      K
	priority uint64
	index    int // Index in the heap, maintained by the heap package
}

func (i *item[K]) String() string {
	return fmt.Sprintf("{Key: %v, Priority: %d}", i.key, i.priority)
}

// MapHeap is a min-heap ordered by priority that also allows access by key
type MapHeap[K comparable] struct {
	h heapSlice[K]
	m map[K]*item[K]
}

// NewMapHeap creates a new empty MapHeap
func NewMapHeap[K comparable]() *MapHeap[K] {
	mh := &MapHeap[K]{
		m: make(map[K]*item[K]),
	}
	mh.h.m = mh.m
	return mh
}

// Len returns the number of keys in the heap
func (mh *MapHeap[K]) Len() int { return len(mh.h.items) }

// Set adds key with the given priority or updates the priority of an existing key
func (mh *MapHeap[K]) Set(key K, priority uint64) {
	if it, exists := mh.m[key]; exists {
		it.priority = priority
		heap.Fix(&mh.h, it.index)
		return
	}
	heap.Push(&mh.h, &item[K]{key: key, priority: priority})
}

// Remove removes key and returns its priority
func (mh *MapHeap[K]) Remove(key K) (uint64, bool) {
	it, exists := mh.m[key]
	if !exists {
		return 0, false
	}
	heap.Remove(&mh.h, it.index)
	return it.priority, true
}

// Peek returns the key with the smallest priority without removing it
func (mh *MapHeap[K]) Peek() (key K, priority uint64, ok bool) {
	if len(mh.h.items) == 0 {
		return key, 0, false
	}
	it := mh.h.items[0]
	return it.key, it.priority, true
}

// PopMin removes and returns the key with the smallest priority
func (mh *MapHeap[K]) PopMin() (key K, priority uint64, ok bool) {
	if len(mh.h.items) == 0 {
		return key, 0, false
	}
	it := heap.Pop(&mh.h).(*item[K])
	return it.key, it.priority, true
}

// Contains checks if a key exists in the heap
func (mh *MapHeap[K]) Contains(key K) bool {
	_, exists := mh.m[key]
	return exists
}

// Priority returns the priority of key
func (mh *MapHeap[K]) Priority(key K) (uint64, bool) {
	it, exists := mh.m[key]
	if !exists {
		return 0, false
	}
	return it.priority, true
}

// Ascending returns all keys ordered by ascending priority. The heap is not modified.
func (mh *MapHeap[K]) Ascending() []K {
	cp := heapSlice[K]{
		items: make([]*item[K], len(mh.h.items)),
		m:     make(map[K]*item[K], len(mh.h.items)),
	}
	for i, it := range mh.h.items {
		c := *it
		cp.items[i] = &c
		cp.m[c.key] = &c
	}
	keys := make([]K, 0, len(cp.items))
	for len(cp.items) > 0 {
		keys = append(keys, heap.Pop(&cp).(*item[K]).key)
	}
	return keys
}

// --------------------------------------------------------------------------
// heap.Interface
// --------------------------------------------------------------------------

// heapSlice implements heap.Interface and keeps the key map in sync
type heapSlice[K comparable] struct {
	items []*item[K]
	m     map[K]*item[K]
}

func (hs *heapSlice[K]) Len() int { return len(hs.items) }

func (hs *heapSlice[K]) Less(i, j int) bool {
	return hs.items[i].priority < hs.items[j].priority
}

func (hs *heapSlice[K]) Swap(i, j int) {
	hs.items[i], hs.items[j] = hs.items[j], hs.items[i]
	hs.items[i].index = i
	hs.items[j].index = j
}

func (hs *heapSlice[K]) Push(x any) {
	it := x.(*item[K])
	it.index = len(hs.items)
	hs.items = append(hs.items, it)
	hs.m[it.key] = it
}

func (hs *heapSlice[K]) Pop() any {
	old := hs.items
	n := len(old)
	it := old[n-1]
	old[n-1] = nil // avoid memory leak
	it.index = -1
	hs.items = old[:n-1]
	delete(hs.m, it.key)
	return it
}
