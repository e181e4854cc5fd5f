package mempool

import (
	"container/heap"
	"sort"

	"github.com/holiman/uint256"
)

// feeQueueEntry is one slot of the FeePriorityQueue.
type feeQueueEntry struct {
	priority *uint256.Int
	id       ID
	receivedAt int64 // unix nanos; older loses ties (evicted later, see feeQueueLess)
	index    int
}

// feeHeap is a container/heap.Interface implementation, min-ordered on
// (priority, receivedAt), extended with an id index so a specific entry
// can be removed in O(log n) instead of only popping the minimum.
type feeHeap []*feeQueueEntry

func (h feeHeap) Len() int { return len(h) }

func (h feeHeap) Less(i, j int) bool {
	return feeQueueLess(h[i], h[j])
}

// feeQueueLess orders entries by fee_priority ascending, ties broken by
// received_at such that the older entry sorts as "greater" (evicted
// later, i.e. surviving longer at the tie).
func feeQueueLess(a, b *feeQueueEntry) bool {
	if c := a.priority.Cmp(b.priority); c != 0 {
		return c < 0
	}
	return a.receivedAt > b.receivedAt
}

func (h feeHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *feeHeap) Push(x any) {
	e := x.(*feeQueueEntry)
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *feeHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

// FeePriorityQueue is a min-ordered multiset over (fee_priority, id),
// supporting O(log n) insertion and removal by id, and O(1) peek-min.
// It holds no duplicate ids.
type FeePriorityQueue struct {
	h       feeHeap
	byID    map[ID]*feeQueueEntry
}

// NewFeePriorityQueue returns an empty queue.
func NewFeePriorityQueue() *FeePriorityQueue {
	return &FeePriorityQueue{
		byID: make(map[ID]*feeQueueEntry),
	}
}

// Insert adds id with the given priority. Inserting a duplicate id is
// treated as a programmer error and panics, mirroring the invariant that
// every id is registered exactly once across the pool's three indexes.
func (q *FeePriorityQueue) Insert(priority *uint256.Int, id ID, receivedAtUnixNano int64) {
	if _, ok := q.byID[id]; ok {
		panic("mempool: FeePriorityQueue.Insert: duplicate id " + string(id))
	}
	e := &feeQueueEntry{priority: priority, id: id, receivedAt: receivedAtUnixNano}
	heap.Push(&q.h, e)
	q.byID[id] = e
}

// Remove deletes id from the queue. It returns false if id was not present.
func (q *FeePriorityQueue) Remove(id ID) bool {
	e, ok := q.byID[id]
	if !ok {
		return false
	}
	heap.Remove(&q.h, e.index)
	delete(q.byID, id)
	return true
}

// PeekMin returns the minimum-priority entry without removing it.
func (q *FeePriorityQueue) PeekMin() (priority *uint256.Int, id ID, ok bool) {
	if len(q.h) == 0 {
		return nil, "", false
	}
	return q.h[0].priority, q.h[0].id, true
}

// Len returns the number of entries in the queue.
func (q *FeePriorityQueue) Len() int {
	return len(q.h)
}

// Contains reports whether id is present in the queue.
func (q *FeePriorityQueue) Contains(id ID) bool {
	_, ok := q.byID[id]
	return ok
}

// IterAscending returns ids in ascending priority order. It operates on a
// sorted snapshot of the current heap contents, so callers may safely
// mutate the queue's owning pool while iterating the returned slice.
func (q *FeePriorityQueue) IterAscending() []ID {
	entries := make([]*feeQueueEntry, len(q.h))
	copy(entries, q.h)
	// A fresh copy sorted independently of the live heap's internal layout;
	// container/heap only guarantees h[0] is the min, not full ordering.
	sort.Slice(entries, func(i, j int) bool { return feeQueueLess(entries[i], entries[j]) })
	ids := make([]ID, len(entries))
	for i, e := range entries {
		ids[i] = e.id
	}
	return ids
}
