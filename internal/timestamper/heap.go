package timestamper

import (
	"github.com/emirpasic/gods/trees/binaryheap"

	"github.com/dreamware/graphvt/internal/clockid"
)

// idHeap is a strictly-ordered min-heap of RequestId, used for both
// outstanding_req_ids and done_req_ids (spec.md §3). It wraps
// emirpasic/gods' binaryheap, which operates on interface{} values
// and a comparator, rather than rolling a bespoke container/heap
// implementation.
type idHeap struct {
	h *binaryheap.Heap
}

func idComparator(a, b interface{}) int {
	x, y := a.(clockid.RequestId), b.(clockid.RequestId)
	switch {
	case x < y:
		return -1
	case x > y:
		return 1
	default:
		return 0
	}
}

func newIDHeap() *idHeap {
	return &idHeap{h: binaryheap.NewWith(idComparator)}
}

func (h *idHeap) Push(id clockid.RequestId) {
	h.h.Push(id)
}

// Top returns the smallest id without removing it.
func (h *idHeap) Top() (clockid.RequestId, bool) {
	v, ok := h.h.Peek()
	if !ok {
		return 0, false
	}
	return v.(clockid.RequestId), true
}

// Pop removes and returns the smallest id.
func (h *idHeap) Pop() (clockid.RequestId, bool) {
	v, ok := h.h.Pop()
	if !ok {
		return 0, false
	}
	return v.(clockid.RequestId), true
}

func (h *idHeap) Len() int {
	return h.h.Size()
}
