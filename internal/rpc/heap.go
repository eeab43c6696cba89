package rpc

import "container/heap"

// deadlineHeap is the per-fd timeout heap of spec.md §4.6 ("a Fibonacci
// heap of request deadlines"); a binary heap suffices since Go's stdlib
// offers no Fibonacci heap and the access pattern (push, pop-min, arbitrary
// remove) doesn't need its amortized decrease-key.
type deadlineHeap []*pendingReq

func (h deadlineHeap) Len() int            { return len(h) }
func (h deadlineHeap) Less(i, j int) bool  { return h[i].deadline.Before(h[j].deadline) }
func (h deadlineHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index, h[j].index = i, j
}
func (h *deadlineHeap) Push(x interface{}) {
	p := x.(*pendingReq)
	p.index = len(*h)
	*h = append(*h, p)
}
func (h *deadlineHeap) Pop() interface{} {
	old := *h
	n := len(old)
	p := old[n-1]
	old[n-1] = nil
	p.index = -1
	*h = old[:n-1]
	return p
}

func (h *deadlineHeap) push(p *pendingReq) { heap.Push(h, p) }

func (h *deadlineHeap) pop() *pendingReq { return heap.Pop(h).(*pendingReq) }

// remove drops p from the heap if it is still present (it may already have
// been popped by expireOlderThan, in which case this is a no-op).
func (h *deadlineHeap) remove(p *pendingReq) {
	if p.index < 0 || p.index >= len(*h) || (*h)[p.index] != p {
		return
	}
	heap.Remove(h, p.index)
}
