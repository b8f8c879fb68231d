package infer

// deferredQueue is a FIFO of column positions whose $self references could
// not be resolved yet.
//
// It is owned by one resolution and not safe for concurrent use.
type deferredQueue struct {
	items []int
}

func newDeferredQueue(items []int) *deferredQueue {
	return &deferredQueue{items: append([]int(nil), items...)}
}

// Push adds a column position to the back of the queue.
func (q *deferredQueue) Push(i int) {
	q.items = append(q.items, i)
}

// Drain removes and returns every queued position.
func (q *deferredQueue) Drain() []int {
	out := q.items
	q.items = nil
	return out
}

// Len returns the number of queued positions.
func (q *deferredQueue) Len() int {
	return len(q.items)
}
