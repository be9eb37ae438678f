package worker

// Queue is a simple FIFO.
type Queue[T any] struct {
	items []T
}

// Push adds an item at the back.
func (q *Queue[T]) Push(v T) {
	if q == nil {
		return
	}
	q.items = append(q.items, v)
}

// Drain returns all items and clears the queue.
func (q *Queue[T]) Drain() []T {
	if q == nil || len(q.items) == 0 {
		return nil
	}
	out := q.items
	q.items = nil
	return out
}

// Requeue puts items back at the front, ahead of anything pushed since the
// last Drain, keeping their order.
func (q *Queue[T]) Requeue(items []T) {
	if q == nil || len(items) == 0 {
		return
	}
	q.items = append(append(make([]T, 0, len(items)+len(q.items)), items...), q.items...)
}

func (q *Queue[T]) Len() int {
	if q == nil {
		return 0
	}
	return len(q.items)
}
