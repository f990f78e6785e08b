package machine

import "sync"

// queue is an unbounded FIFO with one consumer. Push never blocks.
type queue[T any] struct {
	mx     sync.Mutex
	items  []T
	closed bool

	notify chan struct{}
	done   chan struct{}
}

func newQueue[T any]() *queue[T] {
	return &queue[T]{
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// Push appends v. It returns false if the queue is closed.
func (q *queue[T]) Push(v T) bool {
	q.mx.Lock()
	if q.closed {
		q.mx.Unlock()
		return false
	}
	q.items = append(q.items, v)
	q.mx.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return true
}

// TryPop removes the oldest item without blocking.
func (q *queue[T]) TryPop() (v T, ok bool) {
	q.mx.Lock()
	defer q.mx.Unlock()
	if len(q.items) == 0 {
		return v, false
	}
	v = q.items[0]
	var zero T
	q.items[0] = zero
	q.items = q.items[1:]
	return v, true
}

// Pop blocks for the oldest item. It returns false once the queue is
// closed and empty.
func (q *queue[T]) Pop() (T, bool) {
	for {
		if v, ok := q.TryPop(); ok {
			return v, true
		}
		select {
		case <-q.notify:
		case <-q.done:
			return q.TryPop()
		}
	}
}

// Wait is signaled when an item may have been pushed.
func (q *queue[T]) Wait() <-chan struct{} { return q.notify }

// Close stops accepting items. Items already queued can still be popped.
func (q *queue[T]) Close() {
	q.mx.Lock()
	defer q.mx.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.done)
}

// Closed reports whether Close was called.
func (q *queue[T]) Closed() bool {
	q.mx.Lock()
	defer q.mx.Unlock()
	return q.closed
}

func (q *queue[T]) Len() int {
	q.mx.Lock()
	defer q.mx.Unlock()
	return len(q.items)
}
