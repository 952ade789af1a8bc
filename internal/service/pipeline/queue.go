package pipeline

import "sync"

// Queue is an unbounded multi-producer FIFO. Workers poll it with TryPop and
// back off when empty; items are owned by whichever consumer pops them.
type Queue[T any] struct {
	mu    sync.Mutex
	items []T
}

// NewQueue creates an empty queue.
func NewQueue[T any]() *Queue[T] {
	return &Queue[T]{}
}

// Push appends an item to the tail.
func (q *Queue[T]) Push(item T) {
	q.mu.Lock()
	q.items = append(q.items, item)
	q.mu.Unlock()
}

// TryPop removes and returns the head item without blocking. The boolean is
// false when the queue is empty.
func (q *Queue[T]) TryPop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		var zero T
		return zero, false
	}
	item := q.items[0]
	q.items = q.items[1:]
	return item, true
}

// Len reports the number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Broadcast delivers every pushed value independently to two FIFO consumers.
// Each side owns its copy: popping from one never affects the other.
type Broadcast[T any] struct {
	Primary *Queue[T]
	Mirror  *Queue[T]
}

// NewBroadcast creates a broadcast over two fresh queues.
func NewBroadcast[T any]() *Broadcast[T] {
	return &Broadcast[T]{Primary: NewQueue[T](), Mirror: NewQueue[T]()}
}

// Push enqueues the value on both sides.
func (b *Broadcast[T]) Push(item T) {
	b.Primary.Push(item)
	b.Mirror.Push(item)
}
