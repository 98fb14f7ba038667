package loader

import (
	"sync"
)

// Dispatcher marshals a function onto the presentation goroutine.
// Post must not block and must preserve order.
type Dispatcher interface {
	Post(fn func())
}

// Queue is an unbounded FIFO of callbacks drained by the goroutine that
// owns presentation state. Workers only ever Post to it.
type Queue struct {
	mu    sync.Mutex
	items []func()
	ready chan struct{}
}

func NewQueue() *Queue {
	return &Queue{ready: make(chan struct{}, 1)}
}

func (q *Queue) Post(fn func()) {
	q.mu.Lock()
	q.items = append(q.items, fn)
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// Ready is signalled whenever callbacks are waiting to be drained
func (q *Queue) Ready() <-chan struct{} {
	return q.ready
}

// Drain runs every pending callback on the calling goroutine and returns how many ran
func (q *Queue) Drain() int {
	q.mu.Lock()
	items := q.items
	q.items = nil
	q.mu.Unlock()

	for _, fn := range items {
		fn()
	}
	return len(items)
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.items)
}
