package memory

import "sync"

// queue is an unbounded FIFO of event envelopes feeding one subscription.
//
// Emit must never block on a slow callback, so envelopes are buffered here
// and drained by the subscription's own goroutine. signal has a buffer of
// one and coalesces wakeups.
type queue struct {
	mu     sync.Mutex
	items  [][]byte
	closed bool
	signal chan struct{}
}

func newQueue() *queue {
	return &queue{
		items:  make([][]byte, 0, 16),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue appends an envelope. Returns false if the queue is closed.
func (q *queue) Enqueue(item []byte) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.items = append(q.items, item)

	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// TryDequeue removes the front envelope without blocking.
func (q *queue) TryDequeue() ([]byte, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return nil, false
	}
	item := q.items[0]
	q.items[0] = nil
	if len(q.items) == 1 {
		q.items = q.items[:0]
	} else {
		q.items = q.items[1:]
	}
	return item, true
}

// Wait signals that envelopes may be available. The channel is closed
// when the queue closes.
func (q *queue) Wait() <-chan struct{} {
	return q.signal
}

// Closed reports whether Close was called.
func (q *queue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Len returns the number of buffered envelopes.
func (q *queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close stops accepting envelopes and wakes the drain goroutine.
func (q *queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.signal)
}
