package worker

import (
	"context"
	"sync"
)

// queue is an unbounded FIFO of admitted files.
type queue struct {
	mu     sync.Mutex
	items  []WatchedFile
	closed bool
	signal chan struct{}
}

func newQueue() *queue {
	return &queue{signal: make(chan struct{}, 1)}
}

func (q *queue) push(f WatchedFile) {
	q.mu.Lock()
	q.items = append(q.items, f)
	q.mu.Unlock()

	q.wake()
}

func (q *queue) wake() {
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// pop blocks until an item is available. It returns false once the queue
// is closed and empty, or ctx is cancelled.
func (q *queue) pop(ctx context.Context) (WatchedFile, bool) {
	for {
		if ctx.Err() != nil {
			return WatchedFile{}, false
		}

		q.mu.Lock()

		if len(q.items) > 0 {
			f := q.items[0]
			q.items = q.items[1:]
			more := len(q.items) > 0 || q.closed
			q.mu.Unlock()

			if more {
				q.wake()
			}

			return f, true
		}

		if q.closed {
			q.mu.Unlock()
			q.wake()

			return WatchedFile{}, false
		}

		q.mu.Unlock()

		select {
		case <-q.signal:
		case <-ctx.Done():
			return WatchedFile{}, false
		}
	}
}

func (q *queue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	q.wake()
}

// drain removes and returns everything still queued.
func (q *queue) drain() []WatchedFile {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := q.items
	q.items = nil

	return out
}
