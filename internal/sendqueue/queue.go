// Package sendqueue provides the single-producer/single-consumer FIFO that
// decouples telemetry production from radio transmission. Put never blocks;
// Get suspends until an item is available.
package sendqueue

import (
	"context"
	"sync"
)

// Queue is an unbounded FIFO. Put may be called from any goroutine; Get must
// only ever be called from one goroutine — concurrent consumers would race on
// the clear-signal step after draining the last item.
type Queue[T any] struct {
	mu    sync.Mutex
	items []T
	// ready holds one token while the queue is non-empty, standing in for a
	// level-triggered event.
	ready chan struct{}
}

// New returns an empty queue.
func New[T any]() *Queue[T] {
	return &Queue[T]{ready: make(chan struct{}, 1)}
}

// Put appends item to the tail. It never blocks and never fails; there is no
// backpressure, the queue grows without bound.
func (q *Queue[T]) Put(item T) {
	q.mu.Lock()
	q.items = append(q.items, item)
	q.mu.Unlock()
	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// Get removes and returns the head, blocking until the queue is non-empty or
// ctx is done. FIFO order is preserved; no item is duplicated or dropped.
func (q *Queue[T]) Get(ctx context.Context) (T, error) {
	for {
		select {
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		case <-q.ready:
		}

		q.mu.Lock()
		if len(q.items) == 0 {
			// A Put signaled but a previous Get already consumed the item
			// within the same wakeup. Wait again.
			q.mu.Unlock()
			continue
		}
		item := q.items[0]
		q.items = q.items[1:]
		if len(q.items) > 0 {
			// Keep the signal set so the next Get does not block.
			select {
			case q.ready <- struct{}{}:
			default:
			}
		}
		q.mu.Unlock()
		return item, nil
	}
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
