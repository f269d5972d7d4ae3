package mutation

import (
	"sync"

	"github.com/nhle/taskpulse/internal/model"
)

// queue is an unbounded FIFO of pending mutations with a wakeup signal.
//
// The signal channel has capacity 1: Enqueue never blocks, and a consumer
// that missed a wakeup still finds the items on its next TryDequeue.
type queue struct {
	mu     sync.Mutex
	items  []model.MutationItem
	signal chan struct{}
}

func newQueue() *queue {
	return &queue{signal: make(chan struct{}, 1)}
}

func (q *queue) Enqueue(item model.MutationItem) {
	q.mu.Lock()
	q.items = append(q.items, item)
	q.mu.Unlock()
	q.wake()
}

func (q *queue) wake() {
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

func (q *queue) TryDequeue() (model.MutationItem, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return model.MutationItem{}, false
	}
	item := q.items[0]
	if len(q.items) == 1 {
		q.items = q.items[:0]
	} else {
		q.items = q.items[1:]
	}
	return item, true
}

// Wait returns a channel that signals when items may be available.
func (q *queue) Wait() <-chan struct{} {
	return q.signal
}

func (q *queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Snapshot returns the queued items, head first.
func (q *queue) Snapshot() []model.MutationItem {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]model.MutationItem(nil), q.items...)
}
