package hazards

import (
	"sync"

	"hazardsync/internal/domain/hazard"
)

// batchQueue is an unbounded FIFO of event batches. Producers never block;
// the fan-out actor waits on signal and drains with tryDequeue.
type batchQueue struct {
	mu      sync.Mutex
	batches [][]hazard.ChangeEvent
	closed  bool
	signal  chan struct{} // buffered, size 1
}

func newBatchQueue() *batchQueue {
	return &batchQueue{
		batches: make([][]hazard.ChangeEvent, 0, 16),
		signal:  make(chan struct{}, 1),
	}
}

// enqueue returns false once the queue is closed.
func (q *batchQueue) enqueue(batch []hazard.ChangeEvent) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.batches = append(q.batches, batch)

	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

func (q *batchQueue) tryDequeue() ([]hazard.ChangeEvent, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.batches) == 0 {
		return nil, false
	}
	batch := q.batches[0]
	q.batches[0] = nil
	if len(q.batches) == 1 {
		q.batches = q.batches[:0]
	} else {
		q.batches = q.batches[1:]
	}
	return batch, true
}

func (q *batchQueue) wait() <-chan struct{} {
	return q.signal
}

func (q *batchQueue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.signal)
}
