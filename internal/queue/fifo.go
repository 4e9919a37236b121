package queue

import (
	"sync"
)

// fifo is a thread-safe ordered job buffer with a blocking pop.
// Jobs come out in exactly the order they went in; there is no priority.
//
// Used by: Coordinator (pushes on admission), per-tab worker (pops).
// Thread-safe: Yes (all operations lock)
type fifo struct {
	items  []*Job
	mu     sync.Mutex
	cond   *sync.Cond
	closed bool
}

func newFIFO() *fifo {
	q := &fifo{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push appends a job. Returns false if the queue has been closed, in which
// case the caller must not assume the job will ever run.
func (q *fifo) Push(j *Job) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.items = append(q.items, j)
	q.cond.Signal() // Wake up waiting worker
	return true
}

// Pop removes and returns the oldest job, blocking while the queue is empty.
// Returns nil once the queue is closed; remaining items are discarded, which
// is what tab teardown wants.
func (q *fifo) Pop() *Job {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.items) == 0 && !q.closed {
		q.cond.Wait()
	}

	if q.closed {
		return nil
	}

	j := q.items[0]
	q.items = q.items[1:]
	return j
}

// TryPop is like Pop but returns nil immediately if the queue is empty.
func (q *fifo) TryPop() *Job {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed || len(q.items) == 0 {
		return nil
	}

	j := q.items[0]
	q.items = q.items[1:]
	return j
}

// Len returns the number of buffered jobs.
func (q *fifo) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close shuts the queue down and wakes any blocked Pop.
func (q *fifo) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	q.items = nil
	q.cond.Broadcast()
}
