// Package scheduler implements C8 of spec.md §4.8: the fast/slow dentry
// queue pair, the spare-worker regulator pool that drains them, and the
// single "slow updater" role, grounded on gcsfuse's background-worker idiom
// (fs/fs.go's dedicated inode-flush goroutines) and rclone/moby's use of
// golang.org/x/sync/errgroup for bounded concurrent background jobs.
package scheduler

import "sync"

// Queue is the blocking FIFO of pending Jobs for one link-speed class,
// spec.md §4.8. Get blocks until an item is available or Close is called
// (queue_exiting of spec.md §5), at which point every blocked and future
// Get returns ok=false.
type Queue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []*Job
	closed bool
}

// NewQueue returns an empty, open queue.
func NewQueue() *Queue {
	q := &Queue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push appends j; a no-op once the queue is closed.
func (q *Queue) Push(j *Job) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.items = append(q.items, j)
	q.cond.Signal()
}

// Get blocks until an item is available or the queue closes.
func (q *Queue) Get() (*Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.items) == 0 {
		return nil, false
	}
	j := q.items[0]
	q.items = q.items[1:]
	return j, true
}

// TryGet pops an item without blocking, reporting false if the queue is
// currently empty (closed or not).
func (q *Queue) TryGet() (*Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil, false
	}
	j := q.items[0]
	q.items = q.items[1:]
	return j, true
}

// HasWork reports whether the queue currently holds at least one item.
func (q *Queue) HasWork() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items) > 0
}

// Len reports the current backlog size, for metrics/tests.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close marks the queue exiting: every blocked and future Get returns
// ok=false, spec.md §5's queue_exiting.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	q.cond.Broadcast()
}
