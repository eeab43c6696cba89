package metadata

import (
	"container/heap"
	"fmt"
	"os"
	"sync"
	"time"
)

// FDLimiter bounds the number of simultaneously open sidecar/hash files
// across a volume (or the whole daemon), closing the coldest file whenever
// a new open would exceed the configured limit, spec.md §4.3 / §5. It is
// backed by the ids of owned file handles rather than raw descriptors, so a
// closed-and-reopened file never aliases a stale fd, per spec.md §9.
type FDLimiter struct {
	mu       sync.Mutex
	limit    int
	entries  map[string]*fdEntry
	heapData fdHeap
	now      func() time.Time
}

type fdEntry struct {
	path    string
	file    *os.File
	lastUse time.Time
	index   int // heap index
}

type fdHeap []*fdEntry

func (h fdHeap) Len() int            { return len(h) }
func (h fdHeap) Less(i, j int) bool  { return h[i].lastUse.Before(h[j].lastUse) }
func (h fdHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i]; h[i].index = i; h[j].index = j }
func (h *fdHeap) Push(x interface{}) {
	e := x.(*fdEntry)
	e.index = len(*h)
	*h = append(*h, e)
}
func (h *fdHeap) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

// NewFDLimiter creates a limiter allowing at most `limit` concurrently open
// files (default configuration is nfd/4, spec.md §5).
func NewFDLimiter(limit int) *FDLimiter {
	if limit < 1 {
		limit = 1
	}
	return &FDLimiter{
		limit:   limit,
		entries: make(map[string]*fdEntry),
		now:     time.Now,
	}
}

// Acquire returns the open *os.File for path, opening it via openFn if not
// already cached. If that open fails for any reason (such as "too many open
// files", spec.md §4.3) and something is cached, the least-recently-used
// entry is closed and the open is retried once. After a successful open,
// least-recently-used entries are closed until the new one fits the limit.
func (l *FDLimiter) Acquire(path string, openFn func(string) (*os.File, error)) (*os.File, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if e, ok := l.entries[path]; ok {
		e.lastUse = l.now()
		heap.Fix(&l.heapData, e.index)
		return e.file, nil
	}

	f, err := openFn(path)
	if err != nil {
		if len(l.entries) > 0 {
			l.evictLocked()
			f, err = openFn(path)
		}
		if err != nil {
			return nil, fmt.Errorf("metadata: open %s: %w", path, err)
		}
	}

	for len(l.entries) >= l.limit {
		l.evictLocked()
	}

	e := &fdEntry{path: path, file: f, lastUse: l.now()}
	l.entries[path] = e
	heap.Push(&l.heapData, e)
	return f, nil
}

// Release drops and closes path's cached fd immediately (used when a
// sidecar is deleted, e.g. once a tree becomes COMPLETE and its file is
// removed).
func (l *FDLimiter) Release(path string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[path]
	if !ok {
		return nil
	}
	delete(l.entries, path)
	heap.Remove(&l.heapData, e.index)
	return e.file.Close()
}

func (l *FDLimiter) evictLocked() {
	if l.heapData.Len() == 0 {
		return
	}
	e := heap.Pop(&l.heapData).(*fdEntry)
	delete(l.entries, e.path)
	e.file.Close()
}

// CloseAll closes every tracked file, used on shutdown.
func (l *FDLimiter) CloseAll() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.entries {
		e.file.Close()
	}
	l.entries = make(map[string]*fdEntry)
	l.heapData = nil
}

// Len reports how many files are currently open, for tests/metrics.
func (l *FDLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
