package codec

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// BufferPool hands out a bounded number of spare encode Buffers, spec.md
// §4.6's "small pool of spare encode buffers": a request that can't
// immediately get a buffer blocks on Acquire rather than growing the pool
// unbounded under load, grounded on the corpus's golang.org/x/sync
// semaphore idiom for bounded concurrent work.
type BufferPool struct {
	sem  *semaphore.Weighted
	free chan *Buffer
}

// NewBufferPool preallocates n encode buffers.
func NewBufferPool(n int) *BufferPool {
	p := &BufferPool{
		sem:  semaphore.NewWeighted(int64(n)),
		free: make(chan *Buffer, n),
	}
	for i := 0; i < n; i++ {
		p.free <- NewEncoder()
	}
	return p
}

// Acquire blocks until a spare buffer is available or ctx is done, handing
// back a freshly Reset one.
func (p *BufferPool) Acquire(ctx context.Context) (*Buffer, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	b := <-p.free
	b.Reset()
	return b, nil
}

// Release returns b to the pool for reuse.
func (p *BufferPool) Release(b *Buffer) {
	p.free <- b
	p.sem.Release(1)
}
