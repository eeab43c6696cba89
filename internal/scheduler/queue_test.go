package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueuePushGetFIFO(t *testing.T) {
	q := NewQueue()
	a := &Job{}
	b := &Job{}
	q.Push(a)
	q.Push(b)

	got1, ok := q.Get()
	require.True(t, ok)
	assert.Same(t, a, got1)

	got2, ok := q.Get()
	require.True(t, ok)
	assert.Same(t, b, got2)
}

func TestQueueGetBlocksUntilPush(t *testing.T) {
	q := NewQueue()
	result := make(chan *Job, 1)
	go func() {
		j, ok := q.Get()
		if ok {
			result <- j
		}
	}()

	select {
	case <-result:
		t.Fatal("Get returned before any Push")
	case <-time.After(20 * time.Millisecond):
	}

	j := &Job{}
	q.Push(j)

	select {
	case got := <-result:
		assert.Same(t, j, got)
	case <-time.After(time.Second):
		t.Fatal("Get never unblocked after Push")
	}
}

func TestQueueCloseUnblocksGet(t *testing.T) {
	q := NewQueue()
	done := make(chan bool, 1)
	go func() {
		_, ok := q.Get()
		done <- ok
	}()

	q.Close()

	select {
	case ok := <-done:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("Get never unblocked after Close")
	}
}

func TestQueueTryGetNonBlocking(t *testing.T) {
	q := NewQueue()
	_, ok := q.TryGet()
	assert.False(t, ok)

	q.Push(&Job{})
	_, ok = q.TryGet()
	assert.True(t, ok)
	assert.False(t, q.HasWork())
}
