package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zlomekfs/zfsd/internal/codec"
	"github.com/zlomekfs/zfsd/internal/conn"
	"github.com/zlomekfs/zfsd/internal/fh"
)

func newTestDentry() *fh.Dentry {
	root := codec.FileHandle{SID: 1, VID: 1, Dev: 1, Ino: 1, Gen: 1}
	table := fh.New(root)
	child := codec.FileHandle{SID: 1, VID: 1, Dev: 1, Ino: 2, Gen: 1}
	return table.GetOrCreateChild(table.Root(), "child", child)
}

func TestScheduleUpdateOrReintegrationIsIdempotent(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := New(ctx, Options{MinSpare: 1, MaxSpare: 1, MaxTotal: 1})
	defer s.Stop()

	d := newTestDentry()

	release := make(chan struct{})
	var runs atomic.Int32
	run := func(ctx context.Context) error {
		runs.Add(1)
		<-release
		return nil
	}

	require.True(t, s.ScheduleUpdateOrReintegration(d, conn.SpeedFast, run))
	// The dentry is now enqueued; until a worker dequeues the job (runJob
	// clears IFH_ENQUEUED just before calling run), a second call must be
	// rejected as a duplicate.
	require.False(t, s.ScheduleUpdateOrReintegration(d, conn.SpeedFast, run))

	close(release)
	waitUntil(t, time.Second, func() bool { return runs.Load() == 1 })

	// runJob ran ClearEnqueued when it dequeued the job; confirm the flag is
	// clear afterwards, as a sign the cycle can schedule again.
	waitUntil(t, time.Second, func() bool { return !d.Enqueued() })
}

func TestScheduleUpdateOrReintegrationRoutesBySpeed(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := New(ctx, Options{MinSpare: 1, MaxSpare: 1, MaxTotal: 1})
	defer s.Stop()

	fastDentry := newTestDentry()
	var fastRan atomic.Bool
	require.True(t, s.ScheduleUpdateOrReintegration(fastDentry, conn.SpeedFast, func(ctx context.Context) error {
		fastRan.Store(true)
		return nil
	}))
	waitUntil(t, time.Second, fastRan.Load)

	slowDentry := newTestDentry()
	var slowRan atomic.Bool
	require.True(t, s.ScheduleUpdateOrReintegration(slowDentry, conn.SpeedSlow, func(ctx context.Context) error {
		slowRan.Store(true)
		return nil
	}))
	waitUntil(t, time.Second, slowRan.Load)
}

func TestScheduleUpdateOrReintegrationCanReenqueueAfterRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := New(ctx, Options{MinSpare: 1, MaxSpare: 1, MaxTotal: 1})
	defer s.Stop()

	d := newTestDentry()
	var runs atomic.Int32
	run := func(ctx context.Context) error {
		runs.Add(1)
		return nil
	}

	require.True(t, s.ScheduleUpdateOrReintegration(d, conn.SpeedFast, run))
	waitUntil(t, time.Second, func() bool { return runs.Load() == 1 })

	require.True(t, s.ScheduleUpdateOrReintegration(d, conn.SpeedFast, run))
	waitUntil(t, time.Second, func() bool { return runs.Load() == 2 })
}
