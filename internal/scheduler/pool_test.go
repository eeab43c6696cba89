package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	zfsclock "github.com/zlomekfs/zfsd/clock"
)

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	require.True(t, cond(), "condition never became true within %s", timeout)
}

func TestPoolRunsFastJob(t *testing.T) {
	p := NewPool(Options{MinSpare: 1, MaxSpare: 1, MaxTotal: 1})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)

	var ran atomic.Bool
	p.PushFast(&Job{Run: func(ctx context.Context) error {
		ran.Store(true)
		return nil
	}})

	waitUntil(t, time.Second, ran.Load)
}

func TestPoolGrowsWhenAllWorkersBusy(t *testing.T) {
	p := NewPool(Options{MinSpare: 1, MaxSpare: 1, MaxTotal: 3})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)

	release := make(chan struct{})
	block := func(ctx context.Context) error {
		<-release
		return nil
	}

	p.PushFast(&Job{Run: block})
	p.PushFast(&Job{Run: block})
	p.PushFast(&Job{Run: block})

	waitUntil(t, time.Second, func() bool {
		total, _ := p.Stats()
		return total == 3
	})

	close(release)
}

func TestPoolShrinksBackToMaxSpareAfterBurst(t *testing.T) {
	p := NewPool(Options{MinSpare: 1, MaxSpare: 1, MaxTotal: 3})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)

	var wg sync.WaitGroup
	wg.Add(3)
	for i := 0; i < 3; i++ {
		p.PushFast(&Job{Run: func(ctx context.Context) error {
			wg.Done()
			return nil
		}})
	}
	wg.Wait()

	waitUntil(t, time.Second, func() bool {
		total, _ := p.Stats()
		return total == 1
	})
}

func TestSlowUpdaterDemotesImmediatelyWhenBusyDelayIsZero(t *testing.T) {
	clk := zfsclock.NewSimulatedClock(time.Unix(0, 0))
	var busy atomic.Bool
	busy.Store(true)

	p := NewPool(Options{
		MinSpare:      1,
		MaxSpare:      1,
		MaxTotal:      1,
		SlowBusyDelay: 0,
		Clock:         clk,
		LinkBusy:      busy.Load,
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)

	var ran atomic.Bool
	p.PushSlow(&Job{Run: func(ctx context.Context) error {
		ran.Store(true)
		return nil
	}})

	busy.Store(false) // let the worker (demoted back to general duty) pick it up
	waitUntil(t, time.Second, ran.Load)
}

func TestSlowUpdaterDrainsThenDemotes(t *testing.T) {
	p := NewPool(Options{MinSpare: 1, MaxSpare: 1, MaxTotal: 1})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)

	var count atomic.Int32
	for i := 0; i < 5; i++ {
		p.PushSlow(&Job{Run: func(ctx context.Context) error {
			count.Add(1)
			return nil
		}})
	}

	waitUntil(t, time.Second, func() bool { return count.Load() == 5 })
}

func TestPoolStopDrainsAndReturns(t *testing.T) {
	p := NewPool(Options{MinSpare: 1, MaxSpare: 1, MaxTotal: 1})
	ctx := context.Background()
	p.Start(ctx)

	var ran atomic.Bool
	p.PushFast(&Job{Run: func(ctx context.Context) error {
		ran.Store(true)
		return nil
	}})
	waitUntil(t, time.Second, ran.Load)

	require.NoError(t, p.Stop())
}
