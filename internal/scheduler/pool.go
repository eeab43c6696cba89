package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	zfsclock "github.com/zlomekfs/zfsd/clock"
	"github.com/zlomekfs/zfsd/internal/fh"
)

// Options configures a Pool's regulator, spec.md §4.8.
type Options struct {
	MinSpare int
	MaxSpare int
	MaxTotal int

	// SlowBusyDelay is ZFS_SLOW_BUSY_DELAY: how long the slow link may stay
	// busy before the slow updater demotes to an ordinary worker. Zero
	// demotes as soon as the link is seen busy; a negative value selects
	// the 5s default.
	SlowBusyDelay time.Duration

	// LinkBusy reports whether the slow link is currently busy; nil means
	// never busy (every Job on the slow queue runs as soon as it is up).
	LinkBusy func() bool

	Clock zfsclock.Clock
}

func (o Options) withDefaults() Options {
	if o.MinSpare <= 0 {
		o.MinSpare = 1
	}
	if o.MaxSpare < o.MinSpare {
		o.MaxSpare = o.MinSpare
	}
	if o.MaxTotal < o.MaxSpare {
		o.MaxTotal = o.MaxSpare
	}
	if o.SlowBusyDelay < 0 {
		o.SlowBusyDelay = 5 * time.Second
	}
	if o.Clock == nil {
		o.Clock = zfsclock.RealClock{}
	}
	return o
}

// Pool is the two-queue worker pool of spec.md §4.8: a regulator maintains
// [MinSpare, MaxSpare] idle workers up to MaxTotal, and exactly one worker
// at a time holds the "slow updater" role.
type Pool struct {
	Fast *Queue
	Slow *Queue

	opts Options

	mu       sync.Mutex
	total    int
	idle     int
	slowHeld bool

	group  *errgroup.Group
	gctx   context.Context
	cancel context.CancelFunc

	// wake notifies idle workers blocked in workerLoop's select that either
	// queue may be worth re-checking. It is a non-blocking, lossy signal (a
	// worker that misses one will still catch up within wakePollInterval),
	// which is what lets a worker that found the slow queue empty notice a
	// later PushSlow instead of sitting blocked on the fast queue forever.
	wake chan struct{}

	log *slog.Logger
}

// wakePollInterval bounds how long a worker can go without re-checking both
// queues even if it misses a wake signal.
const wakePollInterval = 50 * time.Millisecond

// NewPool builds a Pool over fresh fast/slow queues; call Start to spin up
// the initial spare workers.
func NewPool(opts Options) *Pool {
	return &Pool{
		Fast: NewQueue(),
		Slow: NewQueue(),
		opts: opts.withDefaults(),
		wake: make(chan struct{}, 1),
		log:  slog.With("component", "scheduler"),
	}
}

func (p *Pool) signalWake() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// Start launches MinSpare workers under ctx; Push calls made afterwards may
// grow the pool up to MaxTotal via the regulator.
func (p *Pool) Start(ctx context.Context) {
	gctx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(gctx)
	p.gctx = gctx
	p.cancel = cancel
	p.group = g

	for i := 0; i < p.opts.MinSpare; i++ {
		p.spawn()
	}
}

// PushFast enqueues j on the fast queue and grows the pool if every current
// worker is busy, spec.md §4.8's schedule_update_or_reintegration.
func (p *Pool) PushFast(j *Job) {
	p.Fast.Push(j)
	p.signalWake()
	p.maybeGrow()
}

// PushSlow enqueues j on the slow queue.
func (p *Pool) PushSlow(j *Job) {
	p.Slow.Push(j)
	p.signalWake()
	p.maybeGrow()
}

// Stop closes both queues (queue_exiting) and waits for every worker to
// return; see shutdown.go for the escalating-backoff wait used to log slow
// shutdowns without being able to forcibly kill a goroutine.
func (p *Pool) Stop() error {
	p.Fast.Close()
	p.Slow.Close()
	if p.cancel != nil {
		p.cancel()
	}
	return p.waitWithBackoffLog()
}

// maybeGrow spawns workers while the combined backlog outstrips the pool's
// idle capacity, up to MaxTotal. It is driven off queue length rather than
// "did the lone idle worker claim a job yet", so a burst of Pushes that all
// land before any worker gets scheduled still grows the pool deterministically
// instead of depending on goroutine-scheduling timing.
func (p *Pool) maybeGrow() {
	for {
		p.mu.Lock()
		backlog := p.Fast.Len() + p.Slow.Len()
		grow := backlog > p.idle && p.total < p.opts.MaxTotal
		p.mu.Unlock()
		if !grow {
			return
		}
		p.spawn()
	}
}

func (p *Pool) spawn() {
	p.mu.Lock()
	if p.total >= p.opts.MaxTotal {
		p.mu.Unlock()
		return
	}
	p.total++
	p.idle++
	p.mu.Unlock()

	p.group.Go(func() error {
		p.workerLoop(p.gctx)
		return nil
	})
}

// workerLoop is one regulator-managed worker: it prefers the fast queue,
// takes over the slow queue as the sole slow updater when nothing else is
// holding that role, and otherwise waits for either queue to stir. It
// retires (returns, shrinking the pool) once idle workers exceed MaxSpare.
//
// It deliberately never blocks inside Fast.Get(): a worker that found the
// slow queue empty and fell through to a plain blocking Get would sit deaf
// to any later Push onto the slow queue. Instead the final branch waits on
// a shared wake signal (with a poll-interval fallback) and loops back to
// re-check both queues.
func (p *Pool) workerLoop(ctx context.Context) {
	defer p.finish()
	for {
		if ctx.Err() != nil {
			return
		}

		if job, ok := p.Fast.TryGet(); ok {
			p.runJob(ctx, job)
			if p.shouldRetire() {
				return
			}
			continue
		}

		if p.tryBecomeSlowUpdater() {
			p.runAsSlowUpdater(ctx)
			p.releaseSlowRole()
			if p.shouldRetire() {
				return
			}
			continue
		}

		if p.shouldRetire() {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-p.wake:
		case <-time.After(wakePollInterval):
		}
	}
}

func (p *Pool) tryBecomeSlowUpdater() bool {
	if !p.Slow.HasWork() {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.slowHeld {
		return false
	}
	p.slowHeld = true
	return true
}

func (p *Pool) releaseSlowRole() {
	p.mu.Lock()
	p.slowHeld = false
	p.mu.Unlock()
}

// runAsSlowUpdater drains the slow queue while the link stays idle,
// demoting (returning) once the queue empties or the link has been busy for
// at least SlowBusyDelay, spec.md §4.8.
func (p *Pool) runAsSlowUpdater(ctx context.Context) {
	var busySince time.Time
	for {
		if ctx.Err() != nil {
			return
		}
		if p.opts.LinkBusy != nil && p.opts.LinkBusy() {
			if busySince.IsZero() {
				busySince = p.opts.Clock.Now()
			}
			if p.opts.Clock.Now().Sub(busySince) >= p.opts.SlowBusyDelay {
				return
			}
			select {
			case <-ctx.Done():
				return
			case <-p.opts.Clock.After(10 * time.Millisecond):
			}
			continue
		}
		busySince = time.Time{}

		job, ok := p.Slow.TryGet()
		if !ok {
			return
		}
		p.runJob(ctx, job)
	}
}

// runJob executes j on behalf of whichever worker goroutine called it,
// giving it its own fixed-size locked-dentry stack (spec.md §4.4's
// MAX_LOCKED_FILE_HANDLES, one per worker thread) so any dentry lock j takes
// and forgets to release is still unwound here on the job's exit path,
// mirroring a worker thread's cleanup handler in the original design.
func (p *Pool) runJob(ctx context.Context, j *Job) {
	p.mu.Lock()
	p.idle--
	p.mu.Unlock()

	if j.Dentry != nil {
		j.Dentry.ClearEnqueued()
	}

	locks := fh.NewLockStack()
	jobCtx := fh.WithLockStack(ctx, locks)
	func() {
		defer locks.ReleaseAll()
		if err := j.Run(jobCtx); err != nil {
			p.log.Warn("scheduled job failed", "error", err)
		}
	}()

	p.mu.Lock()
	p.idle++
	p.mu.Unlock()
}

// shouldRetire reports whether this worker should exit to shrink the pool
// back towards MaxSpare idle workers, without ever dropping below MinSpare
// total workers. The actual count decrement happens once, in finish, on
// every exit path (this one included) via the worker loop's deferred call.
func (p *Pool) shouldRetire() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.idle > p.opts.MaxSpare && p.total > p.opts.MinSpare
}

// finish accounts for this worker leaving the pool, however it exited
// (context cancellation, a closed queue, or voluntarily shrinking).
func (p *Pool) finish() {
	p.mu.Lock()
	p.total--
	p.idle--
	p.mu.Unlock()
}

// Stats reports the current total/idle worker counts, for tests/metrics.
func (p *Pool) Stats() (total, idle int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.total, p.idle
}
