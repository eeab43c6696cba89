package scheduler

import (
	"log/slog"
	"time"
)

// shutdownBackoff is wait_for_thread_to_die's escalating poll schedule of
// spec.md §5 (1, 500, 250000 µs in the original thread-per-worker model),
// carried over unchanged as 1µs/500µs/250ms. Go's workers are cooperative goroutines
// blocked on channel/cond operations rather than OS threads blocked in a
// syscall, so there is no SIGUSR1 equivalent to force one unstuck after the
// schedule runs out; a slow worker here means a Job's Run func is still
// executing, and waitWithBackoffLog only logs a warning at each step of the
// schedule while group.Wait() keeps blocking underneath it.
var shutdownBackoff = []time.Duration{time.Microsecond, 500 * time.Microsecond, 250 * time.Millisecond}

func (p *Pool) waitWithBackoffLog() error {
	done := make(chan error, 1)
	go func() { done <- p.group.Wait() }()

	for _, d := range shutdownBackoff {
		select {
		case err := <-done:
			return err
		case <-time.After(d):
			total, idle := p.Stats()
			p.log.Warn("scheduler shutdown still waiting on workers", "backoff", d, "total", total, "busy", total-idle)
		}
	}
	return <-done
}
