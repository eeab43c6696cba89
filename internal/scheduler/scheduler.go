package scheduler

import (
	"context"

	"github.com/zlomekfs/zfsd/internal/conn"
	"github.com/zlomekfs/zfsd/internal/fh"
)

// Scheduler is the C8 facade: it owns one Pool per... actually one Pool
// total, since the fast/slow split already captures the per-link-speed
// routing spec.md §4.8 asks for; volumes and peers share the regulator.
type Scheduler struct {
	pool *Pool
}

// New builds a Scheduler and starts its worker pool under ctx.
func New(ctx context.Context, opts Options) *Scheduler {
	s := &Scheduler{pool: NewPool(opts)}
	s.pool.Start(ctx)
	return s
}

// ScheduleUpdateOrReintegration is schedule_update_or_reintegration of
// spec.md §4.8: it sets IFH_ENQUEUED on d (idempotently — a dentry already
// queued is left alone) and, only on the transition, pushes a Job running
// run onto the queue matching speed. Returns whether this call actually
// enqueued work.
func (s *Scheduler) ScheduleUpdateOrReintegration(d *fh.Dentry, speed conn.LinkSpeed, run func(ctx context.Context) error) bool {
	if !d.MarkEnqueued() {
		return false
	}
	job := &Job{Dentry: d, Speed: speed, Run: run}
	if speed == conn.SpeedSlow {
		s.pool.PushSlow(job)
	} else {
		s.pool.PushFast(job)
	}
	return true
}

// Stats exposes the pool's current worker counts, for metrics.
func (s *Scheduler) Stats() (total, idle int) { return s.pool.Stats() }

// Stop shuts the scheduler down; see shutdown.go.
func (s *Scheduler) Stop() error { return s.pool.Stop() }
