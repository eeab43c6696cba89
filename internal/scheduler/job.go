package scheduler

import (
	"context"

	"github.com/zlomekfs/zfsd/internal/conn"
	"github.com/zlomekfs/zfsd/internal/fh"
)

// Job is one queued unit of background reconciliation work: spec.md §4.8's
// "FH" pushed onto a queue, paired with the closure that actually drives
// internal/reconcile (the scheduler itself stays reconcile-agnostic so it
// can be unit-tested without a real Engine).
type Job struct {
	Dentry *fh.Dentry
	Speed  conn.LinkSpeed
	Run    func(ctx context.Context) error
}
