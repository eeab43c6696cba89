package reconcile

import (
	"context"
	"fmt"

	"github.com/zlomekfs/zfsd/internal/codec"
	"github.com/zlomekfs/zfsd/internal/interval"
	"github.com/zlomekfs/zfsd/internal/zfserr"
)

// BusyCheck reports whether the link backing cap is currently too busy to
// accept another push, spec.md §4.7.3 step 2 "refuse while slow link is
// busy". A nil BusyCheck never refuses.
type BusyCheck func() bool

// ReintegrateFileBlocks is reintegrate_file_blocks of spec.md §4.7.3: it
// pushes every interval in modified to the master, shrinks modified as
// each push succeeds, reconciles the size, and releases whatever version
// lead remains either as transferred bytes or as a bare version bump.
// modified is mutated in place; the caller (UpdateFile, or the scheduler
// calling this directly for a reintegrate-only dentry) is responsible for
// persisting it and the resulting metadata record afterwards.
func (e *Engine) ReintegrateFileBlocks(ctx context.Context, cap codec.Capability, local LocalFile, modified *interval.Tree, masterVersion uint64, localVersion uint64, busy BusyCheck) (newMasterVersion uint64, err error) {
	if err := e.acquireReintegratePrivilege(ctx, cap); err != nil {
		return masterVersion, err
	}

	applied := uint64(0)
	for _, r := range modified.Iterate() {
		for start := r.Start; start < r.End; {
			if busy != nil && busy() {
				// Leave the remaining intervals in modified for the next
				// attempt; the caller still owes a release below since we
				// already hold the privilege.
				goto release
			}

			n := r.End - start
			if n > MaxData {
				n = MaxData
			}
			buf := make([]byte, n)
			if _, rerr := local.ReadAt(buf, int64(start)); rerr != nil {
				err = fmt.Errorf("reconcile: reintegrate_file_blocks: read local: %w", rerr)
				goto release
			}
			if _, werr := e.Remote.WriteAt(ctx, cap, start, buf); werr != nil {
				err = fmt.Errorf("reconcile: reintegrate_file_blocks: remote_write: %w", werr)
				goto release
			}
			modified.Delete(start, start+n)
			applied++
			start += n
		}
	}

release:
	localSize, serr := local.Size()
	if serr == nil {
		if attr, gerr := e.Remote.GetAttr(ctx, cap.FH); gerr == nil && attr.Size != uint64(localSize) {
			if _, serr := e.Remote.SetAttr(ctx, cap, codec.Attr{Size: uint64(localSize)}, codec.SetSize); serr == nil {
				applied++
			}
		}
	}

	implied := applied
	if modified.Empty() && localVersion > masterVersion+implied {
		diff := localVersion - masterVersion - implied
		if verr := e.Remote.ReintegrateVer(ctx, cap, diff); verr == nil {
			implied += diff
		}
	} else {
		_ = e.Remote.Reintegrate(ctx, cap, false)
	}

	if err != nil {
		return masterVersion, err
	}
	return masterVersion + implied, nil
}

// acquireReintegratePrivilege is remote_reintegrate(1) of spec.md §4.7.3
// step 1. It makes a single attempt: a ZFS_BUSY reply is returned to the
// caller as a BUSY-tagged error, with no retry here.
func (e *Engine) acquireReintegratePrivilege(ctx context.Context, cap codec.Capability) error {
	err := e.Remote.Reintegrate(ctx, cap, true)
	if err == nil {
		return nil
	}
	if zfserr.Is(err, zfserr.Busy) {
		return zfserr.Wrap("reconcile: reintegrate privilege busy", zfserr.Busy, err)
	}
	return fmt.Errorf("reconcile: remote_reintegrate(1): %w", err)
}
