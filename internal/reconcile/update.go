package reconcile

import (
	"context"
	"fmt"

	"github.com/zlomekfs/zfsd/internal/codec"
	"github.com/zlomekfs/zfsd/internal/interval"
	"github.com/zlomekfs/zfsd/internal/metadata"
	"github.com/zlomekfs/zfsd/internal/zfserr"
)

// UpdateFile is update_file of spec.md §4.7.1: it pulls missing byte
// ranges from the master and, if the file also carries local
// modifications, pushes those back first via ReintegrateFileBlocks.
// Dentry locking, link-speed queue routing, and the slow-busy requeue of
// steps 1-2 and 4 are the scheduler's (C8) responsibility; UpdateFile
// assumes the caller already holds the dentry SHARED and has chosen an
// open mode appropriate to the current link.
func (e *Engine) UpdateFile(ctx context.Context, dev, ino uint32, cap codec.Capability, local LocalFile) error {
	rec, found, err := e.Store.Lookup(dev, ino, false)
	if err != nil {
		return fmt.Errorf("reconcile: update_file: lookup: %w", err)
	}
	if !found {
		return zfserr.New("reconcile: update_file: no metadata record", zfserr.Stale)
	}

	remoteAttr, err := e.Remote.GetAttr(ctx, cap.FH)
	if err != nil {
		return fmt.Errorf("reconcile: update_file: get_attr: %w", err)
	}

	updated, modified, err := e.Store.LoadIntervalTrees(dev, ino)
	if err != nil {
		return fmt.Errorf("reconcile: update_file: load_interval_trees: %w", err)
	}
	saved := false
	defer func() {
		if !saved {
			_ = e.Store.SaveIntervalTrees(dev, ino, remoteAttr.Size)
		}
	}()

	localSize, err := local.Size()
	if err != nil {
		return fmt.Errorf("reconcile: update_file: size: %w", err)
	}

	flags := UpdateP(rec, uint64(localSize), !modified.Empty(), remoteAttr)

	if flags.Has(IFHReintegrate) {
		newMasterVersion, err := e.ReintegrateFileBlocks(ctx, cap, local, modified, rec.MasterVersion, rec.LocalVersion, nil)
		if err != nil {
			return fmt.Errorf("reconcile: update_file: reintegrate_file_blocks: %w", err)
		}
		rec.MasterVersion = newMasterVersion
		rec.LocalVersion = rec.MasterVersion
		localSize, err = local.Size()
		if err != nil {
			return fmt.Errorf("reconcile: update_file: size: %w", err)
		}
		remoteAttr, err = e.Remote.GetAttr(ctx, cap.FH)
		if err != nil {
			return fmt.Errorf("reconcile: update_file: get_attr: %w", err)
		}
	}

	if flags.Has(IFHUpdate) {
		// truncate_local_file: widen/shrink to the master's size, but never
		// below the highest byte our own uncommitted modifications reach,
		// spec.md §4.7.1 step 7.
		floor := modified.Max()
		target := remoteAttr.Size
		if target < floor {
			target = floor
		}
		if uint64(localSize) != target {
			if err := local.Truncate(int64(target)); err != nil {
				return fmt.Errorf("reconcile: update_file: truncate: %w", err)
			}
		}

		gaps := updated.Complement(0, target)
		toFetch := interval.Subtract(gaps, modified)

		newMasterVersion, err := e.updateFileBlocks(ctx, cap, local, updated, modified, rec.MasterVersion, toFetch)
		if err != nil {
			return fmt.Errorf("reconcile: update_file: update_file_blocks: %w", err)
		}
		rec.MasterVersion = newMasterVersion
	}

	if updated.Covered(0, remoteAttr.Size) {
		rec.Flags = rec.Flags.Set(metadata.FlagComplete)
	}

	if err := e.Store.SaveIntervalTrees(dev, ino, remoteAttr.Size); err != nil {
		return fmt.Errorf("reconcile: update_file: save_interval_trees: %w", err)
	}
	saved = true

	if err := e.Store.Flush(rec); err != nil {
		return fmt.Errorf("reconcile: update_file: flush: %w", err)
	}
	return nil
}

// updateFileBlocks is update_file_blocks of spec.md §4.7.2: it fetches and
// verifies the given target ranges in ZFS_MAX_MD5_CHUNKS-sized batches,
// writing back only chunks whose md5 differs, and returns the master
// version observed at the end of the walk.
func (e *Engine) updateFileBlocks(ctx context.Context, cap codec.Capability, local LocalFile, updated, modified *interval.Tree, startVersion uint64, targets []interval.Range) (uint64, error) {
	version := startVersion

	// restartFromModified is the recovery of spec.md §4.7.2 step 4 (also
	// reused for a ZFS_CHANGED reply, step 7): the master moved under us,
	// so we discard everything the updated tree thinks it knows and
	// re-derive the target ranges from scratch against the new version.
	restartFromModified := func(newVersion, size uint64) {
		version = newVersion
		updated.Clear()
		for _, r := range modified.Iterate() {
			updated.Insert(r.Start, r.End)
		}
		targets = interval.Subtract(updated.Complement(0, size), modified)
	}

	for attempt := 0; ; attempt++ {
		restarted := false
		for _, batch := range planBatches(targets) {
			offsets := make([]uint64, len(batch))
			lengths := make([]uint32, len(batch))
			for i, r := range batch {
				offsets[i] = r.Start
				lengths[i] = uint32(r.End - r.Start)
			}

			remoteSums, err := e.Remote.MD5Sum(ctx, cap, offsets, lengths)
			if err != nil {
				return version, err
			}
			if len(remoteSums.Chunks) == 0 {
				// The master window vanished (truncation mid-flight): stop,
				// spec.md §4.7.2 step 2.
				return version, nil
			}

			if attempt == 0 && remoteSums.Version != startVersion {
				restartFromModified(remoteSums.Version, remoteSums.Size)
				restarted = true
				break
			}

			localSums, err := localMD5Sum(local, offsets, lengths)
			if err != nil {
				return version, err
			}

			for i, rc := range remoteSums.Chunks {
				if rc.Sum == localSums[i].Sum && rc.Length == localSums[i].Length {
					updated.Insert(rc.Offset, rc.Offset+uint64(rc.Length))
					continue
				}

				res, err := e.Remote.ReadAt(ctx, cap, rc.Offset, uint32(rc.Length))
				if err != nil {
					return version, err
				}
				if res.Changed {
					// ZFS_CHANGED: treat exactly as a silent version
					// change, spec.md §4.7.2 step 7.
					attr, aerr := e.Remote.GetAttr(ctx, cap.FH)
					if aerr != nil {
						return version, aerr
					}
					restartFromModified(attr.Version, attr.Size)
					restarted = true
					break
				}

				if err := spliceAndWrite(local, modified, rc.Offset, res.Data); err != nil {
					return version, err
				}
				updated.Insert(rc.Offset, rc.Offset+uint64(len(res.Data)))
			}
			if restarted {
				break
			}
			version = remoteSums.Version
		}
		if !restarted {
			return version, nil
		}
	}
}

// spliceAndWrite writes remote into local at offset, except within any
// sub-range also covered by modified (our own uncommitted edits), which
// are preserved verbatim, spec.md §4.7.2 step 6 "preserving unrelated
// uncommitted modifications".
func spliceAndWrite(local LocalFile, modified *interval.Tree, offset uint64, remote []byte) error {
	end := offset + uint64(len(remote))
	for _, hole := range modified.Complement(offset, end) {
		segment := remote[hole.Start-offset : hole.End-offset]
		if _, err := local.WriteAt(segment, int64(hole.Start)); err != nil {
			return fmt.Errorf("reconcile: splice write: %w", err)
		}
	}
	return nil
}
