// Package reconcile implements C7 of spec.md §4.7: the update/reintegrate
// engine that pulls master changes onto a copy volume, pushes local
// changes back, replays directory journals, and materialises
// modify-modify / modify-delete / create-create conflicts as synthetic
// conflict directories.
//
// It is grounded on gcsproxy's MutableObject/MutableContent pattern
// (gcsproxy/mutable_object.go, gcsproxy/mutable_content.go): a local cache
// of a remote generation, dirty-tracked, synced with a generation
// precondition whose failure is the direct analogue of a modify-modify
// conflict, generalized here from "one cached object" to "a metadata
// record plus two interval trees describing which byte ranges are known
// fresh (updated) and which are locally dirty (modified)"; and on
// gcsproxy/listing_proxy.go for the directory-side comparison idiom.
package reconcile

import (
	"time"

	"github.com/zlomekfs/zfsd/internal/codec"
	"github.com/zlomekfs/zfsd/internal/metadata"
)

// Block-size constants of spec.md §4.7.2/§4.8.
const (
	// MaxData is ZFS_MAXDATA, the largest single data transfer.
	MaxData = 8 * 1024
	// MaxMD5Chunks is ZFS_MAX_MD5_CHUNKS, the batch size for update_file_blocks.
	MaxMD5Chunks = 64
	// ModifiedBlockSize is ZFS_MODIFIED_BLOCK_SIZE, the coalescing distance
	// for adjacent target intervals within a batch.
	ModifiedBlockSize = 1024
	// SlowBusyDelay is ZFS_SLOW_BUSY_DELAY of spec.md §4.8: how long a slow
	// link must stay busy before the slow updater role is relinquished.
	SlowBusyDelay = 5 * time.Second
)

// UpdateFlags is the bitset returned by UpdateP, spec.md §4.7.
type UpdateFlags uint32

const (
	// IFHUpdate: the file is not COMPLETE, or the master's version moved
	// while ours did not.
	IFHUpdate UpdateFlags = 1 << iota
	// IFHReintegrate: our local version is ahead of master's (directories)
	// or local modifications exist (regular files) while master is
	// unchanged.
	IFHReintegrate
	// IFHMetadata: mode, uid, gid, size (regular), or master_version disagree.
	IFHMetadata
	// IFHEnqueued marks a dentry already pushed to a scheduler queue,
	// spec.md §4.8 "idempotent".
	IFHEnqueued
)

func (f UpdateFlags) Has(bit UpdateFlags) bool { return f&bit != 0 }

// UpdateP is the primitive decision of spec.md §4.7: given the locally
// recorded metadata, the local file's current size (a regular file's size
// isn't part of Record itself — it lives in the local file plus the
// interval trees — so the caller supplies it), whether local modifications
// exist (the modified tree is non-empty), and the attributes just fetched
// from the master, decide which of update/reintegrate/metadata-refresh are
// owed.
func UpdateP(rec metadata.Record, localSize uint64, hasLocalMods bool, remote codec.Attr) UpdateFlags {
	var f UpdateFlags

	masterMoved := remote.Version != rec.MasterVersion
	localMoved := rec.LocalVersion != rec.MasterVersion

	if !rec.Flags.Has(metadata.FlagComplete) || (masterMoved && !localMoved) {
		f |= IFHUpdate
	}

	isDir := remote.Type == codec.TypeDir
	switch {
	case isDir:
		if rec.LocalVersion > rec.MasterVersion && !masterMoved {
			f |= IFHReintegrate
		}
	default:
		if hasLocalMods && !masterMoved {
			f |= IFHReintegrate
		}
	}

	if rec.ModeType != remote.Type ||
		rec.UID != remote.UID || rec.GID != remote.GID ||
		(!isDir && remote.Size != localSize) ||
		rec.MasterVersion != remote.Version {
		f |= IFHMetadata
	}

	return f
}
