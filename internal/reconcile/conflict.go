package reconcile

import (
	"fmt"

	"github.com/zlomekfs/zfsd/internal/codec"
	"github.com/zlomekfs/zfsd/internal/metadata"
)

// ConflictKind classifies the three ways the two sides of a disconnected
// edit can collide, spec.md §4.7.4/§4.7.5.
type ConflictKind int

const (
	ConflictModifyModify ConflictKind = iota
	ConflictModifyDelete
	ConflictCreateCreate
)

func (k ConflictKind) String() string {
	switch k {
	case ConflictModifyModify:
		return "modify-modify"
	case ConflictModifyDelete:
		return "modify-delete"
	case ConflictCreateCreate:
		return "create-create"
	default:
		return "unknown"
	}
}

// Conflict is the synthetic conflict directory of spec.md §4.7.5: a dentry
// that replaces the file at its parent's namespace position, with a local
// child, a remote child (sid = master), and optionally a ".nonexistent"
// tombstone child when one side has no surviving object at all.
type Conflict struct {
	Kind ConflictKind
	Name string

	ParentDev uint32
	ParentIno uint32

	LocalFH  codec.FileHandle // undefined if the local object is gone
	RemoteFH codec.FileHandle // undefined if the remote object is gone

	HasNonexistent bool
}

// MaterializeModifyModifyConflict builds the conflict for spec.md §4.7.4's
// update_dir mismatch case: both sides still have an object under name,
// but with different identities.
func MaterializeModifyModifyConflict(parentDev, parentIno uint32, name string, local, remote codec.FileHandle) Conflict {
	return Conflict{Kind: ConflictModifyModify, Name: name, ParentDev: parentDev, ParentIno: parentIno, LocalFH: local, RemoteFH: remote}
}

// MaterializeCreateCreateConflict builds the conflict for spec.md §4.7.4's
// reintegrate_dir ADD case: the master already has a different object
// under the name our journal wants to create.
func MaterializeCreateCreateConflict(parentDev, parentIno uint32, name string, local, remote codec.FileHandle) Conflict {
	return Conflict{Kind: ConflictCreateCreate, Name: name, ParentDev: parentDev, ParentIno: parentIno, LocalFH: local, RemoteFH: remote}
}

// MaterializeDeleteModifyConflict builds the conflict for spec.md §4.7.4's
// reintegrate_dir DEL case: the master's object under name no longer
// matches what our journal entry recorded, so our delete can't be trusted
// to hit the same object the master now has.
func MaterializeDeleteModifyConflict(parentDev, parentIno uint32, name string, remote codec.FileHandle) Conflict {
	return Conflict{Kind: ConflictModifyDelete, Name: name, ParentDev: parentDev, ParentIno: parentIno, LocalFH: codec.Undefined, RemoteFH: remote, HasNonexistent: true}
}

// Resolution is one of the five ways a Conflict's lifetime ends, spec.md §4.7.5.
type Resolution int

const (
	// Cancel restores the original (pre-conflict) dentry without changing
	// any version or content; used when the conflict directory itself is
	// renamed/removed out from under it. At this layer — below the dentry
	// tree, which owns restoring the namespace entry — there is no
	// metadata-store state to touch, so Engine.CancelConflict is a no-op
	// provided for symmetry with the other four resolutions.
	ResolutionCancel Resolution = iota
	ResolutionDiscardLocal
	ResolutionDiscardRemote
	ResolutionDeleteLocal
	ResolutionDeleteRemote
)

// CancelConflict restores the dentry this Conflict replaced; see
// ResolutionCancel's doc comment for why this is a no-op at this layer.
func (e *Engine) CancelConflict(c Conflict) error { return nil }

// ResolveConflict applies one of the five resolutions of spec.md §4.7.5 to
// the metadata record at (dev,ino): "Resolution updates both versions to
// max(local,remote)+1, rewrites interval trees accordingly, and schedules
// the file for ordinary update/reintegrate." Discarding local clears the
// COMPLETE flag (so the next update_file refetches the surviving content
// from the master); discarding remote sets MODIFIED_TREE (so the next
// reintegrate pushes local's content up). Deleting one side simply
// tombstones that side's metadata identity via Store.DeleteMetadata.
func (e *Engine) ResolveConflict(c Conflict, res Resolution, remoteVersion uint64) error {
	if res == ResolutionCancel {
		return e.CancelConflict(c)
	}

	dev, ino, ok := identityOf(c, res)
	if !ok {
		return fmt.Errorf("reconcile: resolve_conflict: %v has no surviving identity for resolution %v", c.Kind, res)
	}

	rec, found, err := e.Store.Lookup(dev, ino, false)
	if err != nil {
		return fmt.Errorf("reconcile: resolve_conflict: lookup: %w", err)
	}
	if !found {
		return fmt.Errorf("reconcile: resolve_conflict: no metadata record for dev=%d ino=%d", dev, ino)
	}

	merged := rec.LocalVersion
	if remoteVersion > merged {
		merged = remoteVersion
	}
	merged++
	rec.LocalVersion = merged
	rec.MasterVersion = merged

	switch res {
	case ResolutionDiscardLocal:
		rec.Flags = rec.Flags.Clear(metadata.FlagComplete)
	case ResolutionDiscardRemote:
		rec.Flags = rec.Flags.Set(metadata.FlagModifiedTree)
	case ResolutionDeleteLocal, ResolutionDeleteRemote:
		return e.Store.DeleteMetadata(dev, ino, c.ParentDev, c.ParentIno, c.Name)
	}

	return e.Store.Flush(rec)
}

// identityOf returns the metadata identity every resolution operates on:
// the local FH, since even the "remote" child is addressed locally
// through its FH mapping once fetched, per spec.md §4.3's "FH mapping:
// ... translate peer handles to local ones".
func identityOf(c Conflict, res Resolution) (dev, ino uint32, ok bool) {
	if c.LocalFH.IsUndefined() {
		return 0, 0, false
	}
	return c.LocalFH.Dev, c.LocalFH.Ino, true
}
