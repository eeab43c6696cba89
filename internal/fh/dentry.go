// Package fh implements C4 of spec.md §4.4: the in-memory local
// file-handle table (dentry arena), its three-level per-dentry locking, and
// capability issuance/refcounting, grounded on gcsfuse's fs.fileSystem
// inode table and fs/inode's lookup-count idiom.
package fh

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/zlomekfs/zfsd/internal/codec"
)

// LockLevel is the three-state per-dentry lock of spec.md §4.4 and the
// global lock-ordering note of §5: UNLOCKED, SHARED (readers), EXCLUSIVE
// (a single writer).
type LockLevel int

const (
	Unlocked LockLevel = iota
	Shared
	Exclusive
)

func (l LockLevel) String() string {
	switch l {
	case Unlocked:
		return "unlocked"
	case Shared:
		return "shared"
	case Exclusive:
		return "exclusive"
	default:
		return "invalid"
	}
}

// Dentry is one entry in the local file-handle table: a (dev,ino,gen)
// identity with its parent link, children, lookup count and lock state,
// spec.md §4.4.
type Dentry struct {
	FH   codec.FileHandle
	Name string

	parent *Dentry

	rw sync.RWMutex

	// levelMu guards level/held below; it is never held while blocked in rw.
	levelMu sync.Mutex
	level   LockLevel
	held    int // number of shared holders, or 1 for exclusive

	childrenMu sync.Mutex
	children   map[string]*Dentry

	rc refCount

	// enqueued mirrors IFH_ENQUEUED of spec.md §4.8: set while this dentry
	// has an outstanding schedule_update_or_reintegration push, cleared once
	// the scheduler's worker has picked it up, so a second caller racing the
	// same dentry is a no-op rather than a duplicate queue entry.
	enqueued atomic.Bool

	// dir is set once at creation time (Mkdir vs. CreateFile) and never
	// changes; it lets callers outside this package (the FUSE adapter) tell
	// a directory dentry from a regular-file one without consulting the
	// cache-file layer.
	dir atomic.Bool
}

func newDentry(fh codec.FileHandle, name string, parent *Dentry, destroy func() error) *Dentry {
	d := &Dentry{FH: fh, Name: name, parent: parent, children: make(map[string]*Dentry)}
	d.rc.destroy = destroy
	return d
}

// Lock acquires the dentry at the requested level. EXCLUSIVE excludes both
// other EXCLUSIVE and all SHARED holders; SHARED excludes only EXCLUSIVE,
// spec.md §4.4.
func (d *Dentry) Lock(level LockLevel) {
	switch level {
	case Shared:
		d.rw.RLock()
	case Exclusive:
		d.rw.Lock()
	default:
		panic(fmt.Sprintf("fh: invalid lock level %v", level))
	}
	d.levelMu.Lock()
	d.level = level
	d.held++
	d.levelMu.Unlock()
}

// TryLock is the non-blocking form, used by operations that must not stall
// behind a slow peer holding the dentry, spec.md §4.4.
func (d *Dentry) TryLock(level LockLevel) bool {
	var ok bool
	switch level {
	case Shared:
		ok = d.rw.TryRLock()
	case Exclusive:
		ok = d.rw.TryLock()
	default:
		panic(fmt.Sprintf("fh: invalid lock level %v", level))
	}
	if ok {
		d.levelMu.Lock()
		d.level = level
		d.held++
		d.levelMu.Unlock()
	}
	return ok
}

// Unlock releases one holder at the given level.
func (d *Dentry) Unlock(level LockLevel) {
	d.levelMu.Lock()
	d.held--
	if d.held == 0 {
		d.level = Unlocked
	}
	d.levelMu.Unlock()

	switch level {
	case Shared:
		d.rw.RUnlock()
	case Exclusive:
		d.rw.Unlock()
	default:
		panic(fmt.Sprintf("fh: invalid lock level %v", level))
	}
}

// MarkEnqueued sets IFH_ENQUEUED if it was not already set, reporting
// whether this call was the one that set it (the scheduler only pushes the
// dentry onto a queue when this returns true, spec.md §4.8).
func (d *Dentry) MarkEnqueued() bool {
	return d.enqueued.CompareAndSwap(false, true)
}

// ClearEnqueued clears IFH_ENQUEUED; called by the worker once it has
// popped the dentry off its queue and is about to run the update.
func (d *Dentry) ClearEnqueued() {
	d.enqueued.Store(false)
}

// Enqueued reports the current IFH_ENQUEUED state, for diagnostics.
func (d *Dentry) Enqueued() bool {
	return d.enqueued.Load()
}

// MarkDir records that this dentry represents a directory; called once by
// the facade right after creating it via Mkdir.
func (d *Dentry) MarkDir() { d.dir.Store(true) }

// IsDir reports whether this dentry was created as a directory.
func (d *Dentry) IsDir() bool { return d.dir.Load() }

// Level reports the current lock state, for diagnostics and assertions.
func (d *Dentry) Level() LockLevel {
	d.levelMu.Lock()
	defer d.levelMu.Unlock()
	return d.level
}

// Parent returns the parent dentry, or nil for the volume root.
func (d *Dentry) Parent() *Dentry {
	return d.parent
}

func (d *Dentry) child(name string) (*Dentry, bool) {
	d.childrenMu.Lock()
	defer d.childrenMu.Unlock()
	c, ok := d.children[name]
	return c, ok
}

// Child returns the live child dentry named name, if any, for callers
// outside this package (the FUSE adapter's name-based LookUpInode).
func (d *Dentry) Child(name string) (*Dentry, bool) {
	return d.child(name)
}

// Children returns a point-in-time snapshot of d's live children, for the
// FUSE adapter's ReadDir.
func (d *Dentry) Children() map[string]*Dentry {
	d.childrenMu.Lock()
	defer d.childrenMu.Unlock()
	snapshot := make(map[string]*Dentry, len(d.children))
	for name, c := range d.children {
		snapshot[name] = c
	}
	return snapshot
}

func (d *Dentry) setChild(name string, c *Dentry) {
	d.childrenMu.Lock()
	defer d.childrenMu.Unlock()
	d.children[name] = c
}

func (d *Dentry) removeChild(name string) {
	d.childrenMu.Lock()
	defer d.childrenMu.Unlock()
	delete(d.children, name)
}

// RemoveChild detaches name from d's live children, for callers outside
// this package (Unlink/RmDir unlinking a directory entry immediately, while
// the removed dentry itself survives until its lookup count drops to zero).
func (d *Dentry) RemoveChild(name string) {
	d.removeChild(name)
}
