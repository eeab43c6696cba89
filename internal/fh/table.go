package fh

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/jacobsa/syncutil"
	"github.com/zlomekfs/zfsd/internal/codec"
)

// Table is the per-volume arena of live dentries and issued capabilities,
// spec.md §4.4. The root dentry always exists at RootDev/RootIno and is
// never forgotten.
type Table struct {
	// mu guards dentries and caps below; never held across Dentry.Lock.
	// An InvariantMutex (gcsfuse's fs.fileSystem.mu idiom) catches a table
	// that loses track of its own root dentry instead of corrupting
	// silently.
	mu syncutil.InvariantMutex

	root     *Dentry
	dentries map[codec.FileHandle]*Dentry

	caps    map[[codec.VerifySize]byte]*capEntry
	byFH    map[codec.FileHandle][][codec.VerifySize]byte
}

type capEntry struct {
	cap  codec.Capability
	refs uint32
}

// New creates a table with a root dentry for rootFH.
func New(rootFH codec.FileHandle) *Table {
	t := &Table{
		dentries: make(map[codec.FileHandle]*Dentry),
		caps:     make(map[[codec.VerifySize]byte]*capEntry),
		byFH:     make(map[codec.FileHandle][][codec.VerifySize]byte),
	}
	t.root = newDentry(rootFH, "", nil, func() error {
		return fmt.Errorf("fh: root dentry must never be destroyed")
	})
	t.root.rc.count = 1 // the root is always pinned
	t.dentries[rootFH] = t.root
	t.mu = syncutil.NewInvariantMutex(t.checkInvariants)
	return t
}

// checkInvariants is run by the InvariantMutex on every Lock/Unlock: the
// root dentry must always be present and registered under its own FH,
// spec.md §4.4's "the root dentry always exists... and is never forgotten".
func (t *Table) checkInvariants() {
	if t.root == nil {
		panic("fh: table has no root dentry")
	}
	if t.dentries[t.root.FH] != t.root {
		panic("fh: root dentry missing from the dentry table")
	}
}

// Root returns the volume's root dentry.
func (t *Table) Root() *Dentry { return t.root }

// Lookup returns the live dentry for fh, if any.
func (t *Table) Lookup(fh codec.FileHandle) (*Dentry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	d, ok := t.dentries[fh]
	return d, ok
}

// GetOrCreateChild returns the dentry for (parent,name,fh), creating and
// registering a fresh one (with lookup count zero) if it isn't already
// live, spec.md §4.4 dentry-arena semantics.
func (t *Table) GetOrCreateChild(parent *Dentry, name string, fh codec.FileHandle) *Dentry {
	t.mu.Lock()
	defer t.mu.Unlock()

	if existing, ok := t.dentries[fh]; ok {
		parent.setChild(name, existing)
		return existing
	}

	d := newDentry(fh, name, parent, func() error {
		t.mu.Lock()
		delete(t.dentries, fh)
		t.mu.Unlock()
		parent.removeChild(name)
		return nil
	})
	t.dentries[fh] = d
	parent.setChild(name, d)
	return d
}

// IncrementLookup bumps d's kernel-visible lookup count, mirroring
// fs/inode's lookupCount.Inc, spec.md §4.4.
func (d *Dentry) IncrementLookup() {
	d.rc.inc()
}

// DecrementLookup decrements d's lookup count by n, destroying (forgetting)
// the dentry once it reaches zero.
func (d *Dentry) DecrementLookup(n uint32) (destroyed bool) {
	return d.rc.dec(n)
}

// AcquireCapability issues a fresh capability for fh with the given flags.
// The gen argument is not consulted: ResolveCapability judges staleness
// against the Gen field of fh itself. Re-acquiring with the same
// (fh,flags) shares one refcounted token rather than minting a new one,
// matching ZFS's "capability... reference-counted" requirement.
func (t *Table) AcquireCapability(fh codec.FileHandle, flags codec.OpenFlags, gen uint32) codec.Capability {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, tok := range t.byFH[fh] {
		e := t.caps[tok]
		if e.cap.Flags == flags {
			e.refs++
			return e.cap
		}
	}

	cap := codec.Capability{FH: fh, Flags: flags}
	verify := uuid.New()
	copy(cap.Verify[:], verify[:])
	t.caps[cap.Verify] = &capEntry{cap: cap, refs: 1}
	t.byFH[fh] = append(t.byFH[fh], cap.Verify)
	return cap
}

// ReleaseCapability drops one reference to cap, forgetting it once the
// count reaches zero.
func (t *Table) ReleaseCapability(cap codec.Capability) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.caps[cap.Verify]
	if !ok {
		return fmt.Errorf("fh: release_capability: unknown verify token")
	}
	e.refs--
	if e.refs > 0 {
		return nil
	}
	delete(t.caps, cap.Verify)
	toks := t.byFH[cap.FH]
	for i, tok := range toks {
		if tok == cap.Verify {
			t.byFH[cap.FH] = append(toks[:i], toks[i+1:]...)
			break
		}
	}
	if len(t.byFH[cap.FH]) == 0 {
		delete(t.byFH, cap.FH)
	}
	return nil
}

// ResolveCapability validates cap against the currently live dentry for its
// FH, rejecting a stale verify token (stale means the metadata generation
// moved on since the capability was minted, spec.md §3 STALE).
func (t *Table) ResolveCapability(cap codec.Capability, currentGen uint32) (*Dentry, error) {
	t.mu.Lock()
	e, ok := t.caps[cap.Verify]
	t.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("fh: resolve_capability: unknown verify token")
	}
	if e.cap.FH.Gen != currentGen {
		return nil, fmt.Errorf("fh: resolve_capability: stale (cap gen=%d, current gen=%d)", e.cap.FH.Gen, currentGen)
	}
	d, ok := t.Lookup(cap.FH)
	if !ok {
		return nil, fmt.Errorf("fh: resolve_capability: no live dentry for %s", cap.FH)
	}
	return d, nil
}

// NLiveDentries reports the arena size, for tests/metrics.
func (t *Table) NLiveDentries() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.dentries)
}

// NCapabilities reports the number of distinct issued tokens.
func (t *Table) NCapabilities() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.caps)
}
