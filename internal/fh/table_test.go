package fh

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zlomekfs/zfsd/internal/codec"
)

func rootFH() codec.FileHandle { return codec.FileHandle{SID: 1, VID: 1, Dev: 0, Ino: 0, Gen: 1} }

func childFH(ino uint32) codec.FileHandle {
	return codec.FileHandle{SID: 1, VID: 1, Dev: 0, Ino: ino, Gen: 1}
}

func TestGetOrCreateChildRegistersAndReuses(t *testing.T) {
	tbl := New(rootFH())
	fh := childFH(2)

	d1 := tbl.GetOrCreateChild(tbl.Root(), "a", fh)
	d2 := tbl.GetOrCreateChild(tbl.Root(), "a", fh)
	assert.Same(t, d1, d2)
	assert.Equal(t, 2, tbl.NLiveDentries()) // root + child
}

func TestDecrementLookupForgetsDentry(t *testing.T) {
	tbl := New(rootFH())
	fh := childFH(3)
	d := tbl.GetOrCreateChild(tbl.Root(), "f", fh)
	d.IncrementLookup()
	d.IncrementLookup()

	destroyed := d.DecrementLookup(1)
	assert.False(t, destroyed)
	_, ok := tbl.Lookup(fh)
	assert.True(t, ok)

	destroyed = d.DecrementLookup(1)
	assert.True(t, destroyed)
	_, ok = tbl.Lookup(fh)
	assert.False(t, ok)
}

func TestDecrementLookupPanicsOnOverdraw(t *testing.T) {
	tbl := New(rootFH())
	d := tbl.GetOrCreateChild(tbl.Root(), "f", childFH(4))
	d.IncrementLookup()
	assert.Panics(t, func() { d.DecrementLookup(5) })
}

func TestSharedLocksAreConcurrentExclusiveIsNot(t *testing.T) {
	tbl := New(rootFH())
	d := tbl.GetOrCreateChild(tbl.Root(), "f", childFH(5))

	d.Lock(Shared)
	assert.True(t, d.TryLock(Shared))
	assert.False(t, d.TryLock(Exclusive))
	d.Unlock(Shared)
	d.Unlock(Shared)

	assert.True(t, d.TryLock(Exclusive))
	assert.False(t, d.TryLock(Shared))
	d.Unlock(Exclusive)
	assert.Equal(t, Unlocked, d.Level())
}

func TestAcquireCapabilitySharesRefcountedToken(t *testing.T) {
	tbl := New(rootFH())
	fh := childFH(6)
	c1 := tbl.AcquireCapability(fh, codec.OpenRead, 1)
	c2 := tbl.AcquireCapability(fh, codec.OpenRead, 1)
	assert.Equal(t, c1.Verify, c2.Verify)
	assert.Equal(t, 1, tbl.NCapabilities())

	c3 := tbl.AcquireCapability(fh, codec.OpenWrite, 1)
	assert.NotEqual(t, c1.Verify, c3.Verify)
	assert.Equal(t, 2, tbl.NCapabilities())

	require.NoError(t, tbl.ReleaseCapability(c1))
	assert.Equal(t, 2, tbl.NCapabilities()) // c2 still holds a ref on the same token
	require.NoError(t, tbl.ReleaseCapability(c2))
	assert.Equal(t, 1, tbl.NCapabilities())
}

func TestResolveCapabilityRejectsStaleGen(t *testing.T) {
	tbl := New(rootFH())
	fh := childFH(7)
	tbl.GetOrCreateChild(tbl.Root(), "f", fh)
	cap := tbl.AcquireCapability(fh, codec.OpenRead, 1)

	d, err := tbl.ResolveCapability(cap, 1)
	require.NoError(t, err)
	assert.Equal(t, fh, d.FH)

	_, err = tbl.ResolveCapability(cap, 2)
	assert.Error(t, err)
}

func TestConcurrentAcquireDoesNotRace(t *testing.T) {
	tbl := New(rootFH())
	fh := childFH(8)
	tbl.GetOrCreateChild(tbl.Root(), "f", fh)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c := tbl.AcquireCapability(fh, codec.OpenRead, 1)
			tbl.ReleaseCapability(c)
		}()
	}
	wg.Wait()
}
