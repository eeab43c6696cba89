package fh

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zlomekfs/zfsd/internal/codec"
)

func newTestTable(t *testing.T) *Table {
	t.Helper()
	return New(codec.FileHandle{SID: 1, VID: 1, Dev: 1, Ino: 1, Gen: 1})
}

func TestLockStackLockUnlockRoundTrip(t *testing.T) {
	tbl := newTestTable(t)
	root := tbl.Root()

	s := NewLockStack()
	require.NoError(t, s.Lock(root, Shared))
	assert.Equal(t, 1, s.Len())

	s.Unlock(root)
	assert.Equal(t, 0, s.Len())
}

func TestLockStackReleaseAllUnwindsLIFO(t *testing.T) {
	tbl := newTestTable(t)
	root := tbl.Root()
	a := tbl.GetOrCreateChild(root, "a", codec.FileHandle{SID: 1, VID: 1, Dev: 1, Ino: 2, Gen: 1})
	b := tbl.GetOrCreateChild(root, "b", codec.FileHandle{SID: 1, VID: 1, Dev: 1, Ino: 3, Gen: 1})

	s := NewLockStack()
	require.NoError(t, s.Lock(root, Shared))
	require.NoError(t, s.Lock(a, Exclusive))
	require.NoError(t, s.Lock(b, Shared))
	assert.Equal(t, 3, s.Len())

	s.ReleaseAll()
	assert.Equal(t, 0, s.Len())

	// every dentry must be free to lock exclusively again
	assert.True(t, root.TryLock(Exclusive))
	assert.True(t, a.TryLock(Exclusive))
	assert.True(t, b.TryLock(Exclusive))
}

func TestLockStackRejectsOnceFull(t *testing.T) {
	tbl := newTestTable(t)
	root := tbl.Root()

	s := NewLockStack()
	for i := 0; i < MaxLockedFileHandles; i++ {
		d := tbl.GetOrCreateChild(root, string(rune('a'+i)), codec.FileHandle{SID: 1, VID: 1, Dev: 1, Ino: uint32(i + 100), Gen: 1})
		require.NoError(t, s.Lock(d, Shared))
	}
	assert.Equal(t, MaxLockedFileHandles, s.Len())

	overflow := tbl.GetOrCreateChild(root, "overflow", codec.FileHandle{SID: 1, VID: 1, Dev: 1, Ino: 999, Gen: 1})
	assert.Error(t, s.Lock(overflow, Shared))

	s.ReleaseAll()
}

func TestLockStackContextPropagation(t *testing.T) {
	s := NewLockStack()
	ctx := WithLockStack(context.Background(), s)

	got, ok := LockStackFromContext(ctx)
	require.True(t, ok)
	assert.Same(t, s, got)

	_, ok = LockStackFromContext(context.Background())
	assert.False(t, ok)
}
