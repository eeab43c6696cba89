package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zlomekfs/zfsd/internal/codec"
	"github.com/zlomekfs/zfsd/internal/metadata"
)

func TestMaterializeModifyModifyConflict(t *testing.T) {
	local := codec.FileHandle{Dev: 1, Ino: 2}
	remote := codec.FileHandle{Dev: 1, Ino: 3}
	c := MaterializeModifyModifyConflict(1, 1, "foo", local, remote)
	assert.Equal(t, ConflictModifyModify, c.Kind)
	assert.Equal(t, local, c.LocalFH)
	assert.Equal(t, remote, c.RemoteFH)
	assert.False(t, c.HasNonexistent)
}

func TestMaterializeCreateCreateConflict(t *testing.T) {
	local := codec.FileHandle{Dev: 1, Ino: 2}
	remote := codec.FileHandle{Dev: 1, Ino: 4}
	c := MaterializeCreateCreateConflict(1, 1, "bar", local, remote)
	assert.Equal(t, ConflictCreateCreate, c.Kind)
	assert.Equal(t, local, c.LocalFH)
	assert.Equal(t, remote, c.RemoteFH)
}

func TestMaterializeDeleteModifyConflict(t *testing.T) {
	remote := codec.FileHandle{Dev: 1, Ino: 5}
	c := MaterializeDeleteModifyConflict(1, 1, "baz", remote)
	assert.Equal(t, ConflictModifyDelete, c.Kind)
	assert.True(t, c.LocalFH.IsUndefined())
	assert.Equal(t, remote, c.RemoteFH)
	assert.True(t, c.HasNonexistent)
}

func TestResolveConflictCancelIsNoop(t *testing.T) {
	store := newTestVolume(t)
	eng := New(store, nil)
	c := MaterializeModifyModifyConflict(1, 1, "foo", codec.FileHandle{Dev: 9, Ino: 9}, codec.FileHandle{Dev: 9, Ino: 10})
	require.NoError(t, eng.ResolveConflict(c, ResolutionCancel, 5))
}

func TestResolveConflictDiscardLocalClearsComplete(t *testing.T) {
	store := newTestVolume(t)
	eng := New(store, nil)

	rec, _, err := store.Lookup(10, 10, true)
	require.NoError(t, err)
	rec.Flags = rec.Flags.Set(metadata.FlagComplete)
	rec.LocalVersion = 2
	rec.MasterVersion = 1
	require.NoError(t, store.Flush(rec))

	c := MaterializeModifyModifyConflict(0, 0, "x", codec.FileHandle{Dev: 10, Ino: 10}, codec.FileHandle{Dev: 10, Ino: 11})
	require.NoError(t, eng.ResolveConflict(c, ResolutionDiscardLocal, 5))

	got, _, err := store.Lookup(10, 10, false)
	require.NoError(t, err)
	assert.False(t, got.Flags.Has(metadata.FlagComplete))
	assert.Equal(t, uint64(6), got.LocalVersion)
	assert.Equal(t, uint64(6), got.MasterVersion)
}

func TestResolveConflictDiscardRemoteSetsModifiedTree(t *testing.T) {
	store := newTestVolume(t)
	eng := New(store, nil)

	rec, _, err := store.Lookup(11, 11, true)
	require.NoError(t, err)
	rec.LocalVersion = 1
	rec.MasterVersion = 1
	require.NoError(t, store.Flush(rec))

	c := MaterializeModifyModifyConflict(0, 0, "x", codec.FileHandle{Dev: 11, Ino: 11}, codec.FileHandle{Dev: 11, Ino: 12})
	require.NoError(t, eng.ResolveConflict(c, ResolutionDiscardRemote, 3))

	got, _, err := store.Lookup(11, 11, false)
	require.NoError(t, err)
	assert.True(t, got.Flags.Has(metadata.FlagModifiedTree))
	assert.Equal(t, uint64(4), got.LocalVersion)
	assert.Equal(t, uint64(4), got.MasterVersion)
}

func TestResolveConflictDeleteLocalTombstones(t *testing.T) {
	store := newTestVolume(t)
	eng := New(store, nil)

	rec, _, err := store.Lookup(12, 12, true)
	require.NoError(t, err)
	rec.ParentDev, rec.ParentIno, rec.Name = 1, 1, "doomed"
	require.NoError(t, store.Flush(rec))

	c := Conflict{Kind: ConflictCreateCreate, Name: "doomed", ParentDev: 1, ParentIno: 1, LocalFH: codec.FileHandle{Dev: 12, Ino: 12}, RemoteFH: codec.FileHandle{Dev: 12, Ino: 13}}
	require.NoError(t, eng.ResolveConflict(c, ResolutionDeleteLocal, 5))

	got, found, err := store.Lookup(12, 12, false)
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, got.Tombstoned())
}

func TestResolveConflictRequiresSurvivingIdentity(t *testing.T) {
	store := newTestVolume(t)
	eng := New(store, nil)

	c := MaterializeDeleteModifyConflict(1, 1, "gone", codec.FileHandle{Dev: 1, Ino: 2})
	err := eng.ResolveConflict(c, ResolutionDeleteLocal, 5)
	assert.Error(t, err)
}
