package metadata

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zlomekfs/zfsd/internal/codec"
)

func newTestStore(t *testing.T, isCopy bool) *Store {
	t.Helper()
	root := t.TempDir()
	s, err := Open(Options{Root: root, IsCopy: isCopy, FDLimit: 8})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestLookupInsertsFreshRecordOnCopyVolume(t *testing.T) {
	s := newTestStore(t, true)
	r, found, err := s.Lookup(1, 2, true)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, uint64(1), r.LocalVersion)
	assert.Equal(t, uint64(0), r.MasterVersion)
}

func TestLookupInsertsFreshRecordOnMasterVolume(t *testing.T) {
	s := newTestStore(t, false)
	r, found, err := s.Lookup(1, 2, true)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, uint64(1), r.MasterVersion)
}

func TestLookupWithoutInsertMiss(t *testing.T) {
	s := newTestStore(t, true)
	_, found, err := s.Lookup(9, 9, false)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestFlushOverwritesExistingRecord(t *testing.T) {
	s := newTestStore(t, true)
	r, _, err := s.Lookup(1, 1, true)
	require.NoError(t, err)
	r.UID = 42
	require.NoError(t, s.Flush(r))

	got, found, err := s.Lookup(1, 1, false)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, uint32(42), got.UID)
}

func TestIncLocalVersionAndModifiedMirrorsOnMaster(t *testing.T) {
	s := newTestStore(t, false)
	_, _, err := s.Lookup(1, 1, true)
	require.NoError(t, err)
	require.NoError(t, s.IncLocalVersionAndModified(1, 1))

	got, _, err := s.Lookup(1, 1, false)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), got.LocalVersion)
	assert.Equal(t, uint64(2), got.MasterVersion)
	assert.True(t, got.Flags.Has(FlagModifiedTree))
}

func TestHardlinkInlineThenSidecarThenBackToInline(t *testing.T) {
	s := newTestStore(t, true)
	_, _, err := s.Lookup(5, 5, true)
	require.NoError(t, err)

	require.NoError(t, s.MetadataHardlinkInsert(5, 5, RootDev, RootIno, "a"))
	n, err := s.MetadataNHardlinks(5, 5)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, s.MetadataHardlinkInsert(5, 5, RootDev, RootIno, "b"))
	n, err = s.MetadataNHardlinks(5, 5)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// Delete one: back down to a single inlined link, sidecar removed.
	require.NoError(t, s.DeleteMetadata(5, 5, RootDev, RootIno, "a"))
	n, err = s.MetadataNHardlinks(5, 5)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	rec, found, err := s.Lookup(5, 5, false)
	require.NoError(t, err)
	require.True(t, found)
	assert.False(t, rec.InlineUndefined())
	assert.Equal(t, "b", rec.Name)
}

func TestDeleteLastHardlinkTombstones(t *testing.T) {
	s := newTestStore(t, true)
	_, _, err := s.Lookup(5, 5, true)
	require.NoError(t, err)
	require.NoError(t, s.MetadataHardlinkInsert(5, 5, RootDev, RootIno, "only"))

	require.NoError(t, s.DeleteMetadata(5, 5, RootDev, RootIno, "only"))
	rec, found, err := s.Lookup(5, 5, false)
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, rec.Tombstoned())
	n, err := s.MetadataNHardlinks(5, 5)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestGetLocalPathFromMetadata(t *testing.T) {
	s := newTestStore(t, true)
	_, _, err := s.Lookup(5, 5, true)
	require.NoError(t, err)
	require.NoError(t, s.MetadataHardlinkInsert(5, 5, RootDev, RootIno, "file.txt"))

	p, err := s.GetLocalPathFromMetadata(5, 5)
	require.NoError(t, err)
	assert.Equal(t, s.root+"/file.txt", p)
}

func TestLoadSaveIntervalTreesRefCounted(t *testing.T) {
	s := newTestStore(t, true)
	_, _, err := s.Lookup(2, 2, true)
	require.NoError(t, err)

	u1, m1, err := s.LoadIntervalTrees(2, 2)
	require.NoError(t, err)
	u2, m2, err := s.LoadIntervalTrees(2, 2)
	require.NoError(t, err)
	assert.Same(t, u1, u2)
	assert.Same(t, m1, m2)

	u1.Insert(0, 10)
	require.NoError(t, s.SaveIntervalTrees(2, 2, 10))
	// still ref'd once more
	rec, _, err := s.Lookup(2, 2, false)
	require.NoError(t, err)
	_ = rec

	require.NoError(t, s.SaveIntervalTrees(2, 2, 10))
	rec2, _, err := s.Lookup(2, 2, false)
	require.NoError(t, err)
	assert.True(t, rec2.Flags.Has(FlagComplete))
}

func TestJournalAddReadRoundTrip(t *testing.T) {
	s := newTestStore(t, true)
	e := JournalEntry{
		LocalFH:       codec.FileHandle{SID: 1, VID: 1, Dev: 1, Ino: 1, Gen: 1},
		Oper:          JournalAdd,
		Name:          "foo",
		MasterFH:      codec.FileHandle{SID: 2, VID: 1, Dev: 9, Ino: 9, Gen: 1},
		MasterVersion: 3,
	}
	_, err := s.AddDirJournalEntry(1, 1, 0, e)
	require.NoError(t, err)

	j, err := s.ReadDirJournal(1, 1, 0)
	require.NoError(t, err)
	require.Len(t, j.Entries, 1)
	assert.Equal(t, e, j.Entries[0])
}

func TestFHMappingSetLookupDelete(t *testing.T) {
	s := newTestStore(t, true)
	master := codec.FileHandle{SID: 1, VID: 1, Dev: 1, Ino: 1, Gen: 1}
	local := codec.FileHandle{SID: 2, VID: 1, Dev: 2, Ino: 2, Gen: 1}
	require.NoError(t, s.SetFHMapping(master, local))

	got, found, err := s.LookupFHMapping(master)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, local, got)
}

func TestFDLimiterEvictsLRU(t *testing.T) {
	dir := t.TempDir()
	lim := NewFDLimiter(2)
	open := func(p string) (*os.File, error) { return os.Create(p) }
	_, err := lim.Acquire(dir+"/a", open)
	require.NoError(t, err)
	_, err = lim.Acquire(dir+"/b", open)
	require.NoError(t, err)
	_, err = lim.Acquire(dir+"/c", open)
	require.NoError(t, err)
	assert.Equal(t, 2, lim.Len())
}
