package reconcile

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zlomekfs/zfsd/internal/codec"
	"github.com/zlomekfs/zfsd/internal/interval"
)

func TestReintegrateFileBlocksPushesModifiedRangesAndReleasesPrivilege(t *testing.T) {
	remote := newFakeRemote(bytesOf(10, 0), 1)
	eng := New(nil, remote)

	local := newMemFile(bytesOf(10, 0xAB))
	modified := interval.New()
	modified.Insert(0, 10)

	cap := codec.Capability{FH: codec.FileHandle{Dev: 1, Ino: 1, Gen: 1}}
	newVersion, err := eng.ReintegrateFileBlocks(context.Background(), cap, local, modified, 1, 3, nil)
	require.NoError(t, err)

	assert.True(t, modified.Empty())
	require.Len(t, remote.writes, 1)
	assert.Equal(t, bytesOf(10, 0xAB), remote.writes[0].Data)
	assert.False(t, remote.reintegrateAcquired) // released at the end
	// implied = 1 (one chunk pushed); localVersion(3) - masterVersion(1) - implied(1) = 1
	assert.Equal(t, uint64(1), remote.reintegrateVerDiff)
	assert.Equal(t, uint64(3), newVersion) // master_version(1) + implied(1 push) + diff(1)
}

func TestReintegrateFileBlocksStopsOnBusy(t *testing.T) {
	remote := newFakeRemote(bytesOf(20, 0), 1)
	eng := New(nil, remote)

	local := newMemFile(bytesOf(20, 0x1))
	modified := interval.New()
	modified.Insert(0, 20)

	calls := 0
	busy := func() bool { calls++; return true }

	cap := codec.Capability{FH: codec.FileHandle{Dev: 2, Ino: 2, Gen: 1}}
	_, err := eng.ReintegrateFileBlocks(context.Background(), cap, local, modified, 1, 1, busy)
	require.NoError(t, err)

	assert.Equal(t, 1, calls)
	assert.False(t, modified.Empty()) // nothing pushed, busy refused every push
	assert.Empty(t, remote.writes)
}

func TestReintegrateFileBlocksReleasesVersionLeadWhenSizesAgree(t *testing.T) {
	remote := newFakeRemote(bytesOf(5, 0xFF), 1)
	eng := New(nil, remote)

	local := newMemFile(bytesOf(5, 0xFF)) // content already matches, nothing in modified
	modified := interval.New()

	cap := codec.Capability{FH: codec.FileHandle{Dev: 3, Ino: 3, Gen: 1}}
	newVersion, err := eng.ReintegrateFileBlocks(context.Background(), cap, local, modified, 1, 4, nil)
	require.NoError(t, err)

	assert.Equal(t, uint64(3), remote.reintegrateVerDiff) // localVersion(4) - masterVersion(1) - implied(0)
	assert.Equal(t, uint64(4), newVersion)
}
