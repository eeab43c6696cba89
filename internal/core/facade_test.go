package core

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	zfsclock "github.com/zlomekfs/zfsd/clock"
	"github.com/zlomekfs/zfsd/internal/conn"
	"github.com/zlomekfs/zfsd/internal/metrics"
	"github.com/zlomekfs/zfsd/internal/scheduler"
)

func newTestVolume(t *testing.T) *Volume {
	t.Helper()
	v, err := NewVolume(1, 1, 1, t.TempDir(), nil, metrics.NewNoop())
	require.NoError(t, err)
	return v
}

func TestCreateFileThenLookup(t *testing.T) {
	v := newTestVolume(t)
	root := v.Root()

	created, err := v.CreateFile(root, "a.txt")
	require.NoError(t, err)

	found, err := v.Lookup(root, "a.txt")
	require.NoError(t, err)
	assert.Equal(t, created.FH, found.FH)
}

func TestCreateFileRejectsDuplicateName(t *testing.T) {
	v := newTestVolume(t)
	root := v.Root()

	_, err := v.CreateFile(root, "a.txt")
	require.NoError(t, err)

	_, err = v.CreateFile(root, "a.txt")
	assert.Error(t, err)
}

func TestMkdirMarksDirectory(t *testing.T) {
	v := newTestVolume(t)
	root := v.Root()

	d, err := v.Mkdir(root, "sub")
	require.NoError(t, err)
	assert.True(t, d.IsDir())
}

func TestWriteThenReadRoundTrips(t *testing.T) {
	v := newTestVolume(t)
	root := v.Root()
	d, err := v.CreateFile(root, "a.txt")
	require.NoError(t, err)

	n, err := v.WriteAt(d, []byte("hello"), 0, conn.SpeedFast, nil)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	buf := make([]byte, 5)
	n, err = v.ReadAt(d, buf, 0)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, "hello", string(buf))
}

func TestWriteSchedulesReconcileInBackground(t *testing.T) {
	v := newTestVolume(t)
	root := v.Root()
	d, err := v.CreateFile(root, "a.txt")
	require.NoError(t, err)

	sched := scheduler.New(context.Background(), scheduler.Options{Clock: zfsclock.NewSimulatedClock(time.Now())})
	v.scheduler = sched
	defer sched.Stop()

	ran := make(chan struct{})
	reconcile := func() error {
		close(ran)
		return nil
	}

	_, err = v.WriteAt(d, []byte("x"), 0, conn.SpeedFast, reconcile)
	require.NoError(t, err)

	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("reconcile was never run by the scheduler")
	}
}

func TestTruncateAndRemove(t *testing.T) {
	v := newTestVolume(t)
	root := v.Root()
	d, err := v.CreateFile(root, "a.txt")
	require.NoError(t, err)

	_, err = v.WriteAt(d, []byte("hello world"), 0, conn.SpeedFast, nil)
	require.NoError(t, err)

	require.NoError(t, v.Truncate(d, 5))
	info, err := v.Stat(d)
	require.NoError(t, err)
	assert.Equal(t, int64(5), info.Size())

	require.NoError(t, v.Remove(d))
	_, err = v.Stat(d)
	assert.Error(t, err)

	_, found := root.Child("a.txt")
	assert.False(t, found)
}
