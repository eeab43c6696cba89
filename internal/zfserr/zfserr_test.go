package zfserr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapAndUnwrap(t *testing.T) {
	cause := errors.New("disk full")
	err := Wrap("flush", MetadataError, cause)

	require.Error(t, err)
	assert.Equal(t, MetadataError, CodeOf(err))
	assert.True(t, Is(err, MetadataError))
	assert.False(t, Is(err, Busy))
	assert.ErrorIs(t, err, cause)
}

func TestNewHasNoCause(t *testing.T) {
	err := New("reintegrate", Busy)
	assert.Equal(t, Busy, CodeOf(err))
	assert.True(t, Busy.Transient())
	assert.False(t, Stale.Transient())
}

func TestCodeOfUntaggedError(t *testing.T) {
	assert.Equal(t, InvalidReply, CodeOf(errors.New("boom")))
	assert.Equal(t, OK, CodeOf(nil))
}

func TestCodeString(t *testing.T) {
	assert.Equal(t, "BUSY", Busy.String())
	assert.Equal(t, "errno(2)", Code(2).String())
}
