package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/zlomekfs/zfsd/internal/interval"
)

func TestCoalesceNearbyMergesCloseRanges(t *testing.T) {
	in := []interval.Range{{Start: 0, End: 10}, {Start: 10 + ModifiedBlockSize, End: 20 + ModifiedBlockSize}}
	out := coalesceNearby(in, ModifiedBlockSize)
	assert.Equal(t, []interval.Range{{Start: 0, End: 20 + ModifiedBlockSize}}, out)
}

func TestCoalesceNearbyKeepsFarRangesSeparate(t *testing.T) {
	in := []interval.Range{{Start: 0, End: 10}, {Start: 10 + ModifiedBlockSize + 1, End: 20}}
	out := coalesceNearby(in, ModifiedBlockSize)
	assert.Len(t, out, 2)
}

func TestSplitToChunksBoundsSpan(t *testing.T) {
	in := []interval.Range{{Start: 0, End: MaxData*2 + 100}}
	out := splitToChunks(in, MaxData)
	assert.Len(t, out, 3)
	for _, r := range out {
		assert.LessOrEqual(t, r.End-r.Start, uint64(MaxData))
	}
	assert.Equal(t, uint64(0), out[0].Start)
	assert.Equal(t, uint64(MaxData*2+100), out[len(out)-1].End)
}

func TestBatchChunksBoundsCount(t *testing.T) {
	chunks := make([]interval.Range, MaxMD5Chunks*2+3)
	for i := range chunks {
		chunks[i] = interval.Range{Start: uint64(i), End: uint64(i + 1)}
	}
	batches := batchChunks(chunks, MaxMD5Chunks)
	assert.Len(t, batches, 3)
	assert.Len(t, batches[0], MaxMD5Chunks)
	assert.Len(t, batches[2], 3)
}

func TestPlanBatchesEndToEnd(t *testing.T) {
	targets := []interval.Range{{Start: 0, End: 100}}
	batches := planBatches(targets)
	assert.Len(t, batches, 1)
	assert.Equal(t, []interval.Range{{Start: 0, End: 100}}, batches[0])
}
