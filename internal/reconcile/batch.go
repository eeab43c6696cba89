package reconcile

import "github.com/zlomekfs/zfsd/internal/interval"

// coalesceNearby merges ranges separated by a gap no larger than within,
// the "coalescing adjacent intervals within ZFS_MODIFIED_BLOCK_SIZE" step
// of spec.md §4.7.2.
func coalesceNearby(ranges []interval.Range, within uint64) []interval.Range {
	if len(ranges) == 0 {
		return nil
	}
	out := make([]interval.Range, 0, len(ranges))
	cur := ranges[0]
	for _, r := range ranges[1:] {
		if r.Start <= cur.End+within {
			if r.End > cur.End {
				cur.End = r.End
			}
			continue
		}
		out = append(out, cur)
		cur = r
	}
	return append(out, cur)
}

// splitToChunks breaks each range into pieces no larger than maxSpan, the
// "spanning ≤ ZFS_MAXDATA" bound of spec.md §4.7.2.
func splitToChunks(ranges []interval.Range, maxSpan uint64) []interval.Range {
	var out []interval.Range
	for _, r := range ranges {
		for start := r.Start; start < r.End; {
			end := start + maxSpan
			if end > r.End {
				end = r.End
			}
			out = append(out, interval.Range{Start: start, End: end})
			start = end
		}
	}
	return out
}

// batchChunks groups chunks into batches of at most size entries, the
// "batches of up to ZFS_MAX_MD5_CHUNKS" grouping of spec.md §4.7.2.
func batchChunks(chunks []interval.Range, size int) [][]interval.Range {
	var out [][]interval.Range
	for i := 0; i < len(chunks); i += size {
		end := i + size
		if end > len(chunks) {
			end = len(chunks)
		}
		out = append(out, chunks[i:end])
	}
	return out
}

// planBatches is the full grouping pipeline of spec.md §4.7.2's opening
// paragraph, applied to a set of target byte ranges still needing update.
func planBatches(targets []interval.Range) [][]interval.Range {
	coalesced := coalesceNearby(targets, ModifiedBlockSize)
	chunks := splitToChunks(coalesced, MaxData)
	return batchChunks(chunks, MaxMD5Chunks)
}
