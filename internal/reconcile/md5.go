package reconcile

import (
	"crypto/md5"

	"github.com/zlomekfs/zfsd/internal/codec"
)

// localMD5Sum computes one codec.MD5Chunk per requested range by reading
// it from local, the counterpart to Remote.MD5Sum used in
// updateFileBlocks step 3, spec.md §4.7.2.
func localMD5Sum(local LocalFile, offsets []uint64, lengths []uint32) ([]codec.MD5Chunk, error) {
	chunks := make([]codec.MD5Chunk, len(offsets))
	buf := make([]byte, 0, MaxData)
	for i, off := range offsets {
		n := lengths[i]
		if cap(buf) < int(n) {
			buf = make([]byte, n)
		}
		buf = buf[:n]
		read, err := local.ReadAt(buf, int64(off))
		if err != nil && read < int(n) {
			// Short local file: hash only what exists, matching the
			// caller's expectation that a chunk beyond EOF simply
			// mismatches the master's and gets fetched.
			buf = buf[:read]
		}
		chunks[i] = codec.MD5Chunk{Offset: off, Length: uint32(len(buf)), Sum: md5.Sum(buf)}
	}
	return chunks, nil
}
