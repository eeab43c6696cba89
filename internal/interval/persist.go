package interval

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/zlomekfs/zfsd/internal/codec"
)

const recordSize = 16 // u64 start + u64 end

// ReadFromLog reads n (start,end) records from fd starting at the current
// offset and inserts them into the tree, spec.md §4.2.
func ReadFromLog(f *os.File, n int) (*Tree, error) {
	t := New()
	buf := make([]byte, recordSize*n)
	if n > 0 {
		if _, err := io.ReadFull(f, buf); err != nil {
			return nil, fmt.Errorf("interval: read log: %w", err)
		}
	}
	for i := 0; i < n; i++ {
		off := i * recordSize
		start := binary.LittleEndian.Uint64(buf[off:])
		end := binary.LittleEndian.Uint64(buf[off+8:])
		t.Insert(start, end)
	}
	t.deleted = false
	return t, nil
}

// AppendToLog appends a single (start,end) record to fd, the fast path for
// a pure insert that didn't require a split, spec.md §4.2.
func AppendToLog(f *os.File, start, end uint64) error {
	b := codec.NewEncoder()
	if err := b.WriteU64(start); err != nil {
		return err
	}
	if err := b.WriteU64(end); err != nil {
		return err
	}
	if _, err := f.Write(b.Bytes()); err != nil {
		return fmt.Errorf("interval: append log: %w", err)
	}
	return nil
}

// Rewrite writes the tree's current (coalesced) ranges fresh, via a .new +
// rename as spec.md §4.2 mandates, and clears the deleted flag.
func (t *Tree) Rewrite(path string) error {
	tmp := path + ".new"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("interval: open %s: %w", tmp, err)
	}
	for _, r := range t.ranges {
		if err := AppendToLog(f, r.Start, r.End); err != nil {
			f.Close()
			os.Remove(tmp)
			return err
		}
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("interval: close %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("interval: rename %s -> %s: %w", tmp, path, err)
	}
	t.deleted = false
	return nil
}
