package reconcile

import (
	"context"
	"crypto/md5"
	"fmt"

	"github.com/zlomekfs/zfsd/internal/codec"
)

// memFile is an in-memory LocalFile, the test double for *os.File.
type memFile struct {
	data []byte
}

func newMemFile(initial []byte) *memFile {
	return &memFile{data: append([]byte(nil), initial...)}
}

func (f *memFile) ReadAt(p []byte, off int64) (int, error) {
	if off >= int64(len(f.data)) {
		return 0, fmt.Errorf("memFile: read past end")
	}
	n := copy(p, f.data[off:])
	if n < len(p) {
		return n, fmt.Errorf("memFile: short read")
	}
	return n, nil
}

func (f *memFile) WriteAt(p []byte, off int64) (int, error) {
	end := off + int64(len(p))
	if end > int64(len(f.data)) {
		grown := make([]byte, end)
		copy(grown, f.data)
		f.data = grown
	}
	copy(f.data[off:], p)
	return len(p), nil
}

func (f *memFile) Truncate(size int64) error {
	if size <= int64(len(f.data)) {
		f.data = f.data[:size]
		return nil
	}
	grown := make([]byte, size)
	copy(grown, f.data)
	f.data = grown
	return nil
}

func (f *memFile) Size() (int64, error) { return int64(len(f.data)), nil }

// fakeRemote is a scriptable Remote for update/reintegrate tests.
type fakeRemote struct {
	masterData    []byte
	masterVersion uint64
	changedOnce   bool // if true, the next ReadAt reports Changed, then stops

	writes []codec.WriteArgs

	reintegrateAcquired bool
	reintegrateVerDiff  uint64
	setAttrSize         uint64

	dirEntries []codec.DirEntry
	attrs      map[codec.FileHandle]codec.Attr
}

func newFakeRemote(masterData []byte, version uint64) *fakeRemote {
	return &fakeRemote{masterData: masterData, masterVersion: version, attrs: make(map[codec.FileHandle]codec.Attr)}
}

func (r *fakeRemote) MD5Sum(ctx context.Context, cap codec.Capability, offsets []uint64, lengths []uint32) (codec.MD5SumRes, error) {
	res := codec.MD5SumRes{Version: r.masterVersion, Size: uint64(len(r.masterData))}
	for i, off := range offsets {
		n := lengths[i]
		end := off + uint64(n)
		if end > uint64(len(r.masterData)) {
			end = uint64(len(r.masterData))
		}
		var seg []byte
		if off < end {
			seg = r.masterData[off:end]
		}
		res.Chunks = append(res.Chunks, codec.MD5Chunk{Offset: off, Length: uint32(len(seg)), Sum: md5.Sum(seg)})
	}
	return res, nil
}

func (r *fakeRemote) ReadAt(ctx context.Context, cap codec.Capability, offset uint64, length uint32) (codec.ReadRes, error) {
	if r.changedOnce {
		r.changedOnce = false
		return codec.ReadRes{Changed: true}, nil
	}
	end := offset + uint64(length)
	if end > uint64(len(r.masterData)) {
		end = uint64(len(r.masterData))
	}
	var data []byte
	if offset < end {
		data = append([]byte(nil), r.masterData[offset:end]...)
	}
	return codec.ReadRes{Data: data}, nil
}

func (r *fakeRemote) WriteAt(ctx context.Context, cap codec.Capability, offset uint64, data []byte) (codec.WriteRes, error) {
	r.writes = append(r.writes, codec.WriteArgs{Cap: cap, Offset: offset, Data: append([]byte(nil), data...)})
	end := offset + uint64(len(data))
	if end > uint64(len(r.masterData)) {
		grown := make([]byte, end)
		copy(grown, r.masterData)
		r.masterData = grown
	}
	copy(r.masterData[offset:], data)
	return codec.WriteRes{Written: uint32(len(data)), Version: r.masterVersion}, nil
}

func (r *fakeRemote) SetAttr(ctx context.Context, cap codec.Capability, attr codec.Attr, mask codec.SetAttrMask) (codec.Attr, error) {
	if mask&codec.SetSize != 0 {
		r.setAttrSize = attr.Size
		if attr.Size < uint64(len(r.masterData)) {
			r.masterData = r.masterData[:attr.Size]
		} else if attr.Size > uint64(len(r.masterData)) {
			grown := make([]byte, attr.Size)
			copy(grown, r.masterData)
			r.masterData = grown
		}
	}
	return attr, nil
}

func (r *fakeRemote) Reintegrate(ctx context.Context, cap codec.Capability, acquire bool) error {
	r.reintegrateAcquired = acquire
	return nil
}

func (r *fakeRemote) ReintegrateVer(ctx context.Context, cap codec.Capability, diff uint64) error {
	r.reintegrateVerDiff = diff
	r.masterVersion += diff
	r.reintegrateAcquired = false
	return nil
}

func (r *fakeRemote) ReintegrateAdd(ctx context.Context, parent codec.FileHandle, name string, attr codec.Attr) (codec.FileHandle, error) {
	fh := codec.FileHandle{SID: parent.SID, VID: parent.VID, Dev: parent.Dev, Ino: parent.Ino + 1, Gen: 1}
	r.dirEntries = append(r.dirEntries, codec.DirEntry{FH: fh, Name: name})
	r.attrs[fh] = attr
	return fh, nil
}

func (r *fakeRemote) ReintegrateDel(ctx context.Context, parent codec.FileHandle, name string, destroy bool) error {
	for i, e := range r.dirEntries {
		if e.Name == name {
			r.dirEntries = append(r.dirEntries[:i], r.dirEntries[i+1:]...)
			return nil
		}
	}
	return nil
}

func (r *fakeRemote) GetAttr(ctx context.Context, fh codec.FileHandle) (codec.Attr, error) {
	if a, ok := r.attrs[fh]; ok {
		return a, nil
	}
	return codec.Attr{Type: codec.TypeReg, Size: uint64(len(r.masterData)), Version: r.masterVersion}, nil
}

func (r *fakeRemote) ReadDir(ctx context.Context, fh codec.FileHandle) (codec.DirList, error) {
	return codec.DirList{Entries: append([]codec.DirEntry(nil), r.dirEntries...), EOF: true}, nil
}

var _ Remote = (*fakeRemote)(nil)

func bytesOf(n int, fill byte) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = fill
	}
	return b
}
