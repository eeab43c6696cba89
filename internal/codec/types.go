package codec

import "fmt"

// undefinedField is the sentinel marker value: a FileHandle field is
// "undefined" when every field equals this, spec.md §3.
const undefinedField uint32 = 0xFFFFFFFF

// FileHandle is the global file handle of spec.md §3: (sid, vid, dev, ino, gen).
type FileHandle struct {
	SID uint32
	VID uint32
	Dev uint32
	Ino uint32
	Gen uint32
}

// Undefined is the sentinel FileHandle; every field is the undefined marker.
var Undefined = FileHandle{undefinedField, undefinedField, undefinedField, undefinedField, undefinedField}

// IsUndefined reports whether fh is the sentinel value.
func (fh FileHandle) IsUndefined() bool { return fh == Undefined }

// Equal implements componentwise equality, spec.md §3.
func (fh FileHandle) Equal(o FileHandle) bool { return fh == o }

func (fh FileHandle) String() string {
	if fh.IsUndefined() {
		return "fh(undefined)"
	}
	return fmt.Sprintf("fh(sid=%d,vid=%d,dev=%d,ino=%d,gen=%d)", fh.SID, fh.VID, fh.Dev, fh.Ino, fh.Gen)
}

func (fh FileHandle) Marshal(b *Buffer) error {
	for _, v := range [5]uint32{fh.SID, fh.VID, fh.Dev, fh.Ino, fh.Gen} {
		if err := b.WriteU32(v); err != nil {
			return err
		}
	}
	return nil
}

func (fh *FileHandle) Unmarshal(b *Buffer) error {
	vals := [5]*uint32{&fh.SID, &fh.VID, &fh.Dev, &fh.Ino, &fh.Gen}
	for _, v := range vals {
		u, err := b.ReadU32()
		if err != nil {
			return err
		}
		*v = u
	}
	return nil
}

// OpenFlags mirror the open mode carried by a Capability, spec.md §3.
type OpenFlags uint32

const (
	OpenRead OpenFlags = 1 << iota
	OpenWrite
)

func (f OpenFlags) ReadWrite() (read, write bool) {
	return f&OpenRead != 0, f&OpenWrite != 0
}

// VerifySize is the length of a capability's random verify token.
const VerifySize = 16

// Capability is (fh, flags, verify[16]), spec.md §3.
type Capability struct {
	FH     FileHandle
	Flags  OpenFlags
	Verify [VerifySize]byte
}

func (c Capability) Marshal(b *Buffer) error {
	if err := c.FH.Marshal(b); err != nil {
		return err
	}
	if err := b.WriteU32(uint32(c.Flags)); err != nil {
		return err
	}
	return b.WriteFixed(c.Verify[:])
}

func (c *Capability) Unmarshal(b *Buffer) error {
	if err := c.FH.Unmarshal(b); err != nil {
		return err
	}
	flags, err := b.ReadU32()
	if err != nil {
		return err
	}
	c.Flags = OpenFlags(flags)
	v, err := b.ReadFixed(VerifySize)
	if err != nil {
		return err
	}
	copy(c.Verify[:], v)
	return nil
}

// FileType enumerates fattr.type, spec.md §3.
type FileType uint32

const (
	TypeBad FileType = iota
	TypeReg
	TypeDir
	TypeLnk
	TypeBlk
	TypeChr
	TypeFifo
	TypeSock
)

// Attr is the attributes struct of spec.md §3.
type Attr struct {
	Type    FileType
	Mode    uint32
	Nlink   uint32
	UID     uint32
	GID     uint32
	Rdev    uint32
	Size    uint64
	Blocks  uint64
	Blksize uint32
	Version uint64
	Atime   int64
	Mtime   int64
	Ctime   int64
}

func (a Attr) Marshal(b *Buffer) error {
	writers := []func() error{
		func() error { return b.WriteU32(uint32(a.Type)) },
		func() error { return b.WriteU32(a.Mode) },
		func() error { return b.WriteU32(a.Nlink) },
		func() error { return b.WriteU32(a.UID) },
		func() error { return b.WriteU32(a.GID) },
		func() error { return b.WriteU32(a.Rdev) },
		func() error { return b.WriteU64(a.Size) },
		func() error { return b.WriteU64(a.Blocks) },
		func() error { return b.WriteU32(a.Blksize) },
		func() error { return b.WriteU64(a.Version) },
		func() error { return b.WriteI64(a.Atime) },
		func() error { return b.WriteI64(a.Mtime) },
		func() error { return b.WriteI64(a.Ctime) },
	}
	for _, w := range writers {
		if err := w(); err != nil {
			return err
		}
	}
	return nil
}

func (a *Attr) Unmarshal(b *Buffer) error {
	typ, err := b.ReadU32()
	if err != nil {
		return err
	}
	a.Type = FileType(typ)
	if a.Mode, err = b.ReadU32(); err != nil {
		return err
	}
	if a.Nlink, err = b.ReadU32(); err != nil {
		return err
	}
	if a.UID, err = b.ReadU32(); err != nil {
		return err
	}
	if a.GID, err = b.ReadU32(); err != nil {
		return err
	}
	if a.Rdev, err = b.ReadU32(); err != nil {
		return err
	}
	if a.Size, err = b.ReadU64(); err != nil {
		return err
	}
	if a.Blocks, err = b.ReadU64(); err != nil {
		return err
	}
	if a.Blksize, err = b.ReadU32(); err != nil {
		return err
	}
	if a.Version, err = b.ReadU64(); err != nil {
		return err
	}
	if a.Atime, err = b.ReadI64(); err != nil {
		return err
	}
	if a.Mtime, err = b.ReadI64(); err != nil {
		return err
	}
	if a.Ctime, err = b.ReadI64(); err != nil {
		return err
	}
	return nil
}

// SetAttrArgs carries the subset of Attr fields a SETATTR call wants to
// change, each gated by a bitmask.
type SetAttrMask uint32

const (
	SetMode SetAttrMask = 1 << iota
	SetUID
	SetGID
	SetSize
	SetAtime
	SetMtime
)

type SetAttrArgs struct {
	FH   FileHandle
	Mask SetAttrMask
	Attr Attr
}

func (s SetAttrArgs) Marshal(b *Buffer) error {
	if err := s.FH.Marshal(b); err != nil {
		return err
	}
	if err := b.WriteU32(uint32(s.Mask)); err != nil {
		return err
	}
	return s.Attr.Marshal(b)
}

func (s *SetAttrArgs) Unmarshal(b *Buffer) error {
	if err := s.FH.Unmarshal(b); err != nil {
		return err
	}
	m, err := b.ReadU32()
	if err != nil {
		return err
	}
	s.Mask = SetAttrMask(m)
	return s.Attr.Unmarshal(b)
}

// DirEntry/DirList implement READDIR results.
type DirEntry struct {
	FH   FileHandle
	Name string
}

func (d DirEntry) Marshal(b *Buffer) error {
	if err := d.FH.Marshal(b); err != nil {
		return err
	}
	return b.WriteString(d.Name)
}

func (d *DirEntry) Unmarshal(b *Buffer) error {
	if err := d.FH.Unmarshal(b); err != nil {
		return err
	}
	name, err := b.ReadString()
	if err != nil {
		return err
	}
	d.Name = name
	return nil
}

type DirList struct {
	Entries []DirEntry
	EOF     bool
}

func (l DirList) Marshal(b *Buffer) error {
	if err := b.WriteU32(uint32(len(l.Entries))); err != nil {
		return err
	}
	for _, e := range l.Entries {
		if err := e.Marshal(b); err != nil {
			return err
		}
	}
	eof := uint8(0)
	if l.EOF {
		eof = 1
	}
	return b.WriteU8(eof)
}

func (l *DirList) Unmarshal(b *Buffer) error {
	n, err := b.ReadU32()
	if err != nil {
		return err
	}
	l.Entries = make([]DirEntry, n)
	for i := range l.Entries {
		if err := l.Entries[i].Unmarshal(b); err != nil {
			return err
		}
	}
	eof, err := b.ReadU8()
	if err != nil {
		return err
	}
	l.EOF = eof != 0
	return nil
}

// MD5SumArgs/MD5SumRes implement the block-verification RPC of §4.7.2.
type MD5SumArgs struct {
	Cap     Capability
	Offsets []uint64
	Lengths []uint32
}

func (a MD5SumArgs) Marshal(b *Buffer) error {
	if err := a.Cap.Marshal(b); err != nil {
		return err
	}
	if len(a.Offsets) != len(a.Lengths) {
		return fmt.Errorf("codec: MD5SumArgs offsets/lengths length mismatch")
	}
	if err := b.WriteU32(uint32(len(a.Offsets))); err != nil {
		return err
	}
	for i := range a.Offsets {
		if err := b.WriteU64(a.Offsets[i]); err != nil {
			return err
		}
		if err := b.WriteU32(a.Lengths[i]); err != nil {
			return err
		}
	}
	return nil
}

func (a *MD5SumArgs) Unmarshal(b *Buffer) error {
	if err := a.Cap.Unmarshal(b); err != nil {
		return err
	}
	n, err := b.ReadU32()
	if err != nil {
		return err
	}
	a.Offsets = make([]uint64, n)
	a.Lengths = make([]uint32, n)
	for i := range a.Offsets {
		if a.Offsets[i], err = b.ReadU64(); err != nil {
			return err
		}
		l, err := b.ReadU32()
		if err != nil {
			return err
		}
		a.Lengths[i] = l
	}
	return nil
}

type MD5Chunk struct {
	Offset uint64
	Length uint32
	Sum    [16]byte
}

type MD5SumRes struct {
	Version uint64
	Size    uint64
	Chunks  []MD5Chunk
}

func (r MD5SumRes) Marshal(b *Buffer) error {
	if err := b.WriteU64(r.Version); err != nil {
		return err
	}
	if err := b.WriteU64(r.Size); err != nil {
		return err
	}
	if err := b.WriteU32(uint32(len(r.Chunks))); err != nil {
		return err
	}
	for _, c := range r.Chunks {
		if err := b.WriteU64(c.Offset); err != nil {
			return err
		}
		if err := b.WriteU32(c.Length); err != nil {
			return err
		}
		if err := b.WriteFixed(c.Sum[:]); err != nil {
			return err
		}
	}
	return nil
}

func (r *MD5SumRes) Unmarshal(b *Buffer) error {
	var err error
	if r.Version, err = b.ReadU64(); err != nil {
		return err
	}
	if r.Size, err = b.ReadU64(); err != nil {
		return err
	}
	n, err := b.ReadU32()
	if err != nil {
		return err
	}
	r.Chunks = make([]MD5Chunk, n)
	for i := range r.Chunks {
		if r.Chunks[i].Offset, err = b.ReadU64(); err != nil {
			return err
		}
		l, err := b.ReadU32()
		if err != nil {
			return err
		}
		r.Chunks[i].Length = l
		sum, err := b.ReadFixed(16)
		if err != nil {
			return err
		}
		copy(r.Chunks[i].Sum[:], sum)
	}
	return nil
}

// ReadArgs/ReadRes and WriteArgs/WriteRes implement §6 READ/WRITE.
type ReadArgs struct {
	Cap    Capability
	Offset uint64
	Length uint32
}

func (a ReadArgs) Marshal(b *Buffer) error {
	if err := a.Cap.Marshal(b); err != nil {
		return err
	}
	if err := b.WriteU64(a.Offset); err != nil {
		return err
	}
	return b.WriteU32(a.Length)
}

func (a *ReadArgs) Unmarshal(b *Buffer) error {
	if err := a.Cap.Unmarshal(b); err != nil {
		return err
	}
	var err error
	if a.Offset, err = b.ReadU64(); err != nil {
		return err
	}
	a.Length, err = b.ReadU32()
	return err
}

type ReadRes struct {
	Data    []byte
	Changed bool // ZFS_CHANGED: remote file changed mid-read, spec.md §4.7.2 step 7
}

func (r ReadRes) Marshal(b *Buffer) error {
	changed := uint8(0)
	if r.Changed {
		changed = 1
	}
	if err := b.WriteU8(changed); err != nil {
		return err
	}
	return b.WriteData(r.Data)
}

func (r *ReadRes) Unmarshal(b *Buffer) error {
	c, err := b.ReadU8()
	if err != nil {
		return err
	}
	r.Changed = c != 0
	r.Data, err = b.ReadData()
	return err
}

type WriteArgs struct {
	Cap    Capability
	Offset uint64
	Data   []byte
}

func (a WriteArgs) Marshal(b *Buffer) error {
	if err := a.Cap.Marshal(b); err != nil {
		return err
	}
	if err := b.WriteU64(a.Offset); err != nil {
		return err
	}
	return b.WriteData(a.Data)
}

func (a *WriteArgs) Unmarshal(b *Buffer) error {
	if err := a.Cap.Unmarshal(b); err != nil {
		return err
	}
	var err error
	if a.Offset, err = b.ReadU64(); err != nil {
		return err
	}
	a.Data, err = b.ReadData()
	return err
}

type WriteRes struct {
	Written uint32
	Version uint64
}

func (r WriteRes) Marshal(b *Buffer) error {
	if err := b.WriteU32(r.Written); err != nil {
		return err
	}
	return b.WriteU64(r.Version)
}

func (r *WriteRes) Unmarshal(b *Buffer) error {
	var err error
	if r.Written, err = b.ReadU32(); err != nil {
		return err
	}
	r.Version, err = b.ReadU64()
	return err
}
