package metadata

import (
	"github.com/zlomekfs/zfsd/internal/codec"
)

// MetadataNameSize bounds the inlined hardlink name in a Record, spec.md §3.
const MetadataNameSize = 256

// Flags is the per-record bitset of spec.md §3.
type Flags uint32

const (
	FlagComplete Flags = 1 << iota
	FlagUpdatedTree
	FlagModifiedTree
	FlagShadow
	FlagShadowTree
)

func (f Flags) Has(bit Flags) bool { return f&bit != 0 }
func (f Flags) Set(bit Flags) Flags { return f | bit }
func (f Flags) Clear(bit Flags) Flags { return f &^ bit }

// Record is the per-local-FH metadata element of spec.md §3.
type Record struct {
	Status SlotState // mirrors the hash-file slot_status for in-memory copies
	Flags  Flags

	Dev uint32
	Ino uint32
	Gen uint32

	MasterFH      codec.FileHandle
	LocalVersion  uint64
	MasterVersion uint64

	ModeType FileModeType
	UID      uint32
	GID      uint32

	// Inlined single-hardlink fields; hold codec.Undefined's component
	// sentinel (0xFFFFFFFF) when the object has zero or more-than-one link,
	// per spec.md §3.
	ParentDev uint32
	ParentIno uint32
	Name      string // truncated to MetadataNameSize on encode
}

// SlotState mirrors codec.SlotStatus but is named distinctly since it also
// carries the domain meaning "this identity is tombstoned" via ModeType.
type SlotState = codec.SlotStatus

// FileModeType mirrors codec.FileType for on-disk metadata records.
type FileModeType = codec.FileType

const undef = ^uint32(0)

// InlineUndefined reports whether the inlined hardlink fields are the
// undefined sentinel (meaning: use the sidecar hardlink list instead).
func (r Record) InlineUndefined() bool {
	return r.ParentDev == undef && r.ParentIno == undef && r.Name == ""
}

func (r *Record) ClearInline() {
	r.ParentDev = undef
	r.ParentIno = undef
	r.Name = ""
}

// Tombstoned reports whether this identity has been deleted: mode=0,
// type=BAD, per spec.md §3 invariant "hardlink list is empty iff tombstoned".
func (r Record) Tombstoned() bool {
	return r.ModeType == codec.TypeBad
}

func (r *Record) Tombstone() {
	r.ModeType = codec.TypeBad
	r.Gen++
	r.LocalVersion = 0
	r.MasterVersion = 0
	r.MasterFH = codec.Undefined
	r.ClearInline()
}

// recordPayloadSize must match the exact byte count Marshal produces,
// including the natural-alignment padding the codec inserts before each u64
// field (spec.md §4.1): 4 zero bytes land before local_version here, since
// flags+dev+ino+gen+master_fh leaves the cursor at offset 36, not 40.
const recordPayloadSize = 4 /*flags*/ + 4*3 /*dev,ino,gen*/ + 20 /*master fh*/ +
	4 /*u64 alignment pad*/ + 8 + 8 /*versions*/ + 4 /*modetype*/ + 4 + 4 /*uid,gid*/ +
	4 + 4 /*parent dev,ino*/ + 4 + MetadataNameSize /*name len + bytes*/

func (r Record) Marshal(b *codec.Buffer) error {
	if err := b.WriteU32(uint32(r.Flags)); err != nil {
		return err
	}
	for _, v := range [3]uint32{r.Dev, r.Ino, r.Gen} {
		if err := b.WriteU32(v); err != nil {
			return err
		}
	}
	if err := r.MasterFH.Marshal(b); err != nil {
		return err
	}
	if err := b.WriteU64(r.LocalVersion); err != nil {
		return err
	}
	if err := b.WriteU64(r.MasterVersion); err != nil {
		return err
	}
	if err := b.WriteU32(uint32(r.ModeType)); err != nil {
		return err
	}
	for _, v := range [2]uint32{r.UID, r.GID} {
		if err := b.WriteU32(v); err != nil {
			return err
		}
	}
	for _, v := range [2]uint32{r.ParentDev, r.ParentIno} {
		if err := b.WriteU32(v); err != nil {
			return err
		}
	}
	name := r.Name
	if len(name) > MetadataNameSize-1 {
		name = name[:MetadataNameSize-1]
	}
	if err := b.WriteU32(uint32(len(name))); err != nil {
		return err
	}
	padded := make([]byte, MetadataNameSize)
	copy(padded, name)
	return b.WriteFixed(padded)
}

func (r *Record) Unmarshal(b *codec.Buffer) error {
	flags, err := b.ReadU32()
	if err != nil {
		return err
	}
	r.Flags = Flags(flags)
	vals := [3]*uint32{&r.Dev, &r.Ino, &r.Gen}
	for _, v := range vals {
		if *v, err = b.ReadU32(); err != nil {
			return err
		}
	}
	if err := r.MasterFH.Unmarshal(b); err != nil {
		return err
	}
	if r.LocalVersion, err = b.ReadU64(); err != nil {
		return err
	}
	if r.MasterVersion, err = b.ReadU64(); err != nil {
		return err
	}
	mt, err := b.ReadU32()
	if err != nil {
		return err
	}
	r.ModeType = FileModeType(mt)
	if r.UID, err = b.ReadU32(); err != nil {
		return err
	}
	if r.GID, err = b.ReadU32(); err != nil {
		return err
	}
	if r.ParentDev, err = b.ReadU32(); err != nil {
		return err
	}
	if r.ParentIno, err = b.ReadU32(); err != nil {
		return err
	}
	nameLen, err := b.ReadU32()
	if err != nil {
		return err
	}
	padded, err := b.ReadFixed(MetadataNameSize)
	if err != nil {
		return err
	}
	r.Name = string(padded[:nameLen])
	return nil
}
