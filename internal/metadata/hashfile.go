package metadata

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"github.com/zlomekfs/zfsd/internal/codec"
)

// Table is a fixed-slot, open-addressing hash file as described in
// spec.md §4.1/§6: a 2-word header (n_elements, n_deleted) followed by
// `size` slots, each beginning with a u32 slot_status. Linear probing is
// used, consistent between lookup and insert.
//
// Create and OpenTable take an exclusive flock on the underlying fd: files are
// opened lazily and the coldest one can be closed and reopened at any time
// by the LRU eviction heap (spec.md §4.3), so two Tables racing to reopen
// the same path must not both believe they hold it exclusively.
type Table struct {
	f        *os.File
	slotSize int // total bytes per slot, including the status word
	nSlots   uint32
	header   codec.HashFileHeader
}

func slotOffset(slotSize int, idx uint32) int64 {
	return codec.HashFileHeaderSize + int64(idx)*int64(slotSize)
}

// Create initializes a brand new hash file on disk with nSlots empty slots.
func Create(path string, slotSize int, nSlots uint32) (*Table, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("metadata: create %s: %w", path, err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX); err != nil {
		f.Close()
		return nil, fmt.Errorf("metadata: flock %s: %w", path, err)
	}
	t := &Table{f: f, slotSize: slotSize, nSlots: nSlots}
	if err := t.writeHeader(); err != nil {
		f.Close()
		return nil, err
	}
	empty := make([]byte, slotSize)
	for i := uint32(0); i < nSlots; i++ {
		if _, err := f.WriteAt(empty, slotOffset(slotSize, i)); err != nil {
			f.Close()
			return nil, fmt.Errorf("metadata: init slot %d: %w", i, err)
		}
	}
	return t, nil
}

// OpenTable opens an existing hash file, deriving slot count from its size.
func OpenTable(path string, slotSize int) (*Table, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("metadata: open %s: %w", path, err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX); err != nil {
		f.Close()
		return nil, fmt.Errorf("metadata: flock %s: %w", path, err)
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	body := fi.Size() - codec.HashFileHeaderSize
	if body < 0 || body%int64(slotSize) != 0 {
		f.Close()
		return nil, fmt.Errorf("metadata: %s: corrupt hash file size %d", path, fi.Size())
	}
	t := &Table{f: f, slotSize: slotSize, nSlots: uint32(body / int64(slotSize))}
	if err := t.readHeader(); err != nil {
		f.Close()
		return nil, err
	}
	return t, nil
}

func (t *Table) Close() error { return t.f.Close() }

func (t *Table) Fd() *os.File { return t.f }

func (t *Table) readHeader() error {
	buf := make([]byte, codec.HashFileHeaderSize)
	if _, err := t.f.ReadAt(buf, 0); err != nil {
		return fmt.Errorf("metadata: read header: %w", err)
	}
	return t.header.Unmarshal(codec.NewDecoder(buf))
}

func (t *Table) writeHeader() error {
	b := codec.NewEncoder()
	if err := t.header.Marshal(b); err != nil {
		return err
	}
	_, err := t.f.WriteAt(b.Bytes(), 0)
	if err != nil {
		return fmt.Errorf("metadata: write header: %w", err)
	}
	return nil
}

func (t *Table) readSlotStatus(idx uint32) (codec.SlotStatus, error) {
	buf := make([]byte, 4)
	if _, err := t.f.ReadAt(buf, slotOffset(t.slotSize, idx)); err != nil {
		return 0, fmt.Errorf("metadata: read slot %d status: %w", idx, err)
	}
	return codec.DecodeSlotStatus(codec.NewDecoder(buf))
}

func (t *Table) readSlotPayload(idx uint32) ([]byte, error) {
	buf := make([]byte, t.slotSize)
	if _, err := t.f.ReadAt(buf, slotOffset(t.slotSize, idx)); err != nil {
		return nil, fmt.Errorf("metadata: read slot %d: %w", idx, err)
	}
	return buf[4:], nil
}

func (t *Table) writeSlot(idx uint32, status codec.SlotStatus, payload []byte) error {
	if len(payload) != t.slotSize-4 {
		return fmt.Errorf("metadata: payload size %d != %d", len(payload), t.slotSize-4)
	}
	b := codec.NewEncoder()
	if err := codec.EncodeSlotStatus(b, status); err != nil {
		return err
	}
	if err := b.WriteFixed(payload); err != nil {
		return err
	}
	_, err := t.f.WriteAt(b.Bytes(), slotOffset(t.slotSize, idx))
	if err != nil {
		return fmt.Errorf("metadata: write slot %d: %w", idx, err)
	}
	return nil
}

// Find scans the linear probe sequence starting at hash%nSlots for a slot
// whose payload satisfies matches. It continues through DELETED slots and
// stops at the first EMPTY slot or after a full wrap.
func (t *Table) Find(hash uint64, matches func(payload []byte) bool) (idx uint32, found bool, payload []byte, err error) {
	if t.nSlots == 0 {
		return 0, false, nil, nil
	}
	start := uint32(hash % uint64(t.nSlots))
	for i := uint32(0); i < t.nSlots; i++ {
		probe := (start + i) % t.nSlots
		status, err := t.readSlotStatus(probe)
		if err != nil {
			return 0, false, nil, err
		}
		if status == codec.SlotEmpty {
			return 0, false, nil, nil
		}
		if status == codec.SlotDeleted {
			continue
		}
		pl, err := t.readSlotPayload(probe)
		if err != nil {
			return 0, false, nil, err
		}
		if matches(pl) {
			return probe, true, pl, nil
		}
	}
	return 0, false, nil, nil
}

// Insert writes payload into the first EMPTY or DELETED slot along the
// probe sequence starting at hash%nSlots. Callers must have already
// confirmed via Find that no matching key exists, matching the "lookup,
// then optionally insert" semantics of spec.md §4.3.
func (t *Table) Insert(hash uint64, payload []byte) (uint32, error) {
	if t.nSlots == 0 {
		return 0, fmt.Errorf("metadata: hash file has zero slots")
	}
	start := uint32(hash % uint64(t.nSlots))
	for i := uint32(0); i < t.nSlots; i++ {
		probe := (start + i) % t.nSlots
		status, err := t.readSlotStatus(probe)
		if err != nil {
			return 0, err
		}
		if status == codec.SlotEmpty || status == codec.SlotDeleted {
			if err := t.writeSlot(probe, codec.SlotValid, payload); err != nil {
				return 0, err
			}
			if status == codec.SlotDeleted {
				t.header.NDeleted--
			}
			t.header.NElements++
			return probe, t.writeHeader()
		}
	}
	return 0, fmt.Errorf("metadata: hash file full (%d slots)", t.nSlots)
}

// Update overwrites the payload of an already-located valid slot.
func (t *Table) Update(idx uint32, payload []byte) error {
	return t.writeSlot(idx, codec.SlotValid, payload)
}

// Delete marks idx as DELETED, per the three-state marker of spec.md §4.1.
func (t *Table) Delete(idx uint32) error {
	empty := make([]byte, t.slotSize-4)
	if err := t.writeSlot(idx, codec.SlotDeleted, empty); err != nil {
		return err
	}
	t.header.NElements--
	t.header.NDeleted++
	return t.writeHeader()
}

func (t *Table) NElements() uint32 { return t.header.NElements }
func (t *Table) NDeleted() uint32  { return t.header.NDeleted }
