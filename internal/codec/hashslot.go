package codec

// SlotStatus is the three-state marker at the start of every hash-file slot,
// spec.md §4.1 / §6.
type SlotStatus uint32

const (
	SlotEmpty   SlotStatus = 0
	SlotDeleted SlotStatus = 1
	SlotValid   SlotStatus = 2
)

// HashFileHeader is the 2-word header preceding a hash file's slots,
// spec.md §4.1: n_elements, n_deleted.
type HashFileHeader struct {
	NElements uint32
	NDeleted  uint32
}

func (h HashFileHeader) Marshal(b *Buffer) error {
	if err := b.WriteU32(h.NElements); err != nil {
		return err
	}
	return b.WriteU32(h.NDeleted)
}

func (h *HashFileHeader) Unmarshal(b *Buffer) error {
	var err error
	if h.NElements, err = b.ReadU32(); err != nil {
		return err
	}
	h.NDeleted, err = b.ReadU32()
	return err
}

const HashFileHeaderSize = 8

// EncodeSlotStatus/DecodeSlotStatus are split out from the header helpers
// above because every slot, valid or not, begins with this marker (spec.md
// §6: "Each slot begins with a u32 slot_status").
func EncodeSlotStatus(b *Buffer, s SlotStatus) error {
	return b.WriteU32(uint32(s))
}

func DecodeSlotStatus(b *Buffer) (SlotStatus, error) {
	v, err := b.ReadU32()
	return SlotStatus(v), err
}
