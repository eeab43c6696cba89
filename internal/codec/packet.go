package codec

import "fmt"

// Direction is the packet header's u8 direction field, spec.md §4.1.
type Direction uint8

const (
	DirRequest Direction = 0
	DirReply   Direction = 1
	DirOneway  Direction = 2
)

// Function is the stable numeric function id registry of spec.md §6. Must
// be preserved bit-exactly for wire interop.
type Function uint32

const (
	FuncNull         Function = 0
	FuncPing         Function = 1
	FuncRoot         Function = 2
	FuncVolumeRoot   Function = 3
	FuncGetAttr      Function = 4
	FuncSetAttr      Function = 5
	FuncLookup       Function = 6
	FuncCreate       Function = 7
	FuncOpen         Function = 8
	FuncClose        Function = 9
	FuncReaddir      Function = 10
	FuncMkdir        Function = 11
	FuncRmdir        Function = 12
	FuncRename       Function = 13
	FuncLink         Function = 14
	FuncUnlink       Function = 15
	FuncRead         Function = 16
	FuncWrite        Function = 17
	FuncReadlink     Function = 18
	FuncSymlink      Function = 19
	FuncMknod        Function = 20
	FuncAuthStage1   Function = 21
	FuncAuthStage2   Function = 22
	FuncMD5Sum       Function = 23
	FuncFileInfo     Function = 24
	FuncRereadConfig Function = 25 // ONEWAY
	FuncReintegrate     Function = 26
	FuncReintegrateAdd  Function = 27
	FuncReintegrateDel  Function = 28
	FuncReintegrateSet  Function = 29
	FuncInvalidate      Function = 30
)

// Oneway reports whether f is delivered fire-and-forget (no reply expected).
func (f Function) Oneway() bool {
	return f == FuncRereadConfig
}

var functionNames = map[Function]string{
	FuncNull: "NULL", FuncPing: "PING", FuncRoot: "ROOT",
	FuncVolumeRoot: "VOLUME_ROOT", FuncGetAttr: "GETATTR", FuncSetAttr: "SETATTR",
	FuncLookup: "LOOKUP", FuncCreate: "CREATE", FuncOpen: "OPEN", FuncClose: "CLOSE",
	FuncReaddir: "READDIR", FuncMkdir: "MKDIR", FuncRmdir: "RMDIR", FuncRename: "RENAME",
	FuncLink: "LINK", FuncUnlink: "UNLINK", FuncRead: "READ", FuncWrite: "WRITE",
	FuncReadlink: "READLINK", FuncSymlink: "SYMLINK", FuncMknod: "MKNOD",
	FuncAuthStage1: "AUTH_STAGE1", FuncAuthStage2: "AUTH_STAGE2", FuncMD5Sum: "MD5SUM",
	FuncFileInfo: "FILE_INFO", FuncRereadConfig: "REREAD_CONFIG",
	FuncReintegrate: "REINTEGRATE", FuncReintegrateAdd: "REINTEGRATE_ADD",
	FuncReintegrateDel: "REINTEGRATE_DEL", FuncReintegrateSet: "REINTEGRATE_SET",
	FuncInvalidate: "INVALIDATE",
}

func (f Function) String() string {
	if n, ok := functionNames[f]; ok {
		return n
	}
	return fmt.Sprintf("function(%d)", uint32(f))
}

// Header is the fixed packet prefix of spec.md §4.1:
//
//	u32 total_length (includes the 4 bytes)
//	u8  direction
//	u32 request_id
//	u32 function   (requests only)
//	i32 status     (replies only)
type Header struct {
	Direction Direction
	RequestID uint32
	Function  Function // valid when Direction == DirRequest
	Status    int32    // valid when Direction == DirReply
}

const headerFixedLen = 4 + 1 + 3 + 4 // length + direction + padding + request_id

// EncodeHeader writes length+direction+request_id, then the
// direction-specific trailer, returning the Buffer so the caller appends
// the body before FinishPacket is called.
func EncodeHeader(h Header) (*Buffer, error) {
	b := NewEncoder()
	if err := EncodeHeaderInto(b, h); err != nil {
		return nil, err
	}
	return b, nil
}

// EncodeHeaderInto is EncodeHeader against a caller-supplied (typically
// pooled, see BufferPool) Buffer instead of a freshly allocated one.
func EncodeHeaderInto(b *Buffer, h Header) error {
	// Reserve the length field; patched in FinishPacket.
	if err := b.WriteU32(0); err != nil {
		return err
	}
	if err := b.WriteU8(uint8(h.Direction)); err != nil {
		return err
	}
	if err := b.WriteU32(h.RequestID); err != nil {
		return err
	}
	switch h.Direction {
	case DirRequest, DirOneway:
		if err := b.WriteU32(uint32(h.Function)); err != nil {
			return err
		}
	case DirReply:
		if err := b.WriteI32(h.Status); err != nil {
			return err
		}
	}
	return nil
}

// FinishPacket patches the total_length prefix once the body has been
// appended to b.
func FinishPacket(b *Buffer) ([]byte, error) {
	if b.Len() > MaxPacketSize {
		return nil, ErrTooLong
	}
	out := b.Bytes()
	le := uint32(len(out))
	out[0] = byte(le)
	out[1] = byte(le >> 8)
	out[2] = byte(le >> 16)
	out[3] = byte(le >> 24)
	return out, nil
}

// DecodeHeader parses the fixed prefix from b, leaving the cursor
// positioned at the start of the direction-specific body.
func DecodeHeader(b *Buffer) (Header, uint32, error) {
	var h Header
	length, err := b.ReadU32()
	if err != nil {
		return h, 0, err
	}
	if length > MaxPacketSize {
		return h, 0, ErrTooLong
	}
	dir, err := b.ReadU8()
	if err != nil {
		return h, 0, err
	}
	h.Direction = Direction(dir)
	h.RequestID, err = b.ReadU32()
	if err != nil {
		return h, 0, err
	}
	switch h.Direction {
	case DirRequest, DirOneway:
		fn, err := b.ReadU32()
		if err != nil {
			return h, 0, err
		}
		h.Function = Function(fn)
	case DirReply:
		st, err := b.ReadI32()
		if err != nil {
			return h, 0, err
		}
		h.Status = st
	default:
		return h, 0, fmt.Errorf("codec: unknown direction %d", dir)
	}
	return h, length, nil
}
