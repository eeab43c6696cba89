// Package codec implements the little-endian, aligned, self-delimited wire
// and metadata encoding of spec.md §4.1: packet framing, the struct layouts
// named in §6, and the fixed-size hash-file slot format.
package codec

import (
	"encoding/binary"
	"fmt"
)

// MaxPacketSize is the compile-time cap on an encoded packet, spec.md §4.1.
const MaxPacketSize = 8900

// ErrTooLong is returned by any Write* call that would exceed MaxPacketSize;
// the buffer is left unmodified, per spec.md §4.1 ("without advancing the
// buffer").
var ErrTooLong = fmt.Errorf("codec: request too long (max %d bytes)", MaxPacketSize)

// Buffer is a bounds-checked little-endian byte cursor shared by wire
// encoding and on-disk hash-slot encoding.
type Buffer struct {
	buf []byte
	pos int
}

// NewEncoder returns a Buffer that grows buf as values are written, bounded
// at MaxPacketSize.
func NewEncoder() *Buffer {
	return &Buffer{buf: make([]byte, 0, 256)}
}

// NewDecoder wraps an existing byte slice for sequential reads.
func NewDecoder(b []byte) *Buffer {
	return &Buffer{buf: b}
}

func (b *Buffer) Bytes() []byte { return b.buf }
func (b *Buffer) Len() int      { return len(b.buf) }
func (b *Buffer) Pos() int      { return b.pos }
func (b *Buffer) Remaining() int { return len(b.buf) - b.pos }

// Remainder returns the unread tail of the buffer without advancing the
// cursor, used by the RPC dispatcher to hand a request/reply body to its
// handler after decoding the fixed header.
func (b *Buffer) Remainder() []byte { return b.buf[b.pos:] }

// Reset empties the buffer for reuse, keeping its underlying array so a
// pooled Buffer (see BufferPool) doesn't reallocate on every checkout.
func (b *Buffer) Reset() {
	b.buf = b.buf[:0]
	b.pos = 0
}

func (b *Buffer) checkGrow(n int) error {
	if len(b.buf)+n > MaxPacketSize {
		return ErrTooLong
	}
	return nil
}

// padEncode zero-pads buf up to the next n-byte boundary, spec.md §4.1
// ("every integer type is aligned at its natural size within the buffer;
// padding is zeroed on encode"). It appends nothing and returns ErrTooLong
// when the padding plus the n-byte value that follows it would not fit.
func (b *Buffer) padEncode(n int) error {
	if err := b.checkGrow((n-len(b.buf)%n)%n + n); err != nil {
		return err
	}
	pad := (n - len(b.buf)%n) % n
	if pad == 0 {
		return nil
	}
	if err := b.checkGrow(pad); err != nil {
		return err
	}
	for i := 0; i < pad; i++ {
		b.buf = append(b.buf, 0)
	}
	return nil
}

// padDecode advances past the next n-byte alignment boundary, rejecting a
// mis-aligned payload whose padding bytes are not zero, spec.md §4.1
// ("Decoders MUST reject any ... mis-aligned payload").
func (b *Buffer) padDecode(n int) error {
	pad := (n - b.pos%n) % n
	if pad == 0 {
		return nil
	}
	if err := b.need(pad); err != nil {
		return err
	}
	for i := 0; i < pad; i++ {
		if b.buf[b.pos+i] != 0 {
			return fmt.Errorf("codec: mis-aligned payload: non-zero padding at offset %d", b.pos+i)
		}
	}
	b.pos += pad
	return nil
}

func (b *Buffer) WriteU8(v uint8) error {
	if err := b.checkGrow(1); err != nil {
		return err
	}
	b.buf = append(b.buf, v)
	return nil
}

func (b *Buffer) WriteU32(v uint32) error {
	if err := b.padEncode(4); err != nil {
		return err
	}
	if err := b.checkGrow(4); err != nil {
		return err
	}
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	b.buf = append(b.buf, tmp[:]...)
	return nil
}

func (b *Buffer) WriteI32(v int32) error {
	return b.WriteU32(uint32(v))
}

func (b *Buffer) WriteU64(v uint64) error {
	if err := b.padEncode(8); err != nil {
		return err
	}
	if err := b.checkGrow(8); err != nil {
		return err
	}
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	b.buf = append(b.buf, tmp[:]...)
	return nil
}

func (b *Buffer) WriteI64(v int64) error {
	return b.WriteU64(uint64(v))
}

// WriteString writes u32 len + len bytes + one trailing NUL, NUL excluded
// from len, per spec.md §4.1.
func (b *Buffer) WriteString(s string) error {
	if err := b.checkGrow((4-len(b.buf)%4)%4 + 4 + len(s) + 1); err != nil {
		return err
	}
	if err := b.WriteU32(uint32(len(s))); err != nil {
		return err
	}
	b.buf = append(b.buf, s...)
	b.buf = append(b.buf, 0)
	return nil
}

// WriteData writes u32 len + raw bytes (a data buffer, not a string).
func (b *Buffer) WriteData(data []byte) error {
	if err := b.checkGrow((4-len(b.buf)%4)%4 + 4 + len(data)); err != nil {
		return err
	}
	if err := b.WriteU32(uint32(len(data))); err != nil {
		return err
	}
	b.buf = append(b.buf, data...)
	return nil
}

func (b *Buffer) WriteFixed(data []byte) error {
	if err := b.checkGrow(len(data)); err != nil {
		return err
	}
	b.buf = append(b.buf, data...)
	return nil
}

// --- decode side ---

func (b *Buffer) need(n int) error {
	if n > MaxPacketSize {
		return ErrTooLong
	}
	if b.Remaining() < n {
		return fmt.Errorf("codec: truncated buffer: need %d, have %d", n, b.Remaining())
	}
	return nil
}

func (b *Buffer) ReadU8() (uint8, error) {
	if err := b.need(1); err != nil {
		return 0, err
	}
	v := b.buf[b.pos]
	b.pos++
	return v, nil
}

func (b *Buffer) ReadU32() (uint32, error) {
	if err := b.padDecode(4); err != nil {
		return 0, err
	}
	if err := b.need(4); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint32(b.buf[b.pos:])
	b.pos += 4
	return v, nil
}

func (b *Buffer) ReadI32() (int32, error) {
	v, err := b.ReadU32()
	return int32(v), err
}

func (b *Buffer) ReadU64() (uint64, error) {
	if err := b.padDecode(8); err != nil {
		return 0, err
	}
	if err := b.need(8); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint64(b.buf[b.pos:])
	b.pos += 8
	return v, nil
}

func (b *Buffer) ReadI64() (int64, error) {
	v, err := b.ReadU64()
	return int64(v), err
}

func (b *Buffer) ReadString() (string, error) {
	n, err := b.ReadU32()
	if err != nil {
		return "", err
	}
	if err := b.need(int(n) + 1); err != nil {
		return "", err
	}
	s := string(b.buf[b.pos : b.pos+int(n)])
	b.pos += int(n) + 1 // skip NUL
	return s, nil
}

func (b *Buffer) ReadData() ([]byte, error) {
	n, err := b.ReadU32()
	if err != nil {
		return nil, err
	}
	if err := b.need(int(n)); err != nil {
		return nil, err
	}
	data := make([]byte, n)
	copy(data, b.buf[b.pos:b.pos+int(n)])
	b.pos += int(n)
	return data, nil
}

func (b *Buffer) ReadFixed(n int) ([]byte, error) {
	if err := b.need(n); err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, b.buf[b.pos:b.pos+n])
	b.pos += n
	return out, nil
}

// Marshaler is implemented by every wire/metadata struct named in spec.md
// §3/§6.
type Marshaler interface {
	Marshal(b *Buffer) error
}

// Unmarshaler is the decode counterpart of Marshaler.
type Unmarshaler interface {
	Unmarshal(b *Buffer) error
}
