package wire

import (
	"encoding/binary"
	"errors"
)

// ErrShort is returned when a read runs past the end of the buffer.
var ErrShort = errors.New("wire: buffer too short")

// Reader decodes little-endian fields. The first short read sets a sticky
// error; every later read returns zero so callers check Err once at the end.
type Reader struct {
	data []byte
	off  int
	err  error
}

func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

func (r *Reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if r.off+n > len(r.data) {
		r.err = ErrShort
		r.off = len(r.data)
		return nil
	}
	b := r.data[r.off : r.off+n]
	r.off += n
	return b
}

func (r *Reader) U8() uint8 {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *Reader) U16() uint16 {
	b := r.take(2)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}

func (r *Reader) U32() uint32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (r *Reader) U64() uint64 {
	b := r.take(8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

func (r *Reader) I64() int64 { return int64(r.U64()) }

// Raw returns the next n bytes without copying.
func (r *Reader) Raw(n int) []byte { return r.take(n) }

// String reads a u16-length-prefixed string.
func (r *Reader) String() string {
	n := int(r.U16())
	return string(r.take(n))
}

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int { return len(r.data) - r.off }

func (r *Reader) Err() error { return r.err }

// Done returns the sticky error, or ErrTrailing when unread bytes remain.
func (r *Reader) Done() error {
	if r.err != nil {
		return r.err
	}
	if r.off != len(r.data) {
		return ErrTrailing
	}
	return nil
}

// ErrTrailing is returned by Done when the buffer holds more than was read.
var ErrTrailing = errors.New("wire: trailing bytes")
