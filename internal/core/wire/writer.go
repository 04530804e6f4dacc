// Package wire is the little-endian field codec shared by snapshots and
// command payloads. Every field is written individually, so encoded layouts
// never depend on struct padding.
package wire

import "encoding/binary"

// Writer appends little-endian fields to a growing buffer.
type Writer struct {
	buf []byte
}

func NewWriter(size int) *Writer {
	return &Writer{buf: make([]byte, 0, size)}
}

// U8 writes 1 byte.
func (w *Writer) U8(v uint8) {
	w.buf = append(w.buf, v)
}

// U16 writes 2 bytes.
func (w *Writer) U16(v uint16) {
	w.buf = binary.LittleEndian.AppendUint16(w.buf, v)
}

// U32 writes 4 bytes.
func (w *Writer) U32(v uint32) {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, v)
}

// U64 writes 8 bytes.
func (w *Writer) U64(v uint64) {
	w.buf = binary.LittleEndian.AppendUint64(w.buf, v)
}

// I64 writes 8 bytes, two's complement.
func (w *Writer) I64(v int64) {
	w.U64(uint64(v))
}

// Raw writes b as is.
func (w *Writer) Raw(b []byte) {
	w.buf = append(w.buf, b...)
}

// String writes a u16 length followed by the bytes of s. Strings longer
// than 65535 bytes are truncated.
func (w *Writer) String(s string) {
	if len(s) > 0xFFFF {
		s = s[:0xFFFF]
	}
	w.U16(uint16(len(s)))
	w.buf = append(w.buf, s...)
}

// Bytes returns the encoded buffer. The writer must not be used afterwards.
func (w *Writer) Bytes() []byte { return w.buf }

func (w *Writer) Len() int { return len(w.buf) }
