package smbenc

import (
	"encoding/binary"
	"fmt"
)

// Writer provides sequential writing of little-endian encoded SMB wire data
// with append-based growth and pre-allocated capacity.
type Writer struct {
	buf []byte
	err error
}

// NewWriter creates a new Writer with the given initial capacity.
func NewWriter(capacity int) *Writer {
	return &Writer{
		buf: make([]byte, 0, capacity),
	}
}

// WriteUint8 appends a single byte.
func (w *Writer) WriteUint8(v uint8) {
	if w.err != nil {
		return
	}
	w.buf = append(w.buf, v)
}

// WriteUint16 appends a little-endian uint16.
func (w *Writer) WriteUint16(v uint16) {
	if w.err != nil {
		return
	}
	w.buf = binary.LittleEndian.AppendUint16(w.buf, v)
}

// WriteUint32 appends a little-endian uint32.
func (w *Writer) WriteUint32(v uint32) {
	if w.err != nil {
		return
	}
	w.buf = binary.LittleEndian.AppendUint32(w.buf, v)
}

// WriteUint64 appends a little-endian uint64.
func (w *Writer) WriteUint64(v uint64) {
	if w.err != nil {
		return
	}
	w.buf = binary.LittleEndian.AppendUint64(w.buf, v)
}

// WriteBytes appends raw bytes.
func (w *Writer) WriteBytes(data []byte) {
	if w.err != nil {
		return
	}
	w.buf = append(w.buf, data...)
}

// WriteUTF16 appends s encoded as UTF-16LE without a terminator and returns
// the number of bytes written.
func (w *Writer) WriteUTF16(s string) int {
	if w.err != nil {
		return 0
	}
	before := len(w.buf)
	w.buf = AppendUTF16LE(w.buf, s)
	return len(w.buf) - before
}

// WriteZeros appends n zero bytes.
func (w *Writer) WriteZeros(n int) {
	if w.err != nil {
		return
	}
	w.buf = append(w.buf, make([]byte, n)...)
}

// Pad pads the buffer to the given alignment boundary by appending zero bytes.
// If already aligned, no padding is added.
func (w *Writer) Pad(alignment int) {
	if w.err != nil || alignment <= 0 {
		return
	}
	if rem := len(w.buf) % alignment; rem != 0 {
		w.buf = append(w.buf, make([]byte, alignment-rem)...)
	}
}

// WriteAt overwrites bytes at the specified offset. Sets error if the write
// extends beyond the current buffer length.
func (w *Writer) WriteAt(offset int, data []byte) {
	if w.err != nil {
		return
	}
	if offset < 0 || offset+len(data) > len(w.buf) {
		w.err = fmt.Errorf("smbenc: WriteAt out of bounds: offset %d + %d > %d", offset, len(data), len(w.buf))
		return
	}
	copy(w.buf[offset:], data)
}

// PutUint16At backpatches a little-endian uint16 at offset.
func (w *Writer) PutUint16At(offset int, v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	w.WriteAt(offset, b[:])
}

// PutUint32At backpatches a little-endian uint32 at offset.
func (w *Writer) PutUint32At(offset int, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	w.WriteAt(offset, b[:])
}

// Bytes returns the accumulated bytes.
func (w *Writer) Bytes() []byte {
	return w.buf
}

// Len returns the current length of the buffer.
func (w *Writer) Len() int {
	return len(w.buf)
}

// Err returns the first error encountered, or nil.
func (w *Writer) Err() error {
	return w.err
}
