// Package bytebuf reads and writes the fixed-layout little-endian payloads
// carried inside application-layer frames.
package bytebuf

import (
	"encoding/binary"
	"errors"
	"fmt"
)

var ErrShortBuffer = errors.New("bytebuf: short buffer")

// Reader consumes a payload front to back.
type Reader struct {
	b   []byte
	off int
}

func NewReader(b []byte) *Reader {
	return &Reader{b: b}
}

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int {
	return len(r.b) - r.off
}

func (r *Reader) need(n int) error {
	if r.Remaining() < n {
		return fmt.Errorf("%w: need %d bytes at offset %d, have %d", ErrShortBuffer, n, r.off, r.Remaining())
	}
	return nil
}

func (r *Reader) Uint8() (uint8, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	v := r.b[r.off]
	r.off++
	return v, nil
}

func (r *Reader) Uint16() (uint16, error) {
	if err := r.need(2); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint16(r.b[r.off : r.off+2])
	r.off += 2
	return v, nil
}

func (r *Reader) Uint32() (uint32, error) {
	if err := r.need(4); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint32(r.b[r.off : r.off+4])
	r.off += 4
	return v, nil
}

// Bytes returns a copy of the next n bytes.
func (r *Reader) Bytes(n int) ([]byte, error) {
	if err := r.need(n); err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, r.b[r.off:r.off+n])
	r.off += n
	return out, nil
}

// Writer builds a payload.
type Writer struct {
	b []byte
}

func NewWriter(capacity int) *Writer {
	return &Writer{b: make([]byte, 0, capacity)}
}

func (w *Writer) Uint8(v uint8) *Writer {
	w.b = append(w.b, v)
	return w
}

func (w *Writer) Uint16(v uint16) *Writer {
	w.b = binary.LittleEndian.AppendUint16(w.b, v)
	return w
}

func (w *Writer) Uint32(v uint32) *Writer {
	w.b = binary.LittleEndian.AppendUint32(w.b, v)
	return w
}

func (w *Writer) Bytes(v []byte) *Writer {
	w.b = append(w.b, v...)
	return w
}

// Len returns the number of bytes written so far.
func (w *Writer) Len() int {
	return len(w.b)
}

// Finish returns the written payload.
func (w *Writer) Finish() []byte {
	return w.b
}
