package bytebuf

import (
	"bytes"
	"errors"
	"testing"
)

func TestWriterReaderRoundTrip(t *testing.T) {
	payload := NewWriter(16).
		Uint8(0x7F).
		Uint16(0xBEEF).
		Uint32(0xDEADBEEF).
		Bytes([]byte{1, 2, 3}).
		Finish()

	r := NewReader(payload)
	u8, err := r.Uint8()
	if err != nil || u8 != 0x7F {
		t.Fatalf("uint8: got=%x err=%v", u8, err)
	}
	u16, err := r.Uint16()
	if err != nil || u16 != 0xBEEF {
		t.Fatalf("uint16: got=%x err=%v", u16, err)
	}
	u32, err := r.Uint32()
	if err != nil || u32 != 0xDEADBEEF {
		t.Fatalf("uint32: got=%x err=%v", u32, err)
	}
	b, err := r.Bytes(3)
	if err != nil || !bytes.Equal(b, []byte{1, 2, 3}) {
		t.Fatalf("bytes: got=%x err=%v", b, err)
	}
	if r.Remaining() != 0 {
		t.Fatalf("expected empty reader, %d bytes left", r.Remaining())
	}
}

func TestWriterIsLittleEndian(t *testing.T) {
	got := NewWriter(2).Uint16(0x0102).Finish()
	if !bytes.Equal(got, []byte{0x02, 0x01}) {
		t.Fatalf("expected little endian, got %x", got)
	}
}

func TestReaderShortBufferIsDeterministic(t *testing.T) {
	r := NewReader([]byte{0x01})
	if _, err := r.Uint16(); !errors.Is(err, ErrShortBuffer) {
		t.Fatalf("expected ErrShortBuffer, got %v", err)
	}
	// a failed read does not consume input
	if r.Remaining() != 1 {
		t.Fatalf("expected 1 byte left, got %d", r.Remaining())
	}
}
