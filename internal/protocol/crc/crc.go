// Package crc computes the 2-byte trailer checksum used by the pump
// application layer.
package crc

import (
	"encoding/binary"

	"github.com/howeyc/crc16"
)

// Size is the trailer width in bytes.
const Size = 2

// Checksum returns the CRC-16/X-25 of b: reflected CCITT polynomial 0x1021,
// init 0xFFFF, final xor 0xFFFF.
func Checksum(b []byte) uint16 {
	return crc16.ChecksumCCITT(b)
}

// Append writes the little-endian checksum of payload to dst.
func Append(dst, payload []byte) []byte {
	return binary.LittleEndian.AppendUint16(dst, Checksum(payload))
}

// Valid reports whether want matches the checksum of payload.
func Valid(payload []byte, want uint16) bool {
	return Checksum(payload) == want
}
