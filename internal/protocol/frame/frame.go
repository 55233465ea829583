package frame

import (
	"encoding/binary"
	"fmt"

	"github.com/danmuck/pumpctl/internal/protocol"
	"github.com/danmuck/pumpctl/internal/protocol/crc"
)

const (
	// OutboundHeaderLen is version, service and command.
	OutboundHeaderLen = 4
	// InboundHeaderLen adds the device error code.
	InboundHeaderLen = 6
)

// Header is the fixed application-layer header.
// ErrorCode is only present on inbound frames.
type Header struct {
	Version   uint8
	ServiceID uint8
	CommandID uint16
	ErrorCode uint16
}

// Encode builds an outbound frame. ErrorCode is never written.
func Encode(h Header, payload []byte, appendCRC bool) []byte {
	size := OutboundHeaderLen + len(payload)
	if appendCRC {
		size += crc.Size
	}
	buf := make([]byte, OutboundHeaderLen, size)
	buf[0] = h.Version
	buf[1] = h.ServiceID
	binary.LittleEndian.PutUint16(buf[2:4], h.CommandID)
	buf = append(buf, payload...)
	if appendCRC {
		buf = crc.Append(buf, payload)
	}
	return buf
}

// EncodeInbound builds a frame the way the pump sends it, with the error
// code in the header.
func EncodeInbound(h Header, payload []byte, appendCRC bool) []byte {
	size := InboundHeaderLen + len(payload)
	if appendCRC {
		size += crc.Size
	}
	buf := make([]byte, InboundHeaderLen, size)
	buf[0] = h.Version
	buf[1] = h.ServiceID
	binary.LittleEndian.PutUint16(buf[2:4], h.CommandID)
	binary.LittleEndian.PutUint16(buf[4:6], h.ErrorCode)
	buf = append(buf, payload...)
	if appendCRC {
		buf = crc.Append(buf, payload)
	}
	return buf
}

// Decode reads the inbound header and returns the remaining body, which is
// the payload followed by an optional CRC trailer.
func Decode(b []byte) (Header, []byte, error) {
	h, err := DecodeHeader(b)
	if err != nil {
		return Header{}, nil, err
	}
	body := make([]byte, len(b)-InboundHeaderLen)
	copy(body, b[InboundHeaderLen:])
	return h, body, nil
}

// DecodeHeader parses the first InboundHeaderLen bytes of b.
func DecodeHeader(b []byte) (Header, error) {
	if len(b) < InboundHeaderLen {
		return Header{}, fmt.Errorf("%w: header needs %d bytes, have %d", protocol.ErrMalformedFrame, InboundHeaderLen, len(b))
	}
	return Header{
		Version:   b[0],
		ServiceID: b[1],
		CommandID: binary.LittleEndian.Uint16(b[2:4]),
		ErrorCode: binary.LittleEndian.Uint16(b[4:6]),
	}, nil
}

// SplitCRC separates the trailing checksum from body.
func SplitCRC(body []byte) ([]byte, uint16, error) {
	if len(body) < crc.Size {
		return nil, 0, fmt.Errorf("%w: crc trailer needs %d bytes, have %d", protocol.ErrMalformedFrame, crc.Size, len(body))
	}
	n := len(body) - crc.Size
	return body[:n], binary.LittleEndian.Uint16(body[n:]), nil
}
