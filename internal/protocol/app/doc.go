// Package app implements the pump application layer on top of frame:
// the command/service registry, the inbound decode state machine, the
// outbound serializer, the device error table and the concrete messages.
//
// Inbound path:
//
//	raw bytes -> frame.Decode -> version -> service -> error code -> crc -> Message.Decode
//
// Outbound path:
//
//	Message.Encode -> registry command lookup -> frame.Encode (+crc)
package app
