package protocol

import "errors"

var (
	ErrMalformedFrame      = errors.New("protocol: malformed frame")
	ErrIncompatibleVersion = errors.New("protocol: incompatible version")
	ErrUnknownService      = errors.New("protocol: unknown service")
	ErrUnknownCommand      = errors.New("protocol: unknown command")
	ErrInvalidCRC          = errors.New("protocol: invalid crc")
	ErrUnregisteredMessage = errors.New("protocol: message kind not registered")
)
