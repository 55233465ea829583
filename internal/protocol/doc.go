// Package protocol owns the pump application-layer wire contract.
//
// Ownership boundary:
// - frame/header primitives (frame)
// - crc trailer checksum (crc)
// - fixed-layout payload primitives (bytebuf)
// - message registry, decode state machine and error table (app)
// - priority-ordered outbound queue (session)
package protocol
