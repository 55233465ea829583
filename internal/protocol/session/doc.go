// Package session owns the pump-side transport helpers.
//
// Ownership boundary:
// - the outbound priority queue of serialized app frames
// - retry/backoff for frames the transport failed to deliver
//
// Inbound frames are decoded by package app and never queued here.
package session
