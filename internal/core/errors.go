// Package core defines sentinel errors.
package core

import "errors"

var (
	// Sink lifecycle errors
	ErrSinkStopped = errors.New("rxsink: sink stopped")

	// Fatal configuration error: multicast group on a transport without group membership
	ErrMulticastUnsupported = errors.New("rxsink: multicast join on a non-multicast transport")

	// Transport errors
	ErrSocketClosed = errors.New("rxsink: socket closed")
	ErrAddressInUse = errors.New("rxsink: address already bound")
	ErrNotBound     = errors.New("rxsink: socket not bound")

	// Scheduler errors
	ErrLoopStopped = errors.New("rxsink: event loop stopped")

	// Packet decoding errors
	ErrPacketTooShort   = errors.New("rxsink: packet too short")
	ErrUnsupportedProto = errors.New("rxsink: unsupported protocol")
	ErrPacketTooLarge   = errors.New("rxsink: packet exceeds IP length limit")

	// Configuration errors
	ErrConfigInvalid = errors.New("rxsink: invalid configuration")
)
