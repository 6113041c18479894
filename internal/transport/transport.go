// Package transport defines the socket contract sinks are written against.
package transport

import (
	"net/netip"

	"firestige.xyz/rxsink/internal/core"
)

// RecvFunc is invoked when one or more payloads are ready to be read with RecvFrom.
type RecvFunc func(s Socket)

// AcceptFunc is invoked with the socket of a newly accepted connection.
type AcceptFunc func(s Socket, from netip.AddrPort)

// CloseFunc is invoked when the peer closes the connection or it fails.
type CloseFunc func(s Socket)

// Socket is a receive-side endpoint. All callbacks are delivered on the
// scheduler goroutine that owns the socket; methods must be called from it too.
type Socket interface {
	// Bind assigns the local address. Port 0 picks an ephemeral port.
	Bind(local netip.AddrPort) error
	// Listen starts accepting connections (connection-oriented) or datagrams.
	Listen() error
	// ShutdownSend disables further outbound writes.
	ShutdownSend() error
	// Close releases the socket. No callback fires after Close returns.
	Close() error

	// RecvFrom returns the next queued payload and false when nothing is queued.
	// A zero-length payload marks end of stream for its source.
	RecvFrom() (core.Packet, bool)

	SetRecvCallback(fn RecvFunc)
	SetAcceptCallback(fn AcceptFunc)
	SetCloseCallbacks(onClose, onError CloseFunc)

	// LocalAddr returns the bound address, or the zero value before Bind.
	LocalAddr() netip.AddrPort
}

// MulticastJoiner is implemented by sockets that support group membership.
// Sinks bound to a multicast address require it.
type MulticastJoiner interface {
	// JoinGroup joins group on the interface with the given index; 0 lets the system choose.
	JoinGroup(ifIndex int, group netip.Addr) error
}

// Factory creates sockets for a protocol.
type Factory interface {
	NewSocket(proto core.Protocol) (Socket, error)
}

// FactoryFunc adapts a function to Factory.
type FactoryFunc func(proto core.Protocol) (Socket, error)

func (f FactoryFunc) NewSocket(proto core.Protocol) (Socket, error) {
	return f(proto)
}
