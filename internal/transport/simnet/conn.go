package simnet

import (
	"net/netip"

	"firestige.xyz/rxsink/internal/core"
)

// Conn is the client side of a simulated TCP connection.
type Conn struct {
	net  *Network
	from netip.AddrPort
	to   netip.AddrPort

	server       *TCPSocket
	refused      bool
	closed       bool
	serverClosed bool
}

// Send writes payload to the server socket. It fails once either side has closed.
func (c *Conn) Send(payload []byte) error {
	if c.closed || c.serverClosed || c.refused {
		return core.ErrSocketClosed
	}
	pkt := c.net.packet(core.ProtocolTCP, c.from, c.to, payload)
	c.net.sched.Schedule(c.net.latency, func() {
		if c.server == nil || c.server.closed {
			c.net.dropped++
			return
		}
		c.net.delivered++
		c.server.deliver(pkt)
	})
	return nil
}

// Close performs an orderly shutdown: the server reads an end-of-stream marker
// and its close callback fires.
func (c *Conn) Close() {
	if c.closed {
		return
	}
	c.closed = true
	c.net.sched.Schedule(c.net.latency, func() {
		s := c.server
		if s == nil || s.closed {
			return
		}
		s.deliver(core.Packet{From: c.from})
		if s.onClose != nil {
			s.onClose(s.self)
		}
	})
}

// Abort resets the connection: the server's error callback fires.
func (c *Conn) Abort() {
	if c.closed {
		return
	}
	c.closed = true
	c.net.sched.Schedule(c.net.latency, func() {
		s := c.server
		if s == nil || s.closed {
			return
		}
		if s.onError != nil {
			s.onError(s.self)
		}
	})
}

// Server returns the accepted socket, nil until the accept event ran.
func (c *Conn) Server() *TCPSocket {
	return c.server
}

// Refused reports whether nobody was listening when the connection arrived.
func (c *Conn) Refused() bool {
	return c.refused
}

// LocalAddr returns the client endpoint.
func (c *Conn) LocalAddr() netip.AddrPort {
	return c.from
}
