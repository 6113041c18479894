package netx

import (
	"errors"
	"io"
	"net"
	"net/netip"

	"firestige.xyz/rxsink/internal/core"
	"firestige.xyz/rxsink/internal/transport"
)

// tcpListener accepts connections and hands each one over as a tcpConn.
type tcpListener struct {
	f      *Factory
	ln     *net.TCPListener
	local  netip.AddrPort
	closed bool

	onAccept transport.AcceptFunc
}

var _ transport.Socket = (*tcpListener)(nil)

func newTCPListener(f *Factory) *tcpListener {
	return &tcpListener{f: f}
}

// Bind reserves the address. The kernel listen queue is opened here as well; accepted
// connections are only surfaced after Listen.
func (l *tcpListener) Bind(local netip.AddrPort) error {
	if l.closed {
		return core.ErrSocketClosed
	}
	ln, err := net.ListenTCP(network("tcp", local.Addr()), net.TCPAddrFromAddrPort(local))
	if err != nil {
		return wrapBindError(err)
	}
	l.ln = ln
	l.local = ln.Addr().(*net.TCPAddr).AddrPort()
	return nil
}

func (l *tcpListener) Listen() error {
	if l.closed {
		return core.ErrSocketClosed
	}
	if l.ln == nil {
		return core.ErrNotBound
	}
	go l.acceptLoop(l.ln)
	return nil
}

func (l *tcpListener) acceptLoop(ln *net.TCPListener) {
	for {
		conn, err := ln.AcceptTCP()
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				l.f.logger.Warn("tcp accept failed", "local", l.local, "error", err)
			}
			return
		}
		if err := l.f.post.Post(func() { l.accept(conn) }); err != nil {
			conn.Close()
			return
		}
	}
}

func (l *tcpListener) accept(conn *net.TCPConn) {
	if l.closed {
		conn.Close()
		return
	}
	c := &tcpConn{
		f:     l.f,
		conn:  conn,
		local: unmap(conn.LocalAddr().(*net.TCPAddr).AddrPort()),
		peer:  unmap(conn.RemoteAddr().(*net.TCPAddr).AddrPort()),
	}
	if l.onAccept != nil {
		l.onAccept(c, c.peer)
	}
	if c.closed {
		return
	}
	go c.readLoop()
}

func (l *tcpListener) ShutdownSend() error {
	if l.closed {
		return core.ErrSocketClosed
	}
	return nil
}

func (l *tcpListener) Close() error {
	if l.closed {
		return nil
	}
	l.closed = true
	l.onAccept = nil
	if l.ln == nil {
		return nil
	}
	return l.ln.Close()
}

func (l *tcpListener) RecvFrom() (core.Packet, bool) {
	return core.Packet{}, false
}

func (l *tcpListener) SetRecvCallback(transport.RecvFunc) {}

func (l *tcpListener) SetAcceptCallback(fn transport.AcceptFunc) {
	l.onAccept = fn
}

func (l *tcpListener) SetCloseCallbacks(_, _ transport.CloseFunc) {}

func (l *tcpListener) LocalAddr() netip.AddrPort {
	return l.local
}

// tcpConn is an accepted connection.
type tcpConn struct {
	f      *Factory
	conn   *net.TCPConn
	local  netip.AddrPort
	peer   netip.AddrPort
	q      queue
	closed bool

	onRecv  transport.RecvFunc
	onClose transport.CloseFunc
	onError transport.CloseFunc
}

var _ transport.Socket = (*tcpConn)(nil)

func (c *tcpConn) readLoop() {
	buf := make([]byte, min(c.f.readBuf, maxTCPRead))
	for {
		n, err := c.conn.Read(buf)
		if n > 0 {
			payload := append([]byte(nil), buf[:n]...)
			c.enqueue(c.f.packet(core.ProtocolTCP, c.peer, c.local, payload))
		}
		if err == nil {
			continue
		}
		switch {
		case errors.Is(err, io.EOF):
			c.enqueue(core.Packet{From: c.peer})
			_ = c.f.post.Post(c.closedByPeer)
		case errors.Is(err, net.ErrClosed):
		default:
			_ = c.f.post.Post(c.failed)
		}
		return
	}
}

func (c *tcpConn) enqueue(p core.Packet) {
	if c.q.push(p) {
		_ = c.f.post.Post(c.notify)
	}
}

func (c *tcpConn) notify() {
	c.q.notified()
	if c.closed || c.onRecv == nil {
		return
	}
	c.onRecv(c)
}

func (c *tcpConn) closedByPeer() {
	if !c.closed && c.onClose != nil {
		c.onClose(c)
	}
}

func (c *tcpConn) failed() {
	if !c.closed && c.onError != nil {
		c.onError(c)
	}
}

// Bind is not supported on an accepted connection.
func (c *tcpConn) Bind(netip.AddrPort) error {
	return core.ErrAddressInUse
}

// Listen is a no-op: the connection is already receiving.
func (c *tcpConn) Listen() error {
	if c.closed {
		return core.ErrSocketClosed
	}
	return nil
}

func (c *tcpConn) ShutdownSend() error {
	if c.closed {
		return core.ErrSocketClosed
	}
	return c.conn.CloseWrite()
}

func (c *tcpConn) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	c.onRecv, c.onClose, c.onError = nil, nil, nil
	c.q.reset()
	return c.conn.Close()
}

func (c *tcpConn) RecvFrom() (core.Packet, bool) {
	return c.q.pop()
}

func (c *tcpConn) SetRecvCallback(fn transport.RecvFunc) {
	c.onRecv = fn
}

func (c *tcpConn) SetAcceptCallback(transport.AcceptFunc) {}

func (c *tcpConn) SetCloseCallbacks(onClose, onError transport.CloseFunc) {
	c.onClose, c.onError = onClose, onError
}

func (c *tcpConn) LocalAddr() netip.AddrPort {
	return c.local
}
