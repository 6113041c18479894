package netx

import (
	"errors"
	"fmt"
	"net"
	"net/netip"

	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"

	"firestige.xyz/rxsink/internal/core"
	"firestige.xyz/rxsink/internal/transport"
)

// udpSocket wraps a *net.UDPConn. Callback fields are only touched on the event goroutine.
type udpSocket struct {
	f      *Factory
	conn   *net.UDPConn
	local  netip.AddrPort
	group  netip.Addr
	q      queue
	closed bool

	onRecv transport.RecvFunc
}

var (
	_ transport.Socket          = (*udpSocket)(nil)
	_ transport.MulticastJoiner = (*udpSocket)(nil)
)

func newUDPSocket(f *Factory) *udpSocket {
	return &udpSocket{f: f}
}

// Bind opens the socket. A multicast address binds the wildcard address on the same port;
// JoinGroup then adds the membership.
func (s *udpSocket) Bind(local netip.AddrPort) error {
	if s.closed {
		return core.ErrSocketClosed
	}
	addr := local
	if local.Addr().IsMulticast() {
		s.group = local.Addr()
		wildcard := netip.IPv4Unspecified()
		if local.Addr().Is6() {
			wildcard = netip.IPv6Unspecified()
		}
		addr = netip.AddrPortFrom(wildcard, local.Port())
	}
	conn, err := net.ListenUDP(network("udp", addr.Addr()), net.UDPAddrFromAddrPort(addr))
	if err != nil {
		return wrapBindError(err)
	}
	s.conn = conn
	s.local = conn.LocalAddr().(*net.UDPAddr).AddrPort()
	if s.group.IsValid() {
		s.local = netip.AddrPortFrom(s.group, s.local.Port())
	}
	return nil
}

func (s *udpSocket) JoinGroup(ifIndex int, group netip.Addr) error {
	if s.conn == nil {
		return core.ErrNotBound
	}
	var ifi *net.Interface
	if ifIndex > 0 {
		var err error
		if ifi, err = net.InterfaceByIndex(ifIndex); err != nil {
			return fmt.Errorf("netx: interface %d: %w", ifIndex, err)
		}
	}
	ga := &net.UDPAddr{IP: group.AsSlice()}
	if group.Is4() {
		return ipv4.NewPacketConn(s.conn).JoinGroup(ifi, ga)
	}
	return ipv6.NewPacketConn(s.conn).JoinGroup(ifi, ga)
}

func (s *udpSocket) Listen() error {
	if s.closed {
		return core.ErrSocketClosed
	}
	if s.conn == nil {
		return core.ErrNotBound
	}
	go s.readLoop(s.conn)
	return nil
}

func (s *udpSocket) readLoop(conn *net.UDPConn) {
	read := s.reader(conn)
	buf := make([]byte, s.f.readBuf)
	for {
		n, from, dst, err := read(buf)
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				s.f.logger.Warn("udp read failed", "local", s.local, "error", err)
			}
			return
		}
		from = unmap(from)
		pkt := core.Packet{From: from}
		if n > 0 {
			pkt = s.f.packet(core.ProtocolUDP, from, dst, append([]byte(nil), buf[:n]...))
		}
		if s.q.push(pkt) {
			if err := s.f.post.Post(s.notify); err != nil {
				return
			}
		}
	}
}

type readFunc func(buf []byte) (n int, from, dst netip.AddrPort, err error)

// reader returns a read function that reports the datagram's destination address from
// packet info control messages, so a wildcard bind still yields the address the sender
// used. Without control message support the bound address is reported.
func (s *udpSocket) reader(conn *net.UDPConn) readFunc {
	local := s.local
	plain := func(buf []byte) (int, netip.AddrPort, netip.AddrPort, error) {
		n, from, err := conn.ReadFromUDPAddrPort(buf)
		return n, from, local, err
	}
	dst := func(ip net.IP) netip.AddrPort {
		if a, ok := netip.AddrFromSlice(ip); ok && !a.IsUnspecified() {
			return netip.AddrPortFrom(a, local.Port())
		}
		return local
	}

	if local.Addr().Is4() {
		pc := ipv4.NewPacketConn(conn)
		if err := pc.SetControlMessage(ipv4.FlagDst, true); err != nil {
			return plain
		}
		return func(buf []byte) (int, netip.AddrPort, netip.AddrPort, error) {
			n, cm, src, err := pc.ReadFrom(buf)
			if err != nil {
				return 0, netip.AddrPort{}, netip.AddrPort{}, err
			}
			to := local
			if cm != nil {
				to = dst(cm.Dst)
			}
			return n, udpAddrPort(src), to, nil
		}
	}

	pc := ipv6.NewPacketConn(conn)
	if err := pc.SetControlMessage(ipv6.FlagDst, true); err != nil {
		return plain
	}
	return func(buf []byte) (int, netip.AddrPort, netip.AddrPort, error) {
		n, cm, src, err := pc.ReadFrom(buf)
		if err != nil {
			return 0, netip.AddrPort{}, netip.AddrPort{}, err
		}
		to := local
		if cm != nil {
			to = dst(cm.Dst)
		}
		return n, udpAddrPort(src), to, nil
	}
}

func udpAddrPort(a net.Addr) netip.AddrPort {
	if ua, ok := a.(*net.UDPAddr); ok {
		return ua.AddrPort()
	}
	return netip.AddrPort{}
}

func (s *udpSocket) notify() {
	s.q.notified()
	if s.closed || s.onRecv == nil {
		return
	}
	s.onRecv(s)
}

// ShutdownSend is a no-op: the socket never sends.
func (s *udpSocket) ShutdownSend() error {
	if s.closed {
		return core.ErrSocketClosed
	}
	return nil
}

func (s *udpSocket) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.onRecv = nil
	s.q.reset()
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

func (s *udpSocket) RecvFrom() (core.Packet, bool) {
	return s.q.pop()
}

func (s *udpSocket) SetRecvCallback(fn transport.RecvFunc) {
	s.onRecv = fn
}

func (s *udpSocket) SetAcceptCallback(transport.AcceptFunc) {}

func (s *udpSocket) SetCloseCallbacks(_, _ transport.CloseFunc) {}

func (s *udpSocket) LocalAddr() netip.AddrPort {
	return s.local
}

func wrapBindError(err error) error {
	if errors.Is(err, errAddrInUse) {
		return fmt.Errorf("%w: %v", core.ErrAddressInUse, err)
	}
	return err
}
