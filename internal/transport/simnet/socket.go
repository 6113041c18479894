package simnet

import (
	"net/netip"

	"firestige.xyz/rxsink/internal/core"
	"firestige.xyz/rxsink/internal/transport"
)

// socket holds the state shared by UDP and TCP sockets.
type socket struct {
	net   *Network
	self  transport.Socket
	proto core.Protocol
	local netip.AddrPort

	bound        bool
	listening    bool
	closed       bool
	sendShutdown bool

	queue  []core.Packet
	groups map[netip.Addr]struct{}
	peer   *Conn

	onRecv   transport.RecvFunc
	onAccept transport.AcceptFunc
	onClose  transport.CloseFunc
	onError  transport.CloseFunc
}

func (s *socket) Bind(local netip.AddrPort) error {
	if s.closed {
		return core.ErrSocketClosed
	}
	return s.net.bind(s, local)
}

func (s *socket) Listen() error {
	if s.closed {
		return core.ErrSocketClosed
	}
	if !s.bound {
		return core.ErrNotBound
	}
	s.listening = true
	s.net.listens++
	return nil
}

func (s *socket) ShutdownSend() error {
	if s.closed {
		return core.ErrSocketClosed
	}
	s.sendShutdown = true
	return nil
}

func (s *socket) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.listening = false
	s.queue = nil
	s.onRecv, s.onAccept, s.onClose, s.onError = nil, nil, nil, nil
	s.net.unbind(s)
	if s.peer != nil {
		s.peer.serverClosed = true
	}
	return nil
}

func (s *socket) RecvFrom() (core.Packet, bool) {
	if len(s.queue) == 0 {
		return core.Packet{}, false
	}
	pkt := s.queue[0]
	s.queue[0] = core.Packet{}
	s.queue = s.queue[1:]
	return pkt, true
}

func (s *socket) SetRecvCallback(fn transport.RecvFunc) {
	s.onRecv = fn
}

func (s *socket) SetAcceptCallback(fn transport.AcceptFunc) {
	s.onAccept = fn
}

func (s *socket) SetCloseCallbacks(onClose, onError transport.CloseFunc) {
	s.onClose, s.onError = onClose, onError
}

func (s *socket) LocalAddr() netip.AddrPort {
	return s.local
}

// Closed reports whether Close was called.
func (s *socket) Closed() bool {
	return s.closed
}

// SendShutdown reports whether ShutdownSend was called.
func (s *socket) SendShutdown() bool {
	return s.sendShutdown
}

func (s *socket) deliver(pkt core.Packet) {
	if s.closed {
		return
	}
	s.queue = append(s.queue, pkt)
	if s.onRecv != nil {
		s.onRecv(s.self)
	}
}

func (s *socket) joined(group netip.Addr) bool {
	_, ok := s.groups[group]
	return ok
}

// UDPSocket is a connectionless socket that can join multicast groups.
type UDPSocket struct {
	*socket
}

var (
	_ transport.Socket          = (*UDPSocket)(nil)
	_ transport.MulticastJoiner = (*UDPSocket)(nil)
)

func newUDPSocket(n *Network) *UDPSocket {
	s := &UDPSocket{socket: &socket{net: n, proto: core.ProtocolUDP}}
	s.self = s
	return s
}

// JoinGroup subscribes the socket to datagrams sent to group.
func (s *UDPSocket) JoinGroup(_ int, group netip.Addr) error {
	if s.closed {
		return core.ErrSocketClosed
	}
	if !group.IsMulticast() {
		return core.ErrConfigInvalid
	}
	if s.groups == nil {
		s.groups = make(map[netip.Addr]struct{})
	}
	s.groups[group] = struct{}{}
	return nil
}

// TCPSocket is a listening or accepted stream socket. It has no multicast support.
type TCPSocket struct {
	*socket
}

var _ transport.Socket = (*TCPSocket)(nil)

func newTCPSocket(n *Network) *TCPSocket {
	s := &TCPSocket{socket: &socket{net: n, proto: core.ProtocolTCP}}
	s.self = s
	return s
}
