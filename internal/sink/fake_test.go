package sink

import (
	"net/netip"

	"firestige.xyz/rxsink/internal/core"
	"firestige.xyz/rxsink/internal/transport"
)

// fakeSocket records calls and serves a fixed queue.
type fakeSocket struct {
	calls  []string
	queue  []core.Packet
	local  netip.AddrPort
	closed bool

	onRecv   transport.RecvFunc
	onAccept transport.AcceptFunc
	onClose  transport.CloseFunc
	onError  transport.CloseFunc
}

func (f *fakeSocket) Bind(local netip.AddrPort) error {
	f.calls = append(f.calls, "bind")
	f.local = local
	return nil
}

func (f *fakeSocket) Listen() error {
	f.calls = append(f.calls, "listen")
	return nil
}

func (f *fakeSocket) ShutdownSend() error {
	f.calls = append(f.calls, "shutdown")
	return nil
}

func (f *fakeSocket) Close() error {
	f.calls = append(f.calls, "close")
	f.closed = true
	return nil
}

func (f *fakeSocket) RecvFrom() (core.Packet, bool) {
	if len(f.queue) == 0 {
		return core.Packet{}, false
	}
	p := f.queue[0]
	f.queue = f.queue[1:]
	return p, true
}

func (f *fakeSocket) SetRecvCallback(fn transport.RecvFunc) { f.onRecv = fn }
func (f *fakeSocket) SetAcceptCallback(fn transport.AcceptFunc) { f.onAccept = fn }
func (f *fakeSocket) SetCloseCallbacks(onClose, onError transport.CloseFunc) {
	f.onClose, f.onError = onClose, onError
}
func (f *fakeSocket) LocalAddr() netip.AddrPort { return f.local }

// fakeJoiner adds group membership to fakeSocket.
type fakeJoiner struct {
	fakeSocket
	groups []netip.Addr
}

func (f *fakeJoiner) JoinGroup(_ int, group netip.Addr) error {
	f.calls = append(f.calls, "join")
	f.groups = append(f.groups, group)
	return nil
}

func fakeFactory(sock transport.Socket) transport.Factory {
	return transport.FactoryFunc(func(core.Protocol) (transport.Socket, error) {
		return sock, nil
	})
}

func payload(n int) core.Packet {
	return core.Packet{Payload: make([]byte, n)}
}
