// Package simnet is an in-memory network whose deliveries are events on a sched.Scheduler.
// It backs simulations, pcap replay and tests.
package simnet

import (
	"fmt"
	"net/netip"
	"time"

	"firestige.xyz/rxsink/internal/core"
	"firestige.xyz/rxsink/internal/core/decoder"
	"firestige.xyz/rxsink/internal/sched"
	"firestige.xyz/rxsink/internal/transport"
)

const firstEphemeralPort = 49152

// Option configures a Network.
type Option func(*Network)

// WithLatency delays every delivery by d.
func WithLatency(d time.Duration) Option {
	return func(n *Network) { n.latency = d }
}

// WithoutHeaders delivers bare payloads with no network-layer frame.
func WithoutHeaders() Option {
	return func(n *Network) { n.headers = false }
}

// Network routes datagrams and connections between endpoints.
type Network struct {
	sched    sched.Scheduler
	latency  time.Duration
	headers  bool
	bound    []*socket
	nextPort uint16

	listens   int
	delivered uint64
	dropped   uint64
}

var _ transport.Factory = (*Network)(nil)

// New returns an empty network on s.
func New(s sched.Scheduler, opts ...Option) *Network {
	n := &Network{
		sched:    s,
		headers:  true,
		nextPort: firstEphemeralPort,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// NewSocket implements transport.Factory. UDP sockets support multicast groups, TCP sockets do not.
func (n *Network) NewSocket(proto core.Protocol) (transport.Socket, error) {
	switch proto {
	case core.ProtocolUDP:
		return newUDPSocket(n), nil
	case core.ProtocolTCP:
		return newTCPSocket(n), nil
	default:
		return nil, fmt.Errorf("%w: %q", core.ErrUnsupportedProto, proto)
	}
}

// SendTo sends one datagram. Delivery happens after the configured latency; datagrams to
// an address nobody listens on are dropped.
func (n *Network) SendTo(from, to netip.AddrPort, payload []byte) {
	pkt := n.packet(core.ProtocolUDP, from, to, payload)
	n.sched.Schedule(n.latency, func() {
		s := n.lookup(core.ProtocolUDP, to)
		if s == nil {
			n.dropped++
			return
		}
		n.delivered++
		s.deliver(pkt)
	})
}

// Dial opens a connection from one endpoint to a listening TCP socket.
// The listener's accept callback fires after the configured latency.
func (n *Network) Dial(from, to netip.AddrPort) *Conn {
	c := &Conn{net: n, from: from, to: to}
	n.sched.Schedule(n.latency, func() {
		l := n.lookup(core.ProtocolTCP, to)
		if l == nil {
			c.refused = true
			n.dropped++
			return
		}
		child := newTCPSocket(n)
		child.local = to
		child.bound = true
		child.listening = true
		child.peer = c
		c.server = child
		if l.onAccept != nil {
			l.onAccept(child.self, from)
		}
	})
	return c
}

// Listens returns how many sockets were put into listening mode.
func (n *Network) Listens() int {
	return n.listens
}

// Delivered returns the number of payloads handed to a socket.
func (n *Network) Delivered() uint64 {
	return n.delivered
}

// Dropped returns the number of payloads or connections that found no receiver.
func (n *Network) Dropped() uint64 {
	return n.dropped
}

func (n *Network) packet(proto core.Protocol, from, to netip.AddrPort, payload []byte) core.Packet {
	pkt := core.Packet{From: from}
	if len(payload) > 0 {
		pkt.Payload = append([]byte(nil), payload...)
	}
	if n.headers {
		if raw, err := decoder.Encapsulate(proto, from, to, payload); err == nil {
			pkt.Raw = raw
			pkt.Link = core.LinkRaw
		}
	}
	return pkt
}

func (n *Network) bind(s *socket, local netip.AddrPort) error {
	if local.Port() == 0 {
		local = netip.AddrPortFrom(local.Addr(), n.nextPort)
		n.nextPort++
	}
	for _, other := range n.bound {
		if other.proto == s.proto && other.local == local {
			return fmt.Errorf("%w: %s/%s", core.ErrAddressInUse, s.proto, local)
		}
	}
	s.local = local
	s.bound = true
	n.bound = append(n.bound, s)
	return nil
}

func (n *Network) unbind(s *socket) {
	for i, other := range n.bound {
		if other == s {
			n.bound = append(n.bound[:i], n.bound[i+1:]...)
			return
		}
	}
}

// lookup finds the listening socket for a destination, preferring an exact
// address match over a wildcard bind on the same port.
func (n *Network) lookup(proto core.Protocol, to netip.AddrPort) *socket {
	var wildcard *socket
	for _, s := range n.bound {
		if s.proto != proto || !s.listening || s.closed || s.local.Port() != to.Port() {
			continue
		}
		if to.Addr().IsMulticast() && !s.joined(to.Addr()) {
			continue
		}
		if s.local.Addr() == to.Addr() {
			return s
		}
		if s.local.Addr().IsUnspecified() && wildcard == nil {
			wildcard = s
		}
	}
	return wildcard
}
