package simnet

import (
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/rxsink/internal/core"
	"firestige.xyz/rxsink/internal/core/decoder"
	"firestige.xyz/rxsink/internal/sched"
	"firestige.xyz/rxsink/internal/transport"
)

var (
	sinkAddr   = netip.MustParseAddrPort("10.0.0.2:9000")
	senderAddr = netip.MustParseAddrPort("10.0.0.1:40000")
)

func listen(t *testing.T, n *Network, proto core.Protocol, at netip.AddrPort) transport.Socket {
	t.Helper()
	s, err := n.NewSocket(proto)
	require.NoError(t, err)
	require.NoError(t, s.Bind(at))
	require.NoError(t, s.Listen())
	return s
}

func drain(s transport.Socket) []core.Packet {
	var out []core.Packet
	for {
		p, ok := s.RecvFrom()
		if !ok {
			return out
		}
		out = append(out, p)
	}
}

func TestUDPDeliveryAfterLatency(t *testing.T) {
	sim := sched.NewSimulator()
	n := New(sim, WithLatency(10*time.Millisecond))
	s := listen(t, n, core.ProtocolUDP, sinkAddr)

	var got []core.Packet
	var at time.Duration
	s.SetRecvCallback(func(s transport.Socket) {
		at = sim.Now()
		got = append(got, drain(s)...)
	})

	n.SendTo(senderAddr, sinkAddr, []byte("hello"))
	sim.Run()

	require.Len(t, got, 1)
	assert.Equal(t, 10*time.Millisecond, at)
	assert.Equal(t, []byte("hello"), got[0].Payload)
	assert.Equal(t, senderAddr, got[0].From)

	src, ok := decoder.SourceAddr(got[0])
	require.True(t, ok)
	assert.Equal(t, senderAddr.Addr(), src)
	assert.Equal(t, uint64(1), n.Delivered())
}

func TestWithoutHeaders(t *testing.T) {
	sim := sched.NewSimulator()
	n := New(sim, WithoutHeaders())
	s := listen(t, n, core.ProtocolUDP, sinkAddr)

	n.SendTo(senderAddr, sinkAddr, []byte{1, 2, 3})
	sim.Run()

	p, ok := s.RecvFrom()
	require.True(t, ok)
	assert.Nil(t, p.Raw)
	assert.Equal(t, 3, p.Size())
}

func TestUDPDroppedWithoutListener(t *testing.T) {
	sim := sched.NewSimulator()
	n := New(sim)
	s, err := n.NewSocket(core.ProtocolUDP)
	require.NoError(t, err)
	require.NoError(t, s.Bind(sinkAddr))

	n.SendTo(senderAddr, sinkAddr, []byte("x"))
	sim.Run()

	_, ok := s.RecvFrom()
	assert.False(t, ok, "bound but not listening")
	assert.Equal(t, uint64(1), n.Dropped())
}

func TestWildcardBind(t *testing.T) {
	sim := sched.NewSimulator()
	n := New(sim)
	wild := listen(t, n, core.ProtocolUDP, netip.MustParseAddrPort("0.0.0.0:9000"))
	exact := listen(t, n, core.ProtocolUDP, netip.MustParseAddrPort("10.0.0.3:9000"))

	n.SendTo(senderAddr, sinkAddr, []byte("a"))
	n.SendTo(senderAddr, netip.MustParseAddrPort("10.0.0.3:9000"), []byte("b"))
	sim.Run()

	assert.Len(t, drain(wild), 1)
	assert.Len(t, drain(exact), 1)
}

func TestBindConflictAndEphemeral(t *testing.T) {
	n := New(sched.NewSimulator())
	a, _ := n.NewSocket(core.ProtocolUDP)
	b, _ := n.NewSocket(core.ProtocolUDP)
	c, _ := n.NewSocket(core.ProtocolTCP)

	require.NoError(t, a.Bind(sinkAddr))
	assert.ErrorIs(t, b.Bind(sinkAddr), core.ErrAddressInUse)
	assert.NoError(t, c.Bind(sinkAddr), "different protocol")

	require.NoError(t, b.Bind(netip.MustParseAddrPort("10.0.0.2:0")))
	assert.Equal(t, uint16(firstEphemeralPort), b.LocalAddr().Port())

	require.NoError(t, a.Close())
	d, _ := n.NewSocket(core.ProtocolUDP)
	assert.NoError(t, d.Bind(sinkAddr), "address released on close")
}

func TestListenRequiresBind(t *testing.T) {
	n := New(sched.NewSimulator())
	s, _ := n.NewSocket(core.ProtocolTCP)
	assert.ErrorIs(t, s.Listen(), core.ErrNotBound)
	assert.Zero(t, n.Listens())
}

func TestMulticastMembership(t *testing.T) {
	sim := sched.NewSimulator()
	n := New(sim)
	group := netip.MustParseAddrPort("239.1.1.1:5000")

	udp := listen(t, n, core.ProtocolUDP, group)
	n.SendTo(senderAddr, group, []byte("before join"))
	sim.Run()
	assert.Empty(t, drain(udp))

	j, ok := udp.(transport.MulticastJoiner)
	require.True(t, ok)
	require.NoError(t, j.JoinGroup(0, group.Addr()))
	n.SendTo(senderAddr, group, []byte("after join"))
	sim.Run()
	assert.Len(t, drain(udp), 1)

	tcp, err := n.NewSocket(core.ProtocolTCP)
	require.NoError(t, err)
	_, ok = tcp.(transport.MulticastJoiner)
	assert.False(t, ok, "tcp sockets cannot join groups")
}

func TestTCPConnectionLifecycle(t *testing.T) {
	sim := sched.NewSimulator()
	n := New(sim)
	l := listen(t, n, core.ProtocolTCP, sinkAddr)

	var accepted transport.Socket
	var from netip.AddrPort
	var got []core.Packet
	closed := 0
	l.SetAcceptCallback(func(s transport.Socket, peer netip.AddrPort) {
		accepted, from = s, peer
		s.SetRecvCallback(func(s transport.Socket) { got = append(got, drain(s)...) })
		s.SetCloseCallbacks(func(transport.Socket) { closed++ }, nil)
	})

	c := n.Dial(senderAddr, sinkAddr)
	require.NoError(t, c.Send([]byte("abc")))
	require.NoError(t, c.Send([]byte("de")))
	c.Close()
	sim.Run()

	require.NotNil(t, accepted)
	assert.Equal(t, senderAddr, from)
	assert.Equal(t, sinkAddr, accepted.LocalAddr())
	require.Len(t, got, 3)
	assert.Equal(t, 3, got[0].Size())
	assert.Equal(t, 2, got[1].Size())
	assert.True(t, got[2].IsEOF())
	assert.Equal(t, 1, closed)
	assert.ErrorIs(t, c.Send([]byte("late")), core.ErrSocketClosed)
}

func TestTCPAbortFiresErrorCallback(t *testing.T) {
	sim := sched.NewSimulator()
	n := New(sim)
	l := listen(t, n, core.ProtocolTCP, sinkAddr)

	errs := 0
	l.SetAcceptCallback(func(s transport.Socket, _ netip.AddrPort) {
		s.SetCloseCallbacks(nil, func(transport.Socket) { errs++ })
	})
	c := n.Dial(senderAddr, sinkAddr)
	c.Abort()
	sim.Run()
	assert.Equal(t, 1, errs)
}

func TestTCPServerCloseStopsDelivery(t *testing.T) {
	sim := sched.NewSimulator()
	n := New(sim)
	l := listen(t, n, core.ProtocolTCP, sinkAddr)

	recv := 0
	l.SetAcceptCallback(func(s transport.Socket, _ netip.AddrPort) {
		s.SetRecvCallback(func(s transport.Socket) {
			recv++
			drain(s)
		})
	})
	c := n.Dial(senderAddr, sinkAddr)
	require.NoError(t, c.Send([]byte("one")))
	sim.Run()
	require.Equal(t, 1, recv)

	require.NoError(t, c.Server().ShutdownSend())
	assert.True(t, c.Server().SendShutdown())
	require.NoError(t, c.Server().Close())
	assert.ErrorIs(t, c.Send([]byte("two")), core.ErrSocketClosed)
	sim.Run()
	assert.Equal(t, 1, recv)
}

func TestDialRefused(t *testing.T) {
	sim := sched.NewSimulator()
	n := New(sim)
	c := n.Dial(senderAddr, sinkAddr)
	sim.Run()
	assert.True(t, c.Refused())
	assert.Nil(t, c.Server())
	assert.ErrorIs(t, c.Send([]byte("x")), core.ErrSocketClosed)
}

func TestUnsupportedProtocol(t *testing.T) {
	n := New(sched.NewSimulator())
	_, err := n.NewSocket(core.Protocol("sctp"))
	assert.ErrorIs(t, err, core.ErrUnsupportedProto)
}
