// Package netx implements the socket contract on top of the operating system's network stack.
//
// Reads happen on per-socket goroutines; every callback is handed to a Poster, normally a
// sched.Loop, so sinks observe the same single-goroutine semantics as in simulation.
package netx

import (
	"fmt"
	"log/slog"
	"net/netip"

	"firestige.xyz/rxsink/internal/core"
	"firestige.xyz/rxsink/internal/core/decoder"
	"firestige.xyz/rxsink/internal/transport"
)

const (
	defaultReadBuffer = 65535
	// maxTCPRead keeps a rebuilt IPv4 or IPv6 frame of one read within the 16-bit length fields.
	maxTCPRead = 65535 - 40
)

// Poster runs fn on the owning event goroutine.
type Poster interface {
	Post(fn func()) error
}

// Option configures a Factory.
type Option func(*Factory)

// WithReadBuffer sets the per-read buffer size.
func WithReadBuffer(n int) Option {
	return func(f *Factory) {
		if n > 0 {
			f.readBuf = n
		}
	}
}

// WithoutHeaders skips synthesizing IP headers for received payloads.
func WithoutHeaders() Option {
	return func(f *Factory) { f.headers = false }
}

// WithLogger sets the logger used for read errors.
func WithLogger(l *slog.Logger) Option {
	return func(f *Factory) {
		if l != nil {
			f.logger = l
		}
	}
}

// Factory creates OS-backed sockets.
type Factory struct {
	post    Poster
	readBuf int
	headers bool
	logger  *slog.Logger
}

var _ transport.Factory = (*Factory)(nil)

func NewFactory(p Poster, opts ...Option) *Factory {
	f := &Factory{
		post:    p,
		readBuf: defaultReadBuffer,
		headers: true,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *Factory) NewSocket(proto core.Protocol) (transport.Socket, error) {
	switch proto {
	case core.ProtocolUDP:
		return newUDPSocket(f), nil
	case core.ProtocolTCP:
		return newTCPListener(f), nil
	default:
		return nil, fmt.Errorf("%w: %q", core.ErrUnsupportedProto, proto)
	}
}

// packet builds the delivered packet. Kernel sockets strip the network header, so one is
// rebuilt from the reported endpoints to keep address filters working. An unspecified
// local address takes the sender's family.
func (f *Factory) packet(proto core.Protocol, from, local netip.AddrPort, payload []byte) core.Packet {
	from = unmap(from)
	pkt := core.Packet{Payload: payload, From: from}
	if !f.headers || len(payload) == 0 {
		return pkt
	}
	to := unmap(local)
	if to.Addr().IsUnspecified() || !to.Addr().IsValid() {
		to = netip.AddrPortFrom(unspecified(from.Addr()), to.Port())
	}
	raw, err := decoder.Encapsulate(proto, from, to, payload)
	if err != nil {
		f.logger.Debug("no network header for packet", "from", from.String(), "local", to.String(), "error", err)
		return pkt
	}
	pkt.Raw = raw
	pkt.Link = core.LinkRaw
	return pkt
}

func unmap(ap netip.AddrPort) netip.AddrPort {
	return netip.AddrPortFrom(ap.Addr().Unmap(), ap.Port())
}

func unspecified(a netip.Addr) netip.Addr {
	if a.Is4() {
		return netip.IPv4Unspecified()
	}
	return netip.IPv6Unspecified()
}

// network opens IPv4 addresses, the wildcard included, as IPv4-only sockets so that
// peers and local addresses are reported in the configured family. IPv6 addresses
// keep the dual-stack network.
func network(base string, a netip.Addr) string {
	if a.Is4() {
		return base + "4"
	}
	return base
}
