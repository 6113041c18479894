package filter

import (
	"net/netip"

	"firestige.xyz/rxsink/internal/core"
	"firestige.xyz/rxsink/internal/core/decoder"
)

// SourceAddress matches packets whose decoded IP source address equals Addr.
// Comparison is exact: no prefixes, and 10.0.0.1 differs from ::ffff:10.0.0.1.
type SourceAddress struct {
	addr netip.Addr
}

// NewSourceAddress returns a SourceAddress predicate for addr.
func NewSourceAddress(addr netip.Addr) SourceAddress {
	return SourceAddress{addr: addr}
}

// Addr returns the configured address.
func (s SourceAddress) Addr() netip.Addr {
	return s.addr
}

func (s SourceAddress) Match(p core.Packet) bool {
	src, ok := decoder.SourceAddr(p)
	if !ok {
		return false
	}
	return src == s.addr
}

// DestinationAddress matches packets whose decoded IP destination address equals the configured one.
type DestinationAddress struct {
	addr netip.Addr
}

func NewDestinationAddress(addr netip.Addr) DestinationAddress {
	return DestinationAddress{addr: addr}
}

func (d DestinationAddress) Match(p core.Packet) bool {
	h, err := decoder.Decode(p)
	if err != nil {
		return false
	}
	return h.DstIP == d.addr
}

// SenderAddress matches on the endpoint the socket reported, without decoding headers.
// A zero port matches any port.
type SenderAddress struct {
	addr netip.Addr
	port uint16
}

func NewSenderAddress(addr netip.Addr, port uint16) SenderAddress {
	return SenderAddress{addr: addr, port: port}
}

func (s SenderAddress) Match(p core.Packet) bool {
	if !p.From.IsValid() || p.From.Addr() != s.addr {
		return false
	}
	return s.port == 0 || p.From.Port() == s.port
}

// Protocol matches the IP protocol number (6 for TCP, 17 for UDP).
type Protocol struct {
	number uint8
}

func NewProtocol(number uint8) Protocol {
	return Protocol{number: number}
}

func (f Protocol) Match(p core.Packet) bool {
	h, err := decoder.Decode(p)
	if err != nil {
		return false
	}
	return h.Protocol == f.number
}

// MinLength matches payloads of at least N bytes.
type MinLength struct {
	N int
}

func (m MinLength) Match(p core.Packet) bool {
	return p.Size() >= m.N
}
