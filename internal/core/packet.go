// Package core defines core data structures with zero external dependencies.
package core

import "net/netip"

// Packet is one payload handed to a sink by the transport.
// The sink never retains it beyond the callback that delivered it.
type Packet struct {
	Payload []byte         // Application bytes; len(Payload) is what gets counted
	Raw     []byte         // Network-layer frame the payload arrived in, nil when headers were stripped
	Link    LinkType       // Framing of Raw
	From    netip.AddrPort // Sender endpoint as reported by the socket
}

// Size returns the number of payload bytes.
func (p Packet) Size() int {
	return len(p.Payload)
}

// IsEOF reports whether the packet is the zero-length end-of-stream marker.
func (p Packet) IsEOF() bool {
	return len(p.Payload) == 0
}

// Headers is the subset of decoded L3/L4 fields filters look at.
type Headers struct {
	IPVersion uint8
	SrcIP     netip.Addr
	DstIP     netip.Addr
	Protocol  uint8 // TCP=6, UDP=17
	SrcPort   uint16
	DstPort   uint16
}

// HasTransport reports whether a TCP or UDP header was decoded.
func (h Headers) HasTransport() bool {
	return h.Protocol == IPProtoTCP || h.Protocol == IPProtoUDP
}
