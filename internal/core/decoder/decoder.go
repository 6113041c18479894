// Package decoder extracts the L3/L4 header fields filters need from a packet's raw frame.
package decoder

import (
	"net"
	"net/netip"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"firestige.xyz/rxsink/internal/core"
)

var decodeOptions = gopacket.DecodeOptions{Lazy: true, NoCopy: true}

// Decode decodes p.Raw according to p.Link and returns the IP and transport fields.
// It returns core.ErrPacketTooShort when there is no frame or the IP header is truncated,
// and core.ErrUnsupportedProto when the frame does not carry IPv4/IPv6.
func Decode(p core.Packet) (core.Headers, error) {
	first, err := firstLayer(p)
	if err != nil {
		return core.Headers{}, err
	}

	pkt := gopacket.NewPacket(p.Raw, first, decodeOptions)

	var h core.Headers
	switch {
	case pkt.Layer(layers.LayerTypeIPv4) != nil:
		ip4 := pkt.Layer(layers.LayerTypeIPv4).(*layers.IPv4)
		h.IPVersion = 4
		h.SrcIP = toAddr(ip4.SrcIP)
		h.DstIP = toAddr(ip4.DstIP)
		h.Protocol = uint8(ip4.Protocol)
	case pkt.Layer(layers.LayerTypeIPv6) != nil:
		ip6 := pkt.Layer(layers.LayerTypeIPv6).(*layers.IPv6)
		h.IPVersion = 6
		h.SrcIP = toAddr(ip6.SrcIP)
		h.DstIP = toAddr(ip6.DstIP)
		h.Protocol = uint8(ip6.NextHeader)
	default:
		if pkt.ErrorLayer() != nil {
			return core.Headers{}, core.ErrPacketTooShort
		}
		return core.Headers{}, core.ErrUnsupportedProto
	}

	if !h.SrcIP.IsValid() {
		return core.Headers{}, core.ErrPacketTooShort
	}

	// Transport ports are best effort: a truncated L4 header still yields a usable L3 result.
	if l := pkt.Layer(layers.LayerTypeTCP); l != nil {
		tcp := l.(*layers.TCP)
		h.Protocol = core.IPProtoTCP
		h.SrcPort = uint16(tcp.SrcPort)
		h.DstPort = uint16(tcp.DstPort)
	} else if l := pkt.Layer(layers.LayerTypeUDP); l != nil {
		udp := l.(*layers.UDP)
		h.Protocol = core.IPProtoUDP
		h.SrcPort = uint16(udp.SrcPort)
		h.DstPort = uint16(udp.DstPort)
	}

	return h, nil
}

// SourceAddr returns the decoded IP source address of p, or false when p has no decodable IP header.
func SourceAddr(p core.Packet) (netip.Addr, bool) {
	h, err := Decode(p)
	if err != nil {
		return netip.Addr{}, false
	}
	return h.SrcIP, true
}

// firstLayer maps the packet's link type onto the gopacket decoder to start with.
func firstLayer(p core.Packet) (gopacket.LayerType, error) {
	if len(p.Raw) == 0 {
		return gopacket.LayerTypeZero, core.ErrPacketTooShort
	}

	switch p.Link {
	case core.LinkEthernet:
		return layers.LayerTypeEthernet, nil
	case core.LinkPPP:
		return layers.LayerTypePPP, nil
	case core.LinkRaw:
		// Version nibble (first 4 bits)
		switch p.Raw[0] >> 4 {
		case 4:
			return layers.LayerTypeIPv4, nil
		case 6:
			return layers.LayerTypeIPv6, nil
		}
		return gopacket.LayerTypeZero, core.ErrUnsupportedProto
	default:
		return gopacket.LayerTypeZero, core.ErrUnsupportedProto
	}
}

func toAddr(ip net.IP) netip.Addr {
	if v4 := ip.To4(); v4 != nil && len(ip) == net.IPv4len {
		ip = v4
	}
	addr, ok := netip.AddrFromSlice(ip)
	if !ok {
		return netip.Addr{}
	}
	return addr
}
