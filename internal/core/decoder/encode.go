package decoder

import (
	"fmt"
	"net"
	"net/netip"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"firestige.xyz/rxsink/internal/core"
)

const (
	defaultTTL = 64
	maxIPLen   = 65535
	ipv4Header = 20
	udpHeader  = 8
	tcpHeader  = 20
)

// Encapsulate wraps payload in an IP header plus a UDP or TCP header, producing a core.LinkRaw frame.
// The simulated network uses it so filters see real headers; both endpoints must share an IP family.
// A payload whose frame would overflow the IPv4 total length or IPv6 payload length field fails
// with core.ErrPacketTooLarge.
func Encapsulate(proto core.Protocol, from, to netip.AddrPort, payload []byte) ([]byte, error) {
	if from.Addr().Is4() != to.Addr().Is4() {
		return nil, fmt.Errorf("%w: mixed address families %s -> %s", core.ErrUnsupportedProto, from, to)
	}

	var network gopacket.NetworkLayer
	var ipProto layers.IPProtocol
	var size int
	switch proto {
	case core.ProtocolUDP:
		ipProto = layers.IPProtocolUDP
		size = udpHeader + len(payload)
	case core.ProtocolTCP:
		ipProto = layers.IPProtocolTCP
		size = tcpHeader + len(payload)
	default:
		return nil, fmt.Errorf("%w: %q", core.ErrUnsupportedProto, proto)
	}
	if from.Addr().Is4() {
		size += ipv4Header
	}
	if size > maxIPLen {
		return nil, fmt.Errorf("%w: %d bytes of %s payload", core.ErrPacketTooLarge, len(payload), proto)
	}

	var ipLayer gopacket.SerializableLayer
	if from.Addr().Is4() {
		ip4 := &layers.IPv4{
			Version:  4,
			TTL:      defaultTTL,
			Protocol: ipProto,
			SrcIP:    net.IP(from.Addr().AsSlice()),
			DstIP:    net.IP(to.Addr().AsSlice()),
		}
		network, ipLayer = ip4, ip4
	} else {
		ip6 := &layers.IPv6{
			Version:    6,
			HopLimit:   defaultTTL,
			NextHeader: ipProto,
			SrcIP:      net.IP(from.Addr().AsSlice()),
			DstIP:      net.IP(to.Addr().AsSlice()),
		}
		network, ipLayer = ip6, ip6
	}

	var transport gopacket.SerializableLayer
	if proto == core.ProtocolUDP {
		udp := &layers.UDP{SrcPort: layers.UDPPort(from.Port()), DstPort: layers.UDPPort(to.Port())}
		if err := udp.SetNetworkLayerForChecksum(network); err != nil {
			return nil, err
		}
		transport = udp
	} else {
		tcp := &layers.TCP{SrcPort: layers.TCPPort(from.Port()), DstPort: layers.TCPPort(to.Port()), ACK: true, PSH: true, Window: 65535}
		if err := tcp.SetNetworkLayerForChecksum(network); err != nil {
			return nil, err
		}
		transport = tcp
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, ipLayer, transport, gopacket.Payload(payload)); err != nil {
		return nil, fmt.Errorf("serialize headers: %w", err)
	}
	return buf.Bytes(), nil
}
