package decoder

import (
	"errors"
	"net"
	"net/netip"
	"testing"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/rxsink/internal/core"
)

var (
	srcV4 = netip.MustParseAddrPort("192.168.1.1:5000")
	dstV4 = netip.MustParseAddrPort("192.168.1.2:9000")
	srcV6 = netip.MustParseAddrPort("[2001:db8::1]:5000")
	dstV6 = netip.MustParseAddrPort("[2001:db8::2]:9000")
)

func TestDecodeRawIPv4UDP(t *testing.T) {
	raw, err := Encapsulate(core.ProtocolUDP, srcV4, dstV4, []byte("hello"))
	require.NoError(t, err)

	h, err := Decode(core.Packet{Raw: raw, Link: core.LinkRaw})
	require.NoError(t, err)

	assert.Equal(t, uint8(4), h.IPVersion)
	assert.Equal(t, srcV4.Addr(), h.SrcIP)
	assert.Equal(t, dstV4.Addr(), h.DstIP)
	assert.Equal(t, core.IPProtoUDP, h.Protocol)
	assert.Equal(t, uint16(5000), h.SrcPort)
	assert.Equal(t, uint16(9000), h.DstPort)
	assert.True(t, h.HasTransport())
}

func TestDecodeRawIPv6TCP(t *testing.T) {
	raw, err := Encapsulate(core.ProtocolTCP, srcV6, dstV6, []byte("payload"))
	require.NoError(t, err)

	h, err := Decode(core.Packet{Raw: raw})
	require.NoError(t, err)

	assert.Equal(t, uint8(6), h.IPVersion)
	assert.Equal(t, srcV6.Addr(), h.SrcIP)
	assert.Equal(t, core.IPProtoTCP, h.Protocol)
	assert.Equal(t, uint16(5000), h.SrcPort)
}

func TestDecodePPP(t *testing.T) {
	raw, err := Encapsulate(core.ProtocolUDP, srcV4, dstV4, []byte{1, 2, 3})
	require.NoError(t, err)

	// Two-byte PPP protocol field 0x0021 (IPv4)
	frame := append([]byte{0x00, 0x21}, raw...)

	src, ok := SourceAddr(core.Packet{Raw: frame, Link: core.LinkPPP})
	require.True(t, ok)
	assert.Equal(t, srcV4.Addr(), src)
}

func TestDecodeEthernet(t *testing.T) {
	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0, 1, 2, 3, 4, 5},
		DstMAC:       net.HardwareAddr{6, 7, 8, 9, 10, 11},
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version:  4,
		TTL:      64,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    net.IP{10, 0, 0, 7},
		DstIP:    net.IP{10, 0, 0, 8},
	}
	udp := &layers.UDP{SrcPort: 1234, DstPort: 9000}
	require.NoError(t, udp.SetNetworkLayerForChecksum(ip))

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	require.NoError(t, gopacket.SerializeLayers(buf, opts, eth, ip, udp, gopacket.Payload([]byte("x"))))

	h, err := Decode(core.Packet{Raw: buf.Bytes(), Link: core.LinkEthernet})
	require.NoError(t, err)
	assert.Equal(t, netip.MustParseAddr("10.0.0.7"), h.SrcIP)
	assert.Equal(t, uint16(1234), h.SrcPort)
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		pkt  core.Packet
		want error
	}{
		{"no frame", core.Packet{Payload: []byte("data")}, core.ErrPacketTooShort},
		{"bad version", core.Packet{Raw: []byte{0x55, 0, 0, 0}}, core.ErrUnsupportedProto},
		{"truncated ipv4", core.Packet{Raw: []byte{0x45, 0, 0, 28, 0, 0}}, core.ErrPacketTooShort},
		{"unknown link", core.Packet{Raw: []byte{0x45}, Link: core.LinkType(42)}, core.ErrUnsupportedProto},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.pkt)
			if !errors.Is(err, tt.want) {
				t.Errorf("Decode() error = %v, want %v", err, tt.want)
			}
			if _, ok := SourceAddr(tt.pkt); ok {
				t.Error("SourceAddr should fail on undecodable input")
			}
		})
	}
}

func TestEncapsulateMixedFamilies(t *testing.T) {
	_, err := Encapsulate(core.ProtocolUDP, srcV4, dstV6, nil)
	assert.ErrorIs(t, err, core.ErrUnsupportedProto)
}

func TestEncapsulateLengthLimit(t *testing.T) {
	tests := []struct {
		name    string
		proto   core.Protocol
		from    netip.AddrPort
		to      netip.AddrPort
		size    int
		wantErr bool
	}{
		{"ipv4 udp largest datagram", core.ProtocolUDP, srcV4, dstV4, 65535 - 28, false},
		{"ipv4 udp overflow", core.ProtocolUDP, srcV4, dstV4, 65535 - 27, true},
		{"ipv4 tcp largest read", core.ProtocolTCP, srcV4, dstV4, 65535 - 40, false},
		{"ipv4 tcp full buffer", core.ProtocolTCP, srcV4, dstV4, 65535, true},
		{"ipv6 tcp largest read", core.ProtocolTCP, srcV6, dstV6, 65535 - 20, false},
		{"ipv6 tcp overflow", core.ProtocolTCP, srcV6, dstV6, 65535 - 19, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := Encapsulate(tt.proto, tt.from, tt.to, make([]byte, tt.size))
			if tt.wantErr {
				assert.ErrorIs(t, err, core.ErrPacketTooLarge)
				return
			}
			require.NoError(t, err)
			h, err := Decode(core.Packet{Raw: raw, Link: core.LinkRaw})
			require.NoError(t, err)
			assert.Equal(t, tt.from.Addr(), h.SrcIP)
		})
	}
}
