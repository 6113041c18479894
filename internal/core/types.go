// Package core defines core types with zero external dependencies.
package core

import (
	"fmt"
	"strings"
)

// LinkType tells the decoder how Packet.Raw is framed.
type LinkType uint8

const (
	// LinkRaw is a bare IP datagram; the version nibble selects IPv4 or IPv6.
	LinkRaw LinkType = iota
	// LinkPPP is a PPP frame carrying IP (point-to-point links).
	LinkPPP
	// LinkEthernet is an Ethernet II frame (pcap replay, raw captures).
	LinkEthernet
)

func (l LinkType) String() string {
	switch l {
	case LinkRaw:
		return "raw"
	case LinkPPP:
		return "ppp"
	case LinkEthernet:
		return "ethernet"
	default:
		return fmt.Sprintf("link(%d)", uint8(l))
	}
}

// Protocol selects the transport a sink listens on.
type Protocol string

const (
	ProtocolUDP Protocol = "udp"
	ProtocolTCP Protocol = "tcp"
)

// ParseProtocol accepts "udp" or "tcp" in any case.
func ParseProtocol(s string) (Protocol, error) {
	switch Protocol(strings.ToLower(strings.TrimSpace(s))) {
	case ProtocolUDP:
		return ProtocolUDP, nil
	case ProtocolTCP:
		return ProtocolTCP, nil
	default:
		return "", fmt.Errorf("%w: unknown protocol %q (must be udp/tcp)", ErrConfigInvalid, s)
	}
}

// Connectionless reports whether payloads arrive on the listening socket itself.
func (p Protocol) Connectionless() bool {
	return p == ProtocolUDP
}

// IP protocol numbers used by filters.
const (
	IPProtoTCP uint8 = 6
	IPProtoUDP uint8 = 17
)
