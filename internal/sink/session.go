package sink

import (
	"net/netip"
	"time"

	"github.com/google/uuid"

	"firestige.xyz/rxsink/internal/transport"
)

// Session is one accepted connection. It is owned by its sink and released by Stop.
type Session struct {
	ID         uuid.UUID
	Socket     transport.Socket
	Peer       netip.AddrPort
	AcceptedAt time.Duration

	bytes      uint64
	peerClosed bool
	peerError  bool
}

func newSession(sock transport.Socket, peer netip.AddrPort, at time.Duration) *Session {
	return &Session{
		ID:         uuid.New(),
		Socket:     sock,
		Peer:       peer,
		AcceptedAt: at,
	}
}

// Bytes returns the payload bytes counted on this connection.
func (s *Session) Bytes() uint64 {
	return s.bytes
}

// PeerClosed reports whether the peer shut the connection down in an orderly way.
func (s *Session) PeerClosed() bool {
	return s.peerClosed
}

// PeerError reports whether the connection failed.
func (s *Session) PeerError() bool {
	return s.peerError
}

// SessionInfo is a point-in-time copy of a Session.
type SessionInfo struct {
	ID         string  `json:"id"`
	Peer       string  `json:"peer"`
	AcceptedAt float64 `json:"accepted_at"`
	Bytes      uint64  `json:"bytes"`
	PeerClosed bool    `json:"peer_closed"`
	PeerError  bool    `json:"peer_error"`
}

func (s *Session) info() SessionInfo {
	return SessionInfo{
		ID:         s.ID.String(),
		Peer:       s.Peer.String(),
		AcceptedAt: s.AcceptedAt.Seconds(),
		Bytes:      s.bytes,
		PeerClosed: s.peerClosed,
		PeerError:  s.peerError,
	}
}
