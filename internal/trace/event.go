// Package trace carries per-packet notifications from sinks to observers.
package trace

import (
	"net/netip"
	"time"

	"firestige.xyz/rxsink/internal/core"
)

// Event is published for every counted or traced payload.
type Event struct {
	Sink   string
	Time   time.Duration
	Packet core.Packet
	From   netip.AddrPort
}

// Size returns the payload length.
func (e Event) Size() int {
	return e.Packet.Size()
}

// Observer receives events synchronously on the publishing goroutine. Implementations
// must not retain e.Packet's slices after returning.
type Observer interface {
	Observe(e Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(e Event)

func (f ObserverFunc) Observe(e Event) {
	f(e)
}
