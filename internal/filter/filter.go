// Package filter implements packet predicates.
package filter

import "firestige.xyz/rxsink/internal/core"

// Element decides whether a packet satisfies one criterion.
// Implementations read only their own immutable configuration, so a single
// Element may be shared across sinks and goroutines. A field the packet does
// not carry is a non-match, never an error.
type Element interface {
	Match(p core.Packet) bool
}

// Func adapts an ordinary function to Element.
type Func func(p core.Packet) bool

func (f Func) Match(p core.Packet) bool {
	return f(p)
}
