package filter

import "firestige.xyz/rxsink/internal/core"

// All matches when every element matches. An empty All matches everything.
type All []Element

func (a All) Match(p core.Packet) bool {
	for _, e := range a {
		if !e.Match(p) {
			return false
		}
	}
	return true
}

// Any matches when at least one element matches. An empty Any matches nothing.
type Any []Element

func (a Any) Match(p core.Packet) bool {
	for _, e := range a {
		if e.Match(p) {
			return true
		}
	}
	return false
}

// Not inverts an element.
type Not struct {
	Element Element
}

func (n Not) Match(p core.Packet) bool {
	return !n.Element.Match(p)
}
