package netx

import (
	"sync"

	"firestige.xyz/rxsink/internal/core"
)

// queue is filled by a reader goroutine and drained on the event goroutine.
type queue struct {
	mu      sync.Mutex
	items   []core.Packet
	pending bool
}

// push appends p and reports whether a receive notification must be posted.
func (q *queue) push(p core.Packet) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, p)
	if q.pending {
		return false
	}
	q.pending = true
	return true
}

func (q *queue) pop() (core.Packet, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		q.pending = false
		return core.Packet{}, false
	}
	p := q.items[0]
	q.items[0] = core.Packet{}
	q.items = q.items[1:]
	return p, true
}

// notified clears the pending flag before the callback runs so that packets
// arriving during the callback trigger another notification.
func (q *queue) notified() {
	q.mu.Lock()
	q.pending = false
	q.mu.Unlock()
}

func (q *queue) reset() {
	q.mu.Lock()
	q.items = nil
	q.mu.Unlock()
}
