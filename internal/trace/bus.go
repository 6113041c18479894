package trace

import (
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"

	"go.uber.org/multierr"
)

// Stats is a snapshot of bus counters.
type Stats struct {
	Published   uint64
	Delivered   uint64
	Subscribers int
}

// Bus fans events out to named observers in subscription order.
type Bus struct {
	mu          sync.RWMutex
	names       []string
	subscribers map[string]Observer
	closed      bool

	published uint64
	delivered uint64
}

func NewBus() *Bus {
	return &Bus{subscribers: make(map[string]Observer)}
}

// Subscribe registers o under name, replacing any observer with the same name.
func (b *Bus) Subscribe(name string, o Observer) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return fmt.Errorf("trace bus is closed")
	}
	if _, ok := b.subscribers[name]; !ok {
		b.names = append(b.names, name)
	}
	b.subscribers[name] = o

	slog.Debug("trace observer subscribed", "observer", name)
	return nil
}

// Unsubscribe removes the named observer and reports whether it was present.
func (b *Bus) Unsubscribe(name string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.subscribers[name]; !ok {
		return false
	}
	delete(b.subscribers, name)
	for i, n := range b.names {
		if n == name {
			b.names = append(b.names[:i], b.names[i+1:]...)
			break
		}
	}
	return true
}

// Publish delivers e to every observer. It is a no-op once the bus is closed.
func (b *Bus) Publish(e Event) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.published++
	observers := make([]Observer, 0, len(b.names))
	for _, n := range b.names {
		observers = append(observers, b.subscribers[n])
	}
	b.delivered += uint64(len(observers))
	b.mu.Unlock()

	for _, o := range observers {
		o.Observe(e)
	}
}

// Close stops delivery and closes every observer implementing io.Closer.
func (b *Bus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	names := append([]string(nil), b.names...)
	subs := b.subscribers
	b.mu.Unlock()

	var err error
	for _, n := range names {
		if c, ok := subs[n].(io.Closer); ok {
			err = multierr.Append(err, c.Close())
		}
	}
	return err
}

func (b *Bus) Stats() Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return Stats{
		Published:   b.published,
		Delivered:   b.delivered,
		Subscribers: len(b.subscribers),
	}
}

// Observers returns the subscribed names, sorted.
func (b *Bus) Observers() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	names := append([]string(nil), b.names...)
	sort.Strings(names)
	return names
}
