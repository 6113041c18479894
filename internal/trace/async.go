package trace

import (
	"log/slog"
	"sync"

	"firestige.xyz/rxsink/internal/metrics"
)

const defaultQueueSize = 1024

// Async hands values to a send function on its own goroutine so exporters never
// block the publishing goroutine. Values offered to a full queue are dropped.
type Async[T any] struct {
	name string
	send func(T) error

	mu     sync.RWMutex
	ch     chan T
	closed bool
	wg     sync.WaitGroup
}

// NewAsync starts the worker. A queue size <= 0 uses the default.
func NewAsync[T any](name string, size int, send func(T) error) *Async[T] {
	if size <= 0 {
		size = defaultQueueSize
	}
	a := &Async[T]{
		name: name,
		send: send,
		ch:   make(chan T, size),
	}
	a.wg.Add(1)
	go a.run()
	return a
}

// Offer queues v and reports whether it was accepted.
func (a *Async[T]) Offer(v T) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return false
	}
	select {
	case a.ch <- v:
		return true
	default:
		metrics.TraceDroppedTotal.WithLabelValues(a.name).Inc()
		return false
	}
}

// Close stops accepting values and waits until the queued ones were sent.
func (a *Async[T]) Close() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	close(a.ch)
	a.mu.Unlock()
	a.wg.Wait()
}

func (a *Async[T]) run() {
	defer a.wg.Done()
	for v := range a.ch {
		if err := a.send(v); err != nil {
			metrics.TraceErrorsTotal.WithLabelValues(a.name).Inc()
			slog.Warn("trace export failed", "exporter", a.name, "error", err)
		}
	}
}
