package sched

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"

	"firestige.xyz/rxsink/internal/core"
)

const defaultQueueSize = 4096

// Loop is the real-time engine. One goroutine (the caller of Run) executes every
// posted function and every timer callback; other goroutines hand work over with Post or Do.
type Loop struct {
	clk   clock.Clock
	epoch time.Time
	tasks chan func()

	mu     sync.Mutex
	timers map[EventID]*clock.Timer
	nextID atomic.Uint64

	quit     chan struct{}
	quitOnce sync.Once
	done     chan struct{}
	stopped  atomic.Bool
}

// NewLoop returns a loop driven by clk. A nil clk uses the wall clock.
func NewLoop(clk clock.Clock, queueSize int) *Loop {
	if clk == nil {
		clk = clock.New()
	}
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	return &Loop{
		clk:    clk,
		epoch:  clk.Now(),
		tasks:  make(chan func(), queueSize),
		timers: make(map[EventID]*clock.Timer),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// Run dispatches posted functions until ctx is cancelled or Stop is called.
// Pending timers are stopped on return and later Posts fail with core.ErrLoopStopped.
func (l *Loop) Run(ctx context.Context) error {
	defer l.shutdown()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.quit:
			return nil
		case fn := <-l.tasks:
			fn()
		}
	}
}

// Stop asks Run to return.
func (l *Loop) Stop() {
	l.quitOnce.Do(func() { close(l.quit) })
}

// Done is closed once Run has returned.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

// Post queues fn for execution on the loop goroutine. It blocks while the queue is full.
// It must not be called from the loop goroutine itself when the queue may be full.
func (l *Loop) Post(fn func()) error {
	if l.stopped.Load() {
		return core.ErrLoopStopped
	}
	select {
	case l.tasks <- fn:
		return nil
	case <-l.done:
		return core.ErrLoopStopped
	}
}

// Do runs fn on the loop goroutine and waits for it to finish.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	if err := l.Post(func() {
		defer close(finished)
		fn()
	}); err != nil {
		return err
	}
	select {
	case <-finished:
		return nil
	case <-l.done:
		return core.ErrLoopStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Loop) Now() time.Duration {
	return l.clk.Since(l.epoch)
}

func (l *Loop) Schedule(delay time.Duration, fn func()) EventID {
	if delay < 0 {
		delay = 0
	}
	id := EventID(l.nextID.Add(1))

	l.mu.Lock()
	defer l.mu.Unlock()
	l.timers[id] = l.clk.AfterFunc(delay, func() {
		_ = l.Post(func() {
			// Cancel may have won the race after the timer fired.
			if l.take(id) {
				fn()
			}
		})
	})
	return id
}

func (l *Loop) Cancel(id EventID) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	t, ok := l.timers[id]
	if !ok {
		return false
	}
	t.Stop()
	delete(l.timers, id)
	return true
}

func (l *Loop) take(id EventID) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.timers[id]; !ok {
		return false
	}
	delete(l.timers, id)
	return true
}

func (l *Loop) shutdown() {
	l.stopped.Store(true)
	l.mu.Lock()
	for id, t := range l.timers {
		t.Stop()
		delete(l.timers, id)
	}
	l.mu.Unlock()
	close(l.done)
}
