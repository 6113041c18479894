// Package sched provides the event engines that drive sinks.
//
// Every callback a sink receives, whether a timer, a socket event or an
// accepted connection, runs on the engine's single dispatch goroutine and runs
// to completion before the next one starts. Sink state therefore needs no locking.
package sched

import "time"

// EventID identifies a scheduled event. The zero value never refers to an event.
type EventID uint64

// Scheduler is the contract sinks and transports rely on.
type Scheduler interface {
	// Now returns the time elapsed since the engine's epoch.
	Now() time.Duration
	// Schedule arranges for fn to run once after delay. A negative delay is treated as zero.
	Schedule(delay time.Duration, fn func()) EventID
	// Cancel prevents a pending event from running and reports whether it was still pending.
	Cancel(id EventID) bool
}
